package hostmem

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

type bufferState struct {
	data []byte
}

// Stats counts the traffic a HostMemoryRenderer has seen.
type Stats struct {
	BuffersCreated   uint64
	BuffersDestroyed uint64
	LiveBuffers      int
	Uploads          uint64
	UploadedBytes    uint64
	// Uploads per buffer name, handy to check which columns were re-uploaded.
	UploadsByName map[string]uint64
}

/**
 * @brief A renderer backend keeping every buffer in host memory. Used by the
 * testbed and the tests; it behaves like a GPU backend from the caller's side.
 */
type HostMemoryRenderer struct {
	mu          sync.Mutex
	config      *metadata.RendererBackendConfig
	frameNumber uint64
	live        map[*metadata.RenderBuffer]struct{}
	stats       Stats
}

func New() *HostMemoryRenderer {
	return &HostMemoryRenderer{
		live: make(map[*metadata.RenderBuffer]struct{}),
		stats: Stats{
			UploadsByName: make(map[string]uint64),
		},
	}
}

func (hr *HostMemoryRenderer) Initialize(config *metadata.RendererBackendConfig) error {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.config = config
	core.LogInfo("host memory renderer initialized for '%s' (%s)", config.ApplicationName, config.FeatureLevel)
	return nil
}

func (hr *HostMemoryRenderer) Shutdown() error {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	if n := len(hr.live); n > 0 {
		core.LogWarn("host memory renderer shutting down with %d live buffers", n)
	}
	hr.live = make(map[*metadata.RenderBuffer]struct{})
	return nil
}

func (hr *HostMemoryRenderer) BeginFrame(deltaTime float64) error {
	return nil
}

func (hr *HostMemoryRenderer) EndFrame(deltaTime float64) error {
	hr.mu.Lock()
	hr.frameNumber++
	hr.mu.Unlock()
	return nil
}

func (hr *HostMemoryRenderer) IsMultithreaded() bool {
	return false
}

func (hr *HostMemoryRenderer) FrameNumber() uint64 {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	return hr.frameNumber
}

func (hr *HostMemoryRenderer) RenderBufferCreate(name string, renderbufferType metadata.RenderBufferType, totalSize uint64) (*metadata.RenderBuffer, error) {
	if renderbufferType == metadata.RENDERBUFFER_TYPE_UNKNOWN {
		err := fmt.Errorf("render buffer '%s' created with unknown type", name)
		core.LogError(err.Error())
		return nil, err
	}
	buf := &metadata.RenderBuffer{
		Name:             name,
		RenderBufferType: renderbufferType,
		TotalSize:        totalSize,
		InternalData:     &bufferState{data: make([]byte, totalSize)},
	}
	hr.mu.Lock()
	hr.live[buf] = struct{}{}
	hr.stats.BuffersCreated++
	hr.mu.Unlock()
	return buf, nil
}

func (hr *HostMemoryRenderer) RenderBufferDestroy(buffer *metadata.RenderBuffer) {
	if buffer == nil {
		return
	}
	hr.mu.Lock()
	defer hr.mu.Unlock()
	if _, ok := hr.live[buffer]; !ok {
		core.LogWarn("render buffer '%s' destroyed twice or not owned by this backend", buffer.Name)
		return
	}
	delete(hr.live, buffer)
	hr.stats.BuffersDestroyed++
	buffer.InternalData = nil
	buffer.TotalSize = 0
}

func (hr *HostMemoryRenderer) RenderBufferResize(buffer *metadata.RenderBuffer, newTotalSize uint64) bool {
	state, ok := buffer.InternalData.(*bufferState)
	if !ok {
		return false
	}
	data := make([]byte, newTotalSize)
	copy(data, state.data)
	state.data = data
	buffer.TotalSize = newTotalSize
	return true
}

func (hr *HostMemoryRenderer) RenderBufferLoadRange(buffer *metadata.RenderBuffer, offset uint64, data []byte) bool {
	state, ok := buffer.InternalData.(*bufferState)
	if !ok {
		core.LogError("load range on invalid render buffer")
		return false
	}
	if offset+uint64(len(data)) > uint64(len(state.data)) {
		core.LogError("load range [%d, %d) outside of render buffer '%s' of size %d", offset, offset+uint64(len(data)), buffer.Name, len(state.data))
		return false
	}
	copy(state.data[offset:], data)

	hr.mu.Lock()
	hr.stats.Uploads++
	hr.stats.UploadedBytes += uint64(len(data))
	hr.stats.UploadsByName[buffer.Name]++
	hr.mu.Unlock()
	return true
}

func (hr *HostMemoryRenderer) RenderBufferRead(buffer *metadata.RenderBuffer, offset, size uint64) ([]byte, error) {
	state, ok := buffer.InternalData.(*bufferState)
	if !ok {
		return nil, fmt.Errorf("read from invalid render buffer")
	}
	if offset+size > uint64(len(state.data)) {
		return nil, fmt.Errorf("read [%d, %d) outside of render buffer '%s'", offset, offset+size, buffer.Name)
	}
	out := make([]byte, size)
	copy(out, state.data[offset:offset+size])
	return out, nil
}

/**
 * @brief Returns a snapshot of the counters.
 */
func (hr *HostMemoryRenderer) Stats() Stats {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	out := hr.stats
	out.LiveBuffers = len(hr.live)
	out.UploadsByName = make(map[string]uint64, len(hr.stats.UploadsByName))
	for k, v := range hr.stats.UploadsByName {
		out.UploadsByName[k] = v
	}
	return out
}
