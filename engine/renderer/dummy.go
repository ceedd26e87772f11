package renderer

import (
	"sync"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

// Size of the shared zero buffer bound in place of missing float streams.
const DUMMY_FLOAT_BUFFER_ELEMENTS = 4

var (
	dummyMu      sync.Mutex
	dummyBuffers = map[RendererBackend]*metadata.ShaderResourceView{}
)

/**
 * @brief Returns the shared zero-filled float buffer for backend, creating it on
 * first use. Must be called on the render thread.
 */
func DummyFloatBuffer(backend RendererBackend) *metadata.ShaderResourceView {
	dummyMu.Lock()
	defer dummyMu.Unlock()

	if srv, ok := dummyBuffers[backend]; ok {
		return srv
	}
	size := uint64(DUMMY_FLOAT_BUFFER_ELEMENTS * 4)
	buf, err := backend.RenderBufferCreate("DummyFloatBuffer", metadata.RENDERBUFFER_TYPE_VERTEX, size)
	if err != nil {
		core.LogError("failed to create dummy float buffer: %s", err.Error())
		return nil
	}
	backend.RenderBufferLoadRange(buf, 0, make([]byte, size))
	srv := &metadata.ShaderResourceView{
		Buffer:      buf,
		Stride:      4,
		Format:      metadata.PIXEL_FORMAT_R32_FLOAT,
		NumElements: DUMMY_FLOAT_BUFFER_ELEMENTS,
	}
	dummyBuffers[backend] = srv
	return srv
}

/**
 * @brief Destroys the dummy buffer created for backend, if any. Called at renderer shutdown.
 */
func ReleaseDummyBuffers(backend RendererBackend) {
	dummyMu.Lock()
	defer dummyMu.Unlock()
	if srv, ok := dummyBuffers[backend]; ok {
		backend.RenderBufferDestroy(srv.Buffer)
		delete(dummyBuffers, backend)
	}
}

func IsDummyBuffer(srv *metadata.ShaderResourceView) bool {
	if srv == nil {
		return false
	}
	dummyMu.Lock()
	defer dummyMu.Unlock()
	for _, d := range dummyBuffers {
		if d == srv {
			return true
		}
	}
	return false
}
