package nanite

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/renderer"
)

type ResourceState int

const (
	RESOURCE_STATE_UNLOADED ResourceState = iota
	RESOURCE_STATE_REGISTERED
	RESOURCE_STATE_STREAMING
	RESOURCE_STATE_RELEASED
)

func (s ResourceState) String() string {
	switch s {
	case RESOURCE_STATE_UNLOADED:
		return "unloaded"
	case RESOURCE_STATE_REGISTERED:
		return "registered"
	case RESOURCE_STATE_STREAMING:
		return "streaming"
	case RESOURCE_STATE_RELEASED:
		return "released"
	}
	return fmt.Sprintf("resource_state(%d)", int(s))
}

/**
 * @brief The streaming manager as a resource sees it. Add and Remove are
 * always called from the render thread.
 */
type StreamingRegistrar interface {
	Add(r *Resources)
	Remove(r *Resources)
}

/**
 * @brief Persistent per-mesh virtualized geometry. Root pages are stored inline
 * in RootData; every other page lives in StreamablePages.
 */
type Resources struct {
	ID uuid.UUID

	RootData             []byte
	StreamablePages      *BulkData
	PageStreamingStates  []PageStreamingState
	HierarchyNodes       []PackedHierarchyNode
	HierarchyRootOffsets []uint32
	PageDependencies     []uint32

	NumRootPages      uint32
	PositionPrecision int32
	NumInputTriangles uint32
	NumInputVertices  uint32
	NumInputMeshes    uint16
	NumInputTexCoords uint16
	NumClusters       uint32
	ResourceFlags     uint32

	mu                sync.Mutex
	state             ResourceState
	runtimeResourceID uint32
	hierarchyOffset   uint32
	registered        bool
}

func NewResources() *Resources {
	return &Resources{ID: uuid.New()}
}

func (r *Resources) State() ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

/**
 * @brief A resource without page streaming states was stripped on save and
 * never takes part in streaming.
 */
func (r *Resources) IsStripped() bool {
	return len(r.PageStreamingStates) == 0
}

func (r *Resources) NumPages() uint32 {
	return uint32(len(r.PageStreamingStates))
}

func (r *Resources) IsRootPage(page uint32) bool {
	return page < r.NumRootPages
}

/**
 * @brief Enqueues registration with the streaming manager on the render thread.
 * Stripped resources stay unloaded and registrar is never called.
 */
func (r *Resources) InitResources(rt *renderer.RenderThread, registrar StreamingRegistrar) error {
	if r.IsStripped() {
		core.LogDebug("nanite resource %s has no streaming pages, staying inert", r.ID)
		return nil
	}
	r.mu.Lock()
	if r.state == RESOURCE_STATE_REGISTERED || r.state == RESOURCE_STATE_STREAMING {
		r.mu.Unlock()
		return nil
	}
	r.state = RESOURCE_STATE_REGISTERED
	r.mu.Unlock()

	return rt.EnqueueRenderCommand("InitNaniteResources", func(renderer.RendererBackend) {
		registrar.Add(r)
	})
}

/**
 * @brief Enqueues removal from the streaming manager. No-op for resources that
 * never registered.
 */
func (r *Resources) ReleaseResources(rt *renderer.RenderThread, registrar StreamingRegistrar) error {
	r.mu.Lock()
	if r.state != RESOURCE_STATE_REGISTERED && r.state != RESOURCE_STATE_STREAMING {
		r.mu.Unlock()
		return nil
	}
	r.state = RESOURCE_STATE_RELEASED
	r.mu.Unlock()

	return rt.EnqueueRenderCommand("ReleaseNaniteResources", func(renderer.RendererBackend) {
		registrar.Remove(r)
	})
}

/**
 * @brief Called by the streaming manager when it makes a non root page resident.
 */
func (r *Resources) MarkStreaming() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RESOURCE_STATE_REGISTERED {
		r.state = RESOURCE_STATE_STREAMING
	}
}

/**
 * @brief Records the ids the streaming manager assigned on registration.
 */
func (r *Resources) SetRuntimeInfo(runtimeResourceID, hierarchyOffset uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimeResourceID = runtimeResourceID
	r.hierarchyOffset = hierarchyOffset
	r.registered = true
}

func (r *Resources) ClearRuntimeInfo() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimeResourceID = 0
	r.hierarchyOffset = 0
	r.registered = false
}

func (r *Resources) RuntimeResourceID() (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runtimeResourceID, r.registered
}

// HierarchyOffset is the offset of this resource's nodes in the global hierarchy buffer.
func (r *Resources) HierarchyOffset() (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hierarchyOffset, r.registered
}

/**
 * @brief Checks that every page reference stays within [0, NumPages()) and that
 * dependency ranges are in bounds.
 */
func (r *Resources) Validate() error {
	numPages := r.NumPages()
	if r.NumRootPages > numPages {
		return fmt.Errorf("%w: %d root pages but only %d pages", core.ErrPageOutOfRange, r.NumRootPages, numPages)
	}
	for ni := range r.HierarchyNodes {
		node := &r.HierarchyNodes[ni]
		for c := 0; c < NANITE_MAX_BVH_NODE_FANOUT; c++ {
			if node.IsEmpty(c) {
				continue
			}
			if !node.IsLeaf(c) {
				if ref := node.GetChildStartReference(c); int(ref) >= len(r.HierarchyNodes) {
					return fmt.Errorf("node %d child %d references node %d of %d", ni, c, ref, len(r.HierarchyNodes))
				}
				continue
			}
			// Stripped resources keep the hierarchy without its pages.
			if r.IsStripped() {
				continue
			}
			start := node.GetPageIndex(c)
			count := node.GetNumPages(c)
			if count == 0 || start+count > numPages {
				return fmt.Errorf("%w: node %d child %d references pages [%d, %d) of %d", core.ErrPageOutOfRange, ni, c, start, start+count, numPages)
			}
		}
	}
	for pi, s := range r.PageStreamingStates {
		end := uint64(s.DependenciesStart) + uint64(s.DependenciesNum)
		if end > uint64(len(r.PageDependencies)) {
			return fmt.Errorf("page %d dependency range [%d, %d) past %d entries", pi, s.DependenciesStart, end, len(r.PageDependencies))
		}
		for _, dep := range r.PageDependencies[s.DependenciesStart:end] {
			if dep >= numPages {
				return fmt.Errorf("%w: page %d depends on page %d of %d", core.ErrPageOutOfRange, pi, dep, numPages)
			}
		}
	}
	return nil
}

/**
 * @brief Returns the pages that must be resident before page can be used.
 */
func (r *Resources) Dependencies(page uint32) []uint32 {
	if page >= r.NumPages() {
		return nil
	}
	s := r.PageStreamingStates[page]
	return r.PageDependencies[s.DependenciesStart : s.DependenciesStart+uint32(s.DependenciesNum)]
}

/**
 * @brief Reads and decodes one page from the root data or the bulk blob.
 */
func (r *Resources) DecodePage(page uint32) (*Page, error) {
	if r.IsStripped() {
		return nil, core.ErrResourceStripped
	}
	if page >= r.NumPages() {
		return nil, fmt.Errorf("%w: page %d of %d", core.ErrPageOutOfRange, page, r.NumPages())
	}
	s := r.PageStreamingStates[page]

	var data []byte
	if r.IsRootPage(page) {
		end := uint64(s.BulkOffset) + uint64(s.BulkSize)
		if end > uint64(len(r.RootData)) {
			return nil, fmt.Errorf("root page %d [%d, %d) past %d bytes of root data", page, s.BulkOffset, end, len(r.RootData))
		}
		data = r.RootData[s.BulkOffset:end]
	} else {
		var err error
		if data, err = r.StreamablePages.Read(s.BulkOffset, s.BulkSize); err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
	}
	return UnmarshalPage(data, page, s.IsRelativeEncoded())
}
