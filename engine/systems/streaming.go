package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/instancer/engine/containers"
	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/nanite"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

/** @brief The configuration for the streaming manager */
type StreamingManagerConfig struct {
	/** @brief Maximum number of streamed (non root) pages resident at once. */
	MaxResidentPages uint32
	/** @brief Initial capacity of the page request queue. */
	RequestQueueSize int
}

type pageKey struct {
	resource uint32
	page     uint32
}

/**
 * @brief Decides which Nanite pages are resident. Resources register through
 * Add/Remove on the render thread; the game thread requests pages and ticks
 * Update once a frame.
 */
type StreamingManager struct {
	config StreamingManagerConfig
	jobs   *JobSystem

	mu                  sync.Mutex
	ids                 *core.IdentifierPool
	resources           map[uint32]*nanite.Resources
	nextHierarchyOffset uint32
	requests            *containers.RingQueue[pageKey]
	queued              map[pageKey]struct{}
	rootPages           map[pageKey]*nanite.Page
	resident            map[pageKey]*nanite.Page
	fifo                []pageKey
	loaded              uint64
	evicted             uint64
}

func NewStreamingManager(config StreamingManagerConfig, jobs *JobSystem) (*StreamingManager, error) {
	if config.MaxResidentPages == 0 {
		err := fmt.Errorf("failed to run NewStreamingManager because config.MaxResidentPages==0")
		core.LogError(err.Error())
		return nil, err
	}
	if config.RequestQueueSize <= 0 {
		config.RequestQueueSize = 64
	}
	return &StreamingManager{
		config:    config,
		jobs:      jobs,
		ids:       core.NewIdentifierPool(16),
		resources: make(map[uint32]*nanite.Resources),
		requests:  containers.NewRingQueue[pageKey](config.RequestQueueSize),
		queued:    make(map[pageKey]struct{}),
		rootPages: make(map[pageKey]*nanite.Page),
		resident:  make(map[pageKey]*nanite.Page),
	}, nil
}

/**
 * @brief Registers r: assigns its runtime id and hierarchy offset and makes its
 * root pages resident.
 */
func (sm *StreamingManager) Add(r *nanite.Resources) {
	if r.IsStripped() {
		core.Ensure(false, "stripped nanite resource %s must not be registered", r.ID)
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := r.RuntimeResourceID(); ok {
		core.LogWarn("nanite resource %s registered twice", r.ID)
		return
	}
	id := sm.ids.Acquire(r)
	sm.resources[id] = r
	r.SetRuntimeInfo(id, sm.nextHierarchyOffset)
	sm.nextHierarchyOffset += uint32(len(r.HierarchyNodes))

	for p := uint32(0); p < r.NumRootPages; p++ {
		page, err := r.DecodePage(p)
		if err != nil {
			core.LogError("failed to decode root page %d of %s: %s", p, r.ID, err.Error())
			continue
		}
		sm.rootPages[pageKey{id, p}] = page
	}
	core.LogDebug("nanite resource %s registered as %d (%d pages)", r.ID, id, r.NumPages())
}

/**
 * @brief Unregisters r and drops all of its pages.
 */
func (sm *StreamingManager) Remove(r *nanite.Resources) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	id, ok := r.RuntimeResourceID()
	if !ok || sm.resources[id] != r {
		core.LogWarn("nanite resource %s removed but not registered", r.ID)
		return
	}
	delete(sm.resources, id)
	for key := range sm.rootPages {
		if key.resource == id {
			delete(sm.rootPages, key)
		}
	}
	kept := sm.fifo[:0]
	for _, key := range sm.fifo {
		if key.resource == id {
			delete(sm.resident, key)
			continue
		}
		kept = append(kept, key)
	}
	sm.fifo = kept
	if err := sm.ids.Release(id); err != nil {
		core.LogError(err.Error())
	}
	r.ClearRuntimeInfo()
}

/**
 * @brief Queues page of r for streaming on the next Update.
 */
func (sm *StreamingManager) RequestPage(r *nanite.Resources, page uint32) error {
	if r.IsStripped() {
		return core.ErrResourceStripped
	}
	id, ok := r.RuntimeResourceID()
	if !ok {
		return core.ErrResourceNotRegistered
	}
	if page >= r.NumPages() {
		return fmt.Errorf("%w: page %d of %d", core.ErrPageOutOfRange, page, r.NumPages())
	}
	if r.IsRootPage(page) {
		return nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	key := pageKey{id, page}
	if _, ok := sm.resident[key]; ok {
		return nil
	}
	if _, ok := sm.queued[key]; ok {
		return nil
	}
	sm.queued[key] = struct{}{}
	sm.requests.EnqueueGrow(key)
	return nil
}

// collect appends key to batch after its dependencies. Must hold sm.mu.
func (sm *StreamingManager) collect(r *nanite.Resources, key pageKey, scheduled map[pageKey]bool, batch *[]pageKey) {
	if scheduled[key] || r.IsRootPage(key.page) {
		return
	}
	if _, ok := sm.resident[key]; ok {
		return
	}
	scheduled[key] = true
	for _, dep := range r.Dependencies(key.page) {
		sm.collect(r, pageKey{key.resource, dep}, scheduled, batch)
	}
	*batch = append(*batch, key)
}

/**
 * @brief Streams in the requested pages, dependencies first. At most
 * MaxResidentPages pages are streamed per call. Pages are decoded on the job
 * system; the oldest streamed pages no resident page depends on are evicted
 * once more than MaxResidentPages are resident.
 * @returns The number of pages made resident.
 */
func (sm *StreamingManager) Update() (int, error) {
	sm.mu.Lock()
	var batch []pageKey
	scheduled := map[pageKey]bool{}
	for !sm.requests.IsEmpty() {
		key, err := sm.requests.Dequeue()
		if err != nil {
			break
		}
		delete(sm.queued, key)
		r, ok := sm.resources[key.resource]
		if !ok {
			continue
		}
		sm.collect(r, key, scheduled, &batch)
	}
	// The batch is ordered dependencies first, so any prefix is self contained.
	if uint32(len(batch)) > sm.config.MaxResidentPages {
		core.LogDebug("streaming %d of %d requested pages, the rest exceed the resident budget", sm.config.MaxResidentPages, len(batch))
		batch = batch[:sm.config.MaxResidentPages]
	}
	owners := make([]*nanite.Resources, len(batch))
	for i, key := range batch {
		owners[i] = sm.resources[key.resource]
	}
	sm.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	pages := make([]*nanite.Page, len(batch))
	errs := make([]error, len(batch))
	tasks := make([]*Task, 0, len(batch))
	for i := range batch {
		decode := func() error {
			p, err := owners[i].DecodePage(batch[i].page)
			pages[i], errs[i] = p, err
			return err
		}
		if sm.jobs == nil {
			_ = decode()
			continue
		}
		tasks = append(tasks, sm.jobs.Submit(metadata.JobTask{
			Name:    "DecodeNanitePage",
			JobType: metadata.JOB_TYPE_RESOURCE_LOAD,
			OnStart: decode,
		}))
	}
	for _, t := range tasks {
		_ = t.Wait()
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	var firstErr error
	loaded := 0
	for i, key := range batch {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d of resource %d: %w", key.page, key.resource, errs[i])
			}
			continue
		}
		// Removed while decoding.
		if sm.resources[key.resource] != owners[i] {
			continue
		}
		sm.resident[key] = pages[i]
		sm.fifo = append(sm.fifo, key)
		owners[i].MarkStreaming()
		loaded++
	}
	sm.loaded += uint64(loaded)

	sm.evict()
	return loaded, firstErr
}

// pinnedPages returns the streamed pages another resident page depends on. Must hold sm.mu.
func (sm *StreamingManager) pinnedPages() map[pageKey]bool {
	pinned := make(map[pageKey]bool)
	for key := range sm.resident {
		r, ok := sm.resources[key.resource]
		if !ok {
			continue
		}
		for _, dep := range r.Dependencies(key.page) {
			pinned[pageKey{key.resource, dep}] = true
		}
	}
	return pinned
}

/**
 * @brief Drops the oldest streamed pages until the budget holds. A page is only
 * evicted once no resident page depends on it. Must hold sm.mu.
 */
func (sm *StreamingManager) evict() {
	for uint32(len(sm.fifo)) > sm.config.MaxResidentPages {
		pinned := sm.pinnedPages()
		victim := -1
		for i, key := range sm.fifo {
			if !pinned[key] {
				victim = i
				break
			}
		}
		// Only a dependency cycle pins every page.
		if !core.Ensure(victim >= 0, "every one of %d resident pages is a dependency", len(sm.fifo)) {
			return
		}
		key := sm.fifo[victim]
		sm.fifo = append(sm.fifo[:victim], sm.fifo[victim+1:]...)
		delete(sm.resident, key)
		sm.evicted++
	}
}

func (sm *StreamingManager) IsPageResident(r *nanite.Resources, page uint32) bool {
	id, ok := r.RuntimeResourceID()
	if !ok {
		return false
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	key := pageKey{id, page}
	if _, ok := sm.rootPages[key]; ok {
		return true
	}
	_, ok = sm.resident[key]
	return ok
}

/**
 * @brief Returns a resident page, root or streamed.
 */
func (sm *StreamingManager) ResidentPage(r *nanite.Resources, page uint32) (*nanite.Page, bool) {
	id, ok := r.RuntimeResourceID()
	if !ok {
		return nil, false
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	key := pageKey{id, page}
	if p, ok := sm.rootPages[key]; ok {
		return p, true
	}
	p, ok := sm.resident[key]
	return p, ok
}

// NumResidentPages counts streamed pages only; root pages are always resident.
func (sm *StreamingManager) NumResidentPages() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.resident)
}

func (sm *StreamingManager) NumRegistered() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.resources)
}

// Stats returns how many pages were streamed in and evicted so far.
func (sm *StreamingManager) Stats() (loaded, evicted uint64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.loaded, sm.evicted
}

func (sm *StreamingManager) Shutdown() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if n := len(sm.resources); n > 0 {
		core.LogWarn("streaming manager shutting down with %d registered resources", n)
	}
	sm.resident = make(map[pageKey]*nanite.Page)
	sm.rootPages = make(map[pageKey]*nanite.Page)
	sm.fifo = nil
	return nil
}
