package systems

import (
	"testing"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/nanite"
	"github.com/spaghettifunk/instancer/engine/renderer"
	"github.com/spaghettifunk/instancer/engine/renderer/hostmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainResources builds n pages where page i>0 depends on page i-1.
func chainResources(t *testing.T, n int) *nanite.Resources {
	t.Helper()
	b := nanite.NewResourceBuilder()
	for i := 0; i < n; i++ {
		var c nanite.PackedCluster
		c.SetNumVerts(uint32(i + 1))
		var deps []uint32
		if i > 0 {
			deps = []uint32{uint32(i - 1)}
		}
		b.AddPage([]nanite.PackedCluster{c}, nil, deps, []byte{byte(i)})
	}
	r, err := b.Build()
	require.NoError(t, err)
	return r
}

func newTestStreaming(t *testing.T, maxPages uint32) (*StreamingManager, *JobSystem) {
	t.Helper()
	js, err := NewJobSystem(2, 8)
	require.NoError(t, err)
	sm, err := NewStreamingManager(StreamingManagerConfig{MaxResidentPages: maxPages, RequestQueueSize: 2}, js)
	require.NoError(t, err)
	return sm, js
}

func TestStreamingManagerRejectsZeroBudget(t *testing.T) {
	_, err := NewStreamingManager(StreamingManagerConfig{}, nil)
	assert.Error(t, err)
}

func TestRegistrationThroughRenderThread(t *testing.T) {
	sm, js := newTestStreaming(t, 8)
	defer js.Shutdown()
	rt := renderer.NewRenderThread(hostmem.New(), 4)
	defer rt.Shutdown()

	a := chainResources(t, 3)
	b := chainResources(t, 2)
	require.NoError(t, a.InitResources(rt, sm))
	require.NoError(t, b.InitResources(rt, sm))
	rt.Flush()

	assert.Equal(t, 2, sm.NumRegistered())
	idA, ok := a.RuntimeResourceID()
	require.True(t, ok)
	idB, ok := b.RuntimeResourceID()
	require.True(t, ok)
	assert.NotEqual(t, idA, idB)

	offA, _ := a.HierarchyOffset()
	offB, _ := b.HierarchyOffset()
	assert.Equal(t, uint32(0), offA)
	assert.Equal(t, uint32(len(a.HierarchyNodes)), offB)

	// Root page is resident as soon as the resource is registered.
	assert.True(t, sm.IsPageResident(a, 0))
	assert.False(t, sm.IsPageResident(a, 1))

	require.NoError(t, a.ReleaseResources(rt, sm))
	rt.Flush()
	assert.Equal(t, 1, sm.NumRegistered())
	_, ok = a.RuntimeResourceID()
	assert.False(t, ok)
	assert.Equal(t, nanite.RESOURCE_STATE_RELEASED, a.State())
}

func TestRequestPageErrors(t *testing.T) {
	sm, js := newTestStreaming(t, 8)
	defer js.Shutdown()

	stripped, err := nanite.NewResourceBuilder().Build()
	require.NoError(t, err)
	assert.ErrorIs(t, sm.RequestPage(stripped, 0), core.ErrResourceStripped)

	r := chainResources(t, 3)
	assert.ErrorIs(t, sm.RequestPage(r, 1), core.ErrResourceNotRegistered)

	sm.Add(r)
	assert.ErrorIs(t, sm.RequestPage(r, 3), core.ErrPageOutOfRange)
	assert.NoError(t, sm.RequestPage(r, 0))
}

func TestUpdateLoadsDependenciesFirst(t *testing.T) {
	sm, js := newTestStreaming(t, 8)
	defer js.Shutdown()

	r := chainResources(t, 5)
	sm.Add(r)
	require.NoError(t, sm.RequestPage(r, 4))
	// Duplicate requests collapse into one.
	require.NoError(t, sm.RequestPage(r, 4))

	loaded, err := sm.Update()
	require.NoError(t, err)
	assert.Equal(t, 4, loaded)
	assert.Equal(t, []pageKey{{0, 1}, {0, 2}, {0, 3}, {0, 4}}, sm.fifo)
	assert.Equal(t, nanite.RESOURCE_STATE_STREAMING, r.State())

	page, ok := sm.ResidentPage(r, 4)
	require.True(t, ok)
	assert.Equal(t, []byte{4}, page.GeometryData)
	assert.Equal(t, uint32(5), page.Clusters[0].GetNumVerts())

	// Nothing left to do.
	loaded, err = sm.Update()
	require.NoError(t, err)
	assert.Equal(t, 0, loaded)
}

// requireDependenciesResident fails when a resident streamed page of r misses a dependency.
func requireDependenciesResident(t *testing.T, sm *StreamingManager, r *nanite.Resources) {
	t.Helper()
	for page := uint32(0); page < r.NumPages(); page++ {
		if !sm.IsPageResident(r, page) {
			continue
		}
		for _, dep := range r.Dependencies(page) {
			require.True(t, sm.IsPageResident(r, dep), "page %d is resident without its dependency %d", page, dep)
		}
	}
}

func TestUpdateStreamsWithinBudget(t *testing.T) {
	sm, js := newTestStreaming(t, 2)
	defer js.Shutdown()

	r := chainResources(t, 5)
	sm.Add(r)
	require.NoError(t, sm.RequestPage(r, 4))
	loaded, err := sm.Update()
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	assert.Equal(t, 2, sm.NumResidentPages())
	assert.True(t, sm.IsPageResident(r, 1))
	assert.True(t, sm.IsPageResident(r, 2))
	assert.False(t, sm.IsPageResident(r, 3))
	assert.False(t, sm.IsPageResident(r, 4))
	// Root pages are never evicted.
	assert.True(t, sm.IsPageResident(r, 0))
	requireDependenciesResident(t, sm, r)

	_, evicted := sm.Stats()
	assert.Equal(t, uint64(0), evicted)
}

func TestSinglePageBudgetKeepsDeepestDependency(t *testing.T) {
	sm, js := newTestStreaming(t, 1)
	defer js.Shutdown()

	r := chainResources(t, 4)
	sm.Add(r)
	require.NoError(t, sm.RequestPage(r, 3))
	_, err := sm.Update()
	require.NoError(t, err)

	assert.Equal(t, 1, sm.NumResidentPages())
	assert.True(t, sm.IsPageResident(r, 1))
	assert.False(t, sm.IsPageResident(r, 2))
	assert.False(t, sm.IsPageResident(r, 3))
	requireDependenciesResident(t, sm, r)
}

func TestEvictionSkipsPinnedPages(t *testing.T) {
	sm, js := newTestStreaming(t, 2)
	defer js.Shutdown()

	a := chainResources(t, 3)
	b := chainResources(t, 2)
	sm.Add(a)
	sm.Add(b)
	require.NoError(t, sm.RequestPage(a, 2))
	_, err := sm.Update()
	require.NoError(t, err)
	require.True(t, sm.IsPageResident(a, 2))

	require.NoError(t, sm.RequestPage(b, 1))
	loaded, err := sm.Update()
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)

	// a/1 is the oldest page but a/2 still needs it.
	assert.True(t, sm.IsPageResident(a, 1))
	assert.False(t, sm.IsPageResident(a, 2))
	assert.True(t, sm.IsPageResident(b, 1))
	requireDependenciesResident(t, sm, a)
	requireDependenciesResident(t, sm, b)

	totalLoaded, evicted := sm.Stats()
	assert.Equal(t, uint64(3), totalLoaded)
	assert.Equal(t, uint64(1), evicted)
}

func TestRemoveDropsPendingRequests(t *testing.T) {
	sm, js := newTestStreaming(t, 8)
	defer js.Shutdown()

	a := chainResources(t, 3)
	b := chainResources(t, 3)
	sm.Add(a)
	sm.Add(b)
	require.NoError(t, sm.RequestPage(a, 2))
	require.NoError(t, sm.RequestPage(b, 1))
	sm.Remove(a)

	loaded, err := sm.Update()
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.True(t, sm.IsPageResident(b, 1))
	assert.False(t, sm.IsPageResident(a, 2))

	// The freed id is handed to the next resource.
	c := chainResources(t, 2)
	sm.Add(c)
	id, _ := c.RuntimeResourceID()
	assert.Equal(t, uint32(0), id)
	assert.False(t, sm.IsPageResident(c, 1))
}
