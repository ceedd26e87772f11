package testbed

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/instancer/engine"
	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/instancing"
	"github.com/spaghettifunk/instancer/engine/math"
	"github.com/spaghettifunk/instancer/engine/nanite"
	"github.com/spaghettifunk/instancer/engine/renderer"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

const (
	forestName   = "forest"
	treeMeshName = "tree"
	gridSize     = 16
	gridSpacing  = 4.0
	// Instances churned every update.
	churnPerFrame = 3
	// Frames between scene proxy rebuilds.
	proxyInterval = 30
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	forest   *instancing.InstancedStaticMeshComponent
	tree     *nanite.Resources
	treeRes  *metadata.Resource
	proxy    *instancing.InstancedStaticMeshSceneProxy
	random   *math.RandomStream
	frame    uint64
	elapsed  float64
	visible  int
	restored bool
}

func NewTestGame(config *engine.ApplicationConfig) (*TestGame, error) {
	if config == nil {
		config = engine.DefaultApplicationConfig()
	}
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				random: math.NewRandomStream(config.Instancing.RandomSeed),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	state := g.state()

	tree, err := g.loadTreeMesh()
	if err != nil {
		return err
	}
	state.tree = tree
	if err := tree.InitResources(g.RenderThread, g.SystemManager.StreamingManager()); err != nil {
		return err
	}

	config := g.ApplicationConfig.ComponentConfig(forestName)
	config.MeshBounds = math.NewBoxSphereBounds(math.NewVec3(0, 0, 2), math.NewVec3(1, 1, 2), 2.5)
	config.Nanite = tree
	state.forest = instancing.NewInstancedStaticMeshComponent(config, g.RenderThread, g.SystemManager.JobSystem(), g.Events)
	state.forest.SetNumCustomDataFloats(2)

	g.Events.Register(core.EVENT_CODE_INSTANCE_RELOCATED, g, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		core.LogDebug("instance %d moved to %d", data.Data.I32[0], data.Data.I32[1])
		return false
	})

	xforms := g.restoreForest()
	if len(xforms) == 0 {
		xforms = plantGrid(state.random)
	}
	indices := state.forest.AddInstances(xforms)
	for _, i := range indices {
		state.forest.SetCustomData(i, []float32{state.random.Fraction(), float32(i % 4)})
		state.forest.SetLightMapData(i, math.NewVec2(float32(i%gridSize)/gridSize, float32(i/gridSize)/gridSize))
	}
	if config.Authoring {
		state.forest.SelectInstance(true, 0, min(4, len(indices)))
	}
	if err := state.forest.FlushInstanceUpdateCommands(false); err != nil {
		return err
	}
	core.LogInfo("planted %d trees (%d render slots)", state.forest.GetInstanceCount(), state.forest.NumRenderSlots())
	return nil
}

// loadTreeMesh returns the cooked tree mesh from the asset directory, or a
// procedurally built one when none was cooked.
func (g *TestGame) loadTreeMesh() (*nanite.Resources, error) {
	res, err := g.AssetManager.LoadAsset(treeMeshName, metadata.ResourceTypeNanite, nil)
	if err == nil {
		g.state().treeRes = res
		return res.Data.(*nanite.Resources), nil
	}
	core.LogDebug("no cooked tree mesh (%s), building one", err.Error())

	b := nanite.NewResourceBuilder().
		WithRootPages(1).
		WithInputCounts(96, 64, 1, 1)
	var pages []uint32
	for lod := 0; lod < 4; lod++ {
		var cluster nanite.PackedCluster
		cluster.SetNumVerts(uint32(64 >> lod))
		cluster.SetNumTris(uint32(96 >> lod))
		cluster.SetLODBounds(math.Sphere{Center: math.NewVec3(0, 0, 2), W: 2.5})
		cluster.SetLODErrorAndEdgeLength(float32(lod)*0.25, 1)
		var deps []uint32
		// Each detail level refines the previous one.
		if lod > 1 {
			deps = []uint32{pages[lod-1]}
		}
		pages = append(pages, b.AddPage([]nanite.PackedCluster{cluster}, nil, deps, make([]byte, 16*(4-lod))))
	}
	return b.Build()
}

// restoreForest returns the transforms saved by a previous run, if any.
func (g *TestGame) restoreForest() []math.Mat4 {
	res, err := g.AssetManager.LoadAsset(forestName, metadata.ResourceTypeInstanceData, nil)
	if err != nil {
		return nil
	}
	defer g.AssetManager.UnloadAsset(res)

	store := res.Data.(*instancing.StaticMeshInstanceData)
	xforms := make([]math.Mat4, 0, store.NumInstances())
	for i := 0; i < store.NumInstances(); i++ {
		if store.IsNullInstance(i) {
			continue
		}
		xforms = append(xforms, store.GetInstanceTransform(i))
	}
	g.state().restored = true
	core.LogInfo("restored %d trees from %s", len(xforms), res.FullPath)
	return xforms
}

func plantGrid(random *math.RandomStream) []math.Mat4 {
	xforms := make([]math.Mat4, 0, gridSize*gridSize)
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			xforms = append(xforms, randomTree(random, float32(x)*gridSpacing, float32(y)*gridSpacing))
		}
	}
	return xforms
}

func randomTree(random *math.RandomStream, x, y float32) math.Mat4 {
	scale := random.FloatInRange(0.75, 1.25)
	tr := math.TransformFromPositionRotationScale(
		math.NewVec3(x+random.FloatInRange(-1, 1), y+random.FloatInRange(-1, 1), 0),
		math.NewQuatFromAxisAngle(math.NewVec3(0, 0, 1), math.DegToRad(random.FloatInRange(0, 360)), true),
		math.NewVec3(scale, scale, scale),
	)
	return tr.GetLocal()
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	state.frame++
	state.elapsed += deltaTime
	forest := state.forest

	// Sway a few trees.
	for i := 0; i < churnPerFrame && forest.GetInstanceCount() > 0; i++ {
		index := state.random.IntInRange(0, forest.GetInstanceCount()-1)
		xform, _ := forest.GetInstanceTransform(index)
		sway := math.NewMat4EulerZ(0.01 * state.random.FloatInRange(-1, 1))
		forest.UpdateInstanceTransform(index, sway.Mul(xform), false)
		forest.SetCustomDataValue(index, 0, float32(state.elapsed))
	}

	// Fell some and plant new ones.
	if state.frame%10 == 0 && forest.GetInstanceCount() > churnPerFrame {
		var felled []int
		for i := 0; i < churnPerFrame; i++ {
			felled = append(felled, state.random.IntInRange(0, forest.GetInstanceCount()-1))
		}
		forest.RemoveInstances(felled)
		for i := 0; i < churnPerFrame; i++ {
			x := state.random.FloatInRange(0, gridSize*gridSpacing)
			y := state.random.FloatInRange(0, gridSize*gridSpacing)
			index := forest.AddInstance(randomTree(state.random, x, y))
			forest.SetCustomData(index, []float32{0, 1})
		}
	}

	// Ask for the detail pages of the tree mesh.
	streaming := g.SystemManager.StreamingManager()
	for page := uint32(0); page < state.tree.NumPages(); page++ {
		err := streaming.RequestPage(state.tree, page)
		if errors.Is(err, core.ErrResourceNotRegistered) || errors.Is(err, core.ErrResourceStripped) {
			break
		}
		if err != nil {
			return err
		}
	}

	return forest.FlushInstanceUpdateCommands(false)
}

func (g *TestGame) Render(deltaTime float64) error {
	state := g.state()
	if state.frame%proxyInterval != 1 {
		return nil
	}
	if state.proxy != nil {
		state.proxy.Release()
	}
	proxy, err := state.forest.CreateSceneProxy()
	if err != nil {
		return err
	}
	state.proxy = proxy
	if err := g.RenderThread.EnqueueRenderCommand("CreateForestProxyResources", func(renderer.RendererBackend) {
		proxy.CreateRenderThreadResources()
	}); err != nil {
		return err
	}
	proxy.ResolveNaniteHierarchyOffset()

	state.visible = 0
	for _, bounds := range proxy.RenderData().GetPerInstanceBounds() {
		if bounds.W > 0 {
			state.visible++
		}
	}
	core.LogDebug("frame %d: %d trees, %d visible of %d slots (%d resident pages)",
		state.frame, state.forest.GetInstanceCount(), state.visible, proxy.NumInstances(), g.SystemManager.StreamingManager().NumResidentPages())
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	state := g.state()

	var errs []error
	if state.proxy != nil {
		state.proxy.Release()
		state.proxy = nil
	}
	if err := g.saveForest(); err != nil {
		errs = append(errs, err)
	}
	state.forest.Destroy()

	if err := state.tree.ReleaseResources(g.RenderThread, g.SystemManager.StreamingManager()); err != nil {
		errs = append(errs, err)
	}
	if state.treeRes != nil {
		if err := g.AssetManager.UnloadAsset(state.treeRes); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// saveForest writes the render store of the forest next to the other assets.
func (g *TestGame) saveForest() error {
	rd := g.state().forest.RenderData()
	if rd == nil {
		return nil
	}
	// The store is only stable once the render thread caught up.
	g.RenderThread.Flush()
	store := rd.InstanceBuffer().CPUData()
	if store == nil {
		core.LogWarn("forest has no CPU copy of its instances, not saving")
		return nil
	}

	path := filepath.Join(g.ApplicationConfig.Streaming.AssetDir, forestName+".ismdata")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := store.Serialize(f, g.ApplicationConfig.TargetPlatform()); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	core.LogInfo("saved %d trees to %s", store.NumLiveInstances(), path)
	return nil
}
