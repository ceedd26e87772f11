package instancing

import (
	"bytes"
	"testing"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/math"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTransform has rows and origin that are exact in half precision.
func testTransform(i int) math.Mat4 {
	m := math.NewMat4Scale(math.NewVec3(1+float32(i)*0.5, 2, 0.25))
	return m.WithOrigin(math.NewVec3(float32(i)*10, 3.5, -7))
}

func populatedStore(t *testing.T, n, numCustom int, half, authoring bool) *StaticMeshInstanceData {
	t.Helper()
	d := NewStaticMeshInstanceData(half, authoring)
	d.AllocateInstances(n, numCustom, RESIZE_FLAGS_NONE, true)
	for i := 0; i < n; i++ {
		d.SetInstance(i, testTransform(i), float32(i)*0.125, math.NewVec2(0.5, -0.5), math.NewVec2(0.25, 1))
		for c := 0; c < numCustom; c++ {
			d.SetInstanceCustomData(i, c, float32(i*10+c))
		}
	}
	return d
}

func TestSlackCapacityIsMonotonic(t *testing.T) {
	d := NewStaticMeshInstanceData(false, true)
	highWater := 0
	reallocations := 0
	for n := 1; n <= 200; n++ {
		before := d.Capacity()
		d.AllocateInstances(n, 2, RESIZE_FLAGS_ALLOW_SLACK, false)
		require.GreaterOrEqual(t, d.Capacity(), highWater)
		require.GreaterOrEqual(t, d.Capacity(), n)
		require.Len(t, d.customData, n*2)
		if d.Capacity() != before {
			reallocations++
		}
		highWater = d.Capacity()
	}
	assert.Less(t, reallocations, 20)

	// Shrinking without permission keeps the reservation.
	d.AllocateInstances(10, 2, RESIZE_FLAGS_NONE, false)
	assert.Equal(t, highWater, d.Capacity())
	assert.Equal(t, 10, d.NumInstances())
	d.AllocateInstances(10, 2, RESIZE_FLAGS_NONE, true)
	assert.Equal(t, 10, d.Capacity())
}

func TestCookedStoreNeverAllocatesSlack(t *testing.T) {
	d := NewStaticMeshInstanceData(false, false)
	for n := 1; n <= 20; n++ {
		d.AllocateInstances(n, 0, RESIZE_FLAGS_ALLOW_SLACK, false)
		assert.Equal(t, n, d.Capacity())
	}
}

func TestAllocatePreservesContent(t *testing.T) {
	d := populatedStore(t, 4, 2, false, true)
	d.AllocateInstances(40, 3, RESIZE_FLAGS_ALLOW_SLACK, false)

	for i := 0; i < 4; i++ {
		assert.Equal(t, testTransform(i), d.GetInstanceTransform(i))
		assert.Equal(t, float32(i)*0.125, d.GetInstanceRandomID(i))
		assert.Equal(t, float32(i*10+1), d.GetInstanceCustomData(i, 1))
		assert.Equal(t, float32(0), d.GetInstanceCustomData(i, 2))
	}
	assert.Len(t, d.customData, 40*3)
	// New slots start zeroed, which is also the hidden marker.
	assert.True(t, d.IsNullInstance(39))

	d.AllocateInstances(2, 1, RESIZE_FLAGS_NONE, true)
	assert.Len(t, d.customData, 2)
	assert.Equal(t, float32(10), d.GetInstanceCustomData(1, 0))
	assert.False(t, d.IsValidIndex(2))
}

func TestRegrowWithinCapacityClearsOldSlots(t *testing.T) {
	d := populatedStore(t, 4, 1, false, true)
	d.AllocateInstances(2, 1, RESIZE_FLAGS_NONE, false)
	d.AllocateInstances(4, 1, RESIZE_FLAGS_NONE, false)
	assert.True(t, d.IsNullInstance(3))
	assert.Equal(t, float32(0), d.GetInstanceCustomData(3, 0))
}

func TestNullifyHidesWithoutShrinking(t *testing.T) {
	d := populatedStore(t, 3, 0, false, false)
	d.NullifyInstance(1)
	assert.True(t, d.IsNullInstance(1))
	assert.True(t, d.GetInstanceTransform(1).IsZeroScale())
	assert.Equal(t, 3, d.NumInstances())
	assert.Equal(t, 2, d.NumLiveInstances())
	// The random id survives.
	assert.Equal(t, float32(0.125), d.GetInstanceRandomID(1))
}

func TestHalfFloatTransforms(t *testing.T) {
	d := populatedStore(t, 3, 0, true, false)
	assert.Equal(t, 24, d.TransformStride())
	for i := 0; i < 3; i++ {
		assert.Equal(t, testTransform(i), d.GetInstanceTransform(i))
	}
	assert.Len(t, d.TransformBytes(), 3*24)

	d.ConvertToFullFloat()
	assert.False(t, d.UsesHalfFloat())
	assert.Equal(t, 48, d.TransformStride())
	for i := 0; i < 3; i++ {
		assert.Equal(t, testTransform(i), d.GetInstanceTransform(i))
	}
}

func TestLightmapDataIsSNorm(t *testing.T) {
	d := populatedStore(t, 1, 0, false, false)
	d.SetInstanceLightMapData(0, math.NewVec2(0.5, 3), math.NewVec2(-1, 0))
	lm, sm := d.GetInstanceLightMapData(0)
	assert.InDelta(t, 0.5, lm.X, 1e-4)
	assert.Equal(t, float32(1), lm.Y)
	assert.Equal(t, float32(-1), sm.X)
	assert.Equal(t, float32(0), sm.Y)
	assert.Len(t, d.LightmapBytes(), INSTANCE_LIGHTMAP_STRIDE)
}

func TestEditorDataOnlyOnAuthoringStores(t *testing.T) {
	authoring := populatedStore(t, 2, 0, false, true)
	authoring.SetInstanceEditorData(1, 0xABCDEF, true)
	color, selected := authoring.GetInstanceEditorData(1)
	assert.Equal(t, uint32(0xABCDEF), color)
	assert.True(t, selected)

	cooked := populatedStore(t, 2, 0, false, false)
	cooked.SetInstanceEditorData(1, 0xABCDEF, true)
	_, selected = cooked.GetInstanceEditorData(1)
	assert.False(t, selected)
}

func TestSwapInstance(t *testing.T) {
	d := populatedStore(t, 3, 2, true, true)
	d.SwapInstance(0, 2)
	assert.Equal(t, testTransform(2), d.GetInstanceTransform(0))
	assert.Equal(t, testTransform(0), d.GetInstanceTransform(2))
	assert.Equal(t, float32(21), d.GetInstanceCustomData(0, 1))
	assert.Equal(t, float32(0.25), d.GetInstanceRandomID(0))
}

func TestSerializeTranscodesHalfFloat(t *testing.T) {
	d := populatedStore(t, 5, 2, true, true)

	var withHalf bytes.Buffer
	require.NoError(t, d.Serialize(&withHalf, metadata.TargetPlatform{Name: "desktop", SupportsHalfFloatVertexFormat: true}))
	loaded, err := DeserializeStaticMeshInstanceData(&withHalf)
	require.NoError(t, err)
	assert.True(t, loaded.UsesHalfFloat())
	assert.False(t, loaded.IsAuthoring())

	var noHalf bytes.Buffer
	require.NoError(t, d.Serialize(&noHalf, metadata.TargetPlatform{Name: "mobile"}))
	transcoded, err := DeserializeStaticMeshInstanceData(&noHalf)
	require.NoError(t, err)
	assert.False(t, transcoded.UsesHalfFloat())
	// The source store is untouched.
	assert.True(t, d.UsesHalfFloat())

	for _, out := range []*StaticMeshInstanceData{loaded, transcoded} {
		require.Equal(t, 5, out.NumInstances())
		require.Equal(t, 2, out.NumCustomDataFloats())
		for i := 0; i < 5; i++ {
			assert.Equal(t, d.GetInstanceTransform(i), out.GetInstanceTransform(i))
			assert.Equal(t, d.GetInstanceRandomID(i), out.GetInstanceRandomID(i))
			assert.Equal(t, d.GetInstanceCustomData(i, 1), out.GetInstanceCustomData(i, 1))
			lm0, sm0 := d.GetInstanceLightMapData(i)
			lm1, sm1 := out.GetInstanceLightMapData(i)
			assert.Equal(t, lm0, lm1)
			assert.Equal(t, sm0, sm1)
		}
	}
}

func TestDeserializeRejectsOtherResources(t *testing.T) {
	d := populatedStore(t, 1, 0, false, false)
	var buf bytes.Buffer
	require.NoError(t, d.Serialize(&buf, metadata.TargetPlatform{}))

	data := buf.Bytes()
	corrupt := append([]byte(nil), data...)
	corrupt[1] ^= 0xFF
	_, err := DeserializeStaticMeshInstanceData(bytes.NewReader(corrupt))
	assert.ErrorIs(t, err, core.ErrBadMagic)

	future := append([]byte(nil), data...)
	future[5] = INSTANCE_DATA_VERSION + 1
	_, err = DeserializeStaticMeshInstanceData(bytes.NewReader(future))
	assert.ErrorIs(t, err, core.ErrUnsupportedVersion)
}
