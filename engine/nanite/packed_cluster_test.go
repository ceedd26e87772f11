package nanite

import (
	"testing"

	"github.com/spaghettifunk/instancer/engine/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutHasNoOverlaps(t *testing.T) {
	require.NoError(t, ValidateLayout(ClusterLayout()))
	require.NoError(t, ValidateLayout(HierarchyLayout()))

	bad := []BitField{ClusterNumVerts, {"Wide", ClusterNumVerts.Word, 8, 4}}
	assert.Error(t, ValidateLayout(bad))
	assert.Error(t, ValidateLayout([]BitField{{"TooWide", 0, 30, 4}}))
}

func TestNumVertsPositionOffsetRoundTrip(t *testing.T) {
	verts := []uint32{0, 1, 2, 127, 128, 255, 256, 300, ClusterNumVerts.Max()}
	offsets := []uint32{0, 1, 0x155555, 0x2AAAAA, 1 << 22, ClusterPositionOffset.Max()}
	for _, v := range verts {
		for _, o := range offsets {
			var c PackedCluster
			c.SetNumVerts(v)
			c.SetPositionOffset(o)
			require.Equal(t, v, c.GetNumVerts())
			require.Equal(t, o, c.GetPositionOffset())

			// Rewriting one field leaves the other untouched.
			c.SetNumVerts(ClusterNumVerts.Max() - v)
			require.Equal(t, o, c.GetPositionOffset())
			c.SetPositionOffset(ClusterPositionOffset.Max() - o)
			require.Equal(t, ClusterNumVerts.Max()-v, c.GetNumVerts())
		}
	}
}

func TestEveryFieldIsIsolated(t *testing.T) {
	for _, f := range ClusterLayout() {
		var c PackedCluster
		for i := range c.Words {
			c.Words[i] = 0xFFFFFFFF
		}
		c.set(f, 0)
		assert.Equal(t, uint32(0), c.get(f), f.Name)
		for _, other := range ClusterLayout() {
			if other.Name == f.Name {
				continue
			}
			assert.Equal(t, other.Max(), c.get(other), "%s perturbed by %s", other.Name, f.Name)
		}
	}
}

func TestClusterAccessors(t *testing.T) {
	var c PackedCluster
	c.SetNumTris(128)
	c.SetIndexOffset(0xABCDEF)
	c.SetColorBits(1, 2, 3, 4)
	c.SetGroupIndex(0xBEEF)
	c.SetBitsPerIndex(7)
	c.SetPosPrecision(-3)
	c.SetPosBits([3]uint32{10, 20, 31})
	c.SetPosStart([3]int32{-5, 0, 1 << 20})
	c.SetLODBounds(math.Sphere{Center: math.NewVec3(1, 2, 3), W: 4})
	c.SetBoxBoundsCenter(math.NewVec3(5, 6, 7))
	c.SetBoxBoundsExtent(math.NewVec3(0.5, 0.25, 2))
	c.SetLODErrorAndEdgeLength(0.125, 3)
	c.SetFlags(NANITE_CLUSTER_FLAG_ROOT_LEAF)
	c.SetAttributeOffset(1234)
	c.SetBitsPerAttribute(1000)
	c.SetDecodeInfoOffset(77)
	c.SetNumUVs(2)
	c.SetColorMode(3)
	c.SetUVPrec(1, 200)
	c.SetPackedMaterialInfo(42)

	decoded, err := UnmarshalPackedCluster(c.Marshal())
	require.NoError(t, err)
	assert.Equal(t, c, decoded)

	assert.Equal(t, uint32(128), decoded.GetNumTris())
	assert.Equal(t, uint32(0xABCDEF), decoded.GetIndexOffset())
	r, g, b, a := decoded.GetColorBits()
	assert.Equal(t, []uint32{1, 2, 3, 4}, []uint32{r, g, b, a})
	assert.Equal(t, uint32(0xBEEF), decoded.GetGroupIndex())
	assert.Equal(t, uint32(7), decoded.GetBitsPerIndex())
	assert.Equal(t, int32(-3), decoded.GetPosPrecision())
	assert.Equal(t, [3]uint32{10, 20, 31}, decoded.GetPosBits())
	assert.Equal(t, [3]int32{-5, 0, 1 << 20}, decoded.GetPosStart())
	assert.Equal(t, math.Sphere{Center: math.NewVec3(1, 2, 3), W: 4}, decoded.GetLODBounds())
	assert.Equal(t, math.NewVec3(5, 6, 7), decoded.GetBoxBoundsCenter())
	assert.Equal(t, math.NewVec3(0.5, 0.25, 2), decoded.GetBoxBoundsExtent())
	lodError, edge := decoded.GetLODErrorAndEdgeLength()
	assert.Equal(t, float32(0.125), lodError)
	assert.Equal(t, float32(3), edge)
	assert.Equal(t, NANITE_CLUSTER_FLAG_ROOT_LEAF, decoded.GetFlags())
	assert.Equal(t, uint32(1234), decoded.GetAttributeOffset())
	assert.Equal(t, uint32(1000), decoded.GetBitsPerAttribute())
	assert.Equal(t, uint32(77), decoded.GetDecodeInfoOffset())
	assert.Equal(t, uint32(2), decoded.GetNumUVs())
	assert.Equal(t, uint32(3), decoded.GetColorMode())
	assert.Equal(t, uint32(200), decoded.GetUVPrec(1))
	assert.Equal(t, uint32(0), decoded.GetUVPrec(0))
	assert.Equal(t, uint32(42), decoded.GetPackedMaterialInfo())
	assert.Len(t, c.Marshal(), c.Size())
}

func TestPosPrecisionIsClamped(t *testing.T) {
	var c PackedCluster
	c.SetPosPrecision(100)
	assert.Equal(t, int32(NANITE_MAX_POSITION_PRECISION), c.GetPosPrecision())
	c.SetPosPrecision(-100)
	assert.Equal(t, int32(NANITE_MIN_POSITION_PRECISION), c.GetPosPrecision())
}

func TestHierarchyNodeFields(t *testing.T) {
	n := NewPackedHierarchyNode()
	for c := 0; c < NANITE_MAX_BVH_NODE_FANOUT; c++ {
		assert.True(t, n.IsEmpty(c))
	}
	n.SetChildStartReference(2, 0)
	n.SetPageIndex(2, HierarchyPageIndex.Max())
	n.SetNumPages(2, 5)
	n.SetGroupPartSize(2, 300)
	n.SetLODErrors(2, 0.5, 1.5)
	n.SetLODBounds(2, math.Sphere{Center: math.NewVec3(1, 1, 1), W: 2})
	n.SetBox(2, math.NewVec3(1, 1, 1), math.NewVec3(3, 3, 3))

	decoded, err := UnmarshalPackedHierarchyNode(n.Marshal())
	require.NoError(t, err)
	assert.Len(t, n.Marshal(), NANITE_PACKED_HIERARCHY_NODE_SIZE)
	assert.Equal(t, n, decoded)

	assert.True(t, decoded.IsLeaf(2))
	assert.False(t, decoded.IsLeaf(1))
	assert.Equal(t, HierarchyPageIndex.Max(), decoded.GetPageIndex(2))
	assert.Equal(t, uint32(5), decoded.GetNumPages(2))
	assert.Equal(t, uint32(300), decoded.GetGroupPartSize(2))
	minErr, maxErr := decoded.GetLODErrors(2)
	assert.Equal(t, float32(0.5), minErr)
	assert.Equal(t, float32(1.5), maxErr)
	center, extent := decoded.GetBox(2)
	assert.Equal(t, math.NewVec3(1, 1, 1), center)
	assert.Equal(t, math.NewVec3(3, 3, 3), extent)
}
