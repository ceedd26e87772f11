package nanite

// Layout constants shared with the GPU decode code. Changing a width or an
// offset here requires bumping NANITE_RESOURCE_VERSION.
const (
	NANITE_RESOURCE_VERSION uint8 = 1

	NANITE_MAX_BVH_NODE_FANOUT_BITS = 2
	NANITE_MAX_BVH_NODE_FANOUT      = 1 << NANITE_MAX_BVH_NODE_FANOUT_BITS

	NANITE_MAX_CLUSTERS_PER_PAGE_BITS = 8
	NANITE_MAX_CLUSTERS_PER_PAGE      = 1 << NANITE_MAX_CLUSTERS_PER_PAGE_BITS

	NANITE_MAX_CLUSTERS_PER_GROUP_BITS = 9
	NANITE_MAX_GROUP_PARTS_BITS        = 3
	NANITE_MAX_GROUP_PARTS_MASK        = (1 << NANITE_MAX_GROUP_PARTS_BITS) - 1
	NANITE_MAX_RESOURCE_PAGES_BITS     = 20
	NANITE_MAX_RESOURCE_PAGES          = 1 << NANITE_MAX_RESOURCE_PAGES_BITS

	NANITE_MAX_CLUSTER_VERTICES_BITS  = 9
	NANITE_MAX_CLUSTER_TRIANGLES_BITS = 8
	NANITE_MAX_POSITION_BITS          = 5
	NANITE_MIN_POSITION_PRECISION     = -8
	NANITE_MAX_POSITION_PRECISION     = 23
	NANITE_MAX_UVS                    = 4

	// Size in bytes of one packed cluster (6 x float4).
	NANITE_PACKED_CLUSTER_SIZE = 96
	// Size in bytes of one packed hierarchy node.
	NANITE_PACKED_HIERARCHY_NODE_SIZE = 208
	// Size in bytes of one page streaming state.
	NANITE_PAGE_STREAMING_STATE_SIZE = 20

	NANITE_ROOT_PAGE_GPU_SIZE      = 32 * 1024
	NANITE_STREAMING_PAGE_GPU_SIZE = 128 * 1024

	NANITE_INVALID_CHILD_REFERENCE uint32 = 0xFFFFFFFF
)

// Page streaming state flags.
const (
	// Page references embedded in the page are stored relative to the page's own index.
	NANITE_PAGE_FLAG_RELATIVE_ENCODING uint8 = 0x1
)

// Cluster flags.
const (
	NANITE_CLUSTER_FLAG_STREAMING_LEAF uint32 = 0x1
	NANITE_CLUSTER_FLAG_ROOT_LEAF      uint32 = 0x2
	NANITE_CLUSTER_FLAG_ROOT_GROUP     uint32 = 0x4
	NANITE_CLUSTER_FLAG_FULL_LEAF      uint32 = 0x8
)

// Resource flags.
const (
	NANITE_RESOURCE_FLAG_HAS_VERTEX_COLOR uint32 = 0x1
	NANITE_RESOURCE_FLAG_HAS_IMPOSTER     uint32 = 0x2
)

// Word indices inside a packed cluster.
const (
	clusterWordNumVertsPositionOffset = iota
	clusterWordNumTrisIndexOffset
	clusterWordColorMin
	clusterWordColorBitsGroupIndex
	clusterWordPosStartX
	clusterWordPosStartY
	clusterWordPosStartZ
	clusterWordBitsPerIndexPrecisionPosBits
	clusterWordLODBoundsX
	clusterWordLODBoundsY
	clusterWordLODBoundsZ
	clusterWordLODBoundsW
	clusterWordBoxCenterX
	clusterWordBoxCenterY
	clusterWordBoxCenterZ
	clusterWordLODErrorAndEdgeLength
	clusterWordBoxExtentX
	clusterWordBoxExtentY
	clusterWordBoxExtentZ
	clusterWordFlags
	clusterWordAttributeOffsetBitsPerAttribute
	clusterWordDecodeInfoOffsetNumUVsColorMode
	clusterWordUVPrec
	clusterWordPackedMaterialInfo

	clusterNumWords
)

// BitField locates one sub-field inside a 32 bit word of a packed record.
type BitField struct {
	Name   string
	Word   int
	Offset uint32
	Width  uint32
}

func (f BitField) mask() uint32 {
	if f.Width >= 32 {
		return 0xFFFFFFFF
	}
	return (uint32(1) << f.Width) - 1
}

// Max is the largest value the field can hold.
func (f BitField) Max() uint32 {
	return f.mask()
}

// Cluster bit fields. Words that hold a single full-width value are not listed.
var (
	ClusterNumVerts       = BitField{"NumVerts", clusterWordNumVertsPositionOffset, 0, NANITE_MAX_CLUSTER_VERTICES_BITS}
	ClusterPositionOffset = BitField{"PositionOffset", clusterWordNumVertsPositionOffset, 9, 23}

	ClusterNumTris     = BitField{"NumTris", clusterWordNumTrisIndexOffset, 0, NANITE_MAX_CLUSTER_TRIANGLES_BITS}
	ClusterIndexOffset = BitField{"IndexOffset", clusterWordNumTrisIndexOffset, 8, 24}

	ClusterColorBitsR = BitField{"ColorBitsR", clusterWordColorBitsGroupIndex, 0, 4}
	ClusterColorBitsG = BitField{"ColorBitsG", clusterWordColorBitsGroupIndex, 4, 4}
	ClusterColorBitsB = BitField{"ColorBitsB", clusterWordColorBitsGroupIndex, 8, 4}
	ClusterColorBitsA = BitField{"ColorBitsA", clusterWordColorBitsGroupIndex, 12, 4}
	ClusterGroupIndex = BitField{"GroupIndex", clusterWordColorBitsGroupIndex, 16, 16}

	ClusterBitsPerIndex = BitField{"BitsPerIndex", clusterWordBitsPerIndexPrecisionPosBits, 0, 4}
	ClusterPosPrecision = BitField{"PosPrecision", clusterWordBitsPerIndexPrecisionPosBits, 4, 5}
	ClusterPosBitsX     = BitField{"PosBitsX", clusterWordBitsPerIndexPrecisionPosBits, 9, NANITE_MAX_POSITION_BITS}
	ClusterPosBitsY     = BitField{"PosBitsY", clusterWordBitsPerIndexPrecisionPosBits, 14, NANITE_MAX_POSITION_BITS}
	ClusterPosBitsZ     = BitField{"PosBitsZ", clusterWordBitsPerIndexPrecisionPosBits, 19, NANITE_MAX_POSITION_BITS}

	ClusterAttributeOffset  = BitField{"AttributeOffset", clusterWordAttributeOffsetBitsPerAttribute, 0, 22}
	ClusterBitsPerAttribute = BitField{"BitsPerAttribute", clusterWordAttributeOffsetBitsPerAttribute, 22, 10}

	ClusterDecodeInfoOffset = BitField{"DecodeInfoOffset", clusterWordDecodeInfoOffsetNumUVsColorMode, 0, 22}
	ClusterNumUVs           = BitField{"NumUVs", clusterWordDecodeInfoOffsetNumUVsColorMode, 22, 3}
	ClusterColorMode        = BitField{"ColorMode", clusterWordDecodeInfoOffsetNumUVsColorMode, 25, 2}

	ClusterUVPrec = [NANITE_MAX_UVS]BitField{
		{"UVPrec0", clusterWordUVPrec, 0, 8},
		{"UVPrec1", clusterWordUVPrec, 8, 8},
		{"UVPrec2", clusterWordUVPrec, 16, 8},
		{"UVPrec3", clusterWordUVPrec, 24, 8},
	}
)

// ClusterLayout lists every packed cluster sub-field.
func ClusterLayout() []BitField {
	out := []BitField{
		ClusterNumVerts, ClusterPositionOffset,
		ClusterNumTris, ClusterIndexOffset,
		ClusterColorBitsR, ClusterColorBitsG, ClusterColorBitsB, ClusterColorBitsA, ClusterGroupIndex,
		ClusterBitsPerIndex, ClusterPosPrecision, ClusterPosBitsX, ClusterPosBitsY, ClusterPosBitsZ,
		ClusterAttributeOffset, ClusterBitsPerAttribute,
		ClusterDecodeInfoOffset, ClusterNumUVs, ClusterColorMode,
	}
	return append(out, ClusterUVPrec[:]...)
}

// Hierarchy node child word: page index, page count and group part size.
var (
	HierarchyGroupPartSize = BitField{"GroupPartSize", 0, 0, NANITE_MAX_CLUSTERS_PER_GROUP_BITS}
	HierarchyNumPages      = BitField{"NumPages", 0, NANITE_MAX_CLUSTERS_PER_GROUP_BITS, NANITE_MAX_GROUP_PARTS_BITS}
	HierarchyPageIndex     = BitField{"PageIndex", 0, NANITE_MAX_CLUSTERS_PER_GROUP_BITS + NANITE_MAX_GROUP_PARTS_BITS, NANITE_MAX_RESOURCE_PAGES_BITS}
)

// HierarchyLayout lists the sub-fields of the packed page word of a hierarchy child.
func HierarchyLayout() []BitField {
	return []BitField{HierarchyGroupPartSize, HierarchyNumPages, HierarchyPageIndex}
}
