package nanite

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/instancer/engine/math"
)

type HierarchyNodeMisc0 struct {
	BoxBoundsCenter math.Vec3
	// Min LOD error in the low half, max parent LOD error in the high half.
	MinLODErrorMaxParentLODError uint32
}

type HierarchyNodeMisc1 struct {
	BoxBoundsExtent math.Vec3
	// Node index for inner children, cluster start for leaves.
	ChildStartReference uint32
}

type HierarchyNodeMisc2 struct {
	ResourcePageIndexNumPagesGroupPartSize uint32
}

/**
 * @brief A BVH node with up to NANITE_MAX_BVH_NODE_FANOUT children. A child with
 * a non zero group part size is a leaf pointing at clusters in a page range.
 */
type PackedHierarchyNode struct {
	LODBounds [NANITE_MAX_BVH_NODE_FANOUT]math.Vec4
	Misc0     [NANITE_MAX_BVH_NODE_FANOUT]HierarchyNodeMisc0
	Misc1     [NANITE_MAX_BVH_NODE_FANOUT]HierarchyNodeMisc1
	Misc2     [NANITE_MAX_BVH_NODE_FANOUT]HierarchyNodeMisc2
}

/**
 * @brief Returns a node whose children are all empty.
 */
func NewPackedHierarchyNode() PackedHierarchyNode {
	var n PackedHierarchyNode
	for i := range n.Misc1 {
		n.Misc1[i].ChildStartReference = NANITE_INVALID_CHILD_REFERENCE
	}
	return n
}

func (n *PackedHierarchyNode) GetLODBounds(child int) math.Sphere {
	b := n.LODBounds[child]
	return math.Sphere{Center: b.ToVec3(), W: b.W}
}

func (n *PackedHierarchyNode) SetLODBounds(child int, s math.Sphere) {
	n.LODBounds[child] = s.Center.ToVec4(s.W)
}

func (n *PackedHierarchyNode) GetBox(child int) (center, extent math.Vec3) {
	return n.Misc0[child].BoxBoundsCenter, n.Misc1[child].BoxBoundsExtent
}

func (n *PackedHierarchyNode) SetBox(child int, center, extent math.Vec3) {
	n.Misc0[child].BoxBoundsCenter = center
	n.Misc1[child].BoxBoundsExtent = extent
}

func (n *PackedHierarchyNode) GetLODErrors(child int) (minLODError, maxParentLODError float32) {
	return math.UnpackHalf2(n.Misc0[child].MinLODErrorMaxParentLODError)
}

func (n *PackedHierarchyNode) SetLODErrors(child int, minLODError, maxParentLODError float32) {
	n.Misc0[child].MinLODErrorMaxParentLODError = math.PackHalf2(minLODError, maxParentLODError)
}

func (n *PackedHierarchyNode) GetChildStartReference(child int) uint32 {
	return n.Misc1[child].ChildStartReference
}

func (n *PackedHierarchyNode) SetChildStartReference(child int, ref uint32) {
	n.Misc1[child].ChildStartReference = ref
}

// GetGroupPartSize reads bits [0, 9) of the child's page word.
func (n *PackedHierarchyNode) GetGroupPartSize(child int) uint32 {
	return getBits(n.Misc2[child].ResourcePageIndexNumPagesGroupPartSize, HierarchyGroupPartSize)
}

func (n *PackedHierarchyNode) SetGroupPartSize(child int, size uint32) {
	setBits(&n.Misc2[child].ResourcePageIndexNumPagesGroupPartSize, HierarchyGroupPartSize, size)
}

// GetNumPages reads bits [9, 12) of the child's page word.
func (n *PackedHierarchyNode) GetNumPages(child int) uint32 {
	return getBits(n.Misc2[child].ResourcePageIndexNumPagesGroupPartSize, HierarchyNumPages)
}

func (n *PackedHierarchyNode) SetNumPages(child int, num uint32) {
	setBits(&n.Misc2[child].ResourcePageIndexNumPagesGroupPartSize, HierarchyNumPages, num)
}

// GetPageIndex reads bits [12, 32) of the child's page word.
func (n *PackedHierarchyNode) GetPageIndex(child int) uint32 {
	return getBits(n.Misc2[child].ResourcePageIndexNumPagesGroupPartSize, HierarchyPageIndex)
}

func (n *PackedHierarchyNode) SetPageIndex(child int, page uint32) {
	setBits(&n.Misc2[child].ResourcePageIndexNumPagesGroupPartSize, HierarchyPageIndex, page)
}

func (n *PackedHierarchyNode) IsEmpty(child int) bool {
	return n.Misc1[child].ChildStartReference == NANITE_INVALID_CHILD_REFERENCE
}

func (n *PackedHierarchyNode) IsLeaf(child int) bool {
	return !n.IsEmpty(child) && n.GetGroupPartSize(child) > 0
}

func (n *PackedHierarchyNode) Size() int {
	return NANITE_PACKED_HIERARCHY_NODE_SIZE
}

func (n *PackedHierarchyNode) Marshal() []byte {
	var buf bytes.Buffer
	buf.Grow(NANITE_PACKED_HIERARCHY_NODE_SIZE)
	// Fixed size struct, bytes.Buffer writes cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, n)
	return buf.Bytes()
}

func UnmarshalPackedHierarchyNode(data []byte) (PackedHierarchyNode, error) {
	var n PackedHierarchyNode
	if len(data) < NANITE_PACKED_HIERARCHY_NODE_SIZE {
		return n, fmt.Errorf("hierarchy node needs %d bytes, got %d", NANITE_PACKED_HIERARCHY_NODE_SIZE, len(data))
	}
	err := binary.Read(bytes.NewReader(data[:NANITE_PACKED_HIERARCHY_NODE_SIZE]), binary.LittleEndian, &n)
	return n, err
}

/**
 * @brief Describes where a page lives on disk and which pages must be resident before it.
 */
type PageStreamingState struct {
	BulkOffset        uint32
	BulkSize          uint32
	PageSize          uint32
	DependenciesStart uint32
	DependenciesNum   uint16
	MaxHierarchyDepth uint8
	Flags             uint8
}

func (s PageStreamingState) IsRelativeEncoded() bool {
	return s.Flags&NANITE_PAGE_FLAG_RELATIVE_ENCODING != 0
}
