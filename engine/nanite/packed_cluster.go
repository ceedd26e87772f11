package nanite

import (
	"encoding/binary"
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/math"
)

/**
 * @brief One geometry cluster as stored in a page: 6 x float4 of raw words.
 * Fields are reached only through the named accessors below, each bound to a
 * BitField from the shared layout table.
 */
type PackedCluster struct {
	Words [clusterNumWords]uint32
}

func getBits(word uint32, f BitField) uint32 {
	return (word >> f.Offset) & f.mask()
}

func setBits(word *uint32, f BitField, value uint32) {
	if value > f.mask() {
		core.Ensure(false, "value %d does not fit in %d bits of %s", value, f.Width, f.Name)
		value &= f.mask()
	}
	*word = (*word &^ (f.mask() << f.Offset)) | (value << f.Offset)
}

func (c *PackedCluster) get(f BitField) uint32 {
	return getBits(c.Words[f.Word], f)
}

func (c *PackedCluster) set(f BitField, value uint32) {
	setBits(&c.Words[f.Word], f, value)
}

func (c *PackedCluster) getFloat(word int) float32 {
	return stdmath.Float32frombits(c.Words[word])
}

func (c *PackedCluster) setFloat(word int, v float32) {
	c.Words[word] = stdmath.Float32bits(v)
}

// Bits [0, 9) of word 0.
func (c *PackedCluster) GetNumVerts() uint32  { return c.get(ClusterNumVerts) }
func (c *PackedCluster) SetNumVerts(n uint32) { c.set(ClusterNumVerts, n) }
// Bits [9, 32) of word 0.
func (c *PackedCluster) GetPositionOffset() uint32  { return c.get(ClusterPositionOffset) }
func (c *PackedCluster) SetPositionOffset(o uint32) { c.set(ClusterPositionOffset, o) }

// Bits [0, 8) of word 1.
func (c *PackedCluster) GetNumTris() uint32  { return c.get(ClusterNumTris) }
func (c *PackedCluster) SetNumTris(n uint32) { c.set(ClusterNumTris, n) }
// Bits [8, 32) of word 1.
func (c *PackedCluster) GetIndexOffset() uint32  { return c.get(ClusterIndexOffset) }
func (c *PackedCluster) SetIndexOffset(o uint32) { c.set(ClusterIndexOffset, o) }

func (c *PackedCluster) GetColorMin() uint32  { return c.Words[clusterWordColorMin] }
func (c *PackedCluster) SetColorMin(v uint32) { c.Words[clusterWordColorMin] = v }

// Per channel color bit widths, 4 bits each at [0, 16) of word 3.
func (c *PackedCluster) GetColorBits() (r, g, b, a uint32) {
	return c.get(ClusterColorBitsR), c.get(ClusterColorBitsG), c.get(ClusterColorBitsB), c.get(ClusterColorBitsA)
}

func (c *PackedCluster) SetColorBits(r, g, b, a uint32) {
	c.set(ClusterColorBitsR, r)
	c.set(ClusterColorBitsG, g)
	c.set(ClusterColorBitsB, b)
	c.set(ClusterColorBitsA, a)
}

// Bits [16, 32) of word 3.
func (c *PackedCluster) GetGroupIndex() uint32  { return c.get(ClusterGroupIndex) }
func (c *PackedCluster) SetGroupIndex(i uint32) { c.set(ClusterGroupIndex, i) }

func (c *PackedCluster) GetPosStart() [3]int32 {
	return [3]int32{
		int32(c.Words[clusterWordPosStartX]),
		int32(c.Words[clusterWordPosStartY]),
		int32(c.Words[clusterWordPosStartZ]),
	}
}

func (c *PackedCluster) SetPosStart(p [3]int32) {
	c.Words[clusterWordPosStartX] = uint32(p[0])
	c.Words[clusterWordPosStartY] = uint32(p[1])
	c.Words[clusterWordPosStartZ] = uint32(p[2])
}

// Bits [0, 4) of word 7.
func (c *PackedCluster) GetBitsPerIndex() uint32  { return c.get(ClusterBitsPerIndex) }
func (c *PackedCluster) SetBitsPerIndex(b uint32) { c.set(ClusterBitsPerIndex, b) }

/**
 * @brief Position precision, stored biased by NANITE_MIN_POSITION_PRECISION in bits [4, 9) of word 7.
 * Values outside the representable range are clamped.
 */
func (c *PackedCluster) GetPosPrecision() int32 {
	return int32(c.get(ClusterPosPrecision)) + NANITE_MIN_POSITION_PRECISION
}

func (c *PackedCluster) SetPosPrecision(p int32) {
	clamped := math.Clamp(p, NANITE_MIN_POSITION_PRECISION, NANITE_MAX_POSITION_PRECISION)
	if clamped != p {
		core.LogWarn("position precision %d clamped to %d", p, clamped)
	}
	c.set(ClusterPosPrecision, uint32(clamped-NANITE_MIN_POSITION_PRECISION))
}

// Per axis position bit widths, 5 bits each at [9, 24) of word 7.
func (c *PackedCluster) GetPosBits() [3]uint32 {
	return [3]uint32{c.get(ClusterPosBitsX), c.get(ClusterPosBitsY), c.get(ClusterPosBitsZ)}
}

func (c *PackedCluster) SetPosBits(bits [3]uint32) {
	c.set(ClusterPosBitsX, bits[0])
	c.set(ClusterPosBitsY, bits[1])
	c.set(ClusterPosBitsZ, bits[2])
}

func (c *PackedCluster) GetLODBounds() math.Sphere {
	return math.Sphere{
		Center: math.NewVec3(c.getFloat(clusterWordLODBoundsX), c.getFloat(clusterWordLODBoundsY), c.getFloat(clusterWordLODBoundsZ)),
		W:      c.getFloat(clusterWordLODBoundsW),
	}
}

func (c *PackedCluster) SetLODBounds(s math.Sphere) {
	c.setFloat(clusterWordLODBoundsX, s.Center.X)
	c.setFloat(clusterWordLODBoundsY, s.Center.Y)
	c.setFloat(clusterWordLODBoundsZ, s.Center.Z)
	c.setFloat(clusterWordLODBoundsW, s.W)
}

func (c *PackedCluster) GetBoxBoundsCenter() math.Vec3 {
	return math.NewVec3(c.getFloat(clusterWordBoxCenterX), c.getFloat(clusterWordBoxCenterY), c.getFloat(clusterWordBoxCenterZ))
}

func (c *PackedCluster) SetBoxBoundsCenter(v math.Vec3) {
	c.setFloat(clusterWordBoxCenterX, v.X)
	c.setFloat(clusterWordBoxCenterY, v.Y)
	c.setFloat(clusterWordBoxCenterZ, v.Z)
}

func (c *PackedCluster) GetBoxBoundsExtent() math.Vec3 {
	return math.NewVec3(c.getFloat(clusterWordBoxExtentX), c.getFloat(clusterWordBoxExtentY), c.getFloat(clusterWordBoxExtentZ))
}

func (c *PackedCluster) SetBoxBoundsExtent(v math.Vec3) {
	c.setFloat(clusterWordBoxExtentX, v.X)
	c.setFloat(clusterWordBoxExtentY, v.Y)
	c.setFloat(clusterWordBoxExtentZ, v.Z)
}

// LOD error and edge length as a half2, error in the low half.
func (c *PackedCluster) GetLODErrorAndEdgeLength() (lodError, edgeLength float32) {
	return math.UnpackHalf2(c.Words[clusterWordLODErrorAndEdgeLength])
}

func (c *PackedCluster) SetLODErrorAndEdgeLength(lodError, edgeLength float32) {
	c.Words[clusterWordLODErrorAndEdgeLength] = math.PackHalf2(lodError, edgeLength)
}

func (c *PackedCluster) GetFlags() uint32  { return c.Words[clusterWordFlags] }
func (c *PackedCluster) SetFlags(f uint32) { c.Words[clusterWordFlags] = f }

// Bits [0, 22) of word 20.
func (c *PackedCluster) GetAttributeOffset() uint32  { return c.get(ClusterAttributeOffset) }
func (c *PackedCluster) SetAttributeOffset(o uint32) { c.set(ClusterAttributeOffset, o) }
// Bits [22, 32) of word 20.
func (c *PackedCluster) GetBitsPerAttribute() uint32  { return c.get(ClusterBitsPerAttribute) }
func (c *PackedCluster) SetBitsPerAttribute(b uint32) { c.set(ClusterBitsPerAttribute, b) }

// Bits [0, 22) of word 21.
func (c *PackedCluster) GetDecodeInfoOffset() uint32  { return c.get(ClusterDecodeInfoOffset) }
func (c *PackedCluster) SetDecodeInfoOffset(o uint32) { c.set(ClusterDecodeInfoOffset, o) }
// Bits [22, 25) of word 21.
func (c *PackedCluster) GetNumUVs() uint32  { return c.get(ClusterNumUVs) }
func (c *PackedCluster) SetNumUVs(n uint32) { c.set(ClusterNumUVs, n) }
// Bits [25, 27) of word 21.
func (c *PackedCluster) GetColorMode() uint32  { return c.get(ClusterColorMode) }
func (c *PackedCluster) SetColorMode(m uint32) { c.set(ClusterColorMode, m) }

// UV quantization precision for channel i, 8 bits each in word 22.
func (c *PackedCluster) GetUVPrec(i int) uint32 {
	return c.get(ClusterUVPrec[i])
}

func (c *PackedCluster) SetUVPrec(i int, prec uint32) {
	c.set(ClusterUVPrec[i], prec)
}

func (c *PackedCluster) GetPackedMaterialInfo() uint32  { return c.Words[clusterWordPackedMaterialInfo] }
func (c *PackedCluster) SetPackedMaterialInfo(v uint32) { c.Words[clusterWordPackedMaterialInfo] = v }

// Size returns the serialized size in bytes.
func (c *PackedCluster) Size() int {
	return NANITE_PACKED_CLUSTER_SIZE
}

// Marshal writes the cluster as little endian words.
func (c *PackedCluster) Marshal() []byte {
	out := make([]byte, NANITE_PACKED_CLUSTER_SIZE)
	for i, w := range c.Words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func UnmarshalPackedCluster(data []byte) (PackedCluster, error) {
	var c PackedCluster
	if len(data) < NANITE_PACKED_CLUSTER_SIZE {
		return c, fmt.Errorf("packed cluster needs %d bytes, got %d", NANITE_PACKED_CLUSTER_SIZE, len(data))
	}
	for i := range c.Words {
		c.Words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return c, nil
}

/**
 * @brief Checks the layout table: every field fits in its 32 bit word and no two
 * fields of the same word overlap.
 */
func ValidateLayout(fields []BitField) error {
	used := map[int]uint32{}
	owner := map[int]map[uint32]string{}
	for _, f := range fields {
		if f.Width == 0 || f.Offset+f.Width > 32 {
			return fmt.Errorf("field %s [%d, %d) does not fit in a 32 bit word", f.Name, f.Offset, f.Offset+f.Width)
		}
		m := f.mask() << f.Offset
		if used[f.Word]&m != 0 {
			for bit := f.Offset; bit < f.Offset+f.Width; bit++ {
				if name, ok := owner[f.Word][bit]; ok {
					return fmt.Errorf("field %s overlaps %s in word %d at bit %d", f.Name, name, f.Word, bit)
				}
			}
		}
		used[f.Word] |= m
		if owner[f.Word] == nil {
			owner[f.Word] = map[uint32]string{}
		}
		for bit := f.Offset; bit < f.Offset+f.Width; bit++ {
			owner[f.Word][bit] = f.Name
		}
	}
	return nil
}
