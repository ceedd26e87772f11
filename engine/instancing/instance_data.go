package instancing

import (
	"bytes"
	"encoding/binary"
	gomath "math"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/math"
)

type ResizeFlags uint8

const (
	RESIZE_FLAGS_NONE ResizeFlags = 0
	/** @brief Over-allocate on growth. Only honoured by authoring stores. */
	RESIZE_FLAGS_ALLOW_SLACK ResizeFlags = 1 << 0
)

const (
	INSTANCE_ORIGIN_STRIDE      = 16
	INSTANCE_LIGHTMAP_STRIDE    = 8
	INSTANCE_CUSTOM_DATA_STRIDE = 4
	// Three rows of the transform per instance.
	INSTANCE_TRANSFORM_ROWS = 3
)

const editorSelectedBit uint32 = 1 << 24

/**
 * @brief Columnar per-instance data backing the instance vertex buffers. Every
 * column has one entry per instance slot; removed instances keep their slot
 * with a zeroed transform until the owner compacts.
 */
type StaticMeshInstanceData struct {
	useHalfFloat bool
	authoring    bool

	numInstances        int
	numCustomDataFloats int

	// xyz is the instance origin, w the per-instance random id.
	origins        []math.Vec4
	halfTransforms []math.Half4
	fullTransforms []math.Vec4
	// Lightmap uv bias xy followed by shadowmap uv bias xy, SNORM encoded.
	lightmaps  [][4]int16
	customData []float32
	editorData []uint32
}

/**
 * @brief Creates an empty store. useHalfFloat selects the transform encoding for
 * the life of the store; authoring stores keep editor data and may over-allocate.
 */
func NewStaticMeshInstanceData(useHalfFloat, authoring bool) *StaticMeshInstanceData {
	return &StaticMeshInstanceData{
		useHalfFloat: useHalfFloat,
		authoring:    authoring,
	}
}

func (d *StaticMeshInstanceData) UsesHalfFloat() bool {
	return d.useHalfFloat
}

func (d *StaticMeshInstanceData) IsAuthoring() bool {
	return d.authoring
}

func (d *StaticMeshInstanceData) NumInstances() int {
	return d.numInstances
}

func (d *StaticMeshInstanceData) NumCustomDataFloats() int {
	return d.numCustomDataFloats
}

// Capacity is the number of instance slots reserved without reallocating.
func (d *StaticMeshInstanceData) Capacity() int {
	return cap(d.origins)
}

func resizeColumn[T any](s []T, n, reserve int, shrink bool) []T {
	switch {
	case n > cap(s):
		out := make([]T, n, max(n, reserve))
		copy(out, s)
		return out
	case n < len(s) && shrink:
		out := make([]T, n)
		copy(out, s)
		return out
	default:
		old := len(s)
		s = s[:n]
		if n > old {
			clear(s[old:])
		}
		return s
	}
}

/**
 * @brief Resizes every column to count instances, keeping the content of the
 * slots that survive. Growing an authoring store with RESIZE_FLAGS_ALLOW_SLACK
 * reserves extra room; shrinking only releases memory when allowShrink is set.
 */
func (d *StaticMeshInstanceData) AllocateInstances(count, numCustomDataFloats int, flags ResizeFlags, allowShrink bool) {
	if !core.Ensure(count >= 0 && numCustomDataFloats >= 0, "allocate %d instances with %d custom floats", count, numCustomDataFloats) {
		return
	}

	reserve := count
	if d.authoring && flags&RESIZE_FLAGS_ALLOW_SLACK != 0 && count > d.Capacity() {
		reserve = count + count/4 + 16
	}

	d.origins = resizeColumn(d.origins, count, reserve, allowShrink)
	if d.useHalfFloat {
		d.halfTransforms = resizeColumn(d.halfTransforms, count*INSTANCE_TRANSFORM_ROWS, reserve*INSTANCE_TRANSFORM_ROWS, allowShrink)
	} else {
		d.fullTransforms = resizeColumn(d.fullTransforms, count*INSTANCE_TRANSFORM_ROWS, reserve*INSTANCE_TRANSFORM_ROWS, allowShrink)
	}
	d.lightmaps = resizeColumn(d.lightmaps, count, reserve, allowShrink)
	if d.authoring {
		d.editorData = resizeColumn(d.editorData, count, reserve, allowShrink)
	}

	if numCustomDataFloats != d.numCustomDataFloats {
		// Channel count changed, rebuild keeping the common channels.
		custom := make([]float32, count*numCustomDataFloats, reserve*numCustomDataFloats)
		common := min(numCustomDataFloats, d.numCustomDataFloats)
		for i := 0; i < min(count, d.numInstances); i++ {
			copy(custom[i*numCustomDataFloats:i*numCustomDataFloats+common], d.customData[i*d.numCustomDataFloats:])
		}
		d.customData = custom
		d.numCustomDataFloats = numCustomDataFloats
	} else {
		d.customData = resizeColumn(d.customData, count*numCustomDataFloats, reserve*numCustomDataFloats, allowShrink)
	}
	d.numInstances = count
}

// IsValidIndex reports whether index addresses an allocated slot.
func (d *StaticMeshInstanceData) IsValidIndex(index int) bool {
	return index >= 0 && index < d.numInstances
}

func toSNorm16(v float32) int16 {
	return int16(gomath.Round(float64(math.Clamp(v, -1, 1) * 32767)))
}

func fromSNorm16(v int16) float32 {
	return math.Clamp(float32(v)/32767, -1, 1)
}

/**
 * @brief Writes the whole record of one instance.
 */
func (d *StaticMeshInstanceData) SetInstance(index int, xform math.Mat4, randomID float32, lightmapUVBias, shadowmapUVBias math.Vec2) {
	if !core.Ensure(d.IsValidIndex(index), "set instance %d of %d", index, d.numInstances) {
		return
	}
	d.origins[index] = xform.Origin().ToVec4(randomID)
	d.setTransformRows(index, xform)
	d.SetInstanceLightMapData(index, lightmapUVBias, shadowmapUVBias)
}

// SetInstanceTransform replaces the transform of index and keeps its random id.
func (d *StaticMeshInstanceData) SetInstanceTransform(index int, xform math.Mat4) {
	if !core.Ensure(d.IsValidIndex(index), "set transform %d of %d", index, d.numInstances) {
		return
	}
	d.origins[index] = xform.Origin().ToVec4(d.origins[index].W)
	d.setTransformRows(index, xform)
}

func (d *StaticMeshInstanceData) setTransformRows(index int, xform math.Mat4) {
	base := index * INSTANCE_TRANSFORM_ROWS
	for r := 0; r < INSTANCE_TRANSFORM_ROWS; r++ {
		row := xform.Row(r)
		if d.useHalfFloat {
			d.halfTransforms[base+r] = math.NewHalf4(row)
		} else {
			d.fullTransforms[base+r] = row
		}
	}
}

func (d *StaticMeshInstanceData) transformRow(index, r int) math.Vec4 {
	if d.useHalfFloat {
		return d.halfTransforms[index*INSTANCE_TRANSFORM_ROWS+r].Vec4()
	}
	return d.fullTransforms[index*INSTANCE_TRANSFORM_ROWS+r]
}

func (d *StaticMeshInstanceData) GetInstanceTransform(index int) math.Mat4 {
	if !core.Ensure(d.IsValidIndex(index), "get transform %d of %d", index, d.numInstances) {
		return math.Mat4{}
	}
	var m math.Mat4
	for r := 0; r < INSTANCE_TRANSFORM_ROWS; r++ {
		row := d.transformRow(index, r)
		m.Data[r*4+0] = row.X
		m.Data[r*4+1] = row.Y
		m.Data[r*4+2] = row.Z
		m.Data[r*4+3] = row.W
	}
	m.Data[15] = 1
	return m.WithOrigin(d.origins[index].ToVec3())
}

func (d *StaticMeshInstanceData) GetInstanceRandomID(index int) float32 {
	if !d.IsValidIndex(index) {
		return 0
	}
	return d.origins[index].W
}

// NullifyInstance zeroes the transform of index. The slot stays allocated.
func (d *StaticMeshInstanceData) NullifyInstance(index int) {
	if !core.Ensure(d.IsValidIndex(index), "nullify instance %d of %d", index, d.numInstances) {
		return
	}
	d.origins[index] = math.NewVec4(0, 0, 0, d.origins[index].W)
	d.setTransformRows(index, math.Mat4{})
}

// IsNullInstance reports whether index holds the zero-scale hidden marker.
func (d *StaticMeshInstanceData) IsNullInstance(index int) bool {
	if !d.IsValidIndex(index) {
		return false
	}
	for r := 0; r < INSTANCE_TRANSFORM_ROWS; r++ {
		row := d.transformRow(index, r)
		if row.X != 0 || row.Y != 0 || row.Z != 0 {
			return false
		}
	}
	return true
}

// NumLiveInstances counts the slots that are not hidden.
func (d *StaticMeshInstanceData) NumLiveInstances() int {
	live := 0
	for i := 0; i < d.numInstances; i++ {
		if !d.IsNullInstance(i) {
			live++
		}
	}
	return live
}

func (d *StaticMeshInstanceData) SetInstanceLightMapData(index int, lightmapUVBias, shadowmapUVBias math.Vec2) {
	if !core.Ensure(d.IsValidIndex(index), "set lightmap data %d of %d", index, d.numInstances) {
		return
	}
	d.lightmaps[index] = [4]int16{
		toSNorm16(lightmapUVBias.X),
		toSNorm16(lightmapUVBias.Y),
		toSNorm16(shadowmapUVBias.X),
		toSNorm16(shadowmapUVBias.Y),
	}
}

func (d *StaticMeshInstanceData) GetInstanceLightMapData(index int) (lightmapUVBias, shadowmapUVBias math.Vec2) {
	if !d.IsValidIndex(index) {
		return
	}
	lm := d.lightmaps[index]
	return math.NewVec2(fromSNorm16(lm[0]), fromSNorm16(lm[1])), math.NewVec2(fromSNorm16(lm[2]), fromSNorm16(lm[3]))
}

func (d *StaticMeshInstanceData) SetInstanceCustomData(index, channel int, value float32) {
	if !core.Ensure(d.IsValidIndex(index) && channel >= 0 && channel < d.numCustomDataFloats,
		"set custom data %d/%d of instance %d", channel, d.numCustomDataFloats, index) {
		return
	}
	d.customData[index*d.numCustomDataFloats+channel] = value
}

func (d *StaticMeshInstanceData) GetInstanceCustomData(index, channel int) float32 {
	if !d.IsValidIndex(index) || channel < 0 || channel >= d.numCustomDataFloats {
		return 0
	}
	return d.customData[index*d.numCustomDataFloats+channel]
}

// SetInstanceEditorData stores the hit proxy color (0xRRGGBB) and selection. No-op on cooked stores.
func (d *StaticMeshInstanceData) SetInstanceEditorData(index int, color uint32, selected bool) {
	if !d.authoring {
		return
	}
	if !core.Ensure(d.IsValidIndex(index), "set editor data %d of %d", index, d.numInstances) {
		return
	}
	packed := color & 0xFFFFFF
	if selected {
		packed |= editorSelectedBit
	}
	d.editorData[index] = packed
}

func (d *StaticMeshInstanceData) GetInstanceEditorData(index int) (color uint32, selected bool) {
	if !d.authoring || !d.IsValidIndex(index) {
		return 0, false
	}
	packed := d.editorData[index]
	return packed & 0xFFFFFF, packed&editorSelectedBit != 0
}

// SwapInstance exchanges every column of a and b.
func (d *StaticMeshInstanceData) SwapInstance(a, b int) {
	if !core.Ensure(d.IsValidIndex(a) && d.IsValidIndex(b), "swap instances %d and %d of %d", a, b, d.numInstances) || a == b {
		return
	}
	d.origins[a], d.origins[b] = d.origins[b], d.origins[a]
	for r := 0; r < INSTANCE_TRANSFORM_ROWS; r++ {
		ia, ib := a*INSTANCE_TRANSFORM_ROWS+r, b*INSTANCE_TRANSFORM_ROWS+r
		if d.useHalfFloat {
			d.halfTransforms[ia], d.halfTransforms[ib] = d.halfTransforms[ib], d.halfTransforms[ia]
		} else {
			d.fullTransforms[ia], d.fullTransforms[ib] = d.fullTransforms[ib], d.fullTransforms[ia]
		}
	}
	d.lightmaps[a], d.lightmaps[b] = d.lightmaps[b], d.lightmaps[a]
	for c := 0; c < d.numCustomDataFloats; c++ {
		ia, ib := a*d.numCustomDataFloats+c, b*d.numCustomDataFloats+c
		d.customData[ia], d.customData[ib] = d.customData[ib], d.customData[ia]
	}
	if d.authoring {
		d.editorData[a], d.editorData[b] = d.editorData[b], d.editorData[a]
	}
}

// TransformStride is the byte size of one instance's transform rows.
func (d *StaticMeshInstanceData) TransformStride() int {
	if d.useHalfFloat {
		return INSTANCE_TRANSFORM_ROWS * 8
	}
	return INSTANCE_TRANSFORM_ROWS * 16
}

func columnBytes(data interface{}) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		core.LogError("failed to encode instance column: %s", err.Error())
		return nil
	}
	return buf.Bytes()
}

func (d *StaticMeshInstanceData) OriginBytes() []byte {
	return columnBytes(d.origins)
}

func (d *StaticMeshInstanceData) TransformBytes() []byte {
	if d.useHalfFloat {
		return columnBytes(d.halfTransforms)
	}
	return columnBytes(d.fullTransforms)
}

func (d *StaticMeshInstanceData) LightmapBytes() []byte {
	return columnBytes(d.lightmaps)
}

func (d *StaticMeshInstanceData) CustomDataBytes() []byte {
	return columnBytes(d.customData)
}

/**
 * @brief Returns a deep copy. Slack is not preserved.
 */
func (d *StaticMeshInstanceData) Clone() *StaticMeshInstanceData {
	out := &StaticMeshInstanceData{
		useHalfFloat:        d.useHalfFloat,
		authoring:           d.authoring,
		numInstances:        d.numInstances,
		numCustomDataFloats: d.numCustomDataFloats,
		origins:             append([]math.Vec4(nil), d.origins...),
		lightmaps:           append([][4]int16(nil), d.lightmaps...),
		customData:          append([]float32(nil), d.customData...),
	}
	if d.useHalfFloat {
		out.halfTransforms = append([]math.Half4(nil), d.halfTransforms...)
	} else {
		out.fullTransforms = append([]math.Vec4(nil), d.fullTransforms...)
	}
	if d.authoring {
		out.editorData = append([]uint32(nil), d.editorData...)
	}
	return out
}
