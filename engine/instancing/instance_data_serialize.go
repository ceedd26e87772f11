package instancing

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/math"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

const INSTANCE_DATA_VERSION uint8 = 1

const instanceDataFlagHalfFloat uint32 = 1 << 0

type instanceDataHeader struct {
	metadata.ResourceHeader
	Flags               uint32
	NumInstances        uint32
	NumCustomDataFloats uint32
}

func halfToFull(rows []math.Half4) []math.Vec4 {
	out := make([]math.Vec4, len(rows))
	for i, h := range rows {
		out[i] = h.Vec4()
	}
	return out
}

/**
 * @brief Expands half float transforms to full float in place.
 */
func (d *StaticMeshInstanceData) ConvertToFullFloat() {
	if !d.useHalfFloat {
		return
	}
	rows := halfToFull(d.halfTransforms)
	d.fullTransforms = make([]math.Vec4, len(rows), cap(d.halfTransforms))
	copy(d.fullTransforms, rows)
	d.halfTransforms = nil
	d.useHalfFloat = false
}

/**
 * @brief Writes the cooked form of the store. Editor data and slack are not
 * written. Half float transforms are expanded when target has no half float
 * vertex format.
 */
func (d *StaticMeshInstanceData) Serialize(w io.Writer, target metadata.TargetPlatform) error {
	useHalf := d.useHalfFloat && target.SupportsHalfFloatVertexFormat
	if d.useHalfFloat && !useHalf {
		core.LogInfo("transcoding %d instance transforms to full float for target '%s'", d.numInstances, target.Name)
	}

	h := instanceDataHeader{
		ResourceHeader: metadata.ResourceHeader{
			MagicNumber:  metadata.ResourceMagic,
			ResourceType: metadata.ResourceTypeInstanceData,
			Version:      INSTANCE_DATA_VERSION,
		},
		NumInstances:        uint32(d.numInstances),
		NumCustomDataFloats: uint32(d.numCustomDataFloats),
	}
	if useHalf {
		h.Flags |= instanceDataFlagHalfFloat
	}

	var transforms interface{}
	switch {
	case useHalf:
		transforms = d.halfTransforms
	case d.useHalfFloat:
		transforms = halfToFull(d.halfTransforms)
	default:
		transforms = d.fullTransforms
	}

	for _, section := range []interface{}{&h, d.origins, transforms, d.lightmaps, d.customData} {
		if err := binary.Write(w, binary.LittleEndian, section); err != nil {
			return fmt.Errorf("write instance data: %w", err)
		}
	}
	return nil
}

/**
 * @brief Reads a store written by Serialize. The result is a cooked store.
 */
func DeserializeStaticMeshInstanceData(r io.Reader) (*StaticMeshInstanceData, error) {
	var h instanceDataHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read instance data header: %w", err)
	}
	if err := h.Check(metadata.ResourceTypeInstanceData, INSTANCE_DATA_VERSION); err != nil {
		return nil, err
	}

	d := NewStaticMeshInstanceData(h.Flags&instanceDataFlagHalfFloat != 0, false)
	d.AllocateInstances(int(h.NumInstances), int(h.NumCustomDataFloats), RESIZE_FLAGS_NONE, true)

	var transforms interface{} = d.fullTransforms
	if d.useHalfFloat {
		transforms = d.halfTransforms
	}
	for _, section := range []interface{}{d.origins, transforms, d.lightmaps, d.customData} {
		if err := binary.Read(r, binary.LittleEndian, section); err != nil {
			return nil, fmt.Errorf("read instance data: %w", err)
		}
	}
	return d, nil
}
