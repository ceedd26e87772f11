package instancing

import (
	"github.com/spaghettifunk/instancer/engine/math"
)

type InstanceUpdateType uint8

const (
	INSTANCE_UPDATE_TYPE_ADD InstanceUpdateType = iota
	INSTANCE_UPDATE_TYPE_HIDE
	INSTANCE_UPDATE_TYPE_UPDATE
	INSTANCE_UPDATE_TYPE_EDITOR_DATA
	INSTANCE_UPDATE_TYPE_LIGHTMAP_DATA
	INSTANCE_UPDATE_TYPE_CUSTOM_DATA
)

func (t InstanceUpdateType) String() string {
	switch t {
	case INSTANCE_UPDATE_TYPE_ADD:
		return "Add"
	case INSTANCE_UPDATE_TYPE_HIDE:
		return "Hide"
	case INSTANCE_UPDATE_TYPE_UPDATE:
		return "Update"
	case INSTANCE_UPDATE_TYPE_EDITOR_DATA:
		return "EditorData"
	case INSTANCE_UPDATE_TYPE_LIGHTMAP_DATA:
		return "LightmapData"
	case INSTANCE_UPDATE_TYPE_CUSTOM_DATA:
		return "CustomData"
	}
	return "Unknown"
}

// AddInstanceIndex is the target index of Add commands. The real slot is the
// append cursor at replay time.
const AddInstanceIndex int32 = -1

/**
 * @brief One recorded per-instance mutation. Only the fields relevant to Type are set.
 */
type InstanceUpdateCommand struct {
	InstanceIndex int32
	Type          InstanceUpdateType

	XForm    math.Mat4
	RandomID float32

	HitProxyColor uint32
	Selected      bool

	LightmapUVBias  math.Vec2
	ShadowmapUVBias math.Vec2

	CustomDataFloats []float32
}

/**
 * @brief Append-only log of instance mutations recorded on the game thread and
 * replayed once on the render thread.
 */
type InstanceUpdateCmdBuffer struct {
	Cmds                []InstanceUpdateCommand
	NumCustomDataFloats int
	NumAdds             int
	NumEdits            int
}

func (b *InstanceUpdateCmdBuffer) AddInstance(xform math.Mat4) {
	b.AddInstanceWithRandom(xform, 0)
}

func (b *InstanceUpdateCmdBuffer) AddInstanceWithRandom(xform math.Mat4, randomID float32) {
	b.Cmds = append(b.Cmds, InstanceUpdateCommand{
		InstanceIndex: AddInstanceIndex,
		Type:          INSTANCE_UPDATE_TYPE_ADD,
		XForm:         xform,
		RandomID:      randomID,
	})
	b.NumAdds++
	b.Edit()
}

func (b *InstanceUpdateCmdBuffer) HideInstance(index int) {
	b.Cmds = append(b.Cmds, InstanceUpdateCommand{
		InstanceIndex: int32(index),
		Type:          INSTANCE_UPDATE_TYPE_HIDE,
	})
	b.Edit()
}

func (b *InstanceUpdateCmdBuffer) UpdateInstance(index int, xform math.Mat4) {
	b.Cmds = append(b.Cmds, InstanceUpdateCommand{
		InstanceIndex: int32(index),
		Type:          INSTANCE_UPDATE_TYPE_UPDATE,
		XForm:         xform,
	})
	b.Edit()
}

func (b *InstanceUpdateCmdBuffer) SetEditorData(index int, color uint32, selected bool) {
	b.Cmds = append(b.Cmds, InstanceUpdateCommand{
		InstanceIndex: int32(index),
		Type:          INSTANCE_UPDATE_TYPE_EDITOR_DATA,
		HitProxyColor: color,
		Selected:      selected,
	})
	b.Edit()
}

/**
 * @brief Records both uv biases of index. Repeated calls for the same index
 * before a flush merge into one record, the last call wins.
 */
func (b *InstanceUpdateCmdBuffer) SetLightMapData(index int, lightmap, shadowmap math.Vec2) {
	cmd := b.lightmapCommand(index)
	cmd.LightmapUVBias = lightmap
	cmd.ShadowmapUVBias = shadowmap
	b.Edit()
}

// lightmapCommand returns the lightmap record of index, appending one if there is none.
func (b *InstanceUpdateCmdBuffer) lightmapCommand(index int) *InstanceUpdateCommand {
	for i := range b.Cmds {
		cmd := &b.Cmds[i]
		if cmd.Type == INSTANCE_UPDATE_TYPE_LIGHTMAP_DATA && cmd.InstanceIndex == int32(index) {
			return cmd
		}
	}
	b.Cmds = append(b.Cmds, InstanceUpdateCommand{
		InstanceIndex: int32(index),
		Type:          INSTANCE_UPDATE_TYPE_LIGHTMAP_DATA,
	})
	return &b.Cmds[len(b.Cmds)-1]
}

func (b *InstanceUpdateCmdBuffer) SetCustomData(index int, floats []float32) {
	b.Cmds = append(b.Cmds, InstanceUpdateCommand{
		InstanceIndex:    int32(index),
		Type:             INSTANCE_UPDATE_TYPE_CUSTOM_DATA,
		CustomDataFloats: append([]float32(nil), floats...),
	})
	b.Edit()
}

// ResetInlineCommands drops the recorded commands but keeps the edit counter.
func (b *InstanceUpdateCmdBuffer) ResetInlineCommands() {
	b.Cmds = nil
	b.NumAdds = 0
}

func (b *InstanceUpdateCmdBuffer) Reset() {
	b.ResetInlineCommands()
	b.NumEdits = 0
}

func (b *InstanceUpdateCmdBuffer) NumInlineCommands() int {
	return len(b.Cmds)
}

func (b *InstanceUpdateCmdBuffer) Edit() {
	b.NumEdits++
}

/**
 * @brief Moves the recorded commands into a new buffer and resets the inline
 * commands of b. The edit counter is copied and kept on b so later edits still
 * count as pending. The returned buffer belongs to the caller.
 */
func (b *InstanceUpdateCmdBuffer) Steal() *InstanceUpdateCmdBuffer {
	stolen := &InstanceUpdateCmdBuffer{
		Cmds:                b.Cmds,
		NumCustomDataFloats: b.NumCustomDataFloats,
		NumAdds:             b.NumAdds,
		NumEdits:            b.NumEdits,
	}
	b.ResetInlineCommands()
	return stolen
}
