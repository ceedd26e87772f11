package instancing

import (
	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/renderer"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

type UploadState uint8

const (
	/** @brief GPU buffers match the store. */
	UPLOAD_STATE_CLEAN UploadState = iota
	/** @brief The store changed and the next upload opportunity will push it. */
	UPLOAD_STATE_PENDING
	/** @brief The store changed but uploads wait for FlushDeferredUpload. */
	UPLOAD_STATE_DEFERRED
)

func (s UploadState) String() string {
	switch s {
	case UPLOAD_STATE_CLEAN:
		return "Clean"
	case UPLOAD_STATE_PENDING:
		return "PendingUpload"
	case UPLOAD_STATE_DEFERRED:
		return "Deferred"
	}
	return "Unknown"
}

type instanceColumn uint8

const (
	columnOrigin instanceColumn = 1 << iota
	columnTransform
	columnLightmap
	columnCustomData

	columnAll = columnOrigin | columnTransform | columnLightmap | columnCustomData
)

const (
	ORIGIN_BUFFER_NAME      = "InstanceOrigin"
	TRANSFORM_BUFFER_NAME   = "InstanceTransform"
	LIGHTMAP_BUFFER_NAME    = "InstanceLightmap"
	CUSTOM_DATA_BUFFER_NAME = "InstanceCustomData"
)

/**
 * @brief Shader resource views of the instance vertex streams. CustomData is
 * always set; it points at the shared dummy buffer when there is no custom data.
 */
type InstanceBufferViews struct {
	Origin     *metadata.ShaderResourceView
	Transform  *metadata.ShaderResourceView
	Lightmap   *metadata.ShaderResourceView
	CustomData *metadata.ShaderResourceView
}

/**
 * @brief Owns the GPU buffers derived from a StaticMeshInstanceData and applies
 * command logs to it. Everything except UpdateFromCommandBufferConcurrent runs
 * on the render thread.
 */
type StaticMeshInstanceBuffer struct {
	backend          renderer.RendererBackend
	data             *StaticMeshInstanceData
	requireCPUAccess bool
	featureLevel     metadata.FeatureLevel

	origin     *metadata.RenderBuffer
	transform  *metadata.RenderBuffer
	lightmap   *metadata.RenderBuffer
	customData *metadata.RenderBuffer
	views      InstanceBufferViews

	dirty       instanceColumn
	state       UploadState
	initialized bool
}

func NewStaticMeshInstanceBuffer(data *StaticMeshInstanceData, featureLevel metadata.FeatureLevel, requireCPUAccess bool) *StaticMeshInstanceBuffer {
	if data == nil {
		data = NewStaticMeshInstanceData(false, false)
	}
	return &StaticMeshInstanceBuffer{
		data:             data,
		featureLevel:     featureLevel,
		requireCPUAccess: requireCPUAccess,
		dirty:            columnAll,
		state:            UPLOAD_STATE_PENDING,
	}
}

/**
 * @brief Creates the GPU buffers and uploads the whole store.
 */
func (ib *StaticMeshInstanceBuffer) InitResource(backend renderer.RendererBackend) error {
	ib.backend = backend
	if ib.featureLevel < metadata.FEATURE_LEVEL_SM5 && ib.data.UsesHalfFloat() {
		core.LogDebug("feature level %s has no half float vertex format, expanding instance transforms", ib.featureLevel)
		ib.data.ConvertToFullFloat()
	}
	ib.initialized = true
	ib.dirty = columnAll
	return ib.upload()
}

/**
 * @brief Destroys the GPU buffers. The store is kept.
 */
func (ib *StaticMeshInstanceBuffer) ReleaseResource() {
	if !ib.initialized {
		return
	}
	for _, buf := range []*metadata.RenderBuffer{ib.origin, ib.transform, ib.lightmap, ib.customData} {
		if buf != nil {
			ib.backend.RenderBufferDestroy(buf)
		}
	}
	ib.origin, ib.transform, ib.lightmap, ib.customData = nil, nil, nil, nil
	ib.views = InstanceBufferViews{}
	ib.initialized = false
	ib.state = UPLOAD_STATE_PENDING
	ib.dirty = columnAll
}

func (ib *StaticMeshInstanceBuffer) IsInitialized() bool {
	return ib.initialized
}

/**
 * @brief Steals the commands of cmds and replays them on the render thread.
 * Called on the game thread; cmds may be recorded into again right away.
 */
func (ib *StaticMeshInstanceBuffer) UpdateFromCommandBufferConcurrent(rt *renderer.RenderThread, cmds *InstanceUpdateCmdBuffer, deferUpload bool) error {
	stolen := cmds.Steal()
	return rt.EnqueueRenderCommand("InstanceBuffer_UpdateFromCommandBuffer", func(backend renderer.RendererBackend) {
		ib.UpdateFromCommandBufferRenderThread(stolen, deferUpload)
	})
}

/**
 * @brief Replays cmds against the store. The store first grows by the number
 * of Add commands; each Add then takes the next slot past the pre-replay
 * instance count, in log order. The store is resized to the custom float
 * count of cmds. Commands addressing invalid slots are skipped.
 * @returns The number of commands applied and skipped.
 */
func (ib *StaticMeshInstanceBuffer) UpdateFromCommandBufferRenderThread(cmds *InstanceUpdateCmdBuffer, deferUpload bool) (int, int) {
	data := ib.data
	cursor := data.NumInstances()

	// The log carries the channel count of its producer, shrinks included.
	numFloats := cmds.NumCustomDataFloats
	if cmds.NumAdds > 0 || numFloats != data.NumCustomDataFloats() {
		data.AllocateInstances(cursor+cmds.NumAdds, numFloats, RESIZE_FLAGS_ALLOW_SLACK, false)
		ib.dirty |= columnAll
	}

	replayed, skipped := 0, 0
	for i := range cmds.Cmds {
		cmd := &cmds.Cmds[i]
		index := int(cmd.InstanceIndex)
		if cmd.Type == INSTANCE_UPDATE_TYPE_ADD {
			index = cursor
			cursor++
		}
		if !core.Ensure(data.IsValidIndex(index), "%s command for instance %d, store has %d", cmd.Type, index, data.NumInstances()) {
			skipped++
			continue
		}

		switch cmd.Type {
		case INSTANCE_UPDATE_TYPE_ADD:
			data.SetInstance(index, cmd.XForm, cmd.RandomID, cmd.LightmapUVBias, cmd.ShadowmapUVBias)
			ib.dirty |= columnOrigin | columnTransform | columnLightmap
		case INSTANCE_UPDATE_TYPE_HIDE:
			data.NullifyInstance(index)
			ib.dirty |= columnOrigin | columnTransform
		case INSTANCE_UPDATE_TYPE_UPDATE:
			data.SetInstanceTransform(index, cmd.XForm)
			ib.dirty |= columnOrigin | columnTransform
		case INSTANCE_UPDATE_TYPE_EDITOR_DATA:
			data.SetInstanceEditorData(index, cmd.HitProxyColor, cmd.Selected)
		case INSTANCE_UPDATE_TYPE_LIGHTMAP_DATA:
			data.SetInstanceLightMapData(index, cmd.LightmapUVBias, cmd.ShadowmapUVBias)
			ib.dirty |= columnLightmap
		case INSTANCE_UPDATE_TYPE_CUSTOM_DATA:
			if !core.Ensure(len(cmd.CustomDataFloats) == data.NumCustomDataFloats(), "custom data for instance %d has %d floats, store has %d: %s",
				index, len(cmd.CustomDataFloats), data.NumCustomDataFloats(), core.ErrCustomDataMismatch) {
				skipped++
				continue
			}
			for c, v := range cmd.CustomDataFloats {
				data.SetInstanceCustomData(index, c, v)
			}
			ib.dirty |= columnCustomData
		}
		replayed++
	}
	core.DefaultMetrics().RecordReplay(replayed, skipped)

	ib.afterStoreChange(deferUpload)
	return replayed, skipped
}

/**
 * @brief Replaces the store with data and schedules a full upload.
 */
func (ib *StaticMeshInstanceBuffer) UpdateFromPreallocatedData(data *StaticMeshInstanceData, deferUpload bool) {
	ib.data = data
	ib.dirty = columnAll
	if ib.initialized && ib.featureLevel < metadata.FEATURE_LEVEL_SM5 {
		ib.data.ConvertToFullFloat()
	}
	ib.afterStoreChange(deferUpload)
}

func (ib *StaticMeshInstanceBuffer) afterStoreChange(deferUpload bool) {
	if ib.dirty == 0 {
		return
	}
	switch {
	case deferUpload:
		ib.state = UPLOAD_STATE_DEFERRED
	case ib.initialized:
		if err := ib.upload(); err != nil {
			core.LogError("instance buffer upload failed: %s", err.Error())
		}
	default:
		ib.state = UPLOAD_STATE_PENDING
	}
}

/**
 * @brief Pushes a deferred or pending store change to the GPU.
 */
func (ib *StaticMeshInstanceBuffer) FlushDeferredUpload() error {
	if ib.state == UPLOAD_STATE_CLEAN {
		return nil
	}
	if !ib.initialized {
		ib.state = UPLOAD_STATE_PENDING
		return nil
	}
	return ib.upload()
}

func (ib *StaticMeshInstanceBuffer) UploadState() UploadState {
	return ib.state
}

func (ib *StaticMeshInstanceBuffer) Views() InstanceBufferViews {
	return ib.views
}

func (ib *StaticMeshInstanceBuffer) NumInstances() int {
	return ib.data.NumInstances()
}

/**
 * @brief Returns the CPU copy of the store when the buffer was created with CPU
 * access, nil otherwise. Must be read on the render thread.
 */
func (ib *StaticMeshInstanceBuffer) CPUData() *StaticMeshInstanceData {
	if !ib.requireCPUAccess {
		return nil
	}
	return ib.data
}

// writeColumn creates or grows buf so it holds data and uploads it.
func (ib *StaticMeshInstanceBuffer) writeColumn(buf **metadata.RenderBuffer, name string, data []byte, stride uint32) error {
	size := uint64(max(len(data), int(stride)))
	if *buf == nil {
		b, err := ib.backend.RenderBufferCreate(name, metadata.RENDERBUFFER_TYPE_VERTEX, size)
		if err != nil {
			return err
		}
		*buf = b
	} else if (*buf).TotalSize < size {
		if !ib.backend.RenderBufferResize(*buf, size) {
			return core.ErrUnknown
		}
	}
	if len(data) > 0 {
		if !ib.backend.RenderBufferLoadRange(*buf, 0, data) {
			return core.ErrUnknown
		}
		core.DefaultMetrics().RecordUpload(len(data))
	}
	return nil
}

// upload pushes the dirty columns. A failed upload leaves the buffer pending so
// the next FlushDeferredUpload retries it.
func (ib *StaticMeshInstanceBuffer) upload() error {
	if err := ib.writeDirtyColumns(); err != nil {
		ib.state = UPLOAD_STATE_PENDING
		return err
	}
	ib.dirty = 0
	ib.state = UPLOAD_STATE_CLEAN
	return nil
}

func (ib *StaticMeshInstanceBuffer) writeDirtyColumns() error {
	d := ib.data
	n := uint32(d.NumInstances())

	if ib.dirty&columnOrigin != 0 {
		if err := ib.writeColumn(&ib.origin, ORIGIN_BUFFER_NAME, d.OriginBytes(), INSTANCE_ORIGIN_STRIDE); err != nil {
			return err
		}
		ib.views.Origin = &metadata.ShaderResourceView{Buffer: ib.origin, Stride: INSTANCE_ORIGIN_STRIDE, Format: metadata.PIXEL_FORMAT_R32G32B32A32_FLOAT, NumElements: n}
	}
	if ib.dirty&columnTransform != 0 {
		format := metadata.PIXEL_FORMAT_R32G32B32A32_FLOAT
		if d.UsesHalfFloat() {
			format = metadata.PIXEL_FORMAT_R16G16B16A16_FLOAT
		}
		stride := uint32(d.TransformStride() / INSTANCE_TRANSFORM_ROWS)
		if err := ib.writeColumn(&ib.transform, TRANSFORM_BUFFER_NAME, d.TransformBytes(), stride); err != nil {
			return err
		}
		ib.views.Transform = &metadata.ShaderResourceView{Buffer: ib.transform, Stride: stride, Format: format, NumElements: n * INSTANCE_TRANSFORM_ROWS}
	}
	if ib.dirty&columnLightmap != 0 {
		if err := ib.writeColumn(&ib.lightmap, LIGHTMAP_BUFFER_NAME, d.LightmapBytes(), INSTANCE_LIGHTMAP_STRIDE); err != nil {
			return err
		}
		ib.views.Lightmap = &metadata.ShaderResourceView{Buffer: ib.lightmap, Stride: INSTANCE_LIGHTMAP_STRIDE, Format: metadata.PIXEL_FORMAT_R16G16B16A16_SNORM, NumElements: n}
	}
	if ib.dirty&columnCustomData != 0 {
		if d.NumCustomDataFloats() == 0 || n == 0 {
			if ib.customData != nil {
				ib.backend.RenderBufferDestroy(ib.customData)
				ib.customData = nil
			}
			ib.views.CustomData = renderer.DummyFloatBuffer(ib.backend)
		} else {
			if err := ib.writeColumn(&ib.customData, CUSTOM_DATA_BUFFER_NAME, d.CustomDataBytes(), INSTANCE_CUSTOM_DATA_STRIDE); err != nil {
				return err
			}
			ib.views.CustomData = &metadata.ShaderResourceView{Buffer: ib.customData, Stride: INSTANCE_CUSTOM_DATA_STRIDE, Format: metadata.PIXEL_FORMAT_R32_FLOAT, NumElements: n * uint32(d.NumCustomDataFloats())}
		}
	}
	return nil
}
