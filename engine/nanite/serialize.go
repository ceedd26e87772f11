package nanite

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

type resourceFileHeader struct {
	metadata.ResourceHeader
	ID                      uuid.UUID
	ResourceFlags           uint32
	PositionPrecision       int32
	NumInputTriangles       uint32
	NumInputVertices        uint32
	NumInputMeshes          uint16
	NumInputTexCoords       uint16
	NumClusters             uint32
	NumRootPages            uint32
	RootDataSize            uint32
	NumPageStreamingStates  uint32
	NumHierarchyNodes       uint32
	NumHierarchyRootOffsets uint32
	NumPageDependencies     uint32
	BulkDataSize            uint64
}

/**
 * @brief Writes the resource to w and its streamable pages to bulk. When target
 * cannot render virtualized geometry, pages and dependencies are stripped; the
 * scalar metadata and the hierarchy are kept.
 */
func (r *Resources) Serialize(w io.Writer, bulk io.Writer, target metadata.TargetPlatform) error {
	strip := !target.SupportsNanite

	h := resourceFileHeader{
		ResourceHeader: metadata.ResourceHeader{
			MagicNumber:  metadata.ResourceMagic,
			ResourceType: metadata.ResourceTypeNanite,
			Version:      NANITE_RESOURCE_VERSION,
		},
		ID:                      r.ID,
		ResourceFlags:           r.ResourceFlags,
		PositionPrecision:       r.PositionPrecision,
		NumInputTriangles:       r.NumInputTriangles,
		NumInputVertices:        r.NumInputVertices,
		NumInputMeshes:          r.NumInputMeshes,
		NumInputTexCoords:       r.NumInputTexCoords,
		NumClusters:             r.NumClusters,
		NumHierarchyNodes:       uint32(len(r.HierarchyNodes)),
		NumHierarchyRootOffsets: uint32(len(r.HierarchyRootOffsets)),
	}
	rootData, states, deps := r.RootData, r.PageStreamingStates, r.PageDependencies
	if strip {
		core.LogInfo("stripping nanite pages of %s for target '%s'", r.ID, target.Name)
		rootData, states, deps = nil, nil, nil
	} else {
		h.NumRootPages = r.NumRootPages
		h.BulkDataSize = uint64(r.StreamablePages.Size())
	}
	h.RootDataSize = uint32(len(rootData))
	h.NumPageStreamingStates = uint32(len(states))
	h.NumPageDependencies = uint32(len(deps))

	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("write nanite header: %w", err)
	}
	if _, err := w.Write(rootData); err != nil {
		return fmt.Errorf("write root data: %w", err)
	}
	for _, section := range []interface{}{states, r.HierarchyNodes, r.HierarchyRootOffsets, deps} {
		if err := binary.Write(w, binary.LittleEndian, section); err != nil {
			return fmt.Errorf("write nanite section: %w", err)
		}
	}

	if h.BulkDataSize > 0 {
		if bulk == nil {
			return fmt.Errorf("resource %s has %d bytes of streamable pages but no bulk writer", r.ID, h.BulkDataSize)
		}
		if _, err := r.StreamablePages.WriteTo(bulk); err != nil {
			return fmt.Errorf("write bulk data: %w", err)
		}
	}
	return nil
}

// remaining reports how many bytes rd still holds, when it can tell.
func remaining(rd io.Reader) (int64, bool) {
	switch v := rd.(type) {
	case interface{ Len() int }:
		return int64(v.Len()), true
	case io.Seeker:
		cur, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, false
		}
		end, err := v.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, false
		}
		if _, err := v.Seek(cur, io.SeekStart); err != nil {
			return 0, false
		}
		return end - cur, true
	}
	return 0, false
}

// checkCounts rejects headers whose tables could not have been written by Serialize.
func (h *resourceFileHeader) checkCounts(rd io.Reader) error {
	switch {
	case h.NumPageStreamingStates > NANITE_MAX_RESOURCE_PAGES:
		return fmt.Errorf("%w: %d pages, at most %d", core.ErrCorruptResource, h.NumPageStreamingStates, NANITE_MAX_RESOURCE_PAGES)
	case h.NumRootPages > h.NumPageStreamingStates:
		return fmt.Errorf("%w: %d root pages of %d", core.ErrCorruptResource, h.NumRootPages, h.NumPageStreamingStates)
	case h.NumHierarchyNodes > NANITE_MAX_RESOURCE_PAGES || h.NumHierarchyRootOffsets > NANITE_MAX_RESOURCE_PAGES:
		return fmt.Errorf("%w: %d hierarchy nodes, %d root offsets", core.ErrCorruptResource, h.NumHierarchyNodes, h.NumHierarchyRootOffsets)
	case uint64(h.NumPageDependencies) > uint64(h.NumPageStreamingStates)*uint64(h.NumPageStreamingStates):
		return fmt.Errorf("%w: %d dependencies for %d pages", core.ErrCorruptResource, h.NumPageDependencies, h.NumPageStreamingStates)
	}

	size := uint64(h.RootDataSize) +
		uint64(h.NumPageStreamingStates)*NANITE_PAGE_STREAMING_STATE_SIZE +
		uint64(h.NumHierarchyNodes)*NANITE_PACKED_HIERARCHY_NODE_SIZE +
		uint64(h.NumHierarchyRootOffsets)*4 +
		uint64(h.NumPageDependencies)*4
	if left, ok := remaining(rd); ok && size > uint64(left) {
		return fmt.Errorf("%w: tables need %d bytes, %d left", core.ErrCorruptResource, size, left)
	}
	return nil
}

/**
 * @brief Reads a resource written by Serialize. bulk may be nil for resources
 * without streamable pages.
 */
func DeserializeResources(rd io.Reader, bulk *BulkData) (*Resources, error) {
	var h resourceFileHeader
	if err := binary.Read(rd, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read nanite header: %w", err)
	}
	if err := h.Check(metadata.ResourceTypeNanite, NANITE_RESOURCE_VERSION); err != nil {
		return nil, err
	}
	if err := h.checkCounts(rd); err != nil {
		return nil, err
	}

	// Root data grows as it is read so a bad size on a stream of unknown length cannot over-allocate.
	rootData, err := io.ReadAll(io.LimitReader(rd, int64(h.RootDataSize)))
	if err != nil {
		return nil, fmt.Errorf("read root data: %w", err)
	}
	if uint32(len(rootData)) != h.RootDataSize {
		return nil, fmt.Errorf("read root data: %w", io.ErrUnexpectedEOF)
	}

	r := &Resources{
		ID:                   h.ID,
		ResourceFlags:        h.ResourceFlags,
		PositionPrecision:    h.PositionPrecision,
		NumInputTriangles:    h.NumInputTriangles,
		NumInputVertices:     h.NumInputVertices,
		NumInputMeshes:       h.NumInputMeshes,
		NumInputTexCoords:    h.NumInputTexCoords,
		NumClusters:          h.NumClusters,
		NumRootPages:         h.NumRootPages,
		RootData:             rootData,
		PageStreamingStates:  make([]PageStreamingState, h.NumPageStreamingStates),
		HierarchyNodes:       make([]PackedHierarchyNode, h.NumHierarchyNodes),
		HierarchyRootOffsets: make([]uint32, h.NumHierarchyRootOffsets),
		PageDependencies:     make([]uint32, h.NumPageDependencies),
	}
	for _, section := range []interface{}{r.PageStreamingStates, r.HierarchyNodes, r.HierarchyRootOffsets, r.PageDependencies} {
		if err := binary.Read(rd, binary.LittleEndian, section); err != nil {
			return nil, fmt.Errorf("read nanite section: %w", err)
		}
	}

	if h.BulkDataSize > 0 {
		if uint64(bulk.Size()) < h.BulkDataSize {
			return nil, fmt.Errorf("resource %s needs %d bytes of bulk data, got %d", h.ID, h.BulkDataSize, bulk.Size())
		}
		r.StreamablePages = bulk
	}

	if err := r.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return r, nil
}
