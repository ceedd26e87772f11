package nanite

import (
	"encoding/binary"
	"fmt"
)

const pageHeaderSize = 16

/**
 * @brief A decoded cluster page. PageRefs always hold absolute page indices
 * once decoded, whatever the on-disk encoding was.
 */
type Page struct {
	Index        uint32
	Clusters     []PackedCluster
	PageRefs     []uint32
	GeometryData []byte
}

// EncodedSize returns the number of bytes MarshalPage produces for p.
func (p *Page) EncodedSize() int {
	return pageHeaderSize + len(p.Clusters)*NANITE_PACKED_CLUSTER_SIZE + len(p.PageRefs)*4 + len(p.GeometryData)
}

/**
 * @brief Encodes p. With relative set, page references are written as signed
 * deltas from pageIndex.
 */
func MarshalPage(p *Page, pageIndex uint32, relative bool) ([]byte, error) {
	if len(p.Clusters) > NANITE_MAX_CLUSTERS_PER_PAGE {
		return nil, fmt.Errorf("page %d has %d clusters, max is %d", pageIndex, len(p.Clusters), NANITE_MAX_CLUSTERS_PER_PAGE)
	}
	out := make([]byte, p.EncodedSize())
	binary.LittleEndian.PutUint32(out[0:], uint32(len(p.Clusters)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(p.PageRefs)))
	binary.LittleEndian.PutUint32(out[8:], uint32(len(p.GeometryData)))

	offset := pageHeaderSize
	for i := range p.Clusters {
		copy(out[offset:], p.Clusters[i].Marshal())
		offset += NANITE_PACKED_CLUSTER_SIZE
	}
	for _, ref := range p.PageRefs {
		v := ref
		if relative {
			v = uint32(int32(ref) - int32(pageIndex))
		}
		binary.LittleEndian.PutUint32(out[offset:], v)
		offset += 4
	}
	copy(out[offset:], p.GeometryData)
	return out, nil
}

/**
 * @brief Decodes a page previously written by MarshalPage.
 */
func UnmarshalPage(data []byte, pageIndex uint32, relative bool) (*Page, error) {
	if len(data) < pageHeaderSize {
		return nil, fmt.Errorf("page %d: %d bytes is smaller than the page header", pageIndex, len(data))
	}
	numClusters := binary.LittleEndian.Uint32(data[0:])
	numRefs := binary.LittleEndian.Uint32(data[4:])
	geometrySize := binary.LittleEndian.Uint32(data[8:])
	if numClusters > NANITE_MAX_CLUSTERS_PER_PAGE {
		return nil, fmt.Errorf("page %d: %d clusters exceeds %d", pageIndex, numClusters, NANITE_MAX_CLUSTERS_PER_PAGE)
	}
	need := pageHeaderSize + int(numClusters)*NANITE_PACKED_CLUSTER_SIZE + int(numRefs)*4 + int(geometrySize)
	if len(data) < need {
		return nil, fmt.Errorf("page %d: truncated, need %d bytes, got %d", pageIndex, need, len(data))
	}

	p := &Page{
		Index:    pageIndex,
		Clusters: make([]PackedCluster, numClusters),
		PageRefs: make([]uint32, numRefs),
	}
	offset := pageHeaderSize
	for i := range p.Clusters {
		c, err := UnmarshalPackedCluster(data[offset:])
		if err != nil {
			return nil, err
		}
		p.Clusters[i] = c
		offset += NANITE_PACKED_CLUSTER_SIZE
	}
	for i := range p.PageRefs {
		v := binary.LittleEndian.Uint32(data[offset:])
		if relative {
			v = uint32(int32(pageIndex) + int32(v))
		}
		p.PageRefs[i] = v
		offset += 4
	}
	p.GeometryData = append([]byte(nil), data[offset:offset+int(geometrySize)]...)
	return p, nil
}
