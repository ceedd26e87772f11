package nanite

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/instancer/engine/math"
)

type builderPage struct {
	page         Page
	dependencies []uint32
}

type buildChild struct {
	bounds   math.BoxSphereBounds
	lodError float32
	leaf     bool
	page     uint32
	numPages uint32
	partSize uint32
	// Index of the child node in the level below, inner children only.
	node int
}

type buildNode struct {
	children []buildChild
}

/**
 * @brief Assembles a Resources from pages of clusters. The first NumRootPages
 * pages are stored inline, the rest go to the bulk blob. Each page becomes one
 * leaf of a fan-out NANITE_MAX_BVH_NODE_FANOUT hierarchy.
 */
type ResourceBuilder struct {
	id                uuid.UUID
	pages             []builderPage
	numRootPages      uint32
	relative          bool
	positionPrecision int32
	numInputTriangles uint32
	numInputVertices  uint32
	numInputMeshes    uint16
	numInputTexCoords uint16
	resourceFlags     uint32
}

func NewResourceBuilder() *ResourceBuilder {
	return &ResourceBuilder{
		id:             uuid.New(),
		numRootPages:   1,
		numInputMeshes: 1,
	}
}

func (b *ResourceBuilder) WithID(id uuid.UUID) *ResourceBuilder {
	b.id = id
	return b
}

func (b *ResourceBuilder) WithRootPages(n uint32) *ResourceBuilder {
	b.numRootPages = n
	return b
}

// WithRelativeEncoding stores page references of every page relative to the page index.
func (b *ResourceBuilder) WithRelativeEncoding(relative bool) *ResourceBuilder {
	b.relative = relative
	return b
}

func (b *ResourceBuilder) WithPositionPrecision(p int32) *ResourceBuilder {
	b.positionPrecision = p
	return b
}

func (b *ResourceBuilder) WithInputCounts(triangles, vertices uint32, meshes, texCoords uint16) *ResourceBuilder {
	b.numInputTriangles = triangles
	b.numInputVertices = vertices
	b.numInputMeshes = meshes
	b.numInputTexCoords = texCoords
	return b
}

func (b *ResourceBuilder) WithResourceFlags(flags uint32) *ResourceBuilder {
	b.resourceFlags = flags
	return b
}

/**
 * @brief Appends a page and returns its index. pageRefs are absolute page
 * indices embedded in the page, dependencies must be resident before it.
 */
func (b *ResourceBuilder) AddPage(clusters []PackedCluster, pageRefs, dependencies []uint32, geometry []byte) uint32 {
	index := uint32(len(b.pages))
	b.pages = append(b.pages, builderPage{
		page: Page{
			Index:        index,
			Clusters:     append([]PackedCluster(nil), clusters...),
			PageRefs:     append([]uint32(nil), pageRefs...),
			GeometryData: append([]byte(nil), geometry...),
		},
		dependencies: append([]uint32(nil), dependencies...),
	})
	return index
}

func pageBounds(p *Page) (math.BoxSphereBounds, float32) {
	var bounds math.BoxSphereBounds
	var lodError float32
	for i := range p.Clusters {
		c := &p.Clusters[i]
		cb := math.NewBoxSphereBounds(c.GetBoxBoundsCenter(), c.GetBoxBoundsExtent(), c.GetBoxBoundsExtent().Length())
		if i == 0 {
			bounds = cb
		} else {
			bounds = bounds.Union(cb)
		}
		if e, _ := c.GetLODErrorAndEdgeLength(); e > lodError {
			lodError = e
		}
	}
	return bounds, lodError
}

func (b *ResourceBuilder) Build() (*Resources, error) {
	r := &Resources{
		ID:                b.id,
		PositionPrecision: b.positionPrecision,
		NumInputTriangles: b.numInputTriangles,
		NumInputVertices:  b.numInputVertices,
		NumInputMeshes:    b.numInputMeshes,
		NumInputTexCoords: b.numInputTexCoords,
		ResourceFlags:     b.resourceFlags,
	}
	if len(b.pages) == 0 {
		return r, nil
	}
	if len(b.pages) > NANITE_MAX_RESOURCE_PAGES {
		return nil, fmt.Errorf("%d pages exceeds the %d page limit", len(b.pages), NANITE_MAX_RESOURCE_PAGES)
	}
	r.NumRootPages = b.numRootPages
	if r.NumRootPages > uint32(len(b.pages)) {
		r.NumRootPages = uint32(len(b.pages))
	}

	var bulk []byte
	for i := range b.pages {
		bp := &b.pages[i]
		index := uint32(i)
		data, err := MarshalPage(&bp.page, index, b.relative)
		if err != nil {
			return nil, err
		}
		state := PageStreamingState{
			BulkSize:          uint32(len(data)),
			PageSize:          uint32(len(data)),
			DependenciesStart: uint32(len(r.PageDependencies)),
			DependenciesNum:   uint16(len(bp.dependencies)),
		}
		if b.relative {
			state.Flags |= NANITE_PAGE_FLAG_RELATIVE_ENCODING
		}
		if index < r.NumRootPages {
			state.BulkOffset = uint32(len(r.RootData))
			r.RootData = append(r.RootData, data...)
		} else {
			state.BulkOffset = uint32(len(bulk))
			bulk = append(bulk, data...)
		}
		r.PageDependencies = append(r.PageDependencies, bp.dependencies...)
		r.PageStreamingStates = append(r.PageStreamingStates, state)
		r.NumClusters += uint32(len(bp.page.Clusters))
	}
	r.StreamablePages = NewBulkDataFromBytes(bulk)
	r.HierarchyNodes = b.buildHierarchy()
	r.HierarchyRootOffsets = []uint32{0}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func groupChildren(children []buildChild) []buildNode {
	var nodes []buildNode
	for start := 0; start < len(children); start += NANITE_MAX_BVH_NODE_FANOUT {
		end := min(start+NANITE_MAX_BVH_NODE_FANOUT, len(children))
		nodes = append(nodes, buildNode{children: children[start:end]})
	}
	return nodes
}

func (b *ResourceBuilder) buildHierarchy() []PackedHierarchyNode {
	leaves := make([]buildChild, len(b.pages))
	for i := range b.pages {
		bounds, lodError := pageBounds(&b.pages[i].page)
		leaves[i] = buildChild{
			bounds:   bounds,
			lodError: lodError,
			leaf:     true,
			page:     uint32(i),
			numPages: 1,
			partSize: uint32(max(len(b.pages[i].page.Clusters), 1)),
		}
	}

	// levels[0] holds the nodes right above the leaves, the last level the root.
	levels := [][]buildNode{groupChildren(leaves)}
	for len(levels[len(levels)-1]) > 1 {
		below := levels[len(levels)-1]
		parents := make([]buildChild, len(below))
		for i, n := range below {
			child := buildChild{node: i}
			for j, c := range n.children {
				if j == 0 {
					child.bounds = c.bounds
				} else {
					child.bounds = child.bounds.Union(c.bounds)
				}
				child.lodError = max(child.lodError, c.lodError)
			}
			parents[i] = child
		}
		levels = append(levels, groupChildren(parents))
	}

	// Emit root first, then each level below it.
	offsets := make([]int, len(levels))
	total := 0
	for l := len(levels) - 1; l >= 0; l-- {
		offsets[l] = total
		total += len(levels[l])
	}

	out := make([]PackedHierarchyNode, total)
	for l, level := range levels {
		for i, n := range level {
			node := NewPackedHierarchyNode()
			for c, child := range n.children {
				node.SetLODBounds(c, child.bounds.Sphere())
				node.SetBox(c, child.bounds.Origin, child.bounds.BoxExtent)
				node.SetLODErrors(c, child.lodError, child.lodError)
				if child.leaf {
					node.SetChildStartReference(c, 0)
					node.SetPageIndex(c, child.page)
					node.SetNumPages(c, child.numPages)
					node.SetGroupPartSize(c, child.partSize)
				} else {
					node.SetChildStartReference(c, uint32(offsets[l-1]+child.node))
				}
			}
			out[offsets[l]+i] = node
		}
	}
	return out
}
