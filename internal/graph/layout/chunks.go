package layout

import (
	"math"
	"sort"
)

// DefaultChunkSize is the side length of one spatial chunk in world
// units.
const DefaultChunkSize = 2048

// ChunkCoord addresses a chunk on the integer grid. Coordinates can be
// negative; the layout is centered near x=0.
type ChunkCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Edge is a parent-child link between two laid-out nodes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type WorldBounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// ChunkMeta summarizes one chunk for the client's progressive loader.
type ChunkMeta struct {
	ChunkX      int         `json:"chunk_x"`
	ChunkY      int         `json:"chunk_y"`
	NodeCount   int         `json:"node_count"`
	EdgeCount   int         `json:"edge_count"`
	WorldBounds WorldBounds `json:"world_bounds"`
}

// ChunkIndex is the chunk distribution computed for one layout.
type ChunkIndex struct {
	Chunks      []ChunkMeta `json:"chunks"`
	WorldBounds WorldBounds `json:"world_bounds"`
	ChunkSize   int         `json:"chunk_size"`
	TotalChunks int         `json:"total_chunks"`
}

// ChunkManager divides world space into fixed-size square chunks and
// assigns nodes and edges to them.
type ChunkManager struct {
	chunkSize int
}

func NewChunkManager(chunkSize int) *ChunkManager {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ChunkManager{chunkSize: chunkSize}
}

func (m *ChunkManager) ChunkSize() int { return m.chunkSize }

// ChunkFor maps a world position to its containing chunk using floor
// division, so negative coordinates round toward negative infinity.
func (m *ChunkManager) ChunkFor(x, y float64) ChunkCoord {
	size := float64(m.chunkSize)
	return ChunkCoord{
		X: int(math.Floor(x / size)),
		Y: int(math.Floor(y / size)),
	}
}

// worldBounds computes the padded bounding box of all positions. The
// padding is 10% of the chunk size on every side.
func (m *ChunkManager) worldBounds(positions map[string]Position) WorldBounds {
	if len(positions) == 0 {
		return WorldBounds{}
	}
	first := true
	var minX, minY, maxX, maxY float64
	for _, p := range positions {
		if first {
			minX, maxX = p.X, p.X
			minY, maxY = p.Y, p.Y
			first = false
			continue
		}
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	padding := float64(m.chunkSize) * 0.1
	return WorldBounds{
		MinX: minX - padding,
		MinY: minY - padding,
		MaxX: maxX + padding,
		MaxY: maxY + padding,
	}
}

// ChunksForEdge returns every chunk a straight edge passes through. The
// line is sampled at twice the chunk-distance resolution, which cannot
// skip a chunk because consecutive samples are less than a chunk apart.
func (m *ChunkManager) ChunksForEdge(p1, p2 Position) map[ChunkCoord]struct{} {
	c1 := m.ChunkFor(p1.X, p1.Y)
	c2 := m.ChunkFor(p2.X, p2.Y)

	chunks := map[ChunkCoord]struct{}{c1: {}}
	if c1 == c2 {
		return chunks
	}
	chunks[c2] = struct{}{}

	dx := c2.X - c1.X
	if dx < 0 {
		dx = -dx
	}
	dy := c2.Y - c1.Y
	if dy < 0 {
		dy = -dy
	}
	samples := max(dx, dy)*2 + 1
	for i := 1; i < samples; i++ {
		t := float64(i) / float64(samples)
		x := p1.X + (p2.X-p1.X)*t
		y := p1.Y + (p2.Y-p1.Y)*t
		chunks[m.ChunkFor(x, y)] = struct{}{}
	}
	return chunks
}

// GenerateIndex assigns every node and edge to chunks and builds the
// chunk metadata list, sorted by coordinates.
func (m *ChunkManager) GenerateIndex(nodeIDs []string, edges []Edge, positions map[string]Position) *ChunkIndex {
	nodeCounts := make(map[ChunkCoord]int)
	for _, id := range nodeIDs {
		p, ok := positions[id]
		if !ok {
			continue
		}
		nodeCounts[m.ChunkFor(p.X, p.Y)]++
	}

	edgeCounts := make(map[ChunkCoord]int)
	for _, e := range edges {
		p1, ok1 := positions[e.Source]
		p2, ok2 := positions[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		for coord := range m.ChunksForEdge(p1, p2) {
			edgeCounts[coord]++
		}
	}

	coordSet := make(map[ChunkCoord]struct{}, len(nodeCounts))
	for c := range nodeCounts {
		coordSet[c] = struct{}{}
	}
	for c := range edgeCounts {
		coordSet[c] = struct{}{}
	}

	coords := make([]ChunkCoord, 0, len(coordSet))
	for c := range coordSet {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].X != coords[j].X {
			return coords[i].X < coords[j].X
		}
		return coords[i].Y < coords[j].Y
	})

	metas := make([]ChunkMeta, 0, len(coords))
	for _, c := range coords {
		worldX := float64(c.X * m.chunkSize)
		worldY := float64(c.Y * m.chunkSize)
		metas = append(metas, ChunkMeta{
			ChunkX:    c.X,
			ChunkY:    c.Y,
			NodeCount: nodeCounts[c],
			EdgeCount: edgeCounts[c],
			WorldBounds: WorldBounds{
				MinX: worldX,
				MinY: worldY,
				MaxX: worldX + float64(m.chunkSize),
				MaxY: worldY + float64(m.chunkSize),
			},
		})
	}

	return &ChunkIndex{
		Chunks:      metas,
		WorldBounds: m.worldBounds(positions),
		ChunkSize:   m.chunkSize,
		TotalChunks: len(metas),
	}
}

// FilterChunk returns the node IDs whose position lies in the chunk and
// the edges that pass through it.
func (m *ChunkManager) FilterChunk(coord ChunkCoord, nodeIDs []string, edges []Edge, positions map[string]Position) ([]string, []Edge) {
	var chunkNodes []string
	for _, id := range nodeIDs {
		p, ok := positions[id]
		if !ok {
			continue
		}
		if m.ChunkFor(p.X, p.Y) == coord {
			chunkNodes = append(chunkNodes, id)
		}
	}

	var chunkEdges []Edge
	for _, e := range edges {
		p1, ok1 := positions[e.Source]
		p2, ok2 := positions[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		if _, ok := m.ChunksForEdge(p1, p2)[coord]; ok {
			chunkEdges = append(chunkEdges, e)
		}
	}
	return chunkNodes, chunkEdges
}
