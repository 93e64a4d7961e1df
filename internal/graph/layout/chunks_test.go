package layout

import "testing"

func TestChunkFor_FloorDivision(t *testing.T) {
	m := NewChunkManager(2048)
	cases := []struct {
		x, y float64
		want ChunkCoord
	}{
		{0, 0, ChunkCoord{0, 0}},
		{2047.9, 0, ChunkCoord{0, 0}},
		{2048, 0, ChunkCoord{1, 0}},
		{-1, 0, ChunkCoord{-1, 0}},
		{-2048, -2049, ChunkCoord{-1, -2}},
	}
	for _, c := range cases {
		if got := m.ChunkFor(c.x, c.y); got != c.want {
			t.Fatalf("ChunkFor(%v,%v) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestChunksForEdge_SingleChunk(t *testing.T) {
	m := NewChunkManager(2048)
	got := m.ChunksForEdge(Position{X: 10, Y: 10}, Position{X: 500, Y: 900})
	if len(got) != 1 {
		t.Fatalf("chunks = %d, want 1", len(got))
	}
	if _, ok := got[ChunkCoord{0, 0}]; !ok {
		t.Fatalf("expected chunk (0,0), got %v", got)
	}
}

func TestChunksForEdge_CrossesChunks(t *testing.T) {
	m := NewChunkManager(2048)
	// Horizontal edge spanning three chunks; the middle one must be
	// picked up by sampling.
	got := m.ChunksForEdge(Position{X: 100, Y: 100}, Position{X: 5000, Y: 100})
	for _, want := range []ChunkCoord{{0, 0}, {1, 0}, {2, 0}} {
		if _, ok := got[want]; !ok {
			t.Fatalf("missing chunk %v in %v", want, got)
		}
	}
}

func TestGenerateIndex(t *testing.T) {
	m := NewChunkManager(2048)
	positions := map[string]Position{
		"a": {X: 0, Y: 0},
		"b": {X: 100, Y: 150},
		"c": {X: 3000, Y: 150},
	}
	nodes := []string{"a", "b", "c"}
	edges := []Edge{{Source: "a", Target: "b"}, {Source: "a", Target: "c"}}

	idx := m.GenerateIndex(nodes, edges, positions)
	if idx.ChunkSize != 2048 {
		t.Fatalf("chunk size = %d", idx.ChunkSize)
	}
	if idx.TotalChunks != len(idx.Chunks) {
		t.Fatalf("total = %d but %d metas", idx.TotalChunks, len(idx.Chunks))
	}
	if idx.TotalChunks != 2 {
		t.Fatalf("chunks = %d, want 2", idx.TotalChunks)
	}

	// Sorted by coordinates, so (0,0) precedes (1,0).
	first := idx.Chunks[0]
	if first.ChunkX != 0 || first.ChunkY != 0 {
		t.Fatalf("first chunk at (%d,%d)", first.ChunkX, first.ChunkY)
	}
	if first.NodeCount != 2 {
		t.Fatalf("chunk (0,0) nodes = %d, want 2", first.NodeCount)
	}
	// Both edges touch chunk (0,0); the a-c edge also reaches (1,0).
	if first.EdgeCount != 2 {
		t.Fatalf("chunk (0,0) edges = %d, want 2", first.EdgeCount)
	}
	second := idx.Chunks[1]
	if second.ChunkX != 1 || second.NodeCount != 1 || second.EdgeCount != 1 {
		t.Fatalf("chunk (1,0) = %+v", second)
	}

	// World bounds carry 10% chunk-size padding.
	pad := 2048.0 * 0.1
	if idx.WorldBounds.MinX != -pad || idx.WorldBounds.MaxX != 3000+pad {
		t.Fatalf("world bounds = %+v", idx.WorldBounds)
	}
}

func TestGenerateIndex_SkipsUnpositionedNodes(t *testing.T) {
	m := NewChunkManager(2048)
	positions := map[string]Position{"a": {X: 0, Y: 0}}
	idx := m.GenerateIndex([]string{"a", "ghost"}, []Edge{{Source: "a", Target: "ghost"}}, positions)
	if idx.TotalChunks != 1 {
		t.Fatalf("chunks = %d, want 1", idx.TotalChunks)
	}
	if idx.Chunks[0].NodeCount != 1 || idx.Chunks[0].EdgeCount != 0 {
		t.Fatalf("chunk = %+v", idx.Chunks[0])
	}
}

func TestFilterChunk(t *testing.T) {
	m := NewChunkManager(2048)
	positions := map[string]Position{
		"a": {X: 0, Y: 0},
		"b": {X: 3000, Y: 0},
	}
	nodes := []string{"a", "b"}
	edges := []Edge{{Source: "a", Target: "b"}}

	gotNodes, gotEdges := m.FilterChunk(ChunkCoord{0, 0}, nodes, edges, positions)
	if len(gotNodes) != 1 || gotNodes[0] != "a" {
		t.Fatalf("nodes = %v", gotNodes)
	}
	if len(gotEdges) != 1 {
		t.Fatalf("edges = %v, want the crossing edge", gotEdges)
	}

	gotNodes, gotEdges = m.FilterChunk(ChunkCoord{1, 0}, nodes, edges, positions)
	if len(gotNodes) != 1 || gotNodes[0] != "b" {
		t.Fatalf("nodes = %v", gotNodes)
	}
	if len(gotEdges) != 1 {
		t.Fatalf("edges = %v", gotEdges)
	}

	gotNodes, gotEdges = m.FilterChunk(ChunkCoord{5, 5}, nodes, edges, positions)
	if len(gotNodes) != 0 || len(gotEdges) != 0 {
		t.Fatalf("empty chunk returned %v / %v", gotNodes, gotEdges)
	}
}
