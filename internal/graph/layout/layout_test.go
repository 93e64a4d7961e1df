package layout

import (
	"math"
	"testing"
)

func node(id string, children ...*Node) *Node {
	return &Node{ID: id, Children: children}
}

func TestCompute_EmptyTree(t *testing.T) {
	if got := Compute(nil); len(got) != 0 {
		t.Fatalf("expected empty positions, got %v", got)
	}
}

func TestCompute_SingleNode(t *testing.T) {
	got := Compute(node("root"))
	p, ok := got["root"]
	if !ok {
		t.Fatal("root missing from positions")
	}
	if p.X != 0 || p.Y != 0 {
		t.Fatalf("root at (%v,%v), want origin", p.X, p.Y)
	}
}

func TestCompute_LevelsGetLevelHeight(t *testing.T) {
	root := node("r", node("a", node("a1")), node("b"))
	got := Compute(root)
	if got["r"].Y != 0 {
		t.Fatalf("root y = %v", got["r"].Y)
	}
	if got["a"].Y != LevelHeight || got["b"].Y != LevelHeight {
		t.Fatalf("depth-1 y = %v, %v, want %v", got["a"].Y, got["b"].Y, LevelHeight)
	}
	if got["a1"].Y != 2*LevelHeight {
		t.Fatalf("depth-2 y = %v, want %v", got["a1"].Y, 2*LevelHeight)
	}
}

func TestCompute_ParentCenteredOverChildren(t *testing.T) {
	root := node("r", node("a"), node("b"), node("c"))
	got := Compute(root)
	mid := (got["a"].X + got["c"].X) / 2
	if math.Abs(got["r"].X-mid) > 1e-9 {
		t.Fatalf("root x = %v, want centered at %v", got["r"].X, mid)
	}
}

func TestCompute_SiblingsKeepMinDistance(t *testing.T) {
	root := node("r", node("a"), node("b"), node("c"))
	got := Compute(root)
	if d := got["b"].X - got["a"].X; d < MinDistance-1e-9 {
		t.Fatalf("a-b gap = %v, want >= %v", d, MinDistance)
	}
	if d := got["c"].X - got["b"].X; d < MinDistance-1e-9 {
		t.Fatalf("b-c gap = %v, want >= %v", d, MinDistance)
	}
}

// Two wide subtrees must be pushed apart so no pair of same-depth nodes
// ends up closer than the minimum distance.
func TestCompute_SubtreesDoNotOverlap(t *testing.T) {
	left := node("l", node("l1"), node("l2"), node("l3"))
	right := node("r", node("r1"), node("r2"), node("r3"))
	root := node("root", left, right)
	got := Compute(root)

	byDepth := map[float64][]Position{}
	for _, p := range got {
		byDepth[p.Y] = append(byDepth[p.Y], p)
	}
	for y, ps := range byDepth {
		for i := range ps {
			for j := i + 1; j < len(ps); j++ {
				if d := math.Abs(ps[i].X - ps[j].X); d < MinDistance-1e-9 {
					t.Fatalf("nodes at depth %v only %v apart", y, d)
				}
			}
		}
	}
}

func TestCompute_LeftToRightOrderPreserved(t *testing.T) {
	root := node("r", node("a"), node("b"), node("c"))
	got := Compute(root)
	if !(got["a"].X < got["b"].X && got["b"].X < got["c"].X) {
		t.Fatalf("sibling order violated: a=%v b=%v c=%v", got["a"].X, got["b"].X, got["c"].X)
	}
}

// Identical subtrees get identical internal layouts regardless of where
// they sit in the tree.
func TestCompute_IdenticalSubtreesIdenticalShape(t *testing.T) {
	mk := func(prefix string) *Node {
		return node(prefix, node(prefix+"1"), node(prefix+"2"))
	}
	root := node("root", mk("a"), mk("b"))
	got := Compute(root)

	aSpan := got["a2"].X - got["a1"].X
	bSpan := got["b2"].X - got["b1"].X
	if math.Abs(aSpan-bSpan) > 1e-9 {
		t.Fatalf("subtree spans differ: %v vs %v", aSpan, bSpan)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	mk := func() *Node {
		return node("root",
			node("k", node("p1", node("c1"), node("c2")), node("p2")),
			node("k2", node("p3")),
		)
	}
	a := Compute(mk())
	b := Compute(mk())
	if len(a) != len(b) {
		t.Fatalf("position counts differ: %d vs %d", len(a), len(b))
	}
	for id, p := range a {
		if q := b[id]; p != q {
			t.Fatalf("node %s moved between runs: %v vs %v", id, p, q)
		}
	}
}

func TestCompute_ReusableNodes(t *testing.T) {
	// Running layout twice over the same allocated tree must reset
	// internal state and produce the same result.
	root := node("r", node("a", node("a1"), node("a2")), node("b"))
	first := Compute(root)
	second := Compute(root)
	for id, p := range first {
		if q := second[id]; p != q {
			t.Fatalf("node %s moved on re-layout: %v vs %v", id, p, q)
		}
	}
}
