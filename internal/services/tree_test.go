package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/biologidex-backend/internal/graph/layout"
)

func TestVirtualNodeID(t *testing.T) {
	if got := virtualNodeID("family", "Felidae"); got != "family_Felidae" {
		t.Fatalf("got %q", got)
	}
	if got := virtualNodeID("order", "New World Monkeys"); got != "order_New_World_Monkeys" {
		t.Fatalf("spaces not replaced: %q", got)
	}
}

func buildSampleTree() *builderNode {
	animalA := uuid.New()
	animalB := uuid.New()

	root := newBuilderNode(TreeNode{ID: "root_Life", Name: "Life", Rank: "root"})
	kingdom := newBuilderNode(TreeNode{ID: "kingdom_Animalia", Name: "Animalia", Rank: "kingdom"})
	family := newBuilderNode(TreeNode{ID: "family_Canidae", Name: "Canidae", Rank: "family"})
	leafA := newBuilderNode(TreeNode{ID: animalA.String(), Name: "Vulpes vulpes", Rank: "animal", AnimalID: &animalA})
	leafB := newBuilderNode(TreeNode{ID: animalB.String(), Name: "Canis lupus", Rank: "animal", AnimalID: &animalB})

	family.children = []*builderNode{leafA, leafB}
	kingdom.children = []*builderNode{family}
	root.children = []*builderNode{kingdom}
	return root
}

func TestAnnotateCounts(t *testing.T) {
	root := buildSampleTree()
	total := annotateCounts(root)
	if total != 2 {
		t.Fatalf("total animals = %d, want 2", total)
	}
	if root.node.ChildrenCount != 1 {
		t.Fatalf("root children_count = %d, want 1", root.node.ChildrenCount)
	}
	if root.node.AnimalCount != 2 {
		t.Fatalf("root animal_count = %d, want 2", root.node.AnimalCount)
	}
	family := root.children[0].children[0]
	if family.node.ChildrenCount != 2 || family.node.AnimalCount != 2 {
		t.Fatalf("family counts = (%d, %d), want (2, 2)",
			family.node.ChildrenCount, family.node.AnimalCount)
	}
	leaf := family.children[0]
	if leaf.node.ChildrenCount != 0 || leaf.node.AnimalCount != 0 {
		t.Fatal("animal leaves should not carry taxonomic counts")
	}
}

func TestFlatten(t *testing.T) {
	root := buildSampleTree()

	var nodes []TreeNode
	var edges []layout.Edge
	layoutRoot := flatten(root, &nodes, &edges)

	if len(nodes) != 5 {
		t.Fatalf("flattened %d nodes, want 5", len(nodes))
	}
	if len(edges) != 4 {
		t.Fatalf("flattened %d edges, want 4", len(edges))
	}
	if nodes[0].ID != "root_Life" {
		t.Fatalf("first node is %q, want root", nodes[0].ID)
	}
	if edges[0].Source != "root_Life" || edges[0].Target != "kingdom_Animalia" {
		t.Fatalf("unexpected first edge %+v", edges[0])
	}
	if layoutRoot.ID != "root_Life" || len(layoutRoot.Children) != 1 {
		t.Fatal("layout tree does not mirror the builder tree")
	}

	// Every edge endpoint must exist as a node so chunking stays closed.
	ids := map[string]bool{}
	for _, n := range nodes {
		ids[n.ID] = true
	}
	for _, e := range edges {
		if !ids[e.Source] || !ids[e.Target] {
			t.Fatalf("edge %+v references a missing node", e)
		}
	}

	positions := layout.Compute(layoutRoot)
	if len(positions) != len(nodes) {
		t.Fatalf("layout positioned %d nodes, want %d", len(positions), len(nodes))
	}
}

func TestTreeTTL(t *testing.T) {
	if treeTTL(TreeModeGlobal) <= treeTTL(TreeModePersonal) {
		t.Fatal("global tree should cache longer than per-user trees")
	}
}
