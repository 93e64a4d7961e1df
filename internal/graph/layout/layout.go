package layout

// Walker-Buchheim tidy tree layout. Linear time in the node count, with
// contour threading and shift distribution between sibling subtrees.
// References: Reingold & Tilford (1981), Walker (1990), Buchheim,
// Juenger & Leipert (2002).

const (
	// MinDistance is the minimum horizontal gap between node centers.
	MinDistance = 100.0
	// LevelHeight is the vertical gap between tree depths.
	LevelHeight = 150.0
)

// Node is one vertex of the tree handed to the layout engine. Children
// order is the left-to-right drawing order and is preserved.
type Node struct {
	ID       string
	Rank     string
	Name     string
	Children []*Node

	x, y   float64
	prelim float64
	mod    float64
	shift  float64
	change float64
	thread *Node
	anc    *Node
	parent *Node
	number int
}

// Position is a final node coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type engine struct {
	distance    float64
	levelHeight float64
}

// Compute positions every node of the tree rooted at root and returns a
// map from node ID to coordinates. The root lands at x=0.
func Compute(root *Node) map[string]Position {
	return ComputeWithSpacing(root, MinDistance, LevelHeight)
}

func ComputeWithSpacing(root *Node, minDistance, levelHeight float64) map[string]Position {
	if root == nil {
		return map[string]Position{}
	}
	e := &engine{distance: minDistance, levelHeight: levelHeight}

	prepare(root, nil, 0)
	e.firstWalk(root)
	e.secondWalk(root, -root.prelim, 0)

	positions := make(map[string]Position)
	collect(root, positions)
	return positions
}

// prepare resets layout state and wires parent and sibling-index
// references. Leaves built from capture records get the same treatment
// as taxonomy nodes; missing parent pointers skew sibling spacing.
func prepare(n *Node, parent *Node, number int) {
	n.x, n.y = 0, 0
	n.prelim, n.mod, n.shift, n.change = 0, 0, 0, 0
	n.thread = nil
	n.anc = n
	n.parent = parent
	n.number = number
	for i, child := range n.Children {
		prepare(child, n, i)
	}
}

func (n *Node) isLeaf() bool { return len(n.Children) == 0 }

func (n *Node) leftSibling() *Node {
	if n.parent != nil && n.number > 0 {
		return n.parent.Children[n.number-1]
	}
	return nil
}

func (n *Node) leftmostSibling() *Node {
	if n.parent != nil && n.number > 0 {
		return n.parent.Children[0]
	}
	return nil
}

// nextLeft follows the left contour: first child, or the thread.
func (n *Node) nextLeft() *Node {
	if len(n.Children) > 0 {
		return n.Children[0]
	}
	return n.thread
}

func (n *Node) nextRight() *Node {
	if len(n.Children) > 0 {
		return n.Children[len(n.Children)-1]
	}
	return n.thread
}

// firstWalk is the post-order pass computing preliminary x coordinates
// and subtree modifiers.
func (e *engine) firstWalk(n *Node) {
	if n.isLeaf() {
		if left := n.leftSibling(); left != nil {
			n.prelim = left.prelim + e.distance
		}
		return
	}

	defaultAncestor := n.Children[0]
	for _, child := range n.Children {
		e.firstWalk(child)
		defaultAncestor = e.apportion(child, defaultAncestor)
	}
	e.executeShifts(n)

	leftmost := n.Children[0]
	rightmost := n.Children[len(n.Children)-1]
	midpoint := (leftmost.prelim + rightmost.prelim) / 2

	if left := n.leftSibling(); left != nil {
		n.prelim = left.prelim + e.distance
		n.mod = n.prelim - midpoint
	} else {
		n.prelim = midpoint
	}
}

// apportion walks the inner contours of the new subtree and its left
// neighbor, shifting the new subtree right whenever the contours touch.
func (e *engine) apportion(n *Node, defaultAncestor *Node) *Node {
	leftSib := n.leftSibling()
	if leftSib == nil {
		return defaultAncestor
	}

	vip, vop := n, n
	vim := leftSib
	vom := n.leftmostSibling()

	sip, sop := vip.mod, vop.mod
	sim, som := vim.mod, vom.mod

	for vim.nextRight() != nil && vip.nextLeft() != nil {
		vim = vim.nextRight()
		vip = vip.nextLeft()
		vom = vom.nextLeft()
		vop = vop.nextRight()

		vop.anc = n

		shift := (vim.prelim + sim) - (vip.prelim + sip) + e.distance
		if shift > 0 {
			e.moveSubtree(ancestor(vim, n, defaultAncestor), n, shift)
			sip += shift
			sop += shift
		}

		sim += vim.mod
		sip += vip.mod
		som += vom.mod
		sop += vop.mod
	}

	if vim.nextRight() != nil && vop.nextRight() == nil {
		vop.thread = vim.nextRight()
		vop.mod += sim - sop
	}
	if vip.nextLeft() != nil && vom.nextLeft() == nil {
		vom.thread = vip.nextLeft()
		vom.mod += sip - som
		defaultAncestor = n
	}
	return defaultAncestor
}

// moveSubtree shifts wr (and everything under it) right by shift,
// spreading the adjustment across the siblings between wl and wr.
func (e *engine) moveSubtree(wl, wr *Node, shift float64) {
	subtrees := float64(wr.number - wl.number)
	if subtrees <= 0 {
		return
	}
	wr.change -= shift / subtrees
	wr.shift += shift
	wl.change += shift / subtrees
	wr.prelim += shift
	wr.mod += shift
}

// executeShifts applies accumulated shift and change values to the
// children, right to left.
func (e *engine) executeShifts(n *Node) {
	var shift, change float64
	for i := len(n.Children) - 1; i >= 0; i-- {
		child := n.Children[i]
		child.prelim += shift
		child.mod += shift
		change += child.change
		shift += child.shift + change
	}
}

func ancestor(vim, n, defaultAncestor *Node) *Node {
	if vim.anc.parent == n.parent {
		return vim.anc
	}
	return defaultAncestor
}

// secondWalk is the pre-order pass applying modifiers top-down.
func (e *engine) secondWalk(n *Node, modsum float64, depth int) {
	n.x = n.prelim + modsum
	n.y = float64(depth) * e.levelHeight
	for _, child := range n.Children {
		e.secondWalk(child, modsum+n.mod, depth+1)
	}
}

func collect(n *Node, positions map[string]Position) {
	positions[n.ID] = Position{X: n.x, Y: n.y}
	for _, child := range n.Children {
		collect(child, positions)
	}
}
