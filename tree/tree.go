// Package tree provides a basic phylogenetic tree structure, a newick
// parser and nearest-neighbor interchange support.
package tree

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mode is a parser mode.
type Mode int

// Parser modes.
const (
	NORMAL Mode = iota
	LENGTH
	CLASS
)

// Tree is a phylogenetic tree. It embeds the root node and caches
// node enumerations.
type Tree struct {
	*Node
	nNodes    int
	nodes     []*Node
	nodeOrder []*Node
}

// ClearCache invalidates cached node enumerations. Call after
// changing the tree structure.
func (tree *Tree) ClearCache() {
	tree.nNodes = 0
	tree.nodes = nil
	tree.nodeOrder = nil
}

// NNodes returns the total number of nodes.
func (tree *Tree) NNodes() int {
	if tree.nNodes == 0 {
		tree.nNodes = tree.NSubNodes()
	}
	return tree.nNodes
}

// MaxNodeID returns the largest node ID in the tree. Node IDs are
// assigned sequentially by the parser, so this is normally
// NNodes() - 1; it stays correct after node rewiring since IDs are
// preserved.
func (tree *Tree) MaxNodeID() (maxID int) {
	for node := range tree.Walker(nil) {
		if node.ID > maxID {
			maxID = node.ID
		}
	}
	return
}

// Nodes returns a slice of all nodes indexed by node ID.
func (tree *Tree) Nodes() []*Node {
	if tree.nodes == nil {
		tree.nodes = make([]*Node, tree.NNodes())
		for node := range tree.Walker(nil) {
			tree.nodes[node.ID] = node
		}
	}
	return tree.nodes
}

// Terminals returns a channel with all the leaves.
func (tree *Tree) Terminals() <-chan *Node {
	return tree.Walker(func(node *Node) bool {
		return node.IsTerminal()
	})
}

// NonTerminals returns a channel with all the internal nodes.
func (tree *Tree) NonTerminals() <-chan *Node {
	return tree.Walker(func(node *Node) bool {
		return !node.IsTerminal()
	})
}

// ClassNodes returns a channel with all nodes of a given class.
func (tree *Tree) ClassNodes(class int) <-chan *Node {
	return tree.Walker(func(node *Node) bool {
		return node.Class == class
	})
}

// NLeaves returns the number of leaves.
func (tree *Tree) NLeaves() (i int) {
	for range tree.Terminals() {
		i++
	}
	return
}

// LeafNames returns the names of all leaves.
func (tree *Tree) LeafNames() (names []string) {
	names = make([]string, 0, tree.NLeaves())
	for node := range tree.Terminals() {
		names = append(names, node.Name)
	}
	return
}

// IsRooted returns true if the root node has two children.
func (tree *Tree) IsRooted() bool {
	return len(tree.Node.childNodes) == 2
}

// Walker returns a channel iterating over nodes matching the filter.
// A nil filter matches every node.
func (tree *Tree) Walker(filter func(*Node) bool) <-chan *Node {
	ch := make(chan *Node, tree.NNodes())
	tree.Walk(ch, filter)
	close(ch)
	return ch
}

// Copy creates an independent copy of the tree.
func (tree *Tree) Copy() (newTree *Tree) {
	nNodes := tree.NNodes()
	newTree = &Tree{
		nNodes:    nNodes,
		nodes:     make([]*Node, nNodes),
		nodeOrder: make([]*Node, len(tree.NodeOrder())),
	}

	for i, node := range tree.Nodes() {
		if i != node.ID {
			panic("node id mismatch")
		}
		newTree.nodes[i] = node.Copy()
	}

	// Rewire node/parent connections.
	for i, node := range tree.Nodes() {
		newNode := newTree.nodes[i]
		for _, child := range node.childNodes {
			newNode.AddChild(newTree.nodes[child.ID])
		}
	}

	for i, node := range tree.NodeOrder() {
		newTree.nodeOrder[i] = newTree.nodes[node.ID]
	}

	newTree.Node = newTree.nodes[tree.Node.ID]

	return
}

// NodeOrder returns nodes in an order suitable for a post-order
// traversal: every node appears after all of its children. Leaves are
// not included.
func (tree *Tree) NodeOrder() []*Node {
	if tree.nodeOrder == nil {
		tree.nodeOrder = make([]*Node, 0, tree.NNodes())
		computed := make(map[*Node]bool, tree.NNodes())
		awaiting := make(chan *Node, tree.NNodes()*2)
		for node := range tree.Terminals() {
			computed[node] = true
			awaiting <- node.Parent
		}

		for node := range awaiting {
			if node == nil {
				break
			}
			if computed[node] {
				continue
			}
			allComputed := true
			for _, childNode := range node.ChildNodes() {
				if !computed[childNode] {
					allComputed = false
					break
				}
			}
			if !allComputed {
				awaiting <- node
			} else {
				tree.nodeOrder = append(tree.nodeOrder, node)
				computed[node] = true
				awaiting <- node.Parent
			}
		}
	}
	return tree.nodeOrder
}

// NNISwap performs a nearest-neighbor interchange: the given child of
// node is exchanged with node's sibling in node.Parent. Positions in
// the child slices are preserved, so calling NNISwap again with the
// same arguments reverts the interchange. Node IDs and branch lengths
// are untouched.
func (tree *Tree) NNISwap(node *Node, child int) error {
	if node.IsRoot() {
		return errors.New("cannot perform interchange on the root")
	}
	if node.IsTerminal() {
		return errors.New("cannot perform interchange on a leaf")
	}
	if child < 0 || child >= len(node.childNodes) {
		return errors.New("child index out of range")
	}
	parent := node.Parent
	sibling := -1
	for i, n := range parent.childNodes {
		if n != node {
			sibling = i
			break
		}
	}
	if sibling < 0 {
		return errors.New("node has no sibling")
	}
	down := node.childNodes[child]
	up := parent.childNodes[sibling]
	node.childNodes[child] = up
	parent.childNodes[sibling] = down
	up.Parent = node
	down.Parent = parent
	// Cached traversal order is no longer valid; node identities and
	// ids are unchanged.
	tree.nodeOrder = nil
	return nil
}

// Node is a node of a phylogenetic tree.
type Node struct {
	Name         string
	BranchLength float64
	Parent       *Node
	childNodes   []*Node
	ID           int
	LeafID       int
	Class        int
}

// NewNode creates a new node with a given parent and id.
func NewNode(parent *Node, nodeID int) (node *Node) {
	node = &Node{Parent: parent, ID: nodeID}
	return
}

// Copy creates a copy of the node with empty parent and children.
func (node *Node) Copy() *Node {
	return &Node{
		Name:         node.Name,
		BranchLength: node.BranchLength,
		childNodes:   make([]*Node, 0, len(node.childNodes)),
		ID:           node.ID,
		LeafID:       node.LeafID,
		Class:        node.Class,
	}
}

// AddChild appends a child node.
func (node *Node) AddChild(subNode *Node) {
	subNode.Parent = node
	node.childNodes = append(node.childNodes, subNode)
}

// StringBr returns a newick-like string with branch identifiers
// instead of branch lengths.
func (node *Node) StringBr() (s string) {
	if node.IsTerminal() {
		return fmt.Sprintf("%s#br%d", node.Name, node.ID)
	}
	s += "("
	for i, child := range node.childNodes {
		s += child.StringBr()
		if i != len(node.childNodes)-1 {
			s += ","
		}
	}
	s += fmt.Sprintf(")#br%d", node.ID)
	if node.IsRoot() {
		s += ";"
	}
	return s
}

// String returns the subtree in newick format.
func (node *Node) String() (s string) {
	if node.IsTerminal() {
		return fmt.Sprintf("%s:%0.6f", node.Name, node.BranchLength)
	}
	s += "("
	for i, child := range node.childNodes {
		s += child.String()
		if i != len(node.childNodes)-1 {
			s += ","
		}
	}
	s += fmt.Sprintf("):%0.6f", node.BranchLength)
	if node.IsRoot() {
		s += ";"
	}
	return s
}

// LongString returns an extended string representation of the node.
func (node *Node) LongString() (s string) {
	s = "<"
	if node.Parent == nil {
		s += "root, "
	}
	if node.Name != "" {
		s += "name=" + node.Name + ", "
	}
	s += fmt.Sprintf("ID=%v, BranchLength=%v", node.ID, node.BranchLength)
	if node.IsTerminal() {
		s += fmt.Sprintf(", LeafID=%v", node.LeafID)
	}
	if node.Class != 0 {
		s += fmt.Sprintf(", Class=%v", node.Class)
	}
	s += ">"
	return
}

// FullString returns a multiline representation of the subtree.
func (node *Node) FullString() string {
	return strings.TrimSpace(node.prefixString(""))
}

func (node *Node) prefixString(prefix string) (s string) {
	s = prefix + node.LongString() + "\n"
	for _, node := range node.childNodes {
		s += node.prefixString(prefix + "    ")
	}
	return
}

// ChildNodes returns the child nodes.
func (node *Node) ChildNodes() []*Node {
	return node.childNodes
}

// Walk sends matching nodes of the subtree to the channel.
func (node *Node) Walk(ch chan *Node, filter func(*Node) bool) {
	if filter == nil || filter(node) {
		ch <- node
	}
	for _, node := range node.childNodes {
		node.Walk(ch, filter)
	}
}

// NSubNodes returns the number of nodes in the subtree including the
// node itself.
func (node *Node) NSubNodes() (size int) {
	for _, node := range node.childNodes {
		size += node.NSubNodes()
	}
	return size + 1
}

// IsRoot returns true if the node has no parent.
func (node *Node) IsRoot() bool {
	return node.Parent == nil
}

// IsTerminal returns true if the node has no children.
func (node *Node) IsTerminal() bool {
	return len(node.childNodes) == 0
}

// IsSpecial returns true for newick punctuation runes.
func IsSpecial(c rune) bool {
	switch c {
	case '(', ')', ':', '#', ';', ',':
		return true
	}
	return false
}

// NewickSplit is a bufio.SplitFunc tokenizing newick input.
func NewickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	// Skip leading spaces; and return 1-char tokens.
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		if IsSpecial(r) {
			return start + width, data[start : start+width], nil
		}
		if !unicode.IsSpace(r) {
			break
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// Scan until space or special character.
	for width, i := 0, start; i < len(data); i += width {
		var r rune
		r, width = utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) || IsSpecial(r) {
			return i, data[start:i], nil
		}
	}
	// If we're at EOF, we have a final, non-empty, non-terminated word. Return it.
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// Request more data.
	return 0, nil, nil
}

// ParseNewick parses a tree in newick format. Node ids are assigned
// in the order of appearance, leaf ids in the order leaves appear in
// the input.
func ParseNewick(rd io.Reader) (tree *Tree, err error) {
	scanner := bufio.NewScanner(rd)

	scanner.Split(NewickSplit)

	nodeID := 0
	leafID := 0

	node := NewNode(nil, nodeID)
	tree = &Tree{Node: node}
	nodeID++

	mode := NORMAL

	for scanner.Scan() {
		text := scanner.Text()
		switch text {
		case "(":
			subNode := NewNode(nil, nodeID)
			nodeID++
			if node != nil {
				node.AddChild(subNode)
			}
			node = subNode

		case ",":
			if node.Parent == nil {
				return nil, errors.New("top level comma mismatch")
			}
			subNode := NewNode(nil, nodeID)
			nodeID++

			node.Parent.AddChild(subNode)
			node = subNode

		case ")":
			if node.Parent == nil {
				return nil, errors.New("brackets mismatch")
			}
			node = node.Parent
		case "#":
			mode = CLASS
		case ":":
			mode = LENGTH
		case ";":
			return
		default:
			switch mode {
			case LENGTH:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, err
				}
				node.BranchLength = l
				mode = NORMAL
			case CLASS:
				cl, err := strconv.ParseInt(text, 0, 0)
				if err != nil {
					return nil, err
				}
				node.Class = int(cl)
				mode = NORMAL
			default:
				if node.IsTerminal() {
					node.LeafID = leafID
					leafID++
				}
				node.Name = text
			}
		}
	}

	return
}
