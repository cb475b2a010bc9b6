package tree

import (
	"bytes"
	"sort"
	"strings"
	"testing"
)

const (
	tree1 = "((((a001:0.242690,a002:0.268555)#1:0.073424,a003:0.252510):0.198740,((((((a004:0.001000,a005:0.014869):0.045007,a006:0.050606):0.056908,a007:0.166439):0.023217,a008:0.094788):0.429852,a009:0.558116):0.130317,(a010:0.009332,a011:0.024271):0.315124):0.217376):0.464470,a012:0.144369):0.0;"
	tree2 = "(((s1:0.1,s2:0.2):0.15,s3:0.3):0.05,s4:0.4):0.0;"
)

func TestParseRoundTrip(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree2))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	if t.NLeaves() != 4 {
		tst.Error("wrong number of leaves", t.NLeaves())
	}
	if !t.IsRooted() {
		tst.Error("tree should be rooted")
	}
	s := t.String()
	t2, err := ParseNewick(strings.NewReader(s))
	if err != nil {
		tst.Fatal("Error reparsing tree", err)
	}
	if t2.String() != s {
		tst.Error("round-trip mismatch:", s, "vs", t2.String())
	}

	names := t.LeafNames()
	sort.Strings(names)
	expected := []string{"s1", "s2", "s3", "s4"}
	for i, name := range expected {
		if names[i] != name {
			tst.Error("wrong leaf names", names)
			break
		}
	}
}

func TestNodeIDs(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree1))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	if t.MaxNodeID() != t.NNodes()-1 {
		tst.Error("node ids are not sequential")
	}
	for i, node := range t.Nodes() {
		if node.ID != i {
			tst.Error("node id mismatch at", i)
		}
	}
	leafIDs := make(map[int]bool)
	for node := range t.Terminals() {
		if leafIDs[node.LeafID] {
			tst.Error("duplicate leaf id", node.LeafID)
		}
		leafIDs[node.LeafID] = true
	}
	if len(leafIDs) != t.NLeaves() {
		tst.Error("wrong number of leaf ids")
	}
}

func TestNodeOrder(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree1))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	seen := make(map[*Node]bool)
	for node := range t.Terminals() {
		seen[node] = true
	}
	for _, node := range t.NodeOrder() {
		for _, child := range node.ChildNodes() {
			if !seen[child] {
				tst.Error("child not computed before parent")
			}
		}
		seen[node] = true
	}
	if !seen[t.Node] {
		tst.Error("root missing from node order")
	}
}

func TestCopy(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree1))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	t1 := t.Copy()

	t.ClearCache()
	tNodes := t.Nodes()
	t1Nodes := t1.Nodes()

	if len(tNodes) != len(t1Nodes) {
		tst.Fatal("node length differ between t and t1")
	}

	for i := 0; i < len(tNodes); i++ {
		if tNodes[i] == t1Nodes[i] {
			tst.Error("node pointers match between trees")
		}
		if tNodes[i].BranchLength != t1Nodes[i].BranchLength {
			tst.Error("node length differ")
		}
		if tNodes[i].Name != t1Nodes[i].Name {
			tst.Error("node name differ")
		}
		if tNodes[i].Class != t1Nodes[i].Class {
			tst.Error("node class differ")
		}
	}

	for _, node := range t1.Nodes() {
		node.BranchLength = 2
	}
	for i := 0; i < len(tNodes); i++ {
		if t.Nodes()[i].BranchLength == t1.Nodes()[i].BranchLength {
			tst.Error("node length still match after change")
		}
	}
}

func TestNNISwap(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree2))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	before := t.String()

	// First non-root internal node.
	var node *Node
	for n := range t.NonTerminals() {
		if !n.IsRoot() {
			node = n
			break
		}
	}
	if node == nil {
		tst.Fatal("no internal node found")
	}

	if err := t.NNISwap(node, 0); err != nil {
		tst.Fatal("nni failed:", err)
	}
	t.ClearCache()
	after := t.String()
	if after == before {
		tst.Error("nni did not change the topology")
	}
	if t.NNodes() != 7 {
		tst.Error("nni changed the number of nodes")
	}
	if t.MaxNodeID() != 6 {
		tst.Error("nni changed node ids")
	}

	// Applying the same interchange again should revert the tree.
	if err := t.NNISwap(node, 0); err != nil {
		tst.Fatal("nni revert failed:", err)
	}
	t.ClearCache()
	if t.String() != before {
		tst.Error("nni was not reverted:", t.String(), "vs", before)
	}
}

func TestNNISwapErrors(tst *testing.T) {
	t, err := ParseNewick(bytes.NewBufferString(tree2))
	if err != nil {
		tst.Fatal("Error parsing tree", err)
	}
	if err := t.NNISwap(t.Node, 0); err == nil {
		tst.Error("expected error for root interchange")
	}
	for leaf := range t.Terminals() {
		if err := t.NNISwap(leaf, 0); err == nil {
			tst.Error("expected error for leaf interchange")
		}
		break
	}
}
