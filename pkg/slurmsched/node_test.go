package slurmsched

import (
	"log/slog"
	"reflect"
	"sort"
	"testing"
)

func TestParseNode(t *testing.T) {
	descr := `NodeName=node01 Partitions=gpu,debug ActiveFeatures=v100,infiniband State=IDLE+DRAIN`

	n, err := ParseNode(descr)
	if err != nil {
		t.Fatalf("ParseNode() error = %v", err)
	}

	if n.Name() != "node01" {
		t.Errorf("Name() = %q, want node01", n.Name())
	}

	if !n.IsDown() {
		t.Errorf("IsDown() = false, want true for DRAIN state")
	}

	if !n.InState("IDLE+DRAIN") {
		t.Errorf("InState(%q) = false, want true", "IDLE+DRAIN")
	}

	if n.InState("RUNNING") {
		t.Errorf("InState(RUNNING) = true, want false")
	}
}

func TestParseNodeMissingName(t *testing.T) {
	if _, err := ParseNode("Partitions=gpu State=IDLE"); err == nil {
		t.Fatal("ParseNode() error = nil, want error for missing NodeName")
	}
}

func TestNodeInStateRequiresFullyParsedRecord(t *testing.T) {
	// A record with a State but no Partitions/ActiveFeatures looks
	// partially parsed; InState must not report a match for it.
	n, err := ParseNode("NodeName=node02 State=IDLE")
	if err != nil {
		t.Fatalf("ParseNode() error = %v", err)
	}

	if n.InState("IDLE") {
		t.Error("InState(IDLE) = true, want false for a node with no partitions/features recorded")
	}
}

func TestParseNodes(t *testing.T) {
	out := "NodeName=node01 Partitions=gpu State=IDLE\n" +
		"garbage line with no NodeName\n" +
		"NodeName=node02 Partitions=gpu State=DOWN\n"

	nodes := ParseNodes(out, slog.Default())

	if len(nodes) != 2 {
		t.Fatalf("ParseNodes() returned %d nodes, want 2", len(nodes))
	}

	if nodes["node01"] == nil || nodes["node02"] == nil {
		t.Fatalf("ParseNodes() missing expected node names: %v", nodes.Names())
	}
}

func TestNodeSetIntersectSubtract(t *testing.T) {
	a := NodeSet{"n1": &Node{name: "n1"}, "n2": &Node{name: "n2"}}
	b := NodeSet{"n2": &Node{name: "n2"}, "n3": &Node{name: "n3"}}

	inter := a.Intersect(b)
	if len(inter) != 1 || inter["n2"] == nil {
		t.Errorf("Intersect() = %v, want only n2", inter.Names())
	}

	sub := a.Subtract(b)
	if len(sub) != 1 || sub["n1"] == nil {
		t.Errorf("Subtract() = %v, want only n1", sub.Names())
	}
}

func TestNodeSetNames(t *testing.T) {
	set := NodeSet{"b": &Node{name: "b"}, "a": &Node{name: "a"}}

	names := set.Names()
	sort.Strings(names)

	if !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("Names() = %v, want [a b]", names)
	}
}

func TestStringSetSupersetOf(t *testing.T) {
	s := newStringSet([]string{"gpu", "v100"})

	if !s.supersetOf([]string{"gpu"}) {
		t.Error("supersetOf([gpu]) = false, want true")
	}

	if s.supersetOf([]string{"gpu", "a100"}) {
		t.Error("supersetOf([gpu a100]) = true, want false")
	}

	if !s.supersetOf(nil) {
		t.Error("supersetOf(nil) = false, want true (vacuous truth)")
	}
}
