package slurmsched

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// downStates mark a node as unavailable for new allocations.
var downStates = map[string]struct{}{
	"DOWN":       {},
	"DRAIN":      {},
	"MAINT":      {},
	"NO_RESPOND": {},
}

// Node is an immutable descriptor parsed from one `scontrol show -o node`
// record. Equality and set membership are by Name.
type Node struct {
	name           string
	partitions     stringSet
	activeFeatures stringSet
	states         stringSet
	descr          string
}

// Name returns the node's unique name.
func (n *Node) Name() string { return n.name }

// Partitions returns the set of partitions the node belongs to.
func (n *Node) Partitions() stringSet { return n.partitions }

// ActiveFeatures returns the node's currently advertised feature tags.
func (n *Node) ActiveFeatures() stringSet { return n.activeFeatures }

// States returns the node's current Slurm states.
func (n *Node) States() stringSet { return n.states }

// Descr returns the raw `scontrol` record the node was parsed from.
func (n *Node) Descr() string { return n.descr }

// IsDown reports whether the node is in a state that makes it unusable
// for new allocations.
func (n *Node) IsDown() bool {
	for s := range n.states {
		if _, ok := downStates[s]; ok {
			return true
		}
	}

	return false
}

// InState reports whether the node currently has every "+"-joined token of
// state. Per spec §3 this additionally requires the node to have at least
// one partition, one active feature and one state recorded — a guard
// against matching a record that was only partially parsed.
func (n *Node) InState(state string) bool {
	required := strings.Split(strings.ToUpper(state), "+")
	if !n.states.supersetOf(required) {
		return false
	}

	return len(n.partitions) > 0 && len(n.activeFeatures) > 0 && len(n.states) > 0
}

var nodeAttrRegexp = regexp.MustCompile(`(\S+)=(\S*)`)

// ParseNode parses one whitespace-separated Key=Value record (as emitted
// by `scontrol show -o node ...`) into a Node. Unknown/extra keys are
// ignored; a missing NodeName is an error.
func ParseNode(descr string) (*Node, error) {
	attrs := make(map[string]string)

	for _, m := range nodeAttrRegexp.FindAllStringSubmatch(descr, -1) {
		attrs[m[1]] = m[2]
	}

	name, ok := attrs["NodeName"]
	if !ok || name == "" {
		return nil, fmt.Errorf("could not extract NodeName from node description")
	}

	return &Node{
		name:           name,
		partitions:     newStringSet(splitNonEmpty(attrs["Partitions"], ",")),
		activeFeatures: newStringSet(splitNonEmpty(attrs["ActiveFeatures"], ",")),
		states:         newStringSet(splitNonEmpty(attrs["State"], "+")),
		descr:          descr,
	}, nil
}

func splitNonEmpty(s string, sep string) []string {
	if s == "" {
		return nil
	}

	return strings.Split(s, sep)
}

// NodeSet is a set of Nodes keyed by name.
type NodeSet map[string]*Node

// ParseNodes parses every non-empty line of output into a NodeSet, logging
// and skipping any line that fails to parse (e.g. a partially-written
// record) rather than failing the whole batch.
func ParseNodes(output string, logger *slog.Logger) NodeSet {
	nodes := make(NodeSet)

	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		node, err := ParseNode(line)
		if err != nil {
			logger.Debug("skipping unparsable node record", "err", err)

			continue
		}

		nodes[node.name] = node
	}

	return nodes
}

// Intersect returns the nodes present in both n and other.
func (n NodeSet) Intersect(other NodeSet) NodeSet {
	out := make(NodeSet)

	for name, node := range n {
		if _, ok := other[name]; ok {
			out[name] = node
		}
	}

	return out
}

// Subtract returns the nodes of n that are not present in other.
func (n NodeSet) Subtract(other NodeSet) NodeSet {
	out := make(NodeSet)

	for name, node := range n {
		if _, ok := other[name]; !ok {
			out[name] = node
		}
	}

	return out
}

// Names returns the sorted node names.
func (n NodeSet) Names() []string {
	names := make([]string, 0, len(n))
	for name := range n {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// stringSet is a minimal unordered set of strings used for Node attributes.
type stringSet map[string]struct{}

func newStringSet(items []string) stringSet {
	s := make(stringSet, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}

		s[item] = struct{}{}
	}

	return s
}

// supersetOf reports whether s contains every element of required.
func (s stringSet) supersetOf(required []string) bool {
	for _, r := range required {
		if r == "" {
			continue
		}

		if _, ok := s[r]; !ok {
			return false
		}
	}

	return true
}
