package slurmsched

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// FilterRunner is the subset of Runner that FilterNodes needs to resolve
// reservations and expand nodelists. It is split out from the full Runner
// interface so that tests can stub exactly the four scontrol calls involved.
type FilterRunner interface {
	ScontrolShowRes(ctx context.Context, name string) (string, error)
	ScontrolShowNode(ctx context.Context, nodeSpec string) (string, error)
	ScontrolShowAllNodes(ctx context.Context) (string, error)
	ScontrolShowPartitions(ctx context.Context) (string, error)
}

// FilterNodes narrows candidate down to the nodes usable by job, applying
// each constraint in the fixed order reservation, partitions, constraints,
// nodelist, exclude (spec §4.10). Every step is logged with the remaining
// node count so a caller can see which constraint emptied the set.
func FilterNodes(ctx context.Context, runner FilterRunner, candidate NodeSet, job *Job, logger *slog.Logger) (NodeSet, error) {
	nodes := candidate

	if job.SchedReservation != "" {
		resNodes, err := reservationNodes(ctx, runner, job.SchedReservation, logger)
		if err != nil {
			return nil, fmt.Errorf("resolving reservation %q: %w", job.SchedReservation, err)
		}

		nodes = nodes.Intersect(resNodes)
		logger.Debug("filternodes: after reservation", "remaining", len(nodes))
	}

	partition := job.SchedPartition

	if partition == "" {
		def, err := DefaultPartition(ctx, runner)
		if err != nil {
			return nil, fmt.Errorf("resolving default partition: %w", err)
		}

		partition = def
	}

	if partition != "" {
		nodes = filterByAttr(nodes, func(n *Node) bool {
			_, ok := n.Partitions()[partition]
			return ok
		})
		logger.Debug("filternodes: after partition", "remaining", len(nodes))
	}

	if constraint := effectiveConstraint(job); constraint != "" {
		nodes = filterByConstraint(nodes, constraint)
		logger.Debug("filternodes: after constraints", "remaining", len(nodes))
	}

	if job.SchedNodelist != "" {
		named, err := namedNodes(ctx, runner, job.SchedNodelist)
		if err != nil {
			return nil, fmt.Errorf("expanding nodelist %q: %w", job.SchedNodelist, err)
		}

		nodes = nodes.Intersect(named)
		logger.Debug("filternodes: after nodelist", "remaining", len(nodes))
	}

	if job.SchedExcludeNodelist != "" {
		excluded, err := namedNodes(ctx, runner, job.SchedExcludeNodelist)
		if err != nil {
			return nil, fmt.Errorf("expanding exclude nodelist %q: %w", job.SchedExcludeNodelist, err)
		}

		nodes = nodes.Subtract(excluded)
		logger.Debug("filternodes: after exclude", "remaining", len(nodes))
	}

	return nodes, nil
}

// effectiveConstraint mirrors the "-C"/"--constraint" merge done for the
// batch-script preamble (see preamble.go) so that node filtering and job
// submission agree on which nodes a job may land on.
func effectiveConstraint(job *Job) string {
	var parts []string

	if c := strings.TrimSpace(lastFlagValue(job.SchedAccess, "--constraint", "-C")); c != "" {
		parts = append(parts, c)
	}

	if c := strings.TrimSpace(lastFlagValue(job.Options, "--constraint", "-C")); c != "" {
		parts = append(parts, c)
	}

	return strings.Join(parts, "&")
}

// filterByConstraint keeps nodes whose ActiveFeatures satisfy a Slurm
// constraint expression of ANDed ("&") and ORed ("|") feature tokens.
// Parenthesised sub-expressions are not supported, matching the subset of
// constraint syntax the original scheduler itself evaluated client-side.
func filterByConstraint(nodes NodeSet, constraint string) NodeSet {
	orGroups := strings.Split(constraint, "|")

	return filterByAttr(nodes, func(n *Node) bool {
		for _, group := range orGroups {
			andTerms := strings.Split(group, "&")
			if n.ActiveFeatures().supersetOf(trimAll(andTerms)) {
				return true
			}
		}

		return false
	})
}

func trimAll(items []string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = strings.TrimSpace(it)
	}

	return out
}

func filterByAttr(nodes NodeSet, keep func(*Node) bool) NodeSet {
	out := make(NodeSet)

	for name, n := range nodes {
		if keep(n) {
			out[name] = n
		}
	}

	return out
}

// reservationNodes resolves a reservation name to its member nodes. This
// needs two scontrol round trips: the first to read the reservation's
// "Nodes=" nodelist expression, the second (scontrol show -o node) to
// expand that expression into individual node records, since `scontrol
// show res` never lists the nodes' own attributes.
func reservationNodes(ctx context.Context, runner FilterRunner, name string, logger *slog.Logger) (NodeSet, error) {
	out, err := runner.ScontrolShowRes(ctx, name)
	if err != nil {
		return nil, err
	}

	nodeSpec := extractAttr(out, "Nodes")
	if nodeSpec == "" {
		return nil, newError(KindNodeQueryFailure, 0, "reservation has no Nodes= nodelist: "+name, nil)
	}

	return namedNodes(ctx, runner, nodeSpec)
}

func namedNodes(ctx context.Context, runner FilterRunner, nodeSpec string) (NodeSet, error) {
	out, err := runner.ScontrolShowNode(ctx, nodeSpec)
	if err != nil {
		return nil, err
	}

	return ParseNodes(out, slog.Default()), nil
}

func extractAttr(descr, key string) string {
	for _, m := range nodeAttrRegexp.FindAllStringSubmatch(descr, -1) {
		if m[1] == key {
			return m[2]
		}
	}

	return ""
}

// DefaultPartition returns the name of the partition marked with "Default=YES"
// in the output of `scontrol show -o partitions`, or "" if none is marked.
func DefaultPartition(ctx context.Context, runner FilterRunner) (string, error) {
	out, err := runner.ScontrolShowPartitions(ctx)
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if extractAttr(line, "Default") == "YES" {
			return extractAttr(line, "PartitionName"), nil
		}
	}

	return "", nil
}
