package slurmsched

import "strings"

// completionStates are the terminal Slurm job states. Completed requires
// every comma-joined sub-state to be a member of this set.
var completionStates = map[string]struct{}{
	"BOOT_FAIL":      {},
	"CANCELLED":      {},
	"COMPLETED":      {},
	"DEADLINE":       {},
	"FAILED":         {},
	"NODE_FAIL":      {},
	"OUT_OF_MEMORY":  {},
	"PREEMPTED":      {},
	"TIMEOUT":        {},
}

// pendingStates are the Slurm job states still considered in flight.
// Pending requires only one comma-joined sub-state to be a member.
var pendingStates = map[string]struct{}{
	"COMPLETING":    {},
	"CONFIGURING":   {},
	"PENDING":       {},
	"RESV_DEL_HOLD": {},
	"REQUEUE_FED":   {},
	"REQUEUE_HOLD":  {},
	"REQUEUED":      {},
	"RESIZING":      {},
	"REVOKED":       {},
	"SIGNALING":     {},
	"SPECIAL_EXIT":  {},
	"STAGE_OUT":     {},
	"STOPPED":       {},
	"SUSPENDED":     {},
}

// completed reports whether every comma-joined sub-state of s is terminal.
// An empty string is never completed.
func completed(s string) bool {
	if s == "" {
		return false
	}

	for _, tok := range strings.Split(s, ",") {
		if _, ok := completionStates[tok]; !ok {
			return false
		}
	}

	return true
}

// pending reports whether any comma-joined sub-state of s is still pending.
// An empty string is never pending.
func pending(s string) bool {
	if s == "" {
		return false
	}

	for _, tok := range strings.Split(s, ",") {
		if _, ok := pendingStates[tok]; ok {
			return true
		}
	}

	return false
}
