package slurmsched

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const sbatchPrefix = "#SBATCH"

// IsArray reports whether job.Options request a job array via -a/--array
// with a non-empty value. Unlike the backends' own bookkeeping (which
// memoises this per job once a jobid exists, see bookkeeping.go), this is a
// pure function of Options so that EmitPreamble can call it before submit
// ever assigns a jobid.
func IsArray(job *Job) bool {
	return isArrayOption(job.Options)
}

func formatOption(set bool, value string, format string) string {
	if !set {
		return ""
	}

	return sbatchPrefix + " " + fmt.Sprintf(format, value)
}

// EmitPreamble produces the ordered #SBATCH directive lines for job,
// per spec §4.2. useNodesOption mirrors the backend's "use_nodes_option"
// configuration knob (spec §6).
func EmitPreamble(job *Job, useNodesOption bool) []string {
	var lines []string

	lines = append(lines,
		formatOption(job.Name != "", job.Name, `--job-name="%s"`),
		formatOption(job.NumTasks != nil, intStr(job.NumTasks), "--ntasks=%s"),
		formatOption(job.NumTasksPerNode != nil, intStr(job.NumTasksPerNode), "--ntasks-per-node=%s"),
		formatOption(job.NumTasksPerCore != nil, intStr(job.NumTasksPerCore), "--ntasks-per-core=%s"),
		formatOption(job.NumTasksPerSocket != nil, intStr(job.NumTasksPerSocket), "--ntasks-per-socket=%s"),
		formatOption(job.NumCPUsPerTask != nil, intStr(job.NumCPUsPerTask), "--cpus-per-task=%s"),
		formatOption(job.SchedPartition != "", job.SchedPartition, "--partition=%s"),
		formatOption(job.SchedAccount != "", job.SchedAccount, "--account=%s"),
		formatOption(job.SchedNodelist != "", job.SchedNodelist, "--nodelist=%s"),
		formatOption(job.SchedExcludeNodelist != "", job.SchedExcludeNodelist, "--exclude=%s"),
		formatOption(job.SchedReservation != "", job.SchedReservation, "--reservation=%s"),
	)

	// Slurm substitutes "%a" with the array task id; this is never expanded
	// here, only emitted literally.
	outfileFmt := "--output=%s"
	errfileFmt := "--error=%s"

	if IsArray(job) {
		outfileFmt = "--output=%s_%%a"
		errfileFmt = "--error=%s_%%a"
	}

	lines = append(lines,
		formatOption(job.Stdout != "", job.Stdout, outfileFmt),
		formatOption(job.Stderr != "", job.Stderr, errfileFmt),
	)

	if job.TimeLimit != nil {
		lines = append(lines, formatOption(true, formatHMS(*job.TimeLimit), "--time=%s"))
	}

	if job.SchedExclusiveAccess != nil && *job.SchedExclusiveAccess {
		lines = append(lines, sbatchPrefix+" --exclusive")
	}

	if useNodesOption && job.NumTasks != nil && job.NumTasksPerNode != nil && *job.NumTasksPerNode > 0 {
		numNodes := *job.NumTasks / *job.NumTasksPerNode
		lines = append(lines, formatOption(true, fmt.Sprintf("%d", numNodes), "--nodes=%s"))
	}

	for _, opt := range job.SchedAccess {
		if isConstraintFragment(opt) {
			continue
		}

		lines = append(lines, sbatchPrefix+" "+opt)
	}

	// Constraint merging (spec §4.2 step 7): the last "-C"/"--constraint"
	// value from SchedAccess, then from Options, joined with "&" so both
	// sources contribute while respecting Slurm's own last-wins semantics
	// for repeated flags.
	var constraints []string

	if c := strings.TrimSpace(lastFlagValue(job.SchedAccess, "--constraint", "-C")); c != "" {
		constraints = append(constraints, c)
	}

	if c := strings.TrimSpace(lastFlagValue(job.Options, "--constraint", "-C")); c != "" {
		constraints = append(constraints, c)
	}

	if len(constraints) > 0 {
		lines = append(lines, formatOption(true, strings.Join(constraints, "&"), "--constraint=%s"))
	}

	if job.UseSMT != nil {
		hint := "nomultithread"
		if *job.UseSMT {
			hint = "multithread"
		}

		lines = append(lines, formatOption(true, hint, "--hint=%s"))
	}

	prefixPatt := regexp.MustCompile(`^#\w+`)

	for _, opt := range job.Options {
		if isConstraintFragment(opt) {
			continue
		}

		if prefixPatt.MatchString(opt) {
			lines = append(lines, opt)
		} else {
			lines = append(lines, sbatchPrefix+" "+opt)
		}
	}

	return filterEmpty(lines)
}

func isConstraintFragment(opt string) bool {
	trimmed := strings.TrimSpace(opt)

	return strings.HasPrefix(trimmed, "-C") || strings.HasPrefix(trimmed, "--constraint")
}

func filterEmpty(lines []string) []string {
	out := make([]string, 0, len(lines))

	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}

	return out
}

func intStr(v *int) string {
	if v == nil {
		return ""
	}

	return fmt.Sprintf("%d", *v)
}

// formatHMS renders d as Slurm's "H:M:S" time limit format.
func formatHMS(d time.Duration) string {
	total := int64(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	return fmt.Sprintf("%d:%d:%d", h, m, s)
}
