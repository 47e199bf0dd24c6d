package slurmsched

import (
	"strings"
	"testing"
	"time"
)

func TestEmitPreambleBasicFields(t *testing.T) {
	ntasks := 4
	tlimit := 90 * time.Minute

	job := &Job{
		Name:           "mytest",
		SchedPartition: "gpu",
		SchedAccount:   "acct1",
		Stdout:         "out.log",
		Stderr:         "err.log",
		NumTasks:       &ntasks,
		TimeLimit:      &tlimit,
	}

	lines := EmitPreamble(job, false)
	joined := strings.Join(lines, "\n")

	for _, want := range []string{
		`--job-name="mytest"`,
		"--ntasks=4",
		"--partition=gpu",
		"--account=acct1",
		"--output=out.log",
		"--error=err.log",
		"--time=1:30:0",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("EmitPreamble() missing %q in:\n%s", want, joined)
		}
	}
}

func TestEmitPreambleArrayJobSuffixesOutputFiles(t *testing.T) {
	job := &Job{
		Stdout:  "out.log",
		Stderr:  "err.log",
		Options: []string{"--array=0-3"},
	}

	lines := EmitPreamble(job, false)
	joined := strings.Join(lines, "\n")

	if !strings.Contains(joined, "--output=out.log_%a") {
		t.Errorf("array job output directive missing _%%a suffix:\n%s", joined)
	}

	if !strings.Contains(joined, "--error=err.log_%a") {
		t.Errorf("array job error directive missing _%%a suffix:\n%s", joined)
	}
}

func TestEmitPreambleConstraintMergeLastWins(t *testing.T) {
	job := &Job{
		SchedAccess: []string{"--constraint=cpu", "--constraint=gpu"},
		Options:     []string{"--constraint=v100"},
	}

	lines := EmitPreamble(job, false)
	joined := strings.Join(lines, "\n")

	if !strings.Contains(joined, "--constraint=gpu&v100") {
		t.Errorf("expected merged constraint gpu&v100, got:\n%s", joined)
	}

	// The constraint fragment from Options must not additionally appear
	// verbatim among the passthrough directives.
	if strings.Count(joined, "--constraint=v100") != 0 {
		t.Errorf("constraint fragment leaked into passthrough options:\n%s", joined)
	}
}

func TestEmitPreambleSchedAccessPassthrough(t *testing.T) {
	job := &Job{
		SchedAccess: []string{"--switches=1"},
	}

	lines := EmitPreamble(job, false)
	joined := strings.Join(lines, "\n")

	if !strings.Contains(joined, sbatchPrefix+" --switches=1") {
		t.Errorf("expected SchedAccess fragment to pass through, got:\n%s", joined)
	}
}

func TestEmitPreambleOptionsRawDirectiveVerbatim(t *testing.T) {
	job := &Job{
		Options: []string{"#SBATCH --mem=4G", "--licenses=scratch"},
	}

	lines := EmitPreamble(job, false)

	foundRaw := false
	foundPrefixed := false

	for _, l := range lines {
		if l == "#SBATCH --mem=4G" {
			foundRaw = true
		}

		if l == sbatchPrefix+" --licenses=scratch" {
			foundPrefixed = true
		}
	}

	if !foundRaw {
		t.Errorf("expected raw '#'-prefixed option line to pass through verbatim, got: %v", lines)
	}

	if !foundPrefixed {
		t.Errorf("expected non-prefixed option line to gain the #SBATCH prefix, got: %v", lines)
	}
}

func TestEmitPreambleUseNodesOption(t *testing.T) {
	ntasks := 8
	perNode := 4

	job := &Job{
		NumTasks:        &ntasks,
		NumTasksPerNode: &perNode,
	}

	lines := EmitPreamble(job, true)
	joined := strings.Join(lines, "\n")

	if !strings.Contains(joined, "--nodes=2") {
		t.Errorf("expected --nodes=2 when use_nodes_option is set, got:\n%s", joined)
	}
}

func TestEmitPreambleExclusiveAccess(t *testing.T) {
	excl := true
	job := &Job{SchedExclusiveAccess: &excl}

	lines := EmitPreamble(job, false)
	joined := strings.Join(lines, "\n")

	if !strings.Contains(joined, "--exclusive") {
		t.Errorf("expected --exclusive directive, got:\n%s", joined)
	}
}

func TestEmitPreambleUseSMT(t *testing.T) {
	smtOff := false
	job := &Job{UseSMT: &smtOff}

	lines := EmitPreamble(job, false)
	joined := strings.Join(lines, "\n")

	if !strings.Contains(joined, "--hint=nomultithread") {
		t.Errorf("expected --hint=nomultithread, got:\n%s", joined)
	}
}

func TestEmitPreambleEmptyJobProducesNoBlankLines(t *testing.T) {
	lines := EmitPreamble(&Job{}, false)

	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			t.Errorf("EmitPreamble() produced a blank line for an empty job: %v", lines)
		}
	}
}

func TestFormatHMS(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{90 * time.Minute, "1:30:0"},
		{45 * time.Second, "0:0:45"},
		{25 * time.Hour, "25:0:0"},
	}

	for _, tc := range cases {
		if got := formatHMS(tc.d); got != tc.want {
			t.Errorf("formatHMS(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
