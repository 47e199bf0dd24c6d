// Package privilege detects how this process may invoke the Slurm command
// line tools: natively, via inherited Linux capabilities, or by falling
// back to sudo.
package privilege

import (
	"context"
	"os/user"
	"strings"
	"time"

	"github.com/openregtest/slurmsched/internal/osexec"
	"kernel.org/pub/linux/libs/security/libcap/cap"
)

// ExecMode names how a Slurm CLI tool should be invoked.
type ExecMode string

// Recognized exec modes, in the order they are attempted.
const (
	ModeNative ExecMode = "native"
	ModeCap    ExecMode = "cap"
	ModeSudo   ExecMode = "sudo"
)

// requiredCaps are the capabilities that let a non-root, non-slurm-user
// process query and submit jobs on behalf of other users.
var requiredCaps = []string{"cap_setuid", "cap_setgid"}

// Detect picks the exec mode to use for a tool at path, probing capabilities
// and finally a "sudo <path> --help" dry run.
func Detect(ctx context.Context, path string, probeTimeout time.Duration) ExecMode {
	if currentUser, err := user.Current(); err == nil && currentUser.Uid == "0" {
		return ModeNative
	}

	currentCaps := cap.GetProc().String()

	haveCaps := true

	for _, c := range requiredCaps {
		if !strings.Contains(currentCaps, c) {
			haveCaps = false

			break
		}
	}

	if haveCaps {
		return ModeCap
	}

	if _, err := osexec.Strict(ctx, "sudo", []string{path, "--help"}, nil, probeTimeout); err == nil {
		return ModeSudo
	}

	return ModeNative
}
