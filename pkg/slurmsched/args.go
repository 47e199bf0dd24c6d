package slurmsched

import "strings"

// lastFlagValue scans args for long (e.g. "--constraint") and/or short
// (e.g. "-C") forms of a flag and returns the value of its last occurrence,
// mirroring Slurm's own last-wins behavior for repeated options (spec §4.2
// design note: "implement with a CLI-style parser that records the final
// value per flag"). Supported forms: "--flag=value", "--flag value",
// "-f value", "-fvalue". An empty long or short disables that form.
func lastFlagValue(args []string, long, short string) string {
	var value string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case long != "" && strings.HasPrefix(arg, long+"="):
			value = arg[len(long)+1:]
		case long != "" && arg == long && i+1 < len(args):
			i++
			value = args[i]
		case short != "" && strings.HasPrefix(arg, short) && len(arg) > len(short):
			value = arg[len(short):]
		case short != "" && arg == short && i+1 < len(args):
			i++
			value = args[i]
		}
	}

	return value
}

// isArrayOption reports whether args request a job array via -a/--array
// with a non-empty value.
func isArrayOption(args []string) bool {
	return lastFlagValue(args, "--array", "-a") != ""
}
