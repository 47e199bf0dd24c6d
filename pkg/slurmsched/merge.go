package slurmsched

import (
	"os"
	"path/filepath"
	"sort"
)

// filepathGlob resolves pattern (relative to dir) to matching file paths,
// sorted lexically. Sorting resolves an ambiguity the original scheduler
// left to the operating system's directory order: Slurm array task output
// files sort correctly by task id under plain lexical order only when task
// ids share a digit width, but a stable, deterministic order is still
// preferable to readdir order, which can vary between filesystems.
func filepathGlob(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)

	return matches, nil
}

// concatFiles appends the contents of each file in parts, in order, to a
// newly (re)created file at dest, overwriting any previous contents.
func concatFiles(dest string, parts []string) {
	out, err := os.Create(dest) //nolint:gosec
	if err != nil {
		return
	}
	defer out.Close()

	for _, part := range parts {
		data, err := os.ReadFile(part) //nolint:gosec
		if err != nil {
			continue
		}

		out.Write(data) //nolint:errcheck
	}
}
