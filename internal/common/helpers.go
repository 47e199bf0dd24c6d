// Package common provides small utility helpers shared across the scheduler
// packages.
package common

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var nodelistRegExp = regexp.MustCompile(`\[(.*?)\]`)

// NodelistParser expands a Slurm NODELIST expression into a slice of node names.
func NodelistParser(nodelistExp string) []string {
	return expandNodelist(replaceNodelistDelimiter(nodelistExp))
}

// replaceNodelistDelimiter rejoins the "," separated node/range tokens of a
// nodelist expression so that each element of the result is one node or one
// bracketed range, separated by "|".
//
// The default "," delimiter is ambiguous: it separates both distinct nodes
// and the numeric ranges inside a single node's brackets, e.g.
// "a[0-1,3,5-6],b[2-3,4]" naively splits into
// "a[0-1", "3", "5-6]", "b[2-3", "4]". This re-groups the bracketed pieces.
func replaceNodelistDelimiter(nodelistExp string) string {
	nodelistExpSlice := strings.Split(nodelistExp, ",")

	var nodelist []string

	idxEnd := 0

	for idx, nodeexp := range nodelistExpSlice {
		switch {
		case strings.Contains(nodeexp, "[") && !strings.Contains(nodeexp, "]"):
			idxEnd = idx
			for {
				idxEnd++
				if strings.Contains(nodelistExpSlice[idxEnd], "]") && !strings.Contains(nodelistExpSlice[idxEnd], "[") {
					break
				}
			}

			nodelist = append(nodelist, strings.Join(nodelistExpSlice[idx:idxEnd+1], ","))
		case idx != 0 && idx <= idxEnd:
			continue
		default:
			idxEnd = idx

			nodelist = append(nodelist, nodeexp)
		}
	}

	return strings.Join(nodelist, "|")
}

// expandNodelist expands a single "|"-joined nodelist expression into node
// names, recursing on each bracketed range found.
func expandNodelist(nodelistExp string) []string {
	var nodeNames []string

	for _, nodeexp := range strings.Split(nodelistExp, "|") {
		if nodeexp == "" {
			continue
		}

		if strings.Contains(nodeexp, "[") {
			matches := nodelistRegExp.FindAllString(nodeexp, -1)
			if len(matches) == 0 {
				continue
			}

			// Only the first match is expanded per call; recursion handles
			// any remaining brackets in the substituted result.
			match := matches[0]
			matchSansBrackets := match[1 : len(match)-1]

			for _, subMatches := range strings.Split(matchSansBrackets, ",") {
				subMatch := strings.Split(subMatches, "-")
				if len(subMatch) == 1 {
					subMatch = append(subMatch, subMatch[0])
				}

				startIdx, err := strconv.Atoi(subMatch[0])
				if err != nil {
					continue
				}

				endIdx, err := strconv.Atoi(subMatch[1])
				if err != nil {
					continue
				}

				for i := startIdx; i <= endIdx; i++ {
					nodename := strings.ReplaceAll(nodeexp, match, fmt.Sprintf("%0*d", len(subMatch[0]), i))
					nodeNames = append(nodeNames, expandNodelist(nodename)...)
				}
			}
		} else {
			nodeNames = append(nodeNames, nodeexp)
		}
	}

	return nodeNames
}

// TimeTrack logs the elapsed time since start under name at debug level.
func TimeTrack(start time.Time, name string, logger *slog.Logger) {
	logger.Debug(name, "duration", time.Since(start))
}

// MakeConfig reads a YAML config file at filePath into a new *T.
func MakeConfig[T any](filePath string) (*T, error) {
	config := new(T)

	if filePath == "" {
		return config, errors.New("config file path missing")
	}

	configFile, err := os.ReadFile(filePath)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(configFile, config); err != nil {
		return config, err
	}

	return config, nil
}
