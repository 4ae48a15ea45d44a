package atpg

import (
	"regexp"
	"strconv"
)

// The generator reports progress and results as free-form text on stdout.
// These markers cover the formats atalanta and its derivatives print; lines
// that match nothing are kept only as log output.
var (
	// "[ 42%]" style progress ticks.
	percentRe = regexp.MustCompile(`\[\s*(\d{1,3})%\s*\]`)
	// "processing fault 120 / 480" or "fault 120 of 480".
	faultStepRe = regexp.MustCompile(`(?i)fault\s+(\d+)\s*(?:/|of)\s*(\d+)`)
	// "Fault coverage : 99.123 %"
	coverageRe = regexp.MustCompile(`(?i)fault coverage\s*[:=]\s*([0-9]+(?:\.[0-9]+)?)\s*%`)
	// "Number of test patterns : 143"
	patternsRe = regexp.MustCompile(`(?i)(?:number of\s+)?test patterns(?:\s+generated)?\s*[:=]\s*(\d+)`)
)

// Stats accumulates everything scraped from generator output.
type Stats struct {
	Progress      int // 0–100
	FaultCoverage float64
	TestPatterns  int
}

// Apply scans one stdout line for progress markers and folds any findings
// into s. Returns true when the line changed anything. Progress never moves
// backwards; a coverage or pattern-count line marks the run as complete.
func (s *Stats) Apply(line string) bool {
	changed := false

	if m := percentRe.FindStringSubmatch(line); m != nil {
		if pct, err := strconv.Atoi(m[1]); err == nil && pct <= 100 && pct > s.Progress {
			s.Progress = pct
			changed = true
		}
	}
	if m := faultStepRe.FindStringSubmatch(line); m != nil {
		cur, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil && total > 0 && cur <= total {
			if pct := cur * 100 / total; pct > s.Progress {
				s.Progress = pct
				changed = true
			}
		}
	}
	if m := coverageRe.FindStringSubmatch(line); m != nil {
		if cov, err := strconv.ParseFloat(m[1], 64); err == nil {
			s.FaultCoverage = cov
			s.Progress = 100
			changed = true
		}
	}
	if m := patternsRe.FindStringSubmatch(line); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			s.TestPatterns = n
			s.Progress = 100
			changed = true
		}
	}
	return changed
}
