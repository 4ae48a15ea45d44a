package atpg

import "testing"

func TestStats_Apply(t *testing.T) {
	var s Stats

	if s.Apply("* Reading circuit c432.bench") {
		t.Error("plain line reported a change")
	}
	if !s.Apply("processing fault 120 / 480") || s.Progress != 25 {
		t.Errorf("fault step: progress = %d, want 25", s.Progress)
	}
	if !s.Apply("[ 60%] backtracing") || s.Progress != 60 {
		t.Errorf("percent tick: progress = %d, want 60", s.Progress)
	}

	// Progress never moves backwards.
	s.Apply("processing fault 10 of 480")
	if s.Progress != 60 {
		t.Errorf("progress regressed to %d", s.Progress)
	}

	if !s.Apply("* Fault coverage : 99.123 %") {
		t.Error("coverage line not recognized")
	}
	if s.FaultCoverage != 99.123 || s.Progress != 100 {
		t.Errorf("coverage = %v progress = %d", s.FaultCoverage, s.Progress)
	}

	if !s.Apply("* Number of test patterns : 143") || s.TestPatterns != 143 {
		t.Errorf("patterns = %d, want 143", s.TestPatterns)
	}
}

func TestStats_Apply_Variants(t *testing.T) {
	var s Stats
	if !s.Apply("fault coverage = 87.5%") || s.FaultCoverage != 87.5 {
		t.Errorf("coverage variant: %v", s.FaultCoverage)
	}

	var s2 Stats
	if !s2.Apply("test patterns generated: 12") || s2.TestPatterns != 12 {
		t.Errorf("patterns variant: %d", s2.TestPatterns)
	}

	var s3 Stats
	if s3.Apply("[999%] bogus") {
		t.Error("out-of-range percent accepted")
	}
	if s3.Apply("fault 500 / 100 nonsense") {
		t.Error("step beyond total accepted")
	}
}
