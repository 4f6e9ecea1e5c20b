package model

import (
	"math"
	"time"
)

// Verdict is the categorical outcome of one comparison.
type Verdict string

const (
	// VerdictPass indicates the rendered buffers satisfied the case's relation.
	VerdictPass Verdict = "pass"
	// VerdictFail indicates the buffers violated the case's relation.
	VerdictFail Verdict = "fail"
	// VerdictError indicates rendering or comparison failed for the case.
	VerdictError Verdict = "error"
)

// Outcome is the result of running a single test case.
//
// MismatchRatio is NaN when Verdict is VerdictError; it is serialized as a
// pointer so an errored case never reads as "0% mismatch" in a report file.
type Outcome struct {
	// Index is the case's position in discovery order. Reports are sorted by
	// it regardless of completion order.
	Index    int           `json:"index" yaml:"index"`
	Case     TestCase      `json:"case" yaml:"case"`
	Verdict  Verdict       `json:"verdict" yaml:"verdict"`
	Ratio    *float64      `json:"mismatchRatio,omitempty" yaml:"mismatchRatio,omitempty"`
	Pixels   int           `json:"mismatchedPixels" yaml:"mismatchedPixels"`
	Total    int           `json:"totalPixels" yaml:"totalPixels"`
	DiffPath Path          `json:"diffPath,omitempty" yaml:"diffPath,omitempty"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// MismatchRatio returns the recorded ratio, or NaN for errored cases.
func (o Outcome) MismatchRatio() float64 {
	if o.Ratio == nil {
		return math.NaN()
	}

	return *o.Ratio
}

// WithRatio sets the mismatch ratio on a copy of the outcome.
func (o Outcome) WithRatio(ratio float64) Outcome {
	o.Ratio = &ratio
	return o
}

// Report is the aggregated result of one harness run, one outcome per
// discovered test case, in discovery order.
type Report struct {
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	Viewport  Viewport  `json:"viewport" yaml:"viewport"`
	Tolerance float64   `json:"tolerance" yaml:"tolerance"`
	Threshold uint8     `json:"threshold" yaml:"threshold"`
	Outcomes  []Outcome `json:"outcomes" yaml:"outcomes"`
	Skips     []Skip    `json:"skips,omitempty" yaml:"skips,omitempty"`
}

// Passed counts outcomes with VerdictPass.
func (r Report) Passed() int { return r.count(VerdictPass) }

// Failed counts outcomes with VerdictFail.
func (r Report) Failed() int { return r.count(VerdictFail) }

// Errored counts outcomes with VerdictError.
func (r Report) Errored() int { return r.count(VerdictError) }

// AllPassed reports whether every outcome passed. Empty reports do not pass.
func (r Report) AllPassed() bool {
	return len(r.Outcomes) > 0 && r.Passed() == len(r.Outcomes)
}

func (r Report) count(v Verdict) int {
	n := 0

	for _, o := range r.Outcomes {
		if o.Verdict == v {
			n++
		}
	}

	return n
}
