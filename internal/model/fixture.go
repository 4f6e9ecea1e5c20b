// Package model defines the data structures for visual regression testing.
package model

// Path represents a file system path.
type Path string

// Relation describes how a test document relates to its reference document.
type Relation string

const (
	// RelationMatch means the test document must render identically to the reference.
	RelationMatch Relation = "match"

	// RelationMismatch means the test document must render differently from the reference.
	RelationMismatch Relation = "mismatch"
)

// SkipReason explains why a candidate document was excluded at discovery time.
type SkipReason string

// NoReference marks documents without a discoverable match/mismatch link.
const NoReference SkipReason = "no-reference"

// TestCase pairs a test document with its reference document plus the
// metadata declared in the document head. Immutable after discovery.
type TestCase struct {
	// ID is derived from the test document path relative to the scan root.
	ID            string   `json:"id" yaml:"id"`
	TestPath      Path     `json:"testPath" yaml:"testPath"`
	ReferencePath Path     `json:"referencePath" yaml:"referencePath"`
	Relation      Relation `json:"relation" yaml:"relation"`
	Title         string   `json:"title,omitempty" yaml:"title,omitempty"`
	Assertion     string   `json:"assertion,omitempty" yaml:"assertion,omitempty"`
	Flags         []string `json:"flags,omitempty" yaml:"flags,omitempty"`

	// Checksum fingerprints the test document's content at discovery time, so
	// a report stays traceable to the exact fixture revision it scored.
	Checksum string `json:"checksum" yaml:"checksum"`
}

// HasFlag reports whether the case declares the given flag.
func (tc TestCase) HasFlag(flag string) bool {
	for _, f := range tc.Flags {
		if f == flag {
			return true
		}
	}

	return false
}

// Skip records a document excluded from the run at discovery time.
type Skip struct {
	Path   Path       `json:"path" yaml:"path"`
	Reason SkipReason `json:"reason" yaml:"reason"`
}
