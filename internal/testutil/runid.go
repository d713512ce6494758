package testutil

// FixedRunID generates the same run ID every time, so log lines and JSON
// output of a scenario are byte-identical across runs.
//
// Unlike engine.FixedGenerator which walks a list of IDs, this generator
// always returns one value. It is stateless and safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a fixed run ID generator.
// If id is empty, Generate returns "test-run-default".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run ID.
//
// Implements engine.RunIDGenerator.
func (g *FixedRunID) Generate() string {
	return g.id
}
