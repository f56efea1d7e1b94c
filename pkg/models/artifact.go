package models

import "encoding/json"

// TestCase is a single generated test case.
type TestCase struct {
	ID             int      `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Preconditions  string   `json:"preconditions"`
	Steps          []string `json:"steps"`
	ExpectedResult string   `json:"expected_result"`
	Priority       string   `json:"priority"`
	Type           string   `json:"type"`
}

// EdgeCase is a boundary scenario paired with a testing approach.
type EdgeCase struct {
	Scenario     string `json:"scenario"`
	TestApproach string `json:"test_approach"`
}

// Artifact is the structured test-case payload produced for a requirement.
type Artifact struct {
	TestCases []TestCase `json:"test_cases"`
	EdgeCases []EdgeCase `json:"edge_cases,omitempty"`
}

// ParseArtifact decodes a raw artifact blob. The blob is kept verbatim as the
// source of truth; decoding is best-effort for display and tooling.
func ParseArtifact(raw []byte) (Artifact, error) {
	var a Artifact
	err := json.Unmarshal(raw, &a)
	return a, err
}
