package core

// TrainingExample is one labeled input used to score candidate prompts.
// The expected keywords act as the success criteria for a produced output.
// Examples are supplied by the caller and are read-only for the lifetime
// of one optimization run.
type TrainingExample struct {
	Input            string   `json:"input"`
	ExpectedKeywords []string `json:"expected_keywords"`

	// Dimensions maps a named objective to its expected keywords for
	// multi-objective mode. When empty, only the flat keyword score is
	// computed.
	Dimensions map[string][]string `json:"dimensions,omitempty"`
}
