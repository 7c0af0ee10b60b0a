package oracle

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
)

//go:embed prompts.yaml
var promptsFile []byte

// promptTemplates holds the fmt format strings for every oracle role.
type promptTemplates struct {
	RolloutUser      string `yaml:"rollout_user"`
	ReflectionSystem string `yaml:"reflection_system"`
	ReflectionUser   string `yaml:"reflection_user"`
	CrossoverSystem  string `yaml:"crossover_system"`
	CrossoverUser    string `yaml:"crossover_user"`
	VariationSystem  string `yaml:"variation_system"`
	VariationUser    string `yaml:"variation_user"`
	ExplainSystem    string `yaml:"explain_system"`
	ExplainUser      string `yaml:"explain_user"`
}

var templates = mustLoadTemplates()

func mustLoadTemplates() promptTemplates {
	var t promptTemplates
	if err := yaml.Unmarshal(promptsFile, &t); err != nil {
		panic(fmt.Sprintf("oracle: malformed embedded prompts.yaml: %v", err))
	}
	return t
}

// rolloutPrompt renders the user content for executing a candidate prompt
// against one training input. The candidate text itself travels as the
// system instruction.
func rolloutPrompt(input string) string {
	return fmt.Sprintf(templates.RolloutUser, input)
}

// reflectionPrompt renders the evidence-bearing improvement request for a
// single parent. Evidence must already be formatted (see formatEvidence).
func reflectionPrompt(parent string, evidence string) (system, user string) {
	return templates.ReflectionSystem, fmt.Sprintf(templates.ReflectionUser, parent, evidence)
}

// crossoverPrompt renders the merge request for two parents.
func crossoverPrompt(a *core.Candidate, scoreA float64, b *core.Candidate, scoreB float64) (system, user string) {
	return templates.CrossoverSystem, fmt.Sprintf(templates.CrossoverUser, scoreA, a.Prompt, scoreB, b.Prompt)
}

// variationPrompt renders the seed-stage variation request, used before
// any evaluation evidence exists.
func variationPrompt(seed string, index int) (system, user string) {
	return templates.VariationSystem, fmt.Sprintf(templates.VariationUser, seed, index)
}

// explainPrompt renders the advisory original-vs-optimized comparison.
func explainPrompt(original, optimized string) (system, user string) {
	return templates.ExplainSystem, fmt.Sprintf(templates.ExplainUser, original, optimized)
}

// formatEvidence turns evaluation results into the evidence block for the
// reflection role: inputs, produced outputs, per-keyword feedback, and the
// keywords still missing. Concrete evidence is what separates reflective
// mutation from blind perturbation.
func formatEvidence(examples []core.TrainingExample, results []core.EvaluationResult) string {
	if len(results) == 0 {
		return "No evaluation evidence available yet."
	}

	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("---\n")
		}

		var input string
		var missing []string
		if res.ExampleIndex >= 0 && res.ExampleIndex < len(examples) {
			ex := examples[res.ExampleIndex]
			input = ex.Input
			missing = MissingKeywords(res.Output, ex.ExpectedKeywords)
		}

		fmt.Fprintf(&b, "Task Input: %q\n", input)
		fmt.Fprintf(&b, "Generated Output: %q\n", res.Output)
		if res.Feedback != "" {
			fmt.Fprintf(&b, "Feedback:\n%s\n", res.Feedback)
		}
		if len(missing) > 0 {
			fmt.Fprintf(&b, "Missing expected keywords: %s\n", strings.Join(missing, ", "))
		}
	}
	return b.String()
}

// extractPrompt cleans a proposal response down to bare prompt text.
func extractPrompt(content string) string {
	content = strings.TrimSpace(content)

	// Strip a leading label line the model sometimes adds despite
	// instructions.
	for _, label := range []string{"New prompt:", "Improved prompt:", "Prompt:"} {
		if strings.HasPrefix(content, label) {
			content = strings.TrimSpace(strings.TrimPrefix(content, label))
		}
	}

	content = strings.Trim(content, "\"'")
	return strings.TrimSpace(content)
}
