package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
)

// MockModel is a testify mock implementation of core.ModelClient.
type MockModel struct {
	mock.Mock
}

func (m *MockModel) Complete(ctx context.Context, systemInstruction, userContent string, sampling core.SamplingConfig) (string, error) {
	args := m.Called(ctx, systemInstruction, userContent, sampling)
	return args.String(0), args.Error(1)
}

func (m *MockModel) ModelID() string {
	return "mock-model"
}

// RecordedCall captures one call made to a scripted model.
type RecordedCall struct {
	System   string
	User     string
	Sampling core.SamplingConfig
}

// ScriptedModel replays a fixed response sequence, which makes whole runs
// deterministic: two runs with the same configuration and the same script
// must produce identical results.
type ScriptedModel struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	next      int
	calls     []RecordedCall

	// Fallback handles calls past the end of the script. Nil means such
	// calls fail the sequence with an error.
	Fallback func(system, user string) (string, error)
}

// ScriptedResponse is one scripted oracle answer. A non-nil Err is
// returned instead of the content.
type ScriptedResponse struct {
	Content string
	Err     error
}

func NewScriptedModel(responses ...ScriptedResponse) *ScriptedModel {
	return &ScriptedModel{responses: responses}
}

// Respond appends a successful response to the script.
func (s *ScriptedModel) Respond(content string) *ScriptedModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, ScriptedResponse{Content: content})
	return s
}

// Fail appends a failing response to the script.
func (s *ScriptedModel) Fail(err error) *ScriptedModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, ScriptedResponse{Err: err})
	return s
}

func (s *ScriptedModel) Complete(ctx context.Context, systemInstruction, userContent string, sampling core.SamplingConfig) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, RecordedCall{System: systemInstruction, User: userContent, Sampling: sampling})

	if s.next < len(s.responses) {
		resp := s.responses[s.next]
		s.next++
		if resp.Err != nil {
			return "", resp.Err
		}
		return resp.Content, nil
	}

	if s.Fallback != nil {
		return s.Fallback(systemInstruction, userContent)
	}
	return "", fmt.Errorf("scripted model exhausted after %d responses", len(s.responses))
}

func (s *ScriptedModel) ModelID() string {
	return "scripted-model"
}

// Calls returns a copy of every call the model received, in order.
func (s *ScriptedModel) Calls() []RecordedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount reports how many calls the model received.
func (s *ScriptedModel) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// EchoProposals is a ready-made fallback that answers proposal prompts
// with a derived variant and rollout prompts with the fixed output. It
// keeps long-running controller tests from exhausting short scripts.
func EchoProposals(rolloutOutput string) func(system, user string) (string, error) {
	var n int
	var mu sync.Mutex
	return func(system, user string) (string, error) {
		if strings.Contains(system, "prompt engineer") {
			mu.Lock()
			n++
			v := n
			mu.Unlock()
			return fmt.Sprintf("Proposed prompt variant %d", v), nil
		}
		return rolloutOutput, nil
	}
}
