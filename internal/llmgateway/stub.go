package llmgateway

import (
	"context"
	"fmt"
	"sync"
)

// StubGateway is a deterministic Gateway double for tests and for running
// the daemon without a configured LLM provider. Responses are looked up
// by exact userPrompt match; an optional Default is used otherwise.
type StubGateway struct {
	mu        sync.Mutex
	responses map[string]string
	Default   string
	calls     []string
}

// NewStubGateway constructs a StubGateway with canned userPrompt->response
// pairs.
func NewStubGateway(responses map[string]string) *StubGateway {
	return &StubGateway{responses: responses}
}

// Generate implements Gateway.
func (s *StubGateway) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, userPrompt)

	if resp, ok := s.responses[userPrompt]; ok {
		return resp, nil
	}
	if s.Default != "" {
		return s.Default, nil
	}
	return "", fmt.Errorf("stub gateway: no canned response for prompt %q", userPrompt)
}

// Calls returns every userPrompt passed to Generate, in order.
func (s *StubGateway) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// Run implements Gateway by looking up prompt the same way Generate does,
// then appending the canned response to sandboxRoot's sandbox file itself
// — standing in for a real model's file-editing tool use.
func (s *StubGateway) Run(ctx context.Context, prompt, sandboxRoot string) (RunResult, error) {
	s.mu.Lock()
	resp, ok := s.responses[prompt]
	if !ok {
		resp = s.Default
	}
	s.calls = append(s.calls, prompt)
	s.mu.Unlock()

	if !ok && resp == "" {
		return RunResult{}, fmt.Errorf("stub gateway: no canned response for prompt %q", prompt)
	}
	if err := appendToSandbox(sandboxRoot, resp); err != nil {
		return RunResult{}, err
	}
	return RunResult{Completed: true}, nil
}
