package llmgateway

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/memory-loop/daemon/internal/logging"
)

// defaultModel matches the teacher's embedding engine's convention of
// defaulting an empty model string rather than requiring callers to know
// the current model name.
const defaultModel = "gemini-2.5-flash"

// GenAIGateway is a Gateway backed by Google's Gemini API.
type GenAIGateway struct {
	client *genai.Client
	model  string
}

// NewGenAIGateway constructs a GenAIGateway. apiKey must be non-empty; an
// empty model defaults to defaultModel.
func NewGenAIGateway(apiKey, model string) (*GenAIGateway, error) {
	timer := logging.StartTimer(logging.CategoryConnector, "NewGenAIGateway")
	defer timer.Stop()

	if apiKey == "" {
		return nil, fmt.Errorf("genai gateway: API key is required")
	}
	if model == "" {
		model = defaultModel
		logging.ConnectorDebug("genai gateway: model defaulted to %s", model)
	}

	ctx := context.Background()
	start := time.Now()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("genai gateway: create client after %v: %w", latency, err)
	}
	logging.ConnectorDebug("genai gateway: client created in %v", latency)

	return &GenAIGateway{client: client, model: model}, nil
}

// Generate implements Gateway.
func (g *GenAIGateway) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	timer := logging.StartTimer(logging.CategoryConnector, "GenAI.Generate")
	defer timer.Stop()

	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	latency := time.Since(start)
	if err != nil {
		return "", fmt.Errorf("genai gateway: generate content after %v: %w", latency, err)
	}
	logging.ConnectorDebug("genai gateway: response received in %v", latency)

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("genai gateway: no content in response")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

// Run implements Gateway. The genai text API has no native file-editing
// tool wired in this client, so the restriction to sandboxRoot is enforced
// in Go: the model only ever sees prompt, and its answer is appended to
// SandboxFileName under sandboxRoot by this method, never by the model
// itself.
func (g *GenAIGateway) Run(ctx context.Context, prompt, sandboxRoot string) (RunResult, error) {
	system := "You are editing a single Markdown file in a restricted sandbox. " +
		"Respond with only the Markdown content to append to it; do not repeat existing content."
	text, err := g.Generate(ctx, system, prompt)
	if err != nil {
		return RunResult{}, err
	}
	if err := appendToSandbox(sandboxRoot, text); err != nil {
		return RunResult{}, err
	}
	return RunResult{Completed: true}, nil
}
