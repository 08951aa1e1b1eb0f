package cards

import (
	"context"
	"strings"

	"github.com/memory-loop/daemon/internal/llmgateway"
	"github.com/memory-loop/daemon/internal/logging"
)

// DefaultMinContentLength is the content length below which a file is
// considered too short to be worth a card, per spec.md §4.10's "too
// short to generate" skip case.
const DefaultMinContentLength = 200

const cardSystemPrompt = `You write spaced-repetition flashcards from a single note. ` +
	`Read the note and produce zero or more question/answer pairs capturing durable, ` +
	`testable facts (not fleeting status or task-list items). ` +
	`Respond with one pair per block, separated by a blank line, each block exactly:
Q: <question>
A: <answer>
If nothing in the note is worth a flashcard, respond with exactly: NONE`

// LLMGenerator is the card generator backed by the LLM gateway, satisfying
// the Generator interface the Card Discovery Engine drives.
type LLMGenerator struct {
	Gateway          llmgateway.Gateway
	MinContentLength int
}

// NewLLMGenerator constructs an LLMGenerator, defaulting MinContentLength
// when unset.
func NewLLMGenerator(gateway llmgateway.Gateway) *LLMGenerator {
	return &LLMGenerator{Gateway: gateway, MinContentLength: DefaultMinContentLength}
}

// Generate asks the LLM gateway for cards covering content. A gateway
// error is treated as a transient failure (the LLM request itself
// failed, e.g. a timeout or outage) and returned as retriable; a
// response that parses to no usable Q/A pairs is treated as a permanent,
// schema-level failure and is not retried.
func (g *LLMGenerator) Generate(ctx context.Context, content string) (GenResult, error) {
	minLen := g.MinContentLength
	if minLen <= 0 {
		minLen = DefaultMinContentLength
	}
	if len(strings.TrimSpace(content)) < minLen {
		return GenResult{Success: true, Skipped: true}, nil
	}

	response, err := g.Gateway.Generate(ctx, cardSystemPrompt, content)
	if err != nil {
		logging.CardsWarn("card generation request failed, treating as retriable: %v", err)
		return GenResult{Retriable: true}, nil
	}

	if strings.TrimSpace(strings.ToUpper(response)) == "NONE" {
		return GenResult{Success: true, Skipped: true}, nil
	}

	cards := parseCardResponse(response)
	if len(cards) == 0 {
		logging.CardsWarn("card generation response did not parse into any Q/A pairs")
		return GenResult{}, nil
	}
	return GenResult{Success: true, Cards: cards}, nil
}

// parseCardResponse parses blank-line-separated "Q: ...\nA: ..." blocks.
// Malformed blocks are skipped rather than failing the whole response.
func parseCardResponse(response string) []Card {
	var cards []Card
	for _, block := range strings.Split(response, "\n\n") {
		var question, answer string
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(strings.ToUpper(line), "Q:"):
				question = strings.TrimSpace(line[2:])
			case strings.HasPrefix(strings.ToUpper(line), "A:"):
				answer = strings.TrimSpace(line[2:])
			}
		}
		if question != "" && answer != "" {
			cards = append(cards, Card{Question: question, Answer: answer})
		}
	}
	return cards
}
