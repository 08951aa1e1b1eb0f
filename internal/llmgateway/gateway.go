// Package llmgateway narrows every LLM call the daemon makes (vocabulary
// fallback lookups, sandboxed extraction) behind one small interface, so
// production code depends on neither a concrete provider SDK nor the
// network.
package llmgateway

import "context"

// SandboxFileName is the well-known Markdown file a Run call is permitted
// to edit within its sandboxRoot.
const SandboxFileName = "memory.sandbox.md"

// RunResult is the outcome of one sandboxed Run call.
type RunResult struct {
	// Completed reports whether the model signaled the task complete. A
	// false value with a nil error means the model gave up without
	// erroring; callers treat it like a failed attempt.
	Completed bool
}

// Gateway is the black-box request/response function spec.md §1 treats as
// an external collaborator. Implementations must never be handed, log, or
// return secret material; callers are responsible for keeping prompts
// free of it.
type Gateway interface {
	// Generate sends systemPrompt and userPrompt to the model and returns
	// its raw text response. Used where the model's job is to answer a
	// question, not to touch the filesystem (vocabulary fallback, card
	// generation).
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Run hands the model a task and a restricted filesystem root
	// (sandboxRoot) under which it may edit SandboxFileName, returning once
	// the model signals completion or fails. Used by the sandboxed
	// extraction driver (spec.md §6, §9 "Sandbox isolation"): the model
	// never sees the real global memory file path, only the sandbox copy.
	Run(ctx context.Context, prompt, sandboxRoot string) (RunResult, error)
}
