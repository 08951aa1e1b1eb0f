package llmgateway

import (
	"fmt"
	"os"
	"path/filepath"
)

// appendToSandbox appends text, followed by a trailing newline, to
// SandboxFileName under sandboxRoot, creating the file if absent. This is
// the file-edit primitive both Gateway implementations use to fulfil Run's
// restricted-filesystem-root contract: the model is never handed a path
// outside sandboxRoot.
func appendToSandbox(sandboxRoot, text string) error {
	if text == "" {
		return nil
	}
	path := filepath.Join(sandboxRoot, SandboxFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open sandbox file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("write sandbox file: %w", err)
	}
	if text[len(text)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return fmt.Errorf("write sandbox file: %w", err)
		}
	}
	return nil
}
