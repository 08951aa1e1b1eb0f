package llmgateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubGatewayReturnsCannedResponse(t *testing.T) {
	g := NewStubGateway(map[string]string{"hello": "world"})
	resp, err := g.Generate(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, "world", resp)
}

func TestStubGatewayFallsBackToDefault(t *testing.T) {
	g := NewStubGateway(map[string]string{})
	g.Default = "fallback"
	resp, err := g.Generate(context.Background(), "", "anything")
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp)
}

func TestStubGatewayErrorsWithoutMatchOrDefault(t *testing.T) {
	g := NewStubGateway(map[string]string{})
	_, err := g.Generate(context.Background(), "", "anything")
	assert.Error(t, err)
}

func TestStubGatewayRecordsCalls(t *testing.T) {
	g := NewStubGateway(map[string]string{"a": "1", "b": "2"})
	_, _ = g.Generate(context.Background(), "", "a")
	_, _ = g.Generate(context.Background(), "", "b")
	assert.Equal(t, []string{"a", "b"}, g.Calls())
}

func TestStubGatewayRunAppendsCannedResponseToSandboxFile(t *testing.T) {
	sandboxRoot := t.TempDir()
	g := NewStubGateway(map[string]string{"add facts": "- fact one\n- fact two"})

	result, err := g.Run(context.Background(), "add facts", sandboxRoot)
	require.NoError(t, err)
	assert.True(t, result.Completed)

	data, err := os.ReadFile(filepath.Join(sandboxRoot, SandboxFileName))
	require.NoError(t, err)
	assert.Equal(t, "- fact one\n- fact two\n", string(data))
}

func TestStubGatewayRunErrorsWithoutMatchOrDefault(t *testing.T) {
	g := NewStubGateway(map[string]string{})
	_, err := g.Run(context.Background(), "anything", t.TempDir())
	assert.Error(t, err)
}
