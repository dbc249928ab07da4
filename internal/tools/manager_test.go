package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/wrapmcp/internal/controller"
	"github.com/loykin/wrapmcp/internal/logstore"
	"github.com/loykin/wrapmcp/internal/protocol"
)

func newTestManager() (*Manager, *logstore.Store) {
	store := logstore.New(100)
	ctrl := controller.New(controller.Config{Command: "cat"}, store)
	return NewManager(ctrl, store, time.Second), store
}

func callResult(t *testing.T, raw json.RawMessage) protocol.CallToolResult {
	t.Helper()
	var result protocol.CallToolResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.NotEmpty(t, result.Content)
	return result
}

func TestBuiltinsAlwaysAdvertised(t *testing.T) {
	m, _ := newTestManager()

	names := make(map[protocol.ToolName]protocol.ToolOrigin)
	for _, d := range m.All() {
		names[d.Name] = d.Origin
	}
	for _, want := range []protocol.ToolName{ToolShowLog, ToolClearLog, ToolRestartServer} {
		origin, ok := names[want]
		require.True(t, ok, "missing %s", want)
		assert.Equal(t, protocol.OriginBuiltin, origin)
	}
}

func TestWrappeeToolsListedBeforeBuiltins(t *testing.T) {
	m, _ := newTestManager()
	m.wrappeeTools = []protocol.ToolDescriptor{
		{Name: "remote_tool", Origin: protocol.OriginWrappee},
	}

	all := m.All()
	require.Len(t, all, 1+len(builtinDescriptors))
	assert.Equal(t, protocol.ToolName("remote_tool"), all[0].Name)
}

func TestInvokeUnknownTool(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.Invoke(context.Background(), "no_such_tool", nil)
	assert.ErrorIs(t, err, protocol.ErrNotFound)
}

func TestInvokeForwardedToolFailsFastWhileUnavailable(t *testing.T) {
	m, _ := newTestManager()
	m.wrappeeTools = []protocol.ToolDescriptor{{Name: "remote_tool"}}

	_, err := m.Invoke(context.Background(), "remote_tool", nil)
	assert.ErrorIs(t, err, protocol.ErrUnavailable)
}

func TestShowLogRendersStoreContent(t *testing.T) {
	m, store := newTestManager()
	store.AddRequest("summarize", json.RawMessage(`{"text":"hi"}`))
	store.AddStderr("warning: low disk")

	raw, err := m.Invoke(context.Background(), ToolShowLog, nil)
	require.NoError(t, err)

	text := callResult(t, raw).Content[0].Text
	assert.Contains(t, text, "[REQUEST #1] summarize")
	assert.Contains(t, text, "[STDERR] warning: low disk")
}

func TestShowLogHonorsFilters(t *testing.T) {
	m, store := newTestManager()
	store.AddRequest("alpha", nil)
	store.AddRequest("beta", nil)

	args := json.RawMessage(`{"tool_name":"alpha"}`)
	raw, err := m.Invoke(context.Background(), ToolShowLog, args)
	require.NoError(t, err)

	text := callResult(t, raw).Content[0].Text
	assert.Contains(t, text, "alpha")
	assert.NotContains(t, text, "beta")
}

func TestShowLogRejectsInvalidEntryType(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.Invoke(context.Background(), ToolShowLog, json.RawMessage(`{"entry_type":"warning"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry_type")
}

func TestShowLogEmptyStore(t *testing.T) {
	m, _ := newTestManager()
	raw, err := m.Invoke(context.Background(), ToolShowLog, nil)
	require.NoError(t, err)
	assert.Contains(t, callResult(t, raw).Content[0].Text, "No log entries found.")
}

func TestClearLogEmptiesStore(t *testing.T) {
	m, store := newTestManager()
	store.AddStderr("a")
	store.AddStderr("b")

	raw, err := m.Invoke(context.Background(), ToolClearLog, nil)
	require.NoError(t, err)
	assert.Contains(t, callResult(t, raw).Content[0].Text, "Log cleared.")
	assert.Equal(t, 0, store.Len())
}

func TestRestartToolSurfacesControllerError(t *testing.T) {
	m, _ := newTestManager()
	// Controller has never started; restart must be rejected, not queued.
	_, err := m.Invoke(context.Background(), ToolRestartServer, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestIsBuiltin(t *testing.T) {
	m, _ := newTestManager()
	assert.True(t, m.IsBuiltin(ToolShowLog))
	assert.True(t, m.IsBuiltin(ToolClearLog))
	assert.True(t, m.IsBuiltin(ToolRestartServer))
	assert.False(t, m.IsBuiltin("summarize"))
}
