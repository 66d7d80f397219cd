package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentcore/pkg/contextmanager"
	"github.com/kadirpekel/agentcore/pkg/jobstate"
	"github.com/kadirpekel/agentcore/pkg/llm"
	"github.com/kadirpekel/agentcore/pkg/tool"
)

func newCtxMgr() *contextmanager.Manager {
	return contextmanager.New(contextmanager.DefaultConfig("gpt-4"), contextmanager.FallbackCounter{})
}

func TestHTTPClientInvokeParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4", body["model"])

		resp := map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"role":    "assistant",
						"content": "",
						"tool_calls": []map[string]any{
							{
								"id":   "call_1",
								"type": "function",
								"function": map[string]any{
									"name":      "read_file",
									"arguments": `{"path":"a.txt"}`,
								},
							},
						},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := llm.NewHTTPClient(llm.Config{BaseURL: srv.URL, Model: "gpt-4"}, newCtxMgr())
	client.BindTools([]tool.Definition{{Name: "read_file", Description: "reads a file"}})

	msg, err := client.Invoke(context.Background(), []jobstate.Message{jobstate.NewHuman("go read a.txt")})
	require.NoError(t, err)
	assert.Equal(t, jobstate.RoleAssistant, msg.Role)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "read_file", msg.ToolCalls[0].Name)
	assert.Equal(t, "a.txt", msg.ToolCalls[0].Arguments["path"])
}

func TestHTTPClientInvokeReturnsPlainContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "done"}},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := llm.NewHTTPClient(llm.Config{BaseURL: srv.URL, Model: "gpt-4"}, newCtxMgr())
	msg, err := client.Invoke(context.Background(), []jobstate.Message{jobstate.NewHuman("hi")})
	require.NoError(t, err)
	assert.Equal(t, "done", msg.Content)
	assert.Empty(t, msg.ToolCalls)
}

func TestHTTPClientInvokeWraps5xxAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	client := llm.NewHTTPClient(llm.Config{BaseURL: srv.URL, Model: "gpt-4"}, newCtxMgr())
	_, err := client.Invoke(context.Background(), []jobstate.Message{jobstate.NewHuman("hi")})
	require.Error(t, err)
	var transient *llm.TransientError
	assert.ErrorAs(t, err, &transient)
}

func TestHTTPClientInvokeWraps4xxAsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer srv.Close()

	client := llm.NewHTTPClient(llm.Config{BaseURL: srv.URL, Model: "gpt-4"}, newCtxMgr())
	_, err := client.Invoke(context.Background(), []jobstate.Message{jobstate.NewHuman("hi")})
	require.Error(t, err)
	var fatal *llm.FatalError
	assert.ErrorAs(t, err, &fatal)
}

func TestHTTPClientInvokeReturnsOverflowErrorWithoutCallingServer(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := llm.NewHTTPClient(llm.Config{BaseURL: srv.URL, Model: "gpt-4", ContextLimit: 1}, newCtxMgr())
	_, err := client.Invoke(context.Background(), []jobstate.Message{jobstate.NewHuman("this message is definitely longer than four characters")})
	require.Error(t, err)
	var overflow *contextmanager.OverflowError
	assert.ErrorAs(t, err, &overflow)
	assert.False(t, called)
}
