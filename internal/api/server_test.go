// internal/api/server_test.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sbgadvisor/WellNavigator2/internal/chat"
	commonerrors "github.com/sbgadvisor/WellNavigator2/internal/common/errors"
	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	"github.com/sbgadvisor/WellNavigator2/internal/common/tokens"
	streamcompletion "github.com/sbgadvisor/WellNavigator2/internal/pipeline/generation/stream-completion"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, gen chat.Generator) *Server {
	log := logger.NewTestLogger(t)
	p := chat.NewPipeline(nil, chat.Deps{Generator: gen}, log)
	r := chat.NewRegistry(p, time.Minute, log)
	return NewServer(&Config{Address: ":0"}, p, r, log)
}

func sseGenerator(t *testing.T, parts ...string) *streamcompletion.Handler {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range parts {
			fmt.Fprintf(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q}}]}`+"\n\n", p)
		}
		fmt.Fprint(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":40,"completion_tokens":8,"total_tokens":48}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(upstream.Close)

	cfg := streamcompletion.LoadConfig()
	cfg.APIKey = "sk-test"
	cfg.BaseURL = upstream.URL + "/v1"
	cfg.Timeout = 5 * time.Second
	return streamcompletion.NewHandler(cfg, tokens.NewCounter(), logger.NewTestLogger(t))
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, s *Server, body string) string {
	rec := do(t, s, http.MethodPost, "/v1/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Session.ID)
	return resp.Session.ID
}

func TestServer_HealthAndReady(t *testing.T) {
	s := newServer(t, nil)

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status       string            `json:"status"`
		Capabilities chat.Capabilities `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.False(t, body.Capabilities.Generation)
	assert.False(t, body.Capabilities.Retrieval)
}

func TestServer_Metrics(t *testing.T) {
	s := newServer(t, nil)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_ListPrompts(t *testing.T) {
	s := newServer(t, nil)

	rec := do(t, s, http.MethodGet, "/v1/prompts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Prompts []string `json:"prompts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Prompts, 8)
}

func TestServer_ListModels(t *testing.T) {
	s := newServer(t, nil)

	rec := do(t, s, http.MethodGet, "/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Default string                              `json:"default"`
		Models  []string                            `json:"models"`
		Pricing map[string]streamcompletion.Pricing `json:"pricing"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "gpt-4o-mini", body.Default)
	assert.Contains(t, body.Models, "gpt-4o")
	assert.Equal(t, 0.00015, body.Pricing["gpt-4o-mini"].Input)
}

func TestServer_SessionLifecycle(t *testing.T) {
	s := newServer(t, nil)
	id := createSession(t, s, "")

	rec := do(t, s, http.MethodGet, "/v1/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "gpt-4o-mini", resp.Session.Settings.Model)
	assert.Equal(t, 50000, resp.Budget.Ceiling)

	rec = do(t, s, http.MethodPut, "/v1/sessions/"+id+"/settings", `{"rag_on":true,"temperature":0.3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Session.Settings.RAGOn)
	assert.Equal(t, 0.3, resp.Session.Settings.Temperature)
	assert.Equal(t, "gpt-4o-mini", resp.Session.Settings.Model)

	rec = do(t, s, http.MethodGet, "/v1/sessions/"+id+"/usage", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_tokens":0`)

	rec = do(t, s, http.MethodDelete, "/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var apiErr commonerrors.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "SESSION_NOT_FOUND", apiErr.Code)
}

func TestServer_InvalidInput(t *testing.T) {
	s := newServer(t, nil)
	id := createSession(t, s, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"bad temperature on create", http.MethodPost, "/v1/sessions", `{"temperature":3}`},
		{"empty model on update", http.MethodPut, "/v1/sessions/" + id + "/settings", `{"model":""}`},
		{"empty turn", http.MethodPost, "/v1/sessions/" + id + "/turns", `{"text":"   "}`},
		{"malformed body", http.MethodPost, "/v1/sessions/" + id + "/turns", `{"text":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"INVALID_INPUT"`)
		})
	}
}

func TestServer_CreateTurn(t *testing.T) {
	t.Run("refusal", func(t *testing.T) {
		s := newServer(t, nil)
		id := createSession(t, s, "")

		rec := do(t, s, http.MethodPost, "/v1/sessions/"+id+"/turns", `{"text":"I'm having chest pain and can't breathe"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var res chat.TurnResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, chat.OutcomeRefused, res.Outcome)
		assert.True(t, res.Meta.Refused)
		assert.Contains(t, res.Text, "911")
	})

	t.Run("generation unavailable", func(t *testing.T) {
		s := newServer(t, nil)
		id := createSession(t, s, "")

		rec := do(t, s, http.MethodPost, "/v1/sessions/"+id+"/turns", `{"text":"What is a normal resting heart rate?"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var res chat.TurnResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, chat.OutcomeError, res.Outcome)
		assert.Equal(t, commonerrors.MsgGenerationUnavailable, res.Text)
	})

	t.Run("completed", func(t *testing.T) {
		s := newServer(t, sseGenerator(t, "Usually ", "60 to 100 bpm."))
		id := createSession(t, s, "")

		rec := do(t, s, http.MethodPost, "/v1/sessions/"+id+"/turns", `{"text":"What is a normal resting heart rate?"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var res chat.TurnResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, chat.OutcomeCompleted, res.Outcome)
		assert.Equal(t, "Usually 60 to 100 bpm.", res.Text)
		assert.Equal(t, 48, res.Budget.TotalTokens)

		rec = do(t, s, http.MethodGet, "/v1/sessions/"+id, "")
		var resp SessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Session.TurnCount)

		rec = do(t, s, http.MethodPost, "/v1/sessions/"+id+"/clear", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Zero(t, resp.Session.TurnCount)
		assert.Zero(t, resp.Budget.TotalTokens)
	})

	t.Run("unknown session", func(t *testing.T) {
		s := newServer(t, nil)
		rec := do(t, s, http.MethodPost, "/v1/sessions/nope/turns", `{"text":"hello"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func dialStream(t *testing.T, s *Server, id string) *websocket.Conn {
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntilDone(t *testing.T, conn *websocket.Conn) ([]string, ServerFrame) {
	var chunks []string
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frame ServerFrame
		require.NoError(t, conn.ReadJSON(&frame))
		switch frame.Type {
		case FrameChunk:
			chunks = append(chunks, frame.Content)
		default:
			return chunks, frame
		}
	}
}

func TestServer_StreamTurns(t *testing.T) {
	s := newServer(t, sseGenerator(t, "Drink ", "water ", "regularly."))
	id := createSession(t, s, "")
	conn := dialStream(t, s, id)

	require.NoError(t, conn.WriteJSON(TurnRequest{Text: "How much water should I drink?"}))
	chunks, done := readUntilDone(t, conn)
	assert.Equal(t, []string{"Drink ", "water ", "regularly."}, chunks)
	require.Equal(t, FrameDone, done.Type)
	require.NotNil(t, done.Result)
	assert.Equal(t, chat.OutcomeCompleted, done.Result.Outcome)
	assert.Equal(t, "Drink water regularly.", done.Result.Text)

	// The same socket carries the next turn.
	require.NoError(t, conn.WriteJSON(TurnRequest{Text: "I think I took too many pills"}))
	chunks, done = readUntilDone(t, conn)
	require.Len(t, chunks, 1)
	require.NotNil(t, done.Result)
	assert.Equal(t, chat.OutcomeRefused, done.Result.Outcome)
	assert.Equal(t, chunks[0], done.Result.Text)
}

func TestServer_StreamTurns_EmptyText(t *testing.T) {
	s := newServer(t, nil)
	id := createSession(t, s, "")
	conn := dialStream(t, s, id)

	require.NoError(t, conn.WriteJSON(TurnRequest{Text: ""}))
	_, frame := readUntilDone(t, conn)
	assert.Equal(t, FrameError, frame.Type)
	require.NotNil(t, frame.Error)
	assert.Equal(t, "INVALID_INPUT", frame.Error.Code)
}

func TestServer_StreamTurns_UnknownSession(t *testing.T) {
	s := newServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/missing/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_CheckOrigin(t *testing.T) {
	s := NewServer(&Config{AllowedOrigins: []string{"https://app.example"}}, nil, nil, logger.NewNoOpLogger())

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions/x/stream", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, s.checkOrigin(req), tt.origin)
	}
}
