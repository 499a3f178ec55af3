package v1

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xiaot623/chatd/internal/adapter/llm"
	"github.com/xiaot623/chatd/internal/config"
	"github.com/xiaot623/chatd/internal/domain"
	"github.com/xiaot623/chatd/internal/repository"
	"github.com/xiaot623/chatd/internal/secret"
	"github.com/xiaot623/chatd/internal/service"
	"github.com/xiaot623/chatd/internal/testutil"
	"github.com/xiaot623/chatd/internal/tools"
)

func newTestServer(t *testing.T) (*echo.Echo, *repository.SQLiteStore) {
	t.Helper()
	db := testutil.NewTestSQLiteStore(t)
	sealer, err := secret.NewSealer("test-secret")
	require.NoError(t, err)

	fast := func(ctx context.Context, provider, model string, cred llm.Credential) (llms.Model, error) {
		return &llm.MockModel{ChunkSize: 8}, nil
	}
	cfg := &config.Config{LLMTimeout: 10 * time.Second, PersistTimeout: time.Second}
	svc := service.New(db, llm.NewRegistryWithFactory(fast, true), tools.NewRegistry(tools.DefaultCatalog()), nil, sealer, cfg)

	e := echo.New()
	NewHandler(svc, true).RegisterRoutes(e)
	return e, db
}

func doRequest(e *echo.Echo, method, path, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createChat(t *testing.T, e *echo.Echo, user string) domain.Conversation {
	t.Helper()
	rec := doRequest(e, http.MethodPost, "/api/chats", user, `{"title":"Demo","llm_provider":"openai","model_name":"gpt-4"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var conv domain.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	return conv
}

func readSSE(t *testing.T, body string) []domain.StreamEvent {
	t.Helper()
	var events []domain.StreamEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev domain.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestHealthAndInfo(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/info", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info struct {
		MockMode  bool     `json:"mock_mode"`
		Providers []string `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.True(t, info.MockMode)
	assert.Len(t, info.Providers, 4)
}

func TestRequireUser(t *testing.T) {
	e, _ := newTestServer(t)
	rec := doRequest(e, http.MethodGet, "/api/chats", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatCRUD(t *testing.T) {
	e, _ := newTestServer(t)
	conv := createChat(t, e, "u1")

	rec := doRequest(e, http.MethodGet, "/api/chats", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.ConversationSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = doRequest(e, http.MethodPut, "/api/chats/"+conv.ID, "u1", `{"title":"Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Renamed")

	rec = doRequest(e, http.MethodGet, "/api/chats/"+conv.ID, "u2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(e, http.MethodPost, "/api/chats", "u1", `{"llm_provider":"nonexistent"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(domain.KindUnknownProvider))

	rec = doRequest(e, http.MethodDelete, "/api/chats/"+conv.ID, "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(e, http.MethodGet, "/api/chats/"+conv.ID, "u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessages(t *testing.T) {
	e, _ := newTestServer(t)
	conv := createChat(t, e, "u1")

	rec := doRequest(e, http.MethodPost, "/api/chats/"+conv.ID+"/messages", "u1", `{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(e, http.MethodPost, "/api/chats/"+conv.ID+"/messages", "u1", `{"role":"robot","content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/chats/"+conv.ID+"/messages", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var messages []domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)
}

func TestStreamChat(t *testing.T) {
	e, db := newTestServer(t)
	conv := createChat(t, e, "u1")

	rec := doRequest(e, http.MethodPost, "/api/chats/"+conv.ID+"/stream", "u1", `{"message":"Hi there"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := readSSE(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 2)
	last := events[len(events)-1]
	assert.True(t, last.Done)
	assert.NotEmpty(t, last.MessageID)

	var streamed strings.Builder
	for _, ev := range events[:len(events)-1] {
		streamed.WriteString(ev.Content)
	}

	messages, err := db.GetMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Hi there", messages[0].Content)
	assert.Equal(t, streamed.String(), messages[1].Content)
	assert.Equal(t, last.MessageID, messages[1].ID)

	rec = doRequest(e, http.MethodGet, "/api/chats/"+conv.ID+"/events?types=turn_completed", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var trace struct {
		Events []domain.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trace))
	assert.Len(t, trace.Events, 1)
}

func TestStreamChatErrorsBeforeStreamingAreJSON(t *testing.T) {
	e, _ := newTestServer(t)
	conv := createChat(t, e, "u1")

	rec := doRequest(e, http.MethodPost, "/api/chats/"+conv.ID+"/stream", "intruder", `{"message":"hi"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	rec = doRequest(e, http.MethodPost, "/api/chats/missing/stream", "u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateAndCancel(t *testing.T) {
	e, _ := newTestServer(t)
	conv := createChat(t, e, "u1")

	rec := doRequest(e, http.MethodPost, "/api/chats/"+conv.ID+"/generate", "u1", `{"message":"ping"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res domain.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Done)
	assert.Contains(t, res.Content, "[MOCK]")

	rec = doRequest(e, http.MethodPost, "/api/chats/"+conv.ID+"/cancel", "u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProviderConfigs(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodGet, "/api/llm-configs/providers", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodPost, "/api/llm-configs", "u1", `{"provider":"openai","api_key":"sk-abc","model_name":"gpt-4"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "sk-abc")
	var cfg domain.ProviderConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.True(t, cfg.HasAPIKey)
	assert.True(t, cfg.IsDefault)

	rec = doRequest(e, http.MethodPost, "/api/llm-configs", "u1", `{"provider":"openai"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(e, http.MethodPost, "/api/llm-configs", "u1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodPost, "/api/llm-configs/"+cfg.ID+"/test", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "success")

	rec = doRequest(e, http.MethodGet, "/api/llm-configs/"+cfg.ID, "u2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Conversations without a provider pick up the default.
	rec = doRequest(e, http.MethodPost, "/api/chats", "u1", `{"title":"x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"model_name":"gpt-4"`)

	rec = doRequest(e, http.MethodDelete, "/api/llm-configs/"+cfg.ID, "u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestToolServers(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/tool-servers/filesystem/disable", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/tool-servers", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Servers []domain.ToolServer `json:"servers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	for _, s := range resp.Servers {
		if s.Name == "filesystem" {
			assert.True(t, s.Disabled)
		}
	}

	rec = doRequest(e, http.MethodPost, "/api/tool-servers/filesystem/tools/read_file/disable", "u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(e, http.MethodPost, "/api/tool-servers/nope/enable", "u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[domain.ErrorKind]int{
		domain.KindNotFound:          http.StatusNotFound,
		domain.KindForbidden:         http.StatusForbidden,
		domain.KindUnknownProvider:   http.StatusBadRequest,
		domain.KindMissingCredential: http.StatusBadRequest,
		domain.KindConflict:          http.StatusConflict,
		domain.KindRateLimited:       http.StatusTooManyRequests,
		domain.KindUpstreamAuth:      http.StatusBadGateway,
		domain.KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(domain.NewError(kind, "x")), string(kind))
	}
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
