package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-go-golems/cardstream/pkg/activity"
	"github.com/go-go-golems/cardstream/pkg/events"
	"github.com/go-go-golems/cardstream/pkg/extract"
	"github.com/go-go-golems/cardstream/pkg/helpers"
	"github.com/go-go-golems/cardstream/pkg/layout"
	"github.com/go-go-golems/cardstream/pkg/session"
	"github.com/go-go-golems/cardstream/pkg/similarity"
	"github.com/go-go-golems/cardstream/pkg/transport"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, chunkSize int) *httptest.Server {
	t.Helper()

	idx, err := similarity.NewIndex(context.Background(), similarity.DefaultDataset())
	require.NoError(t, err)
	narrator, err := NewTemplateNarrator("")
	require.NoError(t, err)

	agent := NewAgent(narrator, WithTool(NewSimilarityTool(idx, 5)), WithChunkSize(chunkSize))
	ts := httptest.NewServer(New(agent).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postInit(t *testing.T, ts *httptest.Server, body string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/chat/init", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestServer_EndToEndIntoSession(t *testing.T) {
	ts := newTestServer(t, 7)

	s := session.New(
		session.WithFootprint(layout.Size{Width: 20, Height: 3}),
		session.WithSurface(layout.Size{Width: 200, Height: 80}, layout.Rect{X: 0, Y: 0, Width: 50, Height: 80}),
	)
	id, err := s.Submit("Which molecules are similar to CCO?")
	require.NoError(t, err)

	ctx := events.WithEventSinks(context.Background(), s)
	require.NoError(t, transport.NewClient(ts.URL).Run(ctx, id, "Which molecules are similar to CCO?"))

	assert.Equal(t, activity.StateIdle, s.State())
	th, ok := s.ActiveThread()
	require.True(t, ok)
	assert.True(t, th.Complete)
	assert.Empty(t, th.Error)

	list := s.Cards()
	require.Len(t, list, 5)
	assert.Equal(t, "CCO", list[0].Content["identifier"])
	assert.Equal(t, SimilarityToolName, list[0].Kind)

	n := s.Narration(id)
	assert.Contains(t, n, "closest match is `CCO`")
	assert.NotContains(t, n, extract.NarrationStart)
	assert.NotContains(t, n, "Tool Response")
}

func TestServer_StreamIsServedOnce(t *testing.T) {
	ts := newTestServer(t, 0)
	id := uuid.New()

	status, out := postInit(t, ts, `{"id":"`+id.String()+`","query":"hello"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, id.String(), out["id"])

	resp, err := http.Get(ts.URL + "/chat/stream/" + id.String())
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasSuffix(string(body), "data: "+transport.EndSentinel+"\n\n"))
	assert.Contains(t, string(body), `data: "`+extract.NarrationStart+`"`)

	resp, err = http.Get(ts.URL + "/chat/stream/" + id.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var out2 map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out2))
	assert.Equal(t, "Query not found", out2["message"])
}

func TestServer_InitRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t, 0)
	id := uuid.New().String()

	status, _ := postInit(t, ts, `not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = postInit(t, ts, `{"id":"`+id+`","query":""}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = postInit(t, ts, `{"query":"q"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = postInit(t, ts, `{"id":"`+id+`","query":"q"}`)
	assert.Equal(t, http.StatusOK, status)
	status, out := postInit(t, ts, `{"id":"`+id+`","query":"q"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "error", out["status"])

	resp, err := http.Get(ts.URL + "/chat/stream/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_RequestID(t *testing.T) {
	ts := newTestServer(t, 0)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "abc")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc", resp.Header.Get("X-Request-Id"))
}

func TestAgent_PayloadMatchesSchema(t *testing.T) {
	idx, err := similarity.NewIndex(context.Background(), similarity.DefaultDataset())
	require.NoError(t, err)
	narrator, err := NewTemplateNarrator("")
	require.NoError(t, err)
	agent := NewAgent(narrator, WithTool(NewSimilarityTool(idx, 3)))

	var buf bytes.Buffer
	require.NoError(t, agent.Respond(context.Background(), "c1ccccc1", func(s string) error {
		buf.WriteString(s)
		return nil
	}))

	raw := buf.String()
	inv, ok := extract.ToolInvocationFrom(raw)
	require.True(t, ok)
	assert.Len(t, inv.Batch(), 3)
	assert.Equal(t, "c1ccccc1", inv.Batch()[0]["identifier"])

	payload, err := json.Marshal(inv)
	require.NoError(t, err)
	require.NoError(t, helpers.ValidateJSON(extract.Schema(), payload))

	assert.True(t, strings.HasSuffix(raw, extract.NarrationEnd))
}

type failingTool struct{}

func (failingTool) Definition() ToolDefinition {
	return ToolDefinition{Name: "broken"}
}

func (failingTool) Call(context.Context, json.RawMessage) (*extract.ToolInvocation, error) {
	return nil, assert.AnError
}

func TestAgent_ToolFailureIsReportedInPayload(t *testing.T) {
	narrator, err := NewTemplateNarrator("")
	require.NoError(t, err)
	agent := NewAgent(narrator, WithTool(failingTool{}))

	var buf bytes.Buffer
	require.NoError(t, agent.Respond(context.Background(), "similar to CCO", func(s string) error {
		buf.WriteString(s)
		return nil
	}))

	inv, ok := extract.ToolInvocationFrom(buf.String())
	require.True(t, ok)
	assert.False(t, inv.Succeeded())
	assert.Empty(t, inv.Batch())
	assert.Contains(t, extract.Narration(buf.String()), "did not succeed")
}

func TestAgent_NoToolForSmallTalk(t *testing.T) {
	narrator, err := NewTemplateNarrator("")
	require.NoError(t, err)
	agent := NewAgent(narrator, WithTool(failingTool{}))

	var buf bytes.Buffer
	require.NoError(t, agent.Respond(context.Background(), "hello there", func(s string) error {
		buf.WriteString(s)
		return nil
	}))

	_, ok := extract.ToolInvocationFrom(buf.String())
	assert.False(t, ok)
	assert.True(t, strings.HasPrefix(buf.String(), extract.NarrationStart))
}

func TestAgent_ChunkingKeepsRunesWhole(t *testing.T) {
	narrator, err := NewTemplateNarrator("héllo wörld ✓")
	require.NoError(t, err)
	agent := NewAgent(narrator, WithChunkSize(2))

	var parts []string
	require.NoError(t, agent.Respond(context.Background(), "hi", func(s string) error {
		parts = append(parts, s)
		return nil
	}))

	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 3)
		assert.True(t, json.Valid(mustMarshal(t, p)))
		assert.Equal(t, p, strings.ToValidUTF8(p, "?"))
	}
	assert.Equal(t, extract.NarrationStart+"héllo wörld ✓"+extract.NarrationEnd, strings.Join(parts, ""))
}

func mustMarshal(t *testing.T, s string) []byte {
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return b
}

func TestEncodeChunk(t *testing.T) {
	data, err := encodeChunk("<# Chat Response Start#>a\nb")
	require.NoError(t, err)
	assert.Equal(t, `"<# Chat Response Start#>a\nb"`, data)
	assert.Equal(t, "<# Chat Response Start#>a\nb", transport.DecodeChunk(data))
}
