package processors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/replicate/replicate-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReplicate 模拟 Replicate 预测接口并记录收到的请求
type fakeReplicate struct {
	mu       sync.Mutex
	paths    []string
	auth     []string
	bodies   []map[string]any
	polls    int
	failWith string
}

func (f *fakeReplicate) record(r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	if body != nil {
		f.bodies = append(f.bodies, body)
	}
}

func (f *fakeReplicate) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("POST /models/{owner}/{name}/predictions", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if f.failWith != "" {
			writeJSON(w, map[string]any{"id": "p-fail", "status": "failed", "error": f.failWith})
			return
		}
		writeJSON(w, map[string]any{"id": "p1", "status": "succeeded", "output": []string{"Ass", "ess", "ment"}})
	})
	mux.HandleFunc("POST /predictions", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeJSON(w, map[string]any{"id": "p2", "status": "starting"})
	})
	mux.HandleFunc("GET /predictions/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		f.polls++
		polls := f.polls
		f.mu.Unlock()
		if polls < 2 {
			writeJSON(w, map[string]any{"id": r.PathValue("id"), "status": "processing"})
			return
		}
		writeJSON(w, map[string]any{"id": r.PathValue("id"), "status": "succeeded", "output": []string{"https://cdn.example.com/pose.png"}})
	})
	return mux
}

func newTestReplicateClient(t *testing.T, fake *fakeReplicate) *ReplicateClient {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	c, err := NewReplicateClient("r8_test", replicate.WithBaseURL(srv.URL))
	require.NoError(t, err)
	c.pollInterval = 10 * time.Millisecond
	return c
}

func TestReplicateClientUnversionedModelUsesModelEndpoint(t *testing.T) {
	fake := &fakeReplicate{}
	c := newTestReplicateClient(t, fake)

	out, err := c.Invoke(context.Background(), "meta/meta-llama-3-8b-instruct", NewTextInput("rate my turns", "coach", 256, 0.5))
	require.NoError(t, err)
	assert.Equal(t, OutputTokens, out.Kind)
	assert.Equal(t, "Ass ess ment", out.Text())

	require.Len(t, fake.paths, 1)
	assert.Equal(t, "POST /models/meta/meta-llama-3-8b-instruct/predictions", fake.paths[0])
	assert.Equal(t, "Token r8_test", fake.auth[0])

	require.Len(t, fake.bodies, 1)
	assert.NotContains(t, fake.bodies[0], "version")
	input, ok := fake.bodies[0]["input"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rate my turns", input[FieldPrompt])
	assert.NotContains(t, input, "_task")
}

func TestReplicateClientVersionedModelPollsUntilDone(t *testing.T) {
	fake := &fakeReplicate{}
	c := newTestReplicateClient(t, fake)

	out, err := c.Invoke(context.Background(), "jagilley/controlnet-pose:abc123", NewPoseInput("data:image/jpeg;base64,AA==", "pose"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/pose.png", out.ImageURL())

	require.GreaterOrEqual(t, len(fake.paths), 3)
	assert.Equal(t, "POST /predictions", fake.paths[0])
	assert.Equal(t, "GET /predictions/p2", fake.paths[1])
	assert.Equal(t, "abc123", fake.bodies[0]["version"])
}

func TestReplicateClientFailedPrediction(t *testing.T) {
	fake := &fakeReplicate{failWith: "CUDA out of memory"}
	c := newTestReplicateClient(t, fake)

	_, err := c.Invoke(context.Background(), "meta/meta-llama-3-8b-instruct", NewTextInput("hi", "", 0, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestReplicateClientRejectsBadIdentifier(t *testing.T) {
	fake := &fakeReplicate{}
	c := newTestReplicateClient(t, fake)

	_, err := c.Invoke(context.Background(), "no-owner", NewTextInput("hi", "", 0, 0))
	assert.ErrorIs(t, err, replicate.ErrInvalidIdentifier)
	assert.Empty(t, fake.paths)
}
