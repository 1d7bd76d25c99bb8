package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/crewmem/types"
)

type capturedRequest struct {
	Path   string
	Auth   string
	Body   map[string]any
	Method string
}

func newRemoteServer(t *testing.T, status int, response any, captured *[]capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		*captured = append(*captured, capturedRequest{
			Path:   r.URL.Path,
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
			Method: r.Method,
		})
		w.WriteHeader(status)
		if response != nil {
			_ = json.NewEncoder(w).Encode(response)
		}
	}))
}

func newTestRemoteStore(t *testing.T, baseURL string, auth AuthProvider) *RemoteStore {
	t.Helper()
	store, err := NewRemoteStore(RemoteConfig{
		BaseURL:   baseURL,
		Workspace: "acme",
		Index:     "short-term-index",
		Endpoint:  "https://search.internal/v1",
		Dimension: 2,
	}, types.MemoryShortTerm, "crew-a", auth, nil)
	require.NoError(t, err)
	return store
}

func TestRemoteStore_Save(t *testing.T) {
	var captured []capturedRequest
	srv := newRemoteServer(t, http.StatusOK, map[string]any{"upsertedCount": 1}, &captured)
	defer srv.Close()

	store := newTestRemoteStore(t, srv.URL, StaticToken("tok-123"))

	rec := &types.MemoryRecord{
		ID:             "r1",
		Kind:           types.MemoryShortTerm,
		Text:           "remote payload",
		Embedding:      []float32{0.1, 0.2},
		EmbeddingModel: "test-model",
		AgentID:        "researcher",
		CrewID:         "crew-a",
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.Save(context.Background(), rec))

	require.Len(t, captured, 1)
	assert.Equal(t, "/v1/workspaces/acme/indexes/short-term-index/vectors/upsert", captured[0].Path)
	assert.Equal(t, "Bearer tok-123", captured[0].Auth)

	vectors := captured[0].Body["vectors"].([]any)
	require.Len(t, vectors, 1)
	vec := vectors[0].(map[string]any)
	assert.Equal(t, "r1", vec["id"])
	meta := vec["metadata"].(map[string]any)
	assert.Equal(t, "crew-a", meta["crew_id"])
	assert.NotEmpty(t, meta["record"])
}

func TestRemoteStore_SearchInjectsCrewFilter(t *testing.T) {
	var captured []capturedRequest
	resp := map[string]any{
		"matches": []map[string]any{
			{
				"id":    "r1",
				"score": 0.93,
				"metadata": map[string]any{
					"record": `{"id":"r1","kind":"short_term","text":"remote payload","crew_id":"crew-a"}`,
				},
			},
		},
	}
	srv := newRemoteServer(t, http.StatusOK, resp, &captured)
	defer srv.Close()

	store := newTestRemoteStore(t, srv.URL, StaticToken("tok-123"))

	results, err := store.Search(context.Background(), Query{
		Embedding: []float32{0.1, 0.2},
		K:         3,
		Filters:   map[string]string{"agent_id": "researcher"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "r1", results[0].Record.ID)
	assert.Equal(t, "remote payload", results[0].Context)
	assert.InDelta(t, 0.93, results[0].Score, 1e-9)

	require.Len(t, captured, 1)
	assert.Equal(t, "/v1/workspaces/acme/indexes/short-term-index/query", captured[0].Path)
	filters := captured[0].Body["filters"].(map[string]any)
	// crew 过滤条件总是注入，调用方无法覆盖隔离。
	assert.Equal(t, "crew-a", filters["crew_id"])
	assert.Equal(t, "researcher", filters["agent_id"])
	assert.Equal(t, float64(3), captured[0].Body["topK"])
}

func TestRemoteStore_EmptyQuerySendsZeroVector(t *testing.T) {
	var captured []capturedRequest
	srv := newRemoteServer(t, http.StatusOK, map[string]any{"matches": []any{}}, &captured)
	defer srv.Close()

	store := newTestRemoteStore(t, srv.URL, StaticToken("tok"))

	results, err := store.Search(context.Background(), Query{K: 5})
	require.NoError(t, err)
	assert.Empty(t, results)

	require.Len(t, captured, 1)
	// 列表语义：空查询必须携带索引宽度的零向量，而不是省略向量字段。
	vec, ok := captured[0].Body["vector"].([]any)
	require.True(t, ok, "query body must carry a vector field")
	require.Len(t, vec, 2)
	assert.Equal(t, float64(0), vec[0])
	assert.Equal(t, float64(0), vec[1])
}

func TestRemoteStore_LooseMetadataFallback(t *testing.T) {
	var captured []capturedRequest
	resp := map[string]any{
		"matches": []map[string]any{
			{
				"id":    "loose-1",
				"score": 0.5,
				"metadata": map[string]any{
					"data":     "loose content",
					"crew_id":  "crew-a",
					"agent_id": "writer",
				},
			},
		},
	}
	srv := newRemoteServer(t, http.StatusOK, resp, &captured)
	defer srv.Close()

	store := newTestRemoteStore(t, srv.URL, StaticToken("tok"))

	results, err := store.Search(context.Background(), Query{Embedding: []float32{1}, K: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "loose-1", results[0].Record.ID)
	assert.Equal(t, "loose content", results[0].Record.Text)
	assert.Equal(t, "writer", results[0].Record.AgentID)
}

type failingAuth struct{}

func (failingAuth) BearerToken(ctx context.Context) (string, error) {
	return "", errors.New("token service unavailable")
}

func TestRemoteStore_AuthFailure(t *testing.T) {
	var captured []capturedRequest
	srv := newRemoteServer(t, http.StatusOK, nil, &captured)
	defer srv.Close()

	store := newTestRemoteStore(t, srv.URL, failingAuth{})

	_, err := store.Search(context.Background(), Query{Embedding: []float32{1}, K: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bearer token")
	// 拿不到令牌时请求根本不该发出。
	assert.Empty(t, captured)
}

func TestRemoteStore_HTTPError(t *testing.T) {
	var captured []capturedRequest
	srv := newRemoteServer(t, http.StatusBadGateway, map[string]any{"error": "upstream down"}, &captured)
	defer srv.Close()

	store := newTestRemoteStore(t, srv.URL, StaticToken("tok"))

	_, err := store.Search(context.Background(), Query{Embedding: []float32{1}, K: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=502")
}

func TestNewRemoteStore_Validation(t *testing.T) {
	_, err := NewRemoteStore(RemoteConfig{Index: "i"}, types.MemoryShortTerm, "c", StaticToken("t"), nil)
	assert.Error(t, err)

	_, err = NewRemoteStore(RemoteConfig{BaseURL: "http://x"}, types.MemoryShortTerm, "c", StaticToken("t"), nil)
	assert.Error(t, err)

	_, err = NewRemoteStore(RemoteConfig{BaseURL: "http://x", Index: "i"}, types.MemoryShortTerm, "c", nil, nil)
	assert.Error(t, err)

	_, err = NewRemoteStore(RemoteConfig{BaseURL: "http://x", Index: "i"}, types.MemoryShortTerm, "c", StaticToken("t"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}
