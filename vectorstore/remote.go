package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/crewmem/embedding"
	"github.com/BaSui01/crewmem/types"
)

// AuthProvider supplies the bearer credential for the remote vector-search
// service. Credential acquisition is an external concern; implementations
// may return delegated (on-behalf-of) tokens or service tokens.
type AuthProvider interface {
	BearerToken(ctx context.Context) (string, error)
}

// StaticToken is an AuthProvider returning a fixed token.
type StaticToken string

// BearerToken 返回固定令牌。
func (s StaticToken) BearerToken(ctx context.Context) (string, error) {
	return string(s), nil
}

// RemoteConfig configures the RemoteStore for one memory kind.
type RemoteConfig struct {
	BaseURL   string        `json:"base_url"`
	Workspace string        `json:"workspace"`
	Index     string        `json:"index"`
	Endpoint  string        `json:"endpoint"`
	Timeout   time.Duration `json:"timeout,omitempty"`

	// Dimension is the vector width of the remote index. Empty queries are
	// matched with a zero vector of this width to mean "list recent/all".
	Dimension int `json:"dimension"`

	// RequestsPerSecond caps outgoing traffic; zero means no limit.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
}

// RemoteStore issues save/search calls against a remote vector-search
// service. The wire contract is opaque to the rest of the subsystem; only
// the request/response structs below are assumed.
type RemoteStore struct {
	cfg     RemoteConfig
	kind    types.MemoryKind
	crewID  string
	auth    AuthProvider
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRemoteStore creates a remote vector-search client for one memory kind.
func NewRemoteStore(cfg RemoteConfig, kind types.MemoryKind, crewID string, auth AuthProvider, logger *zap.Logger) (*RemoteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("remote base_url is required")
	}
	if strings.TrimSpace(cfg.Index) == "" {
		return nil, fmt.Errorf("remote index is required for kind %s", kind)
	}
	if auth == nil {
		return nil, fmt.Errorf("auth provider is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("remote dimension is required for kind %s", kind)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &RemoteStore{
		cfg:     cfg,
		kind:    kind,
		crewID:  crewID,
		auth:    auth,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger: logger.With(
			zap.String("component", "remote_store"),
			zap.String("kind", string(kind))),
	}, nil
}

type remoteVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Kind     string         `json:"kind"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type remoteSaveRequest struct {
	Vectors []remoteVector `json:"vectors"`
}

type remoteQueryRequest struct {
	Endpoint        string            `json:"endpoint,omitempty"`
	Vector          []float32         `json:"vector"`
	Kind            string            `json:"kind"`
	TopK            int               `json:"topK"`
	Filters         map[string]string `json:"filters,omitempty"`
	IncludeMetadata bool              `json:"includeMetadata"`
}

type remoteQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata,omitempty"`
	} `json:"matches"`
}

// Save 持久化一条记录。完整记录进元数据的 record 字段。
func (s *RemoteStore) Save(ctx context.Context, rec *types.MemoryRecord) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("record %s has no embedding", rec.ID)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	req := remoteSaveRequest{Vectors: []remoteVector{{
		ID:     rec.ID,
		Values: rec.Embedding,
		Kind:   string(rec.Kind),
		Metadata: map[string]any{
			"crew_id":         rec.CrewID,
			"agent_id":        rec.AgentID,
			"embedding_model": rec.EmbeddingModel,
			"record":          string(payload),
		},
	}}}

	path := fmt.Sprintf("/v1/workspaces/%s/indexes/%s/vectors/upsert",
		url.PathEscape(s.cfg.Workspace), url.PathEscape(s.cfg.Index))
	return s.doJSON(ctx, http.MethodPost, path, req, nil)
}

// Search 检索相似记录。crew 身份始终注入过滤条件，防止跨 crew 泄漏。
func (s *RemoteStore) Search(ctx context.Context, q Query) ([]types.SearchResult, error) {
	k := q.K
	if k <= 0 {
		k = 10
	}

	filters := map[string]string{"crew_id": s.crewID}
	for key, v := range q.Filters {
		filters[key] = v
	}

	// 空查询用零向量表示"列出最近/全部"，远端不接受无向量查询。
	vec := q.Embedding
	if len(vec) == 0 {
		vec = embedding.ZeroVector(s.cfg.Dimension)
	}

	req := remoteQueryRequest{
		Endpoint:        s.cfg.Endpoint,
		Vector:          vec,
		Kind:            string(s.kind),
		TopK:            k,
		Filters:         filters,
		IncludeMetadata: true,
	}

	var resp remoteQueryResponse
	path := fmt.Sprintf("/v1/workspaces/%s/indexes/%s/query",
		url.PathEscape(s.cfg.Workspace), url.PathEscape(s.cfg.Index))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	out := make([]types.SearchResult, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		rec := decodeRemoteRecord(m.ID, m.Metadata)
		out = append(out, types.SearchResult{
			Record:  rec,
			Score:   m.Score,
			Context: rec.Text,
		})
	}
	return out, nil
}

// decodeRemoteRecord 还原记录：优先完整 record 字段，缺失时从松散
// 元数据字段拼装。
func decodeRemoteRecord(id string, meta map[string]any) types.MemoryRecord {
	if raw, ok := meta["record"].(string); ok && raw != "" {
		var rec types.MemoryRecord
		if err := json.Unmarshal([]byte(raw), &rec); err == nil {
			return rec
		}
	}

	rec := types.MemoryRecord{ID: id, Metadata: meta}
	for _, key := range []string{"data", "content", "text"} {
		if s, ok := meta[key].(string); ok && s != "" {
			rec.Text = s
			break
		}
	}
	if s, ok := meta["crew_id"].(string); ok {
		rec.CrewID = s
	}
	if s, ok := meta["agent_id"].(string); ok {
		rec.AgentID = s
	}
	return rec
}

func (s *RemoteStore) doJSON(ctx context.Context, method, path string, in, out any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	token, err := s.auth.BearerToken(ctx)
	if err != nil {
		return fmt.Errorf("acquire bearer token: %w", err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("remote request failed: method=%s path=%s status=%d body=%s",
			method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
