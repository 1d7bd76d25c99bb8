package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/crewmem/embedding"
	"github.com/BaSui01/crewmem/internal/bridge"
	"github.com/BaSui01/crewmem/mapper"
	"github.com/BaSui01/crewmem/testutil/mocks"
	"github.com/BaSui01/crewmem/types"
	"github.com/BaSui01/crewmem/vectorstore"
)

type adapterFixture struct {
	adapter *MemoryAdapter
	client  *mocks.MockVectorClient
	embed   *mocks.MockEmbedder
	bridge  *bridge.Bridge
}

func newAdapterFixture(t *testing.T, kind types.MemoryKind, opts func(*Options)) *adapterFixture {
	t.Helper()

	client := mocks.NewMockVectorClient()
	embedder := mocks.NewMockEmbedder(3)
	b := bridge.New(bridge.Config{MaxWorkers: 2}, nil)
	t.Cleanup(b.Close)

	provider, err := embedding.Probe(embedder, embedder.Model(), embedder.Dimensions())
	require.NoError(t, err)

	o := Options{
		Kind:     kind,
		CrewID:   "crew-test",
		Client:   client,
		Provider: provider,
		Mapper:   mapper.New("crew-test", embedder.Model(), nil),
		Bridge:   b,
	}
	if opts != nil {
		opts(&o)
	}

	a, err := NewMemoryAdapter(o)
	require.NoError(t, err)
	return &adapterFixture{adapter: a, client: client, embed: embedder, bridge: b}
}

func TestMemoryAdapter_SaveThenSearchRoundtrip(t *testing.T) {
	ctx := context.Background()
	fx := newAdapterFixture(t, types.MemoryShortTerm, nil)

	fx.adapter.Save(ctx, types.ShortTermSave{Value: "X"})
	require.True(t, fx.bridge.Wait(2*time.Second))

	saved := fx.client.Saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "X", saved[0].Text)
	assert.NotEmpty(t, saved[0].Embedding)
	assert.Equal(t, "mock-embedder", saved[0].EmbeddingModel)

	// 相似度检索打桩返回刚保存的记录。
	fx.client.WithResults([]types.SearchResult{{Record: *saved[0], Score: 0.99}})

	results := fx.adapter.Search(ctx, "X", 5, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "X", results[0].Context)
}

func TestMemoryAdapter_SaveSkipsUnmappableRequest(t *testing.T) {
	fx := newAdapterFixture(t, types.MemoryShortTerm, nil)

	fx.adapter.Save(context.Background(), types.ShortTermSave{Value: nil})
	require.True(t, fx.bridge.Wait(time.Second))
	assert.Empty(t, fx.client.Saved())
	assert.Zero(t, fx.embed.EmbedCalls())
}

type captureRecorder struct {
	mu          sync.Mutex
	embedModels []string
	embedErrs   []error
}

func (r *captureRecorder) RecordSave(kind, backend string, d time.Duration, err error) {}

func (r *captureRecorder) RecordSearch(kind, backend string, d time.Duration, n int, err error) {}

func (r *captureRecorder) RecordEmbedding(model string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedModels = append(r.embedModels, model)
	r.embedErrs = append(r.embedErrs, err)
}

func TestMemoryAdapter_SaveRecordsEmbeddingMetrics(t *testing.T) {
	rec := &captureRecorder{}
	fx := newAdapterFixture(t, types.MemoryShortTerm, func(o *Options) {
		o.Metrics = rec
	})

	fx.adapter.Save(context.Background(), types.ShortTermSave{Value: "measured"})
	require.True(t, fx.bridge.Wait(time.Second))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.embedModels, 1)
	assert.Equal(t, "mock-embedder", rec.embedModels[0])
	assert.NoError(t, rec.embedErrs[0])
}

func TestMemoryAdapter_EmbeddingFailureRecorded(t *testing.T) {
	rec := &captureRecorder{}
	fx := newAdapterFixture(t, types.MemoryShortTerm, func(o *Options) {
		o.Metrics = rec
	})
	fx.embed.WithEmbedError(errors.New("upstream 500"))

	fx.adapter.Save(context.Background(), types.ShortTermSave{Value: "doomed"})
	require.True(t, fx.bridge.Wait(time.Second))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.embedErrs, 1)
	assert.Error(t, rec.embedErrs[0])
}

func TestMemoryAdapter_SaveSwallowsEmbeddingFailure(t *testing.T) {
	fx := newAdapterFixture(t, types.MemoryShortTerm, nil)
	fx.embed.WithEmbedError(errors.New("upstream 500"))

	// 不 panic,不保存。
	fx.adapter.Save(context.Background(), types.ShortTermSave{Value: "doomed"})
	require.True(t, fx.bridge.Wait(time.Second))
	assert.Empty(t, fx.client.Saved())
}

func TestMemoryAdapter_SaveSwallowsStorageFailure(t *testing.T) {
	fx := newAdapterFixture(t, types.MemoryShortTerm, nil)
	fx.client.WithSaveError(errors.New("disk full"))

	fx.adapter.Save(context.Background(), types.ShortTermSave{Value: "dropped"})
	require.True(t, fx.bridge.Wait(time.Second))
	assert.Equal(t, 1, fx.client.SaveCalls())
}

func TestMemoryAdapter_SearchNeverFailsAlwaysList(t *testing.T) {
	ctx := context.Background()

	// --- 嵌入失败 ---
	fx := newAdapterFixture(t, types.MemoryShortTerm, nil)
	fx.embed.WithEmbedError(errors.New("rate limited"))
	results := fx.adapter.Search(ctx, "query", 5, nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	// --- 存储失败 ---
	fx = newAdapterFixture(t, types.MemoryShortTerm, nil)
	fx.client.WithSearchError(errors.New("connection refused"))
	results = fx.adapter.Search(ctx, "query", 5, nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	// --- 空查询正常通过,不走嵌入 ---
	fx = newAdapterFixture(t, types.MemoryEntity, nil)
	results = fx.adapter.Search(ctx, "", 5, nil)
	assert.NotNil(t, results)
	assert.Zero(t, fx.embed.EmbedCalls())
	queries := fx.client.Queries()
	require.Len(t, queries, 1)
	assert.Nil(t, queries[0].Embedding)
}

func TestMemoryAdapter_ResultsAlwaysCarryContext(t *testing.T) {
	fx := newAdapterFixture(t, types.MemoryShortTerm, nil)

	fx.client.WithResults([]types.SearchResult{
		{Record: types.MemoryRecord{ID: "1", Text: "from text"}},
		{Record: types.MemoryRecord{ID: "2", Metadata: map[string]any{"data": "from data key"}}},
		{Record: types.MemoryRecord{ID: "3", Metadata: map[string]any{"content": "from content key"}}},
		{Record: types.MemoryRecord{ID: "4"}},
	})

	results := fx.adapter.Search(context.Background(), "anything", 10, nil)
	require.Len(t, results, 4)
	assert.Equal(t, "from text", results[0].Context)
	assert.Equal(t, "from data key", results[1].Context)
	assert.Equal(t, "from content key", results[2].Context)
	for _, r := range results {
		assert.NotEmpty(t, r.Context)
	}
}

func TestMemoryAdapter_SetAgentContextDefault(t *testing.T) {
	ctx := context.Background()
	fx := newAdapterFixture(t, types.MemoryShortTerm, nil)
	fx.adapter.SetAgentContext(types.AgentRef{Role: "researcher"})

	// 未指定 agent 时回退到注入的默认值。
	fx.adapter.Save(ctx, types.ShortTermSave{Value: "no agent"})
	// 显式 agent 优先。
	fx.adapter.Save(ctx, types.ShortTermSave{Value: "explicit", Agent: &types.AgentRef{Role: "writer"}})
	require.True(t, fx.bridge.Wait(2*time.Second))

	saved := fx.client.Saved()
	require.Len(t, saved, 2)
	byText := map[string]string{}
	for _, rec := range saved {
		byText[rec.Text] = rec.AgentID
	}
	assert.Equal(t, "researcher", byText["no agent"])
	assert.Equal(t, "writer", byText["explicit"])
}

func TestMemoryAdapter_Load(t *testing.T) {
	fx := newAdapterFixture(t, types.MemoryLongTerm, nil)
	fx.client.WithResults([]types.SearchResult{{
		Record: types.MemoryRecord{
			ID:              "lt1",
			TaskDescription: "summarize report",
			Metadata:        map[string]any{"quality": 8.0},
		},
		Score:   0.8,
		Context: "summarize report",
	}})

	items := fx.adapter.Load(context.Background(), "summarize report", 3)
	require.Len(t, items, 1)
	assert.Equal(t, "summarize report", items[0].Content)
	assert.Equal(t, 0.8, items[0].Score)
	assert.Equal(t, 8.0, items[0].Metadata["quality"])

	// 任务描述进了过滤条件。
	queries := fx.client.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "summarize report", queries[0].Filters["task"])
}

func TestMemoryAdapter_GetEntities(t *testing.T) {
	fx := newAdapterFixture(t, types.MemoryEntity, nil)
	fx.client.WithResults([]types.SearchResult{
		{Record: types.MemoryRecord{ID: "1", EntityName: "Ada"}},
		{Record: types.MemoryRecord{ID: "2", EntityName: "Turing"}},
		{Record: types.MemoryRecord{ID: "3", EntityName: "Ada"}},
		{Record: types.MemoryRecord{ID: "4"}},
	})

	names := fx.adapter.GetEntities(context.Background(), 10)
	assert.Equal(t, []string{"Ada", "Turing"}, names)
}

func TestMemoryAdapter_PolicyRoutesToFallback(t *testing.T) {
	ctx := context.Background()

	fallbackEmbedder := mocks.NewMockEmbedder(3).WithModel("fallback-model")
	fallback, err := embedding.Probe(fallbackEmbedder, fallbackEmbedder.Model(), 3)
	require.NoError(t, err)

	fx := newAdapterFixture(t, types.MemoryShortTerm, func(o *Options) {
		o.Policy = embedding.NewModelCompatibilityPolicy("fallback-model", []string{"mock-embedder"})
		o.Fallback = fallback
	})

	fx.adapter.Save(ctx, types.ShortTermSave{Value: "routed"})
	require.True(t, fx.bridge.Wait(2*time.Second))

	// 策略把主模型列为不兼容,嵌入走了回退提供者。
	assert.Zero(t, fx.embed.EmbedCalls())
	assert.Equal(t, 1, fallbackEmbedder.EmbedCalls())
	saved := fx.client.Saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "fallback-model", saved[0].EmbeddingModel)
}

func TestMemoryAdapter_RetrieverFailureDegrades(t *testing.T) {
	initial := []types.SearchResult{{
		Record: types.MemoryRecord{
			ID:         "e1",
			EntityName: "Ada",
			Text:       "Ada the mathematician",
			Relationships: []types.Relationship{
				{Target: "Babbage", Type: "collaborated_with"},
			},
		},
		Score: 0.9,
	}}

	inner := mocks.NewMockVectorClient().WithResults(initial)
	hopFail := &hopFailingClient{inner: inner}
	b := bridge.New(bridge.Config{MaxWorkers: 2}, nil)
	t.Cleanup(b.Close)

	a, err := NewMemoryAdapter(Options{
		Kind:      types.MemoryEntity,
		CrewID:    "crew-test",
		Client:    hopFail,
		Provider:  mustProvider(t, 3),
		Mapper:    mapper.New("crew-test", "mock-embedder", nil),
		Bridge:    b,
		Retriever: NewRelationshipRetriever(RetrieverConfig{}, nil),
	})
	require.NoError(t, err)

	results := a.Search(context.Background(), "ada", 5, nil)
	// 检索器失败降级为原始相似度结果,不是错误也不是空集。
	require.Len(t, results, 1)
	assert.Equal(t, "e1", results[0].Record.ID)
}

func mustProvider(t *testing.T, dims int) embedding.Provider {
	t.Helper()
	m := mocks.NewMockEmbedder(dims)
	p, err := embedding.Probe(m, m.Model(), dims)
	require.NoError(t, err)
	return p
}

// hopFailingClient 只让带 entity_name 过滤条件的检索失败。
type hopFailingClient struct {
	inner *mocks.MockVectorClient
}

func (c *hopFailingClient) Save(ctx context.Context, rec *types.MemoryRecord) error {
	return c.inner.Save(ctx, rec)
}

func (c *hopFailingClient) Search(ctx context.Context, q vectorstore.Query) ([]types.SearchResult, error) {
	if _, ok := q.Filters["entity_name"]; ok {
		return nil, errors.New("graph hop unavailable")
	}
	return c.inner.Search(ctx, q)
}
