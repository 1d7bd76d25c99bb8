package embedding

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// modelBudgets 将嵌入模型映射到其 tiktoken 编码和 token 上限。
var modelBudgets = map[string]struct {
	encoding  string
	maxTokens int
}{
	"text-embedding-3-large": {encoding: "cl100k_base", maxTokens: 8191},
	"text-embedding-3-small": {encoding: "cl100k_base", maxTokens: 8191},
	"text-embedding-ada-002": {encoding: "cl100k_base", maxTokens: 8191},
}

const (
	defaultEncoding  = "cl100k_base"
	defaultMaxTokens = 8191
)

// Truncator trims text to the embedding model's token budget before it is
// sent upstream. When the tokenizer cannot be initialized it falls back to a
// len/4 character estimate.
type Truncator struct {
	model     string
	maxTokens int

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
	logger  *zap.Logger
}

// NewTruncator 为给定模型创建截断器。
func NewTruncator(model string, logger *zap.Logger) *Truncator {
	if logger == nil {
		logger = zap.NewNop()
	}
	budget, ok := modelBudgets[model]
	if !ok {
		budget.encoding = defaultEncoding
		budget.maxTokens = defaultMaxTokens
	}
	return &Truncator{
		model:     model,
		maxTokens: budget.maxTokens,
		logger:    logger.With(zap.String("component", "truncator")),
	}
}

// Truncate returns text cut down to the model's token budget. The tokenizer
// is initialized lazily; encoding tables are only loaded when a text actually
// risks exceeding the budget.
func (t *Truncator) Truncate(text string) string {
	// Cheap lower bound: a token is at least one byte.
	if len(text) <= t.maxTokens {
		return text
	}

	t.once.Do(func() {
		budget, ok := modelBudgets[t.model]
		enc := defaultEncoding
		if ok {
			enc = budget.encoding
		}
		t.enc, t.initErr = tiktoken.GetEncoding(enc)
	})

	if t.initErr != nil || t.enc == nil {
		// 回退到字符估算：约 4 字符一个 token。
		t.logger.Warn("tokenizer unavailable, falling back to character estimate",
			zap.String("model", t.model),
			zap.Error(t.initErr))
		limit := t.maxTokens * 4
		if len(text) > limit {
			return text[:limit]
		}
		return text
	}

	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= t.maxTokens {
		return text
	}

	truncated := t.enc.Decode(tokens[:t.maxTokens])
	t.logger.Debug("text truncated to embedding token budget",
		zap.Int("tokens", len(tokens)),
		zap.Int("budget", t.maxTokens))
	return truncated
}
