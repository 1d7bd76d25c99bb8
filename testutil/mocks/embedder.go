// =============================================================================
// 🧮 MockEmbedder - 嵌入提供者模拟实现
// =============================================================================
// 用于测试的嵌入提供者模拟，支持固定向量、按文本定制向量与错误注入
//
// 使用方法:
//
//	embedder := mocks.NewMockEmbedder(3)
//	embedder.WithVector("hello", []float32{1, 0, 0})
//	vec, err := embedder.Embed(ctx, "hello")
// =============================================================================
package mocks

import (
	"context"
	"sync"
)

// MockEmbedder 是嵌入提供者的模拟实现
type MockEmbedder struct {
	mu sync.RWMutex

	// 配置
	model      string
	dimensions int

	// 按文本定制的向量
	vectors map[string][]float32

	// 错误注入
	embedErr error

	// 调用记录
	embedCalls int
	texts      []string
}

// NewMockEmbedder 创建新的 MockEmbedder
func NewMockEmbedder(dimensions int) *MockEmbedder {
	return &MockEmbedder{
		model:      "mock-embedder",
		dimensions: dimensions,
		vectors:    map[string][]float32{},
	}
}

// WithModel 设置模型标识
func (m *MockEmbedder) WithModel(model string) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
	return m
}

// WithVector 为特定文本预设向量
func (m *MockEmbedder) WithVector(text string, vec []float32) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vec
	return m
}

// WithEmbedError 设置 Embed 方法的错误
func (m *MockEmbedder) WithEmbedError(err error) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedErr = err
	return m
}

// Embed 返回预设向量；没有预设时返回首位为 1 的单位向量
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.embedCalls++
	m.texts = append(m.texts, text)

	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if vec, ok := m.vectors[text]; ok {
		return vec, nil
	}
	vec := make([]float32, m.dimensions)
	if m.dimensions > 0 {
		vec[0] = 1
	}
	return vec, nil
}

// Model 返回模型标识
func (m *MockEmbedder) Model() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

// Dimensions 返回向量维度
func (m *MockEmbedder) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// EmbedCalls 返回 Embed 调用次数
func (m *MockEmbedder) EmbedCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.embedCalls
}

// Texts 返回被嵌入过的文本
func (m *MockEmbedder) Texts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}
