// Package embedding 提供统一的嵌入提供者接口、能力探测和缓存。
package embedding

import (
	"context"
	"fmt"
)

// Provider 定义统一的嵌入提供者接口。
type Provider interface {
	// Embed 为给定文本生成嵌入向量。
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model 返回嵌入模型标识，写入时记录到 MemoryRecord。
	Model() string

	// Dimensions 返回嵌入维度。
	Dimensions() int
}

// Error codes for embedding failures.
const (
	ErrCodeUpstream     = "UPSTREAM_ERROR"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeInvalidInput = "INVALID_INPUT"
)

// Error 嵌入调用错误。保存/检索路径捕获后记录日志并跳过，从不上抛。
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Retryable  bool   `json:"retryable"`
	Provider   string `json:"provider,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding error [%s] from %s: %s", e.Code, e.Provider, e.Message)
}

// ZeroVector returns an all-zero embedding of the given dimension. An empty
// entity query is matched with a zero vector to mean "list recent/all".
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}
