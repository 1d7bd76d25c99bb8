package embedding

// Route 模型兼容性决策结果。
type Route int

const (
	// RouteDirect 直接使用请求的模型。
	RouteDirect Route = iota

	// RouteFallback 改用回退模型。
	RouteFallback
)

// ModelCompatibilityPolicy decides, before each embedding call, whether a
// model is served directly or redirected to a fallback. This replaces the
// original's runtime patching of third-party call targets with an explicit
// lookup.
type ModelCompatibilityPolicy struct {
	fallback     string
	incompatible map[string]bool
}

// NewModelCompatibilityPolicy 创建策略。incompatible 中的模型被路由到 fallback。
func NewModelCompatibilityPolicy(fallback string, incompatible []string) *ModelCompatibilityPolicy {
	set := make(map[string]bool, len(incompatible))
	for _, m := range incompatible {
		set[m] = true
	}
	return &ModelCompatibilityPolicy{fallback: fallback, incompatible: set}
}

// Decide returns the route for model.
func (p *ModelCompatibilityPolicy) Decide(model string) Route {
	if p == nil {
		return RouteDirect
	}
	if p.incompatible[model] {
		return RouteFallback
	}
	return RouteDirect
}

// Resolve returns the model that should actually be called.
func (p *ModelCompatibilityPolicy) Resolve(model string) string {
	if p.Decide(model) == RouteFallback {
		return p.fallback
	}
	return model
}
