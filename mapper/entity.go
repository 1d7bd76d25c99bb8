package mapper

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ParsedEntity 实体文本解析结果。Name 总是非空。
type ParsedEntity struct {
	Name        string
	Type        string
	Description string
	Attributes  map[string]any
}

// entityPattern 匹配 "Name(Type): Description" 约定。
var entityPattern = regexp.MustCompile(`^\s*([^(\n]+?)\s*\(\s*([^)\n]*?)\s*\)\s*:\s*(.*)$`)

// maxFallbackDescription caps the description kept by the last-resort parse.
const maxFallbackDescription = 256

// ParseEntity parses entity free text with a layered fallback: structured
// JSON, the "Name(Type): Description" convention, then truncated text with a
// generated unique name. It never fails and never yields an empty name.
func ParseEntity(text string) ParsedEntity {
	text = strings.TrimSpace(text)

	if parsed, ok := parseEntityJSON(text); ok {
		return parsed
	}

	if m := entityPattern.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(m[1])
		if name != "" {
			return ParsedEntity{
				Name:        name,
				Type:        strings.TrimSpace(m[2]),
				Description: strings.TrimSpace(m[3]),
			}
		}
	}

	// 最终兜底：截断文本，生成唯一实体名。
	desc := text
	if len(desc) > maxFallbackDescription {
		desc = desc[:maxFallbackDescription]
	}
	return ParsedEntity{
		Name:        "entity_" + uuid.NewString()[:8],
		Type:        "unknown",
		Description: desc,
	}
}

func parseEntityJSON(text string) (ParsedEntity, bool) {
	if !strings.HasPrefix(text, "{") {
		return ParsedEntity{}, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return ParsedEntity{}, false
	}

	name := firstString(obj, "entity_name", "name", "entity")
	if name == "" {
		return ParsedEntity{}, false
	}

	parsed := ParsedEntity{
		Name:        name,
		Type:        firstString(obj, "entity_type", "type"),
		Description: firstString(obj, "description", "desc"),
	}
	if attrs, ok := obj["attributes"].(map[string]any); ok {
		parsed.Attributes = attrs
	}
	return parsed, true
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
