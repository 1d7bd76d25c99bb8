package mapper

import (
	"strings"

	"github.com/BaSui01/crewmem/types"
)

// resolveAgentID resolves the agent identity for a record. Priority:
// agent role, metadata "agent" key, raw agent string, agent id, then the
// default. The runtime supplies the agent inconsistently, so every source is
// optional.
func resolveAgentID(agent *types.AgentRef, meta map[string]any, raw string) string {
	if agent != nil && strings.TrimSpace(agent.Role) != "" {
		return strings.TrimSpace(agent.Role)
	}
	if s := metaString(meta, "agent"); s != "" {
		return s
	}
	if s := strings.TrimSpace(raw); s != "" {
		return s
	}
	if agent != nil && strings.TrimSpace(agent.ID) != "" {
		return strings.TrimSpace(agent.ID)
	}
	return types.DefaultAgentID
}
