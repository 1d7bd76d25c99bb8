// Package identity derives stable, tenant-isolated crew identities.
//
// A crew's memory lives under one string key. The key is either supplied by
// the caller, recovered from a stored crew row, or content-addressed from the
// crew's composition so that rebuilding the same logical crew lands on the
// same namespace while different tenants never collide.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// StoredIDPrefix marks identities recovered from a stored crew id.
const StoredIDPrefix = "crew_db_"

// ResolveInput carries everything the resolver may consult. All fields are
// optional except GroupID, which salts the fingerprint per tenant.
type ResolveInput struct {
	// ExplicitID wins over everything when non-empty.
	ExplicitID string

	// StoredID is a previously persisted crew id; it is returned prefixed.
	StoredID string

	AgentRoles []string
	TaskNames  []string
	CrewName   string
	Model      string
	RunName    string

	// GroupID is the tenant discriminator.
	GroupID string
}

// fingerprint is the canonical shape hashed into a crew identity. Fields are
// marshaled with fixed key order; slices are sorted copies so that caller
// ordering never changes the result.
type fingerprint struct {
	AgentRoles []string `json:"agent_roles"`
	CrewName   string   `json:"crew_name"`
	GroupID    string   `json:"group_id"`
	Model      string   `json:"model"`
	RunName    string   `json:"run_name"`
	TaskNames  []string `json:"task_names"`
}

// Resolve returns the crew identity for in. Priority: explicit id, stored id
// (prefixed), content hash of the canonical fingerprint. Pure and
// deterministic; identical composition plus tenant always yields the same
// identity.
func Resolve(in ResolveInput) string {
	if in.ExplicitID != "" {
		return in.ExplicitID
	}
	if in.StoredID != "" {
		return StoredIDPrefix + in.StoredID
	}

	fp := fingerprint{
		AgentRoles: sortedCopy(in.AgentRoles),
		CrewName:   in.CrewName,
		GroupID:    in.GroupID,
		Model:      in.Model,
		RunName:    in.RunName,
		TaskNames:  sortedCopy(in.TaskNames),
	}

	// json.Marshal on a struct emits fields in declaration order, which is
	// fixed here, so the digest is stable across processes.
	data, err := json.Marshal(fp)
	if err != nil {
		// fingerprint contains only strings and slices of strings; Marshal
		// cannot fail. Guard anyway so the identity stays deterministic.
		data = []byte(fmt.Sprintf("%v", fp))
	}

	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s_crew_%s", in.GroupID, hex.EncodeToString(sum[:])[:16])
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
