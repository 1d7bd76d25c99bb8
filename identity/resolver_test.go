package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// ---------------------------------------------------------------------------
// Priority chain
// ---------------------------------------------------------------------------

func TestResolve_ExplicitIDWins(t *testing.T) {
	got := Resolve(ResolveInput{
		ExplicitID: "my-crew",
		StoredID:   "42",
		AgentRoles: []string{"researcher"},
		GroupID:    "tenant-a",
	})
	assert.Equal(t, "my-crew", got)
}

func TestResolve_StoredIDIsPrefixed(t *testing.T) {
	got := Resolve(ResolveInput{StoredID: "42", GroupID: "tenant-a"})
	assert.Equal(t, "crew_db_42", got)
}

func TestResolve_ContentHashFormat(t *testing.T) {
	got := Resolve(ResolveInput{
		AgentRoles: []string{"researcher", "writer"},
		TaskNames:  []string{"draft", "review"},
		CrewName:   "newsroom",
		Model:      "gpt-4o",
		GroupID:    "tenant-a",
	})
	require.True(t, strings.HasPrefix(got, "tenant-a_crew_"))
	assert.Len(t, strings.TrimPrefix(got, "tenant-a_crew_"), 16)
}

// ---------------------------------------------------------------------------
// Determinism and isolation
// ---------------------------------------------------------------------------

func TestResolve_OrderIndependent(t *testing.T) {
	a := Resolve(ResolveInput{
		AgentRoles: []string{"writer", "researcher"},
		TaskNames:  []string{"review", "draft"},
		CrewName:   "newsroom",
		GroupID:    "tenant-a",
	})
	b := Resolve(ResolveInput{
		AgentRoles: []string{"researcher", "writer"},
		TaskNames:  []string{"draft", "review"},
		CrewName:   "newsroom",
		GroupID:    "tenant-a",
	})
	assert.Equal(t, a, b)
}

func TestResolve_TenantIsolation(t *testing.T) {
	in := ResolveInput{
		AgentRoles: []string{"researcher"},
		TaskNames:  []string{"draft"},
		CrewName:   "newsroom",
		GroupID:    "tenant-a",
	}
	other := in
	other.GroupID = "tenant-b"
	assert.NotEqual(t, Resolve(in), Resolve(other))
}

func TestResolve_CompositionChangesIdentity(t *testing.T) {
	base := ResolveInput{
		AgentRoles: []string{"researcher"},
		TaskNames:  []string{"draft"},
		CrewName:   "newsroom",
		GroupID:    "tenant-a",
	}

	changed := base
	changed.AgentRoles = []string{"researcher", "editor"}
	assert.NotEqual(t, Resolve(base), Resolve(changed))

	changed = base
	changed.Model = "other-model"
	assert.NotEqual(t, Resolve(base), Resolve(changed))
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestResolve_Deterministic_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := ResolveInput{
			AgentRoles: rapid.SliceOfN(rapid.String(), 0, 8).Draw(t, "roles"),
			TaskNames:  rapid.SliceOfN(rapid.String(), 0, 8).Draw(t, "tasks"),
			CrewName:   rapid.String().Draw(t, "crew"),
			Model:      rapid.String().Draw(t, "model"),
			RunName:    rapid.String().Draw(t, "run"),
			GroupID:    rapid.StringMatching(`[a-z0-9-]{1,12}`).Draw(t, "group"),
		}
		first := Resolve(in)
		second := Resolve(in)
		if first != second {
			t.Fatalf("resolve not deterministic: %q != %q", first, second)
		}
	})
}

func TestResolve_ShuffleInvariant_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		roles := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,10}`), 1, 6).Draw(t, "roles")
		tasks := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,10}`), 1, 6).Draw(t, "tasks")

		in := ResolveInput{AgentRoles: roles, TaskNames: tasks, GroupID: "g"}

		shuffled := ResolveInput{
			AgentRoles: reversed(roles),
			TaskNames:  reversed(tasks),
			GroupID:    "g",
		}
		if Resolve(in) != Resolve(shuffled) {
			t.Fatalf("identity depends on input ordering")
		}
	})
}

func TestResolve_InputsNotMutated(t *testing.T) {
	roles := []string{"zeta", "alpha"}
	Resolve(ResolveInput{AgentRoles: roles, GroupID: "g"})
	assert.Equal(t, []string{"zeta", "alpha"}, roles)
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[len(in)-1-i] = s
	}
	return out
}
