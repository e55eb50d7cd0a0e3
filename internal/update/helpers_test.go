package update

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/depnotify/internal/identity"
)

// ids interns names in a fresh registry and returns their identities.
func ids(t *testing.T, names ...string) []identity.Identity {
	t.Helper()
	reg := identity.NewRegistry()
	out := make([]identity.Identity, len(names))
	for i, n := range names {
		id, err := reg.Acquire(n)
		require.NoError(t, err)
		out[i] = id
	}
	return out
}

// nopDependent is a comparable dependent that does nothing.
type nopDependent struct{ name string }

func (d *nopDependent) Update(context.Context, identity.Identity, Message) error { return nil }
func (d *nopDependent) Name() string                                            { return d.name }
