package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/depnotify/internal/identity"
	"github.com/roach88/depnotify/internal/update"
)

func TestProbe_RecordsCallsInOrder(t *testing.T) {
	log := NewCallLog()
	a := NewProbe("a", log)
	b := NewProbe("b", log)
	ctx := context.Background()

	require.NoError(t, a.Update(ctx, identity.Identity{}, update.Changed))
	require.NoError(t, b.Update(ctx, identity.Identity{}, update.WillChange))
	require.NoError(t, a.Update(ctx, identity.Identity{}, update.Changed))

	assert.Equal(t, []string{"a", "b", "a"}, log.Names())
	assert.Equal(t, 2, log.Count("a"))
	assert.Equal(t, update.WillChange, log.Calls()[1].Message)

	log.Reset()
	assert.Empty(t, log.Calls())
}

func TestProbe_OnUpdateErrorIsReturned(t *testing.T) {
	log := NewCallLog()
	p := NewProbe("p", log)
	boom := errors.New("boom")
	p.OnUpdate = func(context.Context, identity.Identity, update.Message) error { return boom }

	err := p.Update(context.Background(), identity.Identity{}, update.Changed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, log.Count("p"), "call is recorded before OnUpdate runs")
	assert.Equal(t, "p", update.DependentName(p))
}

func TestDoneLog_Hook(t *testing.T) {
	var d DoneLog
	hook := d.Hook()

	hook(identity.Identity{}, update.Changed)
	hook(identity.Identity{}, update.WillDestroy)

	assert.Equal(t, 2, d.Count())
	assert.Equal(t, update.WillDestroy, d.Calls()[1].Message)
}
