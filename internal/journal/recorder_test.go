package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hive/internal/channel"
	"github.com/roach88/hive/internal/protocol"
	"github.com/roach88/hive/internal/provider"
)

func TestRecorder_Watch(t *testing.T) {
	j := openTestJournal(t)
	ch := channel.NewEmitter()
	f, err := provider.Create("p1", ch, map[string]any{"os": "linux"})
	require.NoError(t, err)

	r := NewRecorder(j, nil)
	r.now = func() time.Time { return testTime }
	r.Watch(f)

	ch.Emit(channel.EventMessage, protocol.NewAvailable())
	ch.Emit(channel.EventMessage, protocol.NewWorkerSpawned("w1"))
	ch.Emit(channel.EventMessage, protocol.NewWorkerDead("w1"))
	ch.Emit(channel.EventMessage, protocol.NewUnavailable())

	got, err := j.List(context.Background(), Filter{ProviderID: "p1"})
	require.NoError(t, err)

	type row struct{ event, worker string }
	var rows []row
	for _, e := range got {
		rows = append(rows, row{e.Event, e.WorkerID})
		assert.True(t, e.RecordedAt.Equal(testTime))
	}
	assert.Equal(t, []row{
		{EventAttached, ""},
		{EventAvailable, ""},
		{EventWorker, "w1"},
		{EventWorkerDead, "w1"},
		{EventUnavailable, ""},
	}, rows)
}

func TestRecorder_ClosedJournal(t *testing.T) {
	j := openTestJournal(t)
	require.NoError(t, j.Close())

	ch := channel.NewEmitter()
	f, err := provider.Create("p1", ch, map[string]any{})
	require.NoError(t, err)

	NewRecorder(j, nil).Watch(f)
	assert.Zero(t, ch.Count(provider.EventAvailable), "failed attach must not subscribe")
}
