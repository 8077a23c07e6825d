package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/hive/internal/provider"
)

// Recorder writes the events of watched providers to a Journal.
// Write failures are logged, never returned to the emitter.
type Recorder struct {
	j   *Journal
	log *slog.Logger
	now func() time.Time
}

// NewRecorder creates a Recorder over j. A nil log discards.
func NewRecorder(j *Journal, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Recorder{j: j, log: log, now: time.Now}
}

// Watch records f as attached and subscribes to its events.
func (r *Recorder) Watch(f *provider.Facade) {
	ctx := context.Background()
	id := f.ID()

	if _, err := r.j.AddProvider(ctx, id, f.Attributes().Map(), r.now()); err != nil {
		r.log.Error("journal write failed", "provider", id, "error", err)
		return
	}

	write := func(event, worker string) {
		if _, err := r.j.Record(ctx, id, event, worker, r.now()); err != nil {
			r.log.Error("journal write failed", "provider", id, "event", event, "error", err)
		}
	}
	f.Subscribe(provider.EventAvailable, func(any) { write(EventAvailable, "") })
	f.Subscribe(provider.EventUnavailable, func(any) { write(EventUnavailable, "") })
	f.Subscribe(provider.EventWorker, func(payload any) {
		w, _ := payload.(provider.Worker)
		write(EventWorker, w.ID)
	})
	f.Subscribe(provider.EventWorkerDead, func(payload any) {
		wid, _ := payload.(string)
		write(EventWorkerDead, wid)
	})
}
