package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event names stored in provider_events. The last four mirror the provider
// events; EventAttached is written when the provider first appears.
const (
	EventAttached    = "attached"
	EventAvailable   = "available"
	EventUnavailable = "unavailable"
	EventWorker      = "worker"
	EventWorkerDead  = "workerDead"
)

// Entry is one journal row.
type Entry struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	ProviderID string    `json:"provider"`
	Event      string    `json:"event"`
	WorkerID   string    `json:"worker,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Filter narrows List. The zero value selects everything.
type Filter struct {
	ProviderID string
	// AfterSeq skips entries with seq <= AfterSeq.
	AfterSeq int64
	// Limit caps the result when positive.
	Limit int
}

// AddProvider upserts a provider row and records EventAttached.
func (j *Journal) AddProvider(ctx context.Context, id string, attributes map[string]any, at time.Time) (Entry, error) {
	attrs, err := json.Marshal(attributes)
	if err != nil {
		return Entry{}, fmt.Errorf("add provider: encode attributes: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO providers (id, attributes, attached_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET attributes = excluded.attributes, attached_at = excluded.attached_at
	`, id, string(attrs), at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("add provider: %w", err)
	}
	return j.Record(ctx, id, EventAttached, "", at)
}

// Record appends one event for providerID. The provider must have been
// added first. A failed insert consumes no seq.
func (j *Journal) Record(ctx context.Context, providerID, event, workerID string, at time.Time) (Entry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Entry{}, fmt.Errorf("record event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	e := Entry{
		ID:         id.String(),
		Seq:        j.clock.Current() + 1,
		ProviderID: providerID,
		Event:      event,
		WorkerID:   workerID,
		RecordedAt: at.UTC(),
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO provider_events (id, seq, provider_id, event, worker_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Seq, e.ProviderID, e.Event, e.WorkerID, e.RecordedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("record event: %w", err)
	}
	j.clock.Next()
	return e, nil
}

// List returns entries in seq order.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `
		SELECT id, seq, provider_id, event, worker_id, recorded_at
		FROM provider_events
		WHERE seq > ?`
	args := []any{f.AfterSeq}
	if f.ProviderID != "" {
		query += " AND provider_id = ?"
		args = append(args, f.ProviderID)
	}
	query += " ORDER BY seq ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.ID, &e.Seq, &e.ProviderID, &e.Event, &e.WorkerID, &at); err != nil {
			return nil, fmt.Errorf("list events: scan: %w", err)
		}
		e.RecordedAt, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("list events: bad timestamp %q: %w", at, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// ProviderAttributes returns the stored attributes of id.
func (j *Journal) ProviderAttributes(ctx context.Context, id string) (map[string]any, error) {
	var raw string
	err := j.db.QueryRowContext(ctx, "SELECT attributes FROM providers WHERE id = ?", id).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", id, err)
	}
	var attrs map[string]any
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Errorf("provider %s: decode attributes: %w", id, err)
	}
	return attrs, nil
}
