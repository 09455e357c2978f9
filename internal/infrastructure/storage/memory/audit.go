package memory

import (
	"context"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/audit"
)

// AuditLog keeps recorded transitions in memory.
type AuditLog struct {
	store *Store
}

var (
	_ audit.Recorder = (*AuditLog)(nil)
	_ audit.Reader   = (*AuditLog)(nil)
)

// RecordTransition implements audit.Recorder. It rolls back with the transaction.
func (a *AuditLog) RecordTransition(_ context.Context, t audit.Transition) error {
	return a.store.write(func(d *state) error {
		d.transitions = append(d.transitions, t)
		return nil
	})
}

// For returns the transitions recorded for one entity, oldest first.
func (a *AuditLog) For(entityID id.ID) []audit.Transition {
	var out []audit.Transition
	a.store.read(func(d *state) {
		for _, t := range d.transitions {
			if t.EntityID == entityID {
				out = append(out, t)
			}
		}
	})
	return out
}

// History implements audit.Reader. A positive limit keeps the newest rows.
func (a *AuditLog) History(_ context.Context, entityID id.ID, limit int) ([]audit.Transition, error) {
	out := a.For(entityID)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
