package live

import (
	"context"
	"errors"
	"fmt"

	"eventguard.org/internal/alert"
	"eventguard.org/internal/obs"
	"eventguard.org/internal/roles"
)

// ErrNotAuthenticated rejects a submission from a connection that never
// completed the authenticate handshake.
var ErrNotAuthenticated = errors.New("live: connection is not authenticated")

// Submission is the client-supplied alert payload as it arrives on the
// wire. Sender fields are absent on purpose: attribution always comes
// from the registry, never from the client.
type Submission struct {
	Message     string `json:"message"`
	MediaURL    string `json:"mediaUrl"`
	MediaType   string `json:"mediaType"`
	TargetRole  string `json:"targetRole"`
	Priority    string `json:"priority"`
	LocationTag string `json:"locationTag"`
}

// Emitter delivers one event payload to a single live connection.
type Emitter interface {
	Emit(id ConnID, event string, payload any) error
}

// Dispatcher turns submissions into persisted, fanned-out alerts. Fan-out
// never precedes persistence: a ledger failure aborts the submission and
// no recipient sees a partial alert.
type Dispatcher struct {
	registry *Registry
	ledger   alert.Ledger
	emitter  Emitter
}

// NewDispatcher wires the dispatch pipeline over a registry, a ledger and
// a transport emitter.
func NewDispatcher(registry *Registry, ledger alert.Ledger, emitter Emitter) *Dispatcher {
	return &Dispatcher{registry: registry, ledger: ledger, emitter: emitter}
}

// Submit validates, attributes, persists and fans out one alert from the
// given connection. The returned alert carries the assigned id and
// timestamp. Delivery to individual recipients is best effort: one slow
// or dead connection never blocks the rest.
func (d *Dispatcher) Submit(ctx context.Context, id ConnID, sub Submission) (alert.Alert, error) {
	identity, ok := d.registry.Identity(id)
	if !ok {
		return alert.Alert{}, ErrNotAuthenticated
	}

	priority, err := alert.ParsePriority(sub.Priority)
	if err != nil {
		return alert.Alert{}, err
	}
	kind, err := alert.ParseMediaKind(sub.MediaType)
	if err != nil {
		return alert.Alert{}, err
	}

	a := alert.Alert{
		Message:     sub.Message,
		Sender:      identity.Username,
		SenderRole:  identity.Role,
		MediaURL:    sub.MediaURL,
		MediaKind:   kind,
		Target:      roles.ParseTarget(sub.TargetRole),
		Priority:    priority,
		LocationTag: sub.LocationTag,
	}
	if err := a.Validate(); err != nil {
		return alert.Alert{}, err
	}

	if err := d.ledger.Append(ctx, &a); err != nil {
		return alert.Alert{}, fmt.Errorf("live: persist alert: %w", err)
	}

	// Recipients are resolved after the append so the snapshot reflects
	// the freshest registry state at fan-out time.
	recipients := d.recipients(a.Target)
	delivered := 0
	for _, rid := range recipients {
		if err := d.emitter.Emit(rid, EventReceiveAlert, a); err != nil {
			obs.LogEvent("warn", "live", "alert delivery skipped", map[string]any{
				"alert_id": a.ID,
				"conn_id":  string(rid),
				"error":    err.Error(),
			})
			continue
		}
		delivered++
	}
	obs.AlertDispatched(a.Target.String(), delivered)
	return a, nil
}

func (d *Dispatcher) recipients(target roles.Target) []ConnID {
	if role, ok := target.Role(); ok {
		return d.registry.ConnectionsForRole(role)
	}
	return d.registry.AllConnections()
}
