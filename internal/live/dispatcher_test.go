package live

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventguard.org/internal/alert"
	"eventguard.org/internal/roles"
)

type recordedEmit struct {
	conn    ConnID
	event   string
	payload any
}

type fakeEmitter struct {
	emits   []recordedEmit
	failFor map[ConnID]error
}

func (f *fakeEmitter) Emit(id ConnID, event string, payload any) error {
	if err, ok := f.failFor[id]; ok {
		return err
	}
	f.emits = append(f.emits, recordedEmit{conn: id, event: event, payload: payload})
	return nil
}

type failingLedger struct {
	appends int
}

func (l *failingLedger) Append(context.Context, *alert.Alert) error {
	l.appends++
	return errors.New("ledger unavailable")
}

func (l *failingLedger) Recent(context.Context, int) ([]alert.Alert, error) {
	return nil, errors.New("ledger unavailable")
}

func dispatcherFixture(t *testing.T) (*Dispatcher, *Registry, *alert.InMemory, *fakeEmitter) {
	t.Helper()
	reg, _ := newTestRegistry()
	ctx := context.Background()
	_, err := reg.Authenticate(ctx, "head-1", "head-token")
	require.NoError(t, err)
	_, err = reg.Authenticate(ctx, "room-1", "room-token")
	require.NoError(t, err)
	_, err = reg.Authenticate(ctx, "ground-1", "ground-token")
	require.NoError(t, err)

	ledger := alert.NewInMemory()
	emitter := &fakeEmitter{failFor: map[ConnID]error{}}
	return NewDispatcher(reg, ledger, emitter), reg, ledger, emitter
}

func emittedConns(emits []recordedEmit) []ConnID {
	out := make([]ConnID, 0, len(emits))
	for _, e := range emits {
		out = append(out, e.conn)
	}
	return out
}

func TestSubmitRequiresAuthentication(t *testing.T) {
	d, _, ledger, emitter := dispatcherFixture(t)

	_, err := d.Submit(context.Background(), "stranger", Submission{Message: "hello"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, 0, ledger.Len())
	assert.Empty(t, emitter.emits)
}

func TestSubmitTargetsSingleRole(t *testing.T) {
	d, _, ledger, emitter := dispatcherFixture(t)

	got, err := d.Submit(context.Background(), "room-1", Submission{
		Message:     "gate three is overcrowded",
		TargetRole:  "ground",
		Priority:    "urgent",
		LocationTag: "gate-3",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "watcher", got.Sender)
	assert.Equal(t, roles.Room, got.SenderRole)
	assert.Equal(t, alert.PriorityUrgent, got.Priority)
	assert.Equal(t, roles.Target("ground"), got.Target)

	assert.Equal(t, 1, ledger.Len())
	assert.Equal(t, []ConnID{"ground-1"}, emittedConns(emitter.emits))
	assert.Equal(t, EventReceiveAlert, emitter.emits[0].event)

	delivered, ok := emitter.emits[0].payload.(alert.Alert)
	require.True(t, ok)
	assert.Equal(t, got.ID, delivered.ID)
}

func TestSubmitUnknownTargetBroadcasts(t *testing.T) {
	d, _, _, emitter := dispatcherFixture(t)

	_, err := d.Submit(context.Background(), "head-1", Submission{
		Message:    "evacuate the west wing",
		TargetRole: "everyone-please",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []ConnID{"head-1", "room-1", "ground-1"}, emittedConns(emitter.emits))
}

func TestSubmitEmptyTargetBroadcasts(t *testing.T) {
	d, _, _, emitter := dispatcherFixture(t)

	_, err := d.Submit(context.Background(), "ground-1", Submission{Message: "all clear"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []ConnID{"head-1", "room-1", "ground-1"}, emittedConns(emitter.emits))
}

func TestSubmitEmptyAlertRejected(t *testing.T) {
	d, _, ledger, emitter := dispatcherFixture(t)

	_, err := d.Submit(context.Background(), "room-1", Submission{TargetRole: "head"})
	assert.ErrorIs(t, err, alert.ErrEmptyAlert)
	assert.Equal(t, 0, ledger.Len())
	assert.Empty(t, emitter.emits)
}

func TestSubmitMediaOnlyAllowed(t *testing.T) {
	d, _, ledger, emitter := dispatcherFixture(t)

	got, err := d.Submit(context.Background(), "ground-1", Submission{
		MediaURL:   "/uploads/cam-4.jpg",
		MediaType:  "image",
		TargetRole: "room",
	})
	require.NoError(t, err)
	assert.Equal(t, alert.MediaImage, got.MediaKind)
	assert.Equal(t, 1, ledger.Len())
	assert.Equal(t, []ConnID{"room-1"}, emittedConns(emitter.emits))
}

func TestSubmitInvalidPriorityRejected(t *testing.T) {
	d, _, ledger, _ := dispatcherFixture(t)

	_, err := d.Submit(context.Background(), "room-1", Submission{
		Message:  "odd priority",
		Priority: "panic",
	})
	assert.ErrorIs(t, err, alert.ErrInvalidPriority)
	assert.Equal(t, 0, ledger.Len())
}

func TestSubmitLedgerFailureAbortsFanout(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()
	_, err := reg.Authenticate(ctx, "room-1", "room-token")
	require.NoError(t, err)
	_, err = reg.Authenticate(ctx, "ground-1", "ground-token")
	require.NoError(t, err)

	ledger := &failingLedger{}
	emitter := &fakeEmitter{}
	d := NewDispatcher(reg, ledger, emitter)

	_, err = d.Submit(ctx, "room-1", Submission{Message: "will not survive", TargetRole: "ground"})
	require.Error(t, err)
	assert.Equal(t, 1, ledger.appends)
	assert.Empty(t, emitter.emits, "no recipient may observe an unpersisted alert")
}

func TestSubmitFailedDeliveryDoesNotAbort(t *testing.T) {
	d, reg, ledger, emitter := dispatcherFixture(t)
	ctx := context.Background()

	// A second ground connection whose transport rejects writes.
	_, err := reg.Authenticate(ctx, "ground-2", "ground-token")
	require.NoError(t, err)
	emitter.failFor["ground-2"] = errSlowConsumer

	_, err = d.Submit(ctx, "room-1", Submission{Message: "stage door blocked", TargetRole: "ground"})
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.Len())
	assert.Equal(t, []ConnID{"ground-1"}, emittedConns(emitter.emits))
}
