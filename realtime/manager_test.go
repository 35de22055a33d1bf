package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ncobase/placesearch/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []*Event
	fail   error
	panics bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev *Event) error {
	if c.panics {
		panic("broken writer")
	}
	if c.fail != nil {
		return c.fail
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) received() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event(nil), c.events...)
}

type fakeReplay struct {
	calls atomic.Int32
	snaps map[string]*Snapshot
}

func (r *fakeReplay) Snapshot(_ context.Context, requestID string) (*Snapshot, error) {
	r.calls.Add(1)
	return r.snaps[requestID], nil
}

type countingObserver struct {
	failures atomic.Int32
	conns    atomic.Int32
}

func (o *countingObserver) ConnectionsChanged(n int) { o.conns.Store(int32(n)) }
func (o *countingObserver) PublishFailed(Kind)       { o.failures.Add(1) }

func newManager() *Manager {
	return NewManager(&config.Realtime{IntentTTL: time.Minute}, nil)
}

func TestPublishFansOutToSubscribers(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	a, b, other := &fakeConn{id: "a"}, &fakeConn{id: "b"}, &fakeConn{id: "c"}

	require.NoError(t, m.Subscribe(ctx, a, "r1", "s1"))
	require.NoError(t, m.Subscribe(ctx, b, "r1", "s1"))
	require.NoError(t, m.Subscribe(ctx, other, "r2", "s1"))

	m.Publish(ctx, Status("r1", "s1", StatusRunning, 10))

	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)
	assert.Empty(t, other.received())
	assert.True(t, m.HasActiveSubscribers("r1", "s1"))
	assert.False(t, m.HasActiveSubscribers("r3", ""))
}

func TestPublishIsolatesFailingConnections(t *testing.T) {
	m := newManager()
	obs := &countingObserver{}
	m.SetObserver(obs)
	ctx := context.Background()

	bad := &fakeConn{id: "bad", fail: errors.New("closed")}
	boom := &fakeConn{id: "boom", panics: true}
	good := &fakeConn{id: "good"}
	for _, c := range []*fakeConn{bad, boom, good} {
		require.NoError(t, m.Subscribe(ctx, c, "r1", "s1"))
	}

	assert.NotPanics(t, func() { m.Publish(ctx, Ready("r1", "s1", 3)) })
	assert.Len(t, good.received(), 1)
	assert.Equal(t, int32(2), obs.failures.Load())
}

func TestPublishFiltersBySession(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	mine, theirs := &fakeConn{id: "mine"}, &fakeConn{id: "theirs"}
	require.NoError(t, m.Subscribe(ctx, mine, "r1", "s1"))
	require.NoError(t, m.Subscribe(ctx, theirs, "r1", "s2"))

	m.Publish(ctx, Progress("r1", "s1", "provider", 50, ""))
	assert.Len(t, mine.received(), 1)
	assert.Empty(t, theirs.received())
	assert.False(t, m.HasActiveSubscribers("r1", "s3"))
}

func TestSubscribeReplaysCachedState(t *testing.T) {
	m := newManager()
	replay := &fakeReplay{snaps: map[string]*Snapshot{
		"done": {
			SessionID: "s1",
			Events: []*Event{
				Status("done", "s1", StatusCompleted, 100),
				Narration("done", "s1", "Three great places nearby.", "en", false),
			},
		},
	}}
	m.SetReplaySource(replay)
	ctx := context.Background()

	late, bystander := &fakeConn{id: "late"}, &fakeConn{id: "other"}
	require.NoError(t, m.Subscribe(ctx, bystander, "done", "s1"))
	bystanderBefore := len(bystander.received())

	require.NoError(t, m.Subscribe(ctx, late, "done", "s1"))
	got := late.received()
	require.Len(t, got, 2)
	assert.Equal(t, KindStatus, got[0].Type)
	var st StatusPayload
	require.NoError(t, got[0].Decode(&st))
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, KindNarration, got[1].Type)

	assert.Len(t, bystander.received(), bystanderBefore, "replay reaches the new subscriber only")
}

func TestReplayAndLiveShareShape(t *testing.T) {
	live := Status("r", "s", StatusCompleted, 100)
	replayed := Status("r", "s", StatusCompleted, 100)
	assert.Equal(t, live.Channel, replayed.Channel)
	assert.Equal(t, live.Type, replayed.Type)
	assert.JSONEq(t, string(live.Data), string(replayed.Data))
}

func TestSubscribeRejectsOtherSession(t *testing.T) {
	m := newManager()
	m.SetReplaySource(&fakeReplay{snaps: map[string]*Snapshot{"r1": {SessionID: "owner"}}})
	ctx := context.Background()

	intruder := &fakeConn{id: "x"}
	err := m.Subscribe(ctx, intruder, "r1", "someone-else")
	assert.ErrorIs(t, err, ErrOwnershipMismatch)
	assert.False(t, m.HasActiveSubscribers("r1", ""))

	m.RecordIntent("r2", "owner")
	assert.ErrorIs(t, m.Subscribe(ctx, intruder, "r2", "someone-else"), ErrOwnershipMismatch)
	assert.ErrorIs(t, m.Subscribe(ctx, intruder, "", "owner"), ErrMissingRequestID)
}

func TestIntentActivationAndSweep(t *testing.T) {
	m := newManager()
	now := time.Unix(0, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.RecordIntent("r1", "s1")
	m.RecordIntent("r2", "s2")
	require.NoError(t, m.Subscribe(ctx, &fakeConn{id: "c"}, "r1", "s1"))

	st := m.Stats()
	assert.Equal(t, 2, st.Intents)
	assert.Equal(t, 1, st.Activated)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, m.Sweep())
	assert.Zero(t, m.Stats().Intents)
	assert.True(t, m.HasActiveSubscribers("r1", "s1"), "sweeping intents keeps live subscriptions")
}

func TestDisconnectLeavesNoTrackedState(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	for cycle := 0; cycle < 3; cycle++ {
		conns := make([]*fakeConn, 50)
		for i := range conns {
			conns[i] = &fakeConn{id: fmt.Sprintf("c%d", i)}
			m.Register(conns[i])
			require.NoError(t, m.Subscribe(ctx, conns[i], fmt.Sprintf("r%d", i), "s"))
		}
		st := m.Stats()
		assert.Equal(t, 50, st.Connections)
		assert.Equal(t, 50, st.Requests)

		for _, c := range conns {
			m.Disconnect(c.id)
		}
		st = m.Stats()
		assert.Zero(t, st.Connections)
		assert.Zero(t, st.Requests)
		assert.Zero(t, st.Subscriptions)
		assert.Empty(t, m.byConn)
	}
}

func TestUnsubscribeDropsEmptyEntries(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	c := &fakeConn{id: "c"}
	require.NoError(t, m.Subscribe(ctx, c, "r1", "s"))
	require.NoError(t, m.Subscribe(ctx, c, "r2", "s"))

	m.Unsubscribe("c", "r1")
	assert.Equal(t, 1, m.Stats().Requests)
	m.Unsubscribe("c", "r2")
	assert.Zero(t, m.Stats().Requests)
	assert.Empty(t, m.byConn)
	assert.Equal(t, 1, m.Stats().Connections)
}

func TestConcurrentPublishAndChurn(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c := &fakeConn{id: fmt.Sprintf("c%d", i)}
			_ = m.Subscribe(ctx, c, "shared", "s1")
			m.Disconnect(c.id)
		}(i)
		go func() {
			defer wg.Done()
			m.Publish(ctx, Status("shared", "s1", StatusRunning, 1))
		}()
	}
	wg.Wait()
	assert.Zero(t, m.Stats().Requests)
}

func TestSubscribeRequiresSession(t *testing.T) {
	m := newManager()
	c := &fakeConn{id: "anon"}

	err := m.Subscribe(context.Background(), c, "r1", "")
	assert.ErrorIs(t, err, ErrMissingSession)
	assert.Zero(t, m.Stats().Requests)

	m.Publish(context.Background(), Ready("r1", "s1", 1))
	assert.Empty(t, c.received())
}
