// Package realtime tracks result-channel subscriptions, fans events out to
// subscribed connections and replays cached state to late subscribers.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ncobase/placesearch/config"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/sirupsen/logrus"
)

var (
	ErrOwnershipMismatch = errors.New("request belongs to another session")
	ErrMissingRequestID  = errors.New("request id is required")
	ErrMissingSession    = errors.New("session id is required")
)

// Conn is one subscriber connection. Send must not block.
type Conn interface {
	ID() string
	Send(ev *Event) error
}

// Snapshot is the cached state of a request.
type Snapshot struct {
	SessionID string
	Events    []*Event
}

// ReplaySource returns the cached state of a request, or nil when unknown.
type ReplaySource interface {
	Snapshot(ctx context.Context, requestID string) (*Snapshot, error)
}

// Forwarder relays locally published events to other instances.
type Forwarder interface {
	Forward(ctx context.Context, ev *Event) error
}

// Observer receives manager metrics.
type Observer interface {
	ConnectionsChanged(n int)
	PublishFailed(kind Kind)
}

// Subscription binds a connection to a request.
type Subscription struct {
	ConnectionID string
	RequestID    string
	SessionID    string
	SubscribedAt time.Time
}

type intent struct {
	recordedAt time.Time
	activated  bool
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	Connections   int `json:"connections"`
	Requests      int `json:"requests"`
	Subscriptions int `json:"subscriptions"`
	Intents       int `json:"intents"`
	Activated     int `json:"activated_intents"`
}

// Manager owns every subscription on this instance.
type Manager struct {
	mu      sync.RWMutex
	conns   map[string]Conn
	subs    map[string]map[string]*Subscription // requestID -> connID
	byConn  map[string]map[string]struct{}      // connID -> requestIDs
	intents map[string]map[string]*intent       // requestID -> sessionID

	replay    ReplaySource
	forwarder Forwarder
	observer  Observer

	intentTTL     time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	log           *logger.Logger
}

// NewManager creates a Manager.
func NewManager(cfg *config.Realtime, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	m := &Manager{
		conns:         make(map[string]Conn),
		subs:          make(map[string]map[string]*Subscription),
		byConn:        make(map[string]map[string]struct{}),
		intents:       make(map[string]map[string]*intent),
		intentTTL:     2 * time.Minute,
		sweepInterval: 30 * time.Second,
		now:           time.Now,
		log:           log,
	}
	if cfg != nil {
		if cfg.IntentTTL > 0 {
			m.intentTTL = cfg.IntentTTL
		}
		if cfg.SweepInterval > 0 {
			m.sweepInterval = cfg.SweepInterval
		}
	}
	return m
}

// SetReplaySource wires the cached-state lookup.
func (m *Manager) SetReplaySource(r ReplaySource) { m.replay = r }

// SetForwarder wires cross-instance relaying.
func (m *Manager) SetForwarder(f Forwarder) { m.forwarder = f }

// SetObserver wires metrics.
func (m *Manager) SetObserver(o Observer) { m.observer = o }

// Register tracks a connection.
func (m *Manager) Register(conn Conn) {
	m.mu.Lock()
	m.conns[conn.ID()] = conn
	n := len(m.conns)
	m.mu.Unlock()
	m.connectionsChanged(n)
}

// Subscribe attaches conn to requestID on behalf of sessionID and replays
// the cached state of the request to conn only.
func (m *Manager) Subscribe(ctx context.Context, conn Conn, requestID, sessionID string) error {
	if requestID == "" {
		return ErrMissingRequestID
	}
	if sessionID == "" {
		return ErrMissingSession
	}

	m.mu.Lock()
	if owners, ok := m.intents[requestID]; ok {
		if _, mine := owners[sessionID]; !mine {
			m.mu.Unlock()
			return ErrOwnershipMismatch
		}
	}
	connID := conn.ID()
	if _, ok := m.conns[connID]; !ok {
		m.conns[connID] = conn
	}
	m.addLocked(&Subscription{
		ConnectionID: connID,
		RequestID:    requestID,
		SessionID:    sessionID,
		SubscribedAt: m.now(),
	})
	if in, ok := m.intents[requestID][sessionID]; ok {
		in.activated = true
	}
	n := len(m.conns)
	m.mu.Unlock()
	m.connectionsChanged(n)

	if m.replay == nil {
		return nil
	}
	snap, err := m.replay.Snapshot(ctx, requestID)
	if err != nil {
		m.log.WithFields(ctx, logrus.Fields{"request_id": requestID, "error": err}).Warn("replay lookup failed")
		return nil
	}
	if snap == nil {
		return nil
	}
	if snap.SessionID != "" && sessionID != snap.SessionID {
		m.Unsubscribe(connID, requestID)
		return ErrOwnershipMismatch
	}
	for _, ev := range snap.Events {
		m.deliver(ctx, conn, ev)
	}
	return nil
}

func (m *Manager) addLocked(s *Subscription) {
	set, ok := m.subs[s.RequestID]
	if !ok {
		set = make(map[string]*Subscription)
		m.subs[s.RequestID] = set
	}
	set[s.ConnectionID] = s

	reqs, ok := m.byConn[s.ConnectionID]
	if !ok {
		reqs = make(map[string]struct{})
		m.byConn[s.ConnectionID] = reqs
	}
	reqs[s.RequestID] = struct{}{}
}

func (m *Manager) removeLocked(connID, requestID string) {
	if set, ok := m.subs[requestID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(m.subs, requestID)
		}
	}
	if reqs, ok := m.byConn[connID]; ok {
		delete(reqs, requestID)
		if len(reqs) == 0 {
			delete(m.byConn, connID)
		}
	}
}

// Unsubscribe detaches one request from a connection.
func (m *Manager) Unsubscribe(connID, requestID string) {
	m.mu.Lock()
	m.removeLocked(connID, requestID)
	m.mu.Unlock()
}

// Disconnect removes a connection and all of its subscriptions.
func (m *Manager) Disconnect(connID string) {
	m.mu.Lock()
	for requestID := range m.byConn[connID] {
		m.removeLocked(connID, requestID)
	}
	delete(m.byConn, connID)
	delete(m.conns, connID)
	n := len(m.conns)
	m.mu.Unlock()
	m.connectionsChanged(n)
}

// Publish delivers ev to local subscribers and forwards it to other
// instances. Delivery failures are isolated per connection.
func (m *Manager) Publish(ctx context.Context, ev *Event) {
	m.Deliver(ctx, ev)
	if m.forwarder != nil {
		if err := m.forwarder.Forward(ctx, ev); err != nil {
			m.log.WithFields(ctx, logrus.Fields{"request_id": ev.RequestID, "error": err}).Warn("relay forward failed")
		}
	}
}

// Deliver fans ev out to local subscribers only.
func (m *Manager) Deliver(ctx context.Context, ev *Event) {
	if ev == nil || ev.RequestID == "" {
		return
	}

	m.mu.RLock()
	targets := make([]Conn, 0, len(m.subs[ev.RequestID]))
	for connID, sub := range m.subs[ev.RequestID] {
		if ev.SessionID != "" && ev.SessionID != sub.SessionID {
			continue
		}
		if c, ok := m.conns[connID]; ok {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		m.deliver(ctx, c, ev)
	}
}

func (m *Manager) deliver(ctx context.Context, c Conn, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			m.publishFailed(ctx, c, ev, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := c.Send(ev); err != nil {
		m.publishFailed(ctx, c, ev, err)
	}
}

func (m *Manager) publishFailed(ctx context.Context, c Conn, ev *Event, err error) {
	m.log.WithFields(ctx, logrus.Fields{
		"connection_id": c.ID(),
		"request_id":    ev.RequestID,
		"event":         ev.Type,
		"error":         err,
	}).Warn("event delivery failed")
	if m.observer != nil {
		m.observer.PublishFailed(ev.Type)
	}
}

// HasActiveSubscribers reports whether any connection on this instance
// watches requestID. An empty sessionID matches every subscriber.
func (m *Manager) HasActiveSubscribers(requestID, sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs[requestID] {
		if sessionID == "" || sub.SessionID == sessionID {
			return true
		}
	}
	return false
}

// RecordIntent notes that sessionID is expected to subscribe to requestID.
func (m *Manager) RecordIntent(requestID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owners, ok := m.intents[requestID]
	if !ok {
		owners = make(map[string]*intent)
		m.intents[requestID] = owners
	}
	if in, ok := owners[sessionID]; ok {
		in.recordedAt = m.now()
		return
	}
	activated := false
	for _, sub := range m.subs[requestID] {
		if sub.SessionID == sessionID {
			activated = true
			break
		}
	}
	owners[sessionID] = &intent{recordedAt: m.now(), activated: activated}
}

// Sweep drops intents older than the intent TTL and returns how many were
// removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.intentTTL)
	removed := 0
	for requestID, owners := range m.intents {
		for sessionID, in := range owners {
			if in.recordedAt.Before(cutoff) {
				delete(owners, sessionID)
				removed++
			}
		}
		if len(owners) == 0 {
			delete(m.intents, requestID)
		}
	}
	return removed
}

// Run sweeps intents until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.log.Debugf(ctx, "swept %d subscription intents", n)
			}
		}
	}
}

// Stats returns current counts.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{Connections: len(m.conns), Requests: len(m.subs)}
	for _, set := range m.subs {
		s.Subscriptions += len(set)
	}
	for _, owners := range m.intents {
		s.Intents += len(owners)
		for _, in := range owners {
			if in.activated {
				s.Activated++
			}
		}
	}
	return s
}

func (m *Manager) connectionsChanged(n int) {
	if m.observer != nil {
		m.observer.ConnectionsChanged(n)
	}
}
