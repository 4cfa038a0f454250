// Package vaultchannel implements the vault channel hub (C4): a
// process-wide registry mapping a vault id to the set of connections
// currently joined to it, used to fan out pushed records in real time.
package vaultchannel

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/vaultsync/pkg/access"
	"github.com/cuemby/vaultsync/pkg/log"
	"github.com/cuemby/vaultsync/pkg/metrics"
	"github.com/cuemby/vaultsync/pkg/security"
	"github.com/cuemby/vaultsync/pkg/store"
)

// queueDepth bounds how many pending broadcasts a single connection may
// have outstanding before Broadcast blocks on it — the accepted backpressure
// point where a slow peer throttles the broadcaster.
const queueDepth = 256

// Connection is the narrow interface vaultchannel needs from a live sync
// socket: a stable id for bookkeeping and a way to hand it a record to
// deliver. Enqueue is called only from the member's own forwarder goroutine
// (see member.run), so an implementation that writes to its socket
// directly, as pkg/syncconn's does, stalls only its own queue.
type Connection interface {
	ID() string
	Enqueue(record store.DocumentRecord)
}

// Hub is the process-wide vault channel registry.
type Hub struct {
	checker *access.Checker

	mu       sync.Mutex
	channels map[int64]*Channel

	logger zerolog.Logger
}

// NewHub constructs a Hub backed by the given access checker.
func NewHub(checker *access.Checker) *Hub {
	return &Hub{
		checker:  checker,
		channels: make(map[int64]*Channel),
		logger:   log.WithComponent("vaultchannel"),
	}
}

// Channel is the set of connections currently joined to one vault.
type Channel struct {
	vaultID int64

	mu      sync.Mutex
	members map[string]*member
}

type member struct {
	conn  Connection
	queue chan store.DocumentRecord
	done  chan struct{}
}

// Join verifies access and the vault keyhash, then registers conn on the
// vault's channel (creating it lazily). Returns an *access.Error with the
// appropriate Kind on failure: KindAuthDenied, KindInvalidKey, or
// KindNotFound.
func (h *Hub) Join(conn Connection, userID, vaultID int64, keyhash string) error {
	vault, err := h.checker.Get(vaultID, userID, true)
	if err != nil {
		return err
	}
	if !security.ConstantTimeEqual(keyhash, vault.KeyHash) {
		return access.New(access.KindInvalidKey, nil)
	}

	h.mu.Lock()
	ch, ok := h.channels[vaultID]
	if !ok {
		ch = &Channel{vaultID: vaultID, members: make(map[string]*member)}
		h.channels[vaultID] = ch
		metrics.VaultsJoined.Inc()
	}
	h.mu.Unlock()

	ch.addMember(conn)
	metrics.ConnectionsActive.Inc()
	h.logger.Info().Int64("vault_id", vaultID).Str("conn_id", conn.ID()).Msg("joined vault channel")
	return nil
}

// DeviceNamer is an optional interface a Connection may implement to expose
// a human-readable device name for the debug status route; connections that
// don't implement it are listed by their bare ID instead.
type DeviceNamer interface {
	DeviceName() string
}

// VaultStatus summarizes one live vault channel for the debug status route.
type VaultStatus struct {
	VaultID int64
	Devices []string
}

// Status snapshots every live vault channel and its connected device names,
// for the debug-only GET /status route.
func (h *Hub) Status() []VaultStatus {
	h.mu.Lock()
	channels := make(map[int64]*Channel, len(h.channels))
	for id, ch := range h.channels {
		channels[id] = ch
	}
	h.mu.Unlock()

	statuses := make([]VaultStatus, 0, len(channels))
	for vaultID, ch := range channels {
		statuses = append(statuses, VaultStatus{VaultID: vaultID, Devices: ch.deviceNames()})
	}
	return statuses
}

// Leave removes conn from vaultID's channel. When the last member leaves,
// the channel itself is removed from the hub.
func (h *Hub) Leave(vaultID int64, conn Connection) {
	h.mu.Lock()
	ch, ok := h.channels[vaultID]
	if !ok {
		h.mu.Unlock()
		return
	}
	empty := ch.removeMember(conn.ID())
	if empty {
		delete(h.channels, vaultID)
	}
	h.mu.Unlock()

	if empty {
		metrics.VaultsJoined.Dec()
	}
	metrics.ConnectionsActive.Dec()
	h.logger.Info().Int64("vault_id", vaultID).Str("conn_id", conn.ID()).Msg("left vault channel")
}

// Broadcast delivers record to every connection currently joined to its
// vault, including the originator. Order across connections is arbitrary;
// per-connection order matches the order Broadcast is called in, since the
// member list is snapshotted under the channel's lock and the record is then
// placed on each member's FIFO queue by the calling goroutine, rather than
// handed off to per-call goroutines whose scheduling order is unspecified.
func (h *Hub) Broadcast(record store.DocumentRecord) {
	h.mu.Lock()
	ch, ok := h.channels[record.VaultID]
	h.mu.Unlock()
	if !ok {
		return
	}
	ch.broadcast(record)
	metrics.BroadcastsTotal.Inc()
}

func (c *Channel) addMember(conn Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := &member{conn: conn, queue: make(chan store.DocumentRecord, queueDepth), done: make(chan struct{})}
	c.members[conn.ID()] = m
	go m.run()
}

func (c *Channel) removeMember(connID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.members[connID]; ok {
		close(m.done)
		delete(c.members, connID)
	}
	return len(c.members) == 0
}

func (c *Channel) deviceNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.members))
	for _, m := range c.members {
		if dn, ok := m.conn.(DeviceNamer); ok {
			names = append(names, dn.DeviceName())
		} else {
			names = append(names, m.conn.ID())
		}
	}
	return names
}

func (c *Channel) broadcast(record store.DocumentRecord) {
	c.mu.Lock()
	members := make([]*member, 0, len(c.members))
	for _, m := range c.members {
		members = append(members, m)
	}
	c.mu.Unlock()

	for _, m := range members {
		select {
		case m.queue <- record:
		case <-m.done:
		}
	}
}

// run drains a member's queue and forwards records to its connection,
// decoupling broadcast from the connection's own socket-write latency.
func (m *member) run() {
	for {
		select {
		case record := <-m.queue:
			m.conn.Enqueue(record)
		case <-m.done:
			return
		}
	}
}
