// Package syncconn implements the sync connection state machine (C5): one
// goroutine pair per duplex socket taking a client from init through
// authentication, a background catch-up replay, and live dispatch of
// push/pull/history/restore operations until the socket closes.
package syncconn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cuemby/vaultsync/pkg/access"
	"github.com/cuemby/vaultsync/pkg/blobstore"
	"github.com/cuemby/vaultsync/pkg/log"
	"github.com/cuemby/vaultsync/pkg/metrics"
	"github.com/cuemby/vaultsync/pkg/store"
	"github.com/cuemby/vaultsync/pkg/vaultchannel"
)

// chunkSize is CHUNK: the maximum size of a single binary blob frame.
const chunkSize = 2 * 1024 * 1024

// sizeLimit is reported to clients on the size op but never enforced
// server-side.
const sizeLimit = 10 * 1024 * 1024 * 1024

// Conn is one sync connection. It implements vaultchannel.Connection so the
// hub can hand it live-broadcast records directly.
type Conn struct {
	id     string
	ws     *websocket.Conn
	store  *store.Store
	blobs  *blobstore.Store
	hub    *vaultchannel.Hub
	logger zerolog.Logger

	writeMu sync.Mutex

	userID      int64
	vaultID     int64
	device      string
	initVersion int64
	initInitial bool
}

// New constructs a Conn around an already-upgraded websocket connection.
// Call Serve to run it; Serve blocks until the socket closes.
func New(ws *websocket.Conn, s *store.Store, b *blobstore.Store, hub *vaultchannel.Hub) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		store:  s,
		blobs:  b,
		hub:    hub,
		logger: log.WithConnID(id).With().Str("component", "syncconn").Logger(),
	}
}

// ID identifies this connection for vaultchannel bookkeeping.
func (c *Conn) ID() string { return c.id }

// DeviceName implements vaultchannel.DeviceNamer for the debug status route.
func (c *Conn) DeviceName() string { return c.device }

// Enqueue is vaultchannel's delivery callback: it is invoked on the
// channel's dedicated per-member forwarder goroutine, never concurrently
// with itself, but concurrently with the dispatch loop's own replies and
// the catch-up goroutine's pushes — writeMu serializes all three onto the
// one socket.
func (c *Conn) Enqueue(record store.DocumentRecord) {
	if err := c.sendJSON(recordToMsg(record)); err != nil {
		c.logger.Warn().Err(err).Msg("failed to deliver broadcast record")
	}
}

// Serve runs the connection's full lifecycle: authenticate, join the vault
// channel, start catch-up, then dispatch live messages until the socket
// closes or an unrecoverable error occurs.
func (c *Conn) Serve(ctx context.Context) {
	defer c.ws.Close()

	if err := c.authenticate(); err != nil {
		c.logger.Warn().Err(err).Msg("authentication failed")
		metrics.ConnectionsTotal.WithLabelValues(string(access.KindOf(err))).Inc()
		return
	}
	defer c.hub.Leave(c.vaultID, c)
	defer metrics.ConnectionsTotal.WithLabelValues("ok").Inc()

	catchupCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.catchUp(catchupCtx, c.initVersion, c.initInitial)

	c.dispatchLoop()
}

// authenticate reads the mandatory first message, resolves its bearer
// token, and joins the requested vault's channel. Per section 7, a missing
// token is auth_missing, an unknown token is auth_denied, and a bad keyhash
// or inaccessible vault surfaces whatever Kind vaultchannel.Join returned.
func (c *Conn) authenticate() error {
	var msg inboundMsg
	if err := c.ws.ReadJSON(&msg); err != nil {
		return access.New(access.KindAuthMissing, fmt.Errorf("read init: %w", err))
	}
	if msg.Op != "init" || msg.Token == "" {
		c.sendErr("auth missing")
		return access.New(access.KindAuthMissing, fmt.Errorf("first message was not a valid init"))
	}

	user, ok, err := c.store.ResolveToken(msg.Token)
	if err != nil {
		c.sendErr("internal error")
		return access.New(access.KindInternal, err)
	}
	if !ok {
		c.sendErr("auth denied")
		return access.New(access.KindAuthDenied, fmt.Errorf("unknown token"))
	}

	if err := c.hub.Join(c, user.ID, msg.ID, msg.Keyhash); err != nil {
		c.sendErr(string(access.KindOf(err)))
		return err
	}

	c.userID = user.ID
	c.vaultID = msg.ID
	c.device = msg.Device
	c.initVersion = msg.Version
	c.initInitial = msg.Initial

	c.logger = log.WithConnID(c.id).With().Str("component", "syncconn").Int64("vault_id", c.vaultID).Str("device", c.device).Logger()
	return c.sendOK()
}

// dispatchLoop reads one text frame at a time and routes it by op. A
// malformed frame or an internal error ends the connection; a recognized
// domain-level failure (not found, etc.) is reported with {"res":"err"} and
// the loop continues.
func (c *Conn) dispatchLoop() {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			c.logger.Warn().Msg("unexpected binary frame outside a blob transfer")
			continue
		}

		var msg inboundMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("malformed message, closing connection")
			return
		}

		if err := c.dispatch(msg); err != nil {
			c.logger.Error().Err(err).Str("op", msg.Op).Msg("dispatch failed")
			c.sendJSON(map[string]string{"err": "internal error", "msg": err.Error()})
			return
		}
	}
}

func (c *Conn) dispatch(msg inboundMsg) error {
	switch msg.Op {
	case "ping":
		return c.sendJSON(map[string]string{"op": "pong"})
	case "size":
		return c.handleSize()
	case "push":
		return c.handlePush(msg)
	case "pull":
		return c.handlePull(msg)
	case "deleted":
		return c.handleDeleted()
	case "history":
		return c.handleHistory(msg)
	case "restore":
		return c.handleRestore(msg)
	default:
		c.logger.Warn().Str("op", msg.Op).Msg("unrecognized operation")
		return c.sendOK()
	}
}

func (c *Conn) handleSize() error {
	size, err := c.store.GetVaultSize(c.vaultID)
	if err != nil {
		return err
	}
	return c.sendJSON(map[string]int64{"size": size, "limit": sizeLimit})
}

// handlePush implements 4.5.3: the blob is fetched only if its hash isn't
// already referenced anywhere in the vault (content-addressed dedup), then
// the DocumentRecord is committed and broadcast to every joined connection,
// including the uploader.
func (c *Conn) handlePush(msg inboundMsg) error {
	needsBlob := !msg.Folder && !msg.Deleted && msg.Pieces > 0
	if needsBlob {
		count, err := c.store.HashCount(c.vaultID, msg.Hash)
		if err != nil {
			return err
		}
		needsBlob = count == 0
		if !needsBlob {
			metrics.HashDedupTotal.Inc()
		}
	}

	if needsBlob {
		if err := c.store.InsertPending(c.vaultID, msg.Hash); err != nil {
			return err
		}
		if err := c.receiveBlob(msg.Hash, msg.Pieces); err != nil {
			return err
		}
		if err := c.store.DeletePending(c.vaultID, msg.Hash); err != nil {
			return err
		}
	}

	rec, err := c.store.InsertRecord(store.DocumentRecord{
		VaultID:     c.vaultID,
		Path:        msg.Path,
		RelatedPath: msg.RelatedPath,
		Hash:        msg.Hash,
		Folder:      msg.Folder,
		Deleted:     msg.Deleted,
		Size:        msg.Size,
		Device:      c.device,
		Ctime:       msg.Ctime,
		Mtime:       msg.Mtime,
	})
	if err != nil {
		return err
	}
	metrics.RecordsInsertedTotal.Inc()

	c.hub.Broadcast(rec)
	return c.sendOK()
}

// receiveBlob drives C1's upload flow control: request one piece at a time
// with {"res":"missing-blobs"}, read it, repeat. receiveBinaryFrame
// transparently answers any ping the client interleaves between pieces
// without disturbing piece accounting.
func (c *Conn) receiveBlob(hash string, pieces int) error {
	w, err := c.blobs.OpenWrite(strconv.FormatInt(c.vaultID, 10), hash)
	if err != nil {
		return err
	}
	defer w.Close()

	var received int64
	for i := 0; i < pieces; i++ {
		if err := c.sendJSON(map[string]string{"res": "missing-blobs"}); err != nil {
			return err
		}
		chunk, err := c.receiveBinaryFrame()
		if err != nil {
			return fmt.Errorf("receive blob piece %d/%d: %w", i+1, pieces, err)
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		received += int64(len(chunk))
	}
	metrics.BlobBytesUploaded.Add(float64(received))
	return nil
}

// receiveBinaryFrame reads the next frame, answering any ping in between
// with a pong and looping, since a client may keep its keepalive clock
// running mid-upload. Any other text op arriving before the expected
// binary piece is a protocol violation.
func (c *Conn) receiveBinaryFrame() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.BinaryMessage {
			return data, nil
		}

		var m inboundMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("invalid frame mid-transfer: %w", err)
		}
		if m.Op != "ping" {
			return nil, fmt.Errorf("unexpected op %q mid-transfer", m.Op)
		}
		if err := c.sendJSON(map[string]string{"op": "pong"}); err != nil {
			return nil, err
		}
	}
}

// handlePull implements 4.5.4: announce size/pieces/deleted, then stream
// the blob as exactly pieces binary frames of up to chunkSize bytes.
func (c *Conn) handlePull(msg inboundMsg) error {
	rec, ok, err := c.store.GetRecord(c.vaultID, msg.UID)
	if err != nil {
		return err
	}
	if !ok {
		return c.sendErr("not found")
	}

	pieces := 0
	if rec.Size > 0 {
		pieces = int((rec.Size + chunkSize - 1) / chunkSize)
	}
	if err := c.sendJSON(map[string]interface{}{
		"size": rec.Size, "pieces": pieces, "deleted": rec.Deleted,
	}); err != nil {
		return err
	}
	if pieces == 0 {
		return nil
	}

	r, err := c.blobs.OpenRead(strconv.FormatInt(c.vaultID, 10), rec.Hash)
	if err != nil {
		return err
	}
	defer r.Close()

	var sent int64
	buf := make([]byte, chunkSize)
	for i := 0; i < pieces; i++ {
		n, err := io.ReadFull(r, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return err
		}
		if err := c.sendBinary(buf[:n]); err != nil {
			return err
		}
		sent += int64(n)
	}
	metrics.BlobBytesDownloaded.Add(float64(sent))
	return nil
}

func (c *Conn) handleDeleted() error {
	records, err := c.store.GetDeleted(c.vaultID)
	if err != nil {
		return err
	}
	return c.sendJSON(map[string]interface{}{"items": recordsToHistory(records)})
}

func (c *Conn) handleHistory(msg inboundMsg) error {
	records, err := c.store.GetHistory(c.vaultID, msg.Path, msg.Last)
	if err != nil {
		return err
	}
	return c.sendJSON(map[string]interface{}{"items": recordsToHistory(records), "more": false})
}

// handleRestore implements 4.5.5: a historical revision is re-committed as
// a brand-new, non-deleted record under the restoring device, then
// broadcast like any other push.
func (c *Conn) handleRestore(msg inboundMsg) error {
	orig, ok, err := c.store.GetRecord(c.vaultID, msg.UID)
	if err != nil {
		return err
	}
	if !ok {
		return c.sendErr("not found")
	}

	rec, err := c.store.InsertRecord(store.DocumentRecord{
		VaultID:     c.vaultID,
		Path:        orig.Path,
		RelatedPath: orig.RelatedPath,
		Hash:        orig.Hash,
		Folder:      orig.Folder,
		Deleted:     false,
		Size:        orig.Size,
		Device:      c.device,
		Ctime:       orig.Ctime,
		Mtime:       orig.Mtime,
	})
	if err != nil {
		return err
	}
	metrics.RecordsInsertedTotal.Inc()

	c.hub.Broadcast(rec)
	return c.sendOK()
}

// catchUp replays every record committed after version to this connection
// alone, then announces {"op":"ready","version":max_id}. It exits early
// without sending ready if ctx is canceled, which Serve does the moment the
// dispatch loop returns.
func (c *Conn) catchUp(ctx context.Context, version int64, initial bool) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CatchupDuration)

	maxID, records, err := c.store.GetUpdates(c.vaultID, version, initial)
	if err != nil {
		c.logger.Error().Err(err).Msg("catch-up failed")
		return
	}

	for _, rec := range records {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := c.sendJSON(recordToMsg(rec)); err != nil {
			return
		}
	}

	select {
	case <-ctx.Done():
		return
	default:
	}
	if err := c.sendJSON(map[string]interface{}{"op": "ready", "version": maxID}); err != nil {
		c.logger.Warn().Err(err).Msg("failed to send ready")
	}
}

func (c *Conn) sendJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *Conn) sendBinary(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

func (c *Conn) sendOK() error { return c.sendJSON(map[string]string{"res": "ok"}) }

func (c *Conn) sendErr(reason string) error {
	return c.sendJSON(map[string]string{"res": "err", "err": reason})
}
