package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pong-arena/internal/directory"
	"pong-arena/internal/game"
	"pong-arena/internal/lobby"
	"pong-arena/internal/store"
)

const (
	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256

	// presenceRefresh extends each player's newest binding well inside
	// the Redis binding TTL.
	presenceRefresh = 30 * time.Second
)

// HubConfig wires the hub to its collaborators.
type HubConfig struct {
	Directory        directory.Store
	Recorder         lobby.OutcomeRecorder
	Journal          *game.Journal
	Logger           *zap.Logger
	TickInterval     time.Duration
	MaxConnections   int
	WSMessagesPerSec float64

	// Ticks overrides the internal ticker. Tests use it to step the
	// simulation deterministically.
	Ticks <-chan time.Time

	// PresenceRefresh overrides the presence refresh ticker.
	PresenceRefresh <-chan time.Time
}

// Stats is the snapshot served by /api/stats.
type Stats struct {
	Clients int               `json:"clients"`
	Queued  int               `json:"queued"`
	Invites int               `json:"invites"`
	Matches int               `json:"matches"`
	Ticks   uint64            `json:"ticks"`
	Journal game.JournalStats `json:"journal"`

	WSRejected uint64               `json:"ws_rejected"`
	Recorder   *store.RecorderStats `json:"recorder,omitempty"`
}

// recorderStats is implemented by recorders that count their work.
type recorderStats interface {
	Stats() store.RecorderStats
}

// Hub owns the lobby and every connected client. All lobby state is
// touched only from Run, which serializes registrations, inbound commands
// and simulation ticks.
type Hub struct {
	lobby     *lobby.Lobby
	directory directory.Store
	journal   *game.Journal
	recorder  lobby.OutcomeRecorder
	logger    *zap.Logger

	clients    map[string]*Client // conn id -> client, owned by Run
	register   chan *Client
	unregister chan *Client
	inbound    chan command
	statsReq   chan chan Stats

	tickInterval time.Duration
	ticks        <-chan time.Time
	tickCount    uint64

	refreshTicks <-chan time.Time
	refreshing   atomic.Bool
	lostPresence chan []presenceBinding
	connSeq      uint64

	maxConnections int
	msgRate        float64
	wsLimiter      *WebSocketRateLimiter
	clientCount    atomic.Int64

	done chan struct{}
}

// NewHub creates a hub and its lobby. Nothing runs until Run is called.
func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := cfg.Directory
	if dir == nil {
		dir = directory.NewMemory()
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = time.Second / 60
	}

	h := &Hub{
		directory:      dir,
		journal:        cfg.Journal,
		recorder:       cfg.Recorder,
		logger:         logger.Named("hub"),
		clients:        make(map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		inbound:        make(chan command, 1024),
		statsReq:       make(chan chan Stats),
		tickInterval:   interval,
		ticks:          cfg.Ticks,
		refreshTicks:   cfg.PresenceRefresh,
		lostPresence:   make(chan []presenceBinding),
		maxConnections: cfg.MaxConnections,
		msgRate:        cfg.WSMessagesPerSec,
		wsLimiter:      NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
		done:           make(chan struct{}),
	}
	h.lobby = lobby.New(lobby.Config{
		Directory: dir,
		Notifier:  h,
		Recorder:  cfg.Recorder,
		Journal:   cfg.Journal,
		Logger:    logger,
	})
	return h
}

// Run processes hub events until ctx is cancelled. It closes every client
// on exit.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	ticks := h.ticks
	if ticks == nil {
		ticker := time.NewTicker(h.tickInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}
	refresh := h.refreshTicks
	if refresh == nil {
		ticker := time.NewTicker(presenceRefresh)
		defer ticker.Stop()
		refresh = ticker.C
	}

	h.logger.Info("hub started", zap.Duration("tick", h.tickInterval))

	for {
		select {
		case c := <-h.register:
			h.addClient(ctx, c)

		case c := <-h.unregister:
			h.removeClient(ctx, c)

		case cmd := <-h.inbound:
			h.dispatch(ctx, cmd)

		case <-ticks:
			h.tick()

		case <-refresh:
			h.refreshPresence(ctx)

		case lost := <-h.lostPresence:
			h.restorePresence(ctx, lost)

		case reply := <-h.statsReq:
			reply <- h.stats()

		case <-ctx.Done():
			for _, c := range h.clients {
				h.removeClient(context.Background(), c)
			}
			h.logger.Info("hub stopped")
			return
		}
	}
}

func (h *Hub) tick() {
	start := time.Now()
	outcomes := h.lobby.Tick()
	RecordTick(time.Since(start))
	h.tickCount++

	for _, o := range outcomes {
		RecordOutcome(o)
	}
	UpdateLobbyStats(h.lobby.Stats())
	if h.tickCount%64 == 0 {
		UpdateJournalStats(h.journal.Stats())
	}
}

type presenceBinding struct {
	playerID string
	connID   string
}

// newestClients returns each player's most recently registered client.
func (h *Hub) newestClients() map[string]*Client {
	newest := make(map[string]*Client, len(h.clients))
	for _, c := range h.clients {
		if cur, ok := newest[c.playerID]; !ok || c.seq > cur.seq {
			newest[c.playerID] = c
		}
	}
	return newest
}

// newestFor returns the player's most recently registered client, or nil.
func (h *Hub) newestFor(playerID string) *Client {
	var newest *Client
	for _, c := range h.clients {
		if c.playerID == playerID && (newest == nil || c.seq > newest.seq) {
			newest = c
		}
	}
	return newest
}

// refreshPresence extends the binding of each player's newest connection.
// The directory calls run off the hub loop and a refresh still in flight
// skips the next one. Bindings found missing are handed back to the loop.
func (h *Hub) refreshPresence(ctx context.Context) {
	if len(h.clients) == 0 || !h.refreshing.CompareAndSwap(false, true) {
		return
	}
	newest := h.newestClients()
	bindings := make([]presenceBinding, 0, len(newest))
	for playerID, c := range newest {
		bindings = append(bindings, presenceBinding{playerID: playerID, connID: c.id})
	}

	go func() {
		defer h.refreshing.Store(false)
		var lost []presenceBinding
		for _, b := range bindings {
			err := h.directory.Refresh(ctx, b.playerID, b.connID)
			switch {
			case errors.Is(err, directory.ErrNotFound):
				lost = append(lost, b)
			case err != nil:
				h.logger.Warn("refresh presence", zap.String("player_id", b.playerID), zap.Error(err))
			}
		}
		if len(lost) == 0 {
			return
		}
		select {
		case h.lostPresence <- lost:
		case <-h.done:
		}
	}()
}

// restorePresence re-registers expired bindings whose connection is still
// its player's newest.
func (h *Hub) restorePresence(ctx context.Context, lost []presenceBinding) {
	for _, b := range lost {
		if c := h.newestFor(b.playerID); c == nil || c.id != b.connID {
			continue
		}
		if err := h.directory.Register(ctx, b.playerID, b.connID); err != nil {
			h.logger.Warn("restore presence", zap.String("player_id", b.playerID), zap.Error(err))
			continue
		}
		h.logger.Info("presence restored", zap.String("player_id", b.playerID), zap.String("conn_id", b.connID))
	}
}

func (h *Hub) addClient(ctx context.Context, c *Client) {
	h.connSeq++
	c.seq = h.connSeq
	h.clients[c.id] = c
	if err := h.directory.Register(ctx, c.playerID, c.id); err != nil {
		h.logger.Warn("register presence", zap.String("player_id", c.playerID), zap.Error(err))
	}
	UpdateWSConnections(len(h.clients))
	h.logger.Info("client connected",
		zap.String("conn_id", c.id),
		zap.String("player_id", c.playerID),
		zap.String("ip", c.ip),
		zap.String("codec", c.codec.Name()),
		zap.Int("total", len(h.clients)),
	)
}

func (h *Hub) removeClient(ctx context.Context, c *Client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}

	if out, ok := h.lobby.Disconnect(ctx, c.id, c.playerID); ok {
		RecordOutcome(out)
	}
	wasNewest := h.newestFor(c.playerID) == c
	delete(h.clients, c.id)
	close(c.send)

	if err := h.directory.Unregister(ctx, c.playerID, c.id); err != nil {
		h.logger.Warn("unregister presence", zap.String("player_id", c.playerID), zap.Error(err))
	}
	if next := h.newestFor(c.playerID); wasNewest && next != nil {
		// an older connection of the same player takes the binding back
		if err := h.directory.Register(ctx, next.playerID, next.id); err != nil {
			h.logger.Warn("register presence", zap.String("player_id", next.playerID), zap.Error(err))
		}
	}
	h.wsLimiter.Release(c.ip)
	h.clientCount.Add(-1)
	UpdateWSConnections(len(h.clients))
	UpdateLobbyStats(h.lobby.Stats())
	h.logger.Info("client disconnected",
		zap.String("conn_id", c.id),
		zap.String("player_id", c.playerID),
		zap.Int("remaining", len(h.clients)),
	)
}

// Notify encodes msg for the connection and queues it without blocking.
// It must only be called from Run, which is where the lobby calls it.
func (h *Hub) Notify(connID string, msg lobby.Message) {
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	c.enqueue(msg.Event, msg.Data)
}

func (h *Hub) stats() Stats {
	ls := h.lobby.Stats()
	s := Stats{
		Clients:    len(h.clients),
		Queued:     ls.Queued,
		Invites:    ls.Invites,
		Matches:    ls.Matches,
		Ticks:      h.tickCount,
		Journal:    h.journal.Stats(),
		WSRejected: h.wsLimiter.Rejected(),
	}
	if rs, ok := h.recorder.(recorderStats); ok {
		st := rs.Stats()
		s.Recorder = &st
	}
	return s
}

// Stats asks the hub loop for a snapshot.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.statsReq <- reply:
	case <-h.done:
		return Stats{}, errHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} { return h.done }

var errHubStopped = errors.New("hub stopped")

// dispatch applies one inbound command to the lobby.
func (h *Hub) dispatch(ctx context.Context, cmd command) {
	c := cmd.client
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	if cmd.err != nil {
		h.reject(c, cmd.event, cmd.err)
		return
	}

	var err error
	switch p := cmd.payload.(type) {
	case joinQueuePayload:
		if err = c.checkIdentity(p.PlayerID); err == nil {
			err = h.lobby.JoinQueue(c.playerID, c.id)
		}
	case sendInvitePayload:
		if err = c.checkIdentity(p.PlayerID); err == nil {
			err = h.lobby.SendInvite(ctx, c.playerID, p.OpponentID, c.id)
		}
	case acceptInvitePayload:
		if err = c.checkIdentity(p.InviteeID); err == nil {
			err = h.lobby.AcceptInvite(ctx, p.InviterID, c.playerID, c.id)
		}
	case declineInvitePayload:
		err = h.lobby.DeclineInvite(ctx, c.playerID, p.PlayerID)
	case movePayload:
		if err := h.lobby.Move(c.id, p.MatchID, p.Direction); err != nil {
			h.logger.Debug("move ignored", zap.String("conn_id", c.id), zap.Error(err))
		}
		return
	default:
		if cmd.event == EventLeaveQueue {
			h.lobby.LeaveQueue(c.id)
			UpdateLobbyStats(h.lobby.Stats())
			return
		}
	}

	if err != nil {
		h.reject(c, cmd.event, err)
		return
	}
	UpdateLobbyStats(h.lobby.Stats())
}

// reject tells the client why a command failed.
func (h *Hub) reject(c *Client, event string, err error) {
	code := errorCode(err)
	RecordCommandRejected(code)
	h.logger.Debug("command rejected",
		zap.String("conn_id", c.id),
		zap.String("event", event),
		zap.String("code", code),
		zap.Error(err),
	)

	switch {
	case errors.Is(err, lobby.ErrAlreadyQueued):
		// re-enqueueing is a no-op
	case errors.Is(err, lobby.ErrAdmissionConflict):
		c.enqueue(lobby.EventAlreadyInMatch, AlreadyInMatchPayload{Reason: err.Error()})
	default:
		c.enqueue(EventError, ErrorPayload{Code: code, Message: err.Error()})
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, lobby.ErrAdmissionConflict):
		return CodeAdmissionConflict
	case errors.Is(err, lobby.ErrAlreadyQueued):
		return CodeAlreadyQueued
	case errors.Is(err, lobby.ErrInviteExists):
		return CodeInviteExists
	case errors.Is(err, lobby.ErrOpponentBusy):
		return CodeOpponentBusy
	case errors.Is(err, lobby.ErrUnknownTarget):
		return CodeUnknownTarget
	case errors.Is(err, lobby.ErrInvalidInput), errors.Is(err, errIdentityMismatch):
		return CodeInvalidInput
	case errors.Is(err, errRateLimited):
		return CodeRateLimited
	case errors.Is(err, errUnknownEvent):
		return CodeUnknownEvent
	case errors.Is(err, errBadFrame):
		return CodeBadFrame
	default:
		return CodeInternal
	}
}

var (
	errIdentityMismatch = errors.New("player_id does not match the connection")
	errRateLimited      = errors.New("too many messages")
)

// Client is one WebSocket connection bound to a player.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	id       string
	playerID string
	seq      uint64 // registration order, owned by the hub loop
	ip       string
	codec    Codec
	send     chan []byte
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// checkIdentity accepts an empty payload id or one that matches the
// handshake identity.
func (c *Client) checkIdentity(payloadID string) error {
	if payloadID != "" && payloadID != c.playerID {
		return errIdentityMismatch
	}
	return nil
}

// enqueue encodes and queues a frame, dropping it if the client is slow.
// Only the hub loop calls it, so send is never closed underneath it.
func (c *Client) enqueue(event string, data any) {
	frame, err := c.codec.Encode(event, data)
	if err != nil {
		c.logger.Error("encode message", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case c.send <- frame:
		RecordWSMessage("out")
	default:
		RecordWSMessage("dropped")
		c.logger.Debug("send buffer full, dropping message", zap.String("event", event))
	}
}

// readPump decodes inbound frames and hands them to the hub loop.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read error", zap.Error(err))
			}
			return
		}
		RecordWSMessage("in")

		cmd := command{client: c}
		if !c.limiter.Allow() {
			cmd.err = errRateLimited
		} else {
			cmd.event, cmd.payload, cmd.err = decodeCommand(c.codec, frame)
		}

		select {
		case c.hub.inbound <- cmd:
		case <-c.hub.done:
			return
		}
	}
}

// writePump drains the send buffer and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(c.codec.FrameType(), frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWebSocket authenticates and upgrades a connection, then starts its
// pumps.
func (h *Hub) HandleWebSocket(auth *Authenticator, origins *OriginChecker) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origins.Allowed(origin) {
				return true
			}
			h.logger.Warn("websocket origin rejected", zap.String("origin", origin))
			RecordConnectionRejected("origin")
			return false
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ip := GetClientIP(r)

		playerID, err := auth.Identify(r)
		if err != nil {
			RecordConnectionRejected("auth")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		codec, err := CodecFor(r.URL.Query().Get(CodecParam))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if h.maxConnections > 0 && h.ClientCount() >= h.maxConnections {
			RecordConnectionRejected("ws_total_limit")
			http.Error(w, "Too many connections", http.StatusServiceUnavailable)
			return
		}
		if !h.wsLimiter.Allow(ip) {
			RecordConnectionRejected("ws_ip_limit")
			http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("websocket upgrade failed", zap.Error(err))
			h.wsLimiter.Release(ip)
			return
		}

		id := uuid.NewString()
		c := &Client{
			hub:      h,
			conn:     conn,
			id:       id,
			playerID: playerID,
			ip:       ip,
			codec:    codec,
			send:     make(chan []byte, sendBufferSize),
			limiter:  newMessageLimiter(h.msgRate),
			logger:   h.logger.With(zap.String("conn_id", id)),
		}

		h.clientCount.Add(1)
		select {
		case h.register <- c:
		case <-h.done:
			h.clientCount.Add(-1)
			h.wsLimiter.Release(ip)
			conn.Close()
			return
		}

		go c.writePump()
		go c.readPump()
	}
}
