// Package ipc implements the IPC Server of §4.H: a TCP listener on
// localhost speaking newline-delimited JSON, connection lifecycle
// (attach/detach/disconnect), command ingest into the scheduler's work
// queue, and event broadcast with a bounded per-client backlog.
//
// Grounded on the teacher's internal/task.Broker (buffered per-subscriber
// channel, non-blocking Publish, drop-on-full) generalized from
// Server-Sent-Events fan-out to this spec's raw TCP/newline-JSON clients,
// and internal/worker.StartBetaHeaderProxy's net.ListenConfig.Listen(ctx,
// "tcp", "127.0.0.1:0") idiom for binding an ephemeral localhost port.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashleyhindle/fuel-sub006/internal/logging"
)

// Event types broadcast to attached clients, per §4.H.
const (
	EventTaskCreated       = "TaskCreated"
	EventTaskStatusChanged = "TaskStatusChanged"
	EventRunStarted        = "RunStarted"
	EventRunCompleted      = "RunCompleted"
	EventEpicCompleted     = "EpicCompleted"
	EventHeartbeat         = "Heartbeat"
	EventBrowserResponse   = "BrowserResponse"
	EventError             = "Error"
	EventSnapshot          = "Snapshot"
	EventResponse          = "RESPONSE"
)

// Command types a client may send, per §4.H and §6.
const (
	CmdAttach     = "ATTACH"
	CmdDetach     = "DETACH"
	CmdDisconnect = "DISCONNECT"

	CmdPauseTask   = "PAUSE_TASK"
	CmdUnpauseTask = "UNPAUSE_TASK"
	CmdCancelRun   = "CANCEL_RUN"
	CmdInjectTask  = "INJECT_TASK"
	CmdHealthReset = "HEALTH_RESET"
)

// browserCommandPrefix identifies the browser-bridge adjunct commands
// (§1: out of core scope beyond being routed through the same IPC).
const browserCommandPrefix = "BROWSER_"

// Envelope is the newline-delimited JSON wire message of §4.H: every
// message carries a type, a timestamp, and the daemon's instanceId;
// commands additionally carry a client-generated requestId.
type Envelope struct {
	Type       string          `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	InstanceID string          `json:"instanceId"`
	RequestID  string          `json:"requestId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Command is an inbound client message, decoded from an Envelope and
// queued for the Scheduler's Ingest step to drain each tick.
type Command struct {
	Type      string
	RequestID string
	Payload   json.RawMessage
	ClientID  string
}

// Client is one attached or detached connection. Attach controls whether
// it receives the live event stream; a detached client keeps its TCP
// connection but drops its backlog, per §4.H step 3.
type client struct {
	id       string
	conn     net.Conn
	outbound chan Envelope
	attached bool
	closed   bool // set with outbound's close, guards against send-on-closed-channel
	mu       sync.Mutex
}

// send queues env on c.outbound, guarding against a concurrent close by
// handleConn's disconnect cleanup: closed and the channel close itself are
// both set under c.mu, so a sender either wins the race and delivers to an
// open channel or loses it and sees closed == true.
func (c *client) send(env Envelope) (sent, dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, false
	}
	select {
	case c.outbound <- env:
		return true, false
	default:
		return false, true
	}
}

// close marks c closed and closes its outbound channel, synchronized
// against send so no goroutine can send on the channel after this returns.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.outbound)
}

const outboundBacklog = 128

// Server is the IPC Server of §4.H. It owns socket state and per-client
// backlogs exclusively; nothing else in the daemon touches a client
// connection directly.
type Server struct {
	instanceID string
	logger     logging.Logger

	listener net.Listener
	addr     string
	port     int

	mu      sync.Mutex
	clients map[string]*client

	commands chan Command

	snapshotFn func() json.RawMessage
}

// New builds a Server. snapshotFn is called once per ATTACH to build the
// "current board state" payload of §4.H step 1; it may be nil until the
// caller wires it up after construction via SetSnapshotFunc.
func New(logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		instanceID: uuid.NewString(),
		logger:     logger.With("component", "ipc_server"),
		clients:    make(map[string]*client),
		commands:   make(chan Command, 256),
	}
}

// SetSnapshotFunc registers the callback used to build the snapshot event
// sent to a client immediately after ATTACH.
func (s *Server) SetSnapshotFunc(fn func() json.RawMessage) {
	s.snapshotFn = fn
}

// InstanceID returns the daemon's per-process uuid, embedded in every
// outbound Envelope.
func (s *Server) InstanceID() string { return s.instanceID }

// Listen binds the server to 127.0.0.1 on an OS-chosen port (or the given
// port if nonzero) and starts the accept loop in a background goroutine.
// It returns the bound port so the caller can write it into
// consume-runner.pid per §4.H/§6.
func (s *Server) Listen(ctx context.Context, port int) (int, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("127.0.0.1", portString(port)))
	if err != nil {
		return 0, err
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.addr = ln.Addr().String()

	go s.acceptLoop(ctx)
	return s.port, nil
}

func portString(port int) string {
	return strconv.Itoa(port)
}

// Addr returns the bound TCP address, empty before Listen succeeds.
func (s *Server) Addr() string { return s.addr }

// Port returns the bound TCP port, zero before Listen succeeds.
func (s *Server) Port() int { return s.port }

// Commands returns the channel the Scheduler drains each tick (§4.E
// step 6, §4.H step 2).
func (s *Server) Commands() <-chan Command { return s.commands }

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.logger.Warn("accept error", "err", err)
				return
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	c := &client{id: uuid.NewString(), conn: conn, outbound: make(chan Envelope, outboundBacklog)}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	writerDone := make(chan struct{})
	go s.writeLoop(c, writerDone)

	defer func() {
		s.removeClient(c.id)
		c.close()
		<-writerDone
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			s.sendTo(c, Envelope{Type: EventError, Payload: mustJSON(map[string]string{"error": "malformed message"})})
			continue
		}
		s.handleMessage(ctx, c, env)
	}
}

func (s *Server) handleMessage(ctx context.Context, c *client, env Envelope) {
	switch env.Type {
	case CmdAttach:
		c.mu.Lock()
		c.attached = true
		c.mu.Unlock()
		if s.snapshotFn != nil {
			s.sendTo(c, Envelope{Type: EventSnapshot, Payload: s.snapshotFn()})
		}
	case CmdDetach:
		c.mu.Lock()
		c.attached = false
		c.mu.Unlock()
		s.drainBacklog(c)
	case CmdDisconnect:
		s.removeClient(c.id)
		_ = c.conn.Close()
	default:
		s.enqueueCommand(Command{Type: env.Type, RequestID: env.RequestID, Payload: env.Payload, ClientID: c.id})
	}
}

func (s *Server) enqueueCommand(cmd Command) {
	select {
	case s.commands <- cmd:
	default:
		s.logger.Warn("command queue full, dropping command", "type", cmd.Type)
	}
}

func (s *Server) drainBacklog(c *client) {
	for {
		select {
		case <-c.outbound:
		default:
			return
		}
	}
}

func (s *Server) removeClient(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

func (s *Server) writeLoop(c *client, done chan struct{}) {
	defer close(done)
	w := bufio.NewWriter(c.conn)
	for env := range c.outbound {
		b, err := json.Marshal(env)
		if err != nil {
			continue
		}
		b = append(b, '\n')
		if _, err := w.Write(b); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// sendTo queues env for c without blocking; slow clients are dropped with
// an Error event rather than blocking the scheduler, per §4.H backpressure.
func (s *Server) sendTo(c *client, env Envelope) {
	env.InstanceID = s.instanceID
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}
	_, dropped := c.send(env)
	if dropped {
		s.logger.Warn("client backlog full, dropping client", "client_id", c.id)
		go s.evict(c)
	}
}

func (s *Server) evict(c *client) {
	errEnv := Envelope{Type: EventError, InstanceID: s.instanceID, Timestamp: time.Now(),
		Payload: mustJSON(map[string]string{"error": "backlog exceeded, disconnecting"})}
	c.send(errEnv)
	s.removeClient(c.id)
	_ = c.conn.Close()
}

// Broadcast sends env to every attached client, per §4.H's ordering
// guarantee: each client sees a consistent suffix of the scheduler's
// logical event order, even though delivery across clients is
// independent and not globally ordered.
func (s *Server) Broadcast(eventType string, payload any) {
	b := mustJSON(payload)
	env := Envelope{Type: eventType, InstanceID: s.instanceID, Timestamp: time.Now(), Payload: b}

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		attached := c.attached
		c.mu.Unlock()
		if attached {
			s.sendTo(c, env)
		}
	}
}

// Respond broadcasts a RESPONSE event carrying requestID, routed to every
// attached client; clients filter by requestId themselves, per §4.H's
// request/response correlation model.
func (s *Server) Respond(requestID string, payload any) {
	b := mustJSON(payload)
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	env := Envelope{Type: EventResponse, InstanceID: s.instanceID, Timestamp: time.Now(), RequestID: requestID, Payload: b}
	for _, c := range clients {
		c.mu.Lock()
		attached := c.attached
		c.mu.Unlock()
		if attached {
			s.sendTo(c, env)
		}
	}
}

// IsBrowserCommand reports whether cmdType names one of the browser-bridge
// adjunct commands routed through this IPC but handled by an external
// plugin (§1 Non-goals: out of core scope beyond the routing contract).
func IsBrowserCommand(cmdType string) bool {
	return len(cmdType) > len(browserCommandPrefix) && cmdType[:len(browserCommandPrefix)] == browserCommandPrefix
}

// Close stops accepting new connections and closes every live client
// connection, for the Lifecycle shutdown path (§4.J).
func (s *Server) Close() error {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[string]*client)
	s.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close()
	}
	return nil
}

func mustJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
