// Package transport implements the OCPP 1.6-J JSON-RPC channel over a
// single WebSocket connection: outbound Call/await-reply, and inbound
// Call dispatch to registered per-action handlers.
package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/ruslanhut/ocpp-emu/internal/ocpp"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 90 * time.Second
	pingInterval = 30 * time.Second
	sendQueueLen = 64
)

// OnHandler computes the synchronous reply for an inbound Call. It returns
// the payload to marshal into a CallResult, or an error to surface as a
// CallError.
type OnHandler func(payload json.RawMessage) (interface{}, error)

// AfterHandler runs once the CallResult for the same Call has been
// transmitted. It may itself invoke Call to start further outbound calls.
type AfterHandler func(payload json.RawMessage)

type registration struct {
	on    OnHandler
	after AfterHandler
}

type pendingCall struct {
	result json.RawMessage
	err    *ocpp.CallError
}

// Transport is a single WebSocket-backed OCPP JSON-RPC channel.
type Transport struct {
	logger *slog.Logger
	validate *validator.Validate

	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	sendQueue chan []byte
	closeOnce sync.Once
	closed    chan struct{}

	handlersMu sync.RWMutex
	handlers   map[string]registration

	pendingMu sync.Mutex
	pending   map[string]chan pendingCall
}

// Dial opens the WebSocket connection to wsURL with the OCPP 1.6 subprotocol
// and HTTP Basic auth, and starts the read/write pumps.
func Dial(ctx context.Context, wsURL, username, password string, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	headers := http.Header{}
	headers.Set("Authorization", basicAuth(username, password))

	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
		Subprotocols:     []string{"ocpp1.6"},
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	tctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		logger:    logger,
		validate:  validator.New(),
		conn:      conn,
		ctx:       tctx,
		cancel:    cancel,
		sendQueue: make(chan []byte, sendQueueLen),
		closed:    make(chan struct{}),
		handlers:  make(map[string]registration),
		pending:   make(map[string]chan pendingCall),
	}

	go t.readPump()
	go t.writePump()

	return t, nil
}

// RegisterHandler attaches the on/after hook pair for an inbound Action.
// after may be nil.
func (t *Transport) RegisterHandler(action string, on OnHandler, after AfterHandler) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[action] = registration{on: on, after: after}
}

// Call serializes req as an outbound Call for action, validates it against
// its struct tags, and blocks until the matching CallResult/CallError
// arrives or ctx is cancelled. ok is false on transport-layer absence of a
// reply.
func (t *Transport) Call(ctx context.Context, action string, req interface{}) (result json.RawMessage, ok bool, err error) {
	if err := t.validate.Struct(req); err != nil {
		return nil, false, fmt.Errorf("validate %s request: %w", action, err)
	}

	call, err := ocpp.NewCall(action, req)
	if err != nil {
		return nil, false, fmt.Errorf("build %s call: %w", action, err)
	}

	data, err := call.ToBytes()
	if err != nil {
		return nil, false, fmt.Errorf("marshal %s call: %w", action, err)
	}

	replyCh := make(chan pendingCall, 1)
	t.pendingMu.Lock()
	t.pending[call.UniqueID] = replyCh
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, call.UniqueID)
		t.pendingMu.Unlock()
	}()

	if sendErr := t.send(data); sendErr != nil {
		return nil, false, sendErr
	}

	select {
	case reply := <-replyCh:
		if reply.err != nil {
			t.logger.Warn("call rejected by peer", "action", action, "error_code", reply.err.ErrorCode, "description", reply.err.ErrorDesc)
			return nil, false, nil
		}
		return reply.result, true, nil
	case <-ctx.Done():
		return nil, false, nil
	case <-t.closed:
		return nil, false, nil
	}
}

// Close shuts the transport down, idempotently.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		close(t.closed)
		if t.conn != nil {
			_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			err = t.conn.Close()
		}
	})
	return err
}

func (t *Transport) send(data []byte) error {
	select {
	case t.sendQueue <- data:
		return nil
	case <-t.closed:
		return fmt.Errorf("transport closed")
	case <-time.After(writeTimeout):
		return fmt.Errorf("send queue full")
	}
}

func (t *Transport) readPump() {
	defer t.Close()

	t.conn.SetReadDeadline(time.Now().Add(readTimeout))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Error("websocket read error", "error", err)
			}
			return
		}
		t.conn.SetReadDeadline(time.Now().Add(readTimeout))
		t.dispatch(data)
	}
}

func (t *Transport) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return

		case data, ok := <-t.sendQueue:
			if !ok {
				return
			}
			t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.logger.Error("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

// dispatch routes one inbound frame: Call to the registered handler,
// CallResult/CallError to the pending Call() waiter.
func (t *Transport) dispatch(data []byte) {
	msg, err := ocpp.ParseMessage(data)
	if err != nil {
		t.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	switch m := msg.(type) {
	case *ocpp.Call:
		// Handling an incoming Call may itself block on a further outbound
		// Call (e.g. RemoteStartTransaction triggering StartTransaction),
		// whose reply only this same read loop can deliver. Run it on its
		// own goroutine so the read loop is always free to keep dispatching.
		go t.handleIncomingCall(m)
	case *ocpp.CallResult:
		t.resolvePending(m.UniqueID, pendingCall{result: m.Payload})
	case *ocpp.CallError:
		t.resolvePending(m.UniqueID, pendingCall{err: m})
	}
}

func (t *Transport) handleIncomingCall(call *ocpp.Call) {
	t.handlersMu.RLock()
	reg, ok := t.handlers[call.Action]
	t.handlersMu.RUnlock()

	if !ok || reg.on == nil {
		errMsg, _ := ocpp.NewCallError(call.UniqueID, ocpp.ErrorCodeNotImplemented, "action not implemented: "+call.Action, nil)
		t.sendMessage(errMsg)
		return
	}

	resp, err := reg.on(call.Payload)
	if err != nil {
		errMsg, _ := ocpp.NewCallError(call.UniqueID, ocpp.ErrorCodeInternalError, err.Error(), nil)
		t.sendMessage(errMsg)
		return
	}

	result, err := ocpp.NewCallResult(call.UniqueID, resp)
	if err != nil {
		t.logger.Error("failed to build call result", "action", call.Action, "error", err)
		return
	}
	t.sendMessage(result)

	if reg.after != nil {
		reg.after(call.Payload)
	}
}

func (t *Transport) sendMessage(m interface {
	ToBytes() ([]byte, error)
}) {
	data, err := m.ToBytes()
	if err != nil {
		t.logger.Error("failed to marshal outbound frame", "error", err)
		return
	}
	if err := t.send(data); err != nil {
		t.logger.Error("failed to queue outbound frame", "error", err)
	}
}

func (t *Transport) resolvePending(uniqueID string, reply pendingCall) {
	t.pendingMu.Lock()
	ch, ok := t.pending[uniqueID]
	if ok {
		delete(t.pending, uniqueID)
	}
	t.pendingMu.Unlock()

	if !ok {
		t.logger.Debug("no pending call for reply", "unique_id", uniqueID)
		return
	}
	ch <- reply
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
