package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ruslanhut/ocpp-emu/internal/ocpp"
	"github.com/ruslanhut/ocpp-emu/internal/ocpp/v16"
)

// fakeCSMS is a minimal CSMS endpoint that accepts the WebSocket upgrade and
// hands each server-side connection to the test, which reads Calls and
// writes any replies itself, so tests can drive a real Transport against a
// real WebSocket connection.
type fakeCSMS struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
}

func newFakeCSMS(t *testing.T) *fakeCSMS {
	t.Helper()
	f := &fakeCSMS{conns: make(chan *websocket.Conn, 1)}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		f.conns <- conn
	}))
	return f
}

func (f *fakeCSMS) wsURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeCSMS) close() {
	f.server.Close()
}

func TestCallRoundTrip(t *testing.T) {
	csms := newFakeCSMS(t)
	defer csms.close()

	tr, err := Dial(context.Background(), csms.wsURL(), "CS-1", "secret", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	serverConn := <-csms.conns

	go func() {
		_, data, err := serverConn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := ocpp.ParseMessage(data)
		if err != nil {
			t.Errorf("server failed to parse call: %v", err)
			return
		}
		call, ok := msg.(*ocpp.Call)
		if !ok {
			t.Errorf("expected a Call, got %T", msg)
			return
		}
		result, _ := ocpp.NewCallResult(call.UniqueID, v16.BootNotificationResponse{
			Status:      v16.RegistrationStatusAccepted,
			CurrentTime: v16.DateTime{Time: time.Now()},
			Interval:    300,
		})
		data, _ = result.ToBytes()
		serverConn.WriteMessage(websocket.TextMessage, data)
	}()

	resp, ok, err := tr.Call(context.Background(), string(v16.ActionBootNotification), v16.BootNotificationRequest{
		ChargePointVendor: "Acme",
		ChargePointModel:  "Model X",
	})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a reply")
	}

	var bootResp v16.BootNotificationResponse
	if err := json.Unmarshal(resp, &bootResp); err != nil {
		t.Fatalf("unmarshal boot response: %v", err)
	}
	if bootResp.Status != v16.RegistrationStatusAccepted {
		t.Errorf("expected Accepted, got %s", bootResp.Status)
	}
}

func TestCallTimesOutWithoutReply(t *testing.T) {
	csms := newFakeCSMS(t)
	defer csms.close()

	tr, err := Dial(context.Background(), csms.wsURL(), "CS-1", "secret", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()
	<-csms.conns

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, ok, err := tr.Call(ctx, string(v16.ActionHeartbeat), v16.HeartbeatRequest{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ok {
		t.Error("expected ok=false when no reply arrives before context cancellation")
	}
}

func TestRegisterHandlerRespondsToIncomingCall(t *testing.T) {
	csms := newFakeCSMS(t)
	defer csms.close()

	tr, err := Dial(context.Background(), csms.wsURL(), "CS-1", "secret", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()
	serverConn := <-csms.conns

	afterCalled := make(chan struct{}, 1)
	tr.RegisterHandler(string(v16.ActionRemoteStartTransaction), func(payload json.RawMessage) (interface{}, error) {
		return v16.RemoteStartTransactionResponse{Status: "Accepted"}, nil
	}, func(payload json.RawMessage) {
		afterCalled <- struct{}{}
	})

	connectorID := 1
	call, _ := ocpp.NewCall(string(v16.ActionRemoteStartTransaction), v16.RemoteStartTransactionRequest{
		ConnectorId: &connectorID,
		IdTag:       "AABBCC",
	})
	data, _ := call.ToBytes()
	serverConn.WriteMessage(websocket.TextMessage, data)

	serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, reply, err := serverConn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a reply from the station: %v", err)
	}
	msg, err := ocpp.ParseMessage(reply)
	if err != nil {
		t.Fatalf("parse reply: %v", err)
	}
	result, ok := msg.(*ocpp.CallResult)
	if !ok {
		t.Fatalf("expected a CallResult, got %T", msg)
	}

	var resp v16.RemoteStartTransactionResponse
	if err := json.Unmarshal(result.Payload, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "Accepted" {
		t.Errorf("expected Accepted, got %s", resp.Status)
	}

	select {
	case <-afterCalled:
	case <-time.After(2 * time.Second):
		t.Error("expected after-hook to run")
	}
}
