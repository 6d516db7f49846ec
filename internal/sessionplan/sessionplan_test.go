package sessionplan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ruslanhut/ocpp-emu/internal/ocpp"
	"github.com/ruslanhut/ocpp-emu/internal/ocpp/v16"
)

type fakeCSMS struct {
	server    *httptest.Server
	upgrader  websocket.Upgrader
	conn      *websocket.Conn
	ready     chan struct{}
	responses map[string]interface{}
}

func newFakeCSMS(t *testing.T) *fakeCSMS {
	t.Helper()
	f := &fakeCSMS{ready: make(chan struct{}), responses: map[string]interface{}{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conn = conn
		close(f.ready)
		go f.serve()
	}))
	return f
}

func (f *fakeCSMS) serve() {
	for {
		_, data, err := f.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := ocpp.ParseMessage(data)
		if err != nil {
			continue
		}
		call, ok := msg.(*ocpp.Call)
		if !ok {
			continue
		}
		resp, ok := f.responses[call.Action]
		if !ok {
			resp = map[string]string{"status": "Accepted"}
		}
		result, _ := ocpp.NewCallResult(call.UniqueID, resp)
		out, _ := result.ToBytes()
		f.conn.WriteMessage(websocket.TextMessage, out)
	}
}

func (f *fakeCSMS) wsURL() string { return "ws" + strings.TrimPrefix(f.server.URL, "http") }
func (f *fakeCSMS) close()        { f.server.Close() }

func TestRunExecutesStepsInOrder(t *testing.T) {
	csms := newFakeCSMS(t)
	defer csms.close()
	csms.responses[string(v16.ActionBootNotification)] = v16.BootNotificationResponse{
		Status:      v16.RegistrationStatusAccepted,
		CurrentTime: v16.DateTime{Time: time.Now()},
		Interval:    600,
	}
	csms.responses[string(v16.ActionAuthorize)] = v16.AuthorizeResponse{
		IdTagInfo: v16.IdTagInfo{Status: v16.AuthorizationStatusAccepted},
	}
	csms.responses[string(v16.ActionStartTransaction)] = v16.StartTransactionResponse{
		IdTagInfo:     v16.IdTagInfo{Status: v16.AuthorizationStatusAccepted},
		TransactionId: 7,
	}

	req := Request{
		CSID:       "CS-PLAN",
		Vendor:     "V",
		Model:      "M",
		WSURL:      csms.wsURL(),
		Connectors: 1,
		Steps: [][]string{
			{"status"},
			{"plugin", "1", "AABBCC"},
			{"wait", "0"},
			{"unplug", "1", "false"},
			{"disconnect"},
		},
	}

	result, err := Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !result.Registered {
		t.Error("expected the station to have registered")
	}
}

func TestRunRejectsBadStep(t *testing.T) {
	csms := newFakeCSMS(t)
	defer csms.close()
	csms.responses[string(v16.ActionBootNotification)] = v16.BootNotificationResponse{
		Status:      v16.RegistrationStatusAccepted,
		CurrentTime: v16.DateTime{Time: time.Now()},
		Interval:    600,
	}

	req := Request{
		CSID:       "CS-PLAN-2",
		Vendor:     "V",
		Model:      "M",
		WSURL:      csms.wsURL(),
		Connectors: 1,
		Steps: [][]string{
			{"plugin", "not-a-number", "AABBCC"},
		},
	}

	_, err := Run(context.Background(), req, nil)
	if err == nil {
		t.Error("expected an error for a non-numeric connector id")
	}
}
