// Package cs implements the charging station core: the OCPP peer that
// multiplexes an inbound RPC handler, periodic background emitters, a
// bank of per-connector state machines, and an outbound call channel over
// a single WebSocket, under a single-writer concurrency discipline.
package cs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ruslanhut/ocpp-emu/internal/connector"
	"github.com/ruslanhut/ocpp-emu/internal/metrics"
	"github.com/ruslanhut/ocpp-emu/internal/ocpp/v16"
	"github.com/ruslanhut/ocpp-emu/internal/transport"
)

// Configuration keys seeded at construction.
const (
	KeyHeartbeatInterval       = "HeartbeatInterval"
	KeyMeterValuesSampledData  = "MeterValuesSampledData"
	KeyMeterValueSampleInterval = "MeterValueSampleInterval"
	KeyNumberOfConnectors      = "NumberOfConnectors"
	KeyAuthorizeRemoteTxRequests = "AuthorizeRemoteTxRequests"
)

// Identity carries the boot-notification-relevant identity of the
// simulated charging station.
type Identity struct {
	ID                string
	Vendor            string
	Model             string
	ChargeBoxSerial   string
	FirmwareVersion   string
	NumberOfConnectors int
	// TxStartCharge, when non-nil, is the wattage immediately assigned to
	// a freshly started transaction.
	TxStartCharge *float64
}

type command struct {
	fn   func()
	done chan struct{}
}

// ChargingStation owns all mutable state for one simulated charger. Every
// field below is touched only by the run loop goroutine; every exported
// operation submits a closure to cmdCh and blocks for its completion.
type ChargingStation struct {
	identity Identity
	logger   *slog.Logger

	transport *transport.Transport

	connectors            map[int]*connector.Connector
	configuration         map[string]string
	transactionConnector  map[int]int
	connected             bool

	cmdCh  chan command
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	runOnce sync.Once
	stopOnce sync.Once
}

// New constructs a charging station with its connector bank and seeded
// configuration. It does not yet own a transport; call Boot to connect.
func New(identity Identity, logger *slog.Logger) *ChargingStation {
	if logger == nil {
		logger = slog.Default()
	}
	if identity.NumberOfConnectors < 1 {
		identity.NumberOfConnectors = 1
	}

	connectors := make(map[int]*connector.Connector, identity.NumberOfConnectors)
	for i := 1; i <= identity.NumberOfConnectors; i++ {
		connectors[i] = connector.New(i)
	}

	cs := &ChargingStation{
		identity:   identity,
		logger:     logger,
		connectors: connectors,
		configuration: map[string]string{
			KeyHeartbeatInterval:        "600",
			KeyMeterValuesSampledData:   "Power.Offered,Power.Active.Import,Energy.Active.Import.Register,Voltage,SoC",
			KeyMeterValueSampleInterval: "10",
			KeyNumberOfConnectors:       strconv.Itoa(identity.NumberOfConnectors),
			KeyAuthorizeRemoteTxRequests: "false",
		},
		transactionConnector: make(map[int]int),
		cmdCh:                make(chan command, 32),
	}
	return cs
}

// Connected reports whether the station is currently connected to a CSMS.
func (cs *ChargingStation) Connected() bool {
	result := false
	cs.submit(func() { result = cs.connected })
	return result
}

// submit runs fn on the command goroutine and blocks until it completes.
// Internal methods that are already executing on the command goroutine
// must call their unexported counterparts directly instead of submit, to
// avoid deadlocking on an unbuffered round-trip to itself.
func (cs *ChargingStation) submit(fn func()) {
	done := make(chan struct{})
	cs.cmdCh <- command{fn: fn, done: done}
	<-done
}

func (cs *ChargingStation) run() {
	for cmd := range cs.cmdCh {
		cmd.fn()
		close(cmd.done)
	}
}

func (cs *ChargingStation) ensureRunLoop() {
	cs.runOnce.Do(func() {
		go cs.run()
	})
}

// Boot opens the WebSocket to wsURL/id, registers RPC handlers, sends
// BootNotification, bursts StatusNotifications and starts the background
// emitters. It returns false (no error) if the CSMS rejects registration.
func (cs *ChargingStation) Boot(ctx context.Context, wsURL, password string) (bool, error) {
	cs.ensureRunLoop()

	url := fmt.Sprintf("%s/%s", wsURL, cs.identity.ID)
	tp, err := transport.Dial(ctx, url, cs.identity.ID, password, cs.logger)
	if err != nil {
		return false, &BootstrapError{Err: err}
	}

	cs.ctx, cs.cancel = context.WithCancel(context.Background())

	cs.submit(func() {
		cs.transport = tp
		cs.registerHandlers()
	})

	resp, ok, err := tp.Call(ctx, string(v16.ActionBootNotification), v16.BootNotificationRequest{
		ChargePointVendor:     cs.identity.Vendor,
		ChargePointModel:      cs.identity.Model,
		ChargeBoxSerialNumber: cs.identity.ChargeBoxSerial,
		FirmwareVersion:       cs.identity.FirmwareVersion,
	})
	if err != nil {
		tp.Close()
		return false, &BootstrapError{Err: err}
	}
	if !ok {
		tp.Close()
		return false, &BootstrapError{Err: fmt.Errorf("no response to BootNotification")}
	}

	var bootResp v16.BootNotificationResponse
	if err := unmarshalResult(resp, &bootResp); err != nil {
		tp.Close()
		return false, &BootstrapError{Err: err}
	}
	if bootResp.Status == v16.RegistrationStatusRejected {
		tp.Close()
		return false, nil
	}

	cs.submit(func() {
		if bootResp.Interval > 0 {
			cs.configuration[KeyHeartbeatInterval] = strconv.Itoa(bootResp.Interval)
		}
	})

	cs.SendStatusNotification(ctx, 0)

	cs.wg.Add(2)
	go cs.heartbeatLoop()
	go cs.meterValueLoop()

	cs.submit(func() { cs.connected = true })

	return true, nil
}

// Disconnect cancels every background task and closes the transport.
// Idempotent if already disconnected.
func (cs *ChargingStation) Disconnect() {
	cs.stopOnce.Do(func() {
		if cs.cancel != nil {
			cs.cancel()
		}
		cs.wg.Wait()
		cs.submit(func() {
			if cs.transport != nil {
				cs.transport.Close()
			}
			cs.connected = false
		})
	})
}

// StopFCS is the supervisor-level graceful shutdown: unplug every
// connector, wait for trailing messages, then disconnect if still
// connected.
func (cs *ChargingStation) StopFCS(ctx context.Context) {
	var ids []int
	cs.submit(func() {
		for id := range cs.connectors {
			ids = append(ids, id)
		}
	})
	for _, id := range ids {
		cs.Unplug(ctx, id, true)
	}

	select {
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
	}

	if cs.Connected() {
		cs.Disconnect()
	}
}

func (cs *ChargingStation) heartbeatLoop() {
	defer cs.wg.Done()

	select {
	case <-time.After(5 * time.Second):
	case <-cs.ctx.Done():
		return
	}

	for {
		select {
		case <-cs.ctx.Done():
			return
		default:
		}

		var interval time.Duration
		cs.submit(func() {
			if _, _, err := cs.transport.Call(cs.ctx, string(v16.ActionHeartbeat), v16.HeartbeatRequest{}); err != nil {
				cs.logger.Error("heartbeat failed", "error", err)
				metrics.RPCErrors.WithLabelValues(string(v16.ActionHeartbeat)).Inc()
			} else {
				metrics.HeartbeatsSent.Inc()
			}
			interval = cs.heartbeatIntervalLocked()
		})

		select {
		case <-time.After(interval):
		case <-cs.ctx.Done():
			return
		}
	}
}

func (cs *ChargingStation) heartbeatIntervalLocked() time.Duration {
	secs, err := strconv.Atoi(cs.configuration[KeyHeartbeatInterval])
	if err != nil || secs <= 0 {
		secs = 600
	}
	return time.Duration(secs) * time.Second
}

func (cs *ChargingStation) meterValueSampleIntervalLocked() time.Duration {
	secs, err := strconv.Atoi(cs.configuration[KeyMeterValueSampleInterval])
	if err != nil || secs <= 0 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}

func (cs *ChargingStation) meterValueLoop() {
	defer cs.wg.Done()

	for {
		select {
		case <-cs.ctx.Done():
			return
		default:
		}

		var interval time.Duration
		cs.submit(func() {
			for id, conn := range cs.connectors {
				if conn.Status != v16.ChargePointStatusCharging {
					continue
				}
				conn.ConsumeEnergy()
				req := conn.MeterValuesRequest()
				if _, _, err := cs.transport.Call(cs.ctx, string(v16.ActionMeterValues), req); err != nil {
					cs.logger.Error("meter values failed", "connector_id", id, "error", err)
					metrics.RPCErrors.WithLabelValues(string(v16.ActionMeterValues)).Inc()
				} else {
					metrics.MeterValuesSent.WithLabelValues(strconv.Itoa(id)).Inc()
				}
			}
			interval = cs.meterValueSampleIntervalLocked()
		})

		select {
		case <-time.After(interval):
		case <-cs.ctx.Done():
			return
		}
	}
}

// Snapshot is a read-only view of CS state for the internal_state control
// surface operation.
type Snapshot struct {
	Connected  bool                        `json:"connected"`
	Connectors map[int]ConnectorSnapshot   `json:"connectors"`
}

// ConnectorSnapshot is the JSON-friendly view of one connector's state.
type ConnectorSnapshot struct {
	Status               v16.ChargePointStatus `json:"status"`
	PluggedIn            bool                  `json:"pluggedIn"`
	AlreadyStopped       bool                  `json:"alreadyStopped"`
	IDTag                string                `json:"idTag,omitempty"`
	TransactionID        *int                  `json:"transactionId,omitempty"`
	EnergyImportRegister float64               `json:"energyImportRegister"`
	PowerOffered         float64               `json:"powerOffered"`
}

// InternalState returns a snapshot of the whole CS for diagnostics.
func (cs *ChargingStation) InternalState() Snapshot {
	var snap Snapshot
	cs.submit(func() {
		snap.Connected = cs.connected
		snap.Connectors = make(map[int]ConnectorSnapshot, len(cs.connectors))
		for id, conn := range cs.connectors {
			snap.Connectors[id] = ConnectorSnapshot{
				Status:               conn.Status,
				PluggedIn:            conn.PluggedIn,
				AlreadyStopped:       conn.AlreadyStopped,
				IDTag:                conn.IDTag,
				TransactionID:        conn.TransactionID,
				EnergyImportRegister: conn.EnergyImportRegister,
				PowerOffered:         conn.PowerOffered,
			}
		}
	})
	return snap
}
