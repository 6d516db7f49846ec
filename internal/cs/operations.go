package cs

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ruslanhut/ocpp-emu/internal/connector"
	"github.com/ruslanhut/ocpp-emu/internal/metrics"
	"github.com/ruslanhut/ocpp-emu/internal/ocpp/v16"
)

// connectorOrPanic returns the connector for id. Callers are expected to
// have validated id already; an unknown id is a programmer error in this
// single-process simulator, not a runtime condition to recover from.
func (cs *ChargingStation) connectorOrPanic(id int) *connector.Connector {
	conn, ok := cs.connectors[id]
	if !ok {
		panic(fmt.Sprintf("cs: unknown connector %d", id))
	}
	return conn
}

// PlugIn marks a connector as plugged in and transitions it to Preparing.
// If rfid is non-empty, it then runs SendAuthStart.
func (cs *ChargingStation) PlugIn(ctx context.Context, connectorID int, rfid string) error {
	var authNeeded bool
	cs.submit(func() {
		conn := cs.connectorOrPanic(connectorID)
		conn.PluggedIn = true
		if conn.Status != v16.ChargePointStatusPreparing {
			conn.Status = v16.ChargePointStatusPreparing
			cs.emitStatusNotificationLocked(ctx, connectorID)
		}
		authNeeded = rfid != ""
	})

	if authNeeded {
		return cs.SendAuthStart(ctx, connectorID, rfid)
	}
	return nil
}

// SendAuthStart authorizes rfid against the CSMS and, on success, starts a
// transaction on connectorID.
func (cs *ChargingStation) SendAuthStart(ctx context.Context, connectorID int, rfid string) error {
	var rejectErr error
	var plugged bool
	cs.submit(func() {
		plugged = cs.connectorOrPanic(connectorID).PluggedIn
	})
	if !plugged {
		return rejected(SourceCS, "Unable to authorize when nothing is plugged in")
	}

	var accepted bool
	var startTxErr error
	cs.submit(func() {
		resp, ok, err := cs.transport.Call(ctx, string(v16.ActionAuthorize), v16.AuthorizeRequest{IdTag: rfid})
		if err != nil {
			rejectErr = err
			return
		}
		if !ok {
			rejectErr = rejected(SourceCSMS, "Could not authorize RFID: %s", rfid)
			return
		}
		var authResp v16.AuthorizeResponse
		if err := unmarshalResult(resp, &authResp); err != nil {
			rejectErr = err
			return
		}
		if authResp.IdTagInfo.Status != v16.AuthorizationStatusAccepted {
			rejectErr = rejected(SourceCSMS, "Could not authorize RFID: %s", rfid)
			return
		}

		conn := cs.connectorOrPanic(connectorID)
		conn.IDTag = rfid
		if conn.Status != v16.ChargePointStatusPreparing {
			conn.Status = v16.ChargePointStatusPreparing
			cs.emitStatusNotificationLocked(ctx, connectorID)
		}
		accepted = true
	})
	if rejectErr != nil {
		return rejectErr
	}
	if !accepted {
		return nil
	}

	startTxErr = cs.SendStartTransaction(ctx, connectorID)
	return startTxErr
}

// SendStartTransaction sends StartTransaction for connectorID and, on a
// successful reply, begins tracking the new transaction. A reply without a
// transactionId is ignored.
func (cs *ChargingStation) SendStartTransaction(ctx context.Context, connectorID int) error {
	var callErr error
	var sleepFiveAndNotify bool

	cs.submit(func() {
		conn := cs.connectorOrPanic(connectorID)
		req := v16.StartTransactionRequest{
			ConnectorId: connectorID,
			IdTag:       conn.IDTag,
			MeterStart:  0,
			Timestamp:   v16.DateTime{Time: time.Now().UTC()},
		}

		resp, ok, err := cs.transport.Call(ctx, string(v16.ActionStartTransaction), req)
		if err != nil {
			callErr = err
			metrics.RPCErrors.WithLabelValues(string(v16.ActionStartTransaction)).Inc()
			return
		}
		if !ok {
			return
		}

		var present struct {
			TransactionId *int `json:"transactionId"`
		}
		if err := json.Unmarshal(resp, &present); err != nil || present.TransactionId == nil {
			return
		}

		var startResp v16.StartTransactionResponse
		if err := unmarshalResult(resp, &startResp); err != nil {
			callErr = err
			return
		}

		txID := startResp.TransactionId
		conn.TransactionID = &txID
		conn.AlreadyStopped = false
		cs.transactionConnector[txID] = connectorID
		metrics.TransactionsStarted.WithLabelValues(strconv.Itoa(connectorID)).Inc()

		if cs.identity.TxStartCharge != nil {
			conn.PowerOffered = *cs.identity.TxStartCharge
			conn.UpdateStatus()
		}
		sleepFiveAndNotify = true
	})
	if callErr != nil {
		return callErr
	}
	if !sleepFiveAndNotify {
		return nil
	}

	select {
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
		return nil
	}

	cs.submit(func() {
		cs.emitStatusNotificationLocked(ctx, connectorID)
	})
	return nil
}

// SendStopTransaction sends StopTransaction for connectorID, preferring a
// pending-stop snapshot over live fields if one exists.
func (cs *ChargingStation) SendStopTransaction(ctx context.Context, connectorID int, reason v16.Reason) error {
	cs.submit(func() {
		conn := cs.connectorOrPanic(connectorID)

		var txID int
		var idTag string
		var energy float64
		hadSnapshot := conn.PendingStopTx != nil

		if hadSnapshot {
			txID = conn.PendingStopTx.TransactionID
			idTag = conn.PendingStopTx.IDTag
			energy = conn.PendingStopTx.EnergyImportRegister
		} else {
			if conn.TransactionID != nil {
				txID = *conn.TransactionID
			}
			idTag = conn.IDTag
			energy = conn.EnergyImportRegister
		}

		req := v16.StopTransactionRequest{
			IdTag:         idTag,
			MeterStop:     int(math.Round(energy)),
			Timestamp:     v16.DateTime{Time: time.Now().UTC()},
			TransactionId: txID,
			Reason:        reason,
		}

		if _, _, err := cs.transport.Call(ctx, string(v16.ActionStopTransaction), req); err != nil {
			cs.logger.Error("stop transaction failed", "connector_id", connectorID, "error", err)
			metrics.RPCErrors.WithLabelValues(string(v16.ActionStopTransaction)).Inc()
		} else {
			metrics.TransactionsStopped.WithLabelValues(strconv.Itoa(connectorID), string(reason)).Inc()
		}

		delete(cs.transactionConnector, txID)

		if hadSnapshot {
			conn.Reset(false)
		} else {
			conn.AlreadyStopped = true
			if conn.Status != v16.ChargePointStatusFinishing {
				conn.Status = v16.ChargePointStatusFinishing
				cs.emitStatusNotificationLocked(ctx, connectorID)
			}
		}
	})
	return nil
}

// Unplug marks a connector unplugged, optionally stopping its live
// transaction first.
func (cs *ChargingStation) Unplug(ctx context.Context, connectorID int, stopTx bool) {
	var alreadyUnplugged bool
	var liveUnstopped bool
	cs.submit(func() {
		conn := cs.connectorOrPanic(connectorID)
		if !conn.PluggedIn {
			alreadyUnplugged = true
			return
		}
		liveUnstopped = conn.TransactionID != nil && !conn.AlreadyStopped
	})
	if alreadyUnplugged {
		cs.logger.Warn("unplug requested on connector that is not plugged in", "connector_id", connectorID)
		return
	}

	if liveUnstopped && stopTx {
		_ = cs.SendStopTransaction(ctx, connectorID, v16.ReasonEVDisconnected)
		cs.submit(func() {
			cs.emitStatusNotificationLocked(ctx, connectorID)
		})
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
	}

	cs.submit(func() {
		conn := cs.connectorOrPanic(connectorID)
		conn.Reset(!stopTx)
		cs.emitStatusNotificationLocked(ctx, connectorID)
	})
}

// SendStatusNotification emits a StatusNotification for connectorID, or
// for every connector in ascending order if connectorID is 0.
func (cs *ChargingStation) SendStatusNotification(ctx context.Context, connectorID int) {
	cs.submit(func() {
		cs.emitStatusNotificationLocked(ctx, connectorID)
	})
}

// emitStatusNotificationLocked must be called from within a submitted
// closure. connectorID 0 means "every connector".
func (cs *ChargingStation) emitStatusNotificationLocked(ctx context.Context, connectorID int) {
	for _, id := range cs.connectorIDsLocked(connectorID) {
		conn := cs.connectorOrPanic(id)
		req := v16.StatusNotificationRequest{
			ConnectorId: id,
			ErrorCode:   conn.ErrorCode,
			Status:      conn.Status,
		}
		if _, _, err := cs.transport.Call(ctx, string(v16.ActionStatusNotification), req); err != nil {
			cs.logger.Error("status notification failed", "connector_id", id, "error", err)
			metrics.RPCErrors.WithLabelValues(string(v16.ActionStatusNotification)).Inc()
			continue
		}
		cs.updateStatusGaugeLocked(id, conn.Status)
	}
}

var allStatuses = []v16.ChargePointStatus{
	v16.ChargePointStatusAvailable, v16.ChargePointStatusPreparing, v16.ChargePointStatusCharging,
	v16.ChargePointStatusSuspendedEVSE, v16.ChargePointStatusSuspendedEV, v16.ChargePointStatusFinishing,
	v16.ChargePointStatusReserved, v16.ChargePointStatusUnavailable, v16.ChargePointStatusFaulted,
}

// updateStatusGaugeLocked sets the gauge for connectorID's current status
// to 1 and every other known status to 0.
func (cs *ChargingStation) updateStatusGaugeLocked(connectorID int, current v16.ChargePointStatus) {
	idStr := strconv.Itoa(connectorID)
	for _, st := range allStatuses {
		value := 0.0
		if st == current {
			value = 1
		}
		metrics.ConnectorStatus.WithLabelValues(idStr, string(st)).Set(value)
	}
}

// ChangeStatus assigns a new status to connectorID and emits a
// StatusNotification if it actually changed.
func (cs *ChargingStation) ChangeStatus(ctx context.Context, connectorID int, newStatus v16.ChargePointStatus) {
	cs.submit(func() {
		conn := cs.connectorOrPanic(connectorID)
		if conn.Status == newStatus {
			return
		}
		conn.Status = newStatus
		cs.emitStatusNotificationLocked(ctx, connectorID)
	})
}

// SendDataTransfer sends a vendor DataTransfer with payload JSON-encoded
// as the Data field.
func (cs *ChargingStation) SendDataTransfer(ctx context.Context, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal data transfer payload: %w", err)
	}

	var callErr error
	cs.submit(func() {
		req := v16.DataTransferRequest{VendorId: cs.identity.Vendor, Data: string(data)}
		if _, _, err := cs.transport.Call(ctx, string(v16.ActionDataTransfer), req); err != nil {
			callErr = err
		}
	})
	return callErr
}

// SetChargingProfile applies the charging profile's first schedule
// period limit to connectorID, the same operation the inbound
// SetChargingProfile RPC handler performs, exposed for quick-start and
// the session-plan driver to invoke directly.
func (cs *ChargingStation) SetChargingProfile(ctx context.Context, connectorID int, limit float64) error {
	var rejectErr error
	cs.submit(func() {
		conn := cs.connectorOrPanic(connectorID)
		if !conn.ReadyToCharge() {
			rejectErr = rejected(SourceCS, "connector not ready to charge")
			return
		}
		conn.PowerOffered = limit
		if conn.UpdateStatus() {
			cs.emitStatusNotificationLocked(ctx, connectorID)
		}
	})
	return rejectErr
}
