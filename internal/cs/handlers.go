package cs

import (
	"encoding/json"
	"sort"

	"github.com/ruslanhut/ocpp-emu/internal/connector"
	"github.com/ruslanhut/ocpp-emu/internal/ocpp/v16"
)

// registerHandlers wires every inbound RPC action this station answers.
// Must be called from within a submitted closure, as it runs once during
// Boot before the run loop is otherwise contended.
func (cs *ChargingStation) registerHandlers() {
	cs.transport.RegisterHandler(string(v16.ActionRemoteStartTransaction), cs.onRemoteStartTransaction, cs.afterRemoteStartTransaction)
	cs.transport.RegisterHandler(string(v16.ActionRemoteStopTransaction), cs.onRemoteStopTransaction, cs.afterRemoteStopTransaction)
	cs.transport.RegisterHandler(string(v16.ActionGetConfiguration), cs.onGetConfiguration, nil)
	cs.transport.RegisterHandler(string(v16.ActionChangeConfiguration), cs.onChangeConfiguration, nil)
	cs.transport.RegisterHandler(string(v16.ActionChangeAvailability), cs.onChangeAvailability, cs.afterChangeAvailability)
	cs.transport.RegisterHandler(string(v16.ActionSetChargingProfile), cs.onSetChargingProfile, cs.afterSetChargingProfile)
}

// -- RemoteStartTransaction --------------------------------------------

func (cs *ChargingStation) onRemoteStartTransaction(payload json.RawMessage) (interface{}, error) {
	var req v16.RemoteStartTransactionRequest
	if err := unmarshalResult(payload, &req); err != nil {
		return nil, err
	}

	if req.ConnectorId == nil {
		return v16.RemoteStartTransactionResponse{Status: "Rejected"}, nil
	}
	connectorID := *req.ConnectorId

	status := "Rejected"
	cs.submit(func() {
		if _, ok := cs.connectors[connectorID]; !ok {
			return
		}
		status = "Accepted"
	})

	return v16.RemoteStartTransactionResponse{Status: status}, nil
}

// afterRemoteStartTransaction drives the accepted start. The transport
// dispatches each inbound Call (and its after hook) on its own goroutine,
// so it is safe to submit and then block here on a further outbound Call.
func (cs *ChargingStation) afterRemoteStartTransaction(payload json.RawMessage) {
	var req v16.RemoteStartTransactionRequest
	if err := unmarshalResult(payload, &req); err != nil {
		return
	}

	if req.ConnectorId == nil {
		return
	}
	connectorID := *req.ConnectorId

	var shouldStart bool
	cs.submit(func() {
		conn, ok := cs.connectors[connectorID]
		if !ok {
			return
		}
		conn.PluggedIn = true
		conn.IDTag = req.IdTag
		if conn.Status != v16.ChargePointStatusPreparing {
			conn.Status = v16.ChargePointStatusPreparing
			cs.emitStatusNotificationLocked(cs.ctx, connectorID)
		}
		shouldStart = true
	})

	if shouldStart {
		cs.SendStartTransaction(cs.ctx, connectorID)
	}
}

// -- RemoteStopTransaction -----------------------------------------------

func (cs *ChargingStation) onRemoteStopTransaction(payload json.RawMessage) (interface{}, error) {
	var req v16.RemoteStopTransactionRequest
	if err := unmarshalResult(payload, &req); err != nil {
		return nil, err
	}

	status := "Rejected"
	cs.submit(func() {
		if _, ok := cs.transactionConnector[req.TransactionId]; ok {
			status = "Accepted"
		}
	})

	return v16.RemoteStopTransactionResponse{Status: status}, nil
}

func (cs *ChargingStation) afterRemoteStopTransaction(payload json.RawMessage) {
	var req v16.RemoteStopTransactionRequest
	if err := unmarshalResult(payload, &req); err != nil {
		return
	}

	var connectorID int
	var found bool
	cs.submit(func() {
		connectorID, found = cs.transactionConnector[req.TransactionId]
	})
	if !found {
		return
	}
	cs.SendStopTransaction(cs.ctx, connectorID, v16.ReasonRemote)
}

// -- GetConfiguration / ChangeConfiguration -------------------------------

func (cs *ChargingStation) onGetConfiguration(payload json.RawMessage) (interface{}, error) {
	var req v16.GetConfigurationRequest
	if len(payload) > 0 {
		if err := unmarshalResult(payload, &req); err != nil {
			return nil, err
		}
	}

	var resp v16.GetConfigurationResponse
	cs.submit(func() {
		if len(req.Key) == 0 {
			keys := make([]string, 0, len(cs.configuration))
			for k := range cs.configuration {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				resp.ConfigurationKey = append(resp.ConfigurationKey, v16.KeyValue{Key: k, Value: cs.configuration[k]})
			}
			return
		}
		for _, k := range req.Key {
			if v, ok := cs.configuration[k]; ok {
				resp.ConfigurationKey = append(resp.ConfigurationKey, v16.KeyValue{Key: k, Value: v})
			} else {
				resp.UnknownKey = append(resp.UnknownKey, k)
			}
		}
	})

	return resp, nil
}

func (cs *ChargingStation) onChangeConfiguration(payload json.RawMessage) (interface{}, error) {
	var req v16.ChangeConfigurationRequest
	if err := unmarshalResult(payload, &req); err != nil {
		return nil, err
	}

	cs.submit(func() {
		cs.configuration[req.Key] = req.Value
	})

	return v16.ChangeConfigurationResponse{Status: "Accepted"}, nil
}

// -- ChangeAvailability ----------------------------------------------------

func (cs *ChargingStation) onChangeAvailability(payload json.RawMessage) (interface{}, error) {
	var req v16.ChangeAvailabilityRequest
	if err := unmarshalResult(payload, &req); err != nil {
		return nil, err
	}

	return v16.ChangeAvailabilityResponse{Status: "Accepted"}, nil
}

func (cs *ChargingStation) afterChangeAvailability(payload json.RawMessage) {
	var req v16.ChangeAvailabilityRequest
	if err := unmarshalResult(payload, &req); err != nil {
		return
	}

	cs.submit(func() {
		for _, id := range cs.connectorIDsLocked(req.ConnectorId) {
			conn := cs.connectorOrPanic(id)
			if conn.ChangeAvailability(connector.AvailabilityType(req.Type)) {
				cs.emitStatusNotificationLocked(cs.ctx, id)
			}
		}
	})
}

// connectorIDsLocked returns [id] for a specific connector or every
// connector id in ascending order when id is 0. Must be called with the
// command goroutine's exclusive access already held.
func (cs *ChargingStation) connectorIDsLocked(id int) []int {
	if id != 0 {
		return []int{id}
	}
	ids := make([]int, 0, len(cs.connectors))
	for cid := range cs.connectors {
		ids = append(ids, cid)
	}
	sort.Ints(ids)
	return ids
}

// -- SetChargingProfile -----------------------------------------------------

func (cs *ChargingStation) onSetChargingProfile(payload json.RawMessage) (interface{}, error) {
	var req v16.SetChargingProfileRequest
	if err := unmarshalResult(payload, &req); err != nil {
		return nil, err
	}

	status := "Rejected"
	cs.submit(func() {
		conn, ok := cs.connectors[req.ConnectorId]
		if !ok || !conn.ReadyToCharge() {
			return
		}
		status = "Accepted"
	})

	return v16.SetChargingProfileResponse{Status: status}, nil
}

func (cs *ChargingStation) afterSetChargingProfile(payload json.RawMessage) {
	var req v16.SetChargingProfileRequest
	if err := unmarshalResult(payload, &req); err != nil {
		return
	}
	periods := req.CsChargingProfiles.ChargingSchedule.ChargingSchedulePeriod
	if len(periods) == 0 {
		return
	}
	limit := periods[0].Limit

	cs.submit(func() {
		conn, ok := cs.connectors[req.ConnectorId]
		if !ok || !conn.ReadyToCharge() {
			return
		}
		conn.PowerOffered = limit
		if conn.UpdateStatus() {
			cs.emitStatusNotificationLocked(cs.ctx, req.ConnectorId)
		}
	})
}
