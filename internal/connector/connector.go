// Package connector holds the pure per-outlet state of a simulated
// charging station. A Connector carries no lock: it is only ever touched
// from the charging station's single command goroutine.
package connector

import (
	"github.com/ruslanhut/ocpp-emu/internal/meter"
	"github.com/ruslanhut/ocpp-emu/internal/ocpp/v16"
)

// AvailabilityType mirrors the OCPP ChangeAvailability.Type enum.
type AvailabilityType string

const (
	AvailabilityOperative   AvailabilityType = "Operative"
	AvailabilityInoperative AvailabilityType = "Inoperative"
)

// PendingStop is the snapshot of a live transaction captured when a
// connector is unplugged without sending an immediate StopTransaction.
type PendingStop struct {
	IDTag               string
	TransactionID       int
	EnergyImportRegister float64
}

// Connector is one physical outlet of a charging station.
type Connector struct {
	ID int

	Status    v16.ChargePointStatus
	ErrorCode v16.ChargePointErrorCode

	PluggedIn      bool
	AlreadyStopped bool

	IDTag         string
	TransactionID *int

	EnergyImportRegister float64
	PowerOffered         float64

	PendingStopTx *PendingStop

	ChangeToUnavailable bool
}

// New creates a connector in its initial resting state.
func New(id int) *Connector {
	return &Connector{
		ID:             id,
		Status:         v16.ChargePointStatusAvailable,
		ErrorCode:      v16.ChargePointErrorNoError,
		AlreadyStopped: true,
	}
}

// Reset returns the connector to its initial resting shape. If
// postponeStopTx is true and a transaction is live, its identifying
// fields are captured into PendingStopTx before clearing.
func (c *Connector) Reset(postponeStopTx bool) {
	c.PendingStopTx = nil
	if postponeStopTx && c.TransactionID != nil && !c.AlreadyStopped {
		c.PendingStopTx = &PendingStop{
			IDTag:                c.IDTag,
			TransactionID:        *c.TransactionID,
			EnergyImportRegister: c.EnergyImportRegister,
		}
	}

	c.IDTag = ""
	c.TransactionID = nil

	c.EnergyImportRegister = 0
	c.PowerOffered = 0
	c.ErrorCode = v16.ChargePointErrorNoError

	c.PluggedIn = false
	c.AlreadyStopped = true

	if c.ChangeToUnavailable {
		c.Status = v16.ChargePointStatusUnavailable
	} else {
		c.Status = v16.ChargePointStatusAvailable
	}
}

// ReadyToCharge reports whether the connector is plugged in and awaiting
// a charging profile.
func (c *Connector) ReadyToCharge() bool {
	return c.Status == v16.ChargePointStatusPreparing && c.PluggedIn
}

// ConsumeEnergy simulates one metering tick. Only positive offered power
// contributes; sentinel values leave the register untouched.
func (c *Connector) ConsumeEnergy() {
	if c.PowerOffered > 0 {
		c.EnergyImportRegister += c.PowerOffered
	}
}

// UpdateStatus derives the next status from PowerOffered and reports
// whether it changed. Idempotent: a second call with the same offered
// power returns false.
func (c *Connector) UpdateStatus() bool {
	var target v16.ChargePointStatus
	switch c.PowerOffered {
	case 0:
		target = v16.ChargePointStatusSuspendedEVSE
	case -1:
		target = v16.ChargePointStatusSuspendedEV
	case -2:
		target = v16.ChargePointStatusFinishing
	default:
		target = v16.ChargePointStatusCharging
	}

	if target == c.Status {
		return false
	}
	c.Status = target
	return true
}

// ChangeAvailability applies an OCPP ChangeAvailability request to the
// connector and reports whether its status changed immediately.
func (c *Connector) ChangeAvailability(t AvailabilityType) bool {
	switch t {
	case AvailabilityInoperative:
		if c.Status == v16.ChargePointStatusAvailable {
			c.Status = v16.ChargePointStatusUnavailable
			return true
		}
		c.ChangeToUnavailable = true
	case AvailabilityOperative:
		if c.Status == v16.ChargePointStatusUnavailable {
			c.Status = v16.ChargePointStatusAvailable
			c.ChangeToUnavailable = false
			return true
		}
	}
	return false
}

// MeterValuesRequest builds the MeterValues payload for this connector's
// current power/energy snapshot.
func (c *Connector) MeterValuesRequest() v16.MeterValuesRequest {
	return v16.MeterValuesRequest{
		ConnectorId:   c.ID,
		TransactionId: c.TransactionID,
		MeterValue:    meter.Generate(c.PowerOffered, c.EnergyImportRegister),
	}
}
