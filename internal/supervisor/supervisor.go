// Package supervisor owns the single charging station instance a process
// runs, sequencing its boot, optional quick-start, and graceful shutdown.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/ruslanhut/ocpp-emu/internal/config"
	"github.com/ruslanhut/ocpp-emu/internal/cs"
)

// Supervisor wraps one ChargingStation with the process-level lifecycle
// around it: deferred boot for on-demand stations, quick-start sequencing,
// and a bounded-grace shutdown.
type Supervisor struct {
	cfg    *config.Settings
	logger *slog.Logger

	station *cs.ChargingStation
}

// New builds a Supervisor and its ChargingStation. The station is not
// booted yet; call Start.
func New(cfg *config.Settings, logger *slog.Logger) *Supervisor {
	station := cs.New(cs.Identity{
		ID:                 cfg.CSID,
		Vendor:             cfg.Vendor,
		Model:              cfg.Model,
		NumberOfConnectors: cfg.Connectors,
		TxStartCharge:      cfg.QuickStartCharging,
	}, logger)

	return &Supervisor{cfg: cfg, logger: logger, station: station}
}

// Station returns the supervised charging station, for wiring into the
// control surface.
func (s *Supervisor) Station() *cs.ChargingStation {
	return s.station
}

// Start boots the station unless the configuration defers connection to
// a session plan (OnDemand), and runs the quick-start sequence if asked.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cfg.OnDemand {
		s.logger.Info("on_demand set, deferring boot to a session plan")
		return nil
	}

	registered, err := s.station.Boot(ctx, s.cfg.WSURL, s.cfg.Password)
	if err != nil {
		return err
	}
	if !registered {
		s.logger.Warn("station was not registered by the CSMS")
		return nil
	}

	if s.cfg.QuickStart {
		go s.runQuickStart(ctx)
	}
	return nil
}

// runQuickStart plugs in and, if a wattage was configured, applies a
// charging profile directly, bypassing the CSMS RemoteStartTransaction
// round-trip, the same shortcut a bench operator uses to get a connector
// into Charging without a real back office.
func (s *Supervisor) runQuickStart(ctx context.Context) {
	select {
	case <-time.After(3 * time.Second):
	case <-ctx.Done():
		return
	}

	if err := s.station.PlugIn(ctx, s.cfg.QuickStartConnector, s.cfg.QuickStartRFID); err != nil {
		s.logger.Error("quick start plug-in failed", "error", err)
		return
	}

	if s.cfg.QuickStartCharging == nil {
		return
	}

	select {
	case <-time.After(3 * time.Second):
	case <-ctx.Done():
		return
	}

	if err := s.station.SetChargingProfile(ctx, s.cfg.QuickStartConnector, *s.cfg.QuickStartCharging); err != nil {
		s.logger.Error("quick start charging profile failed", "error", err)
	}
}

// Stop gracefully shuts the station down, bounded by a grace period after
// which the transport is forced closed regardless.
func (s *Supervisor) Stop(grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.station.StopFCS(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		s.logger.Warn("graceful shutdown exceeded grace period, forcing disconnect")
		s.station.Disconnect()
	}
}
