// Package sessionplan drives a short-lived charging station through a
// scripted sequence of steps, each line a verb and its arguments, run
// sequentially on its own goroutine rather than the station's command
// goroutine.
package sessionplan

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ruslanhut/ocpp-emu/internal/cs"
	"github.com/ruslanhut/ocpp-emu/internal/ocpp/v16"
)

// Request is the body of POST /fcs/session_plan: the identity of a fresh
// charging station plus the steps to run against it once booted.
type Request struct {
	CSID       string     `json:"cs_id"`
	Vendor     string     `json:"vendor"`
	Model      string     `json:"model"`
	WSURL      string     `json:"ws_url"`
	Password   string     `json:"password"`
	Connectors int        `json:"connectors"`
	Steps      [][]string `json:"steps"`
}

// Result reports the outcome of one session plan run.
type Result struct {
	Registered bool `json:"registered"`
}

// Run boots a fresh charging station for req, executes its steps in
// order, and disconnects it whether or not the last step already did.
func Run(ctx context.Context, req Request, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("cs_id", req.CSID)
	logger.Info("executing session plan", "steps", len(req.Steps))

	connectors := req.Connectors
	if connectors < 1 {
		connectors = 1
	}

	station := cs.New(cs.Identity{
		ID:                 req.CSID,
		Vendor:             req.Vendor,
		Model:              req.Model,
		NumberOfConnectors: connectors,
	}, logger)

	registered, err := station.Boot(ctx, req.WSURL, req.Password)
	if err != nil {
		return Result{}, fmt.Errorf("boot session plan station: %w", err)
	}
	defer station.Disconnect()

	if !registered {
		logger.Warn("session plan station was not registered by the CSMS")
		return Result{Registered: false}, nil
	}

	for i, step := range req.Steps {
		if len(step) == 0 {
			continue
		}
		if err := runStep(ctx, station, step, logger); err != nil {
			logger.Error("session plan step failed", "index", i, "step", step, "error", err)
			return Result{Registered: true}, err
		}
	}

	logger.Info("finished session plan")
	return Result{Registered: true}, nil
}

func runStep(ctx context.Context, station *cs.ChargingStation, step []string, logger *slog.Logger) error {
	verb := step[0]
	switch verb {
	case "status":
		// Placeholder verb kept for parity with scripted plans that
		// annotate a point in the sequence without driving any action.

	case "plugin":
		if len(step) < 3 {
			return fmt.Errorf("plugin step requires connector id and rfid: %v", step)
		}
		id, err := strconv.Atoi(step[1])
		if err != nil {
			return fmt.Errorf("plugin step: invalid connector id %q: %w", step[1], err)
		}
		return station.PlugIn(ctx, id, step[2])

	case "stop":
		if len(step) < 2 {
			return fmt.Errorf("stop step requires connector id: %v", step)
		}
		id, err := strconv.Atoi(step[1])
		if err != nil {
			return fmt.Errorf("stop step: invalid connector id %q: %w", step[1], err)
		}
		reason := v16.ReasonLocal
		if len(step) == 3 && step[2] != "" {
			reason = v16.Reason(step[2])
		}
		return station.SendStopTransaction(ctx, id, reason)

	case "unplug":
		if len(step) < 2 {
			return fmt.Errorf("unplug step requires connector id: %v", step)
		}
		id, err := strconv.Atoi(step[1])
		if err != nil {
			return fmt.Errorf("unplug step: invalid connector id %q: %w", step[1], err)
		}
		stopTx := true
		if len(step) == 3 && step[2] != "" {
			parsed, err := strconv.ParseBool(step[2])
			if err != nil {
				return fmt.Errorf("unplug step: invalid stop_tx %q: %w", step[2], err)
			}
			stopTx = parsed
		}
		station.Unplug(ctx, id, stopTx)
		return nil

	case "charge":
		if len(step) < 3 {
			return fmt.Errorf("charge step requires connector id and limit: %v", step)
		}
		id, err := strconv.Atoi(step[1])
		if err != nil {
			return fmt.Errorf("charge step: invalid connector id %q: %w", step[1], err)
		}
		limit, err := strconv.ParseFloat(step[2], 64)
		if err != nil {
			return fmt.Errorf("charge step: invalid limit %q: %w", step[2], err)
		}
		return station.SetChargingProfile(ctx, id, limit)

	case "wait":
		if len(step) < 2 {
			return fmt.Errorf("wait step requires seconds: %v", step)
		}
		secs, err := strconv.Atoi(step[1])
		if err != nil {
			return fmt.Errorf("wait step: invalid seconds %q: %w", step[1], err)
		}
		logger.Info("waiting", "seconds", secs)
		select {
		case <-time.After(time.Duration(secs) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}

	case "disconnect":
		station.Disconnect()

	default:
		logger.Warn("skipping unsupported session plan step", "step", step)
	}
	return nil
}
