// Package control implements the HTTP surface a human or test harness
// drives the simulated charging station through, mapping CS-level errors
// onto the status codes and bodies this codebase's API layer has always
// used for user-facing rejections.
package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ruslanhut/ocpp-emu/internal/auth"
	"github.com/ruslanhut/ocpp-emu/internal/cs"
	"github.com/ruslanhut/ocpp-emu/internal/ocpp/v16"
	"github.com/ruslanhut/ocpp-emu/internal/sessionplan"
)

// Handler serves the /fcs control surface for one charging station.
type Handler struct {
	station *cs.ChargingStation
	auth    *auth.Service
	logger  *slog.Logger
}

// NewHandler builds a control surface bound to station. authSvc may be a
// disabled Service, in which case every route is open.
func NewHandler(station *cs.ChargingStation, authSvc *auth.Service, logger *slog.Logger) *Handler {
	return &Handler{station: station, auth: authSvc, logger: logger}
}

// Mux builds the routed http.Handler for this station's control surface.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /fcs/connector/{id}/status", h.handleStatus)
	mux.HandleFunc("GET /fcs/connector/{id}/plugin", h.handlePlugin)
	mux.Handle("GET /fcs/connector/{id}/start", h.auth.Middleware(http.HandlerFunc(h.handleStart)))
	mux.Handle("GET /fcs/connector/{id}/set_charging_profile", h.auth.Middleware(http.HandlerFunc(h.handleSetChargingProfile)))
	mux.Handle("GET /fcs/connector/{id}/stop", h.auth.Middleware(http.HandlerFunc(h.handleStop)))
	mux.Handle("GET /fcs/connector/{id}/unplug", h.auth.Middleware(http.HandlerFunc(h.handleUnplug)))
	mux.HandleFunc("POST /fcs/data_transfer", h.handleDataTransfer)
	mux.Handle("GET /fcs/disconnect", h.auth.Middleware(http.HandlerFunc(h.handleDisconnect)))
	mux.HandleFunc("GET /fcs/internal_state", h.handleInternalState)
	mux.Handle("POST /fcs/session_plan", h.auth.Middleware(http.HandlerFunc(h.handleSessionPlan)))

	return mux
}

func (h *Handler) connectorID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	return id, err == nil
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.connectorID(r)
	if !ok {
		http.Error(w, "invalid connector id", http.StatusBadRequest)
		return
	}
	if _, ok := h.station.InternalState().Connectors[id]; !ok {
		http.NotFound(w, r)
		return
	}
	h.station.SendStatusNotification(r.Context(), id)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handlePlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := h.connectorID(r)
	if !ok {
		http.Error(w, "invalid connector id", http.StatusBadRequest)
		return
	}
	rfid := r.URL.Query().Get("rfid")

	if err := h.station.PlugIn(r.Context(), id, rfid); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.connectorID(r)
	if !ok {
		http.Error(w, "invalid connector id", http.StatusBadRequest)
		return
	}
	rfid := r.URL.Query().Get("rfid")

	if err := h.station.SendAuthStart(r.Context(), id, rfid); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetChargingProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.connectorID(r)
	if !ok {
		http.Error(w, "invalid connector id", http.StatusBadRequest)
		return
	}
	limit, err := strconv.ParseFloat(r.URL.Query().Get("limit"), 64)
	if err != nil {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}

	snap := h.station.InternalState()
	conn, ok := snap.Connectors[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if conn.Status != v16.ChargePointStatusPreparing || !conn.PluggedIn {
		writeJSON(w, http.StatusConflict, map[string]string{
			"detail": "Unable to set charging profile: connector not ready to charge",
		})
		return
	}

	if err := h.station.SetChargingProfile(r.Context(), id, limit); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := h.connectorID(r)
	if !ok {
		http.Error(w, "invalid connector id", http.StatusBadRequest)
		return
	}
	reason := v16.Reason(r.URL.Query().Get("reason"))
	if reason == "" {
		reason = v16.ReasonLocal
	}

	if err := h.station.SendStopTransaction(r.Context(), id, reason); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleUnplug(w http.ResponseWriter, r *http.Request) {
	id, ok := h.connectorID(r)
	if !ok {
		http.Error(w, "invalid connector id", http.StatusBadRequest)
		return
	}
	stopTx := true
	if v := r.URL.Query().Get("stop_tx"); v != "" {
		stopTx, _ = strconv.ParseBool(v)
	}

	h.station.Unplug(r.Context(), id, stopTx)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleDataTransfer(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := h.station.SendDataTransfer(r.Context(), payload); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	h.station.Disconnect()
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleInternalState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.station.InternalState())
}

func (h *Handler) handleSessionPlan(w http.ResponseWriter, r *http.Request) {
	var req sessionplan.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	result, err := sessionplan.Run(r.Context(), req, h.logger)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var rejected *cs.RejectedRequestError
	if errors.As(err, &rejected) {
		prefix := "Request rejected by the CS"
		if rejected.Source == cs.SourceCSMS {
			prefix = "Request rejected by the CSMS"
		}
		writeJSON(w, http.StatusConflict, map[string]string{
			"detail": prefix + ": " + rejected.Message,
		})
		return
	}

	h.logger.Error("control surface operation failed", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
