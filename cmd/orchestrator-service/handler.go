package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"av-trip/internal/orchestrator/domain"
	"av-trip/internal/orchestrator/service"
	"av-trip/internal/registry/eligibility"
	"av-trip/internal/registry/fleet"
	"av-trip/internal/registry/portcap"
	"av-trip/pkg/auth"
	"av-trip/pkg/faults"
	"av-trip/pkg/logger"
)

// Handler exposes the orchestrator and the three registries over HTTP.
// Handlers only decode, resolve the caller principal and encode; every
// rule lives in the service and registry layers.
type Handler struct {
	orchestrator *service.Orchestrator
	eligibility  *eligibility.Registry
	ports        *portcap.Registry
	fleet        *fleet.Registry
	logger       logger.Logger
}

func NewHandler(
	orchestrator *service.Orchestrator,
	eligibilityReg *eligibility.Registry,
	portReg *portcap.Registry,
	fleetReg *fleet.Registry,
	log logger.Logger,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		eligibility:  eligibilityReg,
		ports:        portReg,
		fleet:        fleetReg,
		logger:       log,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// caller resolves the authenticated principal or writes a 401.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		http.Error(w, "Unauthorized - missing claims", http.StatusUnauthorized)
		return "", false
	}
	return claims.Principal, true
}

// --- Trip lifecycle ---

type createReservationRequest struct {
	TripID            string `json:"trip_id"`
	Rider             string `json:"rider"`
	OriginPort        string `json:"origin_port"`
	DestinationPort   string `json:"destination_port"`
	VehicleID         string `json:"vehicle_id"`
	RiderCredential   string `json:"rider_credential"`
	OriginCredential  string `json:"origin_credential"`
	VehicleCredential string `json:"vehicle_credential"`
}

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	dto, err := h.orchestrator.CreateReservation(r.Context(), service.CreateReservationCommand{
		Caller:            principal,
		TripID:            req.TripID,
		Rider:             req.Rider,
		OriginPort:        req.OriginPort,
		DestinationPort:   req.DestinationPort,
		VehicleID:         req.VehicleID,
		RiderCredential:   req.RiderCredential,
		OriginCredential:  req.OriginCredential,
		VehicleCredential: req.VehicleCredential,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

type credentialRequest struct {
	Credential string `json:"credential"`
}

func (h *Handler) StartTrip(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	dto, err := h.orchestrator.StartTrip(r.Context(), principal, r.PathValue("trip_id"), req.Credential)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	dto, err := h.orchestrator.CompleteTrip(r.Context(), principal, r.PathValue("trip_id"), req.Credential)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) CancelTrip(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}

	dto, err := h.orchestrator.CancelTrip(r.Context(), principal, r.PathValue("trip_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) ReconcileTrip(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	dto, err := h.orchestrator.ReconcileTrip(r.Context(), principal, r.PathValue("trip_id"), req.Credential)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetTrip(w http.ResponseWriter, r *http.Request) {
	dto, err := h.orchestrator.GetTrip(r.Context(), r.PathValue("trip_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) ListTrips(w http.ResponseWriter, r *http.Request) {
	status := domain.TripStatus(r.URL.Query().Get("status"))
	dtos, err := h.orchestrator.ListTripsByStatus(r.Context(), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orchestrator.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Administration ---

type setOperatorRequest struct {
	NewOperator string `json:"new_operator"`
}

func (h *Handler) SetOperator(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req setOperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.orchestrator.SetOperator(principal, req.NewOperator); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"operator": req.NewOperator})
}

func (h *Handler) ReleaseVehicle(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.orchestrator.ReleaseVehicle(r.Context(), principal, r.PathValue("vehicle_id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"vehicle_id": r.PathValue("vehicle_id"), "state": "PARKED"})
}

// --- Rider eligibility registry ---

type setEligibilityRequest struct {
	Eligible   bool   `json:"eligible"`
	Credential string `json:"credential,omitempty"`
}

func (h *Handler) SetEligibility(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req setEligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rider := r.PathValue("rider")
	if req.Credential != "" {
		eligible, err := h.eligibility.SetEligibilityFromCredential(principal, rider, req.Credential)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"rider": rider, "eligible": eligible})
		return
	}

	if err := h.eligibility.SetEligibility(principal, rider, req.Eligible); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rider": rider, "eligible": req.Eligible})
}

func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	rider := r.PathValue("rider")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rider":    rider,
		"eligible": h.eligibility.IsEligible(rider),
	})
}

type rotateIssuerRequest struct {
	NewIssuer string `json:"new_issuer"`
}

func (h *Handler) RotateIssuer(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req rotateIssuerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.eligibility.RotateIssuer(principal, req.NewIssuer); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"issuer": req.NewIssuer})
}

// --- Port capacity registry ---

type registerPortRequest struct {
	ID           string `json:"id"`
	TotalLanding int    `json:"total_landing_slots"`
	TotalParking int    `json:"total_parking_slots"`
	Credential   string `json:"credential"`
}

func (h *Handler) RegisterPort(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req registerPortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.ports.RegisterPort(principal, req.ID, req.TotalLanding, req.TotalParking, req.Credential); err != nil {
		h.writeError(w, err)
		return
	}
	state, err := h.ports.GetState(req.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

type applyDeltaRequest struct {
	Credential   string `json:"credential"`
	LandingDelta int    `json:"landing_delta"`
	ParkingDelta int    `json:"parking_delta"`
}

func (h *Handler) ApplyPortDelta(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req applyDeltaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	portID := r.PathValue("port_id")
	if err := h.ports.ApplyDelta(principal, portID, req.Credential, req.LandingDelta, req.ParkingDelta); err != nil {
		h.writeError(w, err)
		return
	}
	state, err := h.ports.GetState(portID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) GetPort(w http.ResponseWriter, r *http.Request) {
	state, err := h.ports.GetState(r.PathValue("port_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// --- Fleet state registry ---

type registerVehicleRequest struct {
	ID          string `json:"id"`
	InitialPort string `json:"initial_port"`
	Credential  string `json:"credential"`
}

func (h *Handler) RegisterVehicle(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req registerVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.fleet.RegisterVehicle(principal, req.ID, req.InitialPort, req.Credential); err != nil {
		h.writeError(w, err)
		return
	}
	state, err := h.fleet.GetState(req.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (h *Handler) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.fleet.SetMaintenance(principal, r.PathValue("vehicle_id")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeVehicle(w, r.PathValue("vehicle_id"))
}

func (h *Handler) FinishMaintenance(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.fleet.FinishMaintenance(principal, r.PathValue("vehicle_id")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeVehicle(w, r.PathValue("vehicle_id"))
}

func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	h.writeVehicle(w, r.PathValue("vehicle_id"))
}

func (h *Handler) writeVehicle(w http.ResponseWriter, vehicleID string) {
	state, err := h.fleet.GetState(vehicleID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// --- Helpers ---

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.logger.Error("request_failed", err)
	http.Error(w, err.Error(), mapErrorToStatusCode(err))
}

// mapErrorToStatusCode maps the failure taxonomy to HTTP status codes.
// Partial failures are matched first: their cause chain can also reach a
// taxonomy sentinel, but a half-committed operation must never look like a
// clean validation rejection.
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, faults.ErrPartialFailure):
		// The operation half-committed; the caller must reconcile.
		return http.StatusInternalServerError
	case errors.Is(err, faults.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, faults.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, faults.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, faults.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, faults.ErrInvalidState),
		errors.Is(err, faults.ErrCapacityViolation),
		errors.Is(err, faults.ErrRiderNotEligible),
		errors.Is(err, faults.ErrNoCapacity),
		errors.Is(err, faults.ErrVehicleUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
