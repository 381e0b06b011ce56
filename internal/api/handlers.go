package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unklstewy/fleetwatch/internal/db"
	"github.com/unklstewy/fleetwatch/pkg/flight"
	"github.com/unklstewy/fleetwatch/pkg/geo"
)

// createFlightRequest is the body of POST /api/v1/flights.
type createFlightRequest struct {
	FlightID           string     `json:"flight_id"`
	TailNumber         string     `json:"tail_number"`
	Status             string     `json:"status"`
	ScheduledDeparture *time.Time `json:"scheduled_departure"`
	ScheduledArrival   *time.Time `json:"scheduled_arrival"`
	CurrentPositionLat *float64   `json:"current_position_lat"`
	CurrentPositionLon *float64   `json:"current_position_lon"`
	Altitude           *float64   `json:"altitude"`
	Speed              *float64   `json:"speed"`
	Heading            *float64   `json:"heading"`
}

// toFlight validates the request and builds the flight to store.
func (req createFlightRequest) toFlight(now time.Time) (flight.TrackedFlight, error) {
	if req.FlightID == "" && req.TailNumber == "" {
		return flight.TrackedFlight{}, errors.New("flight_id or tail_number is required")
	}

	status := flight.StatusScheduled
	if req.Status != "" {
		st, ok := flight.ParseStatus(req.Status)
		if !ok {
			return flight.TrackedFlight{}, fmt.Errorf("unknown status %q", req.Status)
		}
		status = st
	}

	if (req.CurrentPositionLat == nil) != (req.CurrentPositionLon == nil) {
		return flight.TrackedFlight{}, errors.New("current_position_lat and current_position_lon must be given together")
	}
	if req.CurrentPositionLat != nil {
		if !geo.ValidLatitude(*req.CurrentPositionLat) || !geo.ValidLongitude(*req.CurrentPositionLon) {
			return flight.TrackedFlight{}, errors.New("position out of range")
		}
	}

	f := flight.TrackedFlight{
		FlightID:           req.FlightID,
		TailNumber:         req.TailNumber,
		Status:             status,
		Latitude:           req.CurrentPositionLat,
		Longitude:          req.CurrentPositionLon,
		Altitude:           req.Altitude,
		Speed:              req.Speed,
		ScheduledDeparture: req.ScheduledDeparture,
		ScheduledArrival:   req.ScheduledArrival,
		LastUpdated:        now.UTC(),
	}
	if req.Heading != nil {
		f.Heading = flight.Float(geo.NormalizeHeading(*req.Heading))
	}
	return f, nil
}

func (s *Server) handleGetActiveFlights(w http.ResponseWriter, r *http.Request) {
	flights, err := s.flights.ActiveFlights(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list active flights")
		respondError(w, http.StatusInternalServerError, "failed to list active flights")
		return
	}
	respondJSON(w, http.StatusOK, flight.ActiveFlightsResponse{Flights: flight.ListJSON(flights)})
}

func (s *Server) handleCreateFlight(w http.ResponseWriter, r *http.Request) {
	var req createFlightRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f, err := req.toFlight(s.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.store.CreateFlight(r.Context(), f)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create flight")
		respondError(w, http.StatusInternalServerError, "failed to create flight")
		return
	}
	respondJSON(w, http.StatusCreated, flight.ToJSON(created))
}

func (s *Server) handleGetFlight(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	f, err := s.store.GetFlight(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "flight not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("flight", id).Msg("Failed to get flight")
		respondError(w, http.StatusInternalServerError, "failed to get flight")
		return
	}
	respondJSON(w, http.StatusOK, flight.ToJSON(f))
}

func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	var resolved *bool
	if v := r.URL.Query().Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "resolved must be true or false")
			return
		}
		resolved = &b
	}

	alerts, err := s.store.ListAlerts(r.Context(), resolved)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list alerts")
		respondError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := s.store.ResolveAlert(r.Context(), id, s.now().UTC())
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("alert", id).Msg("Failed to resolve alert")
		respondError(w, http.StatusInternalServerError, "failed to resolve alert")
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":      "ok",
		"subscribers": s.hub.SubscriberCount(),
	}
	if snap, ok := s.hub.Latest(); ok {
		status["last_snapshot"] = snap.Timestamp
	}

	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("Health check failed")
		status["status"] = "unavailable"
		status["error"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// pathID parses the {id} URL parameter, answering 400 when it is invalid.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
