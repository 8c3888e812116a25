package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mbocsi/moodsync/services"
)

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) HandleMoods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.services.Delivery.Moods())
}

func (s *Server) HandleNotifyMood(w http.ResponseWriter, r *http.Request) {
	var req services.MoodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.handleError(w, services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "Invalid request body", Cause: err})
		return
	}

	ids, err := s.services.Delivery.NotifyMood(req)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ids": ids})
}

func (s *Server) HandleOutcomes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.handleError(w, services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.services.Delivery.RecentOutcomes(limit))
}

func (s *Server) HandleEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := s.services.Endpoint.ListEndpoints()
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoints)
}

func (s *Server) HandleEndpointDetail(w http.ResponseWriter, r *http.Request) {
	endpoint, err := s.services.Endpoint.GetEndpoint(chi.URLParam(r, "name"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

func (s *Server) HandleConnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.services.Endpoint.Connect(r.Context(), name); err != nil {
		s.handleError(w, err)
		return
	}
	s.HandleEndpointDetail(w, r)
}

func (s *Server) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.services.Endpoint.Disconnect(name); err != nil {
		s.handleError(w, err)
		return
	}
	s.HandleEndpointDetail(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func (s *Server) handleError(w http.ResponseWriter, err error) {
	var serviceErr services.ServiceError
	if !errors.As(err, &serviceErr) {
		slog.Error("Unhandled error", "error", err)
		writeJSON(w, http.StatusInternalServerError, services.ServiceError{Code: services.ErrCodeInternal, Message: "Internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch serviceErr.Code {
	case services.ErrCodeNotFound:
		status = http.StatusNotFound
	case services.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case services.ErrCodeConflict:
		status = http.StatusConflict
	case services.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	case services.ErrCodeUnavailable:
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Service error", "code", serviceErr.Code, "error", err)
	} else {
		slog.Debug("Request rejected", "code", serviceErr.Code, "error", err)
	}

	body := serviceErr
	if serviceErr.Cause != nil {
		body.Message = serviceErr.Error()
	}
	writeJSON(w, status, body)
}

// NewHTTPServer applies the timeouts used for the API listener.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
