// Package server exposes the scoring service over HTTP: the prediction
// API, the model comparison view, prediction history, a WebSocket feed
// of new predictions and the Prometheus endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"edurisk/internal/features"
	"edurisk/internal/ml"
	"edurisk/internal/scoring"
	"edurisk/internal/storage"
)

// Server is the HTTP front of the scoring service.
type Server struct {
	svc         *scoring.Service
	store       *storage.Store
	hub         *Hub
	modelDir    string
	recentLimit int
	httpServer  *http.Server
}

// New builds the server and its routes.
func New(addr string, svc *scoring.Service, store *storage.Store, hub *Hub, modelDir string, recentLimit int) *Server {
	s := &Server{
		svc:         svc,
		store:       store,
		hub:         hub,
		modelDir:    modelDir,
		recentLimit: recentLimit,
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/predict", s.handlePredict).Methods("POST")
	r.HandleFunc("/api/v1/models", s.handleModels).Methods("GET")
	r.HandleFunc("/api/v1/predictions/recent", s.handleRecent).Methods("GET")
	r.HandleFunc("/api/v1/students/{id}/predictions", s.handleStudentHistory).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	if hub != nil {
		r.HandleFunc("/ws/predictions", hub.HandleWS).Methods("GET")
	}
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

type predictRequest struct {
	StudentID string          `json:"student_id"`
	Features  features.Vector `json:"features"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StudentID == "" {
		writeError(w, http.StatusBadRequest, "student_id is required")
		return
	}

	result, err := s.svc.Score(req.StudentID, req.Features)
	if err != nil {
		var missing *features.MissingFeatureError
		switch {
		case errors.As(err, &missing):
			writeError(w, http.StatusUnprocessableEntity, missing.Error())
		case errors.Is(err, ml.ErrModelNotLoaded):
			writeError(w, http.StatusServiceUnavailable, "no model is loaded")
		default:
			log.Error().Err(err).Str("student", req.StudentID).Msg("prediction failed")
			writeError(w, http.StatusInternalServerError, "prediction failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	report, err := ml.LoadReport(ml.ReportPath(s.modelDir))
	if err != nil {
		writeError(w, http.StatusNotFound, "no training report available")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "prediction history is disabled")
		return
	}

	limit := s.recentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= s.recentLimit {
			limit = n
		}
	}

	records, err := s.store.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read predictions")
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStudentHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "prediction history is disabled")
		return
	}

	studentID := mux.Vars(r)["id"]
	records, err := s.store.ByStudent(studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read predictions")
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.svc.Predictor().State()
	body := map[string]string{"status": "ok", "model": state.String()}

	code := http.StatusOK
	if state != ml.StateLoaded {
		body["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
