package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/SentientTimeline/internal/driver"
	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/mqtt"
	"github.com/AaronLay10/SentientTimeline/internal/orchestrator"
	"github.com/AaronLay10/SentientTimeline/internal/storage"
)

const commandTimeout = 5 * time.Second

// Controller is the command surface the API drives.
type Controller interface {
	Timelines() []string
	Instances(ctx context.Context) ([]orchestrator.InstanceInfo, error)
	Start(ctx context.Context, timelineID, subject string) (orchestrator.InstanceInfo, error)
	Stop(ctx context.Context, timelineID string) (bool, error)
	StopByID(ctx context.Context, instanceID string) (bool, error)
	StopAll(ctx context.Context) (int, error)
	SetTimescale(ctx context.Context, timelineID string, scale float64) (orchestrator.InstanceInfo, bool, error)
	SetTimescaleByID(ctx context.Context, instanceID string, scale float64) (orchestrator.InstanceInfo, bool, error)
}

// DeviceLister lists the devices timelines can be bound to.
type DeviceLister interface {
	All() []*mqtt.RegisteredDevice
}

// EventHistory reads persisted events.
type EventHistory interface {
	Query(limit int) ([]storage.EventRow, error)
	QuerySession(sessionID string) ([]storage.EventRow, error)
}

// Options configures a Server.
type Options struct {
	Port     int
	RoomName string
	Control  Controller
	Devices  DeviceLister
	History  EventHistory
	Metrics  MetricsSource
	Auth     Credentials
	TLS      TLSFiles
	Logger   zerolog.Logger
}

// Server serves the control and observation endpoints.
type Server struct {
	opts    Options
	log     zerolog.Logger
	started time.Time
}

// NewServer creates a server.
func NewServer(opts Options) *Server {
	return &Server{opts: opts, log: opts.Logger, started: time.Now()}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	auth := s.opts.Auth
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/events", s.eventsHandler)
	mux.HandleFunc("/events/history", s.historyHandler)
	mux.HandleFunc("/ws/events", s.wsEventsHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.HandleFunc("/timelines", s.timelinesHandler)
	mux.HandleFunc("/instances", s.instancesHandler)
	mux.HandleFunc("/devices", s.devicesHandler)
	mux.HandleFunc("/instances/start", auth.RequireAnyRole(s.startHandler))
	mux.HandleFunc("/instances/stop", auth.RequireAnyRole(s.stopHandler))
	mux.HandleFunc("/instances/stop_all", auth.RequireAnyRole(s.stopAllHandler))
	mux.HandleFunc("/instances/timescale", auth.RequireAnyRole(s.timescaleHandler))
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	tlsCfg, err := s.opts.TLS.Config()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Bool("tls", tlsCfg != nil).Bool("auth", s.opts.Auth.Enabled()).Msg("API listening")
		if tlsCfg != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	events.CloseAllSubscribers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "timeline",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.Snapshot())
}

// historyHandler serves stored events, newest first, or every event of one
// instance with ?instance=, oldest first.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.opts.History == nil {
		writeError(w, http.StatusServiceUnavailable, "event store disabled")
		return
	}

	q := r.URL.Query()
	var (
		rows []storage.EventRow
		err  error
	)
	if id := q.Get("instance"); id != "" {
		rows, err = s.opts.History.QuerySession(id)
	} else {
		limit := 0
		if raw := q.Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "limit must be an integer")
				return
			}
		}
		rows, err = s.opts.History.Query(limit)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("event history query failed")
		writeError(w, http.StatusInternalServerError, "event history unavailable")
		return
	}
	if rows == nil {
		rows = []storage.EventRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": rows})
}

func (s *Server) timelinesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"timelines": s.opts.Control.Timelines()})
}

func (s *Server) instancesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	list, err := s.opts.Control.Instances(ctx)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"instances": list})
}

func (s *Server) devicesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	devices := []*mqtt.RegisteredDevice{}
	if s.opts.Devices != nil {
		devices = s.opts.Devices.All()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": devices})
}

// StartRequest starts a timeline.
type StartRequest struct {
	Timeline string `json:"timeline"`
	Subject  string `json:"subject,omitempty"`
}

// TargetRequest addresses a timeline (first live instance) or one instance.
type TargetRequest struct {
	Timeline   string   `json:"timeline,omitempty"`
	InstanceID string   `json:"instance_id,omitempty"`
	Scale      *float64 `json:"scale,omitempty"`
}

// OperatorResponse is the body of every mutating endpoint.
type OperatorResponse struct {
	OK       bool                       `json:"ok"`
	Error    string                     `json:"error,omitempty"`
	Instance *orchestrator.InstanceInfo `json:"instance,omitempty"`
	Stopped  int                        `json:"stopped,omitempty"`
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.Timeline == "" {
		writeError(w, http.StatusBadRequest, "timeline required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	info, err := s.opts.Control.Start(ctx, req.Timeline, req.Subject)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	events.Emit("info", "operator.start", "", map[string]interface{}{
		"timeline_id": info.TimelineID,
		"instance_id": info.InstanceID,
		"subject":     req.Subject,
	})
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true, Instance: &info})
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if !decodePost(w, r, &req) || !requireTarget(w, req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	var (
		found bool
		err   error
	)
	if req.InstanceID != "" {
		found, err = s.opts.Control.StopByID(ctx, req.InstanceID)
	} else {
		found, err = s.opts.Control.Stop(ctx, req.Timeline)
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}

	events.Emit("info", "operator.stop", "", targetFields(req))
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true})
}

func (s *Server) stopAllHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	n, err := s.opts.Control.StopAll(ctx)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	events.Emit("info", "operator.stop_all", "", map[string]interface{}{"stopped": n})
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true, Stopped: n})
}

func (s *Server) timescaleHandler(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if !decodePost(w, r, &req) || !requireTarget(w, req) {
		return
	}
	if req.Scale == nil {
		writeError(w, http.StatusBadRequest, "scale required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	var (
		info  orchestrator.InstanceInfo
		found bool
		err   error
	)
	if req.InstanceID != "" {
		info, found, err = s.opts.Control.SetTimescaleByID(ctx, req.InstanceID, *req.Scale)
	} else {
		info, found, err = s.opts.Control.SetTimescale(ctx, req.Timeline, *req.Scale)
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}

	fields := targetFields(req)
	fields["scale"] = info.Timescale
	events.Emit("info", "operator.timescale", "", fields)
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true, Instance: &info})
}

func decodePost(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func requireTarget(w http.ResponseWriter, req TargetRequest) bool {
	if req.Timeline == "" && req.InstanceID == "" {
		writeError(w, http.StatusBadRequest, "timeline or instance_id required")
		return false
	}
	return true
}

func targetFields(req TargetRequest) map[string]interface{} {
	fields := map[string]interface{}{}
	if req.Timeline != "" {
		fields["timeline_id"] = req.Timeline
	}
	if req.InstanceID != "" {
		fields["instance_id"] = req.InstanceID
	}
	return fields
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrDefinitionNotFound), errors.Is(err, orchestrator.ErrSubjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, driver.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, OperatorResponse{OK: false, Error: msg})
}
