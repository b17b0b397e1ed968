package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/entrhq/mnemo/pkg/memory"
	"github.com/entrhq/mnemo/pkg/memory/consolidation"
	"github.com/entrhq/mnemo/pkg/memory/scheduler"
	"github.com/entrhq/mnemo/pkg/memory/store"
	"github.com/entrhq/mnemo/pkg/tokenizer"
	"github.com/entrhq/mnemo/pkg/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the memory routes.
type Handler struct {
	svc *memory.Service
}

// NewHandler returns a handler over svc.
func NewHandler(svc *memory.Service) *Handler {
	return &Handler{svc: svc}
}

type healthResponse struct {
	Status  string `json:"status"`
	Root    string `json:"root"`
	Running bool   `json:"running"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Root:    h.svc.Root(),
		Running: h.svc.Running(),
	})
}

// ScheduleStatus describes the scheduler.
type ScheduleStatus struct {
	Enabled         bool   `json:"enabled"`
	Active          bool   `json:"active"`
	TimesPerDay     int    `json:"times_per_day"`
	IntervalSeconds int64  `json:"interval_seconds"`
	Interval        string `json:"interval"`
	Allowed         []int  `json:"allowed"`
}

func (h *Handler) scheduleStatus() ScheduleStatus {
	sched := h.svc.Scheduler()
	interval := sched.Interval()
	return ScheduleStatus{
		Enabled:         h.svc.DistillationEnabled(),
		Active:          sched.Running(),
		TimesPerDay:     sched.TimesPerDay(),
		IntervalSeconds: int64(interval / time.Second),
		Interval:        interval.String(),
		Allowed:         scheduler.AllowedFrequencies,
	}
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Root           string             `json:"root"`
	Working        store.WorkingStats `json:"working"`
	EpisodicBytes  int                `json:"episodic_bytes"`
	EpisodicTokens int                `json:"episodic_tokens"`
	SemanticBytes  int                `json:"semantic_bytes"`
	SemanticTokens int                `json:"semantic_tokens"`
	HasSentinel    bool               `json:"semantic_has_sentinel"`
	State          store.State        `json:"state"`
	Schedule       ScheduleStatus     `json:"schedule"`
	Capture        bool               `json:"capture_enabled"`
	Session        string             `json:"session,omitempty"`
	Running        bool               `json:"running"`
	RefreshedAt    time.Time          `json:"refreshed_at"`
}

// Stats handles GET /stats. It reads only the cached snapshot.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Snapshot()
	writeJSON(w, http.StatusOK, StatsResponse{
		Root:           snap.Root,
		Working:        snap.Working,
		EpisodicBytes:  len(snap.Episodic),
		EpisodicTokens: snap.EpisodicTokens,
		SemanticBytes:  len(snap.Semantic),
		SemanticTokens: snap.SemanticTokens,
		HasSentinel:    snap.SemanticHasSentinel,
		State:          snap.State,
		Schedule:       h.scheduleStatus(),
		Capture:        h.svc.CaptureEnabled(),
		Session:        h.svc.SessionID(),
		Running:        h.svc.Running(),
		RefreshedAt:    snap.RefreshedAt,
	})
}

// Episodic handles GET /episodic. The body is the markdown document unless
// ?format=json is given.
func (h *Handler) Episodic(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Snapshot()
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, map[string]any{
			"text":   snap.Episodic,
			"tokens": snap.EpisodicTokens,
		})
		return
	}
	writeMarkdown(w, snap.Episodic)
}

// Semantic handles GET /semantic. ?part=mutable or ?part=immutable selects
// one region; ?format=json returns both with the sentinel flag.
func (h *Handler) Semantic(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Snapshot()
	q := r.URL.Query()
	if q.Get("format") == "json" {
		writeJSON(w, http.StatusOK, map[string]any{
			"text":         snap.Semantic,
			"immutable":    snap.SemanticImmutable,
			"mutable":      snap.SemanticMutable,
			"has_sentinel": snap.SemanticHasSentinel,
			"tokens":       snap.SemanticTokens,
		})
		return
	}
	switch q.Get("part") {
	case "", "all":
		writeMarkdown(w, snap.Semantic)
	case "mutable":
		writeMarkdown(w, snap.SemanticMutable)
	case "immutable":
		writeMarkdown(w, snap.SemanticImmutable)
	default:
		writeError(w, http.StatusBadRequest, "part must be one of all, mutable, immutable")
	}
}

// RunResponse is the body of POST /run.
type RunResponse struct {
	RunID           string   `json:"run_id,omitempty"`
	Skipped         bool     `json:"skipped"`
	EmptyInput      bool     `json:"empty_input"`
	EpisodicUpdated bool     `json:"episodic_updated"`
	SemanticUpdated bool     `json:"semantic_updated"`
	Episodic        string   `json:"episodic"`
	Semantic        string   `json:"semantic"`
	Purged          []string `json:"purged"`
	DurationMS      int64    `json:"duration_ms"`
	Summary         string   `json:"summary"`
	Errors          string   `json:"errors,omitempty"`
}

func newRunResponse(res *consolidation.Result, err error) RunResponse {
	out := RunResponse{
		RunID:           res.RunID,
		Skipped:         res.Skipped,
		EmptyInput:      res.EmptyInput,
		EpisodicUpdated: res.EpisodicUpdated,
		SemanticUpdated: res.SemanticUpdated,
		Episodic:        string(res.Episodic),
		Semantic:        string(res.Semantic),
		Purged:          res.Purged,
		DurationMS:      res.Duration.Milliseconds(),
		Summary:         res.String(),
	}
	if out.Purged == nil {
		out.Purged = []string{}
	}
	if err != nil {
		out.Errors = err.Error()
	}
	return out
}

// Run handles POST /run. The run is not tied to the request: a client that
// disconnects does not abort it. A run already in progress yields 409.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RunNow(context.WithoutCancel(r.Context()))
	if res == nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("run failed: %v", err))
		return
	}
	status := http.StatusOK
	if res.Skipped {
		status = http.StatusConflict
	}
	writeJSON(w, status, newRunResponse(res, err))
}

// Schedule handles GET /schedule.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduleStatus())
}

// ScheduleRequest is the body of PUT /schedule. Absent fields are left
// unchanged. Out-of-range frequencies are clamped.
type ScheduleRequest struct {
	TimesPerDay *int  `json:"times_per_day"`
	Enabled     *bool `json:"enabled"`
}

// UpdateSchedule handles PUT /schedule.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TimesPerDay != nil {
		h.svc.UpdateFrequency(*req.TimesPerDay)
	}
	if req.Enabled != nil {
		h.svc.SetDistillationEnabled(*req.Enabled)
	}
	writeJSON(w, http.StatusOK, h.scheduleStatus())
}

// TurnRequest is the body of POST /sessions/{id}/turns.
type TurnRequest struct {
	Role       types.Role `json:"role"`
	Text       string     `json:"text"`
	ToolName   string     `json:"tool_name"`
	ToolTarget string     `json:"tool_target"`
	Timestamp  time.Time  `json:"timestamp"`
}

// AppendTurn handles POST /sessions/{id}/turns. Capture problems are never
// reported to the caller; only malformed requests are rejected.
func (h *Handler) AppendTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	var req TurnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "role must be one of user, assistant, tool")
		return
	}
	if req.Role == types.RoleTool && req.ToolName == "" {
		writeError(w, http.StatusBadRequest, "tool_name is required for tool turns")
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	h.svc.StartSession(id)
	h.svc.Append(types.Turn{
		Role:       req.Role,
		Text:       req.Text,
		Timestamp:  req.Timestamp,
		ToolName:   req.ToolName,
		ToolTarget: req.ToolTarget,
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"session": id,
		"tokens":  tokenizer.Count(req.Text),
	})
}

// CloseSession handles POST /sessions/{id}/close.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.svc.SessionID() != id {
		writeError(w, http.StatusNotFound, "no open session "+id)
		return
	}
	h.svc.CloseSession()
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debugLog.Warnf("encode response: %v", err)
	}
}

func writeMarkdown(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
