/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/paraspace/internal/auth"
	"github.com/friendsincode/paraspace/internal/events"
	"github.com/friendsincode/paraspace/internal/logbuffer"
	"github.com/friendsincode/paraspace/internal/models"
	"github.com/friendsincode/paraspace/internal/planner"
	"github.com/friendsincode/paraspace/internal/problem"
	"github.com/friendsincode/paraspace/internal/telemetry"
	"github.com/friendsincode/paraspace/internal/version"
	"github.com/friendsincode/paraspace/internal/wire"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// API exposes HTTP handlers.
type API struct {
	planner   *planner.Service
	bus       events.Publisher
	jwtSecret []byte
	maxBody   int64
	logs      *logbuffer.Buffer
	logger    zerolog.Logger
}

// New creates the API router wrapper. An empty jwtSecret disables authentication.
func New(svc *planner.Service, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		planner:   svc,
		bus:       svc.Bus(),
		jwtSecret: jwtSecret,
		maxBody:   DefaultMaxBodyBytes,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// SetLogBuffer exposes the process log buffer at /api/v1/system/logs.
func (a *API) SetLogBuffer(buf *logbuffer.Buffer) {
	a.logs = buf
}

// SetMaxBodyBytes overrides the request body limit.
func (a *API) SetMaxBodyBytes(n int64) {
	if n > 0 {
		a.maxBody = n
	}
}

// Routes registers the /api/v1 endpoints.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Handle("/metrics", telemetry.Handler())

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Group(func(r chi.Router) {
				r.Use(auth.RequireScope(auth.ScopeSolve))
				r.Post("/problems/validate", a.handleValidate)
				r.Post("/problems/ground", a.handleGround)
				r.Post("/solve", a.handleSolve)
				r.Post("/solve/batch", a.handleSolveBatch)
			})

			pr.Group(func(r chi.Router) {
				r.Use(auth.RequireScope(auth.ScopeRead))
				r.Get("/runs", a.handleRunsList)
				r.Get("/runs/{runID}", a.handleRunsGet)
				r.Get("/events", a.handleEvents)
				r.Get("/system/logs", a.handleLogs)
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	doc, err := a.decodeProblem(w, r)
	if err != nil {
		writeRequestError(w, err)
		return
	}
	resp, err := a.planner.Validate(doc)
	if err != nil {
		writeProblemError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGround(w http.ResponseWriter, r *http.Request) {
	doc, err := a.decodeProblem(w, r)
	if err != nil {
		writeRequestError(w, err)
		return
	}
	resp, err := a.planner.Ground(doc)
	if err != nil {
		writeProblemError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSolve(w http.ResponseWriter, r *http.Request) {
	doc, err := a.decodeProblem(w, r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	req := planner.SolveRequest{Problem: doc}
	q := r.URL.Query()
	if v := q.Get("verbose"); v != "" {
		req.Verbose, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_verbose")
			return
		}
	}
	if v := q.Get("deadline_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_deadline_ms")
			return
		}
		req.Deadline = time.Duration(ms) * time.Millisecond
	}

	resp, err := a.planner.Solve(r.Context(), req)
	if err != nil {
		writeProblemError(w, err)
		return
	}
	status := http.StatusOK
	if resp.Status == models.RunFailed {
		status = statusForKind(problem.ErrKind(resp.ErrorKind))
		a.logger.Debug().
			Str("client", auth.ClientID(r.Context())).
			Str("run_id", resp.RunID).
			Str("kind", resp.ErrorKind).
			Msg("solve failed")
	}
	writeJSON(w, status, resp)
}

type batchRequest struct {
	Problems []wire.ProblemDoc `json:"problems"`
	Verbose  bool              `json:"verbose"`
}

func (a *API) handleSolveBatch(w http.ResponseWriter, r *http.Request) {
	var in batchRequest
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBody)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeRequestError(w, err)
		return
	}
	if len(in.Problems) == 0 {
		writeError(w, http.StatusBadRequest, "problems_required")
		return
	}

	reqs := make([]planner.SolveRequest, len(in.Problems))
	for i, doc := range in.Problems {
		reqs[i] = planner.SolveRequest{Problem: doc, Verbose: in.Verbose}
	}
	resp, err := a.planner.SolveBatch(r.Context(), reqs)
	if err != nil {
		a.logger.Warn().Err(err).Msg("batch interrupted")
		writeError(w, http.StatusGatewayTimeout, string(problem.KindCancelled))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRunsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := planner.ListParams{
		Status:    models.RunStatus(q.Get("status")),
		ProblemID: q.Get("problem_id"),
	}
	switch params.Status {
	case "", models.RunPending, models.RunSolved, models.RunFailed:
	default:
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		params.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_offset")
			return
		}
		params.Offset = n
	}

	runs, total, err := a.planner.List(r.Context(), params)
	if err != nil {
		a.logger.Error().Err(err).Msg("list runs failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "total": total})
}

func (a *API) handleRunsGet(w http.ResponseWriter, r *http.Request) {
	view, err := a.planner.Get(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, planner.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("load run failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// decodeProblem reads a JSON or YAML problem document, chosen by Content-Type.
func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logs == nil {
		writeError(w, http.StatusNotFound, "logs_unavailable")
		return
	}
	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		RunID:      q.Get("run_id"),
		Search:     q.Get("search"),
		Limit:      100,
		Descending: true,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		params.Limit = n
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = since
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  a.logs.Query(params),
		"stats": a.logs.Stats(),
	})
}

func (a *API) decodeProblem(w http.ResponseWriter, r *http.Request) (wire.ProblemDoc, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBody)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return wire.ProblemDoc{}, err
	}

	format := wire.FormatJSON
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil && strings.Contains(mt, "yaml") {
			format = wire.FormatYAML
		}
	}
	return wire.Decode(data, format)
}

// statusForKind maps solver error kinds to HTTP status codes.
func statusForKind(kind problem.ErrKind) int {
	switch kind {
	case problem.KindMalformedProblem:
		return http.StatusUnprocessableEntity
	case problem.KindInfeasible, problem.KindUnbounded:
		return http.StatusConflict
	case problem.KindCancelled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeProblemError reports planner errors. Domain errors keep their kind,
// entity and reason; anything else is an internal error.
func writeProblemError(w http.ResponseWriter, err error) {
	var perr *problem.Error
	if errors.As(err, &perr) {
		body := map[string]string{"error": string(perr.Kind), "reason": perr.Reason}
		if perr.Entity != "" {
			body["entity"] = perr.Entity
		}
		writeJSON(w, statusForKind(perr.Kind), body)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": string(problem.KindInternal)})
}

// writeRequestError reports unreadable request bodies.
func writeRequestError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large")
		return
	}
	var perr *problem.Error
	if errors.As(err, &perr) {
		writeProblemError(w, err)
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "reason": err.Error()})
}

func parseEventTypes(raw string) ([]events.EventType, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		et := events.EventType(part)
		known := false
		for _, e := range events.AllEvents {
			if e == et {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown event type %q", part)
		}
		out = append(out, et)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
