/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package planner runs solves on behalf of the HTTP API. It persists
// problems and runs, consults the outcome cache, archives solutions and
// announces progress on the event bus.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/paraspace/internal/cache"
	"github.com/friendsincode/paraspace/internal/events"
	"github.com/friendsincode/paraspace/internal/logbuffer"
	"github.com/friendsincode/paraspace/internal/logging"
	"github.com/friendsincode/paraspace/internal/models"
	"github.com/friendsincode/paraspace/internal/problem"
	"github.com/friendsincode/paraspace/internal/solver"
	"github.com/friendsincode/paraspace/internal/storage"
	"github.com/friendsincode/paraspace/internal/telemetry"
	"github.com/friendsincode/paraspace/internal/wire"
)

// ErrRunNotFound is returned by Get for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// Outcome label for successful solves in metrics and events.
const outcomeSolved = "solved"

// Config bounds the work of a single solve.
type Config struct {
	Deadline      time.Duration // per solve; requests may only shorten it
	MaxTokens     int           // see solver.Options.MaxTokens
	BatchWorkers  int
	TraceCapacity int // verbose trace entries kept per run
}

// Service orchestrates solves.
type Service struct {
	db      *gorm.DB
	cache   *cache.Cache
	bus     events.Publisher
	archive storage.ObjectStore
	leader  Leader
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs the planner service.
func New(db *gorm.DB, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Deadline <= 0 {
		cfg.Deadline = 30 * time.Second
	}
	if cfg.BatchWorkers < 1 {
		cfg.BatchWorkers = 1
	}
	if cfg.TraceCapacity <= 0 {
		cfg.TraceCapacity = 2000
	}
	return &Service{
		db:     db,
		bus:    events.NewBus(),
		cfg:    cfg,
		logger: logger.With().Str("component", "planner").Logger(),
		now:    time.Now,
	}
}

// SetCache sets the outcome cache.
func (s *Service) SetCache(c *cache.Cache) {
	s.cache = c
}

// SetBus sets the event bus that receives run events.
func (s *Service) SetBus(bus events.Publisher) {
	if bus != nil {
		s.bus = bus
	}
}

// SetArchive sets the object store receiving solved plans.
func (s *Service) SetArchive(store storage.ObjectStore) {
	s.archive = store
}

// Leader reports whether this instance may run cluster-wide maintenance.
type Leader interface {
	IsLeader() bool
}

// SetLeader restricts maintenance to the elected instance.
func (s *Service) SetLeader(l Leader) {
	s.leader = l
}

// Bus returns the event bus in use.
func (s *Service) Bus() events.Publisher {
	return s.bus
}

// SolveRequest is one problem to solve.
type SolveRequest struct {
	Problem  wire.ProblemDoc `json:"problem"`
	Verbose  bool            `json:"verbose,omitempty"`
	Deadline time.Duration   `json:"-"`
}

// SolveResponse reports a finished run. Failed runs carry ErrorKind.
type SolveResponse struct {
	RunID        string               `json:"run_id"`
	ProblemID    string               `json:"problem_id"`
	Fingerprint  string               `json:"fingerprint"`
	Status       models.RunStatus     `json:"status"`
	Solution     *wire.SolutionDoc    `json:"solution,omitempty"`
	ErrorKind    string               `json:"error_kind,omitempty"`
	Error        string               `json:"error,omitempty"`
	Nodes        int                  `json:"nodes"`
	Backtracks   int                  `json:"backtracks"`
	GroundTokens int                  `json:"ground_tokens"`
	DurationMS   int64                `json:"duration_ms"`
	CacheHit     bool                 `json:"cache_hit"`
	ArchiveKey   string               `json:"archive_key,omitempty"`
	Trace        []logbuffer.LogEntry `json:"trace,omitempty"`
}

// Solve validates, persists and solves one problem. Malformed problems are
// returned as errors without recording a run; solver failures are recorded
// and reported in the response.
func (s *Service) Solve(ctx context.Context, req SolveRequest) (*SolveResponse, error) {
	p, canonical, fp, err := prepare(req.Problem)
	if err != nil {
		telemetry.RecordSolve(string(problem.KindMalformedProblem), 0, 0, 0)
		return nil, err
	}

	rec, err := s.storeProblem(ctx, canonical, fp)
	if err != nil {
		return nil, err
	}

	run := &models.SolveRun{
		ID:          uuid.NewString(),
		ProblemID:   rec.ID,
		Fingerprint: fp,
		Status:      models.RunPending,
		Verbose:     req.Verbose,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	logger := s.logger.With().Str("run_id", run.ID).Str("fingerprint", fp).Logger()
	s.bus.Publish(events.EventSolveStarted, events.Payload{
		"run_id":      run.ID,
		"problem_id":  rec.ID,
		"fingerprint": fp,
	})

	resp := &SolveResponse{RunID: run.ID, ProblemID: rec.ID, Fingerprint: fp}
	started := s.now()

	cacheKey := fp + ":" + strconv.Itoa(s.cfg.MaxTokens)
	var out *cache.Outcome
	if s.cache != nil && !req.Verbose {
		var hit bool
		out, hit = s.cache.GetSolve(ctx, cacheKey)
		telemetry.RecordCacheLookup(hit)
		resp.CacheHit = hit
	}

	if out == nil {
		var trace []logbuffer.LogEntry
		var backtracks int
		out, backtracks, trace = s.run(ctx, p, fp, run.ID, req)
		resp.Backtracks = backtracks
		resp.Trace = trace
		if s.cache != nil && !req.Verbose && out.ErrorKind != string(problem.KindCancelled) && out.ErrorKind != string(problem.KindInternal) {
			if err := s.cache.SetSolve(ctx, cacheKey, *out); err != nil {
				logger.Debug().Err(err).Msg("cache store failed")
			}
		}
	}

	resp.Solution = out.Solution
	resp.ErrorKind = out.ErrorKind
	resp.Error = out.Error
	resp.Nodes = out.Nodes
	resp.GroundTokens = out.GroundTokens
	resp.DurationMS = s.now().Sub(started).Milliseconds()
	resp.Status = models.RunSolved
	if out.Failed() {
		resp.Status = models.RunFailed
	}

	if resp.Status == models.RunSolved && s.archive != nil {
		key := storage.SolutionKey(run.ID)
		if err := s.archiveSolution(ctx, key, resp.Solution); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("archive solution failed")
		} else {
			resp.ArchiveKey = key
		}
	}

	if err := s.finishRun(ctx, run, resp); err != nil {
		return nil, err
	}

	outcome := outcomeSolved
	if out.Failed() {
		outcome = out.ErrorKind
	}
	telemetry.RecordSolve(outcome, s.now().Sub(started).Seconds(), resp.Nodes, resp.GroundTokens)

	payload := events.Payload{
		"run_id":        run.ID,
		"problem_id":    rec.ID,
		"fingerprint":   fp,
		"status":        string(resp.Status),
		"nodes":         resp.Nodes,
		"ground_tokens": resp.GroundTokens,
		"duration_ms":   resp.DurationMS,
		"cache_hit":     resp.CacheHit,
	}
	if out.Failed() {
		payload["error_kind"] = out.ErrorKind
		s.bus.Publish(events.EventSolveFailed, payload)
		logger.Info().Str("kind", out.ErrorKind).Str("error", out.Error).Int64("duration_ms", resp.DurationMS).Msg("solve failed")
	} else {
		s.bus.Publish(events.EventSolveCompleted, payload)
		logger.Info().Int("nodes", resp.Nodes).Int("tokens", resp.GroundTokens).Bool("cache_hit", resp.CacheHit).
			Int64("duration_ms", resp.DurationMS).Msg("solve completed")
	}

	return resp, nil
}

// run invokes the solver under the request deadline and a trace span.
func (s *Service) run(ctx context.Context, p *problem.Problem, fp, runID string, req SolveRequest) (*cache.Outcome, int, []logbuffer.LogEntry) {
	deadline := s.cfg.Deadline
	if req.Deadline > 0 && req.Deadline < deadline {
		deadline = req.Deadline
	}

	opts := solver.Options{
		Deadline:  time.Now().Add(deadline),
		MaxTokens: s.cfg.MaxTokens,
	}
	var buf *logbuffer.Buffer
	if req.Verbose {
		buf = logbuffer.New(s.cfg.TraceCapacity)
		opts.Verbose = true
		opts.Trace = logging.Trace(logbuffer.NewWriter(buf, nil), "solver").With().Str("run_id", runID).Logger()
	}

	ctx, span := telemetry.StartSolveSpan(ctx, fp, len(p.Tokens()))
	res, err := solver.Plan(ctx, p, opts)

	out := &cache.Outcome{}
	backtracks := 0
	if err != nil {
		kind := problem.KindOf(err)
		if kind == "" {
			kind = problem.KindInternal
		}
		out.ErrorKind = string(kind)
		out.Error = err.Error()
		telemetry.EndSolveSpan(span, out.ErrorKind, 0, err)
	} else {
		doc := wire.FromSolution(res.Solution)
		out.Solution = &doc
		out.Nodes = res.Stats.Nodes
		out.GroundTokens = len(res.Tokens)
		backtracks = res.Stats.Backtracks
		telemetry.EndSolveSpan(span, outcomeSolved, res.Stats.Nodes, nil)
	}

	var trace []logbuffer.LogEntry
	if buf != nil {
		trace = buf.GetAll()
	}
	return out, backtracks, trace
}

// prepare validates doc and returns the problem with its canonical document
// and fingerprint. Defaults are applied before hashing so equivalent
// documents share a fingerprint.
func prepare(doc wire.ProblemDoc) (*problem.Problem, wire.ProblemDoc, string, error) {
	p, err := doc.ToProblem()
	if err != nil {
		return nil, wire.ProblemDoc{}, "", err
	}
	canonical := wire.FromProblem(p)
	fp, err := wire.Fingerprint(canonical)
	if err != nil {
		return nil, wire.ProblemDoc{}, "", err
	}
	return p, canonical, fp, nil
}

// storeProblem returns the record for fp, creating it on first sight.
func (s *Service) storeProblem(ctx context.Context, doc wire.ProblemDoc, fp string) (*models.ProblemRecord, error) {
	var rec models.ProblemRecord
	err := s.db.WithContext(ctx).Where("fingerprint = ?", fp).First(&rec).Error
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load problem: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode problem: %w", err)
	}
	rec = models.ProblemRecord{
		ID:          uuid.NewString(),
		Fingerprint: fp,
		Document:    string(data),
		Timelines:   len(doc.Timelines),
		Groups:      len(doc.Groups),
		Tokens:      len(doc.Tokens),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		// A concurrent solve of the same problem may have won the insert.
		var existing models.ProblemRecord
		if lookupErr := s.db.WithContext(ctx).Where("fingerprint = ?", fp).First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("store problem: %w", err)
	}

	s.bus.Publish(events.EventProblemStored, events.Payload{
		"problem_id":  rec.ID,
		"fingerprint": fp,
		"tokens":      rec.Tokens,
	})
	return &rec, nil
}

func (s *Service) archiveSolution(ctx context.Context, key string, doc *wire.SolutionDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode solution: %w", err)
	}
	return s.archive.Put(ctx, key, data)
}

// finishRun stores the outcome. It uses a fresh context so a cancelled
// request still closes its run.
func (s *Service) finishRun(ctx context.Context, run *models.SolveRun, resp *SolveResponse) error {
	finished := s.now().UTC()
	run.Status = resp.Status
	run.ErrorKind = resp.ErrorKind
	run.Error = resp.Error
	run.Nodes = resp.Nodes
	run.Backtracks = resp.Backtracks
	run.GroundTokens = resp.GroundTokens
	run.DurationMS = resp.DurationMS
	run.CacheHit = resp.CacheHit
	run.ArchiveKey = resp.ArchiveKey
	run.FinishedAt = &finished
	if resp.Solution != nil {
		if err := run.SetSolution(*resp.Solution); err != nil {
			return err
		}
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.db.WithContext(saveCtx).Save(run).Error; err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// ValidateResponse summarizes a valid problem.
type ValidateResponse struct {
	Valid       bool   `json:"valid"`
	Fingerprint string `json:"fingerprint"`
	Timelines   int    `json:"timelines"`
	Groups      int    `json:"groups"`
	Tokens      int    `json:"tokens"`
}

// Validate checks a problem without solving or storing it.
func (s *Service) Validate(doc wire.ProblemDoc) (*ValidateResponse, error) {
	return ValidateDoc(doc)
}

// ValidateDoc builds the problem and reports its size and fingerprint.
func ValidateDoc(doc wire.ProblemDoc) (*ValidateResponse, error) {
	p, _, fp, err := prepare(doc)
	if err != nil {
		return nil, err
	}
	return &ValidateResponse{
		Valid:       true,
		Fingerprint: fp,
		Timelines:   len(p.Timelines()),
		Groups:      len(p.Groups()),
		Tokens:      len(p.Tokens()),
	}, nil
}

// Ground previews the greedy expansion of a problem.
func (s *Service) Ground(doc wire.ProblemDoc) (*GroundResponse, error) {
	p, err := doc.ToProblem()
	if err != nil {
		return nil, err
	}
	return Ground(p, s.cfg.MaxTokens)
}

// RunView is a stored run with its decoded solution.
type RunView struct {
	models.SolveRun
	Solution *wire.SolutionDoc `json:"solution,omitempty"`
}

// Get loads one run.
func (s *Service) Get(ctx context.Context, runID string) (*RunView, error) {
	var run models.SolveRun
	err := s.db.WithContext(ctx).First(&run, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	sol, err := run.SolutionDoc()
	if err != nil {
		return nil, err
	}
	return &RunView{SolveRun: run, Solution: sol}, nil
}

// ListParams filters List.
type ListParams struct {
	Status    models.RunStatus
	ProblemID string
	Limit     int
	Offset    int
}

// List returns runs, newest first, and the total matching count.
func (s *Service) List(ctx context.Context, params ListParams) ([]models.SolveRun, int64, error) {
	if params.Limit <= 0 || params.Limit > 500 {
		params.Limit = 50
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	q := s.db.WithContext(ctx).Model(&models.SolveRun{})
	if params.Status != "" {
		q = q.Where("status = ?", params.Status)
	}
	if params.ProblemID != "" {
		q = q.Where("problem_id = ?", params.ProblemID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	var runs []models.SolveRun
	if err := q.Order("created_at DESC").Order("id").Limit(params.Limit).Offset(params.Offset).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	return runs, total, nil
}
