package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research-agent/pkg/agent"
	"github.com/mikeboe/deep-research-agent/pkg/config"
	"github.com/mikeboe/deep-research-agent/pkg/database"
	"github.com/mikeboe/deep-research-agent/pkg/memory"
)

// Service runs research jobs in background workers and tracks them in the
// database. Each job gets its own engine run with a DB-backed logger and a
// cancel handle.
type Service struct {
	DB       *database.PostgresDB
	Cfg      *config.Config
	LLM      llms.Model
	Embedder agent.Embedder
	Adapters []agent.RetrievalAdapter

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func NewService(db *database.PostgresDB, cfg *config.Config, llm llms.Model, embedder agent.Embedder, adapters []agent.RetrievalAdapter) *Service {
	return &Service{
		DB:       db,
		Cfg:      cfg,
		LLM:      llm,
		Embedder: embedder,
		Adapters: adapters,
		cancels:  make(map[uuid.UUID]context.CancelFunc),
	}
}

type Job struct {
	ID          uuid.UUID       `json:"id"`
	Question    string          `json:"question"`
	Mode        string          `json:"mode"`
	Status      string          `json:"status"`
	Report      *string         `json:"report,omitempty"`
	Constraints json.RawMessage `json:"constraints,omitempty"`
	State       json.RawMessage `json:"state,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type CreateJobRequest struct {
	Question         string              `json:"question"`
	Mode             string              `json:"mode"`
	Constraints      agent.ConstraintSet `json:"constraints"`
	MaxIterations    int                 `json:"max_iterations"`
	MinEvidenceCount int                 `json:"min_evidence_count"`
	PerCallTimeoutMs int                 `json:"per_call_timeout_ms"`

	// Files holds already-extracted uploads; populated by the handler, not
	// part of the JSON body.
	Files []agent.FileDocument `json:"-"`
}

func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	if req.Mode == "" {
		req.Mode = string(agent.ModeBriefing)
	}
	if err := req.Constraints.Validate(); err != nil {
		return nil, err
	}

	constraintsJSON, _ := json.Marshal(req.Constraints)
	budgetJSON, _ := json.Marshal(map[string]interface{}{
		"max_iterations":      req.MaxIterations,
		"min_evidence_count":  req.MinEvidenceCount,
		"per_call_timeout_ms": req.PerCallTimeoutMs,
	})

	jobID := uuid.New()
	query := `
		INSERT INTO research_jobs (id, question, mode, status, constraints, budget)
		VALUES ($1, $2, $3, 'pending', $4, $5)
		RETURNING id, question, mode, status, created_at, updated_at
	`

	job := &Job{}
	err := s.DB.Pool.QueryRow(ctx, query, jobID, req.Question, req.Mode, constraintsJSON, budgetJSON).Scan(
		&job.ID, &job.Question, &job.Mode, &job.Status, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	// Start background worker
	go s.runWorker(job.ID, req)

	return job, nil
}

// CancelJob signals the running worker for a job. It reports whether a
// running job was found.
func (s *Service) CancelJob(id uuid.UUID) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `
		SELECT id, question, mode, status, report, constraints, state, created_at, updated_at
		FROM research_jobs
		WHERE id = $1
	`
	job := &Job{}
	err := s.DB.Pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Question, &job.Mode, &job.Status, &job.Report, &job.Constraints, &job.State, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	query := `
		SELECT id, question, mode, status, report, constraints, state, created_at, updated_at
		FROM research_jobs
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.Question, &job.Mode, &job.Status, &job.Report, &job.Constraints, &job.State, &job.CreatedAt, &job.UpdatedAt); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (s *Service) runWorker(jobID uuid.UUID, req CreateJobRequest) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[jobID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, jobID)
		s.mu.Unlock()
		cancel()
	}()

	_, _ = s.DB.Pool.Exec(ctx, "UPDATE research_jobs SET status = 'running', updated_at = NOW() WHERE id = $1", jobID)

	dbLogger := slog.New(NewDBLogHandler(s.DB, jobID))

	opts := []agent.Option{
		agent.WithLogger(dbLogger),
		agent.WithMinScore(s.Cfg.MinScore),
		agent.WithConcurrency(s.Cfg.Concurrency),
		agent.WithStateCallback(func(state agent.RunState) {
			stateJSON, err := json.Marshal(state)
			if err != nil {
				dbLogger.Error("Failed to marshal state", "error", err)
				return
			}
			_, err = s.DB.Pool.Exec(context.Background(),
				"UPDATE research_jobs SET state = $2, updated_at = NOW() WHERE id = $1",
				jobID, stateJSON)
			if err != nil {
				dbLogger.Error("Failed to save state to DB", "error", err)
			}
		}),
	}

	if s.Embedder != nil {
		opts = append(opts, agent.WithEmbedder(s.Embedder))

		persister, err := memory.NewPgVectorPersister(ctx, s.DB, s.Embedder, s.Cfg.CollectionName, s.Cfg.EmbeddingDim)
		if err != nil {
			dbLogger.Warn("Evidence persistence disabled", "error", err)
		} else {
			opts = append(opts, agent.WithPersister(persister.WithLogger(dbLogger)))
		}
	}

	engine := agent.New(s.LLM, s.Adapters, opts...)

	report, err := engine.Run(ctx, agent.Request{
		Question:    req.Question,
		Mode:        agent.Mode(req.Mode),
		Constraints: req.Constraints,
		Files:       req.Files,
		Budget: agent.Budget{
			MaxIterations:    req.MaxIterations,
			MinEvidenceCount: req.MinEvidenceCount,
			PerCallTimeout:   s.perCallTimeout(req),
		},
	})
	if err != nil {
		if errors.Is(err, agent.ErrCancelled) {
			s.markJob(jobID, "cancelled")
			return
		}
		s.failJob(context.Background(), jobID, fmt.Sprintf("Research failed: %v", err))
		return
	}

	status := "completed"
	if report.Metadata.Status == agent.StatusPartial {
		status = "partial"
	}

	metadataJSON, _ := json.Marshal(report.Metadata)
	_, err = s.DB.Pool.Exec(context.Background(),
		"UPDATE research_jobs SET status = $2, report = $3, report_metadata = $4, updated_at = NOW() WHERE id = $1",
		jobID, status, report.Text, metadataJSON)

	if err != nil {
		dbLogger.Error("Failed to save final report to DB", "error", err)
	}
}

// perCallTimeout resolves the per-LLM-call timeout: request value first, then
// the configured default.
func (s *Service) perCallTimeout(req CreateJobRequest) time.Duration {
	ms := req.PerCallTimeoutMs
	if ms <= 0 {
		ms = s.Cfg.PerCallTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Service) markJob(jobID uuid.UUID, status string) {
	_, _ = s.DB.Pool.Exec(context.Background(),
		"UPDATE research_jobs SET status = $2, updated_at = NOW() WHERE id = $1", jobID, status)
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, reason string) {
	dbLogger := slog.New(NewDBLogHandler(s.DB, jobID))
	dbLogger.Error(reason)

	_, _ = s.DB.Pool.Exec(ctx, "UPDATE research_jobs SET status = 'failed', updated_at = NOW() WHERE id = $1", jobID)
}
