package counting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uniwahl/zaehlwerk/internal/audit"
	"github.com/uniwahl/zaehlwerk/internal/canonical"
	"github.com/uniwahl/zaehlwerk/internal/election"
	"github.com/uniwahl/zaehlwerk/internal/result"
)

// Actor identifies who triggered a counting operation, for the audit trail.
type Actor struct {
	ID   string
	Role string
}

// Service orchestrates counting runs: it validates the election state, runs
// the configured engine, and persists the versioned result together with its
// audit entry.
type Service struct {
	elections election.Repository
	store     result.Store
	registry  *Registry
	metrics   *Metrics
	logger    *slog.Logger
}

// NewService creates a counting service. metrics may be nil.
func NewService(elections election.Repository, store result.Store, registry *Registry, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		elections: elections,
		store:     store,
		registry:  registry,
		metrics:   metrics,
		logger:    logger,
	}
}

// Count runs the election's configured counting method over its aggregated
// tallies and stores the outcome as the next result version.
//
// The engine runs before any write happens; only a clean engine result ever
// reaches the store. Returns ErrElectionNotClosed for open elections,
// election.ErrMethodMismatch for a method that does not fit the election
// type, result.ErrNoTallies when nothing was cast, and ErrBusy when another
// count is in flight for the same election.
func (s *Service) Count(ctx context.Context, electionID string, actor Actor) (*result.Record, error) {
	e, err := s.elections.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if !e.IsClosed() {
		return nil, ErrElectionNotClosed
	}

	method, err := ParseMethod(e.CountingMethod)
	if err != nil {
		return nil, err
	}
	if !method.CompatibleWith(e.ElectionType) {
		return nil, fmt.Errorf("%w: method %q for type %q",
			election.ErrMethodMismatch, method, e.ElectionType)
	}

	tallies, err := s.store.AggregatedTallies(ctx, electionID)
	if err != nil {
		return nil, err
	}

	engine, err := s.registry.Lookup(string(method))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := engine(tallies, e)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		s.observeRun(string(method), OutcomeFailure, elapsed)
		s.logger.Error("counting engine failed",
			slog.String("election_id", electionID),
			slog.String("algorithm", string(method)),
			slog.String("error", err.Error()))
		return nil, err
	}

	data, err := canonical.Marshal(res)
	if err != nil {
		s.observeRun(string(method), OutcomeFailure, elapsed)
		return nil, fmt.Errorf("failed to encode counting result: %w", err)
	}

	rec := &result.Record{
		ElectionID:   electionID,
		Algorithm:    string(method),
		CountedAt:    time.Now().UTC(),
		TiesDetected: res.TiesDetected(),
		Data:         data,
	}

	stored, err := s.store.RecordCount(ctx, rec, func(version int) audit.NewEntry {
		return audit.NewEntry{
			ActionType: audit.ActionCountingPerformed,
			Level:      audit.LevelInfo,
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Details: map[string]any{
				"election_id":   electionID,
				"version":       version,
				"algorithm":     string(method),
				"ties_detected": res.TiesDetected(),
			},
		}
	})
	if err != nil {
		if errors.Is(err, result.ErrBusy) {
			s.observeRun(string(method), OutcomeBusy, elapsed)
			return nil, ErrBusy
		}
		s.observeRun(string(method), OutcomeFailure, elapsed)
		if errors.Is(err, audit.ErrAppendFailed) {
			// A result without its audit entry must never exist. The store
			// rolled the write back; surface the failure loudly.
			s.logger.Error("audit append failed, counting run rolled back",
				slog.String("election_id", electionID),
				slog.String("algorithm", string(method)))
		}
		return nil, err
	}

	s.observeRun(string(method), OutcomeSuccess, elapsed)
	if s.metrics != nil {
		s.metrics.IncAuditEntries(string(audit.ActionCountingPerformed))
	}

	s.logger.Info("counting run recorded",
		slog.String("election_id", electionID),
		slog.String("algorithm", string(method)),
		slog.Int("version", stored.Version),
		slog.Bool("ties_detected", stored.TiesDetected))
	return stored, nil
}

// Finalize marks one result version as the official outcome. A version can be
// finalized once; everything after that is result.ErrAlreadyFinalized.
func (s *Service) Finalize(ctx context.Context, electionID string, version int, actor Actor) error {
	if version < 1 {
		return fmt.Errorf("%w: version must be >= 1", ErrInvalidInput)
	}
	if _, err := s.elections.Get(ctx, electionID); err != nil {
		return err
	}

	entry := audit.NewEntry{
		ActionType: audit.ActionCountingFinalized,
		Level:      audit.LevelInfo,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Details: map[string]any{
			"election_id": electionID,
			"version":     version,
		},
	}
	if err := s.store.Finalize(ctx, electionID, version, entry); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncFinalizations()
		s.metrics.IncAuditEntries(string(audit.ActionCountingFinalized))
	}
	s.logger.Info("counting result finalized",
		slog.String("election_id", electionID),
		slog.Int("version", version))
	return nil
}

// GetResult returns a stored result version; version <= 0 means the latest.
func (s *Service) GetResult(ctx context.Context, electionID string, version int) (*result.Record, error) {
	if _, err := s.elections.Get(ctx, electionID); err != nil {
		return nil, err
	}
	return s.store.GetResult(ctx, electionID, version)
}

func (s *Service) observeRun(algorithm, outcome string, seconds float64) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncRunsTotal(algorithm, outcome)
	s.metrics.ObserveRunDuration(algorithm, seconds)
}
