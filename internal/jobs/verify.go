package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/uniwahl/zaehlwerk/internal/audit"
)

// ChainMetrics receives verification failure counts. Implemented by the
// counting metrics; an interface here keeps the job decoupled from that
// package.
type ChainMetrics interface {
	IncVerifyFailures(chain string)
}

// VerifierConfig configures the periodic audit verification job.
type VerifierConfig struct {
	// Chain is the audit chain to verify.
	Chain audit.Chain
	// Ballots holds the per-election ballot chains. Optional.
	Ballots audit.BallotChains
	// Genesis is the configured genesis hash; empty selects the default.
	Genesis string
	// Interval is the duration between verification cycles.
	Interval time.Duration
	// Timeout bounds one verification cycle.
	Timeout time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics for job tracking. Optional.
	Metrics *Metrics
	// ChainMetrics receives verification failure counts. Optional.
	ChainMetrics ChainMetrics
}

// DefaultVerifyInterval is the default interval between verification cycles.
const DefaultVerifyInterval = 15 * time.Minute

// DefaultVerifyTimeout is the default timeout for a single cycle.
const DefaultVerifyTimeout = time.Minute

// Verifier periodically re-verifies the full audit chain and all ballot
// chains. A detected break is logged at ERROR and counted, never repaired;
// each completed cycle is itself recorded on the chain as AUDIT_VERIFIED.
type Verifier struct {
	config VerifierConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewVerifier creates a new periodic verification job.
func NewVerifier(config VerifierConfig) *Verifier {
	if config.Interval == 0 {
		config.Interval = DefaultVerifyInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultVerifyTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Verifier{config: config}
}

// Start begins the periodic verification.
// Returns immediately; the job runs in a background goroutine.
func (v *Verifier) Start(ctx context.Context) {
	v.mu.Lock()
	if v.running {
		v.mu.Unlock()
		return
	}
	v.running = true
	v.stopCh = make(chan struct{})
	v.doneCh = make(chan struct{})
	v.mu.Unlock()

	go v.run(ctx)
}

// Stop signals the job to stop and waits for it to finish.
func (v *Verifier) Stop() {
	v.mu.Lock()
	if !v.running {
		v.mu.Unlock()
		return
	}
	stopCh := v.stopCh
	doneCh := v.doneCh
	v.mu.Unlock()

	close(stopCh)
	<-doneCh

	v.mu.Lock()
	v.running = false
	v.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (v *Verifier) IsRunning() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

func (v *Verifier) run(ctx context.Context) {
	defer close(v.doneCh)

	ticker := time.NewTicker(v.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			v.config.Logger.Info("audit verification job stopping due to context cancellation")
			return
		case <-v.stopCh:
			v.config.Logger.Info("audit verification job stopping due to stop signal")
			return
		case <-ticker.C:
			v.VerifyOnce(ctx)
		}
	}
}

// VerifyOnce runs one full verification cycle: the whole audit chain from
// entry 1 to the current tip, then every ballot chain. Exported so the cycle
// can be triggered outside the ticker.
func (v *Verifier) VerifyOnce(parentCtx context.Context) {
	ctx, cancel := context.WithTimeout(parentCtx, v.config.Timeout)
	defer cancel()

	chainValid := v.verifyAuditChain(ctx)
	ballotsValid := v.verifyBallotChains(ctx)

	v.recordCycle(ctx, chainValid, ballotsValid)
}

func (v *Verifier) verifyAuditChain(ctx context.Context) bool {
	start := time.Now()

	tip, _, err := v.config.Chain.Tip(ctx)
	if err != nil {
		v.fail(JobTypeAuditVerify, "chain_read", start)
		v.config.Logger.Error("failed to read audit chain tip",
			slog.String("error", err.Error()))
		return false
	}
	if tip == 0 {
		v.succeed(JobTypeAuditVerify, start)
		return true
	}

	report, err := audit.VerifyRange(ctx, v.config.Chain, v.config.Genesis, 1, tip)
	if err != nil {
		v.fail(JobTypeAuditVerify, "chain_read", start)
		v.config.Logger.Error("audit chain verification failed to run",
			slog.String("error", err.Error()))
		return false
	}

	if !report.Valid {
		v.fail(JobTypeAuditVerify, "chain_break", start)
		if v.config.ChainMetrics != nil {
			v.config.ChainMetrics.IncVerifyFailures("audit")
		}
		v.config.Logger.Error("audit chain verification detected a break",
			slog.Int64("first_break", *report.FirstBreak),
			slog.Int("checked", report.Checked))
		return false
	}

	v.succeed(JobTypeAuditVerify, start)
	v.config.Logger.Info("audit chain verified",
		slog.Int("checked", report.Checked))
	return true
}

func (v *Verifier) verifyBallotChains(ctx context.Context) bool {
	if v.config.Ballots == nil {
		return true
	}
	start := time.Now()

	report, err := audit.VerifyBallotChains(ctx, v.config.Ballots, v.config.Genesis)
	if err != nil {
		v.fail(JobTypeBallotVerify, "chain_read", start)
		v.config.Logger.Error("ballot chain verification failed to run",
			slog.String("error", err.Error()))
		return false
	}

	if !report.Valid {
		v.fail(JobTypeBallotVerify, "chain_break", start)
		if v.config.ChainMetrics != nil {
			v.config.ChainMetrics.IncVerifyFailures("ballot")
		}
		v.config.Logger.Error("ballot chain verification detected breaks",
			slog.String("summary", report.Summary),
			slog.Int("errors", len(report.Errors)))
		return false
	}

	v.succeed(JobTypeBallotVerify, start)
	v.config.Logger.Info("ballot chains verified",
		slog.Int("total_ballots", report.TotalBallots),
		slog.Int("elections", report.ElectionsChecked))
	return true
}

// recordCycle appends the AUDIT_VERIFIED entry for the completed cycle. A
// failed append is logged and does not abort anything; the verification
// result has already been reported.
func (v *Verifier) recordCycle(ctx context.Context, chainValid, ballotsValid bool) {
	level := audit.LevelInfo
	if !chainValid || !ballotsValid {
		level = audit.LevelCritical
	}

	_, err := v.config.Chain.Append(ctx, audit.NewEntry{
		ActionType: audit.ActionAuditVerified,
		Level:      level,
		ActorID:    "system",
		ActorRole:  "system",
		Details: map[string]any{
			"scheduled":     true,
			"chain_valid":   chainValid,
			"ballots_valid": ballotsValid,
		},
	})
	if err != nil {
		v.config.Logger.Error("failed to record scheduled verification",
			slog.String("error", err.Error()))
	}
}

func (v *Verifier) succeed(jobType string, start time.Time) {
	if v.config.Metrics == nil {
		return
	}
	v.config.Metrics.IncJobsTotal(jobType, StatusSuccess)
	v.config.Metrics.ObserveJobDuration(jobType, time.Since(start).Seconds())
}

func (v *Verifier) fail(jobType, errorType string, start time.Time) {
	if v.config.Metrics == nil {
		return
	}
	v.config.Metrics.IncJobsTotal(jobType, StatusFailure)
	v.config.Metrics.ObserveJobDuration(jobType, time.Since(start).Seconds())
	v.config.Metrics.IncJobErrors(jobType, errorType)
}
