package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/stockyard-erp/stockyard/internal/ledger"
	"github.com/stockyard-erp/stockyard/internal/tenancy"
)

// LedgerWarmupJob primes the current-month valuation report for every tenant
// so the first morning request is a cache hit.
type LedgerWarmupJob struct {
	Ledger  *ledger.Service
	Tenants *tenancy.Service
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewLedgerWarmupJob wires dependencies for the warmup handler.
func NewLedgerWarmupJob(ledgerSvc *ledger.Service, tenants *tenancy.Service, logger *slog.Logger) *LedgerWarmupJob {
	return &LedgerWarmupJob{
		Ledger:  ledgerSvc,
		Tenants: tenants,
		Logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes ledger warmup tasks.
func (j *LedgerWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil || j.Tenants == nil {
		return errors.New("ledger warmup: handler not configured")
	}
	var payload LedgerWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	now := j.now()

	var tenants []tenancy.Tenant
	if payload.TenantID > 0 {
		tenant, err := j.Tenants.Get(ctx, payload.TenantID)
		if err != nil {
			logger.Error("load tenant", slog.Int64("tenant_id", payload.TenantID), slog.Any("error", err))
			return err
		}
		tenants = []tenancy.Tenant{tenant}
	} else {
		var err error
		tenants, err = j.Tenants.List(ctx)
		if err != nil {
			logger.Error("list tenants", slog.Any("error", err))
			return err
		}
	}
	if len(tenants) == 0 {
		logger.Info("no tenants to warm")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, tenant := range tenants {
		tenant := tenant
		g.Go(func() error {
			warmCtx, cancel := context.WithTimeout(gctx, 20*time.Second)
			defer cancel()
			if err := j.Ledger.Warm(warmCtx, tenant.ID, now); err != nil {
				logger.Error("warm tenant", slog.Int64("tenant_id", tenant.ID), slog.Any("error", err))
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("completed ledger warmup", slog.Int("tenants", len(tenants)), slog.Duration("duration", time.Since(now)))
	return nil
}

func (j *LedgerWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerWarmup))
	}
	return slog.Default().With(slog.String("job", TaskLedgerWarmup))
}

func (j *LedgerWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
