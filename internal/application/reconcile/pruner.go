package reconcile

import (
	"context"
	"time"

	"github.com/Titi-shop/TiTi/internal/domain/ledger"
	"github.com/Titi-shop/TiTi/internal/infra/clock"
	"github.com/Titi-shop/TiTi/internal/infra/logging"
)

// LedgerPruner drops finalized dedup entries once they are old enough that
// no provider retry storm could still reference them.
type LedgerPruner struct {
	Ledger    ledger.Repository
	Retention time.Duration
	Interval  time.Duration
	Logger    logging.Logger
	Clock     clock.Clock
}

func (p *LedgerPruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PruneOnce(ctx)
		}
	}
}

func (p *LedgerPruner) PruneOnce(ctx context.Context) {
	cutoff := p.Clock.Now().Add(-p.Retention)

	n, err := p.Ledger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.Logger.Error("ledger prune failed", map[string]any{"error": err.Error()})
		return
	}
	if n > 0 {
		p.Logger.Info("ledger entries pruned", map[string]any{"count": n})
	}
}
