package booking

import (
	"context"
	"time"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/clock"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/logger"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/metrics"
)

const defaultSweepInterval = 30 * time.Second

// Sweeper 定期把过期的 pending hold 置为 cancelled。
// 重叠查询本身已忽略过期 hold，清扫只是让账本状态与事实对齐，
// 所以晚一点执行不影响正确性。
type Sweeper struct {
	ledger LedgerRepository
	clk    clock.Clock
	every  time.Duration
	log    logger.Logger
	mtr    *metrics.Metrics
}

func NewSweeper(ledger LedgerRepository, clk clock.Clock, every time.Duration, log logger.Logger, mtr *metrics.Metrics) *Sweeper {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if every <= 0 {
		every = defaultSweepInterval
	}
	return &Sweeper{ledger: ledger, clk: clk, every: every, log: log, mtr: mtr}
}

// Run 阻塞运行直到 ctx 取消；通常在独立 goroutine 里启动。
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.ledger.ExpireDue(ctx, s.clk.Now())
	if err != nil {
		if s.mtr != nil {
			s.mtr.ErrorsCount.WithLabelValues("sweeper").Inc()
		}
		if s.log != nil {
			s.log.Warnf("expire pending holds: %v", err)
		}
		return
	}
	if n > 0 {
		if s.mtr != nil {
			s.mtr.HoldsExpired.Add(float64(n))
		}
		if s.log != nil {
			s.log.Infof("expired %d pending holds", n)
		}
	}
}
