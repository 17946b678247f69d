package scheduler

import (
	"context"
	"time"

	"procurement_backend/internal/nudge"
	"procurement_backend/platform/config"
	"procurement_backend/platform/logger"
)

// NudgeScanner runs the escalation engine on a slow ticker.
type NudgeScanner struct {
	engine   *nudge.Engine
	log      *logger.Logger
	interval time.Duration
}

func NewNudgeScanner(cfg config.OrchestratorConfig, engine *nudge.Engine, log *logger.Logger) *NudgeScanner {
	interval := cfg.GetNudgeScanInterval()
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &NudgeScanner{engine: engine, log: log, interval: interval}
}

func (s *NudgeScanner) Run(ctx context.Context) {
	if s == nil || s.engine == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.engine.Scan(ctx); err != nil {
			s.log.Warn("nudge scan failed", "error", err)
		}
	}
}
