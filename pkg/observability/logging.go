package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// LoggingHooks writes every event to a logger at debug level.
// It implements PipelineHooks, CacheHooks and SolverHooks.
type LoggingHooks struct {
	Logger *log.Logger
}

// NewLoggingHooks returns hooks that log through logger.
func NewLoggingHooks(logger *log.Logger) *LoggingHooks {
	return &LoggingHooks{Logger: logger}
}

func (h *LoggingHooks) OnStageStart(_ context.Context, stage string) {
	h.Logger.Debug("stage started", "stage", stage)
}

func (h *LoggingHooks) OnStageComplete(_ context.Context, stage string, d time.Duration, err error) {
	if err != nil {
		h.Logger.Debug("stage failed", "stage", stage, "duration", d, "err", err)
		return
	}
	h.Logger.Debug("stage complete", "stage", stage, "duration", d)
}

func (h *LoggingHooks) OnCacheHit(_ context.Context, keyType string) {
	h.Logger.Debug("cache hit", "type", keyType)
}

func (h *LoggingHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.Logger.Debug("cache miss", "type", keyType)
}

func (h *LoggingHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.Logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h *LoggingHooks) OnSolve(_ context.Context, engine, phase string, size int, status string, d time.Duration) {
	h.Logger.Debug("solve", "engine", engine, "phase", phase, "vars", size, "status", status, "duration", d)
}

var (
	_ PipelineHooks = (*LoggingHooks)(nil)
	_ CacheHooks    = (*LoggingHooks)(nil)
	_ SolverHooks   = (*LoggingHooks)(nil)
)
