package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studiowebux/chirpload/internal/scenario"
)

// LogListener reports progress through a zap logger, for runs without a
// terminal UI. Task progress is logged at quarter marks.
type LogListener struct {
	logger *zap.Logger

	mu     sync.Mutex
	marked map[int]int // phase index -> last quarter logged
}

// NewLogListener creates a listener logging to logger
func NewLogListener(logger *zap.Logger) *LogListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogListener{
		logger: logger.With(zap.String("component", "progress")),
		marked: make(map[int]int),
	}
}

func (l *LogListener) StateChanged(state scenario.State, phase string) {
	fields := []zap.Field{zap.String("state", state.String())}
	if phase != "" {
		fields = append(fields, zap.String("phase", phase))
	}
	l.logger.Debug("state changed", fields...)
}

func (l *LogListener) PhaseStarted(p scenario.PhaseInfo) {
	l.logger.Info("phase progress",
		zap.String("phase", p.Name),
		zap.Int("completed", 0),
		zap.Int("total", p.Total))
}

func (l *LogListener) TaskDone(p scenario.PhaseInfo, completed int) {
	if p.Total == 0 {
		return
	}
	quarter := completed * 4 / p.Total
	if quarter == 0 || quarter >= 4 {
		return
	}

	l.mu.Lock()
	if l.marked[p.Index] >= quarter {
		l.mu.Unlock()
		return
	}
	l.marked[p.Index] = quarter
	l.mu.Unlock()

	l.logger.Info("phase progress",
		zap.String("phase", p.Name),
		zap.Int("completed", completed),
		zap.Int("total", p.Total),
		zap.Int("percent", quarter*25))
}

func (l *LogListener) PhaseFinished(p scenario.PhaseInfo, elapsed time.Duration) {
	l.logger.Info("phase progress",
		zap.String("phase", p.Name),
		zap.Int("completed", p.Total),
		zap.Int("total", p.Total),
		zap.Duration("elapsed", elapsed))
}
