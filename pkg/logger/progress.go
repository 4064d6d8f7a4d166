package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker reports progress of the per-unit batch loop. Every step is
// logged because a run rarely has more than a few dozen units.
type ProgressTracker struct {
	logger    Logger
	operation string
	total     int
	done      int
	failed    int
	startTime time.Time
	mutex     sync.Mutex
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int           `json:"total"`
	Done       int           `json:"done"`
	Failed     int           `json:"failed"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
}

// NewProgressTracker creates a tracker for total steps of the named operation
func NewProgressTracker(operation string, total int, logger Logger) *ProgressTracker {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	tracker := &ProgressTracker{
		logger:    logger.WithComponent("progress"),
		operation: operation,
		total:     total,
		startTime: time.Now(),
	}
	tracker.logger.WithFields(Fields{
		"operation": operation,
		"total":     total,
	}).Info("Starting operation")
	return tracker
}

// Step records one finished step. A non-nil err counts the step as failed.
func (p *ProgressTracker) Step(name string, err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.done++
	fields := Fields{
		"operation": p.operation,
		"step":      name,
		"processed": p.done,
		"total":     p.total,
	}
	if p.total > 0 {
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(p.done)/float64(p.total)*100)
	}
	if err != nil {
		p.failed++
		p.logger.WithError(err).WithFields(fields).Warn("Step failed")
		return
	}
	p.logger.WithFields(fields).Info("Step completed")
}

// Complete logs final statistics
func (p *ProgressTracker) Complete() {
	stats := p.Stats()
	p.logger.WithFields(Fields{
		"operation": stats.Operation,
		"processed": stats.Done,
		"failed":    stats.Failed,
		"duration":  stats.Duration.String(),
	}).Info("Operation completed")
}

// Stats returns current progress statistics
func (p *ProgressTracker) Stats() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var percentage float64
	if p.total > 0 {
		percentage = float64(p.done) / float64(p.total) * 100
	}
	return ProgressStats{
		Operation:  p.operation,
		Total:      p.total,
		Done:       p.done,
		Failed:     p.failed,
		Percentage: percentage,
		Duration:   time.Since(p.startTime),
	}
}

// String returns a human-readable representation of the progress
func (ps ProgressStats) String() string {
	return fmt.Sprintf("%s: %d/%d (%.1f%%), %d failed, elapsed %v",
		ps.Operation, ps.Done, ps.Total, ps.Percentage, ps.Failed, ps.Duration.Round(time.Millisecond))
}

// TimedOperation executes fn and logs its duration and outcome
func TimedOperation(operation string, logger Logger, fn func() error) error {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	start := time.Now()
	log := logger.WithField("operation", operation)
	log.Debug("Starting operation")

	err := fn()

	log = log.WithField("duration", time.Since(start).String())
	if err != nil {
		log.WithError(err).Error("Operation failed")
		return err
	}
	log.Info("Operation completed")
	return nil
}
