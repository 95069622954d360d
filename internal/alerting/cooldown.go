package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sheetdash/internal/metrics"
)

// Cooldown 在冷却期内抑制同一表的重复告警。
type Cooldown struct {
	next     Notifier
	cooldown time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldown wraps next. A non-positive cooldown disables suppression.
func NewCooldown(next Notifier, cooldown time.Duration, logger zerolog.Logger) *Cooldown {
	return &Cooldown{
		next:     next,
		cooldown: cooldown,
		now:      time.Now,
		logger:   logger.With().Str("component", "alert_cooldown").Logger(),
		last:     make(map[string]time.Time),
	}
}

// Notify forwards the notification unless one for the same sheet was sent
// within the cooldown. Suppressed notifications return nil.
func (c *Cooldown) Notify(ctx context.Context, note Notification) error {
	now := c.now()

	c.mu.Lock()
	if last, ok := c.last[note.Sheet]; ok && c.cooldown > 0 && now.Sub(last) < c.cooldown {
		c.mu.Unlock()
		metrics.AlertsSent.WithLabelValues("suppressed").Inc()
		c.logger.Debug().Str("sheet", note.Sheet).Time("last", last).Msg("告警处于冷却期, 跳过")
		return nil
	}
	c.last[note.Sheet] = now
	c.mu.Unlock()

	if err := c.next.Notify(ctx, note); err != nil {
		// 发送失败时允许下次立即重试
		c.mu.Lock()
		delete(c.last, note.Sheet)
		c.mu.Unlock()
		metrics.AlertsSent.WithLabelValues("failed").Inc()
		return err
	}
	metrics.AlertsSent.WithLabelValues("sent").Inc()
	return nil
}

// Reset clears the cooldown for sheet, used after a successful refresh.
func (c *Cooldown) Reset(sheet string) {
	c.mu.Lock()
	delete(c.last, sheet)
	c.mu.Unlock()
}

var _ Notifier = (*Cooldown)(nil)
