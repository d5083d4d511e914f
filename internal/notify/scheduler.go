package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/odai-awartani/wasselny/internal/observability"
	"github.com/odai-awartani/wasselny/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	scheduleKey = "notify:scheduled" // ZSET, score = due unix seconds
	payloadKey  = "notify:payloads"  // HASH, id -> json entry
)

// PushGateway implements Gateway: immediate sends go straight to the
// push provider, reminders are parked in a Redis sorted set keyed by
// due time and delivered by the Run loop.
type PushGateway struct {
	push   *PushClient
	redis  *redis.Client
	logger *logger.Logger

	// PollInterval controls how often due reminders are drained.
	PollInterval time.Duration
}

type scheduledEntry struct {
	ID     string  `json:"id"`
	UserID string  `json:"user_id"`
	Due    int64   `json:"due"`
	Notify Payload `json:"notification"`
}

// NewPushGateway creates the Redis-backed notification gateway
func NewPushGateway(push *PushClient, redisClient *redis.Client, logger *logger.Logger) *PushGateway {
	return &PushGateway{
		push:         push,
		redis:        redisClient,
		logger:       logger,
		PollInterval: 15 * time.Second,
	}
}

// SendImmediate pushes a notification to the user now
func (g *PushGateway) SendImmediate(ctx context.Context, userID uuid.UUID, p Payload) error {
	if err := g.push.Send(ctx, userID, p); err != nil {
		observability.NotificationFailures.Inc()
		return err
	}
	return nil
}

// ScheduleAt parks a reminder under the given id until its due time
func (g *PushGateway) ScheduleAt(ctx context.Context, id string, userID uuid.UUID, when time.Time, p Payload) error {
	entry := scheduledEntry{
		ID:     id,
		UserID: userID.String(),
		Due:    when.Unix(),
		Notify: p,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal scheduled notification: %w", err)
	}

	pipe := g.redis.TxPipeline()
	pipe.HSet(ctx, payloadKey, id, raw)
	pipe.ZAdd(ctx, scheduleKey, redis.Z{Score: float64(when.Unix()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to schedule notification: %w", err)
	}

	g.logger.Info("Reminder scheduled",
		logger.String("notification_id", id),
		logger.String("user_id", userID.String()),
		logger.Time("due", when),
	)
	return nil
}

// Cancel removes a scheduled reminder before it fires
func (g *PushGateway) Cancel(ctx context.Context, notificationID string) error {
	pipe := g.redis.TxPipeline()
	pipe.ZRem(ctx, scheduleKey, notificationID)
	pipe.HDel(ctx, payloadKey, notificationID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cancel notification: %w", err)
	}

	g.logger.Info("Reminder cancelled",
		logger.String("notification_id", notificationID),
	)
	return nil
}

// MarkRead flags pending notifications of a kind as read
func (g *PushGateway) MarkRead(ctx context.Context, userID uuid.UUID, kind string) error {
	if err := g.push.MarkRead(ctx, userID, kind); err != nil {
		observability.NotificationFailures.Inc()
		return err
	}
	return nil
}

// Run drains due reminders until the context is cancelled. A failed
// delivery keeps the entry for the next pass.
func (g *PushGateway) Run(ctx context.Context) {
	ticker := time.NewTicker(g.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.deliverDue(ctx)
		}
	}
}

func (g *PushGateway) deliverDue(ctx context.Context) {
	now := time.Now().Unix()
	ids, err := g.redis.ZRangeByScore(ctx, scheduleKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		g.logger.Error("Failed to read due reminders", logger.Err(err))
		return
	}

	for _, id := range ids {
		raw, err := g.redis.HGet(ctx, payloadKey, id).Result()
		if err == redis.Nil {
			// cancelled between range and fetch
			g.redis.ZRem(ctx, scheduleKey, id)
			continue
		}
		if err != nil {
			g.logger.Error("Failed to load reminder payload",
				logger.String("notification_id", id),
				logger.Err(err),
			)
			continue
		}

		var entry scheduledEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			g.logger.Error("Dropping malformed reminder",
				logger.String("notification_id", id),
				logger.Err(err),
			)
			g.remove(ctx, id)
			continue
		}

		userID, err := uuid.Parse(entry.UserID)
		if err != nil {
			g.remove(ctx, id)
			continue
		}

		if err := g.push.Send(ctx, userID, entry.Notify); err != nil {
			observability.NotificationFailures.Inc()
			g.logger.Warn("Reminder delivery failed, will retry",
				logger.String("notification_id", id),
				logger.Err(err),
			)
			continue
		}

		g.remove(ctx, id)
		g.logger.Info("Reminder delivered",
			logger.String("notification_id", id),
			logger.String("user_id", entry.UserID),
		)
	}
}

func (g *PushGateway) remove(ctx context.Context, id string) {
	pipe := g.redis.TxPipeline()
	pipe.ZRem(ctx, scheduleKey, id)
	pipe.HDel(ctx, payloadKey, id)
	pipe.Exec(ctx)
}
