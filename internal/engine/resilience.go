package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RetryPolicy bounds how long a caller waits for Redis to come up.
type RetryPolicy struct {
	Attempts uint          // 0 is treated as 1
	Delay    time.Duration // first wait, doubled per attempt
	MaxDelay time.Duration // 0 means uncapped
}

func (p RetryPolicy) backoff(n uint) time.Duration {
	if n > 16 {
		n = 16
	}
	d := p.Delay << n
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Retry runs op until it succeeds, the attempts run out or ctx is done.
// Each failure is logged with the attempt number.
func Retry(ctx context.Context, logger *zap.Logger, name string, p RetryPolicy, op func(context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var tried uint
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return p.backoff(n)
		}),
	)
	err := r.Do(func() error {
		tried++
		err := op(ctx)
		if err != nil {
			logger.Warn("dependency not ready",
				zap.String("dependency", name),
				zap.Uint("attempt", tried),
				zap.Uint("attempts", attempts),
				zap.Error(err),
			)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: gave up after %d attempt(s): %w", name, tried, err)
	}
	return nil
}

// ListenStateResilient keeps a Redis subscription alive: resubscribes after drops,
// resyncs state on every (re)connect and dispatches "id:on" / "id:off" signals.
func ListenStateResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func() error, // full resync, signals may have been missed while offline
	onMessage func(id string, status bool),
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		if err := onReconnect(); err != nil {
			logger.Error("sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // channel closed, resubscribe
				}

				id, status, ok := parseSignal(msg.Payload)
				if !ok {
					logger.Error("invalid signal format", zap.String("payload", msg.Payload))
					continue
				}
				onMessage(id, status)
			}
		}

		pubsub.Close()
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

// parseSignal splits "agent_id:on". The ID itself may contain colons.
func parseSignal(payload string) (id string, status bool, ok bool) {
	i := strings.LastIndex(payload, ":")
	if i <= 0 || i == len(payload)-1 {
		return "", false, false
	}
	id, flag := payload[:i], strings.ToLower(payload[i+1:])
	switch flag {
	case "on", "true":
		return id, true, true
	case "off", "false":
		return id, false, true
	default:
		return "", false, false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
