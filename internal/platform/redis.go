package platform

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// OpenRedis は redis:// 形式の URL からクライアントを作成し、PING が通るまでリトライします。
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Wrapf(err, "parse redis url")
	}

	client := redis.NewClient(opts)
	err = retry.Do(ctx, connectBackoff(), func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").
			With("addr", opts.Addr).
			Wrapf(err, "ping redis")
	}
	return client, nil
}
