package report

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/bankex/internal/ledger"
)

// OpenRedis parses url, connects and pings the server.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisSink stores each account as a hash under "<prefix>account:<client>"
// and the client ids in the set "<prefix>clients".
type RedisSink struct {
	client redis.Cmdable
	prefix string
}

// NewRedisSink builds a sink writing through client.
func NewRedisSink(client redis.Cmdable, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// AccountKey is the hash key for a client.
func (s *RedisSink) AccountKey(client uint16) string {
	return fmt.Sprintf("%saccount:%d", s.prefix, client)
}

// ClientsKey is the set of reported client ids.
func (s *RedisSink) ClientsKey() string {
	return s.prefix + "clients"
}

// Write replaces the previous report, including hashes of clients that are
// no longer present.
func (s *RedisSink) Write(ctx context.Context, accounts []ledger.Account) error {
	previous, err := s.client.SMembers(ctx, s.ClientsKey()).Result()
	if err != nil {
		return fmt.Errorf("read previous redis report: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, member := range previous {
			pipe.Del(ctx, s.prefix+"account:"+member)
		}
		pipe.Del(ctx, s.ClientsKey())
		for _, row := range Rows(accounts) {
			key := s.AccountKey(row.Client)
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key,
				"available", Amount(row.Available),
				"held", Amount(row.Held),
				"total", Amount(row.Total),
				"locked", strconv.FormatBool(row.Locked),
			)
			pipe.SAdd(ctx, s.ClientsKey(), row.Client)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write redis report: %w", err)
	}
	return nil
}
