package mirror

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jalanin/wallet-backend/internal/repository"
)

const separator = ":"

// kv is the slice of the redis client the pusher needs.
type kv interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisPusher replicates unsynced rows into a remote Redis instance as
// prefix-keyed JSON values. Rows that upload successfully are marked synced
// through the access layer; rows that fail, or that were mutated again while
// the upload ran, stay unsynced and are retried on the next push.
type RedisPusher struct {
	prefix string
	kv     kv
	client *redis.Client
	repos  repository.Repos
	log    *slog.Logger
}

func NewRedisPusher(url, prefix string, repos repository.Repos, log *slog.Logger) (*RedisPusher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	return &RedisPusher{
		prefix: prefix,
		kv:     client,
		client: client,
		repos:  repos,
		log:    log,
	}, nil
}

func (p *RedisPusher) key(parts ...string) string {
	return strings.Join(append([]string{p.prefix}, parts...), separator)
}

func (p *RedisPusher) put(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.kv.Set(ctx, key, b, 0).Err()
}

func (p *RedisPusher) PushBalances(ctx context.Context) error {
	rows, err := p.repos.Balances.ListUnsynced(ctx)
	if err != nil {
		return err
	}
	var lastErr error
	for _, b := range rows {
		if err := p.put(ctx, p.key("balance", b.UserID), b); err != nil {
			p.log.Warn("mirror: balance push failed", "user_id", b.UserID, "err", err)
			lastErr = err
			continue
		}
		// Conditional on the updated_at we uploaded: a mutation that
		// committed mid-push keeps the row unsynced for the next round.
		if err := p.repos.Balances.MarkSynced(ctx, b.UserID, b.UpdatedAt); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (p *RedisPusher) PushLedger(ctx context.Context) error {
	rows, err := p.repos.Ledger.ListUnsynced(ctx)
	if err != nil {
		return err
	}
	var done []string
	var lastErr error
	for _, e := range rows {
		if err := p.put(ctx, p.key("ledger", e.ID), e); err != nil {
			p.log.Warn("mirror: ledger push failed", "entry_id", e.ID, "err", err)
			lastErr = err
			continue
		}
		done = append(done, e.ID)
	}
	// Entries never change after insert, so a batch mark cannot hide a
	// newer write the way it could for balances.
	if err := p.repos.Ledger.MarkSynced(ctx, done); err != nil {
		lastErr = err
	}
	return lastErr
}

func (p *RedisPusher) PushIncomes(ctx context.Context) error {
	rows, err := p.repos.Incomes.ListUnsynced(ctx)
	if err != nil {
		return err
	}
	var lastErr error
	for _, rec := range rows {
		if err := p.put(ctx, p.key("income", rec.ID), rec); err != nil {
			p.log.Warn("mirror: income push failed", "income_id", rec.ID, "err", err)
			lastErr = err
			continue
		}
		// Conditional on the flags we uploaded: a reconciliation sweep
		// claiming the row mid-push keeps it unsynced.
		if err := p.repos.Incomes.MarkSynced(ctx, rec); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (p *RedisPusher) Close() error { return p.client.Close() }
