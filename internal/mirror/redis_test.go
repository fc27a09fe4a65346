package mirror

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jalanin/wallet-backend/internal/models"
	"github.com/jalanin/wallet-backend/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeKV records uploads per key and can run a callback between the upload
// and the mark, which is exactly where a concurrent writer can sneak in.
type fakeKV struct {
	mu    sync.Mutex
	sets  map[string]int
	onSet func(key string)
	err   error
}

func newFakeKV() *fakeKV { return &fakeKV{sets: map[string]int{}} }

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	f.sets[key]++
	f.mu.Unlock()
	if f.onSet != nil {
		f.onSet(key)
	}
	cmd := redis.NewStatusCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	}
	return cmd
}

func (f *fakeKV) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets[key]
}

// balStore is a minimal Balances with the conditional mark semantics of the
// real repo.
type balStore struct {
	mu   sync.Mutex
	rows map[string]models.UserBalance
}

func (s *balStore) Get(ctx context.Context, userID string) (models.UserBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[userID]
	if !ok {
		return models.UserBalance{}, repository.ErrNotFound
	}
	return b, nil
}

func (s *balStore) Insert(ctx context.Context, b models.UserBalance) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[b.UserID] = b
	return b.ID, nil
}

func (s *balStore) SetAmount(ctx context.Context, userID string, amount int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.rows[userID]
	b.Amount = amount
	b.UpdatedAt = now
	b.Synced = false
	s.rows[userID] = b
	return nil
}

func (s *balStore) MarkSynced(ctx context.Context, userID string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[userID]
	if !ok || !b.UpdatedAt.Equal(updatedAt) {
		return nil
	}
	b.Synced = true
	s.rows[userID] = b
	return nil
}

func (s *balStore) ListUnsynced(ctx context.Context) ([]models.UserBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserBalance
	for _, b := range s.rows {
		if !b.Synced {
			out = append(out, b)
		}
	}
	return out, nil
}

// incomeStore is a minimal Incomes with the conditional mark semantics of
// the real repo.
type incomeStore struct {
	mu   sync.Mutex
	rows map[string]models.IncomeRecord
}

func (s *incomeStore) Create(ctx context.Context, rec models.IncomeRecord) (models.IncomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rec.ID] = rec
	return rec, nil
}

func (s *incomeStore) ListUnreconciled(ctx context.Context, recipientID string) ([]models.IncomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.IncomeRecord
	for _, rec := range s.rows {
		if rec.RecipientID == recipientID && rec.Status == models.IncomeCompleted && !rec.BalanceSynced {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *incomeStore) ClaimForBalance(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[id]
	if !ok || rec.BalanceSynced {
		return false, nil
	}
	rec.BalanceSynced = true
	rec.Synced = false
	s.rows[id] = rec
	return true, nil
}

func (s *incomeStore) ListUnsynced(ctx context.Context) ([]models.IncomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.IncomeRecord
	for _, rec := range s.rows {
		if !rec.Synced {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *incomeStore) MarkSynced(ctx context.Context, rec models.IncomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[rec.ID]
	if !ok || cur.BalanceSynced != rec.BalanceSynced || cur.Status != rec.Status {
		return nil
	}
	cur.Synced = true
	s.rows[rec.ID] = cur
	return nil
}

func TestPushBalancesMarksUploadedRow(t *testing.T) {
	bs := &balStore{rows: map[string]models.UserBalance{
		"u-1": {UserID: "u-1", Amount: 100, UpdatedAt: time.Now()},
	}}
	kv := newFakeKV()
	p := &RedisPusher{prefix: "jalanin", kv: kv, repos: repository.Repos{Balances: bs}, log: testLogger()}

	require.NoError(t, p.PushBalances(context.Background()))
	assert.Equal(t, 1, kv.count("jalanin:balance:u-1"))
	b, _ := bs.Get(context.Background(), "u-1")
	assert.True(t, b.Synced)
}

func TestPushBalancesKeepsRowMutatedMidPush(t *testing.T) {
	ctx := context.Background()
	t1 := time.Now()
	bs := &balStore{rows: map[string]models.UserBalance{
		"u-1": {UserID: "u-1", Amount: 100, UpdatedAt: t1},
	}}
	kv := newFakeKV()
	// a debit commits between the upload and the mark
	kv.onSet = func(string) {
		_ = bs.SetAmount(ctx, "u-1", 50, t1.Add(time.Second))
	}
	p := &RedisPusher{prefix: "jalanin", kv: kv, repos: repository.Repos{Balances: bs}, log: testLogger()}

	require.NoError(t, p.PushBalances(ctx))

	// the stale snapshot was uploaded but the newer amount stays unsynced
	b, _ := bs.Get(ctx, "u-1")
	assert.False(t, b.Synced)

	// the next push uploads the newer amount and marks the row
	kv.onSet = nil
	require.NoError(t, p.PushBalances(ctx))
	assert.Equal(t, 2, kv.count("jalanin:balance:u-1"))
	b, _ = bs.Get(ctx, "u-1")
	assert.True(t, b.Synced)
	assert.Equal(t, int64(50), b.Amount)
}

func TestPushIncomesKeepsRowClaimedMidPush(t *testing.T) {
	ctx := context.Background()
	is := &incomeStore{rows: map[string]models.IncomeRecord{
		"i-1": {ID: "i-1", RecipientID: "u-1", Amount: 80_000, Status: models.IncomeCompleted},
	}}
	kv := newFakeKV()
	// a reconciliation sweep claims the row between the upload and the mark
	kv.onSet = func(string) {
		_, _ = is.ClaimForBalance(ctx, "i-1")
	}
	p := &RedisPusher{prefix: "jalanin", kv: kv, repos: repository.Repos{Incomes: is}, log: testLogger()}

	require.NoError(t, p.PushIncomes(ctx))

	rec := is.rows["i-1"]
	assert.False(t, rec.Synced, "claimed state was never uploaded and must stay unsynced")

	kv.onSet = nil
	require.NoError(t, p.PushIncomes(ctx))
	assert.Equal(t, 2, kv.count("jalanin:income:i-1"))
	rec = is.rows["i-1"]
	assert.True(t, rec.Synced)
	assert.True(t, rec.BalanceSynced)
}

func TestPushBalancesUploadFailureLeavesRowUnsynced(t *testing.T) {
	ctx := context.Background()
	bs := &balStore{rows: map[string]models.UserBalance{
		"u-1": {UserID: "u-1", Amount: 100, UpdatedAt: time.Now()},
	}}
	kv := newFakeKV()
	kv.err = context.DeadlineExceeded
	p := &RedisPusher{prefix: "jalanin", kv: kv, repos: repository.Repos{Balances: bs}, log: testLogger()}

	assert.Error(t, p.PushBalances(ctx))
	b, _ := bs.Get(ctx, "u-1")
	assert.False(t, b.Synced)
}
