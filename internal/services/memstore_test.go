package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jalanin/wallet-backend/internal/models"
	"github.com/jalanin/wallet-backend/internal/repository"
)

// memStore is an in-memory stand-in for the postgres store. WithTx serializes
// atomic units behind one mutex and restores a snapshot on error, so rollback
// semantics match the real thing closely enough for the service tests.
type memStore struct {
	txMu sync.Mutex // serializes atomic units
	mu   sync.Mutex // guards state

	users    map[string]models.User
	balances map[string]models.UserBalance
	entries  []models.LedgerEntry
	incomes  []models.IncomeRecord
	audits   []models.AuditLog

	nextBalanceID int64

	// failure injection
	appendCalls  int
	failAppendOn int // fail the Nth Append call (1-based), 0 = never

	// conflictNextInsert makes the next Balances.Insert fail with
	// repository.ErrConflict, and afterRollback runs once after the unit
	// rolls back — together they stand in for a concurrent transaction
	// that won an insert race and committed.
	conflictNextInsert bool
	afterRollback      func()
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]models.User{},
		balances: map[string]models.UserBalance{},
	}
}

func (m *memStore) repos() repository.Repos {
	return repository.Repos{
		Users:     &memUsers{m},
		Balances:  &memBalances{m},
		Ledger:    &memLedger{m},
		Incomes:   &memIncomes{m},
		AuditLogs: &memAudits{m},
	}
}

func (m *memStore) WithTx(ctx context.Context, fn func(repository.Repos) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(m.repos()); err != nil {
		m.restore(snap)
		if m.afterRollback != nil {
			hook := m.afterRollback
			m.afterRollback = nil
			hook()
		}
		return err
	}
	return nil
}

type memSnapshot struct {
	balances map[string]models.UserBalance
	entries  []models.LedgerEntry
	incomes  []models.IncomeRecord
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memSnapshot{
		balances: make(map[string]models.UserBalance, len(m.balances)),
		entries:  append([]models.LedgerEntry(nil), m.entries...),
		incomes:  append([]models.IncomeRecord(nil), m.incomes...),
	}
	for k, v := range m.balances {
		s.balances[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = s.balances
	m.entries = s.entries
	m.incomes = s.incomes
}

func (m *memStore) addUser(role string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{
		ID:       uuid.NewString(),
		Username: "user-" + role,
		Email:    uuid.NewString() + "@example.com",
		Role:     role,
	}
	m.users[u.ID] = u
	return u
}

func (m *memStore) addIncome(recipientID string, amount int64, status models.IncomeStatus) models.IncomeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := models.IncomeRecord{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Amount:      amount,
		Status:      status,
		CreatedAt:   time.Now(),
	}
	m.incomes = append(m.incomes, rec)
	return rec
}

// seedWallet installs a wallet row and its opening entry directly, the way
// a concurrently committed initialization would leave them.
func (m *memStore) seedWallet(u models.User, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextBalanceID++
	m.balances[u.ID] = models.UserBalance{
		ID: m.nextBalanceID, UserID: u.ID, Email: u.Email,
		Amount: amount, UpdatedAt: time.Now(),
	}
	m.entries = append(m.entries, models.LedgerEntry{
		ID: uuid.NewString(), UserID: u.ID,
		Type: models.EntryCredit, Source: models.SourceInitialBalance,
		Amount: amount, BalanceAfter: amount, CreatedAt: time.Now(),
	})
}

func (m *memStore) entriesFor(userID string) []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func (m *memStore) incomeByID(id string) (models.IncomeRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.incomes {
		if rec.ID == id {
			return rec, true
		}
	}
	return models.IncomeRecord{}, false
}

// ----- Users -----

type memUsers struct{ s *memStore }

func (r *memUsers) Create(ctx context.Context, username, email, hash, role string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := models.User{ID: uuid.NewString(), Username: username, Email: email, PasswordHash: hash, Role: role, CreatedAt: time.Now()}
	r.s.users[u.ID] = u
	return u, nil
}

func (r *memUsers) GetByID(ctx context.Context, id string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		return u, nil
	}
	return models.User{}, repository.ErrNotFound
}

func (r *memUsers) GetByEmail(ctx context.Context, email string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrNotFound
}

func (r *memUsers) List(ctx context.Context) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.User
	for _, u := range r.s.users {
		out = append(out, u)
	}
	return out, nil
}

// ----- Balances -----

type memBalances struct{ s *memStore }

func (r *memBalances) Get(ctx context.Context, userID string) (models.UserBalance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if b, ok := r.s.balances[userID]; ok {
		return b, nil
	}
	return models.UserBalance{}, repository.ErrNotFound
}

func (r *memBalances) Insert(ctx context.Context, b models.UserBalance) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.conflictNextInsert {
		r.s.conflictNextInsert = false
		return 0, repository.ErrConflict
	}
	if _, ok := r.s.balances[b.UserID]; ok {
		return 0, repository.ErrConflict
	}
	r.s.nextBalanceID++
	b.ID = r.s.nextBalanceID
	r.s.balances[b.UserID] = b
	return b.ID, nil
}

func (r *memBalances) SetAmount(ctx context.Context, userID string, amount int64, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.balances[userID]
	if !ok {
		return repository.ErrNotFound
	}
	b.Amount = amount
	b.UpdatedAt = now
	b.Synced = false
	r.s.balances[userID] = b
	return nil
}

func (r *memBalances) MarkSynced(ctx context.Context, userID string, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.balances[userID]
	if !ok || !b.UpdatedAt.Equal(updatedAt) {
		return nil
	}
	b.Synced = true
	r.s.balances[userID] = b
	return nil
}

func (r *memBalances) ListUnsynced(ctx context.Context) ([]models.UserBalance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.UserBalance
	for _, b := range r.s.balances {
		if !b.Synced {
			out = append(out, b)
		}
	}
	return out, nil
}

// ----- Ledger -----

type memLedger struct{ s *memStore }

func (r *memLedger) Append(ctx context.Context, e models.LedgerEntry) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.appendCalls++
	if r.s.failAppendOn != 0 && r.s.appendCalls == r.s.failAppendOn {
		return "", errors.New("injected append failure")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	r.s.entries = append(r.s.entries, e)
	return e.ID, nil
}

func (r *memLedger) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	all := r.s.entriesFor(userID)
	// newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *memLedger) ListUnsynced(ctx context.Context) ([]models.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range r.s.entries {
		if !e.Synced {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memLedger) MarkSynced(ctx context.Context, ids []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	set := map[string]struct{}{}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for i := range r.s.entries {
		if _, ok := set[r.s.entries[i].ID]; ok {
			r.s.entries[i].Synced = true
		}
	}
	return nil
}

// ----- Incomes -----

type memIncomes struct{ s *memStore }

func (r *memIncomes) Create(ctx context.Context, rec models.IncomeRecord) (models.IncomeRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now()
	r.s.incomes = append(r.s.incomes, rec)
	return rec, nil
}

func (r *memIncomes) ListUnreconciled(ctx context.Context, recipientID string) ([]models.IncomeRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.IncomeRecord
	for _, rec := range r.s.incomes {
		if rec.RecipientID == recipientID && rec.Status == models.IncomeCompleted && !rec.BalanceSynced {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memIncomes) ClaimForBalance(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.incomes {
		if r.s.incomes[i].ID == id {
			if r.s.incomes[i].BalanceSynced {
				return false, nil
			}
			r.s.incomes[i].BalanceSynced = true
			r.s.incomes[i].Synced = false
			return true, nil
		}
	}
	return false, nil
}

func (r *memIncomes) ListUnsynced(ctx context.Context) ([]models.IncomeRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.IncomeRecord
	for _, rec := range r.s.incomes {
		if !rec.Synced {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memIncomes) MarkSynced(ctx context.Context, rec models.IncomeRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.incomes {
		cur := &r.s.incomes[i]
		if cur.ID == rec.ID && cur.BalanceSynced == rec.BalanceSynced && cur.Status == rec.Status {
			cur.Synced = true
		}
	}
	return nil
}

// ----- AuditLogs -----

type memAudits struct{ s *memStore }

func (r *memAudits) Create(ctx context.Context, l models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audits = append(r.s.audits, l)
	return nil
}

// ----- Pusher fake -----

type fakePusher struct {
	mu       sync.Mutex
	balances int
	ledger   int
	incomes  int
}

func (p *fakePusher) PushBalances(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances++
	return nil
}

func (p *fakePusher) PushLedger(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ledger++
	return nil
}

func (p *fakePusher) PushIncomes(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.incomes++
	return nil
}

func (p *fakePusher) counts() (int, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances, p.ledger, p.incomes
}
