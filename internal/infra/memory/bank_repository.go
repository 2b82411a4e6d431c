package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-room-service/internal/domain"
)

// BankRepository is a per-process bank cache for deployments without Redis.
// Entries are evicted ttl after they were loaded; concurrent fills for the
// same bank collapse into one loader call.
type BankRepository struct {
	loader domain.BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu      sync.Mutex
	entries map[string]bankEntry
}

type bankEntry struct {
	bank   domain.QuestionBank
	loaded time.Time
}

func NewBankRepository(loader domain.BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]bankEntry),
	}
}

func (r *BankRepository) GetBank(ctx context.Context, bankID string) (domain.QuestionBank, error) {
	if bank, ok := r.lookup(bankID); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(bankID, func() (interface{}, error) {
		// Another caller may have filled the entry while we waited.
		if bank, ok := r.lookup(bankID); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadBank(ctx, bankID)
		if err != nil {
			return domain.QuestionBank{}, err
		}

		r.mu.Lock()
		r.entries[bankID] = bankEntry{bank: bank, loaded: r.clock()}
		r.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return domain.QuestionBank{}, err
	}
	return result.(domain.QuestionBank), nil
}

// lookup returns a live entry and evicts an expired one.
func (r *BankRepository) lookup(bankID string) (domain.QuestionBank, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[bankID]
	if !ok {
		return domain.QuestionBank{}, false
	}
	if r.ttl > 0 && r.clock().Sub(entry.loaded) >= r.ttl {
		delete(r.entries, bankID)
		return domain.QuestionBank{}, false
	}
	return entry.bank, true
}

// StaticBankLoader serves banks from a fixed map, for tests and demo mode.
type StaticBankLoader struct {
	banks map[string]domain.QuestionBank
}

func NewStaticBankLoader(banks map[string]domain.QuestionBank) *StaticBankLoader {
	return &StaticBankLoader{banks: banks}
}

func (l *StaticBankLoader) LoadBank(_ context.Context, bankID string) (domain.QuestionBank, error) {
	if bank, ok := l.banks[bankID]; ok {
		return bank, nil
	}
	return domain.QuestionBank{}, domain.ErrBankNotFound
}
