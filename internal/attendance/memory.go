package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/account"
)

// MemoryRepository is a mutex-guarded in-memory record store for dev and
// tests. The check-and-insert under one lock gives the same atomicity the
// Postgres partial unique indexes provide.
type MemoryRepository struct {
	mu       sync.Mutex
	records  []Record
	accounts account.Repository // optional, resolves student names on reads
	dedupNet bool
}

func NewMemoryRepository(accounts account.Repository, dedupByNetwork bool) *MemoryRepository {
	return &MemoryRepository{accounts: accounts, dedupNet: dedupByNetwork}
}

func (r *MemoryRepository) Insert(_ context.Context, rec Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !rec.Suspicious {
		for _, existing := range r.records {
			if existing.Suspicious || existing.SessionID != rec.SessionID {
				continue
			}
			if existing.StudentID == rec.StudentID {
				return Record{}, ErrDuplicateRecord
			}
			if r.dedupNet && existing.NetworkAddr == rec.NetworkAddr {
				return Record{}, ErrDuplicateRecord
			}
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	r.records = append(r.records, rec)
	return rec, nil
}

func (r *MemoryRepository) FindNonSuspicious(_ context.Context, sessionID, studentID, networkAddr string, byNetwork bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.Suspicious || rec.SessionID != sessionID {
			continue
		}
		if rec.StudentID == studentID {
			return "student", nil
		}
		if byNetwork && rec.NetworkAddr == networkAddr {
			return "network", nil
		}
	}
	return "", nil
}

func (r *MemoryRepository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	return r.list(ctx, func(rec Record) bool { return rec.SessionID == sessionID })
}

func (r *MemoryRepository) ListByStudent(ctx context.Context, studentID string) ([]Record, error) {
	return r.list(ctx, func(rec Record) bool { return rec.StudentID == studentID })
}

func (r *MemoryRepository) list(ctx context.Context, keep func(Record) bool) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Record
	for _, rec := range r.records {
		if !keep(rec) {
			continue
		}
		if r.accounts != nil {
			if acct, err := r.accounts.GetByID(ctx, rec.StudentID); err == nil {
				rec.StudentName = acct.Name
				rec.StudentExternalID = acct.ExternalID
			}
		}
		res = append(res, rec)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].MarkedAt.Before(res[j].MarkedAt) })
	return res, nil
}
