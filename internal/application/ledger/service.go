package ledger

import (
	"context"
	"iter"

	domain "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
)

const DefaultPageSize = 50

type Service struct {
	entries  domain.Finder
	pageSize int
}

func NewService(entries domain.Finder, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{entries: entries, pageSize: pageSize}
}

// History yields the entries of one medicine newest first. Pages are fetched
// only as the caller keeps ranging, and every range starts again from the
// newest entry. A fetch error is yielded once and ends the sequence.
func (s *Service) History(ctx context.Context, medicineID int64) iter.Seq2[domain.Entry, error] {
	return func(yield func(domain.Entry, error) bool) {
		var before int64
		for {
			page, err := s.entries.ListByMedicine(ctx, medicineID, before, s.pageSize)
			if err != nil {
				yield(domain.Entry{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			before = page[len(page)-1].ID
		}
	}
}

// Reconciliation compares a medicine's stock with the sum of its ledger.
type Reconciliation struct {
	MedicineID int64
	Stock      int64
	LedgerSum  int64
	Drift      int64
}

func (r Reconciliation) Balanced() bool { return r.Drift == 0 }

// Reconcile reads stock and ledger sum together; concurrent orders never
// show up as drift.
func (s *Service) Reconcile(ctx context.Context, medicineID int64) (Reconciliation, error) {
	b, err := s.entries.BalanceOf(ctx, medicineID)
	if err != nil {
		return Reconciliation{}, err
	}
	return Reconciliation{
		MedicineID: medicineID,
		Stock:      b.Stock,
		LedgerSum:  b.Sum,
		Drift:      b.Stock - b.Sum,
	}, nil
}
