package memory

import (
	"context"
	"sort"
	"time"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/domain/registers/ledger"
	"milkwms/internal/domain/stock"
)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	store *Store
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// LockPair is a no-op: transactions already run one at a time.
func (r *LedgerRepo) LockPair(context.Context, stock.GoodsPackingKey) error {
	return nil
}

func chainLess(a, b ledger.Entry) bool {
	if !a.EventDate.Equal(b.EventDate) {
		return a.EventDate.Before(b.EventDate)
	}
	return a.Seq < b.Seq
}

func (r *LedgerRepo) chain(key stock.GoodsPackingKey) []ledger.Entry {
	var out []ledger.Entry
	r.store.read(func(d *state) {
		for _, e := range d.ledger {
			if e.Key() == key {
				out = append(out, e)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return chainLess(out[i], out[j]) })
	return out
}

func (r *LedgerRepo) GetLast(_ context.Context, key stock.GoodsPackingKey) (*ledger.Entry, error) {
	chain := r.chain(key)
	if len(chain) == 0 {
		return nil, nil
	}
	last := chain[len(chain)-1]
	return &last, nil
}

func (r *LedgerRepo) Insert(_ context.Context, e *ledger.Entry) error {
	return r.store.write(func(d *state) error {
		d.ledgerSeq++
		e.Seq = d.ledgerSeq
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		d.ledger[e.ID] = *e
		return nil
	})
}

func (r *LedgerRepo) GetByID(_ context.Context, entryID id.ID) (*ledger.Entry, error) {
	var out *ledger.Entry
	r.store.read(func(d *state) {
		if e, ok := d.ledger[entryID]; ok {
			out = &e
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("ledger entry", entryID)
	}
	return out, nil
}

func (r *LedgerRepo) Delete(_ context.Context, entryID id.ID) error {
	return r.store.write(func(d *state) error {
		if _, ok := d.ledger[entryID]; !ok {
			return apperror.NewNotFound("ledger entry", entryID)
		}
		delete(d.ledger, entryID)
		return nil
	})
}

func (r *LedgerRepo) ListChain(_ context.Context, key stock.GoodsPackingKey) ([]ledger.Entry, error) {
	return r.chain(key), nil
}

func (r *LedgerRepo) Report(_ context.Context, f ledger.ReportFilter) (domain.ListResult[ledger.Entry], error) {
	types := make(map[ledger.TypeChange]bool, len(f.Types))
	for _, t := range f.Types {
		types[t] = true
	}
	var rows []ledger.Entry
	r.store.read(func(d *state) {
		for _, e := range d.ledger {
			if g, ok := d.goods[e.GoodsID]; ok && g.IsDeleted {
				continue
			}
			if f.From != nil && e.EventDate.Before(*f.From) {
				continue
			}
			if f.To != nil && e.EventDate.After(*f.To) {
				continue
			}
			if f.GoodsID != nil && e.GoodsID != *f.GoodsID {
				continue
			}
			if f.GoodsPackingID != nil && e.GoodsPackingID != *f.GoodsPackingID {
				continue
			}
			if len(types) > 0 && !types[e.TypeChange] {
				continue
			}
			rows = append(rows, e)
		}
	})
	sort.Slice(rows, func(i, j int) bool { return chainLess(rows[i], rows[j]) })
	return domain.Page(rows, f.ListFilter), nil
}
