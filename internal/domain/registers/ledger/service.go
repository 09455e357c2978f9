package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/core/security"
	"milkwms/internal/core/tx"
	"milkwms/internal/domain"
	"milkwms/internal/domain/masterdata"
	"milkwms/internal/domain/stock"
	"milkwms/pkg/logger"
)

// Service appends to and reads the ledger.
type Service struct {
	repo      Repository
	lookup    masterdata.Lookup
	txManager tx.Manager
	authz     security.Authorizer
}

// NewService creates a ledger service.
func NewService(repo Repository, lookup masterdata.Lookup, txManager tx.Manager, authz security.Authorizer) *Service {
	return &Service{repo: repo, lookup: lookup, txManager: txManager, authz: authz}
}

// AppendEvent writes one row computed from the pair's latest row.
// It joins the caller's transaction so the row commits with the document transition
// that caused it. An event dated before the latest row is stamped with that row's date,
// so rows stay in date order whichever transaction takes the pair lock first.
func (s *Service) AppendEvent(ctx context.Context, ev Event) (*Entry, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	var entry *Entry
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockPair(ctx, ev.Key); err != nil {
			return fmt.Errorf("lock ledger pair: %w", err)
		}
		last, err := s.repo.GetLast(ctx, ev.Key)
		if err != nil {
			return fmt.Errorf("get last entry: %w", err)
		}
		balance := 0
		if last != nil {
			if ev.EventDate.Before(last.EventDate) {
				ev.EventDate = last.EventDate
			}
			balance = last.BalanceAfter
		}

		entry = &Entry{
			ID:             id.New(),
			GoodsID:        ev.Key.GoodsID,
			GoodsPackingID: ev.Key.GoodsPackingID,
			EventDate:      ev.EventDate.UTC(),
			InQty:          ev.InQty,
			OutQty:         ev.OutQty,
			BalanceAfter:   balance + ev.InQty - ev.OutQty,
			TypeChange:     ev.TypeChange,
			DocumentID:     ev.DocumentID,
			DocumentNumber: ev.DocumentNumber,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.repo.Insert(ctx, entry); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "ledger entry appended",
		"goods_id", entry.GoodsID,
		"goods_packing_id", entry.GoodsPackingID,
		"type", entry.TypeChange,
		"balance_after", entry.BalanceAfter,
	)
	return entry, nil
}

// GetLastEntry returns the latest row of a pair; nil means balance 0.
func (s *Service) GetLastEntry(ctx context.Context, goodsID, packingID id.ID) (*Entry, error) {
	return s.repo.GetLast(ctx, stock.GoodsPackingKey{GoodsID: goodsID, GoodsPackingID: packingID})
}

// DeleteEntry removes one row. Later balances are not recomputed; use only on orphaned rows.
func (s *Service) DeleteEntry(ctx context.Context, entryID id.ID) error {
	if err := s.authz.Authorize(ctx, security.ActionLedgerDelete); err != nil {
		return err
	}
	var entry *Entry
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		entry, err = s.repo.GetByID(ctx, entryID)
		if err != nil {
			return err
		}
		return s.repo.Delete(ctx, entryID)
	})
	if err != nil {
		return err
	}
	logger.Warn(ctx, "ledger entry deleted",
		"id", entryID,
		"goods_id", entry.GoodsID,
		"goods_packing_id", entry.GoodsPackingID,
		"balance_after", entry.BalanceAfter,
	)
	return nil
}

// Report pages ledger rows and adds the balance in units of measure.
func (s *Service) Report(ctx context.Context, filter ReportFilter) (domain.ListResult[ReportRow], error) {
	filter.ListFilter = filter.ListFilter.Normalize()
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return domain.ListResult[ReportRow]{}, apperror.NewValidation("date range is reversed")
	}

	page, err := s.repo.Report(ctx, filter)
	if err != nil {
		return domain.ListResult[ReportRow]{}, fmt.Errorf("ledger report: %w", err)
	}

	packings := make(map[id.ID]*masterdata.GoodsPacking)
	rows := make([]ReportRow, 0, len(page.Items))
	for _, e := range page.Items {
		p, ok := packings[e.GoodsPackingID]
		if !ok {
			p, err = s.lookup.GetGoodsPacking(ctx, e.GoodsPackingID)
			if err != nil && !apperror.IsNotFound(err) {
				return domain.ListResult[ReportRow]{}, err
			}
			packings[e.GoodsPackingID] = p
		}
		row := ReportRow{Entry: e, UnitsAfter: decimal.Zero}
		if p != nil {
			row.UnitMeasure = p.UnitMeasure
			row.UnitsAfter = p.UnitPerPackage.Mul(decimal.NewFromInt(int64(e.BalanceAfter)))
		}
		rows = append(rows, row)
	}

	return domain.ListResult[ReportRow]{
		Items:      rows,
		TotalCount: page.TotalCount,
		Limit:      page.Limit,
		Offset:     page.Offset,
	}, nil
}

// VerifyChain replays the pair's rows and reports the first broken balance.
func (s *Service) VerifyChain(ctx context.Context, goodsID, packingID id.ID) error {
	entries, err := s.repo.ListChain(ctx, stock.GoodsPackingKey{GoodsID: goodsID, GoodsPackingID: packingID})
	if err != nil {
		return fmt.Errorf("list chain: %w", err)
	}
	return Verify(entries)
}

// Verify checks the running balance of rows already ordered by (event_date, seq).
func Verify(entries []Entry) error {
	balance := 0
	for i := range entries {
		e := &entries[i]
		if i > 0 && e.EventDate.Before(entries[i-1].EventDate) {
			return apperror.NewConflict("ledger rows are out of date order").
				WithDetail("entry_id", e.ID.String())
		}
		balance += e.InQty - e.OutQty
		if e.BalanceAfter != balance {
			return apperror.NewConflict("ledger balance chain is broken").
				WithDetail("entry_id", e.ID.String()).
				WithDetail("seq", e.Seq).
				WithDetail("expected", balance).
				WithDetail("actual", e.BalanceAfter)
		}
	}
	return nil
}
