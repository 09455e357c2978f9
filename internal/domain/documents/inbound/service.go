package inbound

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"milkwms/internal/core/apperror"
	appctx "milkwms/internal/core/context"
	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/core/numerator"
	"milkwms/internal/core/security"
	"milkwms/internal/core/tx"
	"milkwms/internal/domain"
	"milkwms/internal/domain/audit"
	"milkwms/internal/domain/masterdata"
	"milkwms/internal/domain/registers/ledger"
	"milkwms/internal/domain/stock"
	"milkwms/pkg/logger"
)

// NumeratorStrategy numbers orders and receipts without gaps.
const NumeratorStrategy = numerator.StrategyStrict

// LedgerWriter appends ledger rows inside the caller's transaction.
type LedgerWriter interface {
	AppendEvent(ctx context.Context, ev ledger.Event) (*ledger.Entry, error)
}

// Deps wires a Service.
type Deps struct {
	Repo       Repository
	Batches    *stock.BatchService
	Pallets    stock.PalletRepository
	Ledger     LedgerWriter
	Lookup     masterdata.Lookup
	Numerator  numerator.Generator
	TxManager  tx.Manager
	Authorizer security.Authorizer
	Audit      audit.Recorder
}

// Service drives purchase orders and goods receipts.
type Service struct {
	repo      Repository
	batches   *stock.BatchService
	pallets   stock.PalletRepository
	ledger    LedgerWriter
	lookup    masterdata.Lookup
	numerator numerator.Generator
	txManager tx.Manager
	authz     security.Authorizer
	audit     audit.Recorder
}

// NewService creates an inbound service.
func NewService(d Deps) *Service {
	rec := d.Audit
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Service{
		repo:      d.Repo,
		batches:   d.Batches,
		pallets:   d.Pallets,
		ledger:    d.Ledger,
		lookup:    d.Lookup,
		numerator: d.Numerator,
		txManager: d.TxManager,
		authz:     d.Authorizer,
		audit:     rec,
	}
}

// PurchaseOrderInput creates a purchase order.
type PurchaseOrderInput struct {
	SupplierID      id.ID
	Date            time.Time
	ExpectedArrival *time.Time
	Comment         string
	Lines           []LineInput
}

// CreatePurchaseOrder creates a draft order.
func (s *Service) CreatePurchaseOrder(ctx context.Context, in PurchaseOrderInput) (*PurchaseOrder, error) {
	if _, err := s.lookup.GetSupplier(ctx, in.SupplierID); err != nil {
		return nil, err
	}
	po := &PurchaseOrder{
		Document:        entity.NewDocument(appctx.GetUserID(ctx)),
		SupplierID:      in.SupplierID,
		Status:          PODraft,
		ExpectedArrival: in.ExpectedArrival,
	}
	if !in.Date.IsZero() {
		po.Date = in.Date.UTC()
	}
	po.Comment = strings.TrimSpace(in.Comment)
	po.SetLines(in.Lines)
	if err := s.validateLines(ctx, po, false); err != nil {
		return nil, err
	}

	number, err := s.nextNumber(ctx, numerator.PrefixPurchaseOrder)
	if err != nil {
		return nil, err
	}
	po.Number = number

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.CreatePurchaseOrder(ctx, po); err != nil {
			return fmt.Errorf("create purchase order: %w", err)
		}
		if err := s.repo.SavePurchaseOrderLines(ctx, po.ID, po.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return s.recordPO(ctx, po, "", "")
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "purchase order created", "id", po.ID, "number", po.Number)
	return po, nil
}

// UpdatePurchaseOrderLines replaces the lines of a draft or rejected order.
func (s *Service) UpdatePurchaseOrderLines(ctx context.Context, poID id.ID, lines []LineInput) (*PurchaseOrder, error) {
	var po *PurchaseOrder
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		po, err = s.repo.GetPurchaseOrderForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		from := po.Status
		switch po.Status {
		case PODraft:
		case PORejected:
			if err := po.Transition(PODraft); err != nil {
				return err
			}
		default:
			return apperror.NewInvalidTransition(POTransitions.Entity(), string(po.Status), string(PODraft))
		}
		po.SetLines(lines)
		if err := s.validateLines(ctx, po, false); err != nil {
			return err
		}
		po.Touch(appctx.GetUserID(ctx))
		if err := s.repo.SavePurchaseOrderLines(ctx, po.ID, po.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		if err := s.repo.UpdatePurchaseOrder(ctx, po); err != nil {
			return err
		}
		if from != po.Status {
			return s.recordPO(ctx, po, from, "")
		}
		return nil
	})
	return po, err
}

// SubmitPurchaseOrder sends a draft or rejected order for approval.
func (s *Service) SubmitPurchaseOrder(ctx context.Context, poID id.ID) (*PurchaseOrder, error) {
	return s.advancePO(ctx, poID, POPendingApproval, func(ctx context.Context, po *PurchaseOrder) error {
		if err := s.validateLines(ctx, po, true); err != nil {
			return err
		}
		po.RejectionReason = ""
		return nil
	})
}

// ApprovePurchaseOrder approves a pending order.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, poID id.ID) (*PurchaseOrder, error) {
	if err := s.authz.Authorize(ctx, security.ActionPurchaseApprove); err != nil {
		return nil, err
	}
	return s.advancePO(ctx, poID, POApproved, func(ctx context.Context, po *PurchaseOrder) error {
		now := time.Now().UTC()
		po.ApprovedBy = appctx.GetUserID(ctx)
		po.ApprovedAt = &now
		return nil
	})
}

// RejectPurchaseOrder rejects a pending order with a reason.
func (s *Service) RejectPurchaseOrder(ctx context.Context, poID id.ID, reason string) (*PurchaseOrder, error) {
	if err := s.authz.Authorize(ctx, security.ActionPurchaseApprove); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.NewValidation("rejection reason is required").WithDetail("field", "reason")
	}
	return s.advancePO(ctx, poID, PORejected, func(ctx context.Context, po *PurchaseOrder) error {
		po.RejectionReason = reason
		return nil
	})
}

// MarkOrdered records that the order was sent to the supplier.
func (s *Service) MarkOrdered(ctx context.Context, poID id.ID) (*PurchaseOrder, error) {
	return s.advancePO(ctx, poID, POOrdered, nil)
}

// MarkAwaitingArrival records that the supplier confirmed shipment.
func (s *Service) MarkAwaitingArrival(ctx context.Context, poID id.ID) (*PurchaseOrder, error) {
	return s.advancePO(ctx, poID, POAwaitingArrival, nil)
}

// CancelPurchaseOrder cancels an order that has not shipped.
func (s *Service) CancelPurchaseOrder(ctx context.Context, poID id.ID) (*PurchaseOrder, error) {
	return s.advancePO(ctx, poID, POCancelled, nil)
}

// GetPurchaseOrder returns an order with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, poID id.ID) (*PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, poID)
}

// ListPurchaseOrders pages orders.
func (s *Service) ListPurchaseOrders(ctx context.Context, filter ListFilter) (domain.ListResult[*PurchaseOrder], error) {
	filter.ListFilter = filter.ListFilter.Normalize()
	return s.repo.ListPurchaseOrders(ctx, filter)
}

// CreateGoodsReceipt opens the receipt of an order whose goods arrived. One receipt per order.
func (s *Service) CreateGoodsReceipt(ctx context.Context, poID id.ID) (*GoodsReceipt, error) {
	number, err := s.nextNumber(ctx, numerator.PrefixGoodsReceiptNote)
	if err != nil {
		return nil, err
	}

	var g *GoodsReceipt
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		po, err := s.repo.GetPurchaseOrderForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		existing, err := s.repo.FindGoodsReceiptByPO(ctx, po.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperror.NewConflict("purchase order already has a goods receipt").
				WithDetail("purchase_order_id", po.ID.String()).
				WithDetail("goods_receipt_id", existing.ID.String())
		}
		from := po.Status
		if err := po.Transition(POReceiving); err != nil {
			return err
		}

		g = newReceipt(po, number, appctx.GetUserID(ctx))
		if err := s.repo.CreateGoodsReceipt(ctx, g); err != nil {
			return err
		}
		po.Touch(appctx.GetUserID(ctx))
		if err := s.repo.UpdatePurchaseOrder(ctx, po); err != nil {
			return err
		}
		if err := s.recordPO(ctx, po, from, ""); err != nil {
			return err
		}
		return s.recordGRN(ctx, g, "")
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "goods receipt created", "id", g.ID, "number", g.Number, "purchase_order_id", poID)
	return g, nil
}

// InspectLine records received and rejected packages of one detail.
// When every detail is inspected the receipt becomes inspected.
func (s *Service) InspectLine(ctx context.Context, grnID, detailID id.ID, in Inspection) (*GoodsReceipt, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.LocationID != nil && in.ReceivedQuantity > in.RejectedQuantity {
		if _, err := s.lookup.GetLocation(ctx, *in.LocationID); err != nil {
			return nil, err
		}
	}

	var g *GoodsReceipt
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		g, err = s.repo.GetGoodsReceiptForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		if g.Status != GRNReceiving && g.Status != GRNInspected {
			return apperror.NewInvalidTransition(GRNTransitions.Entity(), string(g.Status), string(GRNInspected))
		}
		var d *GRNDetail
		for i := range g.Details {
			if g.Details[i].ID == detailID {
				d = &g.Details[i]
			}
		}
		if d == nil {
			return apperror.NewNotFound("goods receipt detail", detailID)
		}
		if d.Status == GRNReceiving {
			if err := GRNTransitions.Check(d.Status, GRNInspected); err != nil {
				return err
			}
			d.Status = GRNInspected
		}
		d.ReceivedQuantity = in.ReceivedQuantity
		d.RejectedQuantity = in.RejectedQuantity
		d.BatchCode = strings.TrimSpace(in.BatchCode)
		d.ManufacturingDate = in.ManufacturingDate
		d.ExpiryDate = in.ExpiryDate
		d.LocationID = in.LocationID

		from := g.Status
		if g.Status == GRNReceiving && allDetails(g, GRNInspected) {
			if err := g.Transition(GRNInspected); err != nil {
				return err
			}
		}
		g.Touch(appctx.GetUserID(ctx))
		if err := s.repo.UpdateGoodsReceipt(ctx, g); err != nil {
			return err
		}
		if from != g.Status {
			return s.recordGRN(ctx, g, from)
		}
		return nil
	})
	return g, err
}

// SubmitGoodsReceipt sends an inspected receipt for approval.
func (s *Service) SubmitGoodsReceipt(ctx context.Context, grnID id.ID) (*GoodsReceipt, error) {
	var g *GoodsReceipt
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		g, err = s.repo.GetGoodsReceiptForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		po, err := s.repo.GetPurchaseOrderForUpdate(ctx, g.PurchaseOrderID)
		if err != nil {
			return err
		}
		grnFrom, poFrom := g.Status, po.Status
		if err := g.Transition(GRNPendingApproval); err != nil {
			return err
		}
		for i := range g.Details {
			g.Details[i].Status = GRNPendingApproval
		}
		if err := po.Transition(POGoodsReceived); err != nil {
			return err
		}
		user := appctx.GetUserID(ctx)
		g.Touch(user)
		po.Touch(user)
		if err := s.repo.UpdateGoodsReceipt(ctx, g); err != nil {
			return err
		}
		if err := s.repo.UpdatePurchaseOrder(ctx, po); err != nil {
			return err
		}
		if err := s.recordGRN(ctx, g, grnFrom); err != nil {
			return err
		}
		return s.recordPO(ctx, po, poFrom, "")
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "goods receipt submitted", "id", g.ID, "number", g.Number)
	return g, nil
}

// ApproveGoodsReceipt puts accepted packages on pallets and records receipts in the ledger.
// Batches are matched by code per supplier or created. All or nothing.
func (s *Service) ApproveGoodsReceipt(ctx context.Context, grnID id.ID) (*GoodsReceipt, error) {
	if err := s.authz.Authorize(ctx, security.ActionReceiptApprove); err != nil {
		return nil, err
	}

	var g *GoodsReceipt
	pallets := 0
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		g, err = s.repo.GetGoodsReceiptForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		po, err := s.repo.GetPurchaseOrderForUpdate(ctx, g.PurchaseOrderID)
		if err != nil {
			return err
		}
		grnFrom, poFrom := g.Status, po.Status
		if err := g.Transition(GRNCompleted); err != nil {
			return err
		}
		if err := po.Transition(POCompleted); err != nil {
			return err
		}

		sort.Slice(g.Details, func(i, j int) bool { return g.Details[i].LineNo < g.Details[j].LineNo })
		details := make([]*GRNDetail, len(g.Details))
		for i := range g.Details {
			details[i] = &g.Details[i]
		}
		stock.SortByKey(details, (*GRNDetail).Key)
		now := time.Now().UTC()
		for _, d := range details {
			if d.Accepted() > 0 {
				p, err := s.receive(ctx, g, d, now)
				if err != nil {
					return err
				}
				d.PalletID = &p.ID
				pallets++
			}
			d.Status = GRNCompleted
		}

		user := appctx.GetUserID(ctx)
		g.ApprovedBy = user
		g.Touch(user)
		po.Touch(user)
		if err := s.repo.UpdateGoodsReceipt(ctx, g); err != nil {
			return err
		}
		if err := s.repo.UpdatePurchaseOrder(ctx, po); err != nil {
			return err
		}
		if err := s.recordGRN(ctx, g, grnFrom, "pallets", pallets); err != nil {
			return err
		}
		return s.recordPO(ctx, po, poFrom, "")
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "goods receipt approved", "id", g.ID, "number", g.Number, "pallets", pallets)
	return g, nil
}

func (s *Service) receive(ctx context.Context, g *GoodsReceipt, d *GRNDetail, at time.Time) (*stock.Pallet, error) {
	in := stock.BatchInput{
		GoodsID:    d.GoodsID,
		SupplierID: g.SupplierID,
		Code:       d.BatchCode,
		Status:     stock.BatchActive,
	}
	if d.ManufacturingDate != nil {
		in.ManufacturingDate = *d.ManufacturingDate
	}
	if d.ExpiryDate != nil {
		in.ExpiryDate = *d.ExpiryDate
	}
	batch, err := s.batches.FindOrCreate(ctx, in)
	if err != nil {
		return nil, err
	}
	if d.LocationID == nil {
		return nil, apperror.NewValidation("location is required").WithDetail("lineNo", d.LineNo)
	}
	p, err := stock.NewPallet(batch, d.GoodsPackingID, *d.LocationID, d.Accepted())
	if err != nil {
		return nil, err
	}
	if err := s.pallets.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create pallet: %w", err)
	}
	if _, err := s.ledger.AppendEvent(ctx, ledger.Event{
		Key:            d.Key(),
		EventDate:      at,
		InQty:          d.Accepted(),
		TypeChange:     ledger.TypeReceipt,
		DocumentID:     &g.ID,
		DocumentNumber: g.Number,
	}); err != nil {
		return nil, fmt.Errorf("append ledger: %w", err)
	}
	return p, nil
}

// GetGoodsReceipt returns a receipt with its details.
func (s *Service) GetGoodsReceipt(ctx context.Context, grnID id.ID) (*GoodsReceipt, error) {
	return s.repo.GetGoodsReceipt(ctx, grnID)
}

func (s *Service) advancePO(ctx context.Context, poID id.ID, to POStatus, guard func(ctx context.Context, po *PurchaseOrder) error) (*PurchaseOrder, error) {
	var po *PurchaseOrder
	var from POStatus
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		po, err = s.repo.GetPurchaseOrderForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		from = po.Status
		if err := POTransitions.Check(po.Status, to); err != nil {
			return err
		}
		if guard != nil {
			if err := guard(ctx, po); err != nil {
				return err
			}
		}
		po.Status = to
		po.Touch(appctx.GetUserID(ctx))
		if err := s.repo.UpdatePurchaseOrder(ctx, po); err != nil {
			return err
		}
		return s.recordPO(ctx, po, from, po.RejectionReason)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "purchase order status changed", "id", po.ID, "number", po.Number, "from", from, "to", po.Status)
	return po, nil
}

func (s *Service) validateLines(ctx context.Context, po *PurchaseOrder, requireLines bool) error {
	if requireLines {
		if err := po.ValidateLines(); err != nil {
			return err
		}
	}
	for _, l := range po.Lines {
		if l.PackageQuantity <= 0 {
			return apperror.NewValidation("line quantity must be positive").WithDetail("lineNo", l.LineNo)
		}
		if _, _, err := masterdata.RequireActiveGoodsPacking(ctx, s.lookup, l.GoodsID, l.GoodsPackingID); err != nil {
			return err
		}
	}
	return nil
}

func allDetails(g *GoodsReceipt, status GRNStatus) bool {
	for _, d := range g.Details {
		if d.Status != status {
			return false
		}
	}
	return len(g.Details) > 0
}

func (s *Service) nextNumber(ctx context.Context, prefix string) (string, error) {
	number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig(prefix), &numerator.Options{Strategy: NumeratorStrategy}, time.Now())
	if err != nil {
		return "", fmt.Errorf("generate number: %w", err)
	}
	return number, nil
}

func (s *Service) recordPO(ctx context.Context, po *PurchaseOrder, from POStatus, reason string) error {
	return s.audit.RecordTransition(ctx, audit.Transition{
		EntityType: audit.EntityPurchaseOrder,
		EntityID:   po.ID,
		From:       string(from),
		To:         string(po.Status),
		Reason:     reason,
		UserID:     appctx.GetUserID(ctx),
		At:         time.Now().UTC(),
	})
}

func (s *Service) recordGRN(ctx context.Context, g *GoodsReceipt, from GRNStatus, kv ...any) error {
	var meta map[string]any
	if len(kv) == 2 {
		meta = map[string]any{fmt.Sprint(kv[0]): kv[1]}
	}
	return s.audit.RecordTransition(ctx, audit.Transition{
		EntityType: audit.EntityGoodsReceiptNote,
		EntityID:   g.ID,
		From:       string(from),
		To:         string(g.Status),
		Metadata:   meta,
		UserID:     appctx.GetUserID(ctx),
		At:         time.Now().UTC(),
	})
}
