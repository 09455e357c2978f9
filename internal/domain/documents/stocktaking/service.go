package stocktaking

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
	"milkwms/internal/core/lock"
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

// LedgerWriter appends ledger rows inside the caller's transaction.
type LedgerWriter interface {
	AppendEvent(ctx context.Context, ev ledger.Event) (*ledger.Entry, error)
}

// Deps wires a Service.
type Deps struct {
	Repo        Repository
	Pallets     stock.PalletRepository
	Allocations stock.AllocationRepository
	Ledger      LedgerWriter
	Lookup      masterdata.Lookup
	Numerator   numerator.Generator
	TxManager   tx.Manager
	Authorizer  security.Authorizer
	Audit       audit.Recorder
	Locker      lock.Locker

	// HoursBeforeStartToAllowEdit defaults to 6.
	HoursBeforeStartToAllowEdit int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service runs stocktaking sheets.
type Service struct {
	repo        Repository
	pallets     stock.PalletRepository
	allocations stock.AllocationRepository
	ledger      LedgerWriter
	lookup      masterdata.Lookup
	numerator   numerator.Generator
	txManager   tx.Manager
	authz       security.Authorizer
	audit       audit.Recorder
	locker      lock.Locker
	editHours   int
	now         func() time.Time
}

// NewService creates a stocktaking service.
func NewService(d Deps) *Service {
	s := &Service{
		repo:        d.Repo,
		pallets:     d.Pallets,
		allocations: d.Allocations,
		ledger:      d.Ledger,
		lookup:      d.Lookup,
		numerator:   d.Numerator,
		txManager:   d.TxManager,
		authz:       d.Authorizer,
		audit:       d.Audit,
		locker:      d.Locker,
		editHours:   d.HoursBeforeStartToAllowEdit,
		now:         d.Clock,
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.editHours <= 0 {
		s.editHours = DefaultHoursBeforeStartToAllowEdit
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// SheetInput creates or edits a sheet.
type SheetInput struct {
	AreaIDs   []id.ID
	StartTime time.Time
	Note      string
}

func (in SheetInput) validate() error {
	if in.StartTime.IsZero() {
		return apperror.NewValidation("start time is required").WithDetail("field", "startTime")
	}
	if len(in.AreaIDs) == 0 {
		return apperror.NewValidation("at least one area is required").WithDetail("field", "areaIds")
	}
	seen := make(map[id.ID]struct{}, len(in.AreaIDs))
	for _, a := range in.AreaIDs {
		if _, dup := seen[a]; dup {
			return apperror.NewValidation("area listed twice").WithDetail("area_id", a.String())
		}
		seen[a] = struct{}{}
	}
	return nil
}

// CreateStocktakingSheet creates a draft sheet with one row per area and per location in it.
func (s *Service) CreateStocktakingSheet(ctx context.Context, in SheetInput) (*Sheet, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	sheet := &Sheet{
		Document:  entity.NewDocument(appctx.GetUserID(ctx)),
		Status:    SheetDraft,
		StartTime: in.StartTime.UTC(),
	}
	sheet.Comment = strings.TrimSpace(in.Note)
	areas, err := s.buildAreas(ctx, sheet.ID, in.AreaIDs, nil)
	if err != nil {
		return nil, err
	}
	sheet.Areas = areas

	number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig(numerator.PrefixStocktaking),
		&numerator.Options{Strategy: NumeratorStrategy}, s.now())
	if err != nil {
		return nil, fmt.Errorf("generate number: %w", err)
	}
	sheet.Number = number

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateSheet(ctx, sheet); err != nil {
			return fmt.Errorf("create sheet: %w", err)
		}
		return s.record(ctx, sheet, "", nil)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "stocktaking sheet created", "id", sheet.ID, "number", sheet.Number, "areas", len(sheet.Areas))
	return sheet, nil
}

// UpdateSheet edits start time and note; areas may change only while the sheet is a draft.
// Fails with EDIT_LOCKED once the start is closer than the edit window.
func (s *Service) UpdateSheet(ctx context.Context, sheetID id.ID, in SheetInput) (*Sheet, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var sheet *Sheet
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sheet, err = s.repo.GetSheetForUpdate(ctx, sheetID)
		if err != nil {
			return err
		}
		if err := s.checkEditable(sheet); err != nil {
			return err
		}
		if !sameAreas(sheet, in.AreaIDs) {
			if sheet.Status != SheetDraft {
				return apperror.NewValidation("areas can only change while the sheet is a draft").
					WithDetail("status", string(sheet.Status))
			}
			keep := make(map[id.ID]string, len(sheet.Areas))
			for _, a := range sheet.Areas {
				keep[a.AreaID] = a.AssignTo
			}
			areas, err := s.buildAreas(ctx, sheet.ID, in.AreaIDs, keep)
			if err != nil {
				return err
			}
			if err := s.repo.ReplaceAreas(ctx, sheet.ID, areas); err != nil {
				return fmt.Errorf("replace areas: %w", err)
			}
			sheet.Areas = areas
		}
		sheet.StartTime = in.StartTime.UTC()
		sheet.Comment = strings.TrimSpace(in.Note)
		// A new start may have moved the sheet out of the edit window.
		if err := s.checkEditable(sheet); err != nil {
			return err
		}
		from := sheet.Status
		if sheet.Status == SheetDraft && sheet.AllAssigned() {
			if err := sheet.Transition(SheetAssigned); err != nil {
				return err
			}
		}
		sheet.Touch(appctx.GetUserID(ctx))
		if err := s.repo.UpdateSheet(ctx, sheet); err != nil {
			return err
		}
		if from != sheet.Status {
			return s.record(ctx, sheet, from, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "stocktaking sheet updated", "id", sheet.ID, "start_time", sheet.StartTime)
	return sheet, nil
}

// AssignArea assigns (or reassigns) an area to a staff member. Once every area has
// an assignee the sheet becomes assigned. Subject to the edit window.
func (s *Service) AssignArea(ctx context.Context, sheetID, areaID id.ID, staffID string) (*Sheet, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return nil, apperror.NewValidation("staff member is required").WithDetail("field", "assignTo")
	}
	var sheet *Sheet
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sheet, err = s.repo.GetSheetForUpdate(ctx, sheetID)
		if err != nil {
			return err
		}
		if err := s.checkEditable(sheet); err != nil {
			return err
		}
		area := sheet.Area(areaID)
		if area == nil {
			return apperror.NewNotFound("stocktaking area", areaID)
		}
		if area.AssignTo == staffID {
			return nil
		}
		if area.Status == AreaUnassigned {
			if err := AreaTransitions.Check(area.Status, AreaAssigned); err != nil {
				return err
			}
			area.Status = AreaAssigned
		}
		area.AssignTo = staffID
		if err := s.repo.UpdateArea(ctx, area); err != nil {
			return err
		}

		from := sheet.Status
		if sheet.Status == SheetDraft && sheet.AllAssigned() {
			if err := sheet.Transition(SheetAssigned); err != nil {
				return err
			}
		}
		sheet.Touch(appctx.GetUserID(ctx))
		if err := s.repo.UpdateSheet(ctx, sheet); err != nil {
			return err
		}
		if err := s.recordArea(ctx, area, "assign_to", staffID); err != nil {
			return err
		}
		if from != sheet.Status {
			return s.record(ctx, sheet, from, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "stocktaking area assigned", "sheet_id", sheetID, "area_id", areaID, "assign_to", staffID)
	return sheet, nil
}

// StartStocktaking snapshots the pallets expected at every location and opens counting.
func (s *Service) StartStocktaking(ctx context.Context, sheetID id.ID) (*Sheet, error) {
	var sheet *Sheet
	expected := 0
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sheet, err = s.repo.GetSheetForUpdate(ctx, sheetID)
		if err != nil {
			return err
		}
		from := sheet.Status
		if err := sheet.Transition(SheetInProgress); err != nil {
			return err
		}
		if !sheet.AllAssigned() {
			return apperror.NewValidation("every area needs an assignee before counting starts")
		}

		pallets, err := s.pallets.ListAvailableByLocations(ctx, sheet.LocationIDs())
		if err != nil {
			return fmt.Errorf("list pallets: %w", err)
		}
		byLocation := make(map[id.ID][]stock.Pallet)
		for _, p := range pallets {
			byLocation[p.LocationID] = append(byLocation[p.LocationID], p)
		}

		var rows []PalletRow
		for i := range sheet.Areas {
			a := &sheet.Areas[i]
			for j := range a.Locations {
				l := &a.Locations[j]
				for _, p := range byLocation[l.LocationID] {
					row := PalletRow{
						ID:               id.New(),
						SheetID:          sheet.ID,
						SheetLocationID:  l.ID,
						LocationID:       l.LocationID,
						PalletID:         p.ID,
						Expected:         true,
						ExpectedQuantity: p.PackageQuantity,
						Status:           PalletUnscanned,
					}
					rows = append(rows, row)
					l.Pallets = append(l.Pallets, row)
				}
			}
			if err := AreaTransitions.Check(a.Status, AreaPending); err != nil {
				return err
			}
			a.Status = AreaPending
			if err := s.repo.UpdateArea(ctx, a); err != nil {
				return err
			}
		}
		if len(rows) > 0 {
			if err := s.repo.InsertPallets(ctx, rows); err != nil {
				return fmt.Errorf("snapshot pallets: %w", err)
			}
		}
		expected = len(rows)

		sheet.Touch(appctx.GetUserID(ctx))
		if err := s.repo.UpdateSheet(ctx, sheet); err != nil {
			return err
		}
		return s.record(ctx, sheet, from, map[string]any{"expected_pallets": expected})
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "stocktaking started", "id", sheet.ID, "number", sheet.Number, "expected_pallets", expected)
	return sheet, nil
}

// ScanInput is one pallet scan. A nil CountedQuantity means the pallet holds what the system says.
type ScanInput struct {
	LocationID      id.ID
	PalletID        id.ID
	CountedQuantity *int
}

// ScanPallet records a pallet found at a location: an expected pallet becomes matched,
// any other becomes surplus. Scanning again overwrites the count.
func (s *Service) ScanPallet(ctx context.Context, sheetID id.ID, in ScanInput) (*PalletRow, error) {
	if in.CountedQuantity != nil && *in.CountedQuantity < 0 {
		return nil, apperror.NewValidation("counted quantity cannot be negative")
	}
	var row *PalletRow
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sheet, err := s.repo.GetSheetForUpdate(ctx, sheetID)
		if err != nil {
			return err
		}
		if sheet.Status != SheetInProgress {
			return apperror.NewValidation("sheet is not being counted").WithDetail("status", string(sheet.Status))
		}
		area, loc := sheet.Location(in.LocationID)
		if loc == nil {
			return apperror.NewNotFound("stocktaking location", in.LocationID)
		}
		if err := s.checkWorker(ctx, area); err != nil {
			return err
		}
		if loc.Status != LocationPending && loc.Status != LocationCounted {
			return apperror.NewInvalidTransition(LocationTransitions.Entity(), string(loc.Status), string(LocationCounted))
		}

		// locked so the recorded system quantity cannot race a note completion
		pallet, err := s.pallets.GetForUpdate(ctx, in.PalletID)
		if err != nil {
			return err
		}
		if pallet.IsDeleted {
			return apperror.NewNotFound("pallet", in.PalletID)
		}
		system := pallet.PackageQuantity
		counted := system
		if in.CountedQuantity != nil {
			counted = *in.CountedQuantity
		}
		now := s.now().UTC()
		user := appctx.GetUserID(ctx)

		for i := range loc.Pallets {
			if loc.Pallets[i].PalletID == in.PalletID {
				row = &loc.Pallets[i]
			}
		}
		if row == nil {
			row = &PalletRow{
				ID:              id.New(),
				SheetID:         sheet.ID,
				SheetLocationID: loc.ID,
				LocationID:      loc.LocationID,
				PalletID:        in.PalletID,
				Status:          PalletSurplus,
				CountedQuantity: &counted,
				SystemQuantity:  &system,
				ScannedAt:       &now,
				ScannedBy:       user,
			}
			return s.repo.InsertPallets(ctx, []PalletRow{*row})
		}
		if row.Expected {
			row.Status = PalletMatched
		}
		row.CountedQuantity = &counted
		row.SystemQuantity = &system
		row.ScannedAt = &now
		row.ScannedBy = user
		return s.repo.UpdatePallet(ctx, row)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "stocktaking pallet scanned",
		"sheet_id", sheetID, "location_id", in.LocationID, "pallet_id", in.PalletID, "status", row.Status)
	return row, nil
}

// CompleteLocation marks a location as counted.
func (s *Service) CompleteLocation(ctx context.Context, sheetID, locationID id.ID) (*Location, error) {
	var loc *Location
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sheet, err := s.repo.GetSheetForUpdate(ctx, sheetID)
		if err != nil {
			return err
		}
		if sheet.Status != SheetInProgress {
			return apperror.NewValidation("sheet is not being counted").WithDetail("status", string(sheet.Status))
		}
		var area *Area
		area, loc = sheet.Location(locationID)
		if loc == nil {
			return apperror.NewNotFound("stocktaking location", locationID)
		}
		if err := s.checkWorker(ctx, area); err != nil {
			return err
		}
		if err := LocationTransitions.Check(loc.Status, LocationCounted); err != nil {
			return err
		}
		loc.Status = LocationCounted
		return s.repo.UpdateLocation(ctx, loc)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "stocktaking location counted", "sheet_id", sheetID, "location_id", locationID)
	return loc, nil
}

// SubmitArea closes counting of an area. Locations left pending without a single scan
// are flagged as exceptions. The sheet waits for approval once every area is submitted.
func (s *Service) SubmitArea(ctx context.Context, sheetID, areaID id.ID) (*Sheet, error) {
	var sheet *Sheet
	exceptions := 0
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sheet, err = s.repo.GetSheetForUpdate(ctx, sheetID)
		if err != nil {
			return err
		}
		if sheet.Status != SheetInProgress {
			return apperror.NewValidation("sheet is not being counted").WithDetail("status", string(sheet.Status))
		}
		area := sheet.Area(areaID)
		if area == nil {
			return apperror.NewNotFound("stocktaking area", areaID)
		}
		if err := s.checkWorker(ctx, area); err != nil {
			return err
		}
		if err := AreaTransitions.Check(area.Status, AreaPendingApproval); err != nil {
			return err
		}
		for j := range area.Locations {
			l := &area.Locations[j]
			if l.Status == LocationPending && !l.Counted() {
				l.IsException = true
				exceptions++
			}
			if err := LocationTransitions.Check(l.Status, LocationPendingApproval); err != nil {
				return err
			}
			l.Status = LocationPendingApproval
			if err := s.repo.UpdateLocation(ctx, l); err != nil {
				return err
			}
		}
		area.Status = AreaPendingApproval
		if err := s.repo.UpdateArea(ctx, area); err != nil {
			return err
		}
		if err := s.recordArea(ctx, area, "exceptions", exceptions); err != nil {
			return err
		}

		if sheet.AllAreas(AreaPendingApproval) {
			from := sheet.Status
			if err := sheet.Transition(SheetPendingApproval); err != nil {
				return err
			}
			sheet.Touch(appctx.GetUserID(ctx))
			if err := s.repo.UpdateSheet(ctx, sheet); err != nil {
				return err
			}
			return s.record(ctx, sheet, from, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "stocktaking area submitted", "sheet_id", sheetID, "area_id", areaID, "exceptions", exceptions)
	return sheet, nil
}

// ApproveStocktaking reconciles every location: expected pallets never scanned become missing.
func (s *Service) ApproveStocktaking(ctx context.Context, sheetID id.ID) (*Sheet, error) {
	if err := s.authz.Authorize(ctx, security.ActionStocktakingApprove); err != nil {
		return nil, err
	}
	var sheet *Sheet
	counts := map[PalletStatus]int{}
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sheet, err = s.repo.GetSheetForUpdate(ctx, sheetID)
		if err != nil {
			return err
		}
		from := sheet.Status
		if err := sheet.Transition(SheetApproved); err != nil {
			return err
		}
		for i := range sheet.Areas {
			a := &sheet.Areas[i]
			for j := range a.Locations {
				l := &a.Locations[j]
				results := reconcileLocation(l)
				status := make(map[id.ID]PalletStatus, len(results))
				for _, r := range results {
					status[r.PalletID] = r.Status
					counts[r.Status]++
				}
				for k := range l.Pallets {
					row := &l.Pallets[k]
					if st := status[row.PalletID]; st != row.Status {
						row.Status = st
						if err := s.repo.UpdatePallet(ctx, row); err != nil {
							return err
						}
					}
				}
				if err := LocationTransitions.Check(l.Status, LocationCompleted); err != nil {
					return err
				}
				l.Status = LocationCompleted
				if err := s.repo.UpdateLocation(ctx, l); err != nil {
					return err
				}
			}
			if err := AreaTransitions.Check(a.Status, AreaCompleted); err != nil {
				return err
			}
			a.Status = AreaCompleted
			if err := s.repo.UpdateArea(ctx, a); err != nil {
				return err
			}
		}
		user := appctx.GetUserID(ctx)
		sheet.ApprovedBy = user
		sheet.Touch(user)
		if err := s.repo.UpdateSheet(ctx, sheet); err != nil {
			return err
		}
		return s.record(ctx, sheet, from, map[string]any{
			"matched": counts[PalletMatched],
			"missing": counts[PalletMissing],
			"surplus": counts[PalletSurplus],
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "stocktaking approved", "id", sheet.ID, "number", sheet.Number,
		"matched", counts[PalletMatched], "missing", counts[PalletMissing], "surplus", counts[PalletSurplus])
	return sheet, nil
}

// Adjustment is the change applied to one pallet when a sheet completes.
type Adjustment struct {
	PalletID     id.ID                 `json:"palletId"`
	Key          stock.GoodsPackingKey `json:"key"`
	FromQuantity int                   `json:"fromQuantity"`
	ToQuantity   int                   `json:"toQuantity"`
	FromLocation id.ID                 `json:"fromLocation"`
	ToLocation   id.ID                 `json:"toLocation"`
}

// CompleteStocktaking applies the approved counts to pallets and writes one
// adjustment ledger row per pair whose total changed. A pallet cannot drop below
// what open notes have allocated from it.
func (s *Service) CompleteStocktaking(ctx context.Context, sheetID id.ID) ([]Adjustment, error) {
	if err := s.authz.Authorize(ctx, security.ActionStocktakingApprove); err != nil {
		return nil, err
	}
	var adjustments []Adjustment
	var sheet *Sheet
	err := lock.With(ctx, s.locker, "stocktaking:"+sheetID.String(), completionLockTTL, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			var err error
			sheet, err = s.repo.GetSheetForUpdate(ctx, sheetID)
			if err != nil {
				return err
			}
			from := sheet.Status
			if err := sheet.Transition(SheetCompleted); err != nil {
				return err
			}
			adjustments, err = s.applyCounts(ctx, sheet)
			if err != nil {
				return err
			}
			sheet.Touch(appctx.GetUserID(ctx))
			if err := s.repo.UpdateSheet(ctx, sheet); err != nil {
				return err
			}
			return s.record(ctx, sheet, from, map[string]any{"adjusted_pallets": len(adjustments)})
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "stocktaking completed", "id", sheetID, "number", sheet.Number, "adjusted_pallets", len(adjustments))
	return adjustments, nil
}

// palletTarget is where a pallet was found and by how much its count differs.
type palletTarget struct {
	location id.ID
	variance int
	scanned  *time.Time
	seen     bool
}

func (s *Service) applyCounts(ctx context.Context, sheet *Sheet) ([]Adjustment, error) {
	targets := make(map[id.ID]*palletTarget)
	for _, a := range sheet.Areas {
		for _, l := range a.Locations {
			for _, r := range l.Pallets {
				t, ok := targets[r.PalletID]
				if !ok {
					t = &palletTarget{location: r.LocationID, variance: r.Variance()}
					targets[r.PalletID] = t
				}
				if !r.Scanned() {
					continue
				}
				// The latest scan wins when a pallet was found in two places.
				if !t.seen || (r.ScannedAt != nil && t.scanned != nil && r.ScannedAt.After(*t.scanned)) {
					t.location = r.LocationID
					t.variance = r.Variance()
					t.scanned = r.ScannedAt
					t.seen = true
				}
			}
		}
	}

	ids := make([]id.ID, 0, len(targets))
	for pid := range targets {
		ids = append(ids, pid)
	}
	id.Sort(ids)

	var out []Adjustment
	deltas := make(map[stock.GoodsPackingKey]int)
	for _, pid := range ids {
		t := targets[pid]
		p, err := s.pallets.GetForUpdate(ctx, pid)
		if err != nil {
			return nil, err
		}
		if p.IsDeleted {
			continue
		}
		// The variance applies to current stock: issues completed after the scan stay issued.
		// A pallet cannot go below zero.
		want := max(p.PackageQuantity+t.variance, 0)
		if want == p.PackageQuantity && p.LocationID == t.location {
			continue
		}
		committed, err := s.allocations.CommittedByPallet(ctx, stock.AllKinds, []id.ID{pid})
		if err != nil {
			return nil, fmt.Errorf("committed by pallet: %w", err)
		}
		if want < committed[pid] {
			return nil, apperror.NewConflict("counted quantity is below open allocations").
				WithDetail("pallet_id", pid.String()).
				WithDetail("counted", want).
				WithDetail("committed", committed[pid])
		}

		adj := Adjustment{
			PalletID:     pid,
			Key:          p.Key(),
			FromQuantity: p.PackageQuantity,
			ToQuantity:   want,
			FromLocation: p.LocationID,
			ToLocation:   t.location,
		}
		deltas[p.Key()] += want - p.PackageQuantity
		if err := p.SetQuantity(want); err != nil {
			return nil, err
		}
		p.LocationID = t.location
		if err := s.pallets.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("update pallet: %w", err)
		}
		out = append(out, adj)
	}

	keys := make([]stock.GoodsPackingKey, 0, len(deltas))
	for k := range deltas {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	// Ledger rows carry wall-clock time; the injected clock only drives the edit window.
	now := time.Now().UTC()
	for _, k := range keys {
		d := deltas[k]
		if d == 0 {
			continue
		}
		ev := ledger.Event{
			Key:            k,
			EventDate:      now,
			TypeChange:     ledger.TypeAdjustment,
			DocumentID:     &sheet.ID,
			DocumentNumber: sheet.Number,
		}
		if d > 0 {
			ev.InQty = d
		} else {
			ev.OutQty = -d
		}
		if _, err := s.ledger.AppendEvent(ctx, ev); err != nil {
			return nil, fmt.Errorf("append ledger: %w", err)
		}
	}
	return out, nil
}

// CancelStocktaking cancels a sheet that is not yet approved.
func (s *Service) CancelStocktaking(ctx context.Context, sheetID id.ID) (*Sheet, error) {
	var sheet *Sheet
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sheet, err = s.repo.GetSheetForUpdate(ctx, sheetID)
		if err != nil {
			return err
		}
		from := sheet.Status
		if err := sheet.Transition(SheetCancelled); err != nil {
			return err
		}
		sheet.Touch(appctx.GetUserID(ctx))
		if err := s.repo.UpdateSheet(ctx, sheet); err != nil {
			return err
		}
		return s.record(ctx, sheet, from, nil)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "stocktaking cancelled", "id", sheet.ID, "number", sheet.Number)
	return sheet, nil
}

// GetSheet returns a sheet with its whole tree.
func (s *Service) GetSheet(ctx context.Context, sheetID id.ID) (*Sheet, error) {
	return s.repo.GetSheet(ctx, sheetID)
}

// ListSheets pages sheet headers.
func (s *Service) ListSheets(ctx context.Context, filter ListFilter) (domain.ListResult[*Sheet], error) {
	filter.ListFilter = filter.ListFilter.Normalize()
	return s.repo.ListSheets(ctx, filter)
}

// LocationReconciliation is the classification of one location.
type LocationReconciliation struct {
	LocationID  id.ID          `json:"locationId"`
	Status      LocationStatus `json:"status"`
	IsException bool           `json:"isException"`
	Pallets     []PalletResult `json:"pallets"`
}

// GetReconciliation classifies every location of a sheet as it stands now.
func (s *Service) GetReconciliation(ctx context.Context, sheetID id.ID) ([]LocationReconciliation, error) {
	sheet, err := s.repo.GetSheet(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	var out []LocationReconciliation
	for i := range sheet.Areas {
		for j := range sheet.Areas[i].Locations {
			l := &sheet.Areas[i].Locations[j]
			out = append(out, LocationReconciliation{
				LocationID:  l.LocationID,
				Status:      l.Status,
				IsException: l.IsException,
				Pallets:     reconcileLocation(l),
			})
		}
	}
	return out, nil
}

// checkEditable enforces the draft/assigned states and the edit window before StartTime.
func (s *Service) checkEditable(sheet *Sheet) error {
	if sheet.Status != SheetDraft && sheet.Status != SheetAssigned {
		return apperror.NewValidation("sheet can no longer be edited").WithDetail("status", string(sheet.Status))
	}
	deadline := sheet.StartTime.Add(-time.Duration(s.editHours) * time.Hour)
	if !s.now().Before(deadline) {
		return apperror.NewEditLocked("stocktaking sheet", sheet.ID, s.editHours)
	}
	return nil
}

// checkWorker lets the area's assignee and warehouse managers work an area.
func (s *Service) checkWorker(ctx context.Context, area *Area) error {
	user := appctx.GetUser(ctx)
	if user == nil {
		return apperror.NewUnauthorized("authentication required")
	}
	if user.IsAssignee(area.AssignTo) || user.HasAnyRole(security.RoleWarehouseManager) {
		return nil
	}
	return apperror.NewForbidden("area is assigned to another staff member").
		WithDetail("area_id", area.AreaID.String())
}

func (s *Service) buildAreas(ctx context.Context, sheetID id.ID, areaIDs []id.ID, assignees map[id.ID]string) ([]Area, error) {
	areas := make([]Area, 0, len(areaIDs))
	for _, areaID := range areaIDs {
		if _, err := s.lookup.GetArea(ctx, areaID); err != nil {
			return nil, err
		}
		locations, err := s.lookup.ListLocationsByArea(ctx, areaID)
		if err != nil {
			return nil, fmt.Errorf("list locations: %w", err)
		}
		a := Area{ID: id.New(), SheetID: sheetID, AreaID: areaID, Status: AreaUnassigned}
		if who := assignees[areaID]; who != "" {
			a.AssignTo = who
			a.Status = AreaAssigned
		}
		for _, l := range locations {
			a.Locations = append(a.Locations, Location{
				ID:          id.New(),
				SheetID:     sheetID,
				SheetAreaID: a.ID,
				LocationID:  l.ID,
				Status:      LocationPending,
			})
		}
		areas = append(areas, a)
	}
	return areas, nil
}

func sameAreas(sheet *Sheet, areaIDs []id.ID) bool {
	if len(sheet.Areas) != len(areaIDs) {
		return false
	}
	for _, a := range areaIDs {
		if sheet.Area(a) == nil {
			return false
		}
	}
	return true
}

func (s *Service) record(ctx context.Context, sheet *Sheet, from SheetStatus, meta map[string]any) error {
	return s.audit.RecordTransition(ctx, audit.Transition{
		EntityType: audit.EntityStocktaking,
		EntityID:   sheet.ID,
		From:       string(from),
		To:         string(sheet.Status),
		Metadata:   meta,
		UserID:     appctx.GetUserID(ctx),
		At:         s.now().UTC(),
	})
}

func (s *Service) recordArea(ctx context.Context, a *Area, key string, value any) error {
	return s.audit.RecordTransition(ctx, audit.Transition{
		EntityType: audit.EntityStocktakingArea,
		EntityID:   a.ID,
		To:         string(a.Status),
		Metadata:   map[string]any{key: value, "sheet_id": a.SheetID.String()},
		UserID:     appctx.GetUserID(ctx),
		At:         s.now().UTC(),
	})
}
