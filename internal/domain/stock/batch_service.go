package stock

import (
	"context"
	"fmt"
	"time"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/core/tx"
	"milkwms/internal/domain/masterdata"
	"milkwms/pkg/logger"
)

// BatchInput carries the editable batch fields.
type BatchInput struct {
	GoodsID           id.ID
	SupplierID        id.ID
	Code              string
	ManufacturingDate time.Time
	ExpiryDate        time.Time
	Status            BatchStatus
}

// BatchService manages batches.
type BatchService struct {
	repo      BatchRepository
	pallets   PalletRepository
	lookup    masterdata.Lookup
	txManager tx.Manager
}

// NewBatchService creates a BatchService.
func NewBatchService(repo BatchRepository, pallets PalletRepository, lookup masterdata.Lookup, txManager tx.Manager) *BatchService {
	return &BatchService{repo: repo, pallets: pallets, lookup: lookup, txManager: txManager}
}

// Create registers a batch. The code must be unique per supplier, ignoring case and surrounding spaces.
func (s *BatchService) Create(ctx context.Context, in BatchInput) (*Batch, error) {
	var b *Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.create(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "batch created", "id", b.ID, "code", b.Code)
	return b, nil
}

func (s *BatchService) create(ctx context.Context, in BatchInput) (*Batch, error) {
	now := time.Now().UTC()
	b := &Batch{
		BaseEntity: entity.NewBaseEntity(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	apply(b, in)
	if err := s.check(ctx, b); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	return b, nil
}

// Update edits a batch, keeping code uniqueness among the supplier's other batches.
func (s *BatchService) Update(ctx context.Context, batchID id.ID, in BatchInput) (*Batch, error) {
	var b *Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.GetByID(ctx, batchID)
		if err != nil {
			return err
		}
		if b.IsDeleted {
			return apperror.NewNotFound("batch", batchID)
		}
		apply(b, in)
		b.UpdatedAt = time.Now().UTC()
		if err := s.check(ctx, b); err != nil {
			return err
		}
		return s.repo.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "batch updated", "id", b.ID, "code", b.Code)
	return b, nil
}

// Delete soft-deletes a batch no live pallet refers to.
func (s *BatchService) Delete(ctx context.Context, batchID id.ID) error {
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetByID(ctx, batchID)
		if err != nil {
			return err
		}
		if b.IsDeleted {
			return apperror.NewNotFound("batch", batchID)
		}
		n, err := s.pallets.CountByBatch(ctx, batchID)
		if err != nil {
			return fmt.Errorf("count pallets: %w", err)
		}
		if n > 0 {
			return apperror.NewConflict("batch is still referenced by pallets").
				WithDetail("batch_id", batchID.String()).
				WithDetail("pallets", n)
		}
		return s.repo.MarkDeleted(ctx, batchID)
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "batch deleted", "id", batchID)
	return nil
}

// Get returns a non-deleted batch.
func (s *BatchService) Get(ctx context.Context, batchID id.ID) (*Batch, error) {
	b, err := s.repo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.IsDeleted {
		return nil, apperror.NewNotFound("batch", batchID)
	}
	return b, nil
}

// FindOrCreate returns the supplier's batch with the same code or creates it.
// An existing batch of another goods item is a validation error. Joins the caller's transaction.
func (s *BatchService) FindOrCreate(ctx context.Context, in BatchInput) (*Batch, error) {
	var b *Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.repo.FindByCode(ctx, in.SupplierID, NormalizeCode(in.Code), nil)
		if err != nil {
			return fmt.Errorf("find batch: %w", err)
		}
		if existing != nil {
			if existing.GoodsID != in.GoodsID {
				return apperror.NewValidation("batch code already used for another goods item").
					WithDetail("code", in.Code).
					WithDetail("batch_id", existing.ID.String())
			}
			b = existing
			return nil
		}
		b, err = s.create(ctx, in)
		return err
	})
	return b, err
}

func (s *BatchService) check(ctx context.Context, b *Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if _, err := s.lookup.GetGoods(ctx, b.GoodsID); err != nil {
		return err
	}
	if _, err := s.lookup.GetSupplier(ctx, b.SupplierID); err != nil {
		return err
	}
	exclude := b.ID
	dup, err := s.repo.FindByCode(ctx, b.SupplierID, NormalizeCode(b.Code), &exclude)
	if err != nil {
		return fmt.Errorf("check batch code: %w", err)
	}
	if dup != nil {
		return apperror.NewDuplicate("batch", "code", b.Code)
	}
	return nil
}

func apply(b *Batch, in BatchInput) {
	b.GoodsID = in.GoodsID
	b.SupplierID = in.SupplierID
	b.Code = in.Code
	b.ManufacturingDate = in.ManufacturingDate
	b.ExpiryDate = in.ExpiryDate
	b.Status = in.Status
	if b.Status == "" {
		b.Status = BatchActive
	}
}
