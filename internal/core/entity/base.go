// Package entity holds the fields shared by every persisted warehouse entity.
package entity

import (
	"time"

	"milkwms/internal/core/id"
)

// BaseEntity contains common fields for pallets, batches and documents.
// IsDeleted is orthogonal to any business status: a deleted row keeps its last status.
type BaseEntity struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// IsDeleted marks a soft-deleted row
	IsDeleted bool `db:"is_deleted" json:"isDeleted"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`
}

// NewBaseEntity creates a new BaseEntity with generated ID.
func NewBaseEntity() BaseEntity {
	return BaseEntity{
		ID:      id.New(),
		Version: 1,
	}
}

// MarkDeleted sets the soft-delete flag.
func (b *BaseEntity) MarkDeleted() {
	b.IsDeleted = true
}

// BaseDocument extends BaseEntity with audit fields for documents.
type BaseDocument struct {
	BaseEntity

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`
}

// NewBaseDocument creates a new BaseDocument with generated ID and timestamps.
func NewBaseDocument(createdBy string) BaseDocument {
	now := time.Now().UTC()
	return BaseDocument{
		BaseEntity: NewBaseEntity(),
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  createdBy,
		UpdatedBy:  createdBy,
	}
}

// Touch records who changed the document and when.
func (b *BaseDocument) Touch(by string) {
	b.UpdatedAt = time.Now().UTC()
	if by != "" {
		b.UpdatedBy = by
	}
}
