package entity

import (
	"time"

	"milkwms/internal/core/apperror"
)

// Document is the base type for the approval-gated warehouse documents.
type Document struct {
	BaseDocument

	// Number is the document number (auto-generated, unique within type+year)
	Number string `db:"number" json:"number"`

	// Date is the business date of the document
	Date time.Time `db:"date" json:"date"`

	// Comment is an optional user comment
	Comment string `db:"comment" json:"comment,omitempty"`
}

// NewDocument creates a new Document dated now.
func NewDocument(createdBy string) Document {
	return Document{
		BaseDocument: NewBaseDocument(createdBy),
		Date:         time.Now().UTC(),
	}
}

// Validate checks the header fields every document needs.
func (d *Document) Validate() error {
	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}
	return nil
}
