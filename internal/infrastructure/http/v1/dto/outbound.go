package dto

import (
	"time"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/documents/outbound"
)

// CreateSalesOrderRequest creates a draft sales order.
type CreateSalesOrderRequest struct {
	RetailerID id.ID         `json:"retailerId" binding:"required"`
	Date       time.Time     `json:"date"`
	Comment    string        `json:"comment,omitempty"`
	Lines      []LineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToInput maps the request to the service input.
func (r *CreateSalesOrderRequest) ToInput() outbound.SalesOrderInput {
	return outbound.SalesOrderInput{
		RetailerID: r.RetailerID,
		Date:       r.Date,
		Comment:    r.Comment,
		Lines:      OutboundLines(r.Lines),
	}
}

// CreateDisposalRequest creates a draft disposal request.
type CreateDisposalRequest struct {
	Reason  string        `json:"reason" binding:"required"`
	Date    time.Time     `json:"date"`
	Comment string        `json:"comment,omitempty"`
	Lines   []LineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToInput maps the request to the service input.
func (r *CreateDisposalRequest) ToInput() outbound.DisposalInput {
	return outbound.DisposalInput{
		Reason:  r.Reason,
		Date:    r.Date,
		Comment: r.Comment,
		Lines:   OutboundLines(r.Lines),
	}
}

// UpdateLinesRequest replaces the lines of a draft or rejected document.
type UpdateLinesRequest struct {
	Lines []LineRequest `json:"lines" binding:"required,min=1,dive"`
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// AssignRequest names the picker or counter.
type AssignRequest struct {
	StaffID string `json:"staffId" binding:"required"`
}

// OutboundListQuery filters sales orders or disposal requests.
type OutboundListQuery struct {
	ListQuery
	Status     string     `form:"status"`
	RetailerID string     `form:"retailerId"`
	AssignTo   string     `form:"assignTo"`
	DateFrom   *time.Time `form:"dateFrom" time_format:"2006-01-02"`
	DateTo     *time.Time `form:"dateTo" time_format:"2006-01-02"`
}

// ToFilter converts the query for kind. An unparsable retailer id is returned as an error.
func (q OutboundListQuery) ToFilter(kind outbound.Kind) (outbound.ListFilter, error) {
	f := outbound.ListFilter{
		ListFilter: q.ListQuery.ToFilter(),
		Kind:       &kind,
		AssignTo:   q.AssignTo,
		DateFrom:   q.DateFrom,
		DateTo:     q.DateTo,
	}
	if q.Status != "" {
		st := outbound.RequestStatus(q.Status)
		f.Status = &st
	}
	if q.RetailerID != "" {
		rid, err := id.Parse(q.RetailerID)
		if err != nil {
			return f, err
		}
		f.RetailerID = &rid
	}
	return f, nil
}

// OutboundLines maps request lines.
func OutboundLines(in []LineRequest) []outbound.LineInput {
	out := make([]outbound.LineInput, len(in))
	for i, l := range in {
		out[i] = outbound.LineInput{
			GoodsID:         l.GoodsID,
			GoodsPackingID:  l.GoodsPackingID,
			PackageQuantity: l.PackageQuantity,
		}
	}
	return out
}
