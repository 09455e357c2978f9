package handlers

import (
	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/domain/audit"
	"milkwms/internal/domain/documents/outbound"
)

func notFoundOfKind(kind outbound.Kind, reqID id.ID) error {
	entity := audit.EntitySalesOrder
	if kind == outbound.KindDisposal {
		entity = audit.EntityDisposalRequest
	}
	return apperror.NewNotFound(entity, reqID.String())
}

func invalidQueryID(err error) error {
	return apperror.NewValidation("invalid id in query").WithCause(err)
}
