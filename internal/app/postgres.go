package app

import (
	"milkwms/internal/infrastructure/storage/postgres"
	"milkwms/internal/infrastructure/storage/postgres/catalog_repo"
	"milkwms/internal/infrastructure/storage/postgres/document_repo"
	"milkwms/internal/infrastructure/storage/postgres/register_repo"
	"milkwms/internal/infrastructure/storage/postgres/stock_repo"
)

// PostgresRepositories exposes the PostgreSQL repositories as Repositories.
// Audit payloads above auditCompressThreshold bytes are zstd-compressed.
func PostgresRepositories(txm *postgres.TxManager, auditCompressThreshold int) (Repositories, error) {
	recorder, err := postgres.NewAuditRecorder(txm, auditCompressThreshold)
	if err != nil {
		return Repositories{}, err
	}
	return Repositories{
		TxManager:   txm,
		Lookup:      catalog_repo.NewLookup(txm),
		Pallets:     stock_repo.NewPalletRepo(txm),
		Allocations: stock_repo.NewAllocationRepo(txm),
		Batches:     stock_repo.NewBatchRepo(txm),
		Ledger:      register_repo.NewLedgerRepo(txm),
		Outbound:    document_repo.NewOutboundRepo(txm),
		Inbound:     document_repo.NewInboundRepo(txm),
		Stocktaking: document_repo.NewStocktakingRepo(txm),
		Audit:       recorder,
		AuditReader: recorder,
	}, nil
}
