// Package app wires repositories into the domain services.
package app

import (
	"time"

	"milkwms/internal/core/lock"
	"milkwms/internal/core/numerator"
	"milkwms/internal/core/security"
	"milkwms/internal/core/tx"
	"milkwms/internal/domain/audit"
	"milkwms/internal/domain/documents/inbound"
	"milkwms/internal/domain/documents/outbound"
	"milkwms/internal/domain/documents/stocktaking"
	"milkwms/internal/domain/masterdata"
	"milkwms/internal/domain/registers/ledger"
	"milkwms/internal/domain/stock"
	"milkwms/internal/infrastructure/storage/memory"
)

// Repositories is one storage backend.
type Repositories struct {
	TxManager   tx.Manager
	Lookup      masterdata.Lookup
	Pallets     stock.PalletRepository
	Allocations stock.AllocationRepository
	Batches     stock.BatchRepository
	Ledger      ledger.Repository
	Outbound    outbound.Repository
	Inbound     inbound.Repository
	Stocktaking stocktaking.Repository
	Audit       audit.Recorder
	AuditReader audit.Reader
}

// MemoryRepositories exposes an in-memory store as Repositories.
func MemoryRepositories(s *memory.Store) Repositories {
	return Repositories{
		TxManager:   s.TxManager(),
		Lookup:      s.Lookup(),
		Pallets:     s.Pallets(),
		Allocations: s.Allocations(),
		Batches:     s.Batches(),
		Ledger:      s.Ledger(),
		Outbound:    s.Outbound(),
		Inbound:     s.Inbound(),
		Stocktaking: s.Stocktaking(),
		Audit:       s.Audit(),
		AuditReader: s.Audit(),
	}
}

// Options carries the infrastructure shared by every service.
type Options struct {
	Numerator  numerator.Generator
	Authorizer security.Authorizer
	Locker     lock.Locker

	HoursBeforeStartToAllowEdit int
	// Clock drives the stocktaking edit window. Nil means time.Now.
	Clock func() time.Time
}

// Services is the full domain surface.
type Services struct {
	Calculator  *stock.Calculator
	Reserver    *stock.Reserver
	Batches     *stock.BatchService
	Ledger      *ledger.Service
	Outbound    *outbound.Service
	Inbound     *inbound.Service
	Stocktaking *stocktaking.Service
}

// NewServices builds every domain service over r.
func NewServices(r Repositories, o Options) *Services {
	if o.Locker == nil {
		o.Locker = lock.Noop{}
	}
	calc := stock.NewCalculator(r.Pallets, r.Allocations)
	reserver := stock.NewReserver(r.Pallets, r.Allocations)
	batches := stock.NewBatchService(r.Batches, r.Pallets, r.Lookup, r.TxManager)
	ledgerSvc := ledger.NewService(r.Ledger, r.Lookup, r.TxManager, o.Authorizer)

	return &Services{
		Calculator: calc,
		Reserver:   reserver,
		Batches:    batches,
		Ledger:     ledgerSvc,
		Outbound: outbound.NewService(outbound.Deps{
			Repo:       r.Outbound,
			Calculator: calc,
			Reserver:   reserver,
			Ledger:     ledgerSvc,
			Lookup:     r.Lookup,
			Numerator:  o.Numerator,
			TxManager:  r.TxManager,
			Authorizer: o.Authorizer,
			Audit:      r.Audit,
			Locker:     o.Locker,
		}),
		Inbound: inbound.NewService(inbound.Deps{
			Repo:       r.Inbound,
			Batches:    batches,
			Pallets:    r.Pallets,
			Ledger:     ledgerSvc,
			Lookup:     r.Lookup,
			Numerator:  o.Numerator,
			TxManager:  r.TxManager,
			Authorizer: o.Authorizer,
			Audit:      r.Audit,
		}),
		Stocktaking: stocktaking.NewService(stocktaking.Deps{
			Repo:                        r.Stocktaking,
			Pallets:                     r.Pallets,
			Allocations:                 r.Allocations,
			Ledger:                      ledgerSvc,
			Lookup:                      r.Lookup,
			Numerator:                   o.Numerator,
			TxManager:                   r.TxManager,
			Authorizer:                  o.Authorizer,
			Audit:                       r.Audit,
			Locker:                      o.Locker,
			HoursBeforeStartToAllowEdit: o.HoursBeforeStartToAllowEdit,
			Clock:                       o.Clock,
		}),
	}
}
