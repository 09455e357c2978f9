// Package memory is an in-process implementation of every repository port.
// Transactions are serialised: one unit of work runs at a time and is rolled back
// by restoring a snapshot taken when it began. It backs the domain tests and the
// server's -storage=memory mode.
package memory

import (
	"context"
	"sync"

	"milkwms/internal/core/id"
	"milkwms/internal/core/tx"
	"milkwms/internal/domain/audit"
	"milkwms/internal/domain/documents/inbound"
	"milkwms/internal/domain/documents/outbound"
	"milkwms/internal/domain/documents/stocktaking"
	"milkwms/internal/domain/masterdata"
	"milkwms/internal/domain/registers/ledger"
	"milkwms/internal/domain/stock"
)

// state holds every table. Stored values are never mutated in place, so a shallow
// copy of the maps is a consistent snapshot.
type state struct {
	goods     map[id.ID]masterdata.Goods
	packings  map[id.ID]masterdata.GoodsPacking
	suppliers map[id.ID]masterdata.Supplier
	retailers map[id.ID]masterdata.Retailer
	areas     map[id.ID]masterdata.Area
	locations map[id.ID]masterdata.Location

	batches     map[id.ID]stock.Batch
	pallets     map[id.ID]stock.Pallet
	allocations map[id.ID]stock.PickAllocation

	ledger    map[id.ID]ledger.Entry
	ledgerSeq int64

	requests     map[id.ID]outbound.Request
	requestLines map[id.ID][]outbound.RequestLine
	notes        map[id.ID]outbound.Note

	purchaseOrders map[id.ID]inbound.PurchaseOrder
	poLines        map[id.ID][]inbound.POLine
	receipts       map[id.ID]inbound.GoodsReceipt

	sheets map[id.ID]stocktaking.Sheet

	transitions []audit.Transition
}

func newState() *state {
	return &state{
		goods:          map[id.ID]masterdata.Goods{},
		packings:       map[id.ID]masterdata.GoodsPacking{},
		suppliers:      map[id.ID]masterdata.Supplier{},
		retailers:      map[id.ID]masterdata.Retailer{},
		areas:          map[id.ID]masterdata.Area{},
		locations:      map[id.ID]masterdata.Location{},
		batches:        map[id.ID]stock.Batch{},
		pallets:        map[id.ID]stock.Pallet{},
		allocations:    map[id.ID]stock.PickAllocation{},
		ledger:         map[id.ID]ledger.Entry{},
		requests:       map[id.ID]outbound.Request{},
		requestLines:   map[id.ID][]outbound.RequestLine{},
		notes:          map[id.ID]outbound.Note{},
		purchaseOrders: map[id.ID]inbound.PurchaseOrder{},
		poLines:        map[id.ID][]inbound.POLine{},
		receipts:       map[id.ID]inbound.GoodsReceipt{},
		sheets:         map[id.ID]stocktaking.Sheet{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		goods:          copyMap(s.goods),
		packings:       copyMap(s.packings),
		suppliers:      copyMap(s.suppliers),
		retailers:      copyMap(s.retailers),
		areas:          copyMap(s.areas),
		locations:      copyMap(s.locations),
		batches:        copyMap(s.batches),
		pallets:        copyMap(s.pallets),
		allocations:    copyMap(s.allocations),
		ledger:         copyMap(s.ledger),
		ledgerSeq:      s.ledgerSeq,
		requests:       copyMap(s.requests),
		requestLines:   copyMap(s.requestLines),
		notes:          copyMap(s.notes),
		purchaseOrders: copyMap(s.purchaseOrders),
		poLines:        copyMap(s.poLines),
		receipts:       copyMap(s.receipts),
		sheets:         copyMap(s.sheets),
		transitions:    append([]audit.Transition(nil), s.transitions...),
	}
}

// Store is the in-memory database.
type Store struct {
	txMu sync.Mutex // held for the whole of a transaction
	mu   sync.Mutex // guards data for a single call
	data *state
}

// New creates an empty store.
func New() *Store {
	return &Store{data: newState()}
}

func (s *Store) read(fn func(d *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

func (s *Store) mutate(fn func(d *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

func (s *Store) write(fn func(d *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// Repository accessors.

func (s *Store) TxManager() *TxManager { return &TxManager{store: s} }
func (s *Store) Lookup() *Lookup { return &Lookup{store: s} }
func (s *Store) Pallets() *PalletRepo { return &PalletRepo{store: s} }
func (s *Store) Allocations() *AllocationRepo { return &AllocationRepo{store: s} }
func (s *Store) Batches() *BatchRepo { return &BatchRepo{store: s} }
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{store: s} }
func (s *Store) Outbound() *OutboundRepo { return &OutboundRepo{store: s} }
func (s *Store) Inbound() *InboundRepo { return &InboundRepo{store: s} }
func (s *Store) Stocktaking() *StocktakingRepo { return &StocktakingRepo{store: s} }
func (s *Store) Audit() *AuditLog { return &AuditLog{store: s} }

type txKey struct{}

// TxManager implements tx.Manager over the store.
type TxManager struct {
	store *Store
}

var _ tx.Manager = (*TxManager)(nil)

// RunInTransaction runs fn exclusively and rolls back every change if it fails.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	m.store.mu.Lock()
	snapshot := m.store.data.clone()
	m.store.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.store.mu.Lock()
		m.store.data = snapshot
		m.store.mu.Unlock()
		return err
	}
	return nil
}
