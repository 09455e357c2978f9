// Package lifecycle encodes document status machines as explicit transition tables.
package lifecycle

import (
	"sort"

	"milkwms/internal/core/apperror"
)

// Status is any closed string enum.
type Status interface {
	~string
}

// Table lists the legal edges of one status machine.
type Table[S Status] struct {
	entity string
	edges  map[S]map[S]struct{}
	known  map[S]struct{}
}

// NewTable builds a table from an adjacency list. States with no outgoing edges are terminal.
func NewTable[S Status](entity string, edges map[S][]S) *Table[S] {
	t := &Table[S]{
		entity: entity,
		edges:  make(map[S]map[S]struct{}, len(edges)),
		known:  make(map[S]struct{}),
	}
	for from, targets := range edges {
		t.known[from] = struct{}{}
		set := make(map[S]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
			t.known[to] = struct{}{}
		}
		t.edges[from] = set
	}
	return t
}

// Entity returns the name used in error messages.
func (t *Table[S]) Entity() string {
	return t.entity
}

// Valid reports whether s is a state of this machine.
func (t *Table[S]) Valid(s S) bool {
	_, ok := t.known[s]
	return ok
}

// Can reports whether from -> to is a legal edge.
func (t *Table[S]) Can(from, to S) bool {
	_, ok := t.edges[from][to]
	return ok
}

// Check returns an INVALID_STATUS_TRANSITION error unless from -> to is legal.
func (t *Table[S]) Check(from, to S) error {
	if !t.Can(from, to) {
		return apperror.NewInvalidTransition(t.entity, string(from), string(to))
	}
	return nil
}

// Targets lists the states reachable in one step, sorted.
func (t *Table[S]) Targets(from S) []S {
	out := make([]S, 0, len(t.edges[from]))
	for to := range t.edges[from] {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsTerminal reports whether no edge leaves s.
func (t *Table[S]) IsTerminal(s S) bool {
	return len(t.edges[s]) == 0
}
