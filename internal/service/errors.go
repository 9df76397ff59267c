package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Kind classifies ledger failures so callers can branch on them.
type Kind string

const (
	KindValidationFailed  Kind = "validation_failed"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindConflictAborted   Kind = "conflict_aborted"
	KindInvalidState      Kind = "invalid_state"
)

// Sentinels for errors.Is; every *LedgerError matches the one of its Kind.
var (
	ErrValidationFailed  = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflictAborted   = errors.New("conflict, retries exhausted")
	ErrInvalidState      = errors.New("invalid state")
)

var kindSentinel = map[Kind]error{
	KindValidationFailed:  ErrValidationFailed,
	KindNotFound:          ErrNotFound,
	KindInsufficientStock: ErrInsufficientStock,
	KindConflictAborted:   ErrConflictAborted,
	KindInvalidState:      ErrInvalidState,
}

// Shortfall describes one product a sale or debit could not cover.
type Shortfall struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Requested   int       `json:"requested"`
	Available   int       `json:"available"`
	Missing     int       `json:"shortfall"`
}

// LedgerError is the single error type returned by the ledger services.
type LedgerError struct {
	Kind       Kind
	Detail     string
	ProductIDs []uuid.UUID
	Fields     map[string]string // ValidationFailed only
	Shortfalls []Shortfall       // InsufficientStock only
	Err        error             // underlying cause, if any
}

func (e *LedgerError) Error() string {
	msg := string(e.Kind) + ": " + e.Detail
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k+"="+e.Fields[k])
		}
		sort.Strings(keys)
		msg += " [" + strings.Join(keys, ", ") + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LedgerError) Unwrap() error { return e.Err }

func (e *LedgerError) Is(target error) bool {
	return kindSentinel[e.Kind] == target
}

// ── Constructors ─────────────────────────────────────────────────────────────

func validationError(fields map[string]string) *LedgerError {
	return &LedgerError{Kind: KindValidationFailed, Detail: "request is invalid", Fields: fields}
}

func validationFailed(field, msg string) *LedgerError {
	return validationError(map[string]string{field: msg})
}

func notFound(what string, id uuid.UUID) *LedgerError {
	return &LedgerError{
		Kind:       KindNotFound,
		Detail:     fmt.Sprintf("%s %s not found", what, id),
		ProductIDs: []uuid.UUID{id},
	}
}

func insufficientStock(shortfalls []Shortfall) *LedgerError {
	ids := make([]uuid.UUID, 0, len(shortfalls))
	names := make([]string, 0, len(shortfalls))
	for _, s := range shortfalls {
		ids = append(ids, s.ProductID)
		names = append(names, fmt.Sprintf("%s (requested %d, available %d)", s.ProductName, s.Requested, s.Available))
	}
	return &LedgerError{
		Kind:       KindInsufficientStock,
		Detail:     "insufficient stock for " + strings.Join(names, "; "),
		ProductIDs: ids,
		Shortfalls: shortfalls,
	}
}

func conflictAborted(err error, attempts int) *LedgerError {
	return &LedgerError{
		Kind:   KindConflictAborted,
		Detail: fmt.Sprintf("concurrent update, gave up after %d attempts", attempts),
		Err:    err,
	}
}

func invalidState(id uuid.UUID, detail string) *LedgerError {
	return &LedgerError{Kind: KindInvalidState, Detail: detail, ProductIDs: []uuid.UUID{id}}
}

// KindOf returns the Kind of err, or "" when err is not a *LedgerError.
func KindOf(err error) Kind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}
