/*
writer.go - Ledger Writer: atomic create, update and delete

PURPOSE:
  A transaction is a header plus its lines. The Writer makes sure they are
  stored as one unit: either the header and every line are committed, or
  nothing is. No partial write is ever visible to a concurrent reader.

CREATE:
  1. Validate header and every line (ValidateHeader, ValidateLines).
     Any failure aborts before a unit of work opens.
  2. Total = sum of validated line amounts.
  3. Open a unit of work (Store.WithUnit) under UnitTimeout.
  4. Insert header, obtain generated identity.
  5. For each line: re-check the item inside the unit (closes the race
     between validation and commit), then insert the line.
  6. Any failure rolls the unit back before the error propagates.
  7. Commit, then return the transaction as the Reader sees it.

UPDATE:
  Same as create, but inside the unit: header must exist (else NotFound
  before touching lines), header is overwritten, ALL existing lines are
  deleted and the new set inserted. Lines are replaced, never patched.

DELETE:
  Removes the header; lines go with it by ownership (cascade).

CONCURRENCY:
  The unit of work is the only concurrency boundary. Two writers racing on
  the same custom transaction id are serialized by the store's uniqueness
  constraint; the loser gets a ConflictError.

SEE ALSO:
  - validate.go: Line Item Validator
  - store.go: Unit and Store interfaces
  - errors.go: Error taxonomy
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultUnitTimeout bounds a single unit of work.
const DefaultUnitTimeout = 5 * time.Second

// WriteObserver receives one call per write attempt.
type WriteObserver interface {
	ObserveWrite(op string, kind Kind, err error, elapsed time.Duration)
}

// =============================================================================
// LEDGER WRITER
// =============================================================================

type Writer struct {
	Store       Store
	Reader      *Reader
	Log         logrus.FieldLogger
	Observer    WriteObserver
	UnitTimeout time.Duration
	Now         func() time.Time
}

func NewWriter(store Store, reader *Reader, log logrus.FieldLogger) *Writer {
	return &Writer{
		Store:       store,
		Reader:      reader,
		Log:         log,
		UnitTimeout: DefaultUnitTimeout,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a new transaction.
func (w *Writer) Create(ctx context.Context, h Header, lines []Line) (tx *Transaction, err error) {
	start := time.Now()
	defer func() { w.observe("create", h.Kind, err, start) }()

	h, validated, total, err := w.validate(ctx, h, lines)
	if err != nil {
		return nil, err
	}

	now := w.Now()
	var id TransactionID
	err = w.inUnit(ctx, "create", func(ctx context.Context, u Unit) error {
		var err error
		id, err = u.InsertHeader(ctx, h, total, now)
		if err != nil {
			return err
		}
		return insertLines(ctx, u, id, validated)
	})
	if err != nil {
		return nil, err
	}

	w.Log.WithFields(logrus.Fields{
		"id":        id,
		"kind":      h.Kind,
		"custom_id": h.CustomID,
		"lines":     len(validated),
		"total":     total.String(),
	}).Info("transaction created")

	return w.Reader.Get(ctx, id)
}

// Update replaces the header and the whole line set of an existing transaction.
func (w *Writer) Update(ctx context.Context, id TransactionID, h Header, lines []Line) (tx *Transaction, err error) {
	start := time.Now()
	defer func() { w.observe("update", h.Kind, err, start) }()

	h, validated, total, err := w.validate(ctx, h, lines)
	if err != nil {
		return nil, err
	}

	now := w.Now()
	err = w.inUnit(ctx, "update", func(ctx context.Context, u Unit) error {
		existing, err := u.FindHeaderByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return notFound(id)
		}
		if err := u.UpdateHeader(ctx, id, h, total, now); err != nil {
			return err
		}
		if err := u.DeleteLinesForHeader(ctx, id); err != nil {
			return err
		}
		return insertLines(ctx, u, id, validated)
	})
	if err != nil {
		return nil, err
	}

	w.Log.WithFields(logrus.Fields{
		"id":        id,
		"kind":      h.Kind,
		"custom_id": h.CustomID,
		"lines":     len(validated),
		"total":     total.String(),
	}).Info("transaction updated")

	return w.Reader.Get(ctx, id)
}

// Delete removes a transaction and its lines.
func (w *Writer) Delete(ctx context.Context, id TransactionID) (err error) {
	start := time.Now()
	var kind Kind
	defer func() { w.observe("delete", kind, err, start) }()

	err = w.inUnit(ctx, "delete", func(ctx context.Context, u Unit) error {
		existing, err := u.FindHeaderByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return notFound(id)
		}
		kind = existing.Kind
		deleted, err := u.DeleteHeader(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return notFound(id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.Log.WithFields(logrus.Fields{"id": id, "kind": kind}).Info("transaction deleted")
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (w *Writer) validate(ctx context.Context, h Header, lines []Line) (Header, []Line, decimal.Decimal, error) {
	h, err := ValidateHeader(h)
	if err != nil {
		return Header{}, nil, decimal.Zero, err
	}
	validated, total, err := ValidateLines(ctx, lines, w.Store)
	if err != nil {
		return Header{}, nil, decimal.Zero, err
	}
	return h, validated, total, nil
}

// inUnit runs fn in one unit of work bounded by UnitTimeout. A deadline hit
// anywhere inside the unit surfaces as TransientStorageError after rollback.
func (w *Writer) inUnit(ctx context.Context, op string, fn func(ctx context.Context, u Unit) error) error {
	timeout := w.UnitTimeout
	if timeout <= 0 {
		timeout = DefaultUnitTimeout
	}
	uctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := w.Store.WithUnit(uctx, func(u Unit) error {
		return fn(uctx, u)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrTransientStorage) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(uctx.Err(), context.DeadlineExceeded) {
		return &TransientStorageError{Op: op, Err: err}
	}
	return err
}

// insertLines re-verifies each item inside the unit before inserting it.
func insertLines(ctx context.Context, u Unit, id TransactionID, lines []Line) error {
	for i, l := range lines {
		item, err := u.FindItemByID(ctx, l.ItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return &IntegrityError{
				Reason: fmt.Sprintf("line %d references item %s which no longer exists", i+1, l.ItemID),
				Err:    &NotFoundError{Resource: "item", ID: string(l.ItemID)},
			}
		}
		l.Position = i
		if err := u.InsertLine(ctx, id, l); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) observe(op string, kind Kind, err error, start time.Time) {
	if w.Observer != nil {
		w.Observer.ObserveWrite(op, kind, err, time.Since(start))
	}
	if err != nil && !IsClientError(err) {
		w.Log.WithError(err).WithFields(logrus.Fields{"op": op, "kind": kind}).Warn("ledger write failed")
	}
}

func notFound(id TransactionID) error {
	return &NotFoundError{Resource: "transaction", ID: strconv.FormatInt(int64(id), 10)}
}
