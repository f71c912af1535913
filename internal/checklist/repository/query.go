// Package repository persists the checklist engine's entities in PostgreSQL
// through sqlx. Every method runs on the transaction carried by ctx when
// there is one (see database.DB.WithTx).
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
)

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []interface{}
}

// add appends a condition; each "?" in cond is replaced by the next $n.
func (w *where) add(cond string, args ...interface{}) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

// next reserves a placeholder for an argument outside the WHERE clause.
func (w *where) next(arg interface{}) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// notFound maps sql.ErrNoRows to a NOT_FOUND AppError.
func notFound(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(resource)
	}
	return err
}

func limitOffset(w *where, limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	q := " LIMIT " + w.next(limit)
	if offset > 0 {
		q += " OFFSET " + w.next(offset)
	}
	return q
}

func expectOne(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound(resource)
	}
	return nil
}
