// Package repository contains data access logic separated from HTTP handlers.
//
// Driver errors never leave this package raw when they carry meaning for
// the caller: duplicate keys become ErrConflict, missing rows ErrNotFound
// and foreign-key violations ErrInvalidReference. Handlers translate these
// sentinels into HTTP statuses.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound is returned when the requested row does not exist (or is
	// outside the caller's tenant).
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on unique-key violations.
	ErrConflict = errors.New("conflict")
	// ErrInvalidReference is returned when a foreign key points at a row
	// that does not exist, or a delete is blocked by dependent rows.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrInsufficientStock is a conflict raised when a work order asks for
	// more parts than are on hand.
	ErrInsufficientStock = fmt.Errorf("insufficient stock: %w", ErrConflict)
)

// MySQL server error numbers we translate.
const (
	mysqlDuplicateEntry   = 1062
	mysqlRowIsReferenced  = 1451
	mysqlNoReferencedRow  = 1452
	mysqlRowIsReferenced0 = 1217
	mysqlNoReferencedRow0 = 1216
)

// mapErr converts driver errors into the package sentinels. Unknown errors
// are returned unchanged.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDuplicateEntry:
			return fmt.Errorf("%w: %s", ErrConflict, me.Message)
		case mysqlRowIsReferenced, mysqlNoReferencedRow, mysqlRowIsReferenced0, mysqlNoReferencedRow0:
			return fmt.Errorf("%w: %s", ErrInvalidReference, me.Message)
		}
	}
	return err
}

// expectAffected turns a zero-row update or delete into ErrNotFound.
func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
