// Package repository holds the MySQL data access layer.  The sentinel
// errors below let services tell business outcomes (missing row, lost
// race, duplicate key) apart from infrastructure failures without
// inspecting driver errors themselves.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write found the row in a
// state that forbids it, e.g. resolving a complaint that is no longer
// pending.  Handlers translate it into a 400.
var ErrConflict = errors.New("conflict")

// ErrUsernameExists is returned by UserRepo.Create on a duplicate username.
var ErrUsernameExists = errors.New("username already exists")

// ErrFolioExhausted is returned when every folio generated for one
// submission collided with an existing complaint.
var ErrFolioExhausted = errors.New("folio generation exhausted")

const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a MySQL duplicate entry error on
// the named unique key.  An empty key matches any duplicate.
func isDuplicateKey(err error, key string) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return false
	}
	return key == "" || strings.Contains(me.Message, key)
}
