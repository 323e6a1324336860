// Package repository implements MySQL persistence for users, reset tokens,
// plans, subscriptions and payments, and the Store that scopes a group of
// repositories to one transaction.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row, or a conditional
// update matched nothing.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when a user insert violates the unique email key.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicate is returned for any other unique-key violation, e.g. a second
// (provider, provider_id) pair, a repeated external payment id or a second
// active subscription for one user.
var ErrDuplicate = errors.New("duplicate key")

const mysqlDuplicateEntry = 1062

// duplicateKey reports whether err is a MySQL duplicate-entry error and, if
// so, the name of the violated key as found in the server message.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return "", false
	}
	// Message: Duplicate entry 'x' for key 'users.uq_users_email'
	msg := me.Message
	if i := strings.LastIndex(msg, "for key '"); i >= 0 {
		key := strings.TrimSuffix(msg[i+len("for key '"):], "'")
		if j := strings.LastIndex(key, "."); j >= 0 {
			key = key[j+1:]
		}
		return key, true
	}
	return "", true
}
