package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
)

// ConnectivityError means the database cannot be reached.
type ConnectivityError struct {
	Driver   string
	Attempts int
	Err      error
}

func (e *ConnectivityError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("cannot connect to %v database after %d attempt(s): %v", e.Driver, e.Attempts, e.Err)
	}
	return fmt.Sprintf("lost connection to %v database: %v", e.Driver, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivityError reports whether err means the session is gone rather
// than that a statement was rejected.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
