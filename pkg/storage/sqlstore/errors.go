package sqlstore

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/orbsec/organization-service/pkg/faults"
)

// classify wraps a driver error with the fault kind it represents
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	return faults.Wrap(kindOf(err), op, err)
}

func kindOf(err error) faults.Kind {
	if errors.Is(err, sql.ErrNoRows) {
		return faults.NotFound
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return faults.Unavailable
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "57014": // query_canceled
			return faults.Timeout
		case pqErr.Code.Class() == "08", // connection exception
			pqErr.Code.Class() == "53", // insufficient resources
			pqErr.Code.Class() == "57", // operator intervention
			pqErr.Code.Class() == "40": // transaction rollback
			return faults.Unavailable
		default:
			return faults.Unknown
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return faults.Unavailable
		default:
			return faults.Unknown
		}
	}

	if strings.Contains(err.Error(), "sql: database is closed") {
		return faults.Unavailable
	}
	return faults.Classify(err)
}
