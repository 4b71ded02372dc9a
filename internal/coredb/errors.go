package coredb

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrJournalQuotaExceeded means a single payload is larger than the whole
// journal budget, so no amount of eviction makes room for it.
var ErrJournalQuotaExceeded = errors.New("coredb: journal quota exceeded")

// IsQuotaExceeded reports whether err means the journal is out of room:
// either ErrJournalQuotaExceeded or SQLITE_FULL once max_page_count is hit.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrJournalQuotaExceeded) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		// Extended result codes keep the primary code in the low byte.
		return se.Code()&0xff == sqlite3.SQLITE_FULL
	}
	return false
}
