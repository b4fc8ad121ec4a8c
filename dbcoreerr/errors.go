// Package dbcoreerr defines the sentinel error values surfaced by the
// pages manager and the two index structures. Recoverable conditions
// (duplicate key, not found, pool exhaustion, hash-table capacity) are
// represented as sentinels wrappable with github.com/pkg/errors so
// callers can errors.Is against them while still getting call-site
// context in logs. Programmer errors are not representable here: an
// out-of-range page id, or fetching a page that is not in use, panics
// at the call site instead, matching spec.md's "assertion-worthy"
// classification. Unpinning an unpinned page and re-releasing a free
// page return false from page.Pool rather than panicking.
package dbcoreerr

import "github.com/pkg/errors"

var (
	// ErrDuplicateKey marks an insert of a key that is already
	// present. The B+ tree's internal insert path returns it; both
	// index Insert methods report a duplicate to their callers as
	// (false, nil).
	ErrDuplicateKey = errors.New("dbcore: duplicate key")

	// ErrNotFound names the absent-key condition. No operation in this
	// module returns it: GetValue and Remove report an absent key as
	// a false result.
	ErrNotFound = errors.New("dbcore: key not found")

	// ErrPoolExhausted is returned when the pages manager has no free
	// page to hand out.
	ErrPoolExhausted = errors.New("dbcore: page pool exhausted")

	// ErrCapacity is returned by the extendible hash table when it
	// cannot grow its directory any further (global depth == max depth).
	ErrCapacity = errors.New("dbcore: hash table at capacity")
)

// Wrap annotates err with a call-site message while preserving
// errors.Is compatibility with the sentinels above.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf is Wrap with fmt.Sprintf-style formatting.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
