package store

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/lacehq/lace/pkg/types/threads"
)

// Iterator is a lazy cursor over a thread's events in id order. It holds an
// open result set; callers must Close it when done.
type Iterator struct {
	rows    *sqlx.Rows
	current threads.ThreadEvent
	err     error
}

// Next advances the iterator. It returns false at the end of the log or on
// error; check Err afterwards.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}

	var row eventRow
	if err := it.rows.StructScan(&row); err != nil {
		it.err = errors.Wrap(err, "failed to scan event row")
		return false
	}
	event, err := row.toEvent()
	if err != nil {
		it.err = err
		return false
	}
	it.current = event
	return true
}

// Event returns the event at the current position.
func (it *Iterator) Event() threads.ThreadEvent {
	return it.current
}

// Err returns the first error encountered during iteration.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the underlying result set.
func (it *Iterator) Close() error {
	return it.rows.Close()
}
