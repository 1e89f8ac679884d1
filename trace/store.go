// Package trace persists per-device round results to SQLite.
package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/fieldvm/vm"
	"github.com/chazu/fieldvm/vm/dist"
	"github.com/tliron/commonlog"

	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("fieldvm.trace")

// Entry is one recorded device result.
type Entry struct {
	Round  int
	Device vm.DeviceID
	// Text is the printed value, empty if the device had none.
	Text string
	// Value is the decoded value, nil if the device had none or it could
	// not be encoded (functions).
	Value vm.Value
	Err   string
}

// Store records simulation results.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the trace database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening trace database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS results (
		round  INTEGER NOT NULL,
		device TEXT NOT NULL,
		text   TEXT NOT NULL,
		value  BLOB,
		error  TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (round, device)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("trace store at %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores the result of device in round, replacing any earlier entry.
func (s *Store) Record(round int, device vm.DeviceID, v vm.Value, evalErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		text string
		blob []byte
		msg  string
	)
	if v != nil {
		text = vm.Format(v)
		b, err := dist.MarshalValue(v)
		switch {
		case err == nil:
			blob = b
		case errors.Is(err, vm.ErrUnsupported):
			// stored as text only
		default:
			return fmt.Errorf("encoding value: %w", err)
		}
	}
	if evalErr != nil {
		msg = evalErr.Error()
	}

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO results (round, device, text, value, error) VALUES (?, ?, ?, ?, ?)",
		round, string(device), text, blob, msg,
	)
	if err != nil {
		return fmt.Errorf("saving result: %w", err)
	}
	return nil
}

// Results returns the entries of round in insertion order.
func (s *Store) Results(round int) ([]Entry, error) {
	rows, err := s.db.Query(
		"SELECT device, text, value, error FROM results WHERE round = ? ORDER BY rowid", round)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      = Entry{Round: round}
			device string
			blob   []byte
		)
		if err := rows.Scan(&device, &e.Text, &blob, &e.Err); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		e.Device = vm.DeviceID(device)
		if blob != nil {
			if e.Value, err = dist.UnmarshalValue(blob); err != nil {
				return nil, fmt.Errorf("decoding value of %s: %w", device, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Rounds returns the highest recorded round, or 0 if the store is empty.
func (s *Store) Rounds() (int, error) {
	var n sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(round) FROM results").Scan(&n); err != nil {
		return 0, fmt.Errorf("querying rounds: %w", err)
	}
	return int(n.Int64), nil
}
