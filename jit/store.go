package jit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "modernc.org/sqlite"
)

// storeSchemaVersion is bumped whenever the IR encoding or the table
// layout changes; rows written under another version are discarded.
const storeSchemaVersion = 1

var cborEncMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("jit: CBOR encode mode: %v", err))
	}
	cborEncMode = em
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS compiled_functions (
	start      INTEGER PRIMARY KEY,
	name       TEXT    NOT NULL,
	checksum   INTEGER NOT NULL,
	opt_level  INTEGER NOT NULL,
	version    INTEGER NOT NULL,
	ir         BLOB    NOT NULL,
	updated_at TEXT    NOT NULL
);
`

// StoredProgram is one persisted compilation record.
type StoredProgram struct {
	Program  *Program
	OptLevel int
}

// Store persists validated IR programs to SQLite so a later run can skip
// the warm-up and translation cost. Compiled closures cannot be
// serialized; the store keeps the IR (canonical CBOR) and the engine runs
// it back through the backend on load.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("jit: opening store %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("jit: configuring store: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("jit: creating store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the record for the program's function, keyed by start
// offset.
func (s *Store) Save(prog *Program, optLevel int) error {
	blob, err := cborEncMode.Marshal(prog)
	if err != nil {
		return fmt.Errorf("jit: encoding program %s: %w", prog.Name, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO compiled_functions (start, name, checksum, opt_level, version, ir, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (start) DO UPDATE SET
			name = excluded.name,
			checksum = excluded.checksum,
			opt_level = excluded.opt_level,
			version = excluded.version,
			ir = excluded.ir,
			updated_at = excluded.updated_at`,
		prog.Start, prog.Name, prog.Checksum, optLevel, storeSchemaVersion,
		blob, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("jit: saving program %s: %w", prog.Name, err)
	}
	return nil
}

// Load returns the record for a function start offset, or false.
func (s *Store) Load(start uint32) (StoredProgram, bool, error) {
	row := s.db.QueryRow(
		"SELECT opt_level, version, ir FROM compiled_functions WHERE start = ?", start)
	var rec StoredProgram
	var version int
	var blob []byte
	if err := row.Scan(&rec.OptLevel, &version, &blob); err != nil {
		if err == sql.ErrNoRows {
			return rec, false, nil
		}
		return rec, false, fmt.Errorf("jit: loading program at %d: %w", start, err)
	}
	if version != storeSchemaVersion {
		return rec, false, nil
	}
	prog := new(Program)
	if err := cbor.Unmarshal(blob, prog); err != nil {
		return rec, false, fmt.Errorf("jit: decoding program at %d: %w", start, err)
	}
	rec.Program = prog
	return rec, true, nil
}

// LoadAll returns every record written under the current schema version.
// Undecodable or outdated rows are skipped, not fatal.
func (s *Store) LoadAll() ([]StoredProgram, error) {
	rows, err := s.db.Query("SELECT version, opt_level, ir FROM compiled_functions ORDER BY start")
	if err != nil {
		return nil, fmt.Errorf("jit: listing programs: %w", err)
	}
	defer rows.Close()

	var out []StoredProgram
	for rows.Next() {
		var version, optLevel int
		var blob []byte
		if err := rows.Scan(&version, &optLevel, &blob); err != nil {
			return nil, fmt.Errorf("jit: scanning program row: %w", err)
		}
		if version != storeSchemaVersion {
			continue
		}
		prog := new(Program)
		if err := cbor.Unmarshal(blob, prog); err != nil {
			continue
		}
		out = append(out, StoredProgram{Program: prog, OptLevel: optLevel})
	}
	return out, rows.Err()
}

// Delete removes the record for a function start offset.
func (s *Store) Delete(start uint32) error {
	if _, err := s.db.Exec("DELETE FROM compiled_functions WHERE start = ?", start); err != nil {
		return fmt.Errorf("jit: deleting program at %d: %w", start, err)
	}
	return nil
}

// Count returns the number of persisted records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM compiled_functions").Scan(&n); err != nil {
		return 0, fmt.Errorf("jit: counting programs: %w", err)
	}
	return n, nil
}
