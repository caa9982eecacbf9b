// Package reportdb keeps the outcome of runs in a local sqlite
// database, so disagreements can be audited later.
package reportdb

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/google/uuid"
	"github.com/kbarchive/curator/engine"
	"github.com/kbarchive/curator/facts"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	package TEXT NOT NULL,
	flavor TEXT NOT NULL,
	started_at TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	disagreements INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS facts (
	run_id TEXT NOT NULL,
	path TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	claimants TEXT NOT NULL,
	disagreement INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS facts_by_run ON facts (run_id, path);

CREATE TABLE IF NOT EXISTS statements (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	path TEXT NOT NULL,
	polarity TEXT NOT NULL,
	text TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS statements_by_run ON statements (run_id, seq);
`

// claimants are stored joined by this separator
const claimantSeparator = "\x1f"

type DB struct {
	mu     sync.Mutex
	conn   *sqlite.Conn
	logger *slog.Logger
}

// Open opens (or creates) the database at path
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, errors.Wrap(err, "creating db directory")
	}

	conn, err := sqlite.OpenConn(path, 0)
	if err != nil {
		return nil, errors.Wrap(err, "opening SQLite database")
	}

	err = sqlitex.ExecScript(conn, schema)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "preparing schema")
	}

	logger.Debug("opened report database", "path", path)
	return &DB{conn: conn, logger: logger}, nil
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

type Run struct {
	ID            string
	Package       string
	Flavor        string
	StartedAt     time.Time
	Duration      time.Duration
	Disagreements int
}

// SaveRun stores a run's facts and statements in a single savepoint,
// and returns its new identifier.
func (db *DB) SaveRun(pkg string, res *engine.Result) (runID string, retErr error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	runID = uuid.New().String()
	snap := res.Facts
	startedAt := time.Now().Add(-res.Duration).UTC()

	defer sqlitex.Save(db.conn)(&retErr)

	err := sqlitex.Exec(db.conn,
		"INSERT INTO runs (id, package, flavor, started_at, duration_ms, disagreements) VALUES (?, ?, ?, ?, ?, ?)",
		nil, runID, pkg, res.Flavor.String(), startedAt.Format(time.RFC3339Nano), res.Duration.Milliseconds(), len(snap.Disagreements()))
	if err != nil {
		return "", errors.Wrap(err, "saving run")
	}

	numFacts := 0
	for _, r := range snap.Records {
		for _, key := range r.Keys() {
			buckets := r.Buckets(key)
			for _, b := range buckets {
				err = sqlitex.Exec(db.conn,
					"INSERT INTO facts (run_id, path, key, value, claimants, disagreement) VALUES (?, ?, ?, ?, ?, ?)",
					nil, runID, r.Path, key, b.Value, strings.Join(b.Claimants, claimantSeparator), len(buckets) > 1)
				if err != nil {
					return "", errors.Wrap(err, "saving fact")
				}
				numFacts++
			}
		}
	}

	for i, st := range snap.Statements {
		err = sqlitex.Exec(db.conn,
			"INSERT INTO statements (run_id, seq, path, polarity, text) VALUES (?, ?, ?, ?, ?)",
			nil, runID, i, st.Path, st.Polarity.String(), st.Text)
		if err != nil {
			return "", errors.Wrap(err, "saving statement")
		}
	}

	db.logger.Debug("saved run", "run", runID, "package", pkg, "facts", numFacts, "statements", len(snap.Statements))
	return runID, nil
}

// Runs lists stored runs, most recent first
func (db *DB) Runs() ([]Run, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var runs []Run
	err := sqlitex.Exec(db.conn,
		"SELECT id, package, flavor, started_at, duration_ms, disagreements FROM runs ORDER BY started_at DESC",
		func(stmt *sqlite.Stmt) error {
			startedAt, err := time.Parse(time.RFC3339Nano, stmt.ColumnText(3))
			if err != nil {
				return errors.WithStack(err)
			}
			runs = append(runs, Run{
				ID:            stmt.ColumnText(0),
				Package:       stmt.ColumnText(1),
				Flavor:        stmt.ColumnText(2),
				StartedAt:     startedAt,
				Duration:      time.Duration(stmt.ColumnInt64(4)) * time.Millisecond,
				Disagreements: int(stmt.ColumnInt64(5)),
			})
			return nil
		})
	if err != nil {
		return nil, errors.Wrap(err, "listing runs")
	}
	return runs, nil
}

// Disagreements returns the paths of a run with conflicting facts
func (db *DB) Disagreements(runID string) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var paths []string
	err := sqlitex.Exec(db.conn,
		"SELECT DISTINCT path FROM facts WHERE run_id = ? AND disagreement = 1 ORDER BY path",
		func(stmt *sqlite.Stmt) error {
			paths = append(paths, stmt.ColumnText(0))
			return nil
		}, runID)
	if err != nil {
		return nil, errors.Wrap(err, "listing disagreements")
	}
	return paths, nil
}

// Claimants returns who stated value for key about path in a run
func (db *DB) Claimants(runID, path, key, value string) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var claimants []string
	err := sqlitex.Exec(db.conn,
		"SELECT claimants FROM facts WHERE run_id = ? AND path = ? AND key = ? AND value = ?",
		func(stmt *sqlite.Stmt) error {
			claimants = append(claimants, strings.Split(stmt.ColumnText(0), claimantSeparator)...)
			return nil
		}, runID, path, key, value)
	if err != nil {
		return nil, errors.Wrap(err, "looking up claimants")
	}
	return claimants, nil
}

// Statements returns a run's statements in order. An empty
// polarity returns all of them.
func (db *DB) Statements(runID string, polarity string) ([]facts.Statement, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := "SELECT path, polarity, text FROM statements WHERE run_id = ? ORDER BY seq"
	args := []interface{}{runID}
	if polarity != "" {
		query = "SELECT path, polarity, text FROM statements WHERE run_id = ? AND polarity = ? ORDER BY seq"
		args = append(args, strings.ToUpper(polarity))
	}

	var res []facts.Statement
	err := sqlitex.Exec(db.conn, query, func(stmt *sqlite.Stmt) error {
		p, ok := facts.ParsePolarity(stmt.ColumnText(1))
		if !ok {
			return errors.Errorf("unknown polarity (%s)", stmt.ColumnText(1))
		}
		res = append(res, facts.Statement{
			Path:     stmt.ColumnText(0),
			Polarity: p,
			Text:     stmt.ColumnText(2),
		})
		return nil
	}, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing statements")
	}
	return res, nil
}
