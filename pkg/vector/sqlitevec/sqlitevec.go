// Package sqlitevec provides a vector index backed by sqlite-vec vec0
// virtual tables.
package sqlitevec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/polar/pkg/logger"
	"github.com/papercomputeco/polar/pkg/storage"
	"github.com/papercomputeco/polar/pkg/vector"
)

// DefaultTable is the table name prefix used when none is configured.
const DefaultTable = "polar_vec"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds configuration for a sqlite-vec index.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Table prefixes the per-generation tables. Defaults to DefaultTable.
	Table string

	Metric vector.Metric

	// Dimensions pins the vector length when non-zero.
	Dimensions int

	Logger *slog.Logger
}

// Index implements vector.Index on a pair of tables: a document table that
// maps string ids to integer rowids in insertion order, and a vec0 table
// holding the embeddings under the same rowids.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
	metric vector.Metric
	want   int

	docsTable string
	vecTable  string

	mu    sync.RWMutex
	dims  int
	count int
	ready bool
}

// New opens an index whose tables are suffixed with the generation number.
func New(ctx context.Context, c Config, generation uint64) (*Index, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	table := c.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	metric := c.Metric
	if metric == "" {
		metric = vector.MetricL2
	}
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	x := &Index{
		db:        db,
		logger:    log,
		metric:    metric,
		want:      c.Dimensions,
		dims:      c.Dimensions,
		docsTable: fmt.Sprintf("%s_docs_g%d", table, generation),
		vecTable:  fmt.Sprintf("%s_vec_g%d", table, generation),
	}

	log.Debug("sqlite-vec index opened",
		"db_path", c.DBPath,
		"table", x.vecTable,
		"metric", string(metric),
		"vec_version", vecVersion,
	)
	return x, nil
}

// NewFactory returns a vector.Factory producing sqlite-vec indexes.
func NewFactory(c Config) vector.Factory {
	return func(ctx context.Context, generation uint64) (vector.Index, error) {
		return New(ctx, c, generation)
	}
}

// Build drops and recreates the generation's tables and loads docs in order.
func (x *Index) Build(ctx context.Context, docs []vector.Document) error {
	dims, err := vector.ValidateDocuments(docs, x.want)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := x.dropTables(ctx, tx); err != nil {
		return err
	}

	if dims > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE %s (
				rowid INTEGER PRIMARY KEY,
				doc_id TEXT NOT NULL UNIQUE
			)`, x.docsTable)); err != nil {
			return fmt.Errorf("creating documents table: %w", err)
		}

		column := fmt.Sprintf("embedding float[%d]", dims)
		if x.metric == vector.MetricCosine {
			column += " distance_metric=cosine"
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`CREATE VIRTUAL TABLE %s USING vec0(%s)`, x.vecTable, column,
		)); err != nil {
			return fmt.Errorf("creating vec0 table: %w", err)
		}

		docStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO %s(rowid, doc_id) VALUES (?, ?)`, x.docsTable))
		if err != nil {
			return fmt.Errorf("preparing document insert: %w", err)
		}
		defer docStmt.Close()

		vecStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, x.vecTable))
		if err != nil {
			return fmt.Errorf("preparing embedding insert: %w", err)
		}
		defer vecStmt.Close()

		for i, doc := range docs {
			rowID := int64(i + 1)
			if _, err := docStmt.ExecContext(ctx, rowID, doc.ID); err != nil {
				return fmt.Errorf("inserting document %s: %w", doc.ID, err)
			}
			if _, err := vecStmt.ExecContext(ctx, rowID, storage.EncodeEmbedding(doc.Embedding)); err != nil {
				return fmt.Errorf("inserting embedding for %s: %w", doc.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	x.dims = dims
	x.count = len(docs)
	x.ready = dims > 0

	x.logger.Debug("built sqlite-vec index", "table", x.vecTable, "count", len(docs), "dimensions", dims)
	return nil
}

// Search runs a vec0 KNN query and ranks the hits locally.
func (x *Index) Search(ctx context.Context, query []float32, k int, opts ...vector.SearchOption) ([]vector.QueryResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := vector.ValidateQuery(query, k, x.dims); err != nil {
		return nil, err
	}
	if !x.ready {
		return []vector.QueryResult{}, nil
	}
	o := vector.ApplySearchOptions(opts...)

	// Use KNN query via vec0 MATCH, then JOIN back to get doc_id.
	rows, err := x.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT d.doc_id, ve.rowid, ve.distance
		FROM %s ve
		INNER JOIN %s d ON d.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
	`, x.vecTable, x.docsTable), storage.EncodeEmbedding(query), k+o.ExcludedCount())
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var hits []vector.Ranked
	for rows.Next() {
		var (
			h        vector.Ranked
			distance float64
		)
		if err := rows.Scan(&h.ID, &h.Seq, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		h.Distance = distance
		if x.metric == vector.MetricL2 {
			// vec0 reports plain Euclidean distance.
			h.Distance = vector.FromEuclidean(distance)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	return vector.Rank(hits, k, o), nil
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count
}

// Close drops the generation's tables and closes the database.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	ctx := context.Background()
	tx, err := x.db.BeginTx(ctx, nil)
	if err == nil {
		if err = x.dropTables(ctx, tx); err == nil {
			err = tx.Commit()
		} else {
			tx.Rollback()
		}
	}
	x.ready = false
	x.count = 0

	return errors.Join(err, x.db.Close())
}

func (x *Index) dropTables(ctx context.Context, tx *sql.Tx) error {
	for _, t := range []string{x.vecTable, x.docsTable} {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("dropping %s: %w", t, err)
		}
	}
	return nil
}
