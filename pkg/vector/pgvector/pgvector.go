// Package pgvector provides a vector index backed by a PostgreSQL table with
// the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/papercomputeco/polar/pkg/logger"
	"github.com/papercomputeco/polar/pkg/vector"
)

// DefaultTable is the table name prefix used when none is configured.
const DefaultTable = "polar_vec"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds configuration for a pgvector index.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// Table prefixes the per-generation tables. Defaults to DefaultTable.
	Table string

	Metric     vector.Metric
	Dimensions int

	Logger *slog.Logger
}

// Index implements vector.Index on one table per generation.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
	metric vector.Metric
	want   int
	table  string

	mu      sync.RWMutex
	dims    int
	count   int
	created bool
}

// New connects to PostgreSQL and makes sure the vector extension exists.
func New(ctx context.Context, c Config, generation uint64) (*Index, error) {
	if c.DSN == "" {
		return nil, errors.New("postgres connection string is required")
	}
	prefix := c.Table
	if prefix == "" {
		prefix = DefaultTable
	}
	if !tableName.MatchString(prefix) {
		return nil, fmt.Errorf("invalid table name %q", prefix)
	}
	metric := c.Metric
	if metric == "" {
		metric = vector.MetricL2
	}
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	db, err := sql.Open("pgx", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling pgvector: %w", err)
	}

	return &Index{
		db:     db,
		logger: log,
		metric: metric,
		want:   c.Dimensions,
		dims:   c.Dimensions,
		table:  fmt.Sprintf("%s_g%d", prefix, generation),
	}, nil
}

// NewFactory returns a vector.Factory producing pgvector indexes.
func NewFactory(c Config) vector.Factory {
	return func(ctx context.Context, generation uint64) (vector.Index, error) {
		return New(ctx, c, generation)
	}
}

// Build recreates the generation's table and copies docs in.
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

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+x.table); err != nil {
		return fmt.Errorf("dropping %s: %w", x.table, err)
	}

	if dims > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE %s (
				seq BIGINT PRIMARY KEY,
				doc_id TEXT NOT NULL UNIQUE,
				embedding vector(%d) NOT NULL
			)`, x.table, dims)); err != nil {
			return fmt.Errorf("creating %s: %w", x.table, err)
		}

		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (seq, doc_id, embedding) VALUES ($1, $2, $3)`, x.table))
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		for i, doc := range docs {
			if _, err := stmt.ExecContext(ctx, int64(i+1), doc.ID, pgvector.NewVector(doc.Embedding)); err != nil {
				return fmt.Errorf("inserting %s: %w", doc.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	x.dims = dims
	x.count = len(docs)
	x.created = dims > 0

	x.logger.Debug("built pgvector index", "table", x.table, "count", len(docs), "dimensions", dims)
	return nil
}

// Search orders the table by the metric's distance operator.
func (x *Index) Search(ctx context.Context, query []float32, k int, opts ...vector.SearchOption) ([]vector.QueryResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := vector.ValidateQuery(query, k, x.dims); err != nil {
		return nil, err
	}
	if !x.created {
		return []vector.QueryResult{}, nil
	}
	o := vector.ApplySearchOptions(opts...)

	// <-> is Euclidean distance, <=> is cosine distance.
	op := "<->"
	if x.metric == vector.MetricCosine {
		op = "<=>"
	}
	rows, err := x.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT doc_id, seq, embedding %s $1 AS distance
		FROM %s
		ORDER BY distance, seq
		LIMIT $2
	`, op, x.table), pgvector.NewVector(query), k+o.ExcludedCount())
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", x.table, err)
	}
	defer rows.Close()

	var hits []vector.Ranked
	for rows.Next() {
		var (
			h        vector.Ranked
			distance float64
		)
		if err := rows.Scan(&h.ID, &h.Seq, &distance); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		h.Distance = distance
		if x.metric == vector.MetricL2 {
			h.Distance = vector.FromEuclidean(distance)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}

	return vector.Rank(hits, k, o), nil
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count
}

// Close drops the generation's table and closes the connection pool.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	_, err := x.db.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+x.table)
	x.created = false
	x.count = 0
	return errors.Join(err, x.db.Close())
}
