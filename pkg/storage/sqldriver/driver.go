// Package sqldriver implements storage.Driver over database/sql. The sqlite
// and postgres packages embed it and supply their dialect.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/polar/pkg/storage"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	// Name is used in error messages.
	Name string

	// Schema is executed statement by statement when the driver is created.
	Schema []string

	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
}

// Driver implements storage.Driver on a *sql.DB.
type Driver struct {
	DB *sql.DB

	dialect    Dialect
	commitHook storage.CommitHook
}

// New runs the dialect schema against db and returns a Driver.
func New(ctx context.Context, db *sql.DB, dialect Dialect, hook storage.CommitHook) (*Driver, error) {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", dialect.Name, err)
		}
	}
	return &Driver{DB: db, dialect: dialect, commitHook: hook}, nil
}

const itemColumns = `i.id, i.bias_score, i.embedding, i.title, i.uploader_id, i.url, i.created_at`

// rebind rewrites "?" placeholders for dialects with numbered placeholders.
func (d *Driver) rebind(q string) string {
	if !d.dialect.Numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*storage.Item, error) {
	var (
		it   storage.Item
		blob []byte
	)
	if err := row.Scan(&it.ID, &it.BiasScore, &blob, &it.Title, &it.UploaderID, &it.URL, &it.CreatedAt); err != nil {
		return nil, err
	}
	emb, err := storage.DecodeEmbedding(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding embedding for item %s: %w", it.ID, err)
	}
	it.Embedding = emb
	return &it, nil
}

func (d *Driver) queryItems(ctx context.Context, q string, args ...any) ([]*storage.Item, error) {
	rows, err := d.DB.QueryContext(ctx, d.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []*storage.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}
	return items, nil
}

// Get retrieves an item by id.
func (d *Driver) Get(ctx context.Context, id string) (*storage.Item, error) {
	row := d.DB.QueryRowContext(ctx, d.rebind(`SELECT `+itemColumns+` FROM items i WHERE i.id = ?`), id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting item %s: %w", id, err)
	}
	return it, nil
}

// Count returns the number of embedded items.
func (d *Driver) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE dims > 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return n, nil
}

// ListUnvisited returns the embedded items the user has not been served.
func (d *Driver) ListUnvisited(ctx context.Context, userID string) ([]*storage.Item, error) {
	return d.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		WHERE i.dims > 0
			AND NOT EXISTS (SELECT 1 FROM visited v WHERE v.user_id = ? AND v.item_id = i.id)
		ORDER BY i.seq
	`, userID)
}

// SampleUnvisited draws up to n unvisited embedded items uniformly at random.
func (d *Driver) SampleUnvisited(ctx context.Context, userID string, n int) ([]*storage.Item, error) {
	if n <= 0 {
		return nil, nil
	}
	return d.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		WHERE i.dims > 0
			AND NOT EXISTS (SELECT 1 FROM visited v WHERE v.user_id = ? AND v.item_id = i.id)
		ORDER BY random()
		LIMIT ?
	`, userID, n)
}

// Embedded returns every embedded item in insertion order.
func (d *Driver) Embedded(ctx context.Context) ([]*storage.Item, error) {
	return d.queryItems(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.dims > 0 ORDER BY i.seq`)
}

// Upsert inserts or replaces an item, keeping its insertion position and
// creation time.
func (d *Driver) Upsert(ctx context.Context, item *storage.Item) error {
	if item == nil {
		return errors.New("cannot store nil item")
	}
	if item.ID == "" {
		return errors.New("cannot store item without id")
	}

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := d.DB.ExecContext(ctx, d.rebind(`
		INSERT INTO items (id, bias_score, embedding, dims, title, uploader_id, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			bias_score = excluded.bias_score,
			embedding = excluded.embedding,
			dims = excluded.dims,
			title = excluded.title,
			uploader_id = excluded.uploader_id,
			url = excluded.url
	`), item.ID, item.BiasScore, storage.EncodeEmbedding(item.Embedding), len(item.Embedding),
		item.Title, item.UploaderID, item.URL, createdAt)
	if err != nil {
		return fmt.Errorf("upserting item %s: %w", item.ID, err)
	}
	return nil
}

// Delete removes an item. Visited rows referencing it stay in place.
func (d *Driver) Delete(ctx context.Context, id string) error {
	res, err := d.DB.ExecContext(ctx, d.rebind(`DELETE FROM items WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting item %s: %w", id, err)
	}
	if n == 0 {
		return storage.NotFoundError{ID: id}
	}
	return nil
}

// GetUser returns the user's bias state, zero-valued for unknown users.
func (d *Driver) GetUser(ctx context.Context, id string) (*storage.User, error) {
	u := &storage.User{ID: id}
	err := d.DB.QueryRowContext(ctx,
		d.rebind(`SELECT bias_score, pole_count FROM users WHERE id = ?`), id,
	).Scan(&u.BiasScore, &u.PoleCount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return u, nil
}

// PutUser overwrites the user's bias state.
func (d *Driver) PutUser(ctx context.Context, user *storage.User) error {
	if user == nil || user.ID == "" {
		return errors.New("cannot store user without id")
	}
	_, err := d.DB.ExecContext(ctx, d.rebind(`
		INSERT INTO users (id, bias_score, pole_count) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			bias_score = excluded.bias_score,
			pole_count = excluded.pole_count
	`), user.ID, user.BiasScore, user.PoleCount)
	if err != nil {
		return fmt.Errorf("putting user %s: %w", user.ID, err)
	}
	return nil
}

// Commit applies a feed selection in a single transaction. The user write
// is conditional on the expected pole count and the visited insert on the
// item not being visited yet; either failing rolls back both.
func (d *Driver) Commit(ctx context.Context, c storage.Commit) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, d.rebind(`SELECT 1 FROM items WHERE id = ?`), c.ItemID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: item %s no longer in catalog", storage.ErrConflict, c.ItemID)
	}
	if err != nil {
		return fmt.Errorf("checking item %s: %w", c.ItemID, err)
	}

	var res sql.Result
	if c.ExpectedPoleCount == 0 {
		res, err = tx.ExecContext(ctx, d.rebind(`
			INSERT INTO users (id, bias_score, pole_count) VALUES (?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				bias_score = excluded.bias_score,
				pole_count = excluded.pole_count
			WHERE users.pole_count = 0
		`), c.UserID, c.NewBias, c.NewPoleCount)
	} else {
		res, err = tx.ExecContext(ctx, d.rebind(`
			UPDATE users SET bias_score = ?, pole_count = ?
			WHERE id = ? AND pole_count = ?
		`), c.NewBias, c.NewPoleCount, c.UserID, c.ExpectedPoleCount)
	}
	if err != nil {
		return fmt.Errorf("updating user %s: %w", c.UserID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("updating user %s: %w", c.UserID, err)
	} else if n == 0 {
		return fmt.Errorf("%w: user %s pole count is no longer %d",
			storage.ErrConflict, c.UserID, c.ExpectedPoleCount)
	}

	if d.commitHook != nil {
		if err := d.commitHook(c); err != nil {
			return fmt.Errorf("committing selection: %w", err)
		}
	}

	res, err = tx.ExecContext(ctx, d.rebind(`
		INSERT INTO visited (user_id, item_id, visited_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, item_id) DO NOTHING
	`), c.UserID, c.ItemID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("marking item %s visited: %w", c.ItemID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("marking item %s visited: %w", c.ItemID, err)
	} else if n == 0 {
		return fmt.Errorf("%w: item %s already visited by %s", storage.ErrConflict, c.ItemID, c.UserID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// HasVisited reports whether the item was served to the user.
func (d *Driver) HasVisited(ctx context.Context, userID, itemID string) (bool, error) {
	var one int
	err := d.DB.QueryRowContext(ctx,
		d.rebind(`SELECT 1 FROM visited WHERE user_id = ? AND item_id = ?`), userID, itemID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking visited: %w", err)
	}
	return true, nil
}

// MarkVisited records a served item. Unknown item ids are ignored.
func (d *Driver) MarkVisited(ctx context.Context, userID, itemID string) error {
	_, err := d.DB.ExecContext(ctx, d.rebind(`
		INSERT INTO visited (user_id, item_id, visited_at)
		SELECT ?, id, ? FROM items WHERE id = ?
		ON CONFLICT (user_id, item_id) DO NOTHING
	`), userID, time.Now().UTC(), itemID)
	if err != nil {
		return fmt.Errorf("marking item %s visited: %w", itemID, err)
	}
	return nil
}

// UnvisitedCount counts the user's visited rows that still point at live
// embedded items.
func (d *Driver) UnvisitedCount(ctx context.Context, userID string, totalItems int) (int, error) {
	var visited int
	err := d.DB.QueryRowContext(ctx, d.rebind(`
		SELECT COUNT(*)
		FROM visited v
		INNER JOIN items i ON i.id = v.item_id
		WHERE v.user_id = ? AND i.dims > 0
	`), userID).Scan(&visited)
	if err != nil {
		return 0, fmt.Errorf("counting visited: %w", err)
	}
	return max(totalItems-visited, 0), nil
}

// VisitedItems returns the user's live visited items in serve order.
func (d *Driver) VisitedItems(ctx context.Context, userID string) ([]*storage.Item, error) {
	return d.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM visited v
		INNER JOIN items i ON i.id = v.item_id
		WHERE v.user_id = ?
		ORDER BY v.seq
	`, userID)
}

// Reset clears the user's visited set.
func (d *Driver) Reset(ctx context.Context, userID string) error {
	if _, err := d.DB.ExecContext(ctx, d.rebind(`DELETE FROM visited WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("resetting visited for %s: %w", userID, err)
	}
	return nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.DB.Close()
}
