package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"stickerboard/internal/database"
	"stickerboard/internal/store"
)

// Option configures a DocumentRepository.
type Option func(*DocumentRepository)

// WithPollInterval makes subscriptions re-read on the interval so writes from
// other processes sharing the database are delivered.
func WithPollInterval(d time.Duration) Option {
	return func(r *DocumentRepository) {
		r.hub = store.NewHub(d)
	}
}

// WithLogger sets the logger used for write diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(r *DocumentRepository) {
		if log != nil {
			r.log = log
		}
	}
}

// DocumentRepository implements store.Store on the SQL tables created by the
// embedded migrations. Every write is a single statement, so guards and
// bounded increments are evaluated atomically by the database.
type DocumentRepository struct {
	db  *database.DB
	hub *store.Hub
	log *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *database.DB, opts ...Option) *DocumentRepository {
	r := &DocumentRepository{
		db:  db,
		hub: store.NewHub(0),
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ store.Store = (*DocumentRepository)(nil)

func (r *DocumentRepository) Create(ctx context.Context, collection string, fields store.Document) (string, error) {
	id := store.NewID()
	if err := r.CreateWithID(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (r *DocumentRepository) CreateWithID(ctx context.Context, collection, id string, fields store.Document) error {
	t, err := lookupTable(collection)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("create %s: empty id", collection)
	}

	names := []string{"id"}
	args := []interface{}{id}
	for _, field := range sortedKeys(fields) {
		if field == "id" {
			continue
		}
		col, err := t.column(field)
		if err != nil {
			return err
		}
		v := fields[field]
		if nv, ok := v.(store.IfNullValue); ok {
			v = nv.Value
		}
		arg, err := col.toSQL(v)
		if err != nil {
			return err
		}
		names = append(names, col.name)
		args = append(args, arg)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(names, ", "), placeholders(len(names)))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if r.db.Dialect.IsUniqueViolation(err) {
			return fmt.Errorf("create %s/%s: %w", collection, id, store.ErrDuplicate)
		}
		return fmt.Errorf("failed to create %s: %w", collection, err)
	}

	r.hub.Notify(collection)
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, collection, id string) (store.Document, error) {
	t, err := lookupTable(collection)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", t.selectList(), t.name)
	row := make(map[string]interface{})
	if err := r.db.QueryRowxContext(ctx, query, id).MapScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get %s/%s: %w", collection, id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", collection, err)
	}
	return t.toDocument(row)
}

func (r *DocumentRepository) Update(ctx context.Context, collection, id string, fields store.Document, guards ...store.Condition) error {
	t, err := lookupTable(collection)
	if err != nil {
		return err
	}

	var sets []string
	var args []interface{}
	for _, field := range sortedKeys(fields) {
		if field == "id" {
			continue
		}
		col, err := t.column(field)
		if err != nil {
			return err
		}
		set, arg, err := assignment(col, fields[field])
		if err != nil {
			return err
		}
		sets = append(sets, set)
		args = append(args, arg)
	}

	guard, guardArgs, err := compileConditions(t, guards)
	if err != nil {
		return err
	}

	if len(sets) == 0 {
		return r.checkGuards(ctx, t, collection, id, guard, guardArgs)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", t.name, strings.Join(sets, ", "))
	args = append(args, id)
	if guard != "" {
		query += " AND " + guard
		args = append(args, guardArgs...)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if r.db.Dialect.IsUniqueViolation(err) {
			return fmt.Errorf("update %s/%s: %w", collection, id, store.ErrDuplicate)
		}
		return fmt.Errorf("failed to update %s: %w", collection, err)
	}
	if err := r.requireAffected(ctx, t, res, "update", collection, id); err != nil {
		return err
	}

	r.hub.Notify(collection)
	return nil
}

func (r *DocumentRepository) Increment(ctx context.Context, collection, id string, inc store.Increment) error {
	t, err := lookupTable(collection)
	if err != nil {
		return err
	}

	query, args, err := compileIncrement(t, id, inc)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to increment %s.%s: %w", collection, inc.Field, err)
	}
	if err := r.requireAffected(ctx, t, res, "increment", collection, id); err != nil {
		return err
	}

	r.log.Debug("counter adjusted",
		zap.String("collection", collection),
		zap.String("id", id),
		zap.String("field", inc.Field),
		zap.Int64("delta", inc.Delta))
	r.hub.Notify(collection)
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, collection, id string) error {
	t, err := lookupTable(collection)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.name), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", collection, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id, store.ErrNotFound)
	}

	r.hub.Notify(collection)
	return nil
}

func (r *DocumentRepository) List(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	t, err := lookupTable(collection)
	if err != nil {
		return nil, err
	}

	query, args, err := compileSelect(t, q)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]store.Document, 0)
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
		}
		doc, err := t.toDocument(row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	return docs, nil
}

func (r *DocumentRepository) Subscribe(ctx context.Context, collection string, q store.Query) (*store.Subscription, error) {
	t, err := lookupTable(collection)
	if err != nil {
		return nil, err
	}
	// Compile once up front so malformed queries fail here, not on every delivery.
	if _, _, err := compileSelect(t, q); err != nil {
		return nil, err
	}

	return r.hub.Subscribe(ctx, collection, func(ctx context.Context) ([]store.Document, error) {
		return r.List(ctx, collection, q)
	}), nil
}

// Close cancels all live subscriptions. The database handle is owned by the caller.
func (r *DocumentRepository) Close() error {
	r.hub.Close()
	return nil
}

// requireAffected distinguishes a missing row from a failed guard when a
// guarded write touched nothing.
func (r *DocumentRepository) requireAffected(ctx context.Context, t *table, res sql.Result, op, collection, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", op, collection, err)
	}
	if n > 0 {
		return nil
	}

	exists, err := r.exists(ctx, t, id, "", nil)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s %s/%s: %w", op, collection, id, store.ErrNotFound)
	}
	return fmt.Errorf("%s %s/%s: %w", op, collection, id, store.ErrConditionFailed)
}

func (r *DocumentRepository) checkGuards(ctx context.Context, t *table, collection, id, guard string, guardArgs []interface{}) error {
	ok, err := r.exists(ctx, t, id, guard, guardArgs)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return r.requireAffected(ctx, t, noRows{}, "update", collection, id)
}

func (r *DocumentRepository) exists(ctx context.Context, t *table, id, guard string, guardArgs []interface{}) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", t.name)
	args := []interface{}{id}
	if guard != "" {
		query += " AND " + guard
		args = append(args, guardArgs...)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("failed to read %s: %w", t.name, err)
	}
	return count > 0, nil
}

type noRows struct{}

func (noRows) LastInsertId() (int64, error) { return 0, nil }
func (noRows) RowsAffected() (int64, error) { return 0, nil }

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sortedKeys(doc store.Document) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
