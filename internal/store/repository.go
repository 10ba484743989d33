// Package store is the persistence gateway of the content layer: a generic,
// gorm-backed repository exposing row-level primitives and a normalized
// error taxonomy.
package store

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Filters are equality constraints keyed by column name. Nil values, and
// pointers that are nil, mean "no constraint". Slice values match any of
// their elements.
type Filters map[string]any

// Fields is a partial row keyed by column name.
type Fields map[string]any

// ListOptions paginates and orders a scan. OrderBy is "column" or
// "column asc|desc"; Limit <= 0 means unbounded.
type ListOptions struct {
	Limit   int
	Offset  int
	OrderBy string
}

var schemaCache sync.Map

// Repository is the gateway over rows of T. It is immutable: WithTx and
// WithClock return copies.
type Repository[T any] struct {
	db     *gorm.DB
	schema *schema.Schema
	pk     string
	now    func() time.Time
}

// New parses the gorm schema of T once and binds it to gdb.
func New[T any](gdb *gorm.DB) (*Repository[T], error) {
	s, err := schema.Parse(new(T), &schemaCache, gdb.NamingStrategy)
	if err != nil {
		return nil, NewError("parse schema", ErrStore, "%v", err)
	}
	// Composite keys leave PrioritizedPrimaryField unset; id lookups then use
	// the leading key column.
	pk := s.PrioritizedPrimaryField
	if pk == nil && len(s.PrimaryFields) > 0 {
		pk = s.PrimaryFields[0]
	}
	if pk == nil {
		return nil, NewError("parse schema", ErrStore, "%s has no primary key", s.Table)
	}
	return &Repository[T]{
		db:     gdb,
		schema: s,
		pk:     pk.DBName,
		now:    time.Now,
	}, nil
}

// MustNew is New for package-level wiring where T is a known model.
func MustNew[T any](gdb *gorm.DB) *Repository[T] {
	r, err := New[T](gdb)
	if err != nil {
		panic(err)
	}
	return r
}

// WithTx returns a copy bound to tx.
func (r *Repository[T]) WithTx(tx *gorm.DB) *Repository[T] {
	clone := *r
	clone.db = tx
	return &clone
}

// WithClock returns a copy that stamps updated_at with now.
func (r *Repository[T]) WithClock(now func() time.Time) *Repository[T] {
	clone := *r
	clone.now = now
	return &clone
}

// DB exposes the bound handle for queries the primitives do not cover.
func (r *Repository[T]) DB() *gorm.DB {
	return r.db
}

// Table is the table name of T.
func (r *Repository[T]) Table() string {
	return r.schema.Table
}

// Now is the repository clock.
func (r *Repository[T]) Now() time.Time {
	return r.now()
}

// Transaction runs fn inside a transaction on the bound handle. When the
// handle is already inside a transaction gorm uses a savepoint.
func (r *Repository[T]) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	ctx, span := startSpan(ctx, "Transaction", r.schema.Table)
	defer func() { endSpan(span, err) }()

	return Translate("transaction", r.db.WithContext(ctx).Transaction(fn))
}

func (r *Repository[T]) FindByID(ctx context.Context, id string) (_ *T, err error) {
	ctx, span := startSpan(ctx, "FindByID", r.schema.Table)
	defer func() { endSpan(span, err) }()

	var row T
	if err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: r.pk}, Value: id}).
		Take(&row).Error; err != nil {
		return nil, Translate("find "+r.schema.Table, err)
	}
	return &row, nil
}

func (r *Repository[T]) FindMany(ctx context.Context, filters Filters, opts ListOptions) (_ []T, err error) {
	ctx, span := startSpan(ctx, "FindMany", r.schema.Table)
	defer func() { endSpan(span, err) }()

	q, err := r.filtered(r.db.WithContext(ctx).Model(new(T)), filters)
	if err != nil {
		return nil, err
	}
	if q, err = r.paginate(q, opts); err != nil {
		return nil, err
	}

	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return nil, Translate("list "+r.schema.Table, err)
	}
	return rows, nil
}

// FindScoped runs a repository-specific query through the gateway so it
// gets the same tracing and error normalization as the primitives.
func (r *Repository[T]) FindScoped(ctx context.Context, op string, scope func(*gorm.DB) *gorm.DB) (_ []T, err error) {
	ctx, span := startSpan(ctx, op, r.schema.Table)
	defer func() { endSpan(span, err) }()

	var rows []T
	if err := scope(r.db.WithContext(ctx).Model(new(T))).Find(&rows).Error; err != nil {
		return nil, Translate(op, err)
	}
	return rows, nil
}

// FirstScoped is FindScoped for a single row; a miss is ErrNotFound.
func (r *Repository[T]) FirstScoped(ctx context.Context, op string, scope func(*gorm.DB) *gorm.DB) (_ *T, err error) {
	ctx, span := startSpan(ctx, op, r.schema.Table)
	defer func() { endSpan(span, err) }()

	var row T
	if err := scope(r.db.WithContext(ctx).Model(new(T))).Take(&row).Error; err != nil {
		return nil, Translate(op, err)
	}
	return &row, nil
}

// Create inserts row and fills generated fields in place.
func (r *Repository[T]) Create(ctx context.Context, row *T) (err error) {
	ctx, span := startSpan(ctx, "Create", r.schema.Table)
	defer func() { endSpan(span, err) }()

	return Translate("create "+r.schema.Table, r.db.WithContext(ctx).Create(row).Error)
}

// Update applies fields to the row with the given id and returns the row as
// stored afterwards. updated_at is always stamped when T has it.
func (r *Repository[T]) Update(ctx context.Context, id string, fields Fields) (_ *T, err error) {
	ctx, span := startSpan(ctx, "Update", r.schema.Table)
	defer func() { endSpan(span, err) }()

	values := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		column, err := r.column(key)
		if err != nil {
			return nil, err
		}
		values[column] = value
	}
	if field := r.schema.LookUpField("updated_at"); field != nil {
		values[field.DBName] = r.now()
	}
	if len(values) == 0 {
		return r.FindByID(ctx, id)
	}

	res := r.db.WithContext(ctx).Model(new(T)).
		Where(clause.Eq{Column: clause.Column{Name: r.pk}, Value: id}).
		Updates(values)
	if res.Error != nil {
		return nil, Translate("update "+r.schema.Table, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, NewError("update "+r.schema.Table, ErrNotFound, "id %s", id)
	}
	return r.FindByID(ctx, id)
}

// Delete removes the row permanently.
func (r *Repository[T]) Delete(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "Delete", r.schema.Table)
	defer func() { endSpan(span, err) }()

	res := r.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: r.pk}, Value: id}).
		Delete(new(T))
	if res.Error != nil {
		return Translate("delete "+r.schema.Table, res.Error)
	}
	if res.RowsAffected == 0 {
		return NewError("delete "+r.schema.Table, ErrNotFound, "id %s", id)
	}
	return nil
}

// SoftDelete archives the row instead of removing it.
func (r *Repository[T]) SoftDelete(ctx context.Context, id string) error {
	_, err := r.Update(ctx, id, Fields{"status": "archived"})
	return err
}

func (r *Repository[T]) Count(ctx context.Context, filters Filters) (_ int64, err error) {
	ctx, span := startSpan(ctx, "Count", r.schema.Table)
	defer func() { endSpan(span, err) }()

	q, err := r.filtered(r.db.WithContext(ctx).Model(new(T)), filters)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, Translate("count "+r.schema.Table, err)
	}
	return total, nil
}

func (r *Repository[T]) Exists(ctx context.Context, id string) (bool, error) {
	total, err := r.Count(ctx, Filters{r.pk: id})
	if err != nil {
		return false, err
	}
	return total > 0, nil
}

// Search matches rows whose column contains term, case-insensitively.
// An empty term lists everything.
func (r *Repository[T]) Search(ctx context.Context, term, column string, opts ListOptions) (_ []T, err error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return r.FindMany(ctx, nil, opts)
	}

	ctx, span := startSpan(ctx, "Search", r.schema.Table)
	defer func() { endSpan(span, err) }()

	col, err := r.column(column)
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).Model(new(T)).Where(ContainsFold(col, term))
	if q, err = r.paginate(q, opts); err != nil {
		return nil, err
	}

	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return nil, Translate("search "+r.schema.Table, err)
	}
	return rows, nil
}

// ContainsFold builds a case-insensitive substring predicate on column.
// LIKE wildcards inside term are matched literally.
func ContainsFold(column, term string) clause.Expression {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(term))
	return clause.Expr{
		SQL:  `LOWER(?) LIKE ? ESCAPE '\'`,
		Vars: []any{clause.Column{Name: column}, "%" + escaped + "%"},
	}
}

func (r *Repository[T]) column(name string) (string, error) {
	field := r.schema.LookUpField(name)
	if field == nil || field.DBName == "" {
		return "", NewError("column", ErrStore, "%s has no column %q", r.schema.Table, name)
	}
	return field.DBName, nil
}

func (r *Repository[T]) filtered(q *gorm.DB, filters Filters) (*gorm.DB, error) {
	for key, raw := range filters {
		value, ok := deref(raw)
		if !ok {
			continue
		}
		column, err := r.column(key)
		if err != nil {
			return nil, err
		}
		col := clause.Column{Table: r.schema.Table, Name: column}
		if values, isList := asList(value); isList {
			q = q.Where(clause.IN{Column: col, Values: values})
			continue
		}
		q = q.Where(clause.Eq{Column: col, Value: value})
	}
	return q, nil
}

func (r *Repository[T]) paginate(q *gorm.DB, opts ListOptions) (*gorm.DB, error) {
	if order := strings.TrimSpace(opts.OrderBy); order != "" {
		parts := strings.Fields(order)
		column, err := r.column(parts[0])
		if err != nil {
			return nil, err
		}
		desc := false
		if len(parts) > 1 {
			switch strings.ToLower(parts[1]) {
			case "desc":
				desc = true
			case "asc":
			default:
				return nil, NewError("order", ErrStore, "invalid direction %q", parts[1])
			}
		}
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Table: r.schema.Table, Name: column}, Desc: desc})
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q, nil
}

// deref unwraps pointer values; ok is false for nil and nil pointers.
func deref(value any) (any, bool) {
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	return rv.Interface(), true
}

func asList(value any) ([]any, bool) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = rv.Index(i).Interface()
	}
	return values, true
}

// CreateOrIgnore inserts row unless it conflicts with an existing key, in
// which case nothing happens and no error is reported.
func (r *Repository[T]) CreateOrIgnore(ctx context.Context, row *T) (err error) {
	ctx, span := startSpan(ctx, "CreateOrIgnore", r.schema.Table)
	defer func() { endSpan(span, err) }()

	return Translate("create "+r.schema.Table,
		r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error)
}

// UpdateWhere applies fields to every row matching filters and reports how
// many rows changed. At least one filter is required.
func (r *Repository[T]) UpdateWhere(ctx context.Context, filters Filters, fields Fields) (_ int64, err error) {
	ctx, span := startSpan(ctx, "UpdateWhere", r.schema.Table)
	defer func() { endSpan(span, err) }()

	if len(filters) == 0 {
		return 0, NewError("update "+r.schema.Table, ErrStore, "refusing unfiltered update")
	}
	values := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		column, err := r.column(key)
		if err != nil {
			return 0, err
		}
		values[column] = value
	}
	if field := r.schema.LookUpField("updated_at"); field != nil {
		values[field.DBName] = r.now()
	}

	q, err := r.filtered(r.db.WithContext(ctx).Model(new(T)), filters)
	if err != nil {
		return 0, err
	}
	res := q.Updates(values)
	if res.Error != nil {
		return 0, Translate("update "+r.schema.Table, res.Error)
	}
	return res.RowsAffected, nil
}

// UpdateColumn sets one column without touching updated_at. It is meant for
// counters, not for edits.
func (r *Repository[T]) UpdateColumn(ctx context.Context, id, column string, value any) (err error) {
	ctx, span := startSpan(ctx, "UpdateColumn", r.schema.Table)
	defer func() { endSpan(span, err) }()

	col, err := r.column(column)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(new(T)).
		Where(clause.Eq{Column: clause.Column{Name: r.pk}, Value: id}).
		UpdateColumn(col, value)
	if res.Error != nil {
		return Translate("update "+r.schema.Table, res.Error)
	}
	if res.RowsAffected == 0 {
		return NewError("update "+r.schema.Table, ErrNotFound, "id %s", id)
	}
	return nil
}

// DeleteWhere removes every row matching filters. At least one filter is
// required.
func (r *Repository[T]) DeleteWhere(ctx context.Context, filters Filters) (_ int64, err error) {
	ctx, span := startSpan(ctx, "DeleteWhere", r.schema.Table)
	defer func() { endSpan(span, err) }()

	if len(filters) == 0 {
		return 0, NewError("delete "+r.schema.Table, ErrStore, "refusing unfiltered delete")
	}
	q, err := r.filtered(r.db.WithContext(ctx), filters)
	if err != nil {
		return 0, err
	}
	res := q.Delete(new(T))
	if res.Error != nil {
		return 0, Translate("delete "+r.schema.Table, res.Error)
	}
	return res.RowsAffected, nil
}

// ScanInto runs a query whose rows do not map onto a single model, such as
// aggregates, with the gateway's tracing and error normalization.
func ScanInto[R any](ctx context.Context, gdb *gorm.DB, op string, build func(*gorm.DB) *gorm.DB) (_ []R, err error) {
	ctx, span := startSpan(ctx, op, "")
	defer func() { endSpan(span, err) }()

	var rows []R
	if err := build(gdb.WithContext(ctx)).Scan(&rows).Error; err != nil {
		return nil, Translate(op, err)
	}
	return rows, nil
}
