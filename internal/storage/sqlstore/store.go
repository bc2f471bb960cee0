package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	xerrors "meteorite-explorer/internal/errors"
	"meteorite-explorer/internal/meteorite"
	"meteorite-explorer/pkg/logger"
)

const selectColumns = `id, name, recclass, fall, mass, year, reclat, reclong`

// foldedColumns hold meteorite.Fold of name, recclass and fall. SQL LOWER
// only folds ASCII on SQLite, so text filters match against these.
const foldedColumns = `name_folded, recclass_folded, fall_folded`

// columns maps sortable properties to their column; properties and
// columns share names but only listed ones may reach ORDER BY.
var columns = map[string]string{
	meteorite.PropertyID:       "id",
	meteorite.PropertyName:     "name",
	meteorite.PropertyRecClass: "recclass",
	meteorite.PropertyFall:     "fall",
	meteorite.PropertyMass:     "mass",
	meteorite.PropertyYear:     "year",
	meteorite.PropertyRecLat:   "reclat",
	meteorite.PropertyRecLong:  "reclong",
}

var massDistributionQuery = fmt.Sprintf(`SELECT CASE
        WHEN mass < 1000 THEN '%s'
        WHEN mass < 10000 THEN '%s'
        ELSE '%s'
    END AS bucket, COUNT(*)
    FROM meteorites WHERE mass IS NOT NULL GROUP BY bucket`,
	meteorite.MassUnder1kg, meteorite.Mass1To10kg, meteorite.MassOver10kg)

// Store implements meteorite.Store on database/sql.
type Store struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

// Open connects, applies pending migrations and returns the store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, driver: strings.ToLower(cfg.Driver), log: logger.Named("sqlstore")}
	if err := store.runMigrations(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "migrate schema")
	}
	return store, nil
}

// Driver returns the configured driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get implements meteorite.Store.
func (s *Store) Get(ctx context.Context, id int64) (meteorite.Meteorite, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM meteorites WHERE id = ?`, id)
	record, err := scanMeteorite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return meteorite.Meteorite{}, meteorite.ErrNotFound
	}
	if err != nil {
		return meteorite.Meteorite{}, storeFailure(err, "get meteorite")
	}
	return record, nil
}

// Search implements meteorite.Store.
func (s *Store) Search(ctx context.Context, filter meteorite.Filter, page meteorite.PageRequest) (meteorite.Page, error) {
	where, args := whereClause(filter)

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meteorites`+where, args...).Scan(&total); err != nil {
		return meteorite.Page{}, storeFailure(err, "count search results")
	}

	query := `SELECT ` + selectColumns + ` FROM meteorites` + where + orderBy(page.Sort) + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return meteorite.Page{}, storeFailure(err, "search meteorites")
	}
	defer rows.Close()

	content := make([]meteorite.Meteorite, 0, page.Size)
	for rows.Next() {
		record, err := scanMeteorite(rows)
		if err != nil {
			return meteorite.Page{}, storeFailure(err, "scan meteorite")
		}
		content = append(content, record)
	}
	if err := rows.Err(); err != nil {
		return meteorite.Page{}, storeFailure(err, "iterate meteorites")
	}
	return meteorite.NewPage(content, page, total), nil
}

// Count implements meteorite.Store.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meteorites`).Scan(&total); err != nil {
		return 0, storeFailure(err, "count meteorites")
	}
	return total, nil
}

// Trends implements meteorite.Store.
func (s *Store) Trends(ctx context.Context) (map[int]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT year, COUNT(*) FROM meteorites WHERE year IS NOT NULL GROUP BY year`)
	if err != nil {
		return nil, storeFailure(err, "query trends")
	}
	defer rows.Close()

	result := make(map[int]int64)
	for rows.Next() {
		var (
			year  int64
			count int64
		)
		if err := rows.Scan(&year, &count); err != nil {
			return nil, storeFailure(err, "scan trends")
		}
		result[int(year)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storeFailure(err, "iterate trends")
	}
	return result, nil
}

// MassDistribution implements meteorite.Store.
func (s *Store) MassDistribution(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, massDistributionQuery, "mass distribution")
}

// Classification implements meteorite.Store.
func (s *Store) Classification(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, `SELECT recclass, COUNT(*) FROM meteorites WHERE recclass <> '' GROUP BY recclass`, "classification")
}

func (s *Store) countBy(ctx context.Context, query, what string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeFailure(err, "query "+what)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, storeFailure(err, "scan "+what)
		}
		result[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storeFailure(err, "iterate "+what)
	}
	return result, nil
}

// SaveAll implements meteorite.Store. The batch is written in one
// transaction.
func (s *Store) SaveAll(ctx context.Context, records []meteorite.Meteorite) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeFailure(err, "begin import")
	}
	stmt, err := tx.PrepareContext(ctx, `REPLACE INTO meteorites (`+selectColumns+`, `+foldedColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return storeFailure(err, "prepare import")
	}
	defer stmt.Close()

	for _, m := range records {
		if _, err := stmt.ExecContext(ctx, m.ID, m.Name, m.RecClass, m.Fall, nullable(m.Mass), nullableYear(m.Year), nullable(m.RecLat), nullable(m.RecLong),
			meteorite.Fold(m.Name), meteorite.Fold(m.RecClass), meteorite.Fold(m.Fall)); err != nil {
			tx.Rollback()
			return storeFailure(err, fmt.Sprintf("save meteorite %d", m.ID))
		}
	}
	if err := tx.Commit(); err != nil {
		return storeFailure(err, "commit import")
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeteorite(row scanner) (meteorite.Meteorite, error) {
	var (
		m       meteorite.Meteorite
		mass    sql.NullFloat64
		year    sql.NullInt64
		reclat  sql.NullFloat64
		reclong sql.NullFloat64
	)
	if err := row.Scan(&m.ID, &m.Name, &m.RecClass, &m.Fall, &mass, &year, &reclat, &reclong); err != nil {
		return meteorite.Meteorite{}, err
	}
	m.Mass = floatPtr(mass)
	m.RecLat = floatPtr(reclat)
	m.RecLong = floatPtr(reclong)
	if year.Valid {
		y := int(year.Int64)
		m.Year = &y
	}
	return m, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullable(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableYear(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func whereClause(filter meteorite.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Name != "" {
		conds = append(conds, `name_folded LIKE ? ESCAPE '!'`)
		args = append(args, "%"+escapeLike(meteorite.Fold(filter.Name))+"%")
	}
	if filter.RecClass != "" {
		conds = append(conds, `recclass_folded = ?`)
		args = append(args, meteorite.Fold(filter.RecClass))
	}
	if filter.Fall != "" {
		conds = append(conds, `fall_folded = ?`)
		args = append(args, meteorite.Fold(filter.Fall))
	}
	if filter.Year != nil {
		conds = append(conds, `year = ?`)
		args = append(args, *filter.Year)
	}
	if filter.MinMass != nil {
		conds = append(conds, `mass >= ?`)
		args = append(args, *filter.MinMass)
	}
	if filter.MaxMass != nil {
		conds = append(conds, `mass <= ?`)
		args = append(args, *filter.MaxMass)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderBy renders the sort orders with id as the final tie breaker. Both
// drivers place NULL first when ascending.
func orderBy(orders []meteorite.SortOrder) string {
	parts := make([]string, 0, len(orders)+1)
	byID := false
	for _, order := range orders {
		column, ok := columns[order.Property]
		if !ok {
			continue
		}
		direction := " ASC"
		if order.Desc {
			direction = " DESC"
		}
		parts = append(parts, column+direction)
		if column == "id" {
			byID = true
			break
		}
	}
	if !byID {
		parts = append(parts, "id ASC")
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func storeFailure(err error, action string) error {
	return xerrors.Wrap(meteorite.CodeStoreFailure, err, action)
}

var _ meteorite.Store = (*Store)(nil)
