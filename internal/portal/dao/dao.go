// Пакет dao - доступ к базе данных портала через GORM (PostgreSQL в продакшене, SQLite для разработки и тестов).
//
// Основные возможности:
//   - Подключение к базе по драйверу из конфигурации с логированием запросов через gormlogger.
//   - Универсальное хранилище строк Store (выборка, вставка, обновление, удаление по таблице и фильтру)
//     с белым списком таблиц.
//   - Страницы вики (WikiPage) с содержимым в jsonb колонке.
package dao

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/comunidadeds/portal/internal/portal/config"
	"github.com/comunidadeds/portal/internal/portal/gormlogger"
)

var (
	ErrTableNotAllowed = errors.New("table is not allowed")
	ErrInvalidColumn   = errors.New("invalid column name")
	ErrEmptyFilter     = errors.New("filter is required")
)

var columnRegexp = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Open подключается к базе данных и применяет миграции моделей пакета.
func Open(cfg *config.Config, trace bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case config.DatabaseSQLite:
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		dialector = postgres.New(postgres.Config{DSN: cfg.DatabaseDSN})
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.NewGormLogger(slog.Default(), time.Second*2, !trace),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate создает или обновляет таблицы моделей.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&WikiPage{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Store выполняет операции над строками произвольных таблиц из белого списка.
// Строки представлены как map[string]any, фильтр - равенство по всем указанным колонкам.
type Store struct {
	db     *gorm.DB
	tables []string
}

// DefaultTables - таблицы, доступные Store по умолчанию.
var DefaultTables = []string{WikiPage{}.TableName()}

func NewStore(db *gorm.DB, tables ...string) *Store {
	if len(tables) == 0 {
		tables = DefaultTables
	}
	return &Store{db: db, tables: slices.Clone(tables)}
}

func (s *Store) table(ctx context.Context, table string, filters map[string]any) (*gorm.DB, error) {
	if !slices.Contains(s.tables, table) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotAllowed, table)
	}
	for k := range filters {
		if !columnRegexp.MatchString(k) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidColumn, k)
		}
	}

	q := s.db.WithContext(ctx).Table(table)
	if len(filters) > 0 {
		q = q.Where(maps.Clone(filters))
	}
	return q, nil
}

// Query возвращает строки таблицы, подходящие под фильтр. Пустой фильтр возвращает все строки.
func (s *Store) Query(ctx context.Context, table string, filters map[string]any) ([]map[string]any, error) {
	q, err := s.table(ctx, table, filters)
	if err != nil {
		return nil, err
	}

	rows := []map[string]any{}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return rows, nil
}

// Insert вставляет строки в таблицу одним запросом.
func (s *Store) Insert(ctx context.Context, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	q, err := s.table(ctx, table, nil)
	if err != nil {
		return err
	}
	for _, row := range rows {
		for k := range row {
			if !columnRegexp.MatchString(k) {
				return fmt.Errorf("%w: %q", ErrInvalidColumn, k)
			}
		}
	}

	if err := q.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Update применяет patch ко всем строкам под фильтром и возвращает число измененных строк.
func (s *Store) Update(ctx context.Context, table string, filters map[string]any, patch map[string]any) (int64, error) {
	if len(filters) == 0 {
		return 0, ErrEmptyFilter
	}
	for k := range patch {
		if !columnRegexp.MatchString(k) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidColumn, k)
		}
	}
	q, err := s.table(ctx, table, filters)
	if err != nil {
		return 0, err
	}

	res := q.Updates(maps.Clone(patch))
	if res.Error != nil {
		return 0, fmt.Errorf("update %s: %w", table, res.Error)
	}
	return res.RowsAffected, nil
}

// Delete удаляет строки под фильтром и возвращает их число.
func (s *Store) Delete(ctx context.Context, table string, filters map[string]any) (int64, error) {
	if len(filters) == 0 {
		return 0, ErrEmptyFilter
	}
	if _, err := s.table(ctx, table, filters); err != nil {
		return 0, err
	}

	var conds []clause.Expression
	for _, k := range slices.Sorted(maps.Keys(filters)) {
		conds = append(conds, clause.Eq{Column: clause.Column{Name: k}, Value: filters[k]})
	}
	res := s.db.WithContext(ctx).Exec("DELETE FROM ? WHERE ?", clause.Table{Name: table}, clause.And(conds...))
	if res.Error != nil {
		return 0, fmt.Errorf("delete %s: %w", table, res.Error)
	}
	return res.RowsAffected, nil
}
