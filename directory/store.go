package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cosmomed/pharmacy-locator/interfaces"
	"github.com/cosmomed/pharmacy-locator/logging"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var _ interfaces.DirectoryStore = (*Store)(nil)

// Store is the GORM-backed pharmacy directory.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to driver ("sqlite" or "postgres") and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(
			slog.NewLogLogger(logging.Logger().Handler(), slog.LevelWarn),
			gormlogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		// SQLite allows a single writer.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	s := NewStore(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the pharmacies table.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&PharmacyModel{}); err != nil {
		return fmt.Errorf("failed to migrate pharmacies table: %w", err)
	}
	return nil
}

// likePattern builds a %contains% pattern with LIKE wildcards escaped.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(s)) + "%"
}

// Search returns the pharmacies matching q. Search matches the name, the
// district or the pharmacist; District and MOH narrow the result further.
// Matching is case-insensitive on every driver.
func (s *Store) Search(ctx context.Context, q pharmacy.Query) ([]pharmacy.Listing, error) {
	tx := s.db.WithContext(ctx).Model(&PharmacyModel{})

	if d := strings.TrimSpace(q.District); d != "" {
		tx = tx.Where(`LOWER(district) LIKE ? ESCAPE '\'`, likePattern(d))
	}
	if m := strings.TrimSpace(q.MOH); m != "" {
		tx = tx.Where(`LOWER(moh) LIKE ? ESCAPE '\'`, likePattern(m))
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		p := likePattern(term)
		tx = tx.Where(
			s.db.Where(`LOWER(pharmacy_name) LIKE ? ESCAPE '\'`, p).
				Or(`LOWER(district) LIKE ? ESCAPE '\'`, p).
				Or(`LOWER(pharmacist_name) LIKE ? ESCAPE '\'`, p),
		)
	}

	var rows []PharmacyModel
	if err := tx.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search pharmacies: %w", err)
	}

	out := make([]pharmacy.Listing, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toListing())
	}
	return out, nil
}

// Stats counts all pharmacies and those with usable coordinates.
func (s *Store) Stats(ctx context.Context) (pharmacy.Stats, error) {
	var rows []struct {
		Lat string
		Lng string
	}
	if err := s.db.WithContext(ctx).Model(&PharmacyModel{}).Select("lat", "lng").Find(&rows).Error; err != nil {
		return pharmacy.Stats{}, fmt.Errorf("failed to count pharmacies: %w", err)
	}

	stats := pharmacy.Stats{Total: len(rows)}
	for _, r := range rows {
		if parseCoordinate(r.Lat) != nil && parseCoordinate(r.Lng) != nil {
			stats.WithCoords++
		}
	}
	return stats, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
