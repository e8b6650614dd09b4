package db

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/khchop/kickscore/internal/platform/envutil"
	"github.com/khchop/kickscore/internal/platform/logger"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// New opens the primary store. Postgres in every deployed environment;
// DATABASE_DRIVER=sqlite exists for local development only (row locking
// degrades to database-level serialization there).
func New(logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "DB")

	driver := strings.ToLower(envutil.String("DATABASE_DRIVER", "postgres"))

	gormLog := gormLogger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	var (
		gdb *gorm.DB
		err error
	)
	switch driver {
	case "sqlite":
		path := envutil.String("SQLITE_PATH", "kickscore.db")
		gdb, err = gorm.Open(sqlite.Open(path), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite at %s: %w", path, err)
		}
	default:
		dsn := envutil.String("DATABASE_URL", "")
		if dsn == "" {
			host := envutil.String("POSTGRES_HOST", "localhost")
			port := envutil.String("POSTGRES_PORT", "5432")
			user := envutil.String("POSTGRES_USER", "postgres")
			pass := envutil.String("POSTGRES_PASSWORD", "")
			name := envutil.String("POSTGRES_NAME", "kickscore")
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name)
		}
		gdb, err = gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
		}
	}

	return &Service{db: gdb, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }
