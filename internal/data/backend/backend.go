package backend

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/classsync/internal/pkg/dbctx"
	"github.com/yungbote/classsync/internal/platform/envutil"
	"github.com/yungbote/classsync/internal/platform/logger"
)

// Backend is the persistence collaborator: bulk reads for the snapshot, row
// writes, and the transactional merge-writes shared lists need.
type Backend struct {
	db     *gorm.DB
	log    *logger.Logger
	runner TxRunner
	guard  StatusGuard
}

func New(db *gorm.DB, log *logger.Logger) *Backend {
	if log == nil {
		log = logger.Nop()
	}
	return &Backend{
		db:     db,
		log:    log.With("service", "Backend"),
		runner: NewGormTxRunner(db),
		guard:  NewStatusGuard(db),
	}
}

func (b *Backend) DB() *gorm.DB { return b.db }

// PostgresDSN reads POSTGRES_DSN, or builds one from the POSTGRES_* parts.
func PostgresDSN(log *logger.Logger) string {
	if dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); dsn != "" {
		return dsn
	}
	host := envutil.String("POSTGRES_HOST", "localhost", log)
	port := envutil.String("POSTGRES_PORT", "5432", log)
	user := envutil.String("POSTGRES_USER", "postgres", log)
	password := envutil.String("POSTGRES_PASSWORD", "", log)
	name := envutil.String("POSTGRES_NAME", "classsync", log)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
}

// OpenPostgres connects gorm to the backend database.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return db, nil
}

// TxRunner provides the transaction boundary for merge-writes.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return fmt.Errorf("transaction runner has nil db")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

// StatusGuard updates a row only while its status is one of the allowed ones.
type StatusGuard struct {
	db *gorm.DB
}

func NewStatusGuard(db *gorm.DB) StatusGuard { return StatusGuard{db: db} }

func (g StatusGuard) UpdateByStatus(dbc dbctx.Context, model any, id string, allowed []string, updates map[string]any) (bool, error) {
	if id == "" || len(allowed) == 0 {
		return false, fmt.Errorf("id and allowed statuses are required")
	}
	res := dbc.DB(g.db).Model(model).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// forUpdate row-locks the selected rows on dialects that support it. SQLite
// serializes writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
