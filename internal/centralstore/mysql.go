// mysql.go: MySQL-backed adapter for the central database
package centralstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/fieldsync-go/internal/conf"
	"github.com/tphakala/fieldsync-go/internal/logging"
)

// MySQL server error codes that mean the statement can never succeed.
// Everything else coming back from the server is retried under backoff.
var permanentMySQLCodes = map[uint16]bool{
	1048: true, // column cannot be null
	1054: true, // unknown column
	1062: true, // duplicate entry
	1064: true, // syntax error
	1146: true, // table doesn't exist
	1364: true, // field doesn't have a default value
	1366: true, // incorrect value for column
	1406: true, // data too long for column
	1452: true, // foreign key constraint fails
}

// MySQLAdapter applies queued operations to the central MySQL database.
type MySQLAdapter struct {
	db      *gorm.DB
	timeout time.Duration
	logger  *slog.Logger
}

// NewMySQLAdapter opens a connection to the central database. The version
// probe is skipped so construction succeeds while the device is offline;
// the first real connection happens on Ping or Apply. The adapter itself
// never retries; classification of failures is left to callers.
func NewMySQLAdapter(settings *conf.CentralSettings, timeout time.Duration) (*MySQLAdapter, error) {
	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		DSN:                       settings.DSN(),
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open central database: %w", err)
	}
	return &MySQLAdapter{
		db:      db,
		timeout: timeout,
		logger:  logging.ForService("centralstore"),
	}, nil
}

// ApplyInsert inserts a new row for the target entity.
func (a *MySQLAdapter) ApplyInsert(ctx context.Context, target string, payload map[string]string) Outcome {
	spec, columns, err := lookupTarget(target, payload)
	if err != nil {
		return permanent(err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		spec.table, strings.Join(columns, ", "), placeholders)

	args := make([]any, len(columns))
	for i, col := range columns {
		args[i] = payload[col]
	}

	return a.exec(ctx, stmt, args...)
}

// ApplyUpdate updates the row identified by key for the target entity.
func (a *MySQLAdapter) ApplyUpdate(ctx context.Context, target, key string, payload map[string]string) Outcome {
	spec, columns, err := lookupTarget(target, payload)
	if err != nil {
		return permanent(err)
	}
	if key == "" {
		return permanent(fmt.Errorf("update on target %q requires a key", target))
	}

	assignments := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, col := range columns {
		assignments[i] = col + " = ?"
		args = append(args, payload[col])
	}
	args = append(args, key)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		spec.table, strings.Join(assignments, ", "), spec.keyColumn)

	return a.exec(ctx, stmt, args...)
}

// ApplyDelete removes the row identified by key for the target entity.
func (a *MySQLAdapter) ApplyDelete(ctx context.Context, target, key string) Outcome {
	spec, found := targetRegistry[target]
	if !found {
		return permanent(fmt.Errorf("unknown target %q", target))
	}
	if key == "" {
		return permanent(fmt.Errorf("delete on target %q requires a key", target))
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", spec.table, spec.keyColumn)
	return a.exec(ctx, stmt, key)
}

// Ping tests reachability of the central database.
func (a *MySQLAdapter) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (a *MySQLAdapter) exec(ctx context.Context, stmt string, args ...any) Outcome {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.db.WithContext(ctx).Exec(stmt, args...).Error; err != nil {
		return a.classify(err)
	}
	return ok()
}

// classify maps a driver error to a tagged outcome. Timeouts and transport
// failures are transient; server errors rejecting the statement itself are
// permanent.
func (a *MySQLAdapter) classify(err error) Outcome {
	var mysqlErr *mysql.MySQLError
	if stderrors.As(err, &mysqlErr) {
		if permanentMySQLCodes[mysqlErr.Number] {
			a.logger.Warn("central store rejected operation", "code", mysqlErr.Number, "error", err)
			return permanent(err)
		}
		return transient(err)
	}

	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(err, context.Canceled) ||
		stderrors.As(err, &netErr) {
		return transient(err)
	}

	// Unrecognized driver errors are treated as transient so a flaky link
	// never turns recoverable work into permanent failures.
	return transient(err)
}
