// Command setup_db checks that a Postgres database has the tables the
// backend reads and writes. It does not create or migrate anything.
//
//	go run ./scripts [DATABASE_URL]
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// requiredColumns 每张表必须存在的列
var requiredColumns = map[string][]string{
	"sites":         {"id", "name", "slug"},
	"site_settings": {"site_id", "settings", "updated_at"},
	"memberships":   {"id", "site_id", "user_id", "role"},
}

var tableOrder = []string{"sites", "site_settings", "memberships"}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// 从环境变量或命令行参数获取数据库连接字符串
	dsn := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		dsn = os.Args[1]
	}
	if dsn == "" {
		logger.Error("DATABASE_URL is not set and no DSN argument was given")
		os.Exit(2)
	}

	logger.Info("connecting to database", "dsn", maskPassword(dsn))

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	problems, err := verifySchema(ctx, db, logger)
	if err != nil {
		logger.Error("schema check failed", "error", err)
		os.Exit(1)
	}
	if len(problems) > 0 {
		for _, p := range problems {
			logger.Error("schema problem", "detail", p)
		}
		os.Exit(1)
	}

	logger.Info("database schema looks good")
}

// verifySchema returns one entry per missing table or column.
func verifySchema(ctx context.Context, db *sql.DB, logger *slog.Logger) ([]string, error) {
	var problems []string

	for _, table := range tableOrder {
		rows, err := db.QueryContext(ctx,
			`SELECT column_name FROM information_schema.columns
			 WHERE table_schema = 'public' AND table_name = $1`, table)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
		}

		present := make(map[string]bool)
		for rows.Next() {
			var column string
			if err := rows.Scan(&column); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s column: %w", table, err)
			}
			present[column] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s columns: %w", table, err)
		}

		if len(present) == 0 {
			problems = append(problems, fmt.Sprintf("table %s is missing", table))
			continue
		}

		var missing []string
		for _, column := range requiredColumns[table] {
			if !present[column] {
				missing = append(missing, column)
			}
		}
		if len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("table %s is missing columns: %s", table, strings.Join(missing, ", ")))
			continue
		}

		var count int
		// table names come from tableOrder, never from input
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		logger.Info("table ok", "table", table, "rows", count)
	}

	return problems, nil
}

// maskPassword 隐藏连接字符串中的密码
func maskPassword(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		if len(dsn) > 10 {
			return dsn[:10] + "***"
		}
		return "***"
	}
	return u.Redacted()
}
