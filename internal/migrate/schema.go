package migrate

import (
	"database/sql"

	"region-api/internal/logger"
)

// 背景：首次运行自动创建所需表与索引，保障后续导入与查询
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _region_events (
            id TEXT PRIMARY KEY,
            lat TEXT NOT NULL,
            lon TEXT NOT NULL,
            occurred_at TIMESTAMPTZ,
            source TEXT NOT NULL DEFAULT ''
        )`,
		`CREATE INDEX IF NOT EXISTS idx_region_events_at ON _region_events(occurred_at)`,
		`CREATE TABLE IF NOT EXISTS _region_datasets (
            name TEXT NOT NULL,
            join_key TEXT NOT NULL,
            row_json JSONB NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_region_datasets_name ON _region_datasets(name)`,
		`CREATE TABLE IF NOT EXISTS _region_runs (
            id TEXT PRIMARY KEY,
            started_at TIMESTAMPTZ NOT NULL,
            duration_ms BIGINT NOT NULL,
            total_events BIGINT NOT NULL,
            valid_points BIGINT NOT NULL,
            matched BIGINT NOT NULL,
            unmatched BIGINT NOT NULL,
            invalid BIGINT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS _region_run_counts (
            run_id TEXT NOT NULL REFERENCES _region_runs(id),
            region_id TEXT NOT NULL,
            cnt BIGINT NOT NULL,
            PRIMARY KEY (run_id, region_id)
        )`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			logger.L().Error("schema_stmt_error", "err", err)
			return err
		}
	}
	logger.L().Info("schema_ok")
	return nil
}
