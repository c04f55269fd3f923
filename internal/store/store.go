// 包 store: 提供与 PostgreSQL 的数据访问层，包含事件、数据集与运行记录的读写
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"region-api/internal/dataset"
	"region-api/internal/logger"
	"region-api/internal/points"
	"region-api/internal/table"
)

// Store: 数据库访问入口，持有连接池并提供读写接口
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Open: 使用 DSN 打开数据库连接并配置连接池参数
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// InsertEvents：批量写入事件，标识冲突时忽略（布隆去重的强一致兜底）
// 背景：按批事务提交，降低锁持有时间
func (s *Store) InsertEvents(ctx context.Context, evs []points.RawEvent) (int, error) {
	if len(evs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO _region_events(id, lat, lon, occurred_at, source)
         VALUES($1,$2,$3,$4,$5) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	n := 0
	for _, ev := range evs {
		var at any
		if !ev.At.IsZero() {
			at = ev.At
		}
		res, err := stmt.ExecContext(ctx, ev.ID, ev.Lat, ev.Lon, at, ev.Source)
		if err != nil {
			return 0, err
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.L().Info("events_insert_ok", "new", n, "total", len(evs))
	return n, nil
}

// LoadEvents：读取全部事件快照
// 约束：管线是批处理一次性变换，读取的是固定快照而非流式游标
func (s *Store) LoadEvents(ctx context.Context) ([]points.RawEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lat, lon, COALESCE(occurred_at, 'epoch'::timestamptz), source FROM _region_events`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []points.RawEvent
	for rows.Next() {
		var ev points.RawEvent
		if err := rows.Scan(&ev.ID, &ev.Lat, &ev.Lon, &ev.At, &ev.Source); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SaveDataset：整表替换同名数据集
// 约束：行以 JSON 存储以保留任意字段；替换在单事务内完成，不留半份数据集
func (s *Store) SaveDataset(ctx context.Context, d dataset.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM _region_datasets WHERE name=$1`, d.Name); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO _region_datasets(name, join_key, row_json) VALUES($1,$2,$3)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range d.Table.Rows {
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, d.Name, d.Table.Key, b); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Info("dataset_save_ok", "name", d.Name, "rows", len(d.Table.Rows))
	return nil
}

// LoadDatasets：读取全部数据集
func (s *Store) LoadDatasets(ctx context.Context) ([]dataset.Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, join_key, row_json FROM _region_datasets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byName := map[string]*dataset.Dataset{}
	var order []string
	for rows.Next() {
		var name, key string
		var raw []byte
		if err := rows.Scan(&name, &key, &raw); err != nil {
			return nil, err
		}
		row, err := decodeDatasetRow(raw)
		if err != nil {
			return nil, err
		}
		d, ok := byName[name]
		if !ok {
			d = &dataset.Dataset{Name: name, Table: table.Table{Key: key}}
			byName[name] = d
			order = append(order, name)
		}
		d.Table.Rows = append(d.Table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]dataset.Dataset, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

// decodeDatasetRow：行 JSON 解码并还原数值类型
// 背景：encoding/json 缺省把所有数值解成 float64，重载的数据集会与刚导入的
// 同一数据集绑定出不同动态类型的属性值。按 json.Number 解码后整数还原为 int，
// 其余数值为 float64，与 CSV 读取层的数值化保持同型。
func decodeDatasetRow(raw []byte) (table.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var row table.Row
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	for k, v := range row {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			row[k] = int(i)
		} else if f, err := n.Float64(); err == nil {
			row[k] = f
		}
	}
	return row, nil
}

// RunSummary：一次管线运行的持久化摘要
type RunSummary struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Duration  int64     `json:"duration_ms"`
	Total     int       `json:"total_events"`
	Valid     int       `json:"valid_points"`
	Matched   int       `json:"matched"`
	Unmatched int       `json:"unmatched"`
	Invalid   int       `json:"invalid"`
}

// SaveRun：写入运行摘要与每区域计数
func (s *Store) SaveRun(ctx context.Context, sum RunSummary, counts table.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _region_runs(id, started_at, duration_ms, total_events, valid_points, matched, unmatched, invalid)
         VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		sum.ID, sum.StartedAt, sum.Duration, sum.Total, sum.Valid, sum.Matched, sum.Unmatched, sum.Invalid); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO _region_run_counts(run_id, region_id, cnt) VALUES($1,$2,$3)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range counts.Rows {
		id, _ := table.KeyString(r["region_id"])
		cnt, _ := r["count"].(int)
		if _, err := stmt.ExecContext(ctx, sum.ID, id, cnt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentRuns：按时间倒序读取最近的运行摘要
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, total_events, valid_points, matched, unmatched, invalid
         FROM _region_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Duration, &r.Total, &r.Valid, &r.Matched, &r.Unmatched, &r.Invalid); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
