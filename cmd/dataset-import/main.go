// 工具入口：导入外部表格数据集（CSV），供管线按声明键合并
// 用法：dataset-import <名称> <连接键列> <csv路径>
// 约束：键唯一性在合并阶段强制校验，这里只做读取与整表替换入库
package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"region-api/internal/dataset"
	"region-api/internal/logger"
	"region-api/internal/migrate"
	"region-api/internal/store"
	"region-api/internal/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()

	if len(os.Args) != 4 {
		l.Error("usage", "args", "dataset-import <name> <join-key> <csv-path>")
		os.Exit(2)
	}
	name, key, path := os.Args[1], os.Args[2], os.Args[3]

	f, err := os.Open(path)
	if err != nil {
		l.Error("csv_open_error", "path", path, "err", err)
		os.Exit(1)
	}
	defer f.Close()
	d, err := dataset.ReadCSV(f, name, key)
	if err != nil {
		l.Error("csv_parse_error", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(db); err != nil {
		os.Exit(1)
	}
	st := store.AttachDB(db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := st.SaveDataset(ctx, d); err != nil {
		l.Error("dataset_save_error", "err", err)
		os.Exit(1)
	}
	l.Info("import_done", "name", name, "key", key, "rows", len(d.Table.Rows))
}
