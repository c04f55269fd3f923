// 包 dataset：外部表格数据集的读取
// 背景：人口、面积等区域指标以 CSV 到达，读成属性行表后按声明键合并到几何属性上；
// 键列保持文本形态，其余列尽量数值化以便下游直接计算。
// 约束：此处不校验键唯一性——那是合并引擎的前置条件与职责，读取层不做隐式纠正。
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"region-api/internal/table"
)

// Dataset：带名称的外部数据集，Table.Key 为声明的连接键列
type Dataset struct {
	Name  string
	Table table.Table
}

// ReadCSV：按表头读取 CSV 为行表
// 约束：首行为表头且必须包含键列 key；空单元格读作 nil；
// 非键列能解析为整数/浮点的按数值存储，其余保持文本
func ReadCSV(r io.Reader, name, key string) (Dataset, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return Dataset{}, fmt.Errorf("dataset %s: read header: %w", name, err)
	}
	keyIdx := -1
	for i, h := range header {
		if h == key {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return Dataset{}, fmt.Errorf("dataset %s: join key column %q not in header %v", name, key, header)
	}

	var rows []table.Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("dataset %s: line %d: %w", name, line, err)
		}
		row := make(table.Row, len(header))
		for i, h := range header {
			if i >= len(rec) {
				row[h] = nil
				continue
			}
			row[h] = coerceCell(rec[i], i == keyIdx)
		}
		rows = append(rows, row)
	}
	return Dataset{Name: name, Table: table.Table{Key: key, Rows: rows}}, nil
}

func coerceCell(s string, isKey bool) any {
	if s == "" {
		return nil
	}
	if isKey {
		return s
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
