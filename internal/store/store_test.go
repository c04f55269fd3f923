package store

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"region-api/internal/dataset"
)

// 数据集行经 JSON 落库再读回后，数值类型必须与 CSV 读取层同型
func TestDecodeDatasetRowRestoresNumericTypes(t *testing.T) {
	src := "region_id,pop,density,note\nA,100,12.5,north\n"
	ds, err := dataset.ReadCSV(strings.NewReader(src), "population", "region_id")
	require.NoError(t, err)

	raw, err := json.Marshal(ds.Table.Rows[0])
	require.NoError(t, err)
	row, err := decodeDatasetRow(raw)
	require.NoError(t, err)

	assert.Equal(t, ds.Table.Rows[0], row)
	assert.IsType(t, 0, row["pop"])
	assert.IsType(t, 0.0, row["density"])
	assert.Equal(t, "A", row["region_id"])
	assert.Equal(t, "north", row["note"])
}

func TestDecodeDatasetRowNil(t *testing.T) {
	row, err := decodeDatasetRow([]byte(`{"region_id":"B","density":null}`))
	require.NoError(t, err)
	assert.Nil(t, row["density"])
}
