package reporting

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cdanielmachado/smetana/api/schemas"
)

func TestWriteTables(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "run_")
	rs := schemas.NewResultSet()
	rs.Global = append(rs.Global, schemas.GlobalRecord{
		Community: "pair",
		Medium:    "glucose",
		Size:      2,
		MIP:       schemas.NewScore(3),
		MRO:       schemas.NewScore(0.5),
		SMETANA:   schemas.NA(),
	})
	rs.Detailed = append(rs.Detailed, schemas.DetailedRecord{
		Community: "pair",
		Medium:    "glucose",
		Receiver:  "a",
		Donor:     "b",
		Compound:  "aa2_e",
		SCS:       schemas.NewScore(1),
		MUS:       schemas.NewScore(0.8),
		MPS:       schemas.NewScore(1),
		SMETANA:   schemas.NewScore(0.8),
	})

	require.NoError(t, NewTSV(prefix, zap.NewNop()).Write(rs))

	global, err := os.ReadFile(prefix + "global.tsv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(global)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "community\tmedium\tsize\tmip\tmro\tsmetana", lines[0])
	assert.Equal(t, "pair\tglucose\t2\t3\t0.5\tn/a", lines[1])

	detailed, err := os.ReadFile(prefix + "detailed.tsv")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(string(detailed)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "community\tmedium\treceiver\tdonor\tcompound\tscs\tmus\tmps\tsmetana", lines[0])
	assert.Equal(t, "pair\tglucose\ta\tb\taa2_e\t1\t0.8\t1\t0.8", lines[1])
}

func TestWriteJSON(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "run_")
	rs := schemas.NewResultSet()
	rs.Global = append(rs.Global, schemas.GlobalRecord{
		Community: "pair",
		Medium:    "complete",
		Size:      2,
		MIP:       schemas.NewScore(3),
		MRO:       schemas.NA(),
	})
	rs.NonGrowing["pair"] = []string{"dead"}

	require.NoError(t, NewJSON(prefix, zap.NewNop()).Write(rs))

	data, err := os.ReadFile(prefix + "results.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mip": 3`)
	assert.Contains(t, string(data), `"mro": null`)
	assert.Contains(t, string(data), `"non_growing"`)
}

func TestNewSelectsFormat(t *testing.T) {
	_, err := New("tsv", "p_", zap.NewNop())
	require.NoError(t, err)
	_, err = New("json", "p_", zap.NewNop())
	require.NoError(t, err)
	_, err = New("yaml", "p_", zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestWriteSkipsEmptyTables(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "run_")
	require.NoError(t, NewTSV(prefix, zap.NewNop()).Write(schemas.NewResultSet()))

	_, err := os.Stat(prefix + "global.tsv")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(prefix + "detailed.tsv")
	assert.True(t, os.IsNotExist(err))
}
