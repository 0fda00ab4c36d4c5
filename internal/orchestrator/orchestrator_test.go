package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/cdanielmachado/smetana/internal/config"
	"github.com/cdanielmachado/smetana/internal/model"
	"github.com/cdanielmachado/smetana/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// writeModels serializes fixture models into a temp dir and returns the
// glob matching them.
func writeModels(t *testing.T, models ...*model.Model) string {
	t.Helper()
	dir := t.TempDir()
	json := jsoniter.ConfigCompatibleWithStandardLibrary
	for _, m := range models {
		data, err := json.Marshal(m)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, m.ID+".json"), data, 0o644))
	}
	return filepath.Join(dir, "*.json")
}

func baseConfig(mode, glob string) *config.Config {
	cfg := &config.Config{}
	cfg.Solver.MaxUptake = 10
	cfg.Solver.MinGrowth = 0.1
	cfg.Solver.AbsTol = 1e-6
	cfg.Detailed.Trials = 3
	cfg.Detailed.Perturbation = 0.5
	cfg.Detailed.Seed = 7
	cfg.Engine.Workers = 2
	cfg.Run.Mode = mode
	cfg.Run.Models = []string{glob}
	return cfg
}

func TestGlobalRunCrossFeedingPair(t *testing.T) {
	glob := writeModels(t,
		testutil.Auxotroph("orgA", "aa1", "aa2"),
		testutil.Auxotroph("orgB", "aa2", "aa1"),
	)
	cfg := baseConfig(config.ModeGlobal, glob)
	cfg.Run.Output = filepath.Join(t.TempDir(), "out_")

	o, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	rs, err := o.Compute(context.Background())
	require.NoError(t, err)
	require.Len(t, rs.Global, 1)

	rec := rs.Global[0]
	assert.Equal(t, "all", rec.Community)
	assert.Equal(t, "complete", rec.Medium)
	assert.Equal(t, 2, rec.Size)
	require.True(t, rec.MIP.Valid)
	assert.Equal(t, 3.0, rec.MIP.Value)
	require.True(t, rec.MRO.Valid)
	assert.InDelta(t, 0.5, rec.MRO.Value, 1e-9)
	require.True(t, rec.SMETANA.Valid)
	assert.InDelta(t, 2.0, rec.SMETANA.Value, 1e-9)

	data, err := os.ReadFile(cfg.Run.Output + "global.tsv")
	require.NoError(t, err)
	assert.Contains(t, string(data), "all\tcomplete\t2\t3\t0.5\t2")
}

func TestDetailedRunWithCommunitiesAndMedia(t *testing.T) {
	glob := writeModels(t,
		testutil.Auxotroph("orgA", "aa1", "aa2"),
		testutil.Auxotroph("orgB", "aa2", "aa1"),
		testutil.Prototroph("loner", "glc"),
	)
	dir := t.TempDir()

	communities := filepath.Join(dir, "communities.tsv")
	require.NoError(t, os.WriteFile(communities, []byte(
		"community\torganism\npair\torgA\npair\torgB\n"), 0o644))

	mediaDB := filepath.Join(dir, "media.tsv")
	require.NoError(t, os.WriteFile(mediaDB, []byte(
		"medium\tcompound\nglucose\tglc_e\n"), 0o644))

	cfg := baseConfig(config.ModeDetailed, glob)
	cfg.Run.Communities = communities
	cfg.Run.Media = []string{"glucose"}
	cfg.Run.MediaDB = mediaDB
	cfg.Run.Output = filepath.Join(dir, "out_")

	o, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	rs, err := o.Compute(context.Background())
	require.NoError(t, err)
	require.Len(t, rs.Detailed, 2)
	for _, rec := range rs.Detailed {
		assert.Equal(t, "pair", rec.Community)
		assert.Equal(t, "glucose", rec.Medium)
		require.True(t, rec.SMETANA.Valid)
		assert.Equal(t, 1.0, rec.SMETANA.Value)
	}

	_, err = os.Stat(cfg.Run.Output + "detailed.tsv")
	assert.NoError(t, err)
}

func TestDetailedRunOnMinimalEnvironment(t *testing.T) {
	glob := writeModels(t,
		testutil.Auxotroph("orgA", "aa1", "aa2"),
		testutil.Auxotroph("orgB", "aa2", "aa1"),
	)
	cfg := baseConfig(config.ModeDetailed, glob)
	cfg.Run.Media = []string{"minimal"}
	cfg.Run.Output = filepath.Join(t.TempDir(), "out_")

	o, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)

	// The pair sustains itself on glucose alone, so the derived medium
	// leaves the amino acids to cross-feeding.
	rs, err := o.Compute(context.Background())
	require.NoError(t, err)
	require.Len(t, rs.Detailed, 2)
	for _, rec := range rs.Detailed {
		assert.Equal(t, "minimal", rec.Medium)
		require.True(t, rec.SMETANA.Valid)
		assert.Equal(t, 1.0, rec.SMETANA.Value)
	}
}

func TestMinimalEnvironmentNeedsNoMediaDB(t *testing.T) {
	glob := writeModels(t, testutil.Prototroph("orgA", "glc"))
	cfg := baseConfig(config.ModeGlobal, glob)
	cfg.Run.Media = []string{"minimal"}

	o, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	rs, err := o.Compute(context.Background())
	require.NoError(t, err)
	require.Len(t, rs.Global, 1)
	assert.Equal(t, "minimal", rs.Global[0].Medium)
}

func TestRunSkipsUnresolvableCommunity(t *testing.T) {
	glob := writeModels(t, testutil.Prototroph("orgA", "glc"))
	dir := t.TempDir()

	communities := filepath.Join(dir, "communities.tsv")
	require.NoError(t, os.WriteFile(communities, []byte(
		"good\torgA\nbad\tmissing\n"), 0o644))

	cfg := baseConfig(config.ModeGlobal, glob)
	cfg.Run.Communities = communities

	o, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)

	rs, err := o.Compute(context.Background())
	require.NoError(t, err)
	require.Len(t, rs.Global, 1)
	assert.Equal(t, "good", rs.Global[0].Community)
	assert.Equal(t, 1, rs.Global[0].Size)
	require.True(t, rs.Global[0].MIP.Valid)
	assert.Equal(t, 0.0, rs.Global[0].MIP.Value)
	assert.False(t, rs.Global[0].MRO.Valid)
}

func TestUnknownBackendRejected(t *testing.T) {
	cfg := baseConfig(config.ModeGlobal, "*.json")
	cfg.Solver.Backend = "cplex"
	_, err := New(cfg, zap.NewNop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown solver backend")
}

func TestLoadCommunities(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "communities.tsv")
	require.NoError(t, os.WriteFile(path, []byte(
		"community\torganism\nc1\ta\nc1\tb\nc2\ta\n"), 0o644))

	specs, err := loadCommunities(path, nil)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, communitySpec{ID: "c1", Organisms: []string{"a", "b"}}, specs[0])
	assert.Equal(t, communitySpec{ID: "c2", Organisms: []string{"a"}}, specs[1])
}

func TestLoadCommunitiesRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "communities.tsv")
	require.NoError(t, os.WriteFile(path, []byte("c1\ta\nc1\ta\n"), 0o644))

	_, err := loadCommunities(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeated")
}
