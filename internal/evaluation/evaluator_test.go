package evaluation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/verdict"
)

const sample = `
name: smoke
items:
  - text: The earth is flat and NASA is lying
    expected: "false"
    category: science
  - text: Vaccines cause autism in children
    expected: "false"
    category: health
  - text: Water is H2O
    expected: "true"
    category: science
  - text: The council approved a new budget on Tuesday
    expected: "true"
    category: politics
`

func TestParseDataset(t *testing.T) {
	ds, err := ParseDataset([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "smoke", ds.Name)
	require.Len(t, ds.Items, 4)
	assert.Equal(t, models.VerdictFalse, ds.Items[0].Expected)
}

func TestParseDataset_Rejects(t *testing.T) {
	_, err := ParseDataset([]byte("items:\n  - text: x\n    expected: maybe\n"))
	assert.Error(t, err)

	_, err = ParseDataset([]byte("items:\n  - text: ''\n    expected: 'true'\n"))
	assert.Error(t, err)

	_, err = ParseDataset([]byte("items: [unclosed"))
	assert.Error(t, err)
}

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	ds, err := LoadDataset(path)
	require.NoError(t, err)
	assert.Len(t, ds.Items, 4)

	_, err = LoadDataset(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRun_RulesOnly(t *testing.T) {
	ds, err := ParseDataset([]byte(sample))
	require.NoError(t, err)

	report, err := NewEvaluator(verdict.NewSynthesizer(nil)).Run(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 3, report.Correct)
	assert.InDelta(t, 0.75, report.Accuracy, 1e-9)
	assert.Equal(t, 2, report.Confusion[models.VerdictFalse][models.VerdictFalse])
	assert.Equal(t, 1, report.Confusion[models.VerdictTrue][models.VerdictUnverified])
	assert.Equal(t, 4, report.ByStage[verdict.StageRules])
	assert.InDelta(t, 1.0, report.ByCategory["science"], 1e-9)
	assert.InDelta(t, 0.0, report.ByCategory["politics"], 1e-9)

	out := report.String()
	assert.Contains(t, out, "Correct: 3 (75.0%)")
	assert.Contains(t, out, "- true -> unverified: 1")
}

func TestRun_Cancelled(t *testing.T) {
	ds, err := ParseDataset([]byte(sample))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewEvaluator(verdict.NewSynthesizer(nil)).Run(ctx, ds)
	assert.ErrorIs(t, err, context.Canceled)
}
