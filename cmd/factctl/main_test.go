package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestEvaluate_RulesOnly(t *testing.T) {
	out, err := execute(t, "evaluate", "--dataset", "testdata/claims.yaml", "--rules-only", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Dataset: rules-smoke")
	assert.Contains(t, out, "Total Claims: 4")
	assert.Contains(t, out, "Correct: 4 (100.0%)")
}

func TestReset_RequiresConfirmation(t *testing.T) {
	_, err := execute(t, "reset", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}
