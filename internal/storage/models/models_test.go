package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from, to ClaimStatus
		want     bool
	}{
		{StatusNew, StatusAnalyzing, true},
		{StatusAnalyzing, StatusAnalyzed, true},
		{StatusNew, StatusAnalyzed, false},
		{StatusAnalyzed, StatusAnalyzing, false},
		{StatusAnalyzed, StatusNew, false},
		{StatusNew, StatusEscalated, true},
		{StatusAnalyzing, StatusEscalated, true},
		{StatusAnalyzed, StatusEscalated, true},
		{StatusEscalated, StatusAnalyzed, true},
		{StatusEscalated, StatusNew, false},
		{StatusAnalyzed, StatusAnalyzed, true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestParseVerdict(t *testing.T) {
	v, err := ParseVerdict("out-of-context")
	require.NoError(t, err)
	assert.Equal(t, VerdictOutOfContext, v)

	_, err = ParseVerdict("FALSE")
	assert.Error(t, err)
}

func TestParseSentiment(t *testing.T) {
	s, err := ParseSentiment("fear")
	require.NoError(t, err)
	assert.Equal(t, SentimentFear, s)

	_, err = ParseSentiment("rage")
	assert.Error(t, err)
}

func TestSourceType_Valid(t *testing.T) {
	assert.True(t, SourceTelegram.Valid())
	assert.False(t, SourceType("fax").Valid())
}
