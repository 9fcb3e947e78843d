package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chicagolots/lotbot/internal/lotbot"
)

func TestAnalyzeCadence(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stats := lotbot.Statistics{Total: 120000, Posted: 10000, PermanentlyFailed: 500, Remaining: 109500}

	c := Analyze(stats, 30, now)

	require.Equal(t, 30, c.TargetYears)
	require.InDelta(t, 10.0, c.PostsPerDay, 0.01)
	require.InDelta(t, 0.4167, c.PostsPerHour, 0.001)
	require.InDelta(t, 144.0, c.MinutesBetweenPosts, 0.1)
	require.Equal(t, now.AddDate(0, 0, 30*365), c.EstimatedCompletion)
}

func TestAnalyzeEmptyBacklog(t *testing.T) {
	t.Parallel()

	c := Analyze(lotbot.Statistics{Total: 10, Posted: 10}, 30, time.Now())
	require.Zero(t, c.PostsPerDay)
	require.Zero(t, c.MinutesBetweenPosts)
}

func TestAnalyzeDefaultsHorizon(t *testing.T) {
	t.Parallel()

	c := Analyze(lotbot.Statistics{Remaining: 100}, 0, time.Now())
	require.Equal(t, 30, c.TargetYears)
}

func TestWriteRendersSummary(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	c := Analyze(lotbot.Statistics{Total: 100, Remaining: 100}, 10, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, Write(&sb, c))
	require.Contains(t, sb.String(), "Total properties: 100")
	require.Contains(t, sb.String(), "To complete in 10 years")
}
