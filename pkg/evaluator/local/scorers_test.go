package local

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

func req(content string) *domain.EvaluationRequest {
	return &domain.EvaluationRequest{Content: content}
}

func TestScoreCoherenceEmptyContent(t *testing.T) {
	resp, err := ScoreCoherence(context.Background(), req(""))
	require.NoError(t, err)
	assert.Zero(t, resp.Metric)
}

func TestScoreCoherenceRewardsStructure(t *testing.T) {
	// Two paragraphs, varied sentence lengths, mid-range word count.
	long := strings.Repeat("the narrative continues with detail ", 20)
	text := "Short opener. " + long + "ending the first thought here.\n\n" +
		"A second paragraph follows. " + long + "and concludes."

	resp, err := ScoreCoherence(context.Background(), req(text))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, resp.Metric, 4.0)
	assert.LessOrEqual(t, resp.Metric, 5.0)
}

func TestScoreCoherencePlainTextStaysBelowThreshold(t *testing.T) {
	resp, err := ScoreCoherence(context.Background(), req("just a few words"))
	require.NoError(t, err)
	assert.Less(t, resp.Metric, 4.0)
}

func TestScoreFactualityAccurateDates(t *testing.T) {
	resp, err := ScoreFactuality(context.Background(),
		req("The Sydney Opera House was completed in 1973 after construction began in 1959."))
	require.NoError(t, err)
	assert.InDelta(t, 2.2, resp.Metric, 1e-9)
}

func TestScoreFactualityWrongDateVetoes(t *testing.T) {
	resp, err := ScoreFactuality(context.Background(),
		req("The Sydney Opera House was completed in 1955."))
	require.NoError(t, err)
	assert.Less(t, resp.Metric, 1.5)
	assert.Contains(t, resp.Detail, "sydney opera house")
}

func TestScoreFactualityNoLandmarks(t *testing.T) {
	resp, err := ScoreFactuality(context.Background(), req("A quiet story about a garden."))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, resp.Metric, 1e-9)
}

func TestScoreFactualityClampsAtZero(t *testing.T) {
	resp, err := ScoreFactuality(context.Background(),
		req("The Sydney Opera House opened in 1920, then again in 1931, and once more in 1942."))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, resp.Metric, 0.0)
	assert.Less(t, resp.Metric, 1.5)
}

func TestScoreFairnessCleanText(t *testing.T) {
	resp, err := ScoreFairness(context.Background(), req("A story about a lighthouse keeper."))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, resp.Metric, 1e-9)
}

func TestScoreFairnessOvergeneralizationDeducts(t *testing.T) {
	resp, err := ScoreFairness(context.Background(),
		req("Everyone knows all women are the same in this town."))
	require.NoError(t, err)
	assert.Less(t, resp.Metric, 0.95)
	assert.Contains(t, resp.Detail, "overgeneralization")
}

func TestScoreFairnessParityBlended(t *testing.T) {
	// Unbalanced mentions inside one monitored group lower the score a little.
	resp, err := ScoreFairness(context.Background(),
		req("The men spoke, the men decided, the men acted, while one woman watched."))
	require.NoError(t, err)
	assert.Less(t, resp.Metric, 1.0)
	assert.Greater(t, resp.Metric, 0.9)
}

func TestScoreLegalCleanText(t *testing.T) {
	resp, err := ScoreLegal(context.Background(), req("An original short story."))
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLow, resp.Risk)
}

func TestScoreLegalExtendedQuotation(t *testing.T) {
	quoted := strings.Repeat("quoted words keep flowing onward ", 40)
	resp, err := ScoreLegal(context.Background(), req(`The book said "`+quoted+`" and more.`))
	require.NoError(t, err)
	assert.Equal(t, domain.RiskCritical, resp.Risk)
	assert.Contains(t, resp.Detail, "extended quotation")
}

func TestScoreLegalProtectedMentionIsMedium(t *testing.T) {
	resp, err := ScoreLegal(context.Background(), req("She recalled an oral tradition briefly."))
	require.NoError(t, err)
	assert.Equal(t, domain.RiskMedium, resp.Risk)
}

func TestScoreLegalVerbatimIndicatorIsHigh(t *testing.T) {
	resp, err := ScoreLegal(context.Background(),
		req("The passage was reproduced verbatim from the manuscript."))
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, resp.Risk)
}

func TestScoreTransparency(t *testing.T) {
	resp, err := ScoreTransparency(context.Background(), req(""))
	require.NoError(t, err)
	assert.Zero(t, resp.Metric)

	resp, err = ScoreTransparency(context.Background(), req("content only"))
	require.NoError(t, err)
	assert.InDelta(t, 0.7, resp.Metric, 1e-9)

	resp, err = ScoreTransparency(context.Background(), &domain.EvaluationRequest{
		Content:  "content",
		Metadata: map[string]string{"author": "a"},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, resp.Metric, 1e-9)
}

func TestClientsCoverAllRoles(t *testing.T) {
	specs := []domain.EvaluatorSpec{
		{Role: domain.RoleCoherence, Threshold: 4.0, Domain: domain.MetricDomain{Max: 5}},
		{Role: domain.RoleFactuality, Threshold: 1.5, Domain: domain.MetricDomain{Max: 3}},
		{Role: domain.RoleFairness, Threshold: 0.95, Domain: domain.MetricDomain{Max: 1}},
		{Role: domain.RoleLegal},
		{Role: domain.RoleTransparency, Threshold: 0.5, Domain: domain.MetricDomain{Max: 1}},
	}
	clients, err := Clients(specs)
	require.NoError(t, err)
	require.Len(t, clients, 5)

	res := clients[domain.RoleFactuality].Evaluate(context.Background(),
		req("The Sydney Opera House was completed in 1973."))
	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, domain.VerdictPass, res.Verdict)
}

func TestNewClientRejectsUnknownRole(t *testing.T) {
	_, err := NewClient(domain.EvaluatorSpec{Role: "vibes"})
	require.ErrorIs(t, err, domain.ErrUnknownEvaluator)
}
