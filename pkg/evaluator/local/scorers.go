// Package local provides in-process reference implementations of all five
// evaluator roles. They exist for development, the CLI, and integration
// tests; production deployments point the engine at independently operated
// evaluator services instead.
package local

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
	"github.com/arbiterai/arbiter-oss/pkg/evaluator"
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+`)
	yearPattern   = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	longQuote     = regexp.MustCompile(`"([^"]{200,})"`)
)

// ScoreCoherence rates narrative coherence on a 0-5 scale from length,
// sentence variety, and paragraph structure.
func ScoreCoherence(_ context.Context, req *domain.EvaluationRequest) (evaluator.Response, error) {
	text := strings.TrimSpace(req.Content)
	if text == "" {
		return evaluator.Response{Metric: 0, Detail: "empty narrative"}, nil
	}

	score := 3.0

	words := strings.Fields(text)
	switch {
	case len(words) >= 100 && len(words) <= 1000:
		score += 0.5
	case len(words) > 1000:
		score += 0.3
	}

	var lengths []int
	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			lengths = append(lengths, len(strings.Fields(s)))
		}
	}
	if len(lengths) > 1 {
		minLen, maxLen := lengths[0], lengths[0]
		for _, l := range lengths[1:] {
			if l < minLen {
				minLen = l
			}
			if l > maxLen {
				maxLen = l
			}
		}
		switch spread := maxLen - minLen; {
		case spread > 10:
			score += 0.5
		case spread > 5:
			score += 0.3
		}
	}

	paragraphs := 0
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}
	if paragraphs >= 2 {
		score += 0.4
	}

	if score > 5.0 {
		score = 5.0
	}
	return evaluator.Response{
		Metric: score,
		Detail: "coherence from length, sentence variety, and paragraph structure",
	}, nil
}

// knownLandmarkYears maps landmark phrases to the year range considered
// accurate for them (construction start through opening).
var knownLandmarkYears = map[string][2]int{
	"sydney opera house": {1959, 1973},
	"eiffel tower":       {1887, 1889},
}

// ScoreFactuality rates factual accuracy on a 0-3 scale. Dates attributed
// to known landmarks outside their accurate range count as critical
// inaccuracies and push the index below the veto threshold.
func ScoreFactuality(_ context.Context, req *domain.EvaluationRequest) (evaluator.Response, error) {
	lower := strings.ToLower(req.Content)
	score := 2.0
	var issues []string

	years := yearPattern.FindAllString(req.Content, -1)
	for landmark, span := range knownLandmarkYears {
		if !strings.Contains(lower, landmark) {
			continue
		}
		for _, ys := range years {
			y, err := strconv.Atoi(ys)
			if err != nil {
				continue
			}
			if y < span[0] || y > span[1] {
				score -= 1.0
				issues = append(issues, landmark+" date "+ys+" outside "+
					strconv.Itoa(span[0])+"-"+strconv.Itoa(span[1]))
			}
		}
	}

	if len(years) > 0 {
		score += 0.2
	}
	if score < 0 {
		score = 0
	}
	if score > 3.0 {
		score = 3.0
	}

	detail := "no factual issues detected"
	if len(issues) > 0 {
		detail = strings.Join(issues, "; ")
	}
	return evaluator.Response{Metric: score, Detail: detail}, nil
}

// protectedGroups lists terms monitored for representation parity.
var protectedGroups = map[string][]string{
	"gender":    {"male", "female", "man", "woman", "men", "women", "non-binary"},
	"ethnicity": {"asian", "black", "white", "hispanic", "latino", "indigenous"},
	"religion":  {"christian", "muslim", "jewish", "hindu", "buddhist", "atheist"},
	"age":       {"young", "old", "elderly", "youth", "senior", "child", "adult"},
}

var overgeneralization = regexp.MustCompile(`\b(?:all|every|most)\s+(?:women|men|blacks|whites|asians)\s+(?:are|do|have)\b`)

// ScoreFairness rates representation fairness on a 0-1 scale, deducting
// for biased phrasing and blending in group-mention parity.
func ScoreFairness(_ context.Context, req *domain.EvaluationRequest) (evaluator.Response, error) {
	lower := strings.ToLower(req.Content)
	score := 1.0
	var issues []string

	if matches := overgeneralization.FindAllString(lower, -1); len(matches) > 0 {
		score -= 0.1 * float64(len(matches))
		issues = append(issues, "overgeneralization about a protected group")
	}

	var parities []float64
	for _, terms := range protectedGroups {
		var counts []int
		for _, term := range terms {
			if n := countWord(lower, term); n > 0 {
				counts = append(counts, n)
			}
		}
		if len(counts) > 1 {
			minC, maxC := counts[0], counts[0]
			for _, c := range counts[1:] {
				if c < minC {
					minC = c
				}
				if c > maxC {
					maxC = c
				}
			}
			parities = append(parities, float64(minC)/float64(maxC))
		}
	}
	if len(parities) > 0 {
		sum := 0.0
		for _, p := range parities {
			sum += p
		}
		score = score*0.9 + (sum/float64(len(parities)))*0.1
	}

	if score < 0 {
		score = 0
	}
	if score > 1.0 {
		score = 1.0
	}

	detail := "no fairness issues detected"
	if len(issues) > 0 {
		detail = strings.Join(issues, "; ")
	}
	return evaluator.Response{Metric: score, Detail: detail}, nil
}

// protectedContent flags phrases whose substantial use needs rights-holder
// authorization.
var protectedContent = []string{
	"oral tradition",
	"tribal council",
	"indigenous knowledge",
	"sacred text",
	"copyrighted material",
}

var verbatimIndicators = regexp.MustCompile(`(?i)verbatim|word[- ]for[- ]word|exact(?:ly)?\s+(?:as\s+)?(?:written|quoted)`)

// ScoreLegal assesses legal exposure as a categorical risk level: extended
// quotations and substantial protected content are CRITICAL, verbatim
// reproduction indicators are HIGH, shorter flagged passages are MEDIUM.
func ScoreLegal(_ context.Context, req *domain.EvaluationRequest) (evaluator.Response, error) {
	lower := strings.ToLower(req.Content)
	risk := domain.RiskLow
	var issues []string

	for _, quote := range longQuote.FindAllStringSubmatch(req.Content, -1) {
		if len(strings.Fields(quote[1])) > 100 {
			risk = domain.RiskCritical
			issues = append(issues, "extended quotation exceeds fair-use length")
		}
	}

	for _, phrase := range protectedContent {
		if idx := strings.Index(lower, phrase); idx >= 0 {
			if len(strings.Fields(contextWindow(lower, idx, len(phrase), 100))) > 50 {
				risk = domain.RiskCritical
				issues = append(issues, "substantial use of "+phrase)
			} else if risk == domain.RiskLow {
				risk = domain.RiskMedium
				issues = append(issues, "mentions "+phrase)
			}
		}
	}

	if verbatimIndicators.MatchString(req.Content) && risk != domain.RiskCritical {
		risk = domain.RiskHigh
		issues = append(issues, "verbatim reproduction indicated")
	}

	detail := "no significant legal risks detected"
	if len(issues) > 0 {
		detail = strings.Join(issues, "; ")
	}
	return evaluator.Response{Risk: risk, Detail: detail}, nil
}

// ScoreTransparency rates submission completeness on a 0-1 scale: the
// narrative must be present and carry enough context for the audit trail.
func ScoreTransparency(_ context.Context, req *domain.EvaluationRequest) (evaluator.Response, error) {
	score := 0.0
	if strings.TrimSpace(req.Content) != "" {
		score += 0.7
	}
	if len(req.Metadata) > 0 {
		score += 0.3
	}
	return evaluator.Response{Metric: score, Detail: "completeness of narrative and metadata"}, nil
}

func countWord(text, word string) int {
	count := 0
	for _, f := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '-')
	}) {
		if f == word {
			count++
		}
	}
	return count
}

func contextWindow(text string, idx, length, window int) string {
	start := idx - window
	if start < 0 {
		start = 0
	}
	end := idx + length + window
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}
