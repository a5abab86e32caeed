package agent

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/convomesh/internal/util"
)

// ParseEvaluation extracts an Evaluation from model output. Evaluator models
// are asked for a JSON object of the form
//
//	{"score": 8, "valid": true, "issues": [], "suggestions": [], "should_retry": false}
//
// but the parse is tolerant: the JSON may be embedded in surrounding prose,
// "valid" defaults to score >= threshold and "should_retry" defaults to the
// negation of valid. Output that contains no score at all evaluates to an
// invalid zero-score retry request.
func ParseEvaluation(text string, threshold float64) Evaluation {
	raw := util.FirstJSONObject(text)
	if raw == "" || !gjson.Valid(raw) {
		return Evaluation{Score: 0, Valid: false, ShouldRetry: true, Issues: []string{"evaluator returned no parseable verdict"}}
	}

	ev := Evaluation{}
	score := gjson.Get(raw, "score")
	if !score.Exists() {
		return Evaluation{Score: 0, Valid: false, ShouldRetry: true, Issues: []string{"evaluator verdict missing score"}}
	}
	ev.Score = score.Float()

	if valid := gjson.Get(raw, "valid"); valid.Exists() {
		ev.Valid = valid.Bool()
	} else {
		ev.Valid = ev.Score >= threshold
	}
	if retry := gjson.Get(raw, "should_retry"); retry.Exists() {
		ev.ShouldRetry = retry.Bool()
	} else {
		ev.ShouldRetry = !ev.Valid
	}
	for _, issue := range gjson.Get(raw, "issues").Array() {
		ev.Issues = append(ev.Issues, issue.String())
	}
	for _, s := range gjson.Get(raw, "suggestions").Array() {
		ev.Suggestions = append(ev.Suggestions, s.String())
	}
	return ev
}

// Feedback renders the previous iteration's evaluation as corrective
// instructions appended to the next generation prompt. Returns "" for a nil
// state.
func Feedback(prev *IterationState) string {
	if prev == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nYour previous draft was rejected. Previous draft:\n")
	sb.WriteString(prev.Output.Text)
	if len(prev.Evaluation.Issues) > 0 {
		sb.WriteString("\nIssues found:\n")
		for _, issue := range prev.Evaluation.Issues {
			sb.WriteString("- " + issue + "\n")
		}
	}
	if len(prev.Evaluation.Suggestions) > 0 {
		sb.WriteString("Apply these corrections:\n")
		for _, s := range prev.Evaluation.Suggestions {
			sb.WriteString("- " + s + "\n")
		}
	}
	return sb.String()
}
