package answer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/legalmitra/mitra-bot/internal/models"
)

const UnknownAct = "Unknown Act"

// rawResult is the Answer Service response body. Steps and sources stay
// untyped since their field names and value types vary between backends.
type rawResult struct {
	Answer           string           `json:"answer"`
	SimplifiedAnswer string           `json:"simplified_answer"`
	ActionSteps      []map[string]any `json:"action_steps"`
	Sources          []map[string]any `json:"sources"`
}

func decodeResult(body []byte) (*models.QueryResult, error) {
	var raw rawResult
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode answer: %w", err)
	}
	return mapResult(raw), nil
}

func mapResult(raw rawResult) *models.QueryResult {
	sources := make([]models.Source, 0, len(raw.Sources))
	for _, fields := range raw.Sources {
		sources = append(sources, models.Source{
			Title:   resolveField(fields, UnknownAct, "act_name", "title"),
			Section: resolveField(fields, "", "section_number", "section"),
			Fields:  fields,
		})
	}

	steps := make([]models.ActionStep, 0, len(raw.ActionSteps))
	for i, fields := range raw.ActionSteps {
		description, _ := truthyString(fields["description"])
		steps = append(steps, models.ActionStep{
			StepNumber:  stepNumber(fields["step_number"], i+1),
			Description: description,
		})
	}

	return &models.QueryResult{
		Answer:           raw.Answer,
		SimplifiedAnswer: raw.SimplifiedAnswer,
		ActionSteps:      steps,
		Sources:          sources,
	}
}

// resolveField returns the first truthy value among keys, in order, or
// fallback. Missing keys, null, "", 0 and false all fall through.
func resolveField(fields map[string]any, fallback string, keys ...string) string {
	for _, key := range keys {
		if value, ok := truthyString(fields[key]); ok {
			return value
		}
	}
	return fallback
}

func truthyString(v any) (string, bool) {
	switch value := v.(type) {
	case nil:
		return "", false
	case string:
		return value, value != ""
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), value != 0
	case bool:
		return strconv.FormatBool(value), value
	default:
		// Objects and arrays are truthy.
		return fmt.Sprint(value), true
	}
}

// stepNumber reads a step number sent as a number or a numeric string.
// Anything else falls back to the step's position.
func stepNumber(v any, position int) int {
	switch value := v.(type) {
	case float64:
		if value >= 1 {
			return int(value)
		}
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && n >= 1 {
			return int(n)
		}
	}
	return position
}
