package types

import (
	"encoding/json"
	"strings"
	"time"
)

// NormalizeBatch converts a raw inbound result payload into a canonical
// ResultBatch. The backend has grown several field spellings over time
// (label/name, expression/emotion/top.label), so all of them are accepted
// here, once, instead of scattering fallback chains across the pipeline.
// Malformed fields are coerced rather than rejected: a missing results
// list becomes empty, a missing bbox becomes [0,0,0,0] and is later
// dropped by the coordinate mapper's minimum-size clamp.
func NormalizeBatch(payload map[string]any, now time.Time) ResultBatch {
	batch := ResultBatch{Timestamp: now}

	rawResults, _ := payload["results"].([]any)
	if len(rawResults) > 0 {
		batch.Results = make([]DetectionResult, 0, len(rawResults))
	}
	for _, item := range rawResults {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		batch.Results = append(batch.Results, normalizeDetection(entry))
	}

	if rawMarked, ok := payload["marked"].([]any); ok {
		for _, item := range rawMarked {
			if s, ok := item.(string); ok && s != "" {
				batch.Marked = append(batch.Marked, s)
			}
		}
	}

	if rawInfo, ok := payload["marked_info"].([]any); ok {
		for _, item := range rawInfo {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			batch.MarkedInfo = append(batch.MarkedInfo, MarkedEvent{
				Label:   toString(entry["label"]),
				Score:   toFloat(entry["score"]),
				Message: toString(entry["message"]),
			})
		}
	}

	return batch
}

func normalizeDetection(entry map[string]any) DetectionResult {
	det := DetectionResult{
		Box:   toBox(entry["bbox"]),
		Score: toFloat(entry["score"]),
	}

	det.Label = toString(entry["label"])
	if det.Label == "" {
		det.Label = toString(entry["name"])
	}

	det.Expression = toString(entry["expression"])
	if det.Expression == "" {
		det.Expression = toString(entry["emotion"])
	}
	if det.Expression == "" {
		if top, ok := entry["top"].(map[string]any); ok {
			det.Expression = toString(top["label"])
		}
	}

	return det
}

// NormalizeExpression folds an expression label into one of the known
// display categories used for overlay coloring.
func NormalizeExpression(expression string) string {
	switch strings.ToLower(strings.TrimSpace(expression)) {
	case "happy", "happiness", "smile":
		return "happy"
	case "sad", "sadness":
		return "sad"
	case "angry", "anger":
		return "angry"
	case "surprise", "surprised":
		return "surprise"
	case "fear", "fearful", "scared":
		return "fear"
	case "disgust", "disgusted":
		return "disgust"
	case "neutral", "calm", "":
		return "neutral"
	default:
		return "neutral"
	}
}

func toBox(v any) Box {
	list, ok := v.([]any)
	if !ok || len(list) < 4 {
		return Box{}
	}
	return Box{
		X: toFloat(list[0]),
		Y: toFloat(list[1]),
		W: toFloat(list[2]),
		H: toFloat(list[3]),
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}
