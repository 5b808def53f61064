// Package fallback implements the deterministic rule interpreter used
// when no planner is reachable. Matching is a pure function of the
// utterance: same text in, same tool call out, with no model in the
// loop.
package fallback

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sagedesk/sage"
)

// Rule pairs a name with a deterministic extractor. Extract returns
// the tool call to run and whether the rule applies; rules are tried
// strictly in table order and the first match wins.
type Rule struct {
	Name    string
	Extract func(utterance string) (sage.ToolCall, bool)
}

var (
	volumeRe    = regexp.MustCompile(`\b(\d{1,3})\b`)
	calculateRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(\+|-|\*|/|x|plus|minus|times|divided by)\s*(\d+(?:\.\d+)?)`)
	searchRe    = regexp.MustCompile(`^(?:search for|look up|google)\s+(.+)$`)
	typeRe      = regexp.MustCompile(`^type\s+(.+)$`)
)

// knownApps are the application names the open-app rule recognizes.
var knownApps = []string{
	"chrome", "firefox", "edge", "notepad", "calculator",
	"spotify", "word", "excel", "terminal", "explorer",
}

// DefaultRules returns the built-in rule table in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "open_app", Extract: extractOpenApp},
		{Name: "set_volume", Extract: extractSetVolume},
		{Name: "unmute", Extract: extractUnmute},
		{Name: "mute", Extract: extractMute},
		{Name: "get_time", Extract: extractTime},
		{Name: "get_date", Extract: extractDate},
		{Name: "calculate", Extract: extractCalculate},
		{Name: "search_web", Extract: extractSearch},
		{Name: "type_text", Extract: extractType},
	}
}

func extractOpenApp(utterance string) (sage.ToolCall, bool) {
	if !strings.Contains(utterance, "open ") &&
		!strings.Contains(utterance, "launch ") &&
		!strings.Contains(utterance, "start ") {
		return sage.ToolCall{}, false
	}
	for _, app := range knownApps {
		if strings.Contains(utterance, app) {
			return sage.ToolCall{
				Tool:   "open_app",
				Params: map[string]interface{}{"app_name": app},
			}, true
		}
	}
	return sage.ToolCall{}, false
}

func extractSetVolume(utterance string) (sage.ToolCall, bool) {
	if !strings.Contains(utterance, "volume") {
		return sage.ToolCall{}, false
	}
	// First integer in range wins.
	for _, m := range volumeRe.FindAllString(utterance, -1) {
		level, err := strconv.Atoi(m)
		if err == nil && level >= 0 && level <= 100 {
			return sage.ToolCall{
				Tool:   "set_volume",
				Params: map[string]interface{}{"level": float64(level)},
			}, true
		}
	}
	return sage.ToolCall{}, false
}

func extractUnmute(utterance string) (sage.ToolCall, bool) {
	if strings.Contains(utterance, "unmute") {
		return sage.ToolCall{Tool: "unmute", Params: map[string]interface{}{}}, true
	}
	return sage.ToolCall{}, false
}

func extractMute(utterance string) (sage.ToolCall, bool) {
	if strings.Contains(utterance, "mute") || strings.Contains(utterance, "silence") {
		return sage.ToolCall{Tool: "mute", Params: map[string]interface{}{}}, true
	}
	return sage.ToolCall{}, false
}

func extractTime(utterance string) (sage.ToolCall, bool) {
	if strings.Contains(utterance, "time") || strings.Contains(utterance, "clock") {
		return sage.ToolCall{Tool: "get_time", Params: map[string]interface{}{}}, true
	}
	return sage.ToolCall{}, false
}

func extractDate(utterance string) (sage.ToolCall, bool) {
	if strings.Contains(utterance, "date") || strings.Contains(utterance, "today") {
		return sage.ToolCall{Tool: "get_date", Params: map[string]interface{}{}}, true
	}
	return sage.ToolCall{}, false
}

var wordOperators = map[string]string{
	"plus": "+", "minus": "-", "times": "*", "x": "*", "divided by": "/",
}

func extractCalculate(utterance string) (sage.ToolCall, bool) {
	m := calculateRe.FindStringSubmatch(utterance)
	if m == nil {
		return sage.ToolCall{}, false
	}
	op := m[2]
	if sym, ok := wordOperators[op]; ok {
		op = sym
	}
	expr := fmt.Sprintf("%s %s %s", m[1], op, m[3])
	return sage.ToolCall{
		Tool:   "calculate",
		Params: map[string]interface{}{"expression": expr},
	}, true
}

func extractSearch(utterance string) (sage.ToolCall, bool) {
	m := searchRe.FindStringSubmatch(utterance)
	if m == nil {
		return sage.ToolCall{}, false
	}
	return sage.ToolCall{
		Tool:   "search_web",
		Params: map[string]interface{}{"query": strings.TrimSpace(m[1])},
	}, true
}

func extractType(utterance string) (sage.ToolCall, bool) {
	m := typeRe.FindStringSubmatch(utterance)
	if m == nil {
		return sage.ToolCall{}, false
	}
	return sage.ToolCall{
		Tool:   "type_text",
		Params: map[string]interface{}{"text": strings.TrimSpace(m[1])},
	}, true
}
