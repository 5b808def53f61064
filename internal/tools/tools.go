// Package tools provides the built-in capability set: desktop,
// audio, content, and utility tools registered at engine startup.
package tools

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Knetic/govaluate"

	"github.com/sagedesk/sage"
	"github.com/sagedesk/sage/internal/adapters"
)

// Setup registers every built-in tool into the registry.
func Setup(registry *sage.Registry) error {
	for _, tool := range All() {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// All creates the built-in tool set.
func All() []sage.Tool {
	return []sage.Tool{
		adapters.NewGoToolAdapter("open_app", OpenApp,
			adapters.WithDescription("Open an application by name"),
			adapters.WithParameter("app_name", sage.ParamTypeString, true, nil, "application to open"),
		),
		adapters.NewGoToolAdapter("close_app", CloseApp,
			adapters.WithDescription("Close an application by name"),
			adapters.WithParameter("app_name", sage.ParamTypeString, true, nil, "application to close"),
		),
		adapters.NewGoToolAdapter("set_volume", SetVolume,
			adapters.WithDescription("Set the system volume to an absolute level"),
			adapters.WithParameter("level", sage.ParamTypeNumber, true, nil, "volume level 0-100"),
			adapters.WithValidator(validateVolumeInput),
		),
		adapters.NewGoToolAdapter("adjust_volume", AdjustVolume,
			adapters.WithDescription("Raise or lower the system volume by a delta"),
			adapters.WithParameter("delta", sage.ParamTypeNumber, true, nil, "signed change, e.g. -10"),
		),
		adapters.NewGoToolAdapter("mute", Mute,
			adapters.WithDescription("Mute the system audio"),
		),
		adapters.NewGoToolAdapter("unmute", Unmute,
			adapters.WithDescription("Unmute the system audio"),
		),
		adapters.NewGoToolAdapter("get_time", GetTime,
			adapters.WithDescription("Get the current time"),
		),
		adapters.NewGoToolAdapter("get_date", GetDate,
			adapters.WithDescription("Get today's date"),
		),
		adapters.NewGoToolAdapter("calculate", Calculate,
			adapters.WithDescription("Evaluate a mathematical expression"),
			adapters.WithParameter("expression", sage.ParamTypeString, true, nil, "expression to evaluate, e.g. '12 + 30'"),
			adapters.WithValidator(validateExpressionInput),
		),
		adapters.NewGoToolAdapter("search_web", SearchWeb,
			adapters.WithDescription("Search the web for a query"),
			adapters.WithParameter("query", sage.ParamTypeString, true, nil, "search query"),
		),
		adapters.NewGoToolAdapter("open_url", OpenURL,
			adapters.WithDescription("Open a URL in the default browser"),
			adapters.WithParameter("url", sage.ParamTypeString, true, nil, "address to open"),
		),
		adapters.NewGoToolAdapter("type_text", TypeText,
			adapters.WithDescription("Type text into the focused window"),
			adapters.WithParameter("text", sage.ParamTypeString, true, nil, "text to type"),
		),
		adapters.NewGoToolAdapter("generate_content", GenerateContent,
			adapters.WithDescription("Generate text content from a description"),
			adapters.WithParameter("description", sage.ParamTypeString, true, nil, "what to write"),
		),
		adapters.NewGoToolAdapter("send_message", SendMessage,
			adapters.WithDescription("Send a message to a contact"),
			adapters.WithParameter("contact", sage.ParamTypeString, true, nil, "recipient name"),
			adapters.WithParameter("message", sage.ParamTypeString, true, nil, "message body"),
		),
	}
}

// OpenApp launches an application.
func OpenApp(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	app, err := stringParam(input, "app_name")
	if err != nil {
		return nil, err
	}
	log.Printf("TOOL: Opening application (app: %s)", app)
	return map[string]interface{}{
		"message": fmt.Sprintf("Opened %s", app),
	}, nil
}

// CloseApp closes an application.
func CloseApp(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	app, err := stringParam(input, "app_name")
	if err != nil {
		return nil, err
	}
	log.Printf("TOOL: Closing application (app: %s)", app)
	return map[string]interface{}{
		"message": fmt.Sprintf("Closed %s", app),
	}, nil
}

// SetVolume sets the system volume to an absolute level.
func SetVolume(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	level, err := numberParam(input, "level")
	if err != nil {
		return nil, err
	}
	log.Printf("TOOL: Setting volume (level: %.0f)", level)
	return map[string]interface{}{
		"message": fmt.Sprintf("Volume set to %.0f%%", level),
		"result":  level,
	}, nil
}

// AdjustVolume changes the volume by a signed delta.
func AdjustVolume(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	delta, err := numberParam(input, "delta")
	if err != nil {
		return nil, err
	}
	direction := "up"
	if delta < 0 {
		direction = "down"
	}
	log.Printf("TOOL: Adjusting volume (delta: %.0f)", delta)
	return map[string]interface{}{
		"message": fmt.Sprintf("Volume %s by %.0f%%", direction, abs(delta)),
		"result":  delta,
	}, nil
}

// Mute silences the system audio.
func Mute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	log.Printf("TOOL: Muting audio")
	return map[string]interface{}{"message": "Audio muted"}, nil
}

// Unmute restores the system audio.
func Unmute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	log.Printf("TOOL: Unmuting audio")
	return map[string]interface{}{"message": "Audio unmuted"}, nil
}

// GetTime reports the current time.
func GetTime(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	now := time.Now()
	return map[string]interface{}{
		"message": fmt.Sprintf("It is %s", now.Format("3:04 PM")),
		"result":  now.Format("15:04"),
	}, nil
}

// GetDate reports today's date.
func GetDate(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	now := time.Now()
	return map[string]interface{}{
		"message": fmt.Sprintf("Today is %s", now.Format("Monday, January 2, 2006")),
		"result":  now.Format("2006-01-02"),
	}, nil
}

// Calculate evaluates a mathematical expression.
func Calculate(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	exprStr, err := stringParam(input, "expression")
	if err != nil {
		return nil, err
	}
	log.Printf("TOOL: Calculating (expression: %s)", exprStr)

	expr, err := govaluate.NewEvaluableExpression(exprStr)
	if err != nil {
		return nil, fmt.Errorf("invalid expression '%s': %w", exprStr, err)
	}
	value, err := expr.Evaluate(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate '%s': %w", exprStr, err)
	}

	return map[string]interface{}{
		"message": fmt.Sprintf("%s = %v", exprStr, value),
		"result":  value,
	}, nil
}

// SearchWeb performs a web search.
func SearchWeb(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	query, err := stringParam(input, "query")
	if err != nil {
		return nil, err
	}
	log.Printf("TOOL: Searching the web (query: %s)", query)
	return map[string]interface{}{
		"message": fmt.Sprintf("Searched the web for '%s'", query),
		"content": fmt.Sprintf("Top results for: %s", query),
	}, nil
}

// OpenURL opens an address in the default browser.
func OpenURL(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	url, err := stringParam(input, "url")
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	log.Printf("TOOL: Opening URL (url: %s)", url)
	return map[string]interface{}{
		"message": fmt.Sprintf("Opened %s", url),
	}, nil
}

// TypeText types text into the focused window.
func TypeText(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	text, err := stringParam(input, "text")
	if err != nil {
		return nil, err
	}
	log.Printf("TOOL: Typing text (chars: %d)", len(text))
	return map[string]interface{}{
		"message": fmt.Sprintf("Typed %d characters", len(text)),
	}, nil
}

// GenerateContent produces text content from a description. The
// content key lets a later step pick the text up via step memory.
func GenerateContent(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	description, err := stringParam(input, "description")
	if err != nil {
		return nil, err
	}
	log.Printf("TOOL: Generating content (description: %s)", description)
	content := fmt.Sprintf("Here is the requested text for: %s", description)
	return map[string]interface{}{
		"message": "Content generated",
		"content": content,
	}, nil
}

// SendMessage sends a message to a contact.
func SendMessage(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	contact, err := stringParam(input, "contact")
	if err != nil {
		return nil, err
	}
	message, err := stringParam(input, "message")
	if err != nil {
		return nil, err
	}
	log.Printf("TOOL: Sending message (contact: %s, chars: %d)", contact, len(message))
	return map[string]interface{}{
		"message": fmt.Sprintf("Message sent to %s", contact),
	}, nil
}

func stringParam(input map[string]interface{}, key string) (string, error) {
	raw, ok := input[key]
	if !ok {
		return "", fmt.Errorf("missing parameter '%s'", key)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("parameter '%s' must be a string, got %T", key, raw)
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("parameter '%s' cannot be empty", key)
	}
	return value, nil
}

func numberParam(input map[string]interface{}, key string) (float64, error) {
	raw, ok := input[key]
	if !ok {
		return 0, fmt.Errorf("missing parameter '%s'", key)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("parameter '%s' must be a number, got %T", key, raw)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func validateVolumeInput(input map[string]interface{}) error {
	level, err := numberParam(input, "level")
	if err != nil {
		return err
	}
	if level < 0 || level > 100 {
		return fmt.Errorf("volume level must be between 0 and 100, got %.0f", level)
	}
	return nil
}

func validateExpressionInput(input map[string]interface{}) error {
	expr, err := stringParam(input, "expression")
	if err != nil {
		return err
	}
	if len(expr) > 100 {
		return fmt.Errorf("expression too long (max 100 characters)")
	}
	return nil
}
