package codegen

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

var (
	nonNameChars = regexp.MustCompile(`[^a-z0-9\s]`)
	spaceRuns    = regexp.MustCompile(`\s+`)
	fenceOpenRe  = regexp.MustCompile("(?m)^```[a-zA-Z0-9]*\\s*$")
)

// DeriveToolName turns a task description into a snake_case tool name:
// lowercase, punctuation stripped, whitespace collapsed to underscores,
// capped at 30 characters, prefixed when it would start with a digit.
func DeriveToolName(task string) string {
	name := strings.ToLower(task)
	name = nonNameChars.ReplaceAllString(name, "")
	name = spaceRuns.ReplaceAllString(strings.TrimSpace(name), "_")

	if name != "" && unicode.IsDigit(rune(name[0])) {
		name = "auto_" + name
	}
	if len(name) > 30 {
		name = name[:30]
	}
	name = strings.Trim(name, "_")
	if name == "" {
		name = fmt.Sprintf("generated_tool_%d", time.Now().Unix())
	}
	return name
}

// StripFences removes markdown code fences the model tends to wrap
// source in, leaving the bare script text.
func StripFences(source string) string {
	stripped := fenceOpenRe.ReplaceAllString(source, "")
	return strings.TrimSpace(stripped)
}
