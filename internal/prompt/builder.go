package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sagedesk/sage"
)

// PlannerSystemText is the fixed part of the planning prompt: the JSON
// contract the model must honor plus a few worked examples.
const PlannerSystemText = `You are SAGE, a desktop assistant. Analyze the user request and decide which tools to call.

Available tools:
%s

Respond with JSON only in this exact format:
{
    "thinking": "brief reasoning about what the user wants",
    "tool_calls": [
        {"tool": "tool_name", "params": {"param1": "value1", "param2": "value2"}}
    ],
    "response": "optional message to user if no tools needed or additional context",
    "needs_automation": false
}

Rules:
1. If multiple tools are needed, include them all in tool_calls array
2. Use exact tool names from the list above
3. For GENERAL QUESTIONS (what is, explain, tell me about), provide direct answer in "response" field, do NOT use search_web
4. Only use search_web if user explicitly asks to "search" or "look up" something
5. If no tool matches but task could be automated with mouse/keyboard, set "needs_automation": true
6. Always include "thinking" field with your reasoning
7. To pass the output of one step into the next, use $CONTENT_FROM_PREVIOUS_STEP as the parameter value

Examples:
User: "open chrome and set volume to 50"
{
    "thinking": "User wants to open Chrome browser and adjust system volume to 50%%",
    "tool_calls": [
        {"tool": "open_app", "params": {"app_name": "chrome"}},
        {"tool": "set_volume", "params": {"level": 50}}
    ],
    "response": "",
    "needs_automation": false
}

User: "write a poem and type it in notepad"
{
    "thinking": "User wants content generated, notepad opened, then the content typed",
    "tool_calls": [
        {"tool": "generate_content", "params": {"description": "a short poem"}},
        {"tool": "open_app", "params": {"app_name": "notepad"}},
        {"tool": "type_text", "params": {"text": "$CONTENT_FROM_PREVIOUS_STEP"}}
    ],
    "response": "",
    "needs_automation": false
}

User: "what is quantum computing"
{
    "thinking": "General knowledge question, answer directly",
    "tool_calls": [],
    "response": "Quantum computing uses quantum bits that can exist in superposition, letting certain computations run far faster than on classical machines.",
    "needs_automation": false
}

User: "drag the file icon to the trash"
{
    "thinking": "No registered tool drags icons, but this is mouse automation",
    "tool_calls": [],
    "response": "",
    "needs_automation": true
}`

// CodegenSystemText instructs the code model to emit bare Python.
const CodegenSystemText = `You are an EXPERT Python automation engineer. Generate ONLY Python code, NO explanations, NO thinking, NO markdown.

CRITICAL RULES:
1. Output ONLY Python code - no text before or after
2. NO <think> tags or reasoning - just code
3. Use PyAutoGUI for automation
4. Include proper error handling
5. Return dict with 'success' and 'message' keys

OUTPUT ONLY CODE - NO EXPLANATIONS`

// FormatCatalog renders tool descriptors as the one-line-per-tool list
// the planning prompt embeds. Output is sorted by tool name so the
// prompt text is stable for caching.
func FormatCatalog(catalog []sage.ToolDescriptor) string {
	sorted := make([]sage.ToolDescriptor, len(catalog))
	copy(sorted, catalog)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	lines := make([]string, 0, len(sorted))
	for _, desc := range sorted {
		params := "no parameters"
		if len(desc.Parameters) > 0 {
			names := make([]string, 0, len(desc.Parameters))
			for name := range desc.Parameters {
				names = append(names, name)
			}
			sort.Strings(names)
			params = strings.Join(names, ", ")
		}
		lines = append(lines, fmt.Sprintf("- %s: %s | params: %s", desc.Name, desc.Description, params))
	}
	return strings.Join(lines, "\n")
}

// BuildPlannerPrompt renders the full planning prompt for one request.
func BuildPlannerPrompt(utterance string, catalog []sage.ToolDescriptor) string {
	system := fmt.Sprintf(PlannerSystemText, FormatCatalog(catalog))
	return system + "\n\nUser: \"" + utterance + "\""
}

// BuildCodegenPrompt renders the code-generation prompt for one task.
func BuildCodegenPrompt(task, name string) string {
	return fmt.Sprintf(`%s

Task: %s
Function name: %s

Generate Python code using this exact template:

import pyautogui
import time

pyautogui.FAILSAFE = True
pyautogui.PAUSE = 0.3

def %s(**kwargs):
    try:
        # Your automation code here

        return {
            'success': True,
            'message': 'Task completed successfully'
        }
    except Exception as e:
        return {
            'success': False,
            'message': f'Automation failed: {e}'
        }
`, CodegenSystemText, task, name, name)
}
