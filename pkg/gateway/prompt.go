package gateway

import (
	"strings"
)

// stoppedResponseText is the reply streamed back after a prompt-level /stop.
const stoppedResponseText = "No llama.cpp-processes running"

// promptCommand is a prompt-level instruction found in the last user message.
type promptCommand uint8

const (
	promptNone promptCommand = iota
	// promptStop stops the backend instead of forwarding the request.
	promptStop
	// promptModel overrides the routing alias for this request.
	promptModel
)

// promptDirective is the result of scanning a user message for commands.
type promptDirective struct {
	command promptCommand
	// model is the routing override for promptModel.
	model string
	// text is the message text with the command stripped.
	text string
}

// parsePromptDirective scans a user message for trailing prompt commands:
// "/stop" at end-of-text, or "/model <name>" at end-of-text. It is a pure
// function; callers apply the returned override and mutation.
func parsePromptDirective(text string) promptDirective {
	trimmed := strings.TrimRight(text, " \t\r\n")

	if trimmed == "/stop" || strings.HasSuffix(trimmed, " /stop") || strings.HasSuffix(trimmed, "\n/stop") {
		return promptDirective{
			command: promptStop,
			text:    strings.TrimRight(strings.TrimSuffix(trimmed, "/stop"), " \t\r\n"),
		}
	}

	if idx := strings.LastIndex(trimmed, "/model "); idx == 0 || (idx > 0 && (trimmed[idx-1] == ' ' || trimmed[idx-1] == '\n')) {
		rest := strings.TrimSpace(trimmed[idx+len("/model "):])
		if rest != "" && !strings.ContainsAny(rest, " \t\r\n") {
			return promptDirective{
				command: promptModel,
				model:   rest,
				text:    strings.TrimRight(trimmed[:idx], " \t\r\n"),
			}
		}
	}

	return promptDirective{command: promptNone, text: text}
}

// lastUserMessageText returns the content of the last user-role message,
// together with its index, when that content is plain text. Structured
// (array) content is left alone.
func lastUserMessageText(messages []any) (string, int) {
	for i := len(messages) - 1; i >= 0; i-- {
		message, ok := messages[i].(map[string]any)
		if !ok {
			continue
		}
		if role, _ := message["role"].(string); role != "user" {
			continue
		}
		if content, ok := message["content"].(string); ok {
			return content, i
		}
		return "", -1
	}
	return "", -1
}
