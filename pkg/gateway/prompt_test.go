package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePromptDirective(t *testing.T) {
	tests := []struct {
		name string
		text string
		want promptDirective
	}{
		{
			name: "plain text",
			text: "hello there",
			want: promptDirective{command: promptNone, text: "hello there"},
		},
		{
			name: "bare stop",
			text: "/stop",
			want: promptDirective{command: promptStop, text: ""},
		},
		{
			name: "trailing stop",
			text: "thanks for everything /stop",
			want: promptDirective{command: promptStop, text: "thanks for everything"},
		},
		{
			name: "trailing stop with whitespace",
			text: "thanks\n/stop\n",
			want: promptDirective{command: promptStop, text: "thanks"},
		},
		{
			name: "stop mid-text is not a command",
			text: "please /stop doing that",
			want: promptDirective{command: promptNone, text: "please /stop doing that"},
		},
		{
			name: "model override",
			text: "summarize this /model nemotron-large",
			want: promptDirective{command: promptModel, model: "nemotron-large", text: "summarize this"},
		},
		{
			name: "bare model override",
			text: "/model smollm-small",
			want: promptDirective{command: promptModel, model: "smollm-small", text: ""},
		},
		{
			name: "model without name is not a command",
			text: "which /model ",
			want: promptDirective{command: promptNone, text: "which /model "},
		},
		{
			name: "model with trailing words is not a command",
			text: "/model one two",
			want: promptDirective{command: promptNone, text: "/model one two"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parsePromptDirective(tt.text))
		})
	}
}

func TestLastUserMessageText(t *testing.T) {
	messages := []any{
		map[string]any{"role": "system", "content": "be nice"},
		map[string]any{"role": "user", "content": "first"},
		map[string]any{"role": "assistant", "content": "sure"},
		map[string]any{"role": "user", "content": "second"},
	}
	text, idx := lastUserMessageText(messages)
	assert.Equal(t, "second", text)
	assert.Equal(t, 3, idx)
}

func TestLastUserMessageTextSkipsStructuredContent(t *testing.T) {
	messages := []any{
		map[string]any{"role": "user", "content": []any{map[string]any{"type": "text", "text": "hi"}}},
	}
	_, idx := lastUserMessageText(messages)
	assert.Equal(t, -1, idx)
}

func TestLastUserMessageTextNoUser(t *testing.T) {
	messages := []any{
		map[string]any{"role": "system", "content": "be nice"},
	}
	_, idx := lastUserMessageText(messages)
	assert.Equal(t, -1, idx)
}
