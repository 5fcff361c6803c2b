package format

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

func TestUTF16Len(t *testing.T) {
	assert.Equal(t, 5, UTF16Len("hello"))
	assert.Equal(t, 3, UTF16Len("åäö"))
	assert.Equal(t, 1, UTF16Len("⏰"))
	assert.Equal(t, 2, UTF16Len("🔄"))
}

func TestParseMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		text     string
		entities []tgbotapi.MessageEntity
	}{
		{
			name: "bold",
			in:   "Pay **Telia** now",
			text: "Pay Telia now",
			entities: []tgbotapi.MessageEntity{
				{Type: "bold", Offset: 4, Length: 5},
			},
		},
		{
			name: "header becomes bold",
			in:   "# Bills\nrent",
			text: "Bills\nrent",
			entities: []tgbotapi.MessageEntity{
				{Type: "bold", Offset: 0, Length: 5},
			},
		},
		{
			name: "code shifts later bold",
			in:   "`123` **Rent**",
			text: "123 Rent",
			entities: []tgbotapi.MessageEntity{
				{Type: "code", Offset: 0, Length: 3},
				{Type: "bold", Offset: 4, Length: 4},
			},
		},
		{
			name: "bold shifts earlier-found code",
			in:   "**A** `x`",
			text: "A x",
			entities: []tgbotapi.MessageEntity{
				{Type: "bold", Offset: 0, Length: 1},
				{Type: "code", Offset: 2, Length: 1},
			},
		},
		{
			name: "italic and strike",
			in:   "*soon* ~~paid~~",
			text: "soon paid",
			entities: []tgbotapi.MessageEntity{
				{Type: "italic", Offset: 0, Length: 4},
				{Type: "strikethrough", Offset: 5, Length: 4},
			},
		},
		{
			name: "underscore inside words is text",
			in:   "file_name_v2.pdf",
			text: "file_name_v2.pdf",
		},
		{
			name: "markers inside code are kept",
			in:   "`a*b*c`",
			text: "a*b*c",
			entities: []tgbotapi.MessageEntity{
				{Type: "code", Offset: 0, Length: 5},
			},
		},
		{
			name: "astral emoji counts as two units",
			in:   "🔄 **Rent**",
			text: "🔄 Rent",
			entities: []tgbotapi.MessageEntity{
				{Type: "bold", Offset: 3, Length: 4},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMarkdown(tt.in)
			assert.Equal(t, tt.text, got.Text)
			if len(tt.entities) == 0 {
				assert.Empty(t, got.Entities)
				return
			}
			assert.Equal(t, tt.entities, got.Entities)
		})
	}
}
