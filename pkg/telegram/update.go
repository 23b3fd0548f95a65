package telegram

import (
	"strings"

	"github.com/fxmediacalicut-cloud/telegrambot/internal/chat"
)

// Update mirrors the Bot API webhook payload, narrowed to the fields the
// workflow reads.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      *Chat       `json:"chat,omitempty"`
	Text      string      `json:"text,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
}

// CallbackQuery is an inline button press.
type CallbackQuery struct {
	ID   string `json:"id"`
	From *User  `json:"from,omitempty"`
	Data string `json:"data,omitempty"`
}

// User identifies the sender.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// Chat identifies the conversation.
type Chat struct {
	ID int64 `json:"id"`
}

// PhotoSize is one rendition of an uploaded photo; the API lists them smallest
// first.
type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ToChatUpdate maps the transport payload onto the internal event shapes.
// It reports false for payloads the workflow has no handler for.
func (u Update) ToChatUpdate() (chat.Update, bool) {
	out := chat.Update{ID: u.UpdateID}

	if cb := u.CallbackQuery; cb != nil && cb.From != nil && cb.Data != "" {
		out.Callback = &chat.Callback{
			UserID:   cb.From.ID,
			Username: cb.From.Username,
			ID:       cb.ID,
			Data:     cb.Data,
		}
		return out, true
	}

	msg := u.Message
	if msg == nil || msg.From == nil {
		return chat.Update{}, false
	}

	if len(msg.Photo) > 0 {
		// Largest rendition is listed last.
		out.Photo = &chat.Photo{
			UserID:   msg.From.ID,
			Username: msg.From.Username,
			FileID:   msg.Photo[len(msg.Photo)-1].FileID,
		}
		return out, true
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return chat.Update{}, false
	}

	if strings.HasPrefix(text, "/") {
		name, args := splitCommand(text)
		if name == "" {
			return chat.Update{}, false
		}
		out.Command = &chat.Command{
			UserID:   msg.From.ID,
			Username: msg.From.Username,
			Name:     name,
			Args:     args,
		}
		return out, true
	}

	out.Text = &chat.Text{
		UserID:   msg.From.ID,
		Username: msg.From.Username,
		Body:     msg.Text,
	}
	return out, true
}

// splitCommand parses "/name@bot args" into a lowercase name and the trailing
// args. The @bot suffix appears in group chats.
func splitCommand(text string) (name, args string) {
	body := strings.TrimPrefix(text, "/")
	if i := strings.IndexAny(body, " \n\t"); i >= 0 {
		body, args = body[:i], strings.TrimSpace(body[i+1:])
	}
	if i := strings.Index(body, "@"); i >= 0 {
		body = body[:i]
	}
	return strings.ToLower(body), args
}
