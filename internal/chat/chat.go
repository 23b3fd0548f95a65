// Package chat defines the transport boundary: the inbound event shapes the
// core dispatches on and the outbound sending surface it delivers through.
// Transport specifics (webhook decoding, bot API calls) stay outside the core.
package chat

import (
	"context"
	"io"
)

// Update is a single inbound chat event. Exactly one of the shape fields is
// set; the dispatcher keys on which one.
type Update struct {
	// ID is the transport's delivery identifier, used for deduplication.
	ID       int64
	Command  *Command
	Callback *Callback
	Photo    *Photo
	Text     *Text
}

// From returns the sender of the update, whatever its shape.
func (u Update) From() (userID int64, username string) {
	switch {
	case u.Command != nil:
		return u.Command.UserID, u.Command.Username
	case u.Callback != nil:
		return u.Callback.UserID, u.Callback.Username
	case u.Photo != nil:
		return u.Photo.UserID, u.Photo.Username
	case u.Text != nil:
		return u.Text.UserID, u.Text.Username
	}
	return 0, ""
}

// Command is a slash command such as /start.
type Command struct {
	UserID   int64
	Username string
	Name     string
	Args     string
}

// Callback is a button press carrying an opaque string payload.
type Callback struct {
	UserID   int64
	Username string
	ID       string
	Data     string
}

// Photo is an uploaded image; FileID resolves the content through the transport.
type Photo struct {
	UserID   int64
	Username string
	FileID   string
}

// Text is a plain message.
type Text struct {
	UserID   int64
	Username string
	Body     string
}

// Button is an inline control attached to an outbound message. Data round-trips
// back as a Callback payload.
type Button struct {
	Label string
	Data  string
}

// Sender delivers outbound messages. Implementations are best-effort; callers
// treat failures as non-fatal to already-committed state.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendMessageWithButtons(ctx context.Context, chatID int64, text string, rows [][]Button) error
	SendPhoto(ctx context.Context, chatID int64, photo io.Reader, caption string, rows [][]Button) error
}

// FileFetcher resolves an uploaded file's content through the transport.
type FileFetcher interface {
	FetchFile(ctx context.Context, fileID string) (io.ReadCloser, error)
}
