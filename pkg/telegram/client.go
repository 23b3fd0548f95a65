// Package telegram wraps the Bot API surface the workflow needs: outbound
// sends, proof-image download, webhook registration. Calls go through one
// request path with centralized error mapping and logging.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/fxmediacalicut-cloud/telegrambot/internal/chat"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/config"
	pkgerrors "github.com/fxmediacalicut-cloud/telegrambot/pkg/errors"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/logger"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	defaultTimeout = 30 * time.Second
)

// Client talks to the Bot API. It satisfies both sending interfaces the
// workflow core depends on.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *logger.Logger
}

var (
	_ chat.Sender      = (*Client)(nil)
	_ chat.FileFetcher = (*Client)(nil)
)

// Option overrides client defaults.
type Option func(*Client)

// WithBaseURL points the client at a different API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient validates the token and builds the API wrapper.
func NewClient(ctx context.Context, cfg config.BotConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bot token is required")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		token:      token,
		logger:     logg,
	}
	for _, opt := range opts {
		opt(c)
	}
	if logg != nil {
		logg.Info(ctx, "telegram client initialized")
	}
	return c, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// replyMarkup is the inline-keyboard envelope for outbound buttons.
type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

func markupFor(rows [][]chat.Button) *replyMarkup {
	if len(rows) == 0 {
		return nil
	}
	keyboard := make([][]inlineButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]inlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, inlineButton{Text: b.Label, CallbackData: b.Data})
		}
		keyboard = append(keyboard, buttons)
	}
	return &replyMarkup{InlineKeyboard: keyboard}
}

// SendMessage delivers plain text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.sendText(ctx, chatID, text, nil)
}

// SendMessageWithButtons delivers text with an inline keyboard attached.
func (c *Client) SendMessageWithButtons(ctx context.Context, chatID int64, text string, rows [][]chat.Button) error {
	return c.sendText(ctx, chatID, text, markupFor(rows))
}

func (c *Client) sendText(ctx context.Context, chatID int64, text string, markup *replyMarkup) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	_, err := c.callJSON(ctx, "sendMessage", payload)
	return err
}

// SendPhoto uploads an image with a caption and optional inline keyboard.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo io.Reader, caption string, rows [][]chat.Button) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", fmt.Sprintf("%d", chatID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build sendPhoto form")
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build sendPhoto form")
		}
	}
	if markup := markupFor(rows); markup != nil {
		encoded, err := json.Marshal(markup)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode reply markup")
		}
		if err := writer.WriteField("reply_markup", string(encoded)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build sendPhoto form")
		}
	}
	part, err := writer.CreateFormFile("photo", "photo.jpg")
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build sendPhoto form")
	}
	if _, err := io.Copy(part, photo); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "copy photo content")
	}
	if err := writer.Close(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finalize sendPhoto form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendPhoto"), &body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build sendPhoto request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	_, err = c.do(req, "sendPhoto")
	return err
}

// FetchFile resolves an uploaded file id to its content. Two round trips: the
// getFile lookup for the server-side path, then the download itself.
func (c *Client) FetchFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	result, err := c.callJSON(ctx, "getFile", map[string]any{"file_id": fileID})
	if err != nil {
		return nil, err
	}
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(result, &file); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode getFile response")
	}
	if file.FilePath == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "getFile returned no file path")
	}

	downloadURL := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build file download request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "download file")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("file download returned status %d", resp.StatusCode))
	}
	return resp.Body, nil
}

// SetWebhook registers the public callback URL with the Bot API.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	_, err := c.callJSON(ctx, "setWebhook", map[string]any{"url": url})
	return err
}

// DeleteWebhook unregisters the callback URL.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.callJSON(ctx, "deleteWebhook", map[string]any{})
	return err
}

// AnswerCallbackQuery acknowledges a button press so the client stops showing
// a spinner. Failures are not actionable, callers may ignore them.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	_, err := c.callJSON(ctx, "answerCallbackQuery", map[string]any{"callback_query_id": callbackID})
	return err
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func (c *Client) callJSON(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode "+method+" payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(encoded))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+method+" request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method)
}

func (c *Client) do(req *http.Request, method string) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, method+" request failed")
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+method+" response")
	}
	if !envelope.OK {
		if c.logger != nil {
			c.logger.Warn(req.Context(), fmt.Sprintf("telegram %s rejected: %s", method, envelope.Description))
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("telegram %s failed: %s", method, envelope.Description))
	}
	return envelope.Result, nil
}
