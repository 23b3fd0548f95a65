package controllers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fxmediacalicut-cloud/telegrambot/api/responses"
	"github.com/fxmediacalicut-cloud/telegrambot/internal/chat"
	pkgerrors "github.com/fxmediacalicut-cloud/telegrambot/pkg/errors"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/logger"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/metrics"
	pkgredis "github.com/fxmediacalicut-cloud/telegrambot/pkg/redis"
	"github.com/fxmediacalicut-cloud/telegrambot/pkg/telegram"
)

// Webhook senders redeliver aggressively on non-2xx, so every decoded request
// is acked even when the payload is dropped; only an unknown path token 404s.
const dedupTTL = 24 * time.Hour

// UpdateSink receives decoded updates for asynchronous processing.
type UpdateSink interface {
	Enqueue(chat.Update) bool
}

// TelegramWebhook ingests Bot API updates. The URL carries the bot token as a
// shared secret; updates are deduplicated by id before they reach the worker.
func TelegramWebhook(botToken string, dedup pkgredis.DedupStore, sink UpdateSink, m *metrics.TransactionMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := chi.URLParam(r, "token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(botToken)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "not found"))
			return
		}

		var update telegram.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			if logg != nil {
				logg.Warn(ctx, "failed to decode webhook payload")
			}
			responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			return
		}
		if logg != nil {
			ctx = logg.WithUpdateID(ctx, update.UpdateID)
		}

		if dedup != nil {
			fresh, err := dedup.SetNX(ctx, dedup.UpdateKey(update.UpdateID), 1, dedupTTL)
			if err != nil {
				// Fail open: a dead dedup store must not stall the workflow.
				if logg != nil {
					logg.Error(ctx, "update dedup check failed", err)
				}
			} else if !fresh {
				m.IncUpdate("duplicate")
				responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
				return
			}
		}

		event, ok := update.ToChatUpdate()
		if !ok {
			responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			return
		}

		if !sink.Enqueue(event) {
			if logg != nil {
				logg.Warn(ctx, "update queue saturated, dropping update")
			}
			responses.WriteSuccess(w, map[string]string{"status": "dropped"})
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "accepted"})
	}
}
