package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/milletlink/milletlink-backend/api/responses"
	"github.com/milletlink/milletlink-backend/pkg/db/models"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/logger"
)

type chatHistory interface {
	History(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error)
}

// ChatHistory returns the recent durable log of a room, oldest first.
func ChatHistory(svc chatHistory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		if roomID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "room id is required"))
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > 200 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be between 1 and 200"))
				return
			}
			limit = parsed
		}

		messages, err := svc.History(r.Context(), roomID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]map[string]any, 0, len(messages))
		for _, message := range messages {
			out = append(out, map[string]any{
				"roomId": message.RoomID,
				"fromId": message.SenderID.String(),
				"text":   message.Body,
				"time":   message.SentAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}
