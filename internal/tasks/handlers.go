package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/orgauth/internal/database/models"
	"github.com/hugh/orgauth/internal/store"
)

type Handler struct {
	store  *store.Store
	logger *slog.Logger
}

func NewHandler(st *store.Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  st,
		logger: logger,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeTouchLogin, h.HandleTouchLogin)
	mux.HandleFunc(TypeRecordDenial, h.HandleRecordDenial)
}

func (h *Handler) HandleTouchLogin(ctx context.Context, t *asynq.Task) error {
	var payload TouchLoginPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	err := h.store.TouchLastLogin(ctx, payload.UserID, payload.At)
	if errors.Is(err, store.ErrNotFound) {
		h.logger.Warn("last login for unknown user", "user_id", payload.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}

	h.logger.Debug("last login updated", "user_id", payload.UserID)
	return nil
}

func (h *Handler) HandleRecordDenial(ctx context.Context, t *asynq.Task) error {
	var payload RecordDenialPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	event := &models.AuthEvent{
		UserID:         payload.UserID,
		OrganizationID: payload.OrganizationID,
		Permission:     payload.Permission,
		Outcome:        payload.Outcome,
		OccurredAt:     payload.OccurredAt,
	}
	if err := h.store.RecordAuthEvent(ctx, event); err != nil {
		return fmt.Errorf("record auth event: %w", err)
	}

	h.logger.Info("authorization denial recorded",
		"user_id", payload.UserID,
		"org_id", payload.OrganizationID,
		"permission", payload.Permission,
		"outcome", payload.Outcome,
	)
	return nil
}
