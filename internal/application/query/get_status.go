// Package query contains read operations outside analytics (CQRS - Queries).
package query

import (
	"context"

	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STATUS QUERY
// Возвращает количество записей каждого вида в хранилище.
// ══════════════════════════════════════════════════════════════════════════════

// StatusDTO - состояние хранилища.
type StatusDTO struct {
	store.Totals

	// AdminHandle - логин защищённого администратора (пусто, если его нет).
	AdminHandle string `json:"admin_handle,omitempty"`
}

// GetStatusHandler обрабатывает запрос состояния.
type GetStatusHandler struct {
	store store.Store
}

// NewGetStatusHandler создаёт новый GetStatusHandler.
func NewGetStatusHandler(st store.Store) *GetStatusHandler {
	return &GetStatusHandler{store: st}
}

// Handle выполняет запрос в одном согласованном снимке.
func (h *GetStatusHandler) Handle(ctx context.Context) (*StatusDTO, error) {
	dto := &StatusDTO{}
	err := h.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		totals, err := store.CountAll(ctx, tx)
		if err != nil {
			return err
		}
		dto.Totals = totals

		admin, err := tx.Roster().ProtectedAdmin(ctx)
		switch {
		case err == nil:
			dto.AdminHandle = admin.Handle
		case !shared.IsNotFound(err):
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}
