// internal/handler/cardholder_handler.go
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/infinite-gateway/internal/controller"
	"github.com/unclebandit/infinite-gateway/internal/model"
	"github.com/unclebandit/infinite-gateway/internal/repository"
)

// CardholderHandler serves read-only lookups against the core banking database.
type CardholderHandler struct {
	Repo repository.CardholderRepositoryInterface
	Log  *zap.Logger
}

func NewCardholderHandler(repo repository.CardholderRepositoryInterface, log *zap.Logger) *CardholderHandler {
	return &CardholderHandler{Repo: repo, Log: log}
}

// Routes mounts the lookups under the caller's prefix.
func (h *CardholderHandler) Routes(r chi.Router) {
	r.Get("/card/{pan}", h.lookup("pan", h.Repo.ByCardNumber))
	r.Get("/card-id/{id}", h.lookup("id", h.Repo.ByCardID))
	r.Get("/account/{code}", h.lookup("code", h.Repo.ByAccountCode))
	r.Get("/client/{code}", h.lookup("code", h.Repo.ByClientCode))
}

func (h *CardholderHandler) lookup(param string, find func(context.Context, string) (*model.Cardholder, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value := strings.TrimSpace(chi.URLParam(r, param))
		if value == "" {
			controller.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": param + " is required"})
			return
		}
		ch, err := find(r.Context(), value)
		if err != nil {
			controller.WriteError(w, h.Log, err)
			return
		}
		controller.WriteJSON(w, http.StatusOK, ch)
	}
}
