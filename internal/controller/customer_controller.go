// internal/controller/customer_controller.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/infinite-gateway/internal/errors"
	"github.com/unclebandit/infinite-gateway/internal/model"
	"github.com/unclebandit/infinite-gateway/internal/remote"
)

// HeaderSource supplies the Authorization header for pass-through calls.
type HeaderSource interface {
	AuthorizationHeader(ctx context.Context) (map[string]string, error)
	InvalidateHeader(header map[string]string)
}

// CustomerAPI is the customer side of the remote client.
type CustomerAPI interface {
	AddUsers(ctx context.Context, header map[string]string, users []model.Customer) (json.RawMessage, error)
	UpdateUsers(ctx context.Context, header map[string]string, users []model.Customer) (json.RawMessage, error)
	CloseUsers(ctx context.Context, header map[string]string, users []model.CustomerClose) (json.RawMessage, error)
	ListUsers(ctx context.Context, header map[string]string, params remote.ListParams) (json.RawMessage, error)
}

// SyncRunner runs a reconciliation batch.
type SyncRunner interface {
	Run(ctx context.Context, candidates []model.Customer) (*model.SyncSummary, error)
}

// StatusCounter reports how many stored customers carry each status marker.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[model.SyncStatus]int, error)
}

type CustomerController struct {
	API       CustomerAPI
	Tokens    HeaderSource
	Sync      SyncRunner
	Customers StatusCounter
	Log       *zap.Logger
}

func (c *CustomerController) AddUsers(w http.ResponseWriter, r *http.Request) {
	var users []model.Customer
	if !decodeBody(w, r, &users) {
		return
	}
	c.passThrough(w, r, func(ctx context.Context, header map[string]string) (json.RawMessage, error) {
		return c.API.AddUsers(ctx, header, users)
	})
}

func (c *CustomerController) UpdateUsers(w http.ResponseWriter, r *http.Request) {
	var users []model.Customer
	if !decodeBody(w, r, &users) {
		return
	}
	c.passThrough(w, r, func(ctx context.Context, header map[string]string) (json.RawMessage, error) {
		return c.API.UpdateUsers(ctx, header, users)
	})
}

func (c *CustomerController) CloseUsers(w http.ResponseWriter, r *http.Request) {
	var users []model.CustomerClose
	if !decodeBody(w, r, &users) {
		return
	}
	c.passThrough(w, r, func(ctx context.Context, header map[string]string) (json.RawMessage, error) {
		return c.API.CloseUsers(ctx, header, users)
	})
}

func (c *CustomerController) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := remote.ListParams{
		From:  q.Get("from"),
		ID:    q.Get("id"),
		Limit: q.Get("limit"),
		Phone: q.Get("phone"),
	}
	c.passThrough(w, r, func(ctx context.Context, header map[string]string) (json.RawMessage, error) {
		return c.API.ListUsers(ctx, header, params)
	})
}

// passThrough calls the customer API with the stored header as is. A 401
// marks the token expired so the next renewal replaces it.
func (c *CustomerController) passThrough(w http.ResponseWriter, r *http.Request, call func(context.Context, map[string]string) (json.RawMessage, error)) {
	header, err := c.Tokens.AuthorizationHeader(r.Context())
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	body, err := call(r.Context(), header)
	if err != nil {
		var upstream *appErrors.UpstreamError
		if errors.As(err, &upstream) && upstream.Status == http.StatusUnauthorized {
			c.Tokens.InvalidateHeader(header)
		}
		WriteError(w, c.Log, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// RunSync reconciles the posted candidates. A batch already in progress
// answers 409; an aborted batch answers with its partial summary.
func (c *CustomerController) RunSync(w http.ResponseWriter, r *http.Request) {
	var candidates []model.Customer
	if !decodeBody(w, r, &candidates) {
		return
	}
	summary, err := c.Sync.Run(r.Context(), candidates)
	if err != nil {
		if summary == nil {
			WriteError(w, c.Log, err)
			return
		}
		WriteJSON(w, appErrors.HTTPStatus(err), map[string]any{
			"error":   err.Error(),
			"summary": summary,
		})
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

func (c *CustomerController) SyncStats(w http.ResponseWriter, r *http.Request) {
	counts, err := c.Customers.CountByStatus(r.Context())
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, counts)
}
