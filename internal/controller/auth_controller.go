// internal/controller/auth_controller.go
package controller

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/unclebandit/infinite-gateway/internal/model"
)

// TokenProvider is the part of the token service the oauth endpoints use.
type TokenProvider interface {
	Token(ctx context.Context) (*model.Token, error)
	Renew(ctx context.Context) (*model.Token, error)
}

type AuthController struct {
	Tokens TokenProvider
	Log    *zap.Logger
}

// GetToken returns the stored token while it is valid and obtains one otherwise.
func (c *AuthController) GetToken(w http.ResponseWriter, r *http.Request) {
	tok, err := c.Tokens.Token(r.Context())
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, tok)
}

// UpdateToken forces a renewal: refresh, falling back to a fresh acquire.
func (c *AuthController) UpdateToken(w http.ResponseWriter, r *http.Request) {
	tok, err := c.Tokens.Renew(r.Context())
	if err != nil {
		WriteError(w, c.Log, err)
		return
	}
	WriteJSON(w, http.StatusOK, tok)
}
