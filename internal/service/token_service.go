package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	appErrors "github.com/unclebandit/infinite-gateway/internal/errors"
	"github.com/unclebandit/infinite-gateway/internal/metrics"
	"github.com/unclebandit/infinite-gateway/internal/model"
	"github.com/unclebandit/infinite-gateway/internal/remote"
	"github.com/unclebandit/infinite-gateway/internal/repository"
)

// TokenIssuer is the identity provider.
type TokenIssuer interface {
	GetToken(ctx context.Context, username, password string) (*remote.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*remote.TokenResponse, error)
}

type TokenState int

const (
	StateNoToken TokenState = iota
	StateValid
	StateExpired
)

func (s TokenState) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	default:
		return "no_token"
	}
}

// tokenWorkTimeout bounds a shared acquire or refresh, which runs detached
// from the caller that started it.
var tokenWorkTimeout = 30 * time.Second

// TokenService owns the shared access token. All writes go through it so
// that concurrent callers never race an acquire against a refresh. The
// store is the only source of the token; the worker and the server each
// run their own TokenService over it.
type TokenService struct {
	Repo     repository.TokenRepositoryInterface
	Issuer   TokenIssuer
	Login    string
	Password string
	Now      func() time.Time

	log   *zap.Logger
	mu    sync.Mutex
	group singleflight.Group
	// access tokens the customer API answered 401 for, keyed by token
	rejected *gocache.Cache
}

// NewTokenService builds the service. rejectTTL is how long a 401 for an
// access token keeps that token marked expired.
func NewTokenService(repo repository.TokenRepositoryInterface, issuer TokenIssuer, login, password string, rejectTTL time.Duration, log *zap.Logger) *TokenService {
	if log == nil {
		log = zap.NewNop()
	}
	if rejectTTL <= 0 {
		rejectTTL = 5 * time.Minute
	}
	return &TokenService{
		Repo:     repo,
		Issuer:   issuer,
		Login:    login,
		Password: password,
		Now:      time.Now,
		log:      log.With(zap.String("component", "token")),
		rejected: gocache.New(rejectTTL, time.Minute),
	}
}

// State derives the token state from the store, the clock and any 401 seen
// for the current access token.
func (s *TokenService) State(ctx context.Context) (TokenState, *model.Token, error) {
	tok, err := s.Repo.Get(ctx)
	if err != nil {
		return StateNoToken, nil, err
	}
	return s.stateOf(tok), tok, nil
}

func (s *TokenService) stateOf(tok *model.Token) TokenState {
	if tok == nil {
		return StateNoToken
	}
	if tok.AccessExpired(s.Now()) || s.isRejected(tok.AccessToken) {
		return StateExpired
	}
	return StateValid
}

// Acquire obtains a brand new token with the service credentials.
func (s *TokenService) Acquire(ctx context.Context) (*model.Token, error) {
	return s.shared(ctx, "acquire", s.acquireLocked)
}

// Refresh exchanges the stored refresh token. Without a stored token it
// fails with a 401 AuthError.
func (s *TokenService) Refresh(ctx context.Context) (*model.Token, error) {
	return s.shared(ctx, "refresh", s.refreshLocked)
}

// Renew is the scheduled policy: refresh while the refresh token is alive,
// acquire when there is nothing to refresh or the refresh is rejected.
func (s *TokenService) Renew(ctx context.Context) (*model.Token, error) {
	return s.shared(ctx, "renew", s.renewLocked)
}

// Token returns the stored token while it is valid and renews it otherwise.
func (s *TokenService) Token(ctx context.Context) (*model.Token, error) {
	state, tok, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	if state == StateValid {
		return tok, nil
	}
	return s.shared(ctx, "token", func(ctx context.Context) (*model.Token, error) {
		// another caller may have renewed while we waited for the lock
		if state, tok, err := s.State(ctx); err != nil {
			return nil, err
		} else if state == StateValid {
			return tok, nil
		}
		return s.renewLocked(ctx)
	})
}

// AuthorizationHeader returns the header for the stored token, or an empty
// map when nothing is stored.
func (s *TokenService) AuthorizationHeader(ctx context.Context) (map[string]string, error) {
	tok, err := s.Repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.AccessToken == "" {
		return map[string]string{}, nil
	}
	return map[string]string{"Authorization": tok.AuthorizationHeader()}, nil
}

// Invalidate marks accessToken as rejected by the customer API. It is a
// no-op once the stored token has moved on.
func (s *TokenService) Invalidate(accessToken string) {
	if accessToken == "" {
		return
	}
	s.rejected.SetDefault(accessToken, struct{}{})
	s.log.Warn("access token rejected by customer API, marked expired")
}

// InvalidateHeader is Invalidate for a header produced by AuthorizationHeader.
func (s *TokenService) InvalidateHeader(header map[string]string) {
	v := header["Authorization"]
	if _, token, ok := strings.Cut(v, " "); ok {
		v = token
	}
	s.Invalidate(v)
}

func (s *TokenService) isRejected(accessToken string) bool {
	if accessToken == "" {
		return false
	}
	_, ok := s.rejected.Get(accessToken)
	return ok
}

// shared runs fn once per login and kind for all concurrent callers, under
// the write lock. A caller whose ctx ends stops waiting; the work itself
// carries on under tokenWorkTimeout.
func (s *TokenService) shared(ctx context.Context, kind string, fn func(context.Context) (*model.Token, error)) (*model.Token, error) {
	ch := s.group.DoChan(kind+":"+s.Login, func() (any, error) {
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenWorkTimeout)
		defer cancel()
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn(workCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Token), nil
	}
}

func (s *TokenService) renewLocked(ctx context.Context) (*model.Token, error) {
	state, tok, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	if state == StateNoToken || tok.RefreshExpired(s.Now()) {
		return s.acquireLocked(ctx)
	}

	refreshed, err := s.refreshLocked(ctx)
	if err == nil {
		return refreshed, nil
	}
	var authErr *appErrors.AuthError
	if !errors.As(err, &authErr) {
		return nil, err
	}
	s.log.Warn("refresh rejected, acquiring a new token",
		zap.String("login", tok.Login), zap.Int("status", authErr.Status), zap.String("body", authErr.Body))
	return s.acquireLocked(ctx)
}

func (s *TokenService) acquireLocked(ctx context.Context) (*model.Token, error) {
	login, password := s.Login, s.Password
	if login == "" || password == "" {
		stored, err := s.Repo.Get(ctx)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			login, password = stored.Login, stored.Password
		}
	}

	resp, err := s.Issuer.GetToken(ctx, login, password)
	metrics.RecordTokenRenewal("acquire", err)
	if err != nil {
		err = asAuthError(err)
		s.log.Error("token acquisition failed", zap.String("login", login), zap.Error(err))
		return nil, err
	}

	tok := &model.Token{Login: login, Password: password}
	applyResponse(tok, resp, s.Now())
	if err := s.Repo.Put(ctx, tok); err != nil {
		s.log.Error("storing acquired token failed", zap.String("login", login), zap.Error(err))
		return nil, err
	}
	s.log.Info("token acquired", zap.String("login", login), zap.Int("expires_in", tok.ExpiresIn))
	return tok, nil
}

func (s *TokenService) refreshLocked(ctx context.Context) (*model.Token, error) {
	tok, err := s.Repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, appErrors.NewAuthError(http.StatusUnauthorized, appErrors.ErrNoStoredToken.Error())
	}

	resp, err := s.Issuer.RefreshToken(ctx, tok.RefreshToken)
	metrics.RecordTokenRenewal("refresh", err)
	if err != nil {
		err = asAuthError(err)
		s.log.Error("token refresh failed", zap.String("login", tok.Login), zap.Error(err))
		return nil, err
	}

	applyResponse(tok, resp, s.Now())
	if err := s.Repo.Put(ctx, tok); err != nil {
		s.log.Error("storing refreshed token failed", zap.String("login", tok.Login), zap.Error(err))
		return nil, err
	}
	s.log.Info("token refreshed", zap.String("login", tok.Login), zap.Int("expires_in", tok.ExpiresIn))
	return tok, nil
}

func applyResponse(tok *model.Token, resp *remote.TokenResponse, now time.Time) {
	tok.AccessToken = resp.AccessToken
	tok.RefreshToken = resp.RefreshToken
	tok.TokenType = resp.TokenType
	tok.ExpiresIn = resp.ExpiresIn
	tok.RefreshExpiresIn = resp.RefreshExpiresIn
	tok.ObtainedAt = now
}

// asAuthError turns a non-2xx identity provider answer into an AuthError.
// Timeouts and transport failures pass through.
func asAuthError(err error) error {
	var up *appErrors.UpstreamError
	if errors.As(err, &up) {
		return appErrors.NewAuthError(up.Status, up.Body)
	}
	return err
}
