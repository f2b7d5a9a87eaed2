// internal/model/token.go
package model

import "time"

// Token is the single credential record shared by every caller of the customer API.
type Token struct {
	Login            string    `db:"login" json:"login"`
	Password         string    `db:"password" json:"-"`
	AccessToken      string    `db:"access_token" json:"access_token"`
	RefreshToken     string    `db:"refresh_token" json:"refresh_token"`
	TokenType        string    `db:"token_type" json:"token_type"`
	ExpiresIn        int       `db:"expires_in" json:"expires_in"`
	RefreshExpiresIn int       `db:"refresh_expires_in" json:"refresh_expires_in"`
	ObtainedAt       time.Time `db:"obtained_at" json:"obtained_at"`
}

// AccessExpired reports whether expires_in seconds have elapsed since issuance.
func (t *Token) AccessExpired(now time.Time) bool {
	return !now.Before(t.ObtainedAt.Add(time.Duration(t.ExpiresIn) * time.Second))
}

// RefreshExpired reports whether the refresh token can no longer be used.
func (t *Token) RefreshExpired(now time.Time) bool {
	return !now.Before(t.ObtainedAt.Add(time.Duration(t.RefreshExpiresIn) * time.Second))
}

// AuthorizationHeader is always a Bearer header. The customer API accepts
// nothing else, so the provider's token_type is stored but not used here.
func (t *Token) AuthorizationHeader() string {
	return "Bearer " + t.AccessToken
}
