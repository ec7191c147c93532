package oidc

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the claims read from an identity provider access token
type Claims struct {
	jwt.RegisteredClaims
	ObjectID          string           `json:"oid"`
	TenantID          string           `json:"tid"`
	Email             string           `json:"email"`
	PreferredUsername string           `json:"preferred_username"`
	UPN               string           `json:"upn"`
	Name              string           `json:"name"`
	Roles             jwt.ClaimStrings `json:"roles"`
}

// ClaimSet is the verified, typed view of a token's claims
type ClaimSet struct {
	Subject           string
	ObjectID          string
	DirectoryID       string
	Email             string
	PreferredUsername string
	Name              string
	Roles             []string
	Issuer            string
	Audience          []string
	IssuedAt          time.Time
	ExpiresAt         time.Time
}

// StableID returns the most stable identifier carried by the token: oid, then sub
func (c *ClaimSet) StableID() string {
	if c.ObjectID != "" {
		return c.ObjectID
	}
	return c.Subject
}

// ContactEmail returns email, falling back to preferred_username
func (c *ClaimSet) ContactEmail() string {
	if c.Email != "" {
		return c.Email
	}
	return c.PreferredUsername
}

func newClaimSet(claims *Claims) *ClaimSet {
	set := &ClaimSet{
		Subject:           claims.Subject,
		ObjectID:          claims.ObjectID,
		DirectoryID:       claims.TenantID,
		Email:             claims.Email,
		PreferredUsername: claims.PreferredUsername,
		Name:              claims.Name,
		Roles:             append([]string(nil), claims.Roles...),
		Issuer:            claims.Issuer,
		Audience:          append([]string(nil), claims.Audience...),
	}
	if set.PreferredUsername == "" {
		set.PreferredUsername = claims.UPN
	}
	if claims.IssuedAt != nil {
		set.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		set.ExpiresAt = claims.ExpiresAt.Time
	}
	return set
}
