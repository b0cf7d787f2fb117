package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	PassHash  []byte
	Verified  bool
	Avatar    *Image
	Tokens    []string
	CreatedAt time.Time
}

// Profile is the part of a user that is safe to hand back to clients.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
	Avatar   string `json:"avatar,omitempty"`
}

func (u User) Profile() Profile {
	p := Profile{
		ID:       u.ID.String(),
		Email:    u.Email,
		Name:     u.Name,
		Verified: u.Verified,
	}
	if u.Avatar != nil {
		p.Avatar = u.Avatar.URL
	}

	return p
}

type PublicProfile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type Image struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
	PurposePasswordUpdated   Purpose = "password_updated"
)

// Known reports whether mail_sender has a template for p.
func (p Purpose) Known() bool {
	switch p {
	case PurposeEmailVerification, PurposePasswordReset, PurposePasswordUpdated:
		return true
	}

	return false
}

type OneTimeToken struct {
	OwnerID   uuid.UUID
	Purpose   Purpose
	TokenHash []byte
	CreatedAt time.Time
}

type Product struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	Name           string
	Description    string
	Category       string
	Price          decimal.Decimal
	PurchasingDate time.Time
	Images         []Image
	Thumbnail      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Seller is the owner summary attached to product details.
type Seller struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Message is published to the mail queue and consumed by mail_sender.
type Message struct {
	Email   string  `json:"to"`
	Link    string  `json:"link"`
	Purpose Purpose `json:"purpose"`
}
