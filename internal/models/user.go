package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider: источник идентичности пользователя.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
	ProviderEmail  Provider = "email"
)

// Valid сообщает, поддерживается ли провайдер.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderGitHub, ProviderEmail:
		return true
	default:
		return false
	}
}

// OAuth сообщает, является ли провайдер внешним OAuth-провайдером.
func (p Provider) OAuth() bool {
	return p == ProviderGoogle || p == ProviderGitHub
}

func (p Provider) String() string { return string(p) }

// User: единая модель пользователя для всех провайдеров.
//
// Email уникален во всей системе, а не в рамках одного провайдера.
// ProviderID пуст для локальных (email) аккаунтов.
type User struct {
	ID           uuid.UUID
	Provider     Provider
	ProviderID   string
	Email        string
	Name         string
	AvatarURL    string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
