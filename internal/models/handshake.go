package models

// Handshake: результат завершённого обмена с OAuth-провайдером.
type Handshake struct {
	Provider   Provider
	ProviderID string
	Email      string
	Name       string
	AvatarURL  string
}

// Identity: аутентифицированный пользователь запроса вместе с провайдером,
// через который был создан аккаунт.
type Identity struct {
	User     *User
	Provider Provider
}
