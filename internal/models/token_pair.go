package models

import "time"

// TokenPair: пара токенов, выдаваемая после успешного входа или обновления.
//
// Описание:
//   - AccessToken: короткоживущий JWT для доступа к API;
//   - RefreshToken: долгоживущий JWT, подписанный отдельным секретом,
//     используется только для получения новой пары;
//   - AccessExpiresAt/RefreshExpiresAt: моменты истечения (UTC).
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
