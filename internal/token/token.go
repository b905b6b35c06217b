// token выпускает и проверяет пары JWT (access/refresh).
//
// Access и refresh подписываются HS256 разными секретами, поэтому утечка
// одного секрета не позволяет подделать токены другого вида. Состояния
// пакет не хранит: результат зависит только от секретов, claims и часов.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/chat-auth/internal/config"
	"github.com/pribylovaa/chat-auth/internal/models"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"

	defaultLeeway = 5 * time.Second
)

var (
	// ErrTokenExpired: подпись верна, но срок действия истёк.
	// Клиенту стоит попробовать refresh.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken: токен повреждён, подписан чужим секретом, выпущен
	// другим издателем или имеет не тот тип. Восстановление невозможно.
	ErrInvalidToken = errors.New("invalid token")

	errWrongType = errors.New("unexpected token type")
)

type claims struct {
	UserID string `json:"uid"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims

	expectedType string
}

// Validate вызывается парсером jwt после стандартных проверок.
func (c *claims) Validate() error {
	if c.expectedType != "" && c.Type != c.expectedType {
		return errWrongType
	}

	return nil
}

// Manager выпускает и проверяет токены. Безопасен для конкурентного использования.
type Manager struct {
	cfg    config.AuthConfig
	now    func() time.Time
	leeway time.Duration
}

// Option настраивает Manager.
type Option func(*Manager)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLeeway задаёт допуск расхождения часов при проверке exp/iat.
func WithLeeway(d time.Duration) Option {
	return func(m *Manager) { m.leeway = d }
}

// New создаёт Manager по настройкам auth.
func New(cfg config.AuthConfig, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		leeway: defaultLeeway,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Issue выпускает новую пару токенов для пользователя.
func (m *Manager) Issue(userID uuid.UUID) (*models.TokenPair, error) {
	const op = "token.token.Issue"

	now := m.now().UTC()
	accessExp := now.Add(m.cfg.AccessTokenTTL)
	refreshExp := now.Add(m.cfg.RefreshTokenTTL)

	access, err := m.sign(userID, typeAccess, "", now, accessExp, m.cfg.AccessSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// jti делает каждый refresh-токен уникальным даже в пределах одной секунды.
	refresh, err := m.sign(userID, typeRefresh, uuid.NewString(), now, refreshExp, m.cfg.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess проверяет access-токен и возвращает ID владельца.
// Истёкший токен даёт ErrTokenExpired, любой другой дефект ErrInvalidToken.
func (m *Manager) VerifyAccess(tokenStr string) (uuid.UUID, error) {
	const op = "token.token.VerifyAccess"

	uid, err := m.parse(tokenStr, typeAccess, m.cfg.AccessSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return uid, nil
}

// VerifyRefresh проверяет refresh-токен. Причина отказа наружу не раскрывается:
// любой дефект, включая истечение, даёт ErrInvalidToken.
func (m *Manager) VerifyRefresh(tokenStr string) (uuid.UUID, error) {
	const op = "token.token.VerifyRefresh"

	uid, err := m.parse(tokenStr, typeRefresh, m.cfg.RefreshSecret)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return uid, nil
}

func (m *Manager) sign(userID uuid.UUID, typ, jti string, now, exp time.Time, secret string) (string, error) {
	c := claims{
		UserID: userID.String(),
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID.String(),
			Issuer:    m.cfg.Issuer,
			Audience:  jwt.ClaimStrings(m.cfg.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, &c).SignedString([]byte(secret))
}

func (m *Manager) parse(tokenStr, typ, secret string) (uuid.UUID, error) {
	if tokenStr == "" {
		return uuid.Nil, ErrInvalidToken
	}

	c := &claims{expectedType: typ}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(m.cfg.Issuer),
	}
	if len(m.cfg.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(m.cfg.Audience...))
	}

	tok, err := jwt.ParseWithClaims(tokenStr, c, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return uuid.Nil, err
	}

	if !tok.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	uid, err := uuid.Parse(c.UserID)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	return uid, nil
}
