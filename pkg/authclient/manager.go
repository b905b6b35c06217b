// authclient: клиентская часть сессии. Manager хранит пару токенов,
// проверяет её у backend-а при старте, один раз пробует refresh при отказе
// и полностью сбрасывает сессию при выходе. ChatClient подставляет токен
// в запросы к чат-API и завершает сессию на 401.
package authclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// State: снимок состояния сессии.
type State struct {
	User            *User
	AccessToken     string
	IsLoading       bool
	IsAuthenticated bool
}

// Config: зависимости Manager.
type Config struct {
	// Store: хранилище, доступное клиентскому коду. Обязательно.
	Store Storage
	// API: проверка профиля и обмен refresh-токена. Обязательно.
	API AuthAPI

	// CookieURL: адрес backend-а, для которого токены дублируются в Jar.
	// Пустая строка отключает cookie-копию.
	CookieURL string
	// Jar: cookie-хранилище. nil означает новый cookiejar.
	Jar http.CookieJar

	// Navigator и LoginURL задают переход после Logout. Navigator может быть nil.
	Navigator Navigator
	LoginURL  string

	// Now: источник времени для сроков cookie.
	Now func() time.Time

	// Logger: nil означает slog.Default().
	Logger *slog.Logger
}

// Manager: конечный автомат клиентской сессии.
//
// Инициализация: состояние "загрузка, не аутентифицирован" до первого
// Bootstrap или Login. Завершение: Logout очищает оба хранилища, сбрасывает
// состояние и вызывает Navigator.
//
// Операции Bootstrap, Login, Refresh и Logout сериализуются: перекрывающиеся
// вызовы выполняются по очереди.
type Manager struct {
	store    Storage
	api      AuthAPI
	cookies  *cookieStore
	nav      Navigator
	loginURL string
	log      *slog.Logger

	opMu sync.Mutex

	mu    sync.RWMutex
	state State
}

// NewManager собирает Manager.
func NewManager(cfg Config) (*Manager, error) {
	const op = "authclient.manager.NewManager"

	if cfg.Store == nil || cfg.API == nil {
		return nil, fmt.Errorf("%s: store and api are required", op)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}

	m := &Manager{
		log:      lg,
		store:    cfg.Store,
		api:      cfg.API,
		nav:      cfg.Navigator,
		loginURL: cfg.LoginURL,
		state:    State{IsLoading: true},
	}

	if cfg.CookieURL != "" {
		cs, err := newCookieStore(cfg.Jar, cfg.CookieURL, now)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		m.cookies = cs
	}

	return m, nil
}

// Bootstrap восстанавливает сессию из Storage.
//
//   - токена нет: IsLoading=false, не аутентифицирован, nil;
//   - профиль получен: аутентифицирован, nil;
//   - backend отклонил токен: один refresh (если есть refresh-токен), иначе
//     Logout и ErrNotAuthenticated;
//   - другой статус (429, 404, 5xx) или сеть: ошибка возвращается,
//     сохранённые токены не трогаются.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	access := m.store.Get(KeyAccessToken)
	if access == "" {
		m.setState(State{})
		return nil
	}

	return m.verify(ctx, access, true)
}

// Login сохраняет пару в оба хранилища и проходит ту же проверку,
// что и Bootstrap. Возвращается только после завершения проверки.
func (m *Manager) Login(ctx context.Context, accessToken, refreshToken string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.setLoading()

	if err := m.persist(accessToken, refreshToken); err != nil {
		m.settle()
		return err
	}

	return m.verify(ctx, accessToken, true)
}

// Refresh меняет refresh-токен на новую пару и проверяет её.
// Отказ backend-а завершает сессию.
func (m *Manager) Refresh(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	return m.refresh(ctx)
}

// Logout очищает оба хранилища, включая идентификатор беседы,
// сбрасывает состояние и переходит на страницу входа.
func (m *Manager) Logout() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.logout()
}

// IsAuthenticated: есть и пользователь, и access-токен.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.IsAuthenticated
}

// State возвращает копию текущего состояния.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := m.state
	if st.User != nil {
		u := *st.User
		st.User = &u
	}

	return st
}

// AccessToken читает сохранённый access-токен из Storage.
func (m *Manager) AccessToken() string {
	return m.store.Get(KeyAccessToken)
}

// ConversationID возвращает идентификатор текущей беседы.
func (m *Manager) ConversationID() string {
	return m.store.Get(KeySessionID)
}

// SetConversationID сохраняет идентификатор беседы в оба хранилища.
// Logout его удаляет.
func (m *Manager) SetConversationID(id string) error {
	if err := m.store.Set(KeySessionID, id); err != nil {
		return err
	}

	m.cookies.set(KeySessionID, id, refreshCookieTTL)
	return nil
}

func (m *Manager) verify(ctx context.Context, access string, allowRefresh bool) error {
	user, err := m.api.Profile(ctx, access)
	if err == nil {
		m.cookies.set(KeyAccessToken, access, accessCookieTTL)
		m.setState(State{User: user, AccessToken: access, IsAuthenticated: true})
		return nil
	}

	if !isAuthFailure(err) {
		m.settle()
		return err
	}

	if allowRefresh && m.store.Get(KeyRefreshToken) != "" {
		return m.refresh(ctx)
	}

	m.logout()
	return ErrNotAuthenticated
}

func (m *Manager) refresh(ctx context.Context) error {
	rt := m.store.Get(KeyRefreshToken)
	if rt == "" {
		m.logout()
		return ErrNotAuthenticated
	}

	pair, err := m.api.Refresh(ctx, rt)
	if err != nil {
		if !isAuthFailure(err) {
			m.settle()
			return err
		}
		m.logout()
		return ErrNotAuthenticated
	}

	if err := m.persist(pair.AccessToken, pair.RefreshToken); err != nil {
		m.settle()
		return err
	}

	// Новая пара проверяется без повторного refresh.
	return m.verify(ctx, pair.AccessToken, false)
}

func (m *Manager) persist(access, refresh string) error {
	const op = "authclient.manager.persist"

	if err := m.store.Set(KeyAccessToken, access); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := m.store.Set(KeyRefreshToken, refresh); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	m.cookies.set(KeyAccessToken, access, accessCookieTTL)
	m.cookies.set(KeyRefreshToken, refresh, refreshCookieTTL)

	return nil
}

func (m *Manager) logout() {
	if err := m.store.Delete(KeyAccessToken, KeyRefreshToken, KeySessionID); err != nil {
		// Состояние всё равно сбрасывается: токены могли остаться в Storage.
		m.log.Error("session_clear_failed", slog.String("err", err.Error()))
	}
	m.cookies.clear(KeyAccessToken, KeyRefreshToken, KeySessionID)
	m.setState(State{})

	if m.nav != nil {
		m.nav.Navigate(m.loginURL)
	}
}

func (m *Manager) setState(st State) {
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
}

func (m *Manager) setLoading() {
	m.mu.Lock()
	m.state.IsLoading = true
	m.mu.Unlock()
}

// settle снимает флаг загрузки, не меняя остального состояния.
func (m *Manager) settle() {
	m.mu.Lock()
	m.state.IsLoading = false
	m.mu.Unlock()
}
