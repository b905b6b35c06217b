package authclient

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// Сроки жизни cookie-копий токенов.
const (
	accessCookieTTL  = 24 * time.Hour
	refreshCookieTTL = 30 * 24 * time.Hour
)

// cookieStore дублирует токены и идентификатор беседы в http.CookieJar для адреса backend-а,
// чтобы запросы без заголовка Authorization всё равно несли сессию.
type cookieStore struct {
	jar http.CookieJar
	u   *url.URL
	now func() time.Time
}

func newCookieStore(jar http.CookieJar, rawURL string, now func() time.Time) (*cookieStore, error) {
	const op = "authclient.cookies.newCookieStore"

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: invalid cookie url %q", op, rawURL)
	}

	if jar == nil {
		// cookiejar.New с nil-опциями не возвращает ошибку.
		jar, _ = cookiejar.New(nil)
	}

	return &cookieStore{jar: jar, u: u, now: now}, nil
}

func (c *cookieStore) set(name, value string, ttl time.Duration) {
	if c == nil {
		return
	}

	c.jar.SetCookies(c.u, []*http.Cookie{{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  c.now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		SameSite: http.SameSiteLaxMode,
		Secure:   c.u.Scheme == "https",
	}})
}

func (c *cookieStore) get(name string) string {
	if c == nil {
		return ""
	}

	for _, ck := range c.jar.Cookies(c.u) {
		if ck.Name == name {
			return ck.Value
		}
	}

	return ""
}

func (c *cookieStore) clear(names ...string) {
	if c == nil {
		return
	}

	cookies := make([]*http.Cookie, 0, len(names))
	for _, n := range names {
		cookies = append(cookies, &http.Cookie{Name: n, Path: "/", MaxAge: -1})
	}
	c.jar.SetCookies(c.u, cookies)
}
