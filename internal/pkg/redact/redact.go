// redact маскирует чувствительные данные перед записью в лог:
// e-mail, токены и секреты в query-параметрах URL.
package redact

import (
	"net/url"
	"strings"
)

// sensitiveParams перечисляет query-параметры, значения которых не пишутся в лог.
var sensitiveParams = []string{"token", "refreshToken", "code", "state", "access_token", "refresh_token"}

// Email маскирует e-mail: от локальной части остаются первые два символа
// (по рунам), домен сохраняется. Строка без ровно одного '@' целиком
// заменяется на "***".
//
//	"foobar@example.com" -> "fo***@example.com"
//	"ab@ex.com"          -> "***@ex.com"
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Token возвращает заглушку для токена. Пустой токен остаётся пустым,
// чтобы в логах было видно его отсутствие.
func Token(tok string) string {
	if tok == "" {
		return ""
	}

	return "[REDACTED_TOKEN]"
}

// Password возвращает заглушку для пароля.
func Password() string { return "[REDACTED_PASSWORD]" }

// URL заменяет значения чувствительных query-параметров на "***".
// Непарсящаяся строка возвращается как "***".
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}

	q := u.Query()
	changed := false
	for _, p := range sensitiveParams {
		if q.Has(p) {
			q.Set(p, "***")
			changed = true
		}
	}

	if changed {
		u.RawQuery = q.Encode()
	}

	return u.String()
}
