package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	apierrors "github.com/pribylovaa/chat-auth/internal/errors"
)

// Timeout ограничивает время обработки запроса.
//
//   - d<=0: мидлвар no-op;
//   - у запроса уже есть deadline: он сохраняется;
//   - обработчик вернулся после истечения deadline, не записав ответ:
//     клиент получает 504 deadline_exceeded в общем формате ошибок.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := ctx.Deadline(); !ok {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			if !sw.wrote() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				apierrors.WriteError(w, r, ctx.Err())
			}
		})
	}
}
