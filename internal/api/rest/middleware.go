package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/domain/user"
)

type ctxUserKey struct{}

func userFrom(ctx context.Context) user.User {
	u, _ := ctx.Value(ctxUserKey{}).(user.User)
	return u
}

// authenticate verifies the bearer token. With allowQuery the token may also
// be given as the token query parameter, for browser websocket clients.
func (s *Server) authenticate(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" && allowQuery {
				raw = r.URL.Query().Get("token")
			}
			if raw == "" {
				s.writeCode(w, http.StatusUnauthorized, codeUnauthenticated)
				return
			}

			u, err := s.auth.Verify(raw)
			if err != nil {
				zlog.Debug().Msgf("rejected token: path=%s err=%v", r.URL.Path, err)
				s.writeCode(w, http.StatusUnauthorized, codeUnauthenticated)
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserKey{}, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zlog.Debug().Msgf("http: method=%s path=%s status=%d bytes=%d duration=%s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start))
	})
}
