package i18n

import (
	"net/http"
	"time"
)

// CookieName holds the language a visitor picked explicitly.
const CookieName = "smartquiz_lang"

// Middleware resolves the request language and injects a localizer into the
// request context. A ?lang= query parameter wins and is remembered in a
// cookie; otherwise the cookie, then Accept-Language, then the default apply.
func Middleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var lang string
			if q := r.URL.Query().Get("lang"); q != "" {
				lang = Match(q)
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    lang,
					Path:     "/",
					MaxAge:   int((365 * 24 * time.Hour).Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			} else {
				var cookie string
				if c, err := r.Cookie(CookieName); err == nil {
					cookie = c.Value
				}
				lang = Match(cookie, r.Header.Get("Accept-Language"))
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
