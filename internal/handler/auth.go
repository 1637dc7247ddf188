package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/smartquiz/internal/model"
	"github.com/pavelanni/smartquiz/internal/store"
)

const (
	csrfCookieName = "csrf_token"
	adminUser      = "admin"
	adminRealm     = `Basic realm="smartquiz admin", charset="UTF-8"`
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

// issueCSRFToken sets a fresh token cookie and stores the token in the
// request context for forms to embed.
func (h *Handler) issueCSRFToken(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return r.WithContext(model.ContextWithCSRFToken(r.Context(), token)), true
}

// csrfMiddleware uses the double-submit cookie pattern: safe requests get a
// token cookie, unsafe ones must echo it in the csrf_token form field.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			r, ok := h.issueCSRFToken(w, r)
			if ok {
				next.ServeHTTP(w, r)
			}
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil || cookie.Value == "" {
			slog.Warn("CSRF cookie missing", "path", r.URL.Path)
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}

		formToken := r.FormValue("csrf_token")
		if formToken == "" {
			slog.Warn("CSRF form token missing", "path", r.URL.Path)
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}

		if len(formToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
			slog.Warn("CSRF token mismatch", "path", r.URL.Path)
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}

		r, ok := h.issueCSRFToken(w, r)
		if ok {
			next.ServeHTTP(w, r)
		}
	})
}

// requireAdmin checks HTTP basic credentials against the admin password
// hash kept in the metadata table. Without a stored hash the admin area is
// closed.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash, err := h.store.GetMetadata(store.KeyAdminPasswordHash)
		if err != nil {
			slog.Error("failed to read admin password hash", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if hash == "" {
			http.Error(w, "admin access is disabled", http.StatusForbidden)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(adminUser)) != 1 ||
			bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) != nil {
			if ok {
				slog.Warn("admin authentication failed", "remote", r.RemoteAddr)
			}
			w.Header().Set("WWW-Authenticate", adminRealm)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetAdminPassword stores a bcrypt hash of password as the admin credential.
func SetAdminPassword(s *store.Store, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.SetMetadata(store.KeyAdminPasswordHash, string(hash))
}
