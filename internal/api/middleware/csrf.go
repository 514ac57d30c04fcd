package middleware

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	csrfTokenLength = 32
	csrfCookieName  = "csrf_token"
	csrfHeaderName  = "X-CSRF-Token"
	csrfFormField   = "csrf_token"
	csrfTokenExpiry = 24 * time.Hour

	csrfSweepInterval = time.Hour
)

// CSRFToken represents a CSRF token with expiry
type CSRFToken struct {
	Token     string
	ExpiresAt time.Time
}

// CSRFStore stores CSRF tokens per session (in-memory)
type CSRFStore struct {
	tokens        map[string]CSRFToken
	mu            sync.RWMutex
	sessionCookie string
	now           func() time.Time
	lastSweep     time.Time
}

// NewCSRFStore creates a token store keyed on the given session cookie.
// Expired tokens are swept while new ones are issued, so the store owns no
// goroutine.
func NewCSRFStore(sessionCookie string) *CSRFStore {
	return &CSRFStore{
		tokens:        make(map[string]CSRFToken),
		sessionCookie: sessionCookie,
		now:           time.Now,
	}
}

// sweep removes expired tokens at most once per csrfSweepInterval. The
// caller holds the write lock.
func (s *CSRFStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < csrfSweepInterval {
		return
	}
	s.lastSweep = now
	for sessionID, token := range s.tokens {
		if now.After(token.ExpiresAt) {
			delete(s.tokens, sessionID)
		}
	}
}

// GetOrCreate returns an existing token or creates a new one
func (s *CSRFStore) GetOrCreate(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	// Check for existing valid token
	if token, exists := s.tokens[sessionID]; exists {
		if now.Before(token.ExpiresAt) {
			return token.Token
		}
	}

	// Generate new token
	tokenBytes := make([]byte, csrfTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		// Fallback to less secure but functional token
		tokenBytes = []byte(now.String())
	}

	token := base64.URLEncoding.EncodeToString(tokenBytes)

	s.tokens[sessionID] = CSRFToken{
		Token:     token,
		ExpiresAt: now.Add(csrfTokenExpiry),
	}

	return token
}

// Validate checks if the provided token is valid for the session
func (s *CSRFStore) Validate(sessionID, providedToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, exists := s.tokens[sessionID]
	if !exists {
		return false
	}

	if s.now().After(token.ExpiresAt) {
		return false
	}

	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(token.Token), []byte(providedToken)) == 1
}

// CSRF returns a middleware that protects against CSRF attacks
// This is primarily for cookie-based authentication (web dashboard)
// API requests using Bearer tokens in headers are not vulnerable to CSRF
func CSRF(store *CSRFStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip CSRF check for safe methods
			if r.Method == http.MethodGet ||
				r.Method == http.MethodHead ||
				r.Method == http.MethodOptions ||
				r.Method == http.MethodTrace {
				// For GET requests, ensure CSRF token is set in cookie
				ensureCSRFCookie(w, r, store)
				next.ServeHTTP(w, r)
				return
			}

			// Skip CSRF check if using Bearer token (API requests)
			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			// Requests without a session cookie carry no ambient credentials
			sessionID := store.sessionID(r)
			if sessionID == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Get CSRF token from header or form
			csrfToken := r.Header.Get(csrfHeaderName)
			if csrfToken == "" {
				csrfToken = r.FormValue(csrfFormField)
			}

			if csrfToken == "" {
				http.Error(w, "CSRF token missing", http.StatusForbidden)
				return
			}

			if !store.Validate(sessionID, csrfToken) {
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ensureCSRFCookie sets the CSRF token cookie if not present
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, store *CSRFStore) {
	sessionID := store.sessionID(r)
	if sessionID == "" {
		return
	}

	// Check if cookie already exists
	if _, err := r.Cookie(csrfCookieName); err == nil {
		return
	}

	// Generate and set CSRF token cookie
	token := store.GetOrCreate(sessionID)
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false, // JavaScript needs to read this
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(csrfTokenExpiry.Seconds()),
	})
}

// sessionID derives a session identifier from the session cookie. JWT
// prefixes are shared by every token with the same header, so the whole
// value is hashed.
func (s *CSRFStore) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(s.sessionCookie)
	if err != nil || cookie.Value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(cookie.Value))
	return hex.EncodeToString(sum[:])
}

// GetCSRFToken returns the token a client must echo in X-CSRF-Token.
func GetCSRFToken(r *http.Request, store *CSRFStore) string {
	sessionID := store.sessionID(r)
	if sessionID == "" {
		return ""
	}
	return store.GetOrCreate(sessionID)
}
