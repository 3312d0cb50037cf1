package theme

import (
	"net/http"
	"time"
)

const (
	// CookieName is shared with static/js/theme.js.
	CookieName = "theme"
	cookieTTL  = 30 * 24 * time.Hour
)

// CookieStore persists the theme in the theme cookie of one request/response
// pair.
type CookieStore struct {
	r   *http.Request
	w   http.ResponseWriter
	now func() time.Time
}

// NewCookieStore binds a store to r and w. Either may be nil: a nil request
// reads nothing, a nil writer saves nothing.
func NewCookieStore(w http.ResponseWriter, r *http.Request) *CookieStore {
	return &CookieStore{r: r, w: w, now: time.Now}
}

func (c *CookieStore) Load() (string, bool) {
	if c.r == nil {
		return "", false
	}
	cookie, err := c.r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

func (c *CookieStore) Save(t Theme) error {
	if c.w == nil {
		return nil
	}
	http.SetCookie(c.w, Cookie(t, c.now()))
	return nil
}

// Cookie builds the theme cookie for t, expiring 30 days after now.
func Cookie(t Theme, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    string(t),
		Path:     "/",
		Expires:  now.Add(cookieTTL).UTC(),
		MaxAge:   int(cookieTTL / time.Second),
		SameSite: http.SameSiteLaxMode,
	}
}

// Middleware seeds a per-request State from the theme cookie. Requests that
// arrive without a valid cookie get the default written back on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := Load(NewCookieStore(w, r))
		next.ServeHTTP(w, r.WithContext(WithState(r.Context(), state)))
	})
}
