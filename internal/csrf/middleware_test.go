package csrf

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMiddleware(t *testing.T) func(http.Handler) http.Handler {
	t.Helper()
	svc, err := NewService(ServiceConfig{Secret: "test-secret"})
	require.NoError(t, err)
	mw, err := Middleware(MiddlewareConfig{Service: svc})
	require.NoError(t, err)
	return mw
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// issueToken performs the first GET exchange and returns the cookie plus the
// unwrapped token value.
func issueToken(t *testing.T, mw func(http.Handler) http.Handler) (*http.Cookie, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	var cookie *http.Cookie
	for _, c := range res.Result().Cookies() {
		if c.Name == DefaultCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "fresh visitor must receive a CSRF cookie")
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	require.NoError(t, err)
	return cookie, string(raw)
}

func TestFreshVisitorGetsCookie(t *testing.T) {
	mw := newTestMiddleware(t)
	cookie, tok := issueToken(t, mw)

	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, DefaultCookieMaxAge, cookie.MaxAge)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.NotEmpty(t, tok)
}

func TestReturningVisitorGetsHeaderEcho(t *testing.T) {
	mw := newTestMiddleware(t)
	cookie, tok := issueToken(t, mw)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, tok, res.Header().Get(DefaultHeaderName))
	assert.Empty(t, res.Result().Cookies(), "existing cookie must be reused, not rotated")
}

func TestPostFormValidToken(t *testing.T) {
	mw := newTestMiddleware(t)
	cookie, tok := issueToken(t, mw)

	form := url.Values{}
	form.Set(DefaultFormField, tok)
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)

	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestPostFormMismatchedToken(t *testing.T) {
	mw := newTestMiddleware(t)
	cookie, _ := issueToken(t, mw)
	_, other := issueToken(t, mw)

	form := url.Values{}
	form.Set(DefaultFormField, other)
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)

	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)

	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "application/json", res.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestPostWithoutPriorCookieFailsClosed(t *testing.T) {
	mw := newTestMiddleware(t)
	_, tok := issueToken(t, mw)

	form := url.Values{}
	form.Set(DefaultFormField, tok)
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestPostFormMissingToken(t *testing.T) {
	mw := newTestMiddleware(t)
	cookie, _ := issueToken(t, mw)

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)

	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestPostJSONHeaderToken(t *testing.T) {
	mw := newTestMiddleware(t)
	cookie, tok := issueToken(t, mw)

	req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DefaultHeaderName, tok)
	req.AddCookie(cookie)

	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestPostJSONBodyFieldFallback(t *testing.T) {
	mw := newTestMiddleware(t)
	cookie, tok := issueToken(t, mw)

	payload, err := json.Marshal(map[string]string{DefaultFormField: tok, "name": "x"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)

	var downstreamBody []byte
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downstreamBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	res := httptest.NewRecorder()
	mw(next).ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, string(payload), string(downstreamBody), "body must be restored for downstream handlers")
}

func TestPostJSONMalformedBody(t *testing.T) {
	mw := newTestMiddleware(t)
	cookie, _ := issueToken(t, mw)

	req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(`{"broken`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)

	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestServerActionHeaderToken(t *testing.T) {
	mw := newTestMiddleware(t)
	cookie, tok := issueToken(t, mw)

	req := httptest.NewRequest(http.MethodPost, "/action", strings.NewReader("ignored"))
	req.Header.Set(DefaultActionHeader, "do-something")
	req.Header.Set(DefaultHeaderName, tok)
	req.AddCookie(cookie)

	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestServerActionBodyToken(t *testing.T) {
	mw := newTestMiddleware(t)
	cookie, tok := issueToken(t, mw)

	// Single-element array with a suffixed field name variant.
	body, err := json.Marshal([]map[string]string{{DefaultFormField + "_1": tok}})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/action", strings.NewReader(string(body)))
	req.Header.Set(DefaultActionHeader, "do-something")
	req.AddCookie(cookie)

	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestUnrecognizedContentTypePasses(t *testing.T) {
	mw := newTestMiddleware(t)
	cookie, _ := issueToken(t, mw)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("raw bytes"))
	req.Header.Set("Content-Type", "text/plain")
	req.AddCookie(cookie)

	res := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestDeleteAndPutAreProtected(t *testing.T) {
	mw := newTestMiddleware(t)
	cookie, _ := issueToken(t, mw)

	for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete} {
		req := httptest.NewRequest(method, "/resource", strings.NewReader(`{"x":1}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(cookie)

		res := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(res, req)
		assert.Equal(t, http.StatusForbidden, res.Code, "method %s", method)
	}
}

func TestTokenFromRequestOnFirstExchange(t *testing.T) {
	mw := newTestMiddleware(t)

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TokenFromRequest(r, "")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	res := httptest.NewRecorder()
	mw(next).ServeHTTP(res, req)

	require.NotEmpty(t, seen, "handler must see the token issued in the same exchange")

	var cookie *http.Cookie
	for _, c := range res.Result().Cookies() {
		if c.Name == DefaultCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, string(raw), seen)
}

func TestMiddlewareRequiresService(t *testing.T) {
	_, err := Middleware(MiddlewareConfig{})
	require.Error(t, err)
}
