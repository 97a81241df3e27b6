package csrf

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
)

// ParseError reports a malformed request body encountered while looking for a
// token candidate. It is surfaced as an explicit client-facing error, never a
// silent pass.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "csrf: " + e.Msg + ": " + e.Err.Error()
	}
	return "csrf: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// maxBodyBytes caps how much of a request body extraction will buffer.
const maxBodyBytes = 1 << 20

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// extractCandidate finds the incoming token for a write request. The second
// return reports whether validation applies at all: non-write methods and
// unrecognized content types are not-applicable, not failures. Bodies are
// buffered and restored so downstream handlers can still read them.
func extractCandidate(r *http.Request, cfg MiddlewareConfig) (string, bool, error) {
	if !isWriteMethod(r.Method) {
		return "", false, nil
	}

	// Server-action requests carry a distinguishing header; the token header
	// wins, then the raw text body.
	if r.Header.Get(cfg.ActionHeader) != "" {
		if tok := r.Header.Get(cfg.HeaderName); tok != "" {
			return tok, true, nil
		}
		return extractFromActionBody(r, cfg.FormField)
	}

	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return "", false, nil
	}
	switch {
	case ct == "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return "", true, &ParseError{Msg: "malformed form body", Err: err}
		}
		return r.PostForm.Get(cfg.FormField), true, nil
	case strings.HasPrefix(ct, "multipart/"):
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return "", true, &ParseError{Msg: "malformed multipart body", Err: err}
		}
		return r.PostForm.Get(cfg.FormField), true, nil
	case ct == "application/json" || ct == "application/ld+json":
		if tok := r.Header.Get(cfg.HeaderName); tok != "" {
			return tok, true, nil
		}
		body, err := bufferBody(r)
		if err != nil {
			return "", true, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return "", true, &ParseError{Msg: "malformed json body", Err: err}
		}
		return fieldValue(fields, cfg.FormField, false), true, nil
	}
	return "", false, nil
}

// extractFromActionBody parses a server-action text body: a JSON object or a
// single-element array of objects. Field matching tolerates a provider-added
// suffix on the configured name.
func extractFromActionBody(r *http.Request, field string) (string, bool, error) {
	body, err := bufferBody(r)
	if err != nil {
		return "", true, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", true, nil
	}

	var fields map[string]json.RawMessage
	if trimmed[0] == '[' {
		var list []map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return "", true, &ParseError{Msg: "malformed action body", Err: err}
		}
		if len(list) != 1 {
			return "", true, nil
		}
		fields = list[0]
	} else {
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return "", true, &ParseError{Msg: "malformed action body", Err: err}
		}
	}
	return fieldValue(fields, field, true), true, nil
}

// fieldValue reads a string field; with prefixMatch it also accepts keys the
// provider suffixed, e.g. "csrf_token_1".
func fieldValue(fields map[string]json.RawMessage, field string, prefixMatch bool) string {
	decode := func(raw json.RawMessage) string {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	if raw, ok := fields[field]; ok {
		return decode(raw)
	}
	if prefixMatch {
		for k, raw := range fields {
			if strings.HasPrefix(k, field) {
				if s := decode(raw); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// bufferBody reads the request body once and restores it for downstream
// consumers.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, &ParseError{Msg: "read request body", Err: err}
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
