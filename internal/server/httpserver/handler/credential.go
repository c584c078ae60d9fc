package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
)

// Credential locations.
const (
	HeaderAPIKey   = "X-Api-Key"
	HeaderCLIToken = "X-CLI-Token"
	QueryAPIKey    = "apiKey"
	SessionCookie  = "cligate_session"
)

// bearerToken returns the Authorization bearer value.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, value, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// cliToken locates the token for /verify and /logout: request body,
// then Authorization: Bearer, then X-CLI-Token.
func cliToken(r *http.Request, body string) string {
	if body = strings.TrimSpace(body); body != "" {
		return body
	}
	if b, ok := bearerToken(r); ok {
		return b
	}
	return strings.TrimSpace(r.Header.Get(HeaderCLIToken))
}

// guardCredential locates the credential on a guarded resource route:
// X-Api-Key, then Authorization: Bearer, then body apiKey, then query
// apiKey. A JSON body is read at most limit bytes and restored for the
// downstream handler.
func guardCredential(r *http.Request, limit int64) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); v != "" {
		return v
	}
	if b, ok := bearerToken(r); ok {
		return b
	}
	if v := bodyAPIKey(r, limit); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get(QueryAPIKey))
}

func bodyAPIKey(r *http.Request, limit int64) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, limit))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var body struct {
		APIKey string `json:"apiKey"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	return strings.TrimSpace(body.APIKey)
}
