package handlers

import (
	"io"
	"net/http"
	"net/url"

	"visualgen/internal/middleware"
	"visualgen/internal/providers/jimeng"
)

// Volcengine signs an arbitrary body with the caller's query string and relays
// the provider's answer unchanged. Version is appended only when missing.
func (a *App) Volcengine(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	action := q.Get("Action")
	if action == "" {
		a.fail(w, http.StatusBadRequest, "Action is required")
		return
	}
	rawQuery := r.URL.RawQuery
	if q.Get("Version") == "" {
		rawQuery += "&" + url.Values{"Version": {jimeng.APIVersion}}.Encode()
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.fail(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	status, raw, err := a.Client.Forward(r.Context(), rawQuery, body)
	if err != nil {
		a.Logger.Warn().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("action", action).
			Msg("forward failed")
		a.fail(w, http.StatusBadGateway, "provider unreachable, please try again")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}
