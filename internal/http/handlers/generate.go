package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"visualgen/internal/middleware"
	"visualgen/internal/providers/jimeng"
)

// Generate handles POST /api/<kind>: the browser form payload is turned into
// a typed request and submitted with server-side credentials.
func (a *App) Generate(kind jimeng.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload jimeng.ProxyPayload
		if err := decodeJSON(w, r, &payload); err != nil {
			a.fail(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		req, err := payload.Request(kind)
		if err != nil {
			a.fail(w, http.StatusBadRequest, err.Error())
			return
		}

		env, err := a.Client.Submit(r.Context(), req)
		if err != nil {
			a.submitError(w, r, kind, err)
			return
		}
		a.json(w, http.StatusOK, env)
	}
}

// Status handles the status routes. The payload may name its kind; otherwise
// defaultKind is assumed.
func (a *App) Status(defaultKind jimeng.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload jimeng.ProxyPayload
		if err := decodeJSON(w, r, &payload); err != nil {
			a.fail(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		if payload.TaskID == "" {
			a.fail(w, http.StatusBadRequest, "task_id is required")
			return
		}
		kind := defaultKind
		if payload.Kind != "" && defaultKind != jimeng.KindImageEdit {
			parsed, err := jimeng.ParseKind(string(payload.Kind))
			if err != nil {
				a.fail(w, http.StatusBadRequest, err.Error())
				return
			}
			kind = parsed
		}

		env, err := a.Client.Poll(r.Context(), payload.TaskID, kind)
		if err != nil {
			a.Logger.Warn().
				Err(err).
				Str("request_id", middleware.RequestIDFromContext(r.Context())).
				Str("task_id", payload.TaskID).
				Msg("status query failed")
			a.fail(w, http.StatusBadGateway, "status query failed, please try again")
			return
		}
		if env.Success {
			jimeng.LocalizeStatusMessage(env.Data, middleware.LocaleFromContext(r.Context()))
		}
		a.json(w, http.StatusOK, env)
	}
}

func (a *App) submitError(w http.ResponseWriter, r *http.Request, kind jimeng.Kind, err error) {
	log := a.Logger.Warn().
		Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("kind", string(kind))

	var subErr *jimeng.SubmissionError
	var trErr *jimeng.TransportError
	switch {
	case errors.As(err, &subErr):
		log.Msg("submission rejected")
		a.fail(w, rejectionStatus(subErr), subErr.Message)
	case errors.As(err, &trErr):
		log.Msg("provider unreachable")
		a.fail(w, http.StatusBadGateway, "provider unreachable, please try again")
	default:
		log.Msg("submission failed")
		a.fail(w, http.StatusInternalServerError, fmt.Sprintf("%s submission failed", kind))
	}
}

// rejectionStatus keeps provider rejections in the 4xx range so a proxied
// client can tell them apart from an unreachable provider (5xx).
func rejectionStatus(err *jimeng.SubmissionError) int {
	switch {
	case err.Code == "invalid_request":
		return http.StatusBadRequest
	case err.HTTPStatus >= 400 && err.HTTPStatus < 500:
		return err.HTTPStatus
	default:
		return http.StatusUnprocessableEntity
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}
