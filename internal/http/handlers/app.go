package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"visualgen/internal/providers/jimeng"
)

// maxBodyBytes bounds request bodies; base64 source images make them large.
const maxBodyBytes = 20 << 20

// Generator is the direct-signed client the proxy fronts.
type Generator interface {
	jimeng.TaskClient
	Forward(ctx context.Context, rawQuery string, body []byte) (int, []byte, error)
}

// App holds the dependencies of the signing proxy handlers.
type App struct {
	Client Generator
	Logger zerolog.Logger
}

func NewApp(client Generator, logger zerolog.Logger) *App {
	return &App{Client: client, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) fail(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, jimeng.Envelope{Success: false, Error: msg})
}
