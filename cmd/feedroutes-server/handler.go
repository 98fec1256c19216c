package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"feedroutes/services/copymanga"
	"feedroutes/services/nga"
	"feedroutes/services/routes"
	"feedroutes/services/tachidesk"
	"feedroutes/services/wenku8"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, routes.ErrUnknownRoute),
		errors.Is(err, routes.ErrTooManyParams):
		return http.StatusNotFound
	case errors.Is(err, routes.ErrMissingParam),
		errors.Is(err, nga.ErrInvalidID),
		errors.Is(err, copymanga.ErrInvalidID),
		errors.Is(err, wenku8.ErrInvalidID),
		errors.Is(err, tachidesk.ErrInvalidParam):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

type routeInfo struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Example string `json:"example"`
}

func newHandler(registry routes.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		var out []routeInfo
		for _, route := range registry.Routes() {
			out = append(out, routeInfo{
				Path:    route.Path(),
				Name:    route.Title,
				Example: route.Example,
			})
		}
		w.Header().Set("content-type", "application/json")
		err := json.NewEncoder(w).Encode(out)
		if err != nil {
			slog.WarnContext(r.Context(), "failed to write route list", "err", err)
		}
	})

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		name := r.URL.Query().Get("format")
		if name == "" {
			name = "rss"
		}
		f, ok := formats[name]
		if !ok {
			http.Error(w, "unknown format "+name, http.StatusBadRequest)
			return
		}

		route, params, err := registry.Match(r.URL.Path)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		out, err := route.Run(ctx, params)
		if err != nil {
			slog.WarnContext(ctx, "route failed", "route", route.Name, "params", params, "err", err)
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		rendered, err := f.render(toFeeds(out, time.Now()))
		if err != nil {
			slog.ErrorContext(ctx, "failed to render feed", "route", route.Name, "err", err)
			http.Error(w, "failed to render feed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("content-type", f.contentType)
		_, err = w.Write([]byte(rendered))
		if err != nil {
			slog.DebugContext(ctx, "failed to write response", "err", err)
		}
	})

	return mux
}
