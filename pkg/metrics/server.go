package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Route is an extra endpoint served next to /metrics, typically a health
// check.
type Route struct {
	Pattern string
	Handler http.Handler
}

// StartServer serves /metrics, and any extra routes, on port in the
// background. It returns the server's shutdown function.
func StartServer(port int, routes ...Route) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      newMux(routes),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("metrics server listening", "addr", server.Addr, "routes", len(routes)+1)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return server.Shutdown
}

func newMux(routes []Route) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	links := []string{`<a href="/metrics">/metrics</a>`}
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
		path := r.Pattern
		if i := strings.IndexByte(path, ' '); i >= 0 {
			path = path[i+1:]
		}
		links = append(links, fmt.Sprintf(`<a href="%s">%s</a>`, path, path))
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body><h1>chatlog-search</h1><p>%s</p></body></html>", strings.Join(links, "<br>"))
	})
	return mux
}
