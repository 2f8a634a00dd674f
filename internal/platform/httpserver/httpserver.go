// Package httpserver builds the http.Server for the API.
package httpserver

import (
	"net/http"
	"time"

	"gestionale/internal/platform/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 2 * time.Minute
)

// New applies cfg to a server for handler. Report and invoice rendering
// happens inside the request, so WriteTimeout must cover the slowest export.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       idleTimeout,
	}
}
