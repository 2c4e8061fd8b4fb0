package main

import (
	"net/http"
	"time"

	"github.com/teskje/materialize/internal/admin"
)

// startAdminServer mounts srv behind an *http.Server with the same
// conservative timeouts cmd/memory-service's composition root uses, and
// blocks until it exits.
func startAdminServer(addr string, srv *admin.Server) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
