// Package httptransport assembles the public HTTP surface.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"registrum/internal/transport/http/shared"
)

// Registrar is anything that mounts routes on the root router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires all public endpoints plus the operational ones.
func NewRouter(handlers ...Registrar) http.Handler {
	root := chi.NewRouter()

	root.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	root.Handle("/metrics", promhttp.Handler())

	for _, handler := range handlers {
		handler.Register(root)
	}
	return root
}
