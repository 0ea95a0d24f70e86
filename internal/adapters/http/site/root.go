// Package site serves the embedded landing page.
package site

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

// Register attaches the landing page as a catch-all. Call it after every
// other route, since gorilla/mux matches in registration order.
func Register(_ context.Context, r *mux.Router) {
	if r == nil {
		panic("router is nil")
	}
	r.PathPrefix("/").Handler(http.FileServer(FS())).Methods(http.MethodGet, http.MethodHead)
}
