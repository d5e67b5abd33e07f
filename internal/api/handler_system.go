package api

import (
	"net/http"

	"github.com/juniorsir/stream-dl/internal/service"
)

// HandleSystemInfo returns a handler for GET /api/v1/admin/system/info.
func HandleSystemInfo(system service.SystemService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, system.GetSystemInfo())
	}
}

// HandleSystemConfig returns a handler for GET /api/v1/admin/system/config.
func HandleSystemConfig(system service.SystemService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, system.GetRuntimeConfig())
	}
}
