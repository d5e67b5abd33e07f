package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/juniorsir/stream-dl/internal/service"
)

const (
	defaultRequestLogLimit = 50
	maxRequestLogLimit     = 500
)

type loginRequest struct {
	Password string `json:"password" validate:"max=1024"`
}

// HandleAdminLogin returns a handler for POST /api/v1/admin/login.
func HandleAdminLogin(admin *service.AdminService, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		if !decodeBodyOrWriteInvalid(w, r, validate, &body, "") {
			return
		}
		if err := admin.Login(body.Password); err != nil {
			writeServiceError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK)
	}
}

// HandleAdminStats returns a handler for GET /api/v1/admin/stats.
func HandleAdminStats(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, admin.Stats())
	}
}

// HandleClearCache returns a handler for POST /api/v1/admin/cache/clear.
func HandleClearCache(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin.ClearCache()
		writeSuccess(w, http.StatusOK)
	}
}

type domainRequest struct {
	Domain string `json:"domain" validate:"required,max=253"`
}

// HandleListBlockedDomains returns a handler for GET /api/v1/admin/blocked-domains.
func HandleListBlockedDomains(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, admin.ListBlockedDomains())
	}
}

// HandleAddBlockedDomain returns a handler for POST /api/v1/admin/blocked-domains.
func HandleAddBlockedDomain(admin *service.AdminService, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body domainRequest
		if !decodeBodyOrWriteInvalid(w, r, validate, &body, "Domain is required.") {
			return
		}
		if err := admin.AddBlockedDomain(body.Domain); err != nil {
			writeServiceError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated)
	}
}

// HandleRemoveBlockedDomain returns a handler for DELETE /api/v1/admin/blocked-domains.
func HandleRemoveBlockedDomain(admin *service.AdminService, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body domainRequest
		if !decodeBodyOrWriteInvalid(w, r, validate, &body, "Domain is required.") {
			return
		}
		if err := admin.RemoveBlockedDomain(body.Domain); err != nil {
			writeServiceError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK)
	}
}

// HandleGetSettings returns a handler for GET /api/v1/admin/settings.
func HandleGetSettings(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, admin.GetSettings())
	}
}

// The flag is kept raw so a non-boolean value is reported as such instead
// of as a decode error.
type settingsRequest struct {
	RedirectModeEnabled json.RawMessage `json:"is_redirect_mode_enabled"`
}

type settingsResponse struct {
	Success             bool `json:"success"`
	RedirectModeEnabled bool `json:"is_redirect_mode_enabled"`
}

// HandleUpdateSettings returns a handler for PUT /api/v1/admin/settings.
func HandleUpdateSettings(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body settingsRequest
		if err := DecodeBody(r, &body); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		var value *bool
		var b bool
		if len(body.RedirectModeEnabled) > 0 && json.Unmarshal(body.RedirectModeEnabled, &b) == nil &&
			string(body.RedirectModeEnabled) != "null" {
			value = &b
		}
		cfg, err := admin.UpdateSettings(value)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, settingsResponse{Success: true, RedirectModeEnabled: cfg.RedirectModeEnabled})
	}
}

// HandleListRequestLogs returns a handler for GET /api/v1/admin/request-logs.
func HandleListRequestLogs(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseBoundedIntQueryOrWriteInvalid(w, r, "limit", defaultRequestLogLimit, maxRequestLogLimit)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, admin.ListRequestLogs(limit))
	}
}

// HandleAnalytics returns a handler for GET /api/v1/admin/analytics.
func HandleAnalytics(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, ok := parseBoundedIntQueryOrWriteInvalid(w, r, "days", service.DefaultAnalyticsDays, service.MaxAnalyticsDays)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, admin.Analytics(days))
	}
}
