package api

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/juniorsir/stream-dl/internal/service"
)

// HandleGeoIPStatus returns a handler for GET /api/v1/admin/geoip/status.
func HandleGeoIPStatus(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, admin.GetGeoIPStatus())
	}
}

// HandleGeoIPLookup returns a handler for GET /api/v1/admin/geoip/lookup.
func HandleGeoIPLookup(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := r.URL.Query().Get("ip")
		if ip == "" {
			writeInvalidArgument(w, "ip query parameter is required")
			return
		}
		country, err := admin.LookupIP(ip)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{
			"ip":           ip,
			"country_code": country,
		})
	}
}

type geoIPBatchRequest struct {
	IPs []string `json:"ips" validate:"required,max=1000"`
}

// HandleGeoIPLookupPost returns a handler for POST /api/v1/admin/geoip/lookup (batch).
func HandleGeoIPLookupPost(admin *service.AdminService, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body geoIPBatchRequest
		if !decodeBodyOrWriteInvalid(w, r, validate, &body, "") {
			return
		}

		type result struct {
			IP          string `json:"ip"`
			CountryCode string `json:"country_code"`
		}
		results := make([]result, 0, len(body.IPs))
		for i, ip := range body.IPs {
			country, err := admin.LookupIP(ip)
			if err != nil {
				writeInvalidArgument(w, fmt.Sprintf("ips[%d]: invalid IP address", i))
				return
			}
			results = append(results, result{IP: ip, CountryCode: country})
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"results": results,
		})
	}
}

// HandleGeoIPUpdate returns a handler for POST /api/v1/admin/geoip/actions/update-now.
func HandleGeoIPUpdate(admin *service.AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := admin.UpdateGeoIPNow(); err != nil {
			writeServiceError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK)
	}
}
