package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/juniorsir/stream-dl/internal/download"
	"github.com/juniorsir/stream-dl/internal/entitlement"
	"github.com/juniorsir/stream-dl/internal/gate"
	"github.com/juniorsir/stream-dl/internal/netutil"
	"github.com/juniorsir/stream-dl/internal/service"
)

// ResellerUserHeader identifies the marketplace caller in request logs.
const ResellerUserHeader = "X-RapidAPI-User"

type ticketResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleTicket returns a handler for GET /api/v1/ticket.
func HandleTicket(tickets *gate.TicketIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, expiresAt, err := tickets.Issue()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ticketResponse{Ticket: token, ExpiresAt: expiresAt})
	}
}

type resolveRequest struct {
	URL string `json:"url" validate:"required,max=4096"`
}

// HandleResolve returns a handler for POST /api/v1/resolve.
func HandleResolve(media *service.MediaService, validate *validator.Validate, trustForwarded bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body resolveRequest
		if !decodeBodyOrWriteInvalid(w, r, validate, &body, "URL required") {
			return
		}
		info, err := media.Resolve(r.Context(), service.ResolveInput{
			URL:      body.URL,
			ClientIP: netutil.ClientIP(r, trustForwarded),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, info)
	}
}

type resolveURLRequest struct {
	URL      string `json:"url" validate:"required,max=4096"`
	FormatID string `json:"format_id" validate:"required,max=256"`
}

type directURLResponse struct {
	DirectURL string `json:"direct_url"`
}

// HandleResolveURL returns a handler for POST /api/v1/resolve-url.
func HandleResolveURL(media *service.MediaService, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body resolveURLRequest
		if !decodeBodyOrWriteInvalid(w, r, validate, &body, "URL and format_id required") {
			return
		}
		direct, err := media.DirectURL(r.Context(), body.URL, body.FormatID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, directURLResponse{DirectURL: direct})
	}
}

// HandleDownload returns a handler for GET /api/v1/download. The redirect
// setting is read per request.
func HandleDownload(media *service.MediaService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videoOnly, ok := parseBoolQueryOrWriteInvalid(w, r, "video_only")
		if !ok {
			return
		}
		q := r.URL.Query()
		req := download.Request{
			URL:           q.Get("url"),
			FormatID:      q.Get("format_id"),
			VideoFormatID: q.Get("v_format_id"),
			AudioFormatID: q.Get("a_format_id"),
			Title:         q.Get("title"),
			VideoOnly:     videoOnly != nil && *videoOnly,
		}

		if media.RedirectMode() {
			location, err := media.DownloadRedirect(r.Context(), req)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			http.Redirect(w, r, location, http.StatusFound)
			return
		}
		if err := media.DownloadStream(r.Context(), w, req); err != nil {
			writeServiceError(w, err)
		}
	}
}

// HandleImageProxy returns a handler for GET /api/v1/image-proxy.
func HandleImageProxy(media *service.MediaService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img, err := media.OpenImage(r.Context(), r.URL.Query().Get("url"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		defer img.Body.Close()

		w.Header().Set("Content-Type", img.ContentType)
		if img.ContentLength > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(img.ContentLength, 10))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, img.Body)
	}
}

type resellerResolveRequest struct {
	URL string `json:"url" validate:"required,max=4096"`
}

// HandleResellerResolve returns a handler for POST /api/v1/reseller/resolve.
func HandleResellerResolve(media *service.MediaService, validate *validator.Validate, trustForwarded bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body resellerResolveRequest
		if !decodeBodyOrWriteInvalid(w, r, validate, &body, `A "url" parameter is required in the request body.`) {
			return
		}
		info, err := media.ResolveReseller(r.Context(), service.ResellerInput{
			URL:      body.URL,
			Plan:     r.Header.Get(entitlement.PlanHeader),
			Caller:   r.Header.Get(ResellerUserHeader),
			ClientIP: netutil.ClientIP(r, trustForwarded),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, info)
	}
}
