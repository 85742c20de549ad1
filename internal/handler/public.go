package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/linkbio/internal/middleware"
	"github.com/sakif/linkbio/internal/service"
	"github.com/sakif/linkbio/internal/tracking"
)

// PublicHandler serves anonymous visitors: the page data and the view and
// click beacons. No route here requires auth.
type PublicHandler struct {
	public *service.PublicService
	logger *slog.Logger
}

func NewPublicHandler(public *service.PublicService, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{public: public, logger: logger}
}

// HandleProfile returns the public page for a handle.
//
// HTTP: GET /api/public/profile/{handle}
// 404 carries details.handle so the client can offer to claim it.
func (h *PublicHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	page, err := h.public.Resolve(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// beaconRequest is the optional body of the view and click beacons. The
// page script forwards document.referrer, since the Referer header of the
// beacon itself is the linkbio page. A present but empty referrer means
// the visit was direct.
type beaconRequest struct {
	Referrer *string `json:"referrer"`
}

type viewResponse struct {
	Recorded bool `json:"recorded"`
}

// HandleView records a page view. A view suppressed by the dedup window is
// still a 200; "recorded" tells the two apart.
//
// HTTP: POST /api/public/profile/{handle}/view
func (h *PublicHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	visit, err := visitFrom(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	recorded, err := h.public.RecordView(r.Context(), chi.URLParam(r, "handle"), visit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{Recorded: recorded})
}

// HandleClick records a click on a link. Every click counts.
//
// HTTP: POST /api/public/click/{linkId} → 204
func (h *PublicHandler) HandleClick(w http.ResponseWriter, r *http.Request) {
	visit, err := visitFrom(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.public.RecordClick(r.Context(), chi.URLParam(r, "linkId"), visit); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// visitFrom collects the request facts an analytics event is built from.
// The body is optional; the Referer header is used only when the body does
// not carry a referrer.
func visitFrom(w http.ResponseWriter, r *http.Request) (service.Visit, error) {
	var body beaconRequest
	// A bodyless POST (navigator.sendBeacon without data) is fine.
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil && !errors.Is(err, errEmptyBody) {
			return service.Visit{}, err
		}
	}

	referrer := r.Referer()
	if body.Referrer != nil {
		referrer = *body.Referrer
	}
	return service.Visit{
		IP:        middleware.ClientIP(r),
		Referrer:  referrer,
		UserAgent: r.UserAgent(),
		Country:   tracking.Country(r.Header),
	}, nil
}
