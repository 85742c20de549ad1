package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/linkbio/internal/service"
)

// LinkHandler exposes the owner's link list. All routes require auth.
//
// ROUTES:
//
//	GET    /api/links                 → live links in position order
//	POST   /api/links                 → create (appended at the end)
//	GET    /api/links/deleted         → soft-deleted links still recoverable
//	POST   /api/links/reorder         → {"ids":[...]}
//	PUT    /api/links/{id}            → partial update
//	DELETE /api/links/{id}            → soft delete
//	POST   /api/links/{id}/restore    → undo a soft delete
//	DELETE /api/links/{id}/permanent  → remove for good
type LinkHandler struct {
	links  *service.LinkService
	logger *slog.Logger
}

func NewLinkHandler(links *service.LinkService, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{links: links, logger: logger}
}

func (h *LinkHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	links, err := h.links.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *LinkHandler) HandleListDeleted(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	links, err := h.links.ListDeleted(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// HandleCreate adds a link.
//
// HTTP: POST /api/links
// REQUEST BODY: {"title":"Blog","url":"alice.dev","type":"classic","schedule":{"start":"..."}}
func (h *LinkHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in service.LinkInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	link, err := h.links.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

// HandleUpdate applies a partial update. Omitted fields are unchanged.
//
// HTTP: PUT /api/links/{id}
func (h *LinkHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var p service.LinkPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}

	link, err := h.links.Update(r.Context(), userID, chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// HandleDelete soft-deletes a link. It can be restored for 30 days.
//
// HTTP: DELETE /api/links/{id} → 204
func (h *LinkHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.links.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRestore brings a soft-deleted link back into the list.
//
// HTTP: POST /api/links/{id}/restore
func (h *LinkHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	link, err := h.links.Restore(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// HTTP: DELETE /api/links/{id}/permanent → 204
func (h *LinkHandler) HandleDeletePermanently(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.links.DeletePermanently(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReorder sets positions from the order of ids and returns the new
// list.
//
// HTTP: POST /api/links/reorder
// REQUEST BODY: {"ids":["c9...","c8..."]}
func (h *LinkHandler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req idsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	links, err := h.links.Reorder(r.Context(), userID, req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}
