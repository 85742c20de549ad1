package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/service"
)

// multipartOverhead is the slack allowed on top of the avatar limit for
// the multipart boundaries and part headers.
const multipartOverhead = 64 << 10

// ProfileHandler serves the owner's profile settings and avatar upload.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// HTTP: GET /api/profile
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdate edits display and appearance fields. A present "settings"
// object replaces the stored settings as a whole.
//
// HTTP: PUT /api/profile
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var p service.ProfilePatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.profiles.Update(r.Context(), userID, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUploadAvatar accepts a multipart form with an "avatar" file part.
//
// HTTP: POST /api/profile/avatar
//
// The body is capped with MaxBytesReader before parsing, so an oversized
// upload is cut off at the limit instead of being spooled to disk first.
func (h *ProfileHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := h.profiles.MaxAvatarBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	file, _, err := r.FormFile("avatar")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, apperror.ValidationFailed("avatar", "avatar file is too large"))
			return
		}
		writeError(w, r, apperror.ValidationFailed("avatar", "multipart field \"avatar\" is required"))
		return
	}
	defer file.Close()

	// One byte over the limit is enough for the service to reject it.
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeError(w, r, apperror.ValidationFailed("avatar", "could not read avatar file"))
		return
	}

	user, err := h.profiles.UploadAvatar(r.Context(), userID, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
