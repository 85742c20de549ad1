// Package handler contains the HTTP handlers of the linkbio API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (URL params, query, JSON or multipart body)
//  2. Call exactly one service method
//  3. Write the JSON response, or translate the error with writeError
//
// Handlers hold no business rules. Ownership, validation and lifecycle
// checks all live in internal/service; the handler only knows who is asking
// (auth.UserIDFromContext) and what they sent.
package handler

import (
	"net/http"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/auth"
)

// idsRequest is the body of the reorder endpoints.
type idsRequest struct {
	IDs []string `json:"ids"`
}

// currentUser returns the authenticated user's ID. Every owner route sits
// behind auth.RequireAuth, so a miss here means the router is miswired.
func currentUser(r *http.Request) (string, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthorized("valid authentication required")
	}
	return id, nil
}
