package testutil

import (
	"net/http"

	id "amlcore/pkg/domain"
	"amlcore/pkg/requestcontext"
)

// WithOwner adds an owner to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithOwner(req *http.Request, owner id.OwnerID) *http.Request {
	return req.WithContext(requestcontext.WithOwnerID(req.Context(), owner))
}
