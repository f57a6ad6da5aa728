package api

import "net/http"

const headerUserID = "X-User-Id"

// identityMiddleware extracts the participant identity from the X-User-ID
// header and adds it to the request context. Identity is supplied by an
// external collaborator; the engine only keys presence by it and performs
// no authentication.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(headerUserID)
		if userID == "" {
			http.Error(w, "missing X-User-ID header", http.StatusUnauthorized)

			return
		}

		ctx := withUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
