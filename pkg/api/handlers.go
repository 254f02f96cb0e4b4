package api

import (
	"net/http"
	"strings"

	"github.com/orbsec/organization-service/pkg/httputil"
	"github.com/orbsec/organization-service/pkg/orgs"
)

// AuthorizationHeader carries the caller's bearer token to the licensing service
const AuthorizationHeader = "Authorization"

func (s *Server) getAllOrganizations(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.FindAll(r.Context())
	if err != nil {
		httputil.WriteFault(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, list)
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	org, err := s.service.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteFault(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, org)
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var in orgs.OrganizationInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	org, err := s.service.Create(r.Context(), in)
	if err != nil {
		httputil.WriteFault(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, org)
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var in orgs.OrganizationInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	org, err := s.service.Update(r.Context(), id, in)
	if err != nil {
		httputil.WriteFault(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, org)
}

// deleteOrganization answers 202 with the confirmation text as a plain body
func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	msg, err := s.service.Delete(r.Context(), id)
	if err != nil {
		httputil.WriteFault(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(msg))
}

func (s *Server) getLicenses(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(AuthorizationHeader)
	if strings.TrimSpace(token) == "" {
		httputil.WriteUnauthorized(w, "Authorization header is required")
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	licenses, err := s.service.FindLicenses(r.Context(), token, id)
	if err != nil {
		httputil.WriteFault(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, licenses)
}

// methodNotAllowed answers 405 in the service's error shape
func methodNotAllowed(allow ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", strings.Join(allow, ", "))
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed")
	}
}
