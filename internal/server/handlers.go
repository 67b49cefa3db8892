package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/userfed/internal/credential"
	"github.com/koustreak/userfed/internal/database"
)

type healthResponse struct {
	Status string          `json:"status"`
	Pool   *database.Stats `json:"pool,omitempty"`
}

type userResponse struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Realm    string `json:"realm"`
}

type validateRequest struct {
	Username string `json:"username"`
	credential.CredentialInput
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// health reports 503 without detail when the database is unreachable;
// the cause is in the logs.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	stats := s.backend.Stats()
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Pool: &stats})
}

func (s *Server) userByID(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	ident, ok := s.backend.Verifier().LookupByID(r.Context(), realm, chi.URLParam(r, "id"))
	s.writeUser(w, realm, ident, ok)
}

func (s *Server) userByUsername(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	ident, ok := s.backend.Verifier().LookupByUsername(r.Context(), realm, chi.URLParam(r, "username"))
	s.writeUser(w, realm, ident, ok)
}

func (s *Server) userByEmail(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	ident, ok := s.backend.Verifier().LookupByEmail(r.Context(), realm, chi.URLParam(r, "email"))
	s.writeUser(w, realm, ident, ok)
}

func (s *Server) writeUser(w http.ResponseWriter, realm string, ident credential.Identity, ok bool) {
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "user not found"})
		return
	}
	resp := userResponse{Username: ident.Username(), Realm: realm}
	if u, isUser := ident.(*credential.User); isUser {
		resp.ID = u.ExternalID
	}
	writeJSON(w, http.StatusOK, resp)
}

// validate always answers 200 with a boolean once the request is well
// formed, so a database fault is indistinguishable from a wrong password.
func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.Username == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username is required"})
		return
	}
	if req.Type == "" {
		req.Type = credential.PasswordType
	}

	realm := chi.URLParam(r, "realm")
	user := &credential.User{Realm: realm, Name: req.Username}
	valid := s.backend.Verifier().ValidatePassword(r.Context(), user, req.CredentialInput)
	writeJSON(w, http.StatusOK, validateResponse{Valid: valid})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
