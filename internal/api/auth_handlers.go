package api

import (
	"net/http"

	"github.com/boreal-chat/boreal/internal/api/apiutil"
	"github.com/boreal-chat/boreal/internal/corerr"
)

// registerRequest is the POST /api/auth/register body.
type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginRequest is the POST /api/auth/login body.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// validateRequest is the POST /api/auth/validate body.
type validateRequest struct {
	Token string `json:"token"`
}

// handleRegister handles POST /api/auth/register. Only reachable on Auth
// Hub and Standalone deployments; s.Auth is nil on Community Servers.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.Auth == nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.NotFound("registration is not available on this instance"))
		return
	}

	var req registerRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	token, user, err := s.Auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

// handleLogin handles POST /api/auth/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.Auth == nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.NotFound("login is not available on this instance"))
		return
	}

	var req loginRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	token, user, err := s.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

// handleValidateToken handles POST /api/auth/validate, resolving a token to
// its identity for any client that asks. A Community Server's
// federation.Verifier does not call it; it fetches /api/auth/public-key and
// verifies tokens locally.
func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.RequireNonEmpty(w, "token", req.Token) {
		return
	}

	result, err := s.Verifier.Verify(r.Context(), req.Token)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, result)
}

// handlePublicKey handles GET /api/auth/public-key, the endpoint a
// Community Server's federation.Verifier fetches and caches to verify
// tokens signed by this hub. Returns 500 on a Community Server, which has
// no private key of its own to back a public key with.
func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	pem, err := s.Verifier.PublicKeyPEM()
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"public_key": pem})
}
