package api

import (
	"net/http"

	"github.com/boreal-chat/boreal/internal/api/apiutil"
)

// instanceInfo is the public, unauthenticated shape of an instance's
// identity, advertised so clients and peer federation members can tell
// what they are talking to before authenticating.
type instanceInfo struct {
	Mode                   string `json:"mode"`
	Version                string `json:"version"`
	PublicURL              string `json:"public_url"`
	AllowLocalRegistration bool   `json:"allow_local_registration"`
}

// handleInstanceInfo handles GET /api/instance/info.
func (s *Server) handleInstanceInfo(w http.ResponseWriter, r *http.Request) {
	apiutil.WriteJSON(w, http.StatusOK, instanceInfo{
		Mode:                   string(s.Config.Mode),
		Version:                s.Version,
		PublicURL:              s.Config.Server.PublicURL,
		AllowLocalRegistration: s.Config.Auth.AllowLocalRegistration,
	})
}
