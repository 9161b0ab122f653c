package agentapi

import (
	"net/http"

	"github.com/substrate-dev/substrate/internal/globmatch"
	"github.com/substrate-dev/substrate/internal/substrateerr"
	"github.com/substrate-dev/substrate/internal/trace"
)

// handleCapabilities answers GET /v1/capabilities. It doubles as the
// health check a Connector polls while warming a delegated backend
// (internal/world's delegatingBackend.Ready), so it always returns 200 —
// degraded state is communicated via the "ready" field, not the status
// code.
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CapabilitiesResponse{
		Ready:                  s.world.Ready(),
		WorldBackend:           worldBackendName(s.world),
		IsolationPrimitives:    isolationPrimitives(),
		TransportMode:          "http",
		RateLimitRPM:           s.cfg.RateLimit.RequestsPerMinute,
		RateLimitMaxConcurrent: s.cfg.RateLimit.MaxConcurrent,
	})
}

// handleTrace answers GET /v1/trace/{span_id} by linearly scanning the
// active trace file for the first matching span, preferring its
// command_complete record (see trace.LoadSpan).
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	spanID := r.PathValue("span_id")
	if spanID == "" {
		writeAPIError(w, http.StatusBadRequest, substrateerr.New(substrateerr.KindUser, "missing span_id"), "")
		return
	}
	if s.tc == nil {
		writeAPIError(w, http.StatusNotFound, substrateerr.New(substrateerr.KindInternal, "trace not found"), "")
		return
	}
	span, err := trace.LoadSpan(s.tc.Path(), spanID)
	if err != nil {
		writeAPIError(w, http.StatusNotFound, substrateerr.Wrap(substrateerr.KindInternal, "trace not found", err), "")
		return
	}
	writeJSON(w, http.StatusOK, span)
}

// handleRequestScopes answers POST /v1/request_scopes: an agent asks for
// named scopes ahead of time so an execute call doesn't need to
// re-evaluate network access mid-command. Only "net:<host-pattern>"
// scopes are understood today; anything else is denied rather than
// erroring the whole request, so a caller can always fall back to
// operating with fewer scopes than it asked for.
func (s *Server) handleRequestScopes(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[RequestScopesRequest](r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, substrateerr.New(substrateerr.KindUser, "invalid RequestScopesRequest body"), err.Error())
		return
	}

	allowed := s.broker.NetAllowed()
	resp := RequestScopesResponse{}
	for _, scope := range req.Scopes {
		host, ok := netScopeHost(scope)
		if !ok {
			resp.Denied = append(resp.Denied, scope)
			continue
		}
		if _, matched := globmatch.MatchAny(allowed, host); matched {
			resp.Granted = append(resp.Granted, scope)
		} else {
			resp.Denied = append(resp.Denied, scope)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func netScopeHost(scope string) (string, bool) {
	const prefix = "net:"
	if len(scope) <= len(prefix) || scope[:len(prefix)] != prefix {
		return "", false
	}
	return scope[len(prefix):], true
}

func worldBackendName(w interface{ Ready() bool }) string {
	if w == nil {
		return "none"
	}
	return "configured"
}

func isolationPrimitives() []string {
	return []string{"user_namespace", "mount_namespace", "overlayfs", "cgroup_v2", "network_namespace", "seccomp", "landlock"}
}
