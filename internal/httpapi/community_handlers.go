package httpapi

import (
	"context"
	"net/http"
	"strings"

	"tribo.social/internal/audit"
	"tribo.social/internal/obs"
	"tribo.social/internal/social"
)

type createCommunityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type broadcastRequest struct {
	Text string `json:"text"`
}

func (a *API) handleCommunitiesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, ok := sessionToken(w, r)
	if !ok {
		return
	}
	var req createCommunityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	err := a.svc.CreateCommunity(r.Context(), token, req.Name, req.Description)
	obs.ObserveOperation("create_community", err)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	_ = audit.LogEvent(audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context())),
		"community.create", map[string]any{"name": req.Name})

	w.Header().Set("Location", "/v1/communities/"+req.Name)
	writeJSON(w, http.StatusCreated, map[string]any{"name": req.Name})
}

func (a *API) handleCommunityResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/communities/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	name := parts[0]
	if name == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getCommunity(w, r, name)
		return
	}
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch parts[1] {
	case "members":
		switch r.Method {
		case http.MethodGet:
			a.communityField(w, r, a.svc.CommunityMembers, name)
		case http.MethodPost:
			a.joinCommunity(w, r, name)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case "owner":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.communityField(w, r, a.svc.CommunityOwner, name)
	case "description":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.communityField(w, r, a.svc.CommunityDescription, name)
	case "messages":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.broadcast(w, r, name)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getCommunity(w http.ResponseWriter, r *http.Request, name string) {
	owner, err := a.svc.CommunityOwner(r.Context(), name)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	description, err := a.svc.CommunityDescription(r.Context(), name)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	members, err := a.svc.CommunityMembers(r.Context(), name)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        name,
		"owner":       owner,
		"description": description,
		"members":     members,
	})
}

func (a *API) communityField(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, name string) (string, error), name string) {
	value, err := fn(r.Context(), name)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": value})
}

func (a *API) joinCommunity(w http.ResponseWriter, r *http.Request, name string) {
	token, ok := sessionToken(w, r)
	if !ok {
		return
	}
	err := a.svc.JoinCommunity(r.Context(), token, name)
	obs.ObserveOperation("join_community", err)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) broadcast(w http.ResponseWriter, r *http.Request, name string) {
	token, ok := sessionToken(w, r)
	if !ok {
		return
	}
	var req broadcastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.svc.Broadcast(r.Context(), token, name, req.Text)
	obs.ObserveOperation("broadcast", err)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	// Fan-out size equals current membership; the list read is cheap and
	// keeps the metric out of the registry's lock.
	if members, err := a.svc.CommunityMembers(r.Context(), name); err == nil {
		obs.ObserveBroadcastFanOut(social.ListLen(members))
	}
	w.WriteHeader(http.StatusAccepted)
}
