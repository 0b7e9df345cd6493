package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"tribo.social/internal/audit"
	"tribo.social/internal/obs"
	"tribo.social/internal/social"
)

type registerRequest struct {
	Login  string `json:"login"`
	Secret string `json:"secret"`
	Name   string `json:"name"`
}

type sessionRequest struct {
	Login  string `json:"login"`
	Secret string `json:"secret"`
}

type profileRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type targetRequest struct {
	Login string `json:"login"`
}

type messageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.svc.Register(r.Context(), req.Login, req.Secret, req.Name)
	obs.ObserveOperation("register", err)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	ctx := social.ContextWithActor(r.Context(), req.Login)
	_ = audit.LogEvent(audit.WithRequestID(ctx, RequestIDFromContext(ctx)),
		"user.register", map[string]any{"login": req.Login})

	w.Header().Set("Location", "/v1/users/"+req.Login)
	writeJSON(w, http.StatusCreated, map[string]any{"login": req.Login})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, err := a.svc.Authenticate(r.Context(), req.Login, req.Secret)
	obs.ObserveOperation("authenticate", err)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	ctx := social.ContextWithActor(r.Context(), req.Login)
	_ = audit.LogEvent(audit.WithRequestID(ctx, RequestIDFromContext(ctx)),
		"session.open", map[string]any{"login": req.Login})

	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

// handleUserResource serves the public read tree under /v1/users/{login}/...
// and DELETE /v1/users/me.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if path == "me" {
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.removeUser(w, r)
		return
	}

	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	login := parts[0]

	switch parts[1] {
	case "attribute":
		a.getAttribute(w, r, login)
	case "friends":
		if other := r.URL.Query().Get("with"); other != "" {
			ok, err := a.svc.IsFriend(r.Context(), login, other)
			if err != nil {
				handleSocialError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"friends": ok})
			return
		}
		a.writeList(w, r, a.svc.Friends, login)
	case "fans":
		a.writeList(w, r, a.svc.Fans, login)
	case "idols":
		if idol := r.URL.Query().Get("of"); idol != "" {
			ok, err := a.svc.IsFan(r.Context(), login, idol)
			if err != nil {
				handleSocialError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"fan": ok})
			return
		}
		a.writeList(w, r, a.svc.Idols, login)
	case "communities":
		a.writeList(w, r, a.svc.Communities, login)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getAttribute(w http.ResponseWriter, r *http.Request, login string) {
	field := strings.TrimSpace(r.URL.Query().Get("name"))
	if field == "" {
		writeError(w, r, http.StatusBadRequest, "name query parameter is required")
		return
	}
	value, err := a.svc.Attribute(r.Context(), login, field)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": value})
}

func (a *API) writeList(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, login string) (string, error), login string) {
	list, err := fn(r.Context(), login)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"list": list})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	token, ok := sessionToken(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.svc.EditProfile(r.Context(), token, req.Field, req.Value)
	obs.ObserveOperation("edit_profile", err)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleFriends(w http.ResponseWriter, r *http.Request) {
	a.relationPost(w, r, "add_friend", a.svc.AddFriend)
}

func (a *API) handleIdols(w http.ResponseWriter, r *http.Request) {
	a.relationPost(w, r, "add_idol", a.svc.AddIdol)
}

func (a *API) handleCrushes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.relationPost(w, r, "add_crush", a.svc.AddCrush)
	case http.MethodGet:
		token, ok := sessionToken(w, r)
		if !ok {
			return
		}
		if other := r.URL.Query().Get("with"); other != "" {
			is, err := a.svc.IsCrush(r.Context(), token, other)
			if err != nil {
				handleSocialError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"crush": is})
			return
		}
		list, err := a.svc.Crushes(r.Context(), token)
		if err != nil {
			handleSocialError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"list": list})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleEnemies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.relationPost(w, r, "add_enemy", a.svc.AddEnemy)
	case http.MethodGet:
		token, ok := sessionToken(w, r)
		if !ok {
			return
		}
		list, err := a.svc.Enemies(r.Context(), token)
		if err != nil {
			handleSocialError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"list": list})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

// relationPost is the shared shape of "add an edge to login X" endpoints.
func (a *API) relationPost(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, token, target string) error) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, ok := sessionToken(w, r)
	if !ok {
		return
	}
	var req targetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Login) == "" {
		writeError(w, r, http.StatusBadRequest, "login is required")
		return
	}
	err := fn(r.Context(), token, req.Login)
	obs.ObserveOperation(op, err)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, ok := sessionToken(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.To) == "" {
		writeError(w, r, http.StatusBadRequest, "to is required")
		return
	}
	err := a.svc.SendDirectMessage(r.Context(), token, req.To, req.Text)
	obs.ObserveOperation("send_message", err)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleNextMessage(w http.ResponseWriter, r *http.Request) {
	a.dequeue(w, r, "read_message", a.svc.ReadDirectMessage)
}

func (a *API) handleNextBroadcast(w http.ResponseWriter, r *http.Request) {
	a.dequeue(w, r, "read_broadcast", a.svc.ReadBroadcast)
}

func (a *API) dequeue(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, token string) (string, error)) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, ok := sessionToken(w, r)
	if !ok {
		return
	}
	text, err := fn(r.Context(), token)
	obs.ObserveOperation(op, err)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": text})
}

func (a *API) removeUser(w http.ResponseWriter, r *http.Request) {
	token, ok := sessionToken(w, r)
	if !ok {
		return
	}
	err := a.svc.RemoveUser(r.Context(), token)
	obs.ObserveOperation("remove_user", err)
	if err != nil {
		handleSocialError(w, r, err)
		return
	}
	_ = audit.LogEvent(audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context())),
		"user.remove", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.svc.Reset(r.Context())
	obs.ObserveOperation("reset", nil)
	_ = audit.LogEvent(audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context())),
		"system.reset", nil)
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleSocialError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, social.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, social.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, social.ErrUnknownUser),
		errors.Is(err, social.ErrCommunityNotFound),
		errors.Is(err, social.ErrMemberNotFound),
		errors.Is(err, social.ErrMissingAttribute),
		errors.Is(err, social.ErrNoDirectMessages),
		errors.Is(err, social.ErrNoBroadcasts):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, social.ErrUserExists),
		errors.Is(err, social.ErrCommunityExists),
		errors.Is(err, social.ErrDuplicateMember),
		errors.Is(err, social.ErrEnemyRelation),
		errors.Is(err, social.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
