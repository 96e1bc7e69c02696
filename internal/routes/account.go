package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eugenenazirov/codepush-server/internal/api"
	"github.com/eugenenazirov/codepush-server/internal/apperror"
	"github.com/eugenenazirov/codepush-server/internal/auth"
	"github.com/eugenenazirov/codepush-server/internal/storage"
)

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type loginResponse struct {
	Status  string            `json:"status"`
	Results map[string]string `json:"results"`
}

type accountInfo struct {
	Email           string   `json:"email"`
	Name            string   `json:"name"`
	LinkedProviders []string `json:"linkedProviders"`
}

type existsResponse struct {
	Status string `json:"status"`
	Exists bool   `json:"exists"`
}

type accessKeyInfo struct {
	Name         string `json:"name"`
	FriendlyName string `json:"friendlyName"`
	CreatedBy    string `json:"createdBy"`
	CreatedTime  int64  `json:"createdTime"`
	Expires      int64  `json:"expires"`
	Description  string `json:"description"`
	IsSession    bool   `json:"isSession"`
}

const hiddenKey = "(hidden)"

func newAccessKeyInfo(k storage.AccessKey, reveal bool) accessKeyInfo {
	name := hiddenKey
	if reveal {
		name = k.Token
	}
	return accessKeyInfo{
		Name:         name,
		FriendlyName: k.FriendlyName,
		CreatedBy:    k.CreatedBy,
		CreatedTime:  millis(k.CreatedAt),
		Expires:      millis(k.ExpiresAt),
		Description:  k.Description,
	}
}

// authModule handles login and logout.
type authModule struct{ h *Handler }

func (authModule) Prefix() string { return "/auth" }

func (m authModule) Routes(r chi.Router) {
	r.Method(http.MethodPost, "/login", answer(http.StatusNotAcceptable, m.h.handleLogin))
	r.Method(http.MethodPost, "/logout", api.HandlerFunc(m.h.handleLogout))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) error {
	body := api.ParsedBody(r)
	token, err := h.auth.Login(body.String("account"), body.String("password"))
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  h.clock().Add(h.sessionTTL),
	})
	return api.WriteJSON(w, http.StatusOK, loginResponse{
		Status:  "OK",
		Results: map[string]string{"tokens": token},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, _ *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	return api.WriteText(w, http.StatusOK, "ok")
}

// accountModule exposes the signed-in account.
type accountModule struct{ h *Handler }

func (accountModule) Prefix() string { return "/account" }

func (m accountModule) Routes(r chi.Router) {
	r.Use(m.h.requireAuth)
	r.Method(http.MethodGet, "/", answer(http.StatusNotAcceptable, m.h.handleAccount))
}

func (h *Handler) handleAccount(w http.ResponseWriter, r *http.Request) error {
	user, err := h.auth.Account(identityFrom(r).UserID)
	if err != nil {
		return err
	}
	return api.WriteJSON(w, http.StatusOK, map[string]accountInfo{
		"account": {Email: user.Email, Name: user.Name, LinkedProviders: []string{}},
	})
}

// usersModule handles registration and password changes.
type usersModule struct{ h *Handler }

func (usersModule) Prefix() string { return "/users" }

func (m usersModule) Routes(r chi.Router) {
	r.Method(http.MethodPost, "/", answer(http.StatusNotAcceptable, m.h.handleRegister))
	r.Method(http.MethodGet, "/exists", api.HandlerFunc(m.h.handleUserExists))
	r.With(m.h.requireAuth).Method(http.MethodPatch, "/password", answer(http.StatusNotAcceptable, m.h.handleChangePassword))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) error {
	body := api.ParsedBody(r)
	if _, err := h.auth.Register(body.String("email"), body.String("password")); err != nil {
		return err
	}
	return api.WriteJSON(w, http.StatusOK, statusResponse{Status: "OK"})
}

func (h *Handler) handleUserExists(w http.ResponseWriter, r *http.Request) error {
	email := r.URL.Query().Get("email")
	if email == "" {
		return apperror.New("please input email")
	}
	return api.WriteJSON(w, http.StatusOK, existsResponse{Status: "OK", Exists: h.auth.Exists(email)})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) error {
	body := api.ParsedBody(r)
	if err := h.auth.ChangePassword(identityFrom(r).UserID, body.String("oldPassword"), body.String("newPassword")); err != nil {
		return err
	}
	return api.WriteJSON(w, http.StatusOK, statusResponse{Status: "OK"})
}

// accessKeysModule manages access keys of the signed-in account.
type accessKeysModule struct{ h *Handler }

func (accessKeysModule) Prefix() string { return "/accessKeys" }

func (m accessKeysModule) Routes(r chi.Router) {
	r.Use(m.h.requireAuth)
	r.Method(http.MethodGet, "/", api.HandlerFunc(m.h.handleListAccessKeys))
	r.Method(http.MethodPost, "/", answer(http.StatusNotAcceptable, m.h.handleCreateAccessKey))
	r.Method(http.MethodPatch, "/{name}", answer(http.StatusNotAcceptable, m.h.handlePatchAccessKey))
	r.Method(http.MethodDelete, "/{name}", answer(http.StatusNotAcceptable, m.h.handleDeleteAccessKey))
}

func (h *Handler) handleListAccessKeys(w http.ResponseWriter, r *http.Request) error {
	keys := h.auth.ListAccessKeys(identityFrom(r).UserID)
	out := make([]accessKeyInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, newAccessKeyInfo(k, false))
	}
	return api.WriteJSON(w, http.StatusOK, map[string][]accessKeyInfo{"accessKeys": out})
}

// ttlFromBody reads a ttl given in milliseconds.
func ttlFromBody(body api.Body) time.Duration {
	ms, ok := body.Int64("ttl")
	if !ok || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func (h *Handler) handleCreateAccessKey(w http.ResponseWriter, r *http.Request) error {
	body := api.ParsedBody(r)
	identity := identityFrom(r)
	createdBy := body.String("createdBy")
	if createdBy == "" {
		createdBy = identity.Email
	}

	key, err := h.auth.CreateAccessKey(identity.UserID, auth.AccessKeyInput{
		CreatedBy:    createdBy,
		FriendlyName: body.String("friendlyName"),
		Description:  body.String("description"),
		TTL:          ttlFromBody(body),
	})
	if err != nil {
		return err
	}
	return api.WriteJSON(w, http.StatusOK, map[string]accessKeyInfo{"accessKey": newAccessKeyInfo(key, true)})
}

func (h *Handler) handlePatchAccessKey(w http.ResponseWriter, r *http.Request) error {
	body := api.ParsedBody(r)
	key, err := h.auth.PatchAccessKey(identityFrom(r).UserID, chi.URLParam(r, "name"), body.String("friendlyName"), ttlFromBody(body))
	if err != nil {
		return err
	}
	return api.WriteJSON(w, http.StatusOK, map[string]accessKeyInfo{"accessKey": newAccessKeyInfo(key, false)})
}

func (h *Handler) handleDeleteAccessKey(w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "name")
	if err := h.auth.DeleteAccessKey(identityFrom(r).UserID, name); err != nil {
		return err
	}
	return api.WriteJSON(w, http.StatusOK, map[string]string{"friendlyName": name})
}
