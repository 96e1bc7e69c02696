package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eugenenazirov/codepush-server/internal/api"
	"github.com/eugenenazirov/codepush-server/internal/apperror"
	"github.com/eugenenazirov/codepush-server/internal/codepush"
	"github.com/eugenenazirov/codepush-server/internal/storage"
)

const (
	packageField         = "package"
	multipartMemoryBytes = 32 << 20
)

type appInfo struct {
	Name        string   `json:"name"`
	OS          string   `json:"os,omitempty"`
	Platform    string   `json:"platform,omitempty"`
	Deployments []string `json:"deployments,omitempty"`
	CreatedTime int64    `json:"createdTime"`
}

type packageMetrics struct {
	Downloaded int64 `json:"downloaded"`
	Installed  int64 `json:"installed"`
	Failed     int64 `json:"failed"`
	Active     int64 `json:"active"`
}

type packageInfo struct {
	Label         string         `json:"label"`
	AppVersion    string         `json:"appVersion"`
	Description   string         `json:"description"`
	IsMandatory   bool           `json:"isMandatory"`
	IsDisabled    bool           `json:"isDisabled"`
	PackageHash   string         `json:"packageHash"`
	Size          int64          `json:"size"`
	ReleaseMethod string         `json:"releaseMethod"`
	OriginalLabel string         `json:"originalLabel,omitempty"`
	ReleasedBy    string         `json:"releasedBy"`
	UploadTime    int64          `json:"uploadTime"`
	Metrics       packageMetrics `json:"metrics"`
}

type deploymentInfo struct {
	Name        string       `json:"name"`
	Key         string       `json:"key"`
	CreatedTime int64        `json:"createdTime"`
	Package     *packageInfo `json:"package"`
}

func newPackageInfo(p storage.Package) packageInfo {
	return packageInfo{
		Label:         p.Label,
		AppVersion:    p.AppVersion,
		Description:   p.Description,
		IsMandatory:   p.IsMandatory,
		IsDisabled:    p.IsDisabled,
		PackageHash:   p.Hash,
		Size:          p.Size,
		ReleaseMethod: p.ReleaseType,
		OriginalLabel: p.OriginLabel,
		ReleasedBy:    p.ReleasedBy,
		UploadTime:    millis(p.ReleasedAt),
		Metrics: packageMetrics{
			Downloaded: p.Metrics.Downloaded,
			Installed:  p.Metrics.Installed,
			Failed:     p.Metrics.Failed,
			Active:     p.Metrics.Active,
		},
	}
}

func newDeploymentInfo(d storage.Deployment, p *storage.Package) deploymentInfo {
	info := deploymentInfo{Name: d.Name, Key: d.Key, CreatedTime: millis(d.CreatedAt)}
	if p != nil {
		pkg := newPackageInfo(*p)
		info.Package = &pkg
	}
	return info
}

// appsModule manages apps, deployments and releases.
type appsModule struct{ h *Handler }

func (appsModule) Prefix() string { return "/apps" }

func (m appsModule) Routes(r chi.Router) {
	h := m.h
	r.Use(h.requireAuth)
	r.Method(http.MethodGet, "/", api.HandlerFunc(h.handleListApps))
	r.Method(http.MethodPost, "/", answer(http.StatusNotAcceptable, h.handleCreateApp))
	r.Method(http.MethodDelete, "/{app}", answer(http.StatusNotAcceptable, h.handleDeleteApp))
	r.Route("/{app}/deployments", func(r chi.Router) {
		r.Method(http.MethodGet, "/", answer(http.StatusNotAcceptable, h.handleListDeployments))
		r.Method(http.MethodPost, "/", answer(http.StatusNotAcceptable, h.handleAddDeployment))
		r.Method(http.MethodGet, "/{deployment}/history", answer(http.StatusNotAcceptable, h.handleHistory))
		r.Method(http.MethodPost, "/{deployment}/release", answer(http.StatusNotAcceptable, h.handleRelease))
		r.Method(http.MethodPost, "/{deployment}/rollback", answer(http.StatusNotAcceptable, h.handleRollback))
		r.Method(http.MethodPost, "/{deployment}/rollback/{label}", answer(http.StatusNotAcceptable, h.handleRollback))
	})
}

func (h *Handler) handleListApps(w http.ResponseWriter, r *http.Request) error {
	ownerID := identityFrom(r).UserID
	apps := h.codepush.ListApps(ownerID)
	out := make([]appInfo, 0, len(apps))
	for _, app := range apps {
		info := appInfo{Name: app.Name, OS: app.OS, Platform: app.Platform, CreatedTime: millis(app.CreatedAt)}
		deployments, err := h.codepush.ListDeployments(ownerID, app.Name)
		if err != nil {
			return err
		}
		for _, d := range deployments {
			info.Deployments = append(info.Deployments, d.Name)
		}
		out = append(out, info)
	}
	return api.WriteJSON(w, http.StatusOK, map[string][]appInfo{"apps": out})
}

func (h *Handler) handleCreateApp(w http.ResponseWriter, r *http.Request) error {
	body := api.ParsedBody(r)
	app, deployments, err := h.codepush.CreateApp(identityFrom(r).UserID, body.String("name"), body.String("os"), body.String("platform"))
	if err != nil {
		return err
	}

	info := appInfo{Name: app.Name, OS: app.OS, Platform: app.Platform, CreatedTime: millis(app.CreatedAt)}
	for _, d := range deployments {
		info.Deployments = append(info.Deployments, d.Name)
	}
	return api.WriteJSON(w, http.StatusOK, map[string]appInfo{"app": info})
}

func (h *Handler) handleDeleteApp(w http.ResponseWriter, r *http.Request) error {
	if err := h.codepush.DeleteApp(identityFrom(r).UserID, chi.URLParam(r, "app")); err != nil {
		return err
	}
	return api.WriteText(w, http.StatusOK, "")
}

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) error {
	deployments, err := h.codepush.ListDeployments(identityFrom(r).UserID, chi.URLParam(r, "app"))
	if err != nil {
		return err
	}
	out := make([]deploymentInfo, 0, len(deployments))
	for _, d := range deployments {
		out = append(out, newDeploymentInfo(d.Deployment, d.Package))
	}
	return api.WriteJSON(w, http.StatusOK, map[string][]deploymentInfo{"deployments": out})
}

func (h *Handler) handleAddDeployment(w http.ResponseWriter, r *http.Request) error {
	body := api.ParsedBody(r)
	d, err := h.codepush.AddDeployment(identityFrom(r).UserID, chi.URLParam(r, "app"), body.String("name"))
	if err != nil {
		return err
	}
	return api.WriteJSON(w, http.StatusOK, map[string]deploymentInfo{"deployment": newDeploymentInfo(d, nil)})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) error {
	history, err := h.codepush.History(identityFrom(r).UserID, chi.URLParam(r, "app"), chi.URLParam(r, "deployment"))
	if err != nil {
		return err
	}
	out := make([]packageInfo, 0, len(history))
	for _, p := range history {
		out = append(out, newPackageInfo(p))
	}
	return api.WriteJSON(w, http.StatusOK, map[string][]packageInfo{"history": out})
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) error {
	tooLarge := apperror.Systemf(http.StatusRequestEntityTooLarge, "package exceeds %d bytes", h.maxUploadBytes)
	if r.ContentLength > h.maxUploadBytes {
		return tooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return tooLarge
		}
		return apperror.New("upload the bundle as multipart/form-data in the \"package\" field")
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, _, err := r.FormFile(packageField)
	if err != nil {
		return apperror.New("upload the bundle as multipart/form-data in the \"package\" field")
	}
	defer file.Close()

	identity := identityFrom(r)
	pkg, err := h.codepush.Release(r.Context(), identity.UserID, chi.URLParam(r, "app"), chi.URLParam(r, "deployment"), codepush.ReleaseInput{
		AppVersion:  r.FormValue("appVersion"),
		Description: r.FormValue("description"),
		IsMandatory: formBool(r.FormValue("isMandatory")),
		IsDisabled:  formBool(r.FormValue("isDisabled")),
		ReleasedBy:  identity.Email,
	}, file)
	if err != nil {
		return err
	}
	return api.WriteJSON(w, http.StatusOK, map[string]packageInfo{"package": newPackageInfo(pkg)})
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) error {
	identity := identityFrom(r)
	pkg, err := h.codepush.Rollback(identity.UserID, chi.URLParam(r, "app"), chi.URLParam(r, "deployment"), chi.URLParam(r, "label"), identity.Email)
	if err != nil {
		return err
	}
	return api.WriteJSON(w, http.StatusOK, map[string]packageInfo{"package": newPackageInfo(pkg)})
}

func formBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
