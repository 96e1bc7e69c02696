package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eugenenazirov/codepush-server/internal/api"
	"github.com/eugenenazirov/codepush-server/internal/codepush"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type legacyUpdateInfo struct {
	DownloadURL            string `json:"downloadURL"`
	Description            string `json:"description"`
	IsAvailable            bool   `json:"isAvailable"`
	IsMandatory            bool   `json:"isMandatory"`
	AppVersion             string `json:"appVersion"`
	PackageHash            string `json:"packageHash"`
	Label                  string `json:"label"`
	PackageSize            int64  `json:"packageSize"`
	UpdateAppVersion       bool   `json:"updateAppVersion"`
	ShouldRunBinaryVersion bool   `json:"shouldRunBinaryVersion"`
}

type legacyUpdateResponse struct {
	UpdateInfo legacyUpdateInfo `json:"updateInfo"`
}

type publicUpdateInfo struct {
	DownloadURL            string `json:"download_url"`
	Description            string `json:"description"`
	IsAvailable            bool   `json:"is_available"`
	IsDisabled             bool   `json:"is_disabled"`
	IsMandatory            bool   `json:"is_mandatory"`
	TargetBinaryRange      string `json:"target_binary_range"`
	PackageHash            string `json:"package_hash"`
	Label                  string `json:"label"`
	PackageSize            int64  `json:"package_size"`
	UpdateAppVersion       bool   `json:"update_app_version"`
	ShouldRunBinaryVersion bool   `json:"should_run_binary_version"`
}

type publicUpdateResponse struct {
	UpdateInfo publicUpdateInfo `json:"update_info"`
}

// indexModule serves the banner, the health probe and the legacy camelCase
// client endpoints.
type indexModule struct{ h *Handler }

func (indexModule) Prefix() string { return "/" }

func (m indexModule) Routes(r chi.Router) {
	r.Method(http.MethodGet, "/", api.HandlerFunc(m.h.handleBanner))
	r.Method(http.MethodGet, "/health", api.HandlerFunc(m.h.handleHealth))
	r.With(m.h.requireAuth).Method(http.MethodGet, "/authenticated", api.HandlerFunc(m.h.handleAuthenticated))
	r.Method(http.MethodGet, "/updateCheck", answer(http.StatusNotFound, m.h.handleLegacyUpdateCheck))
	r.Method(http.MethodPost, "/reportStatus/download", answer(http.StatusNotFound, m.h.handleLegacyReportDownload))
	r.Method(http.MethodPost, "/reportStatus/deploy", answer(http.StatusNotFound, m.h.handleLegacyReportDeploy))
}

// publicModule serves the versioned snake_case client endpoints.
type publicModule struct{ h *Handler }

func (publicModule) Prefix() string { return "/v0.1/public/codepush" }

func (m publicModule) Routes(r chi.Router) {
	r.Method(http.MethodGet, "/update_check", answer(http.StatusNotFound, m.h.handlePublicUpdateCheck))
	r.Method(http.MethodPost, "/report_status/download", answer(http.StatusNotFound, m.h.handlePublicReportDownload))
	r.Method(http.MethodPost, "/report_status/deploy", answer(http.StatusNotFound, m.h.handlePublicReportDeploy))
}

func (h *Handler) handleBanner(w http.ResponseWriter, _ *http.Request) error {
	return api.WriteText(w, http.StatusOK, "CodePush Server")
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	return api.WriteJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	})
}

func (h *Handler) handleAuthenticated(w http.ResponseWriter, _ *http.Request) error {
	return api.WriteJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

func (h *Handler) handleLegacyUpdateCheck(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	info, err := h.codepush.UpdateCheck(codepush.UpdateCheckRequest{
		DeploymentKey: q.Get("deploymentKey"),
		AppVersion:    q.Get("appVersion"),
		PackageHash:   q.Get("packageHash"),
		Label:         q.Get("label"),
		ClientID:      q.Get("clientUniqueId"),
	})
	if err != nil {
		return err
	}

	resp := legacyUpdateInfo{
		Description:            info.Description,
		IsAvailable:            info.IsAvailable,
		IsMandatory:            info.IsMandatory,
		AppVersion:             info.AppVersion,
		PackageHash:            info.PackageHash,
		Label:                  info.Label,
		PackageSize:            info.PackageSize,
		UpdateAppVersion:       info.UpdateAppVersion,
		ShouldRunBinaryVersion: info.ShouldRunBinaryVersion,
	}
	if info.IsAvailable {
		resp.DownloadURL = h.packageURL(r, info.BlobKey)
	}
	return api.WriteJSON(w, http.StatusOK, legacyUpdateResponse{UpdateInfo: resp})
}

func (h *Handler) handlePublicUpdateCheck(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	info, err := h.codepush.UpdateCheck(codepush.UpdateCheckRequest{
		DeploymentKey: q.Get("deployment_key"),
		AppVersion:    q.Get("app_version"),
		PackageHash:   q.Get("package_hash"),
		Label:         q.Get("label"),
		ClientID:      q.Get("client_unique_id"),
	})
	if err != nil {
		return err
	}

	resp := publicUpdateInfo{
		Description:            info.Description,
		IsAvailable:            info.IsAvailable,
		IsMandatory:            info.IsMandatory,
		TargetBinaryRange:      info.AppVersion,
		PackageHash:            info.PackageHash,
		Label:                  info.Label,
		PackageSize:            info.PackageSize,
		UpdateAppVersion:       info.UpdateAppVersion,
		ShouldRunBinaryVersion: info.ShouldRunBinaryVersion,
	}
	if info.IsAvailable {
		resp.DownloadURL = h.packageURL(r, info.BlobKey)
	}
	return api.WriteJSON(w, http.StatusOK, publicUpdateResponse{UpdateInfo: resp})
}

func (h *Handler) handleLegacyReportDownload(w http.ResponseWriter, r *http.Request) error {
	body := api.ParsedBody(r)
	if err := h.codepush.ReportDownload(body.String("deploymentKey"), body.String("label")); err != nil {
		return err
	}
	return api.WriteText(w, http.StatusOK, "OK")
}

func (h *Handler) handlePublicReportDownload(w http.ResponseWriter, r *http.Request) error {
	body := api.ParsedBody(r)
	if err := h.codepush.ReportDownload(body.String("deployment_key"), body.String("label")); err != nil {
		return err
	}
	return api.WriteText(w, http.StatusOK, "OK")
}

func (h *Handler) handleLegacyReportDeploy(w http.ResponseWriter, r *http.Request) error {
	body := api.ParsedBody(r)
	if err := h.codepush.ReportDeploy(codepush.DeployReport{
		DeploymentKey:             body.String("deploymentKey"),
		Label:                     body.String("label"),
		Status:                    body.String("status"),
		PreviousLabelOrAppVersion: body.String("previousLabelOrAppVersion"),
		PreviousDeploymentKey:     body.String("previousDeploymentKey"),
		ClientID:                  body.String("clientUniqueId"),
	}); err != nil {
		return err
	}
	return api.WriteText(w, http.StatusOK, "OK")
}

func (h *Handler) handlePublicReportDeploy(w http.ResponseWriter, r *http.Request) error {
	body := api.ParsedBody(r)
	if err := h.codepush.ReportDeploy(codepush.DeployReport{
		DeploymentKey:             body.String("deployment_key"),
		Label:                     body.String("label"),
		Status:                    body.String("status"),
		PreviousLabelOrAppVersion: body.String("previous_label_or_app_version"),
		PreviousDeploymentKey:     body.String("previous_deployment_key"),
		ClientID:                  body.String("client_unique_id"),
	}); err != nil {
		return err
	}
	return api.WriteText(w, http.StatusOK, "OK")
}
