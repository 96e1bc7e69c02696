package codepush

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/codepush-server/internal/apperror"
	"github.com/eugenenazirov/codepush-server/internal/auth"
	"github.com/eugenenazirov/codepush-server/internal/storage"
)

const deploymentKeyBytes = 30

// DefaultDeployments are created together with every app.
var DefaultDeployments = []string{"Staging", "Production"}

// Service implements app management and update distribution.
type Service struct {
	store  *storage.MemoryStore
	blobs  storage.BlobStore
	logger *zap.Logger
	clock  func() time.Time
}

// ServiceOption configures Service behaviour.
type ServiceOption func(*Service)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService constructs a Service. blobs may be nil when no package storage
// backend is configured; releases then fail.
func NewService(store *storage.MemoryStore, blobs storage.BlobStore, logger *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		blobs:  blobs,
		logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateApp registers an app with the default deployments.
func (s *Service) CreateApp(ownerID, name, os, platform string) (storage.App, []storage.Deployment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.App{}, nil, apperror.New("app name can not be empty")
	}

	now := s.clock()
	app := storage.App{Name: name, OwnerID: ownerID, OS: os, Platform: platform, CreatedAt: now}
	deployments := make([]storage.Deployment, 0, len(DefaultDeployments))
	for _, depName := range DefaultDeployments {
		d, err := s.newDeployment(ownerID, name, depName)
		if err != nil {
			return storage.App{}, nil, err
		}
		deployments = append(deployments, d)
	}

	if err := s.store.CreateApp(app, deployments); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return storage.App{}, nil, apperror.Newf("%s Exist!", name)
		}
		return storage.App{}, nil, fmt.Errorf("create app: %w", err)
	}

	s.logger.Info("app created", zap.String("app", name), zap.String("owner_id", ownerID))
	return app, deployments, nil
}

// ListApps returns the apps owned by ownerID.
func (s *Service) ListApps(ownerID string) []storage.App {
	return s.store.ListApps(ownerID)
}

// DeleteApp removes an app and its deployments.
func (s *Service) DeleteApp(ownerID, name string) error {
	if err := s.store.DeleteApp(ownerID, name); err != nil {
		return appNotFound(err, name)
	}
	return nil
}

// ListDeployments returns the deployments of an app with their current release.
func (s *Service) ListDeployments(ownerID, appName string) ([]Deployment, error) {
	deployments, err := s.store.Deployments(ownerID, appName)
	if err != nil {
		return nil, appNotFound(err, appName)
	}

	out := make([]Deployment, 0, len(deployments))
	for _, d := range deployments {
		history, err := s.store.History(d.Key)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		item := Deployment{Deployment: d}
		if n := len(history); n > 0 {
			current := history[n-1]
			item.Package = &current
		}
		out = append(out, item)
	}
	return out, nil
}

// AddDeployment creates a deployment on an existing app.
func (s *Service) AddDeployment(ownerID, appName, name string) (storage.Deployment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Deployment{}, apperror.New("deployment name can not be empty")
	}
	d, err := s.newDeployment(ownerID, appName, name)
	if err != nil {
		return storage.Deployment{}, err
	}
	if err := s.store.AddDeployment(ownerID, appName, d); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return storage.Deployment{}, apperror.Newf("Deployment %s already exists.", name)
		default:
			return storage.Deployment{}, appNotFound(err, appName)
		}
	}
	return d, nil
}

// History returns the release history of a deployment, oldest first.
func (s *Service) History(ownerID, appName, deploymentName string) ([]storage.Package, error) {
	d, err := s.deployment(ownerID, appName, deploymentName)
	if err != nil {
		return nil, err
	}
	history, err := s.store.History(d.Key)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return history, nil
}

// Release stores bundle and appends it to the deployment history.
func (s *Service) Release(ctx context.Context, ownerID, appName, deploymentName string, in ReleaseInput, bundle io.Reader) (storage.Package, error) {
	if strings.TrimSpace(in.AppVersion) == "" {
		return storage.Package{}, apperror.New("appVersion can not be empty")
	}
	if s.blobs == nil {
		return storage.Package{}, apperror.Systemf(http.StatusNotImplemented, "package storage is not configured")
	}

	d, err := s.deployment(ownerID, appName, deploymentName)
	if err != nil {
		return storage.Package{}, err
	}

	blob, err := s.blobs.Put(ctx, bundle)
	if err != nil {
		return storage.Package{}, fmt.Errorf("store package: %w", err)
	}

	pkg, err := s.store.AppendPackage(d.Key, storage.Package{
		AppVersion:  strings.TrimSpace(in.AppVersion),
		Hash:        blob.Hash,
		BlobKey:     blob.Key,
		Size:        blob.Size,
		Description: in.Description,
		IsMandatory: in.IsMandatory,
		IsDisabled:  in.IsDisabled,
		ReleasedBy:  in.ReleasedBy,
		ReleaseType: "Upload",
		ReleasedAt:  s.clock(),
	})
	if errors.Is(err, storage.ErrSameAsCurrent) {
		return storage.Package{}, apperror.New("The uploaded package is identical to the contents of the specified deployment's current release.")
	}
	if err != nil {
		return storage.Package{}, fmt.Errorf("append package: %w", err)
	}

	s.logger.Info("package released",
		zap.String("app", appName),
		zap.String("deployment", d.Name),
		zap.String("label", pkg.Label),
		zap.Int64("size", pkg.Size),
	)
	return pkg, nil
}

// Rollback re-releases an earlier package as a new label. An empty label
// selects the release preceding the current one.
func (s *Service) Rollback(ownerID, appName, deploymentName, label, releasedBy string) (storage.Package, error) {
	d, err := s.deployment(ownerID, appName, deploymentName)
	if err != nil {
		return storage.Package{}, err
	}
	history, err := s.store.History(d.Key)
	if err != nil {
		return storage.Package{}, fmt.Errorf("load history: %w", err)
	}
	if len(history) < 2 {
		return storage.Package{}, apperror.New("Cannot perform rollback because there are no releases on this deployment.")
	}

	current := history[len(history)-1]
	target := history[len(history)-2]
	if label != "" {
		found := false
		for _, p := range history {
			if p.Label == label {
				target, found = p, true
				break
			}
		}
		if !found {
			return storage.Package{}, apperror.NotFound(fmt.Sprintf("label %s does not exist", label))
		}
	}
	if target.Hash == current.Hash {
		return storage.Package{}, apperror.New("The rollback target is identical to the current release.")
	}

	target.OriginLabel = target.Label
	target.ReleaseType = "Rollback"
	target.ReleasedBy = releasedBy
	target.ReleasedAt = s.clock()
	target.Metrics = storage.PackageMetrics{}
	pkg, err := s.store.AppendPackage(d.Key, target)
	if errors.Is(err, storage.ErrSameAsCurrent) {
		return storage.Package{}, apperror.New("The rollback target is identical to the current release.")
	}
	if err != nil {
		return storage.Package{}, fmt.Errorf("append package: %w", err)
	}
	return pkg, nil
}

// UpdateCheck resolves the newest enabled release for a client.
func (s *Service) UpdateCheck(req UpdateCheckRequest) (UpdateInfo, error) {
	if req.DeploymentKey == "" || req.AppVersion == "" {
		return UpdateInfo{}, apperror.New("please input deploymentKey and appVersion")
	}
	d, err := s.store.DeploymentByKey(req.DeploymentKey)
	if err != nil {
		return UpdateInfo{}, deploymentKeyNotFound(err)
	}
	history, err := s.store.History(d.Key)
	if err != nil {
		return UpdateInfo{}, fmt.Errorf("load history: %w", err)
	}

	info := UpdateInfo{AppVersion: req.AppVersion}

	candidate := -1
	newestVersion := ""
	for i := len(history) - 1; i >= 0; i-- {
		p := history[i]
		if p.IsDisabled {
			continue
		}
		if newestVersion == "" || compareVersions(p.AppVersion, newestVersion) > 0 {
			newestVersion = p.AppVersion
		}
		if candidate < 0 && matchesVersion(p.AppVersion, req.AppVersion) {
			candidate = i
		}
	}

	if candidate < 0 {
		info.ShouldRunBinaryVersion = newestVersion == "" || compareVersions(req.AppVersion, newestVersion) > 0
		info.UpdateAppVersion = newestVersion != "" && compareVersions(newestVersion, req.AppVersion) > 0
		return info, nil
	}

	pkg := history[candidate]
	if pkg.Hash == req.PackageHash {
		return info, nil
	}

	info.IsAvailable = true
	info.IsMandatory = mandatorySince(history, req.Label, candidate, req.AppVersion)
	info.AppVersion = pkg.AppVersion
	info.Description = pkg.Description
	info.Label = pkg.Label
	info.PackageHash = pkg.Hash
	info.PackageSize = pkg.Size
	info.BlobKey = pkg.BlobKey
	return info, nil
}

// ReportDownload counts a package download.
func (s *Service) ReportDownload(deploymentKey, label string) error {
	if _, err := s.store.DeploymentByKey(deploymentKey); err != nil {
		return deploymentKeyNotFound(err)
	}
	if err := s.store.UpdateMetrics(deploymentKey, label, func(m *storage.PackageMetrics) {
		m.Downloaded++
	}); err != nil {
		s.logger.Debug("download report for unknown label", zap.String("label", label), zap.Error(err))
	}
	return nil
}

// ReportDeploy counts an install or failure. A successful install moves the
// active count from the previously running label on the same deployment.
func (s *Service) ReportDeploy(report DeployReport) error {
	if _, err := s.store.DeploymentByKey(report.DeploymentKey); err != nil {
		return deploymentKeyNotFound(err)
	}

	var apply func(*storage.PackageMetrics)
	switch report.Status {
	case StatusDeploymentSucceeded:
		apply = func(m *storage.PackageMetrics) {
			m.Installed++
			m.Active++
		}
	case StatusDeploymentFailed:
		apply = func(m *storage.PackageMetrics) {
			m.Failed++
		}
	default:
		return apperror.Newf("invalid deployment status %q", report.Status)
	}

	if err := s.store.UpdateMetrics(report.DeploymentKey, report.Label, apply); err != nil {
		s.logger.Debug("deploy report for unknown label", zap.String("label", report.Label), zap.Error(err))
		return nil
	}

	if report.Status == StatusDeploymentSucceeded && report.PreviousLabelOrAppVersion != "" {
		previousKey := report.PreviousDeploymentKey
		if previousKey == "" {
			previousKey = report.DeploymentKey
		}
		_ = s.store.UpdateMetrics(previousKey, report.PreviousLabelOrAppVersion, func(m *storage.PackageMetrics) {
			if m.Active > 0 {
				m.Active--
			}
		})
	}
	return nil
}

func (s *Service) deployment(ownerID, appName, deploymentName string) (storage.Deployment, error) {
	if _, err := s.store.App(ownerID, appName); err != nil {
		return storage.Deployment{}, appNotFound(err, appName)
	}
	d, err := s.store.Deployment(ownerID, appName, deploymentName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Deployment{}, apperror.NotFound(fmt.Sprintf("Deployment %s does not exist.", deploymentName))
		}
		return storage.Deployment{}, fmt.Errorf("load deployment: %w", err)
	}
	return d, nil
}

func (s *Service) newDeployment(ownerID, appName, name string) (storage.Deployment, error) {
	key, err := auth.RandomKey(deploymentKeyBytes)
	if err != nil {
		return storage.Deployment{}, fmt.Errorf("generate deployment key: %w", err)
	}
	return storage.Deployment{
		Name:      name,
		Key:       key,
		AppName:   appName,
		OwnerID:   ownerID,
		CreatedAt: s.clock(),
	}, nil
}

func appNotFound(err error, appName string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperror.NotFound(fmt.Sprintf("App %s does not exist.", appName))
	}
	return fmt.Errorf("load app: %w", err)
}

func deploymentKeyNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperror.NotFound("Not found deployment, check deployment key is right.")
	}
	return fmt.Errorf("load deployment: %w", err)
}

// mandatorySince reports whether any enabled release after the client's
// current label, up to and including the candidate, is mandatory.
func mandatorySince(history []storage.Package, clientLabel string, candidate int, appVersion string) bool {
	start := 0
	for i, p := range history {
		if p.Label == clientLabel {
			start = i + 1
			break
		}
	}
	for i := start; i <= candidate; i++ {
		p := history[i]
		if p.IsMandatory && !p.IsDisabled && matchesVersion(p.AppVersion, appVersion) {
			return true
		}
	}
	return false
}
