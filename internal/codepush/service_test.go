package codepush

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/codepush-server/internal/apperror"
	"github.com/eugenenazirov/codepush-server/internal/storage"
)

const owner = "user-1"

func newTestService(t *testing.T) *Service {
	t.Helper()

	clock := func() time.Time { return time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC) }
	blobs := storage.NewLocalBlobs(t.TempDir())
	return NewService(storage.NewMemoryStore(), blobs, zaptest.NewLogger(t), WithClock(clock))
}

func createApp(t *testing.T, svc *Service) map[string]storage.Deployment {
	t.Helper()

	_, deployments, err := svc.CreateApp(owner, "demo", "iOS", "React-Native")
	require.NoError(t, err)
	byName := make(map[string]storage.Deployment, len(deployments))
	for _, d := range deployments {
		byName[d.Name] = d
	}
	return byName
}

func release(t *testing.T, svc *Service, version, content string, mandatory bool) storage.Package {
	t.Helper()

	pkg, err := svc.Release(context.Background(), owner, "demo", "Production",
		ReleaseInput{AppVersion: version, IsMandatory: mandatory, ReleasedBy: "dev@example.com"},
		strings.NewReader(content))
	require.NoError(t, err)
	return pkg
}

func assertAppError(t *testing.T, err error, status int) {
	t.Helper()

	require.Error(t, err)
	appErr := apperror.From(err)
	assert.Equal(t, apperror.KindApplication, appErr.Kind, "expected application error, got %v", err)
	assert.Equal(t, status, appErr.Status)
}

func TestCreateAppWithDefaultDeployments(t *testing.T) {
	svc := newTestService(t)
	deployments := createApp(t, svc)

	require.Len(t, deployments, 2)
	assert.Len(t, deployments["Staging"].Key, 40)
	assert.NotEqual(t, deployments["Staging"].Key, deployments["Production"].Key)

	_, _, err := svc.CreateApp(owner, "demo", "", "")
	assertAppError(t, err, 0)

	_, _, err = svc.CreateApp(owner, " ", "", "")
	assertAppError(t, err, 0)

	apps := svc.ListApps(owner)
	require.Len(t, apps, 1)
	assert.Equal(t, "iOS", apps[0].OS)
}

func TestDeploymentsManagement(t *testing.T) {
	svc := newTestService(t)
	createApp(t, svc)

	_, err := svc.AddDeployment(owner, "demo", "Beta")
	require.NoError(t, err)
	_, err = svc.AddDeployment(owner, "demo", "beta")
	assertAppError(t, err, 0)
	_, err = svc.AddDeployment(owner, "missing", "Beta")
	assertAppError(t, err, http.StatusNotFound)

	release(t, svc, "1.0.0", "bundle-1", false)

	list, err := svc.ListDeployments(owner, "demo")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Nil(t, list[0].Package)
	require.NotNil(t, list[1].Package)
	assert.Equal(t, "v1", list[1].Package.Label)

	require.NoError(t, svc.DeleteApp(owner, "demo"))
	assertAppError(t, svc.DeleteApp(owner, "demo"), http.StatusNotFound)
}

func TestReleaseRejectsIdenticalPackage(t *testing.T) {
	svc := newTestService(t)
	createApp(t, svc)

	pkg := release(t, svc, "1.0.0", "bundle-1", false)
	assert.Equal(t, "v1", pkg.Label)
	assert.Equal(t, int64(len("bundle-1")), pkg.Size)

	_, err := svc.Release(context.Background(), owner, "demo", "Production", ReleaseInput{AppVersion: "1.0.0"}, strings.NewReader("bundle-1"))
	assertAppError(t, err, 0)

	_, err = svc.Release(context.Background(), owner, "demo", "Production", ReleaseInput{}, strings.NewReader("bundle-2"))
	assertAppError(t, err, 0)

	_, err = svc.Release(context.Background(), owner, "demo", "Nope", ReleaseInput{AppVersion: "1.0.0"}, strings.NewReader("bundle-2"))
	assertAppError(t, err, http.StatusNotFound)
}

func TestReleaseWithoutBlobStore(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), nil, zaptest.NewLogger(t))
	_, _, err := svc.CreateApp(owner, "demo", "", "")
	require.NoError(t, err)

	_, err = svc.Release(context.Background(), owner, "demo", "Production", ReleaseInput{AppVersion: "1.0.0"}, strings.NewReader("x"))
	require.Error(t, err)
	appErr := apperror.From(err)
	assert.Equal(t, apperror.KindSystem, appErr.Kind)
	assert.Equal(t, http.StatusNotImplemented, appErr.Status)
}

func TestUpdateCheck(t *testing.T) {
	svc := newTestService(t)
	deployments := createApp(t, svc)
	key := deployments["Production"].Key

	info, err := svc.UpdateCheck(UpdateCheckRequest{DeploymentKey: key, AppVersion: "1.0.0"})
	require.NoError(t, err)
	assert.False(t, info.IsAvailable, "no releases yet")

	first := release(t, svc, "1.0.0", "bundle-1", true)
	second := release(t, svc, "1.0.0", "bundle-2", false)

	info, err = svc.UpdateCheck(UpdateCheckRequest{DeploymentKey: key, AppVersion: "1.0"})
	require.NoError(t, err)
	assert.True(t, info.IsAvailable)
	assert.Equal(t, second.Label, info.Label)
	assert.Equal(t, second.Hash, info.PackageHash)
	assert.Equal(t, second.BlobKey, info.BlobKey)
	assert.True(t, info.IsMandatory, "client skipped a mandatory release")

	info, err = svc.UpdateCheck(UpdateCheckRequest{DeploymentKey: key, AppVersion: "1.0.0", Label: first.Label, PackageHash: first.Hash})
	require.NoError(t, err)
	assert.True(t, info.IsAvailable)
	assert.False(t, info.IsMandatory, "mandatory release already installed")

	info, err = svc.UpdateCheck(UpdateCheckRequest{DeploymentKey: key, AppVersion: "1.0.0", PackageHash: second.Hash})
	require.NoError(t, err)
	assert.False(t, info.IsAvailable, "client is up to date")

	info, err = svc.UpdateCheck(UpdateCheckRequest{DeploymentKey: key, AppVersion: "0.9.0", Label: "v1"})
	require.NoError(t, err)
	assert.False(t, info.IsAvailable)
	assert.False(t, info.ShouldRunBinaryVersion, "binary is older than every release")
	assert.True(t, info.UpdateAppVersion)

	info, err = svc.UpdateCheck(UpdateCheckRequest{DeploymentKey: key, AppVersion: "1.1.0"})
	require.NoError(t, err)
	assert.False(t, info.IsAvailable)
	assert.True(t, info.ShouldRunBinaryVersion, "binary is newer than every release")
	assert.False(t, info.UpdateAppVersion)

	_, err = svc.UpdateCheck(UpdateCheckRequest{DeploymentKey: "unknown", AppVersion: "1.0.0"})
	assertAppError(t, err, http.StatusNotFound)

	_, err = svc.UpdateCheck(UpdateCheckRequest{DeploymentKey: key})
	assertAppError(t, err, 0)
}

func TestUpdateCheckSkipsDisabledAndWildcard(t *testing.T) {
	svc := newTestService(t)
	deployments := createApp(t, svc)
	key := deployments["Production"].Key

	wildcard := release(t, svc, "*", "bundle-any", false)
	_, err := svc.Release(context.Background(), owner, "demo", "Production",
		ReleaseInput{AppVersion: "2.0.0", IsDisabled: true}, strings.NewReader("bundle-disabled"))
	require.NoError(t, err)

	info, err := svc.UpdateCheck(UpdateCheckRequest{DeploymentKey: key, AppVersion: "2.0.0"})
	require.NoError(t, err)
	assert.True(t, info.IsAvailable)
	assert.Equal(t, wildcard.Label, info.Label)
}

func TestRollback(t *testing.T) {
	svc := newTestService(t)
	createApp(t, svc)

	_, err := svc.Rollback(owner, "demo", "Production", "", "dev")
	assertAppError(t, err, 0)

	first := release(t, svc, "1.0.0", "bundle-1", false)
	release(t, svc, "1.0.0", "bundle-2", false)

	pkg, err := svc.Rollback(owner, "demo", "Production", "", "dev")
	require.NoError(t, err)
	assert.Equal(t, "v3", pkg.Label)
	assert.Equal(t, first.Hash, pkg.Hash)
	assert.Equal(t, "v1", pkg.OriginLabel)
	assert.Equal(t, "Rollback", pkg.ReleaseType)

	_, err = svc.Rollback(owner, "demo", "Production", "v1", "dev")
	assertAppError(t, err, 0)

	_, err = svc.Rollback(owner, "demo", "Production", "v42", "dev")
	assertAppError(t, err, http.StatusNotFound)

	history, err := svc.History(owner, "demo", "Production")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestReports(t *testing.T) {
	svc := newTestService(t)
	deployments := createApp(t, svc)
	key := deployments["Production"].Key

	release(t, svc, "1.0.0", "bundle-1", false)
	release(t, svc, "1.0.0", "bundle-2", false)

	require.NoError(t, svc.ReportDownload(key, "v2"))
	require.NoError(t, svc.ReportDownload(key, "v-unknown"))
	require.NoError(t, svc.ReportDeploy(DeployReport{DeploymentKey: key, Label: "v1", Status: StatusDeploymentSucceeded}))
	require.NoError(t, svc.ReportDeploy(DeployReport{DeploymentKey: key, Label: "v2", Status: StatusDeploymentSucceeded, PreviousLabelOrAppVersion: "v1"}))
	require.NoError(t, svc.ReportDeploy(DeployReport{DeploymentKey: key, Label: "v2", Status: StatusDeploymentFailed}))

	assertAppError(t, svc.ReportDeploy(DeployReport{DeploymentKey: key, Label: "v2", Status: "Bogus"}), 0)
	assertAppError(t, svc.ReportDownload("unknown", "v1"), http.StatusNotFound)

	history, err := svc.History(owner, "demo", "Production")
	require.NoError(t, err)
	assert.Equal(t, storage.PackageMetrics{Installed: 1, Active: 0}, history[0].Metrics)
	assert.Equal(t, storage.PackageMetrics{Downloaded: 1, Installed: 1, Active: 1, Failed: 1}, history[1].Metrics)
}

func TestCompareVersions(t *testing.T) {
	testCases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0", 0},
		{"1.2.0", "1.10.0", -1},
		{"v2.0", "1.9.9", 1},
		{"1.0.0-beta", "1.0.0-alpha", 1},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, compareVersions(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
	assert.True(t, matchesVersion("*", "3.1.4"))
	assert.False(t, matchesVersion("1.0.0", "1.0.1"))
}
