package codepush

import "github.com/eugenenazirov/codepush-server/internal/storage"

// Deployment status values reported by clients.
const (
	StatusDeploymentSucceeded = "DeploymentSucceeded"
	StatusDeploymentFailed    = "DeploymentFailed"
)

// ReleaseInput describes a bundle being released to a deployment.
type ReleaseInput struct {
	AppVersion  string
	Description string
	IsMandatory bool
	IsDisabled  bool
	ReleasedBy  string
}

// UpdateCheckRequest is the client view sent when polling for updates.
type UpdateCheckRequest struct {
	DeploymentKey string
	AppVersion    string
	PackageHash   string
	Label         string
	ClientID      string
}

// UpdateInfo is the answer to an update check. BlobKey is empty unless
// IsAvailable is set.
type UpdateInfo struct {
	IsAvailable            bool
	IsMandatory            bool
	ShouldRunBinaryVersion bool
	UpdateAppVersion       bool
	AppVersion             string
	Description            string
	Label                  string
	PackageHash            string
	PackageSize            int64
	BlobKey                string
}

// DeployReport is sent by clients after applying (or failing to apply) a package.
type DeployReport struct {
	DeploymentKey             string
	Label                     string
	Status                    string
	PreviousLabelOrAppVersion string
	PreviousDeploymentKey     string
	ClientID                  string
}

// Deployment pairs a deployment with its current release.
type Deployment struct {
	storage.Deployment
	Package *storage.Package
}
