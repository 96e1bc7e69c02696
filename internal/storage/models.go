package storage

import "time"

// User is a registered account.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time
}

// AccessKey authenticates CLI clients on behalf of a user.
type AccessKey struct {
	Token        string
	UserID       string
	FriendlyName string
	CreatedBy    string
	Description  string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the key is no longer usable at now.
func (k AccessKey) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && !now.Before(k.ExpiresAt)
}

// App is a client application owned by a user.
type App struct {
	Name      string
	OwnerID   string
	OS        string
	Platform  string
	CreatedAt time.Time
}

// Deployment is a release channel of an app, addressed by its key.
type Deployment struct {
	Name      string
	Key       string
	AppName   string
	OwnerID   string
	CreatedAt time.Time
}

// Package is one release in a deployment history.
type Package struct {
	Label       string
	AppVersion  string
	Hash        string
	BlobKey     string
	Size        int64
	Description string
	IsMandatory bool
	IsDisabled  bool
	ReleasedBy  string
	ReleaseType string
	OriginLabel string
	ReleasedAt  time.Time
	Metrics     PackageMetrics
}

// PackageMetrics counts client reports for a package.
type PackageMetrics struct {
	Downloaded int64
	Installed  int64
	Failed     int64
	Active     int64
}
