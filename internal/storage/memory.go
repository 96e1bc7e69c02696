package storage

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a record with the same identity already exists.
	ErrConflict = errors.New("record already exists")
	// ErrSameAsCurrent indicates a package whose hash equals the current release.
	ErrSameAsCurrent = errors.New("package is identical to the current release")
)

type appRecord struct {
	app         App
	deployments []string // deployment keys in creation order
}

type deploymentRecord struct {
	deployment Deployment
	history    []Package
}

// MemoryStore keeps accounts, apps and release history in memory and guards
// access with a RWMutex. Values handed out are copies.
type MemoryStore struct {
	mu sync.RWMutex

	users       map[string]User
	emails      map[string]string
	accessKeys  map[string]AccessKey
	apps        map[string]*appRecord
	deployments map[string]*deploymentRecord
}

// NewMemoryStore initialises an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]User),
		emails:      make(map[string]string),
		accessKeys:  make(map[string]AccessKey),
		apps:        make(map[string]*appRecord),
		deployments: make(map[string]*deploymentRecord),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func appKey(ownerID, name string) string {
	return ownerID + "\x00" + strings.ToLower(name)
}

// CreateUser stores u. Emails are unique case-insensitively.
func (s *MemoryStore) CreateUser(u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(u.Email)
	if _, ok := s.emails[key]; ok {
		return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
	}
	s.users[u.ID] = cloneUser(u)
	s.emails[key] = u.ID
	return nil
}

// UserByEmail looks a user up by email.
func (s *MemoryStore) UserByEmail(email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[emailKey(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

// UserByID looks a user up by id.
func (s *MemoryStore) UserByID(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return cloneUser(u), nil
}

// SetPasswordHash replaces the stored password hash of a user.
func (s *MemoryStore) SetPasswordHash(id string, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = slices.Clone(hash)
	s.users[id] = u
	return nil
}

// CreateAccessKey stores k. Friendly names are unique per user.
func (s *MemoryStore) CreateAccessKey(k AccessKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accessKeys[k.Token]; ok {
		return fmt.Errorf("access key: %w", ErrConflict)
	}
	for _, existing := range s.accessKeys {
		if existing.UserID == k.UserID && existing.FriendlyName == k.FriendlyName {
			return fmt.Errorf("access key %s: %w", k.FriendlyName, ErrConflict)
		}
	}
	s.accessKeys[k.Token] = k
	return nil
}

// AccessKeyByToken returns the access key with the given token.
func (s *MemoryStore) AccessKeyByToken(token string) (AccessKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.accessKeys[token]
	if !ok {
		return AccessKey{}, ErrNotFound
	}
	return k, nil
}

// ListAccessKeys returns the keys of a user ordered by creation time.
func (s *MemoryStore) ListAccessKeys(userID string) []AccessKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]AccessKey, 0)
	for _, k := range s.accessKeys {
		if k.UserID == userID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.Before(keys[j].CreatedAt)
	})
	return keys
}

// UpdateAccessKey applies fn to the key identified by its friendly name.
// Renaming onto an existing friendly name fails with ErrConflict.
func (s *MemoryStore) UpdateAccessKey(userID, friendlyName string, fn func(*AccessKey)) (AccessKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.findAccessKey(userID, friendlyName)
	if !ok {
		return AccessKey{}, ErrNotFound
	}
	updated := s.accessKeys[token]
	fn(&updated)
	if updated.FriendlyName != friendlyName {
		if _, taken := s.findAccessKey(userID, updated.FriendlyName); taken {
			return AccessKey{}, fmt.Errorf("access key %s: %w", updated.FriendlyName, ErrConflict)
		}
	}
	updated.Token = token
	updated.UserID = userID
	s.accessKeys[token] = updated
	return updated, nil
}

// DeleteAccessKey removes the key identified by its friendly name.
func (s *MemoryStore) DeleteAccessKey(userID, friendlyName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.findAccessKey(userID, friendlyName)
	if !ok {
		return ErrNotFound
	}
	delete(s.accessKeys, token)
	return nil
}

func (s *MemoryStore) findAccessKey(userID, friendlyName string) (string, bool) {
	for token, k := range s.accessKeys {
		if k.UserID == userID && k.FriendlyName == friendlyName {
			return token, true
		}
	}
	return "", false
}

// CreateApp stores app together with its initial deployments.
func (s *MemoryStore) CreateApp(app App, deployments []Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := appKey(app.OwnerID, app.Name)
	if _, ok := s.apps[key]; ok {
		return fmt.Errorf("app %s: %w", app.Name, ErrConflict)
	}
	for _, d := range deployments {
		if _, ok := s.deployments[d.Key]; ok {
			return fmt.Errorf("deployment key: %w", ErrConflict)
		}
	}

	rec := &appRecord{app: app}
	for _, d := range deployments {
		s.deployments[d.Key] = &deploymentRecord{deployment: d}
		rec.deployments = append(rec.deployments, d.Key)
	}
	s.apps[key] = rec
	return nil
}

// App returns an app owned by ownerID.
func (s *MemoryStore) App(ownerID, name string) (App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.apps[appKey(ownerID, name)]
	if !ok {
		return App{}, ErrNotFound
	}
	return rec.app, nil
}

// ListApps returns the apps of a user sorted by name.
func (s *MemoryStore) ListApps(ownerID string) []App {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apps := make([]App, 0)
	for _, rec := range s.apps {
		if rec.app.OwnerID == ownerID {
			apps = append(apps, rec.app)
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		return apps[i].Name < apps[j].Name
	})
	return apps
}

// DeleteApp removes an app and all of its deployments.
func (s *MemoryStore) DeleteApp(ownerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := appKey(ownerID, name)
	rec, ok := s.apps[key]
	if !ok {
		return ErrNotFound
	}
	for _, depKey := range rec.deployments {
		delete(s.deployments, depKey)
	}
	delete(s.apps, key)
	return nil
}

// AddDeployment appends a deployment to an existing app.
func (s *MemoryStore) AddDeployment(ownerID, appName string, d Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.apps[appKey(ownerID, appName)]
	if !ok {
		return ErrNotFound
	}
	for _, depKey := range rec.deployments {
		if strings.EqualFold(s.deployments[depKey].deployment.Name, d.Name) {
			return fmt.Errorf("deployment %s: %w", d.Name, ErrConflict)
		}
	}
	if _, ok := s.deployments[d.Key]; ok {
		return fmt.Errorf("deployment key: %w", ErrConflict)
	}
	s.deployments[d.Key] = &deploymentRecord{deployment: d}
	rec.deployments = append(rec.deployments, d.Key)
	return nil
}

// Deployments lists the deployments of an app in creation order.
func (s *MemoryStore) Deployments(ownerID, appName string) ([]Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.apps[appKey(ownerID, appName)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Deployment, 0, len(rec.deployments))
	for _, depKey := range rec.deployments {
		out = append(out, s.deployments[depKey].deployment)
	}
	return out, nil
}

// Deployment resolves a deployment by app and name.
func (s *MemoryStore) Deployment(ownerID, appName, name string) (Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.apps[appKey(ownerID, appName)]
	if !ok {
		return Deployment{}, ErrNotFound
	}
	for _, depKey := range rec.deployments {
		d := s.deployments[depKey].deployment
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return Deployment{}, ErrNotFound
}

// DeploymentByKey resolves a deployment by its deployment key.
func (s *MemoryStore) DeploymentByKey(key string) (Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.deployments[key]
	if !ok {
		return Deployment{}, ErrNotFound
	}
	return rec.deployment, nil
}

// AppendPackage adds pkg to the history of a deployment and assigns the next
// label (v1, v2, ...). A package with the same hash as the current release
// is rejected with ErrSameAsCurrent.
func (s *MemoryStore) AppendPackage(deploymentKey string, pkg Package) (Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.deployments[deploymentKey]
	if !ok {
		return Package{}, ErrNotFound
	}
	if n := len(rec.history); n > 0 && rec.history[n-1].Hash == pkg.Hash {
		return Package{}, ErrSameAsCurrent
	}
	pkg.Label = fmt.Sprintf("v%d", len(rec.history)+1)
	rec.history = append(rec.history, pkg)
	return pkg, nil
}

// History returns the release history of a deployment, oldest first.
func (s *MemoryStore) History(deploymentKey string) ([]Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.deployments[deploymentKey]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(rec.history), nil
}

// UpdateMetrics applies fn to the metrics of the package with label.
func (s *MemoryStore) UpdateMetrics(deploymentKey, label string, fn func(*PackageMetrics)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.deployments[deploymentKey]
	if !ok {
		return ErrNotFound
	}
	for i := range rec.history {
		if rec.history[i].Label == label {
			fn(&rec.history[i].Metrics)
			return nil
		}
	}
	return ErrNotFound
}

func cloneUser(u User) User {
	u.PasswordHash = slices.Clone(u.PasswordHash)
	return u
}
