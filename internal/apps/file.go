package apps

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"staffgate.org/internal/obs"
)

type fileApp struct {
	ID                 string   `yaml:"app_id"`
	Name               string   `yaml:"name"`
	ClientSecretHash   string   `yaml:"client_secret_hash"`
	RedirectURI        string   `yaml:"redirect_uri"`
	AllowedDepartments []string `yaml:"allowed_departments"`
	MinLevel           int      `yaml:"min_level"`
}

type fileDoc struct {
	Apps []fileApp `yaml:"apps"`
}

// File is a Registry backed by a YAML file. The file is reloaded when its
// modification time changes, so operators can add an app without a restart.
type File struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	apps    map[string]App
}

// NewFile loads the registry file and verifies it parses.
func NewFile(path string) (*File, error) {
	f := &File{path: path}
	if err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) reload() error {
	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("stat registry: %w", err)
	}
	if !f.modTime.IsZero() && info.ModTime().Equal(f.modTime) {
		return nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse registry: %w", err)
	}

	apps := make(map[string]App, len(doc.Apps))
	for _, a := range doc.Apps {
		if a.ID == "" {
			return fmt.Errorf("parse registry: entry without app_id")
		}
		minLevel := a.MinLevel
		if minLevel == 0 {
			minLevel = 1
		}
		apps[a.ID] = App{
			ID:                 a.ID,
			Name:               a.Name,
			ClientSecretHash:   a.ClientSecretHash,
			RedirectURI:        a.RedirectURI,
			AllowedDepartments: a.AllowedDepartments,
			MinLevel:           minLevel,
		}
	}

	f.modTime = info.ModTime()
	f.apps = apps
	return nil
}

func (f *File) Find(ctx context.Context, appID string) (App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reload(); err != nil {
		// Keep serving the last good snapshot if the file went bad.
		obs.LogError("app registry reload failed", map[string]any{
			"path":  f.path,
			"error": err.Error(),
		})
	}
	app, ok := f.apps[appID]
	if !ok {
		return App{}, ErrNotFound
	}
	return app, nil
}
