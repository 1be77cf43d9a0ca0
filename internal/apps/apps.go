// Package apps holds the registry of relying applications.
package apps

import (
	"context"
	"errors"
)

// ErrNotFound means no application with the requested id is registered.
var ErrNotFound = errors.New("apps: application not found")

// App describes one relying application. RedirectURI is matched by exact
// string equality during login; ClientSecretHash is a bcrypt hash, the
// plaintext secret is never stored.
type App struct {
	ID                 string
	Name               string
	ClientSecretHash   string
	RedirectURI        string
	AllowedDepartments []string
	MinLevel           int
}

// AllowsDepartment reports whether the department may use the app.
// An empty list means every department is allowed.
func (a App) AllowsDepartment(dept string) bool {
	if len(a.AllowedDepartments) == 0 {
		return true
	}
	for _, d := range a.AllowedDepartments {
		if d == dept {
			return true
		}
	}
	return false
}

// Registry resolves application ids to their configuration.
type Registry interface {
	Find(ctx context.Context, appID string) (App, error)
}
