package auth

import (
	"fmt"

	"staffgate.org/internal/apps"
	"staffgate.org/internal/directory"
)

// ResolveScopes computes the scopes a staff member gets on an app. Pure:
// the same inputs always produce the same answer, and it runs fresh on
// every login and every code exchange so directory changes take effect
// immediately.
//
// An explicit grant, when present, overrides everything including the
// app's own access policy. Without one, the app's department list and
// minimum level are enforced, then the level maps to its default scopes.
func ResolveScopes(staff directory.StaffRecord, app apps.App, grant *Grant) ([]string, error) {
	if grant != nil {
		out := make([]string, len(grant.Scopes))
		copy(out, grant.Scopes)
		return out, nil
	}

	if !app.AllowsDepartment(staff.Department) {
		return nil, &PolicyDeniedError{Reason: "department"}
	}
	if staff.Level < app.MinLevel {
		return nil, &PolicyDeniedError{Reason: "level"}
	}

	scopes, ok := LevelScopes[staff.Level]
	if !ok {
		return nil, fmt.Errorf("%w: staff level %d outside known range", ErrConfig, staff.Level)
	}
	out := make([]string, len(scopes))
	copy(out, scopes)
	return out, nil
}
