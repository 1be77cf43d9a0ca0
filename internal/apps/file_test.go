package apps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const registryYAML = `apps:
  - app_id: wiki
    name: Company Wiki
    client_secret_hash: "$2a$10$abcdefghijklmnopqrstuv"
    redirect_uri: https://wiki.internal/callback
    allowed_departments: [ENG, FIN]
    min_level: 2
  - app_id: helpdesk
    name: Helpdesk
    client_secret_hash: "$2a$10$zyxwvutsrqponmlkjihgfe"
    redirect_uri: https://helpdesk.internal/cb
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apps.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	return path
}

func TestFileFind(t *testing.T) {
	reg, err := NewFile(writeRegistry(t, registryYAML))
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}

	app, err := reg.Find(context.Background(), "wiki")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if app.RedirectURI != "https://wiki.internal/callback" {
		t.Fatalf("unexpected redirect uri: %q", app.RedirectURI)
	}
	if app.MinLevel != 2 {
		t.Fatalf("unexpected min level: %d", app.MinLevel)
	}
	if !app.AllowsDepartment("FIN") || app.AllowsDepartment("HR") {
		t.Fatal("department list not honored")
	}

	if _, err := reg.Find(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileMinLevelDefault(t *testing.T) {
	reg, err := NewFile(writeRegistry(t, registryYAML))
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	app, err := reg.Find(context.Background(), "helpdesk")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if app.MinLevel != 1 {
		t.Fatalf("expected default min level 1, got %d", app.MinLevel)
	}
	if !app.AllowsDepartment("ANY") {
		t.Fatal("empty department list should allow everyone")
	}
}

func TestFileReloadOnChange(t *testing.T) {
	path := writeRegistry(t, registryYAML)
	reg, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}

	updated := registryYAML + `  - app_id: payroll
    name: Payroll
    client_secret_hash: "$2a$10$qqqqqqqqqqqqqqqqqqqqqq"
    redirect_uri: https://payroll.internal/cb
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite registry: %v", err)
	}
	// Bump mtime past filesystem resolution.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, err := reg.Find(context.Background(), "payroll"); err != nil {
		t.Fatalf("expected reload to pick up new app: %v", err)
	}
}

func TestFileRejectsMissingID(t *testing.T) {
	if _, err := NewFile(writeRegistry(t, "apps:\n  - name: nameless\n")); err == nil {
		t.Fatal("expected error for entry without app_id")
	}
}
