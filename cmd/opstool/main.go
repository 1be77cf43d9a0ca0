// Command opstool gives operators a CLI for the flows that never touch the
// public API: operator tokens, permission grants and elevated tokens.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"staffgate.org/internal/apps"
	"staffgate.org/internal/auth"
	"staffgate.org/internal/directory"
	"staffgate.org/internal/token"
)

const usage = `usage: opstool <command> [args]

commands:
  operator-token <subject>            mint an operator token for registration or recovery
  grant <subject> <app> <scope,...>   set an explicit permission grant
  revoke <subject> <app>              remove an explicit permission grant
  perms <subject>                     list a subject's explicit grants
  admin-token <subject>               mint an elevated token (level 3 only)
  keygen <path>                       write a new RSA key pair to <path> and <path>.pub
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("command required")
	}
	cmd, rest := args[0], args[1:]

	if cmd == "keygen" {
		return keygen(rest)
	}

	svc, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "operator-token":
		if len(rest) != 1 {
			return fmt.Errorf("usage: opstool operator-token <subject>")
		}
		tok, err := svc.IssueOperatorToken(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil

	case "grant":
		if len(rest) != 3 {
			return fmt.Errorf("usage: opstool grant <subject> <app> <scope,...>")
		}
		scopes := strings.Split(rest[2], ",")
		if err := svc.GrantPermission(ctx, rest[0], rest[1], scopes); err != nil {
			return err
		}
		fmt.Printf("granted %v on %s to %s\n", scopes, rest[1], rest[0])
		return nil

	case "revoke":
		if len(rest) != 2 {
			return fmt.Errorf("usage: opstool revoke <subject> <app>")
		}
		if err := svc.RevokePermission(ctx, rest[0], rest[1]); err != nil {
			return err
		}
		fmt.Printf("revoked grant on %s for %s\n", rest[1], rest[0])
		return nil

	case "perms":
		if len(rest) != 1 {
			return fmt.Errorf("usage: opstool perms <subject>")
		}
		grants, err := svc.ListPermissions(ctx, rest[0])
		if err != nil {
			return err
		}
		if len(grants) == 0 {
			fmt.Println("no explicit grants")
			return nil
		}
		for _, g := range grants {
			fmt.Printf("%s\t%s\n", g.AppID, strings.Join(g.Scopes, ","))
		}
		return nil

	case "admin-token":
		if len(rest) != 1 {
			return fmt.Errorf("usage: opstool admin-token <subject>")
		}
		signed, err := svc.IssueElevatedToken(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Println(signed)
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func buildService() (*auth.Service, func(), error) {
	authDSN := os.Getenv("STAFFGATE_DB_DSN")
	staffDSN := os.Getenv("STAFFGATE_STAFF_DB_DSN")
	appsFile := os.Getenv("STAFFGATE_APPS_FILE")
	keyFile := os.Getenv("STAFFGATE_PRIVATE_KEY_FILE")
	if authDSN == "" || staffDSN == "" {
		return nil, nil, fmt.Errorf("STAFFGATE_DB_DSN and STAFFGATE_STAFF_DB_DSN are required")
	}
	if appsFile == "" {
		appsFile = "apps.yaml"
	}
	if keyFile == "" {
		return nil, nil, fmt.Errorf("STAFFGATE_PRIVATE_KEY_FILE is required")
	}

	authDB, err := sql.Open("pgx", authDSN)
	if err != nil {
		return nil, nil, err
	}
	staffDB, err := sql.Open("pgx", staffDSN)
	if err != nil {
		authDB.Close()
		return nil, nil, err
	}
	cleanup := func() {
		authDB.Close()
		staffDB.Close()
	}

	key, err := token.LoadPrivateKey(keyFile)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	tokens, err := token.NewService(token.WithKeyPair(key))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	registry, err := apps.NewFile(appsFile)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	svc := auth.NewService(
		auth.NewPostgresStore(authDB),
		directory.NewSQL(staffDB, 0),
		registry,
		tokens,
	)
	return svc, cleanup, nil
}

func keygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: opstool keygen <path>")
	}
	path := fs.Arg(0)

	key, err := token.GenerateKey()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, token.EncodePrivateKeyPEM(key), 0o600); err != nil {
		return err
	}

	svc, err := token.NewService(token.WithKeyPair(key))
	if err != nil {
		return err
	}
	pub, err := svc.PublicKeyPEM()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path+".pub", pub, 0o644); err != nil {
		return err
	}
	fmt.Println("wrote", path, "and", path+".pub")
	return nil
}
