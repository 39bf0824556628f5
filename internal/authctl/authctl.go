// Package authctl implements the operator command line: generating API keys,
// hashing secrets and inspecting access tokens.
package authctl

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/uhoapp/authkit/internal/cryptox"
	"github.com/uhoapp/authkit/internal/server/auth"
	"golang.org/x/term"
)

const usage = `usage: authctl <command> [flags]

commands:
  apikey            generate an API key and print its raw value, hash and display prefix
  hash [-password]  hash a secret read from the terminal (SHA-256, or argon2id with -password)
  verify <token>    verify an access token and print its payload
`

// readPassword and isTerminal are test seams for golang.org/x/term.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// App holds the streams the commands read from and write to.
type App struct {
	Stdin  *os.File
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
}

// Run executes args (without the program name) and returns the exit code.
func (a *App) Run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.Stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "apikey":
		err = a.apikey()
	case "hash":
		err = a.hash(args[1:])
	case "verify":
		err = a.verify(args[1:])
	case "help", "-h", "-help", "--help":
		fmt.Fprint(a.Stdout, usage)
		return 0
	default:
		fmt.Fprintf(a.Stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if err != nil {
		fmt.Fprintf(a.Stderr, "authctl %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func (a *App) apikey() error {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "key:    %s\nhash:   %s\nprefix: %s\n", key.Raw, key.Hash, key.DisplayPrefix)
	return nil
}

func (a *App) hash(args []string) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	password := fs.Bool("password", false, "hash with argon2id for storage as a password hash")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := a.readSecret("Secret: ")
	if err != nil {
		return err
	}

	if *password {
		encoded, err := cryptox.HashPassword(secret)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.Stdout, encoded)
		return nil
	}

	fmt.Fprintln(a.Stdout, cryptox.HashString(secret))
	return nil
}

func (a *App) verify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	secretEnv := fs.String("secret-env", "UHO_SECRET_KEY", "environment variable holding the signing secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one token")
	}

	secret := a.Getenv(*secretEnv)
	if secret == "" {
		var err error
		if secret, err = a.readSecret("Signing secret: "); err != nil {
			return err
		}
	}

	p, err := auth.VerifyAccessToken(fs.Arg(0), []byte(secret))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(a.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// readSecret prompts without echo on a terminal, else reads one line.
func (a *App) readSecret(prompt string) (string, error) {
	fd := int(a.Stdin.Fd())

	if isTerminal(fd) {
		fmt.Fprint(a.Stderr, prompt)
		b, err := readPassword(fd)
		fmt.Fprintln(a.Stderr)
		if err != nil {
			return "", err
		}
		return validSecret(string(b))
	}

	line, err := bufio.NewReader(a.Stdin).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return validSecret(strings.TrimRight(line, "\r\n"))
}

func validSecret(s string) (string, error) {
	if s == "" {
		return "", errors.New("empty secret")
	}
	return s, nil
}
