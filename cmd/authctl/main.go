package main

import (
	"os"

	"github.com/uhoapp/authkit/internal/authctl"
)

func main() {
	app := &authctl.App{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getenv: os.Getenv,
	}
	os.Exit(app.Run(os.Args[1:]))
}
