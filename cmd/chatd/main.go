package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/inkpad-notes/chatcore/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	userFlag := flag.String("user", "", "user id to run the session as")
	flag.Parse()

	if *userFlag == "" {
		fmt.Fprintln(os.Stderr, "error: --user is required")
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{UserID: *userFlag}),
	)

	app.Run()
}
