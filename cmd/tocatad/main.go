package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tocata/tocata/internal/daemon"
	"github.com/tocata/tocata/internal/session"
	"go.uber.org/fx"
)

func main() {
	identityFlag := flag.String("identity", "", "account identity (overrides config default)")
	flag.Parse()

	identity := session.Resolve(*identityFlag)
	if err := session.ValidateIdentity(identity); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Identity: identity}),
	)

	app.Run()
}
