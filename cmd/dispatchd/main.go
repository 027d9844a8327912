// Package main provides the entry point for the dispatchd server
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kode4food/dispatch/cmd/dispatchd/app"
)

func main() {
	ctx, cancel := app.ContextWithSignals(context.Background())
	defer cancel()

	application := app.New(os.Stdout)
	err := application.Execute(ctx, os.Args[1:])
	if cerr := application.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
