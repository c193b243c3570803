// Package main provides resultbot, a Telegram bot that logs students into
// the university portal and sends back their semester results.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
