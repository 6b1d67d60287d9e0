// Command crew provisions a hierarchy of collaborating Bedrock agents, opens
// an interactive session with its supervisor and tears everything down again.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := newApp().run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}
