// Command dishbridge bridges a Starlink dish's gRPC telemetry and
// configuration API to an MQTT broker.
//
// Usage:
//
//	dishbridge [run] [flags]     poll the dish and serve commands (default)
//	dishbridge topics [flags]    print every topic the bridge uses
//	dishbridge audit [flags]     print recent commands from the audit log
//	dishbridge version           print the build version as JSON
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches to a subcommand. Without one, the bridge runs.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		return runBridge(ctx, args)
	case "topics":
		return runTopics(args, stdout)
	case "audit":
		return runAudit(ctx, args, stdout)
	case "version":
		return runVersion(stdout)
	default:
		return fmt.Errorf("unknown command %q (want run, topics, audit or version)", cmd)
	}
}

func runVersion(stdout io.Writer) error {
	out, err := json.Marshal(map[string]string{"version": version})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(out))
	return err
}
