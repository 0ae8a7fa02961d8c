// Command dmctl runs local storage maintenance against the same stores the
// server uses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"hackhub/internal/app"
	"hackhub/internal/config"
	"hackhub/internal/console"
	"hackhub/internal/logging"
)

const usageText = `usage: dmctl [-config file] <command> [args]

commands:
  usage        print storage usage as JSON
  cleanup      keep the newest messages of every conversation
  aggressive   drop attachments older than the retention window
  strip        remove every local attachment, keeping the text
  clear        delete every local message
  token <id>   issue an API token for a user id
  operator <id>
               issue a token that may also run /storage and /debug routes
  console      open the maintenance dashboard
`

func main() {
	configFile := flag.String("config", "", "optional YAML config file")
	yes := flag.Bool("yes", false, "skip the confirmation for destructive commands")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*configFile, *yes, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "dmctl:", err)
		os.Exit(1)
	}
}

func run(configFile string, yes bool, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	// stdout carries command output and the dashboard
	logger := logging.NewWithWriter(os.Stderr, cfg.Env, cfg.LogLevel)
	if args[0] == "console" {
		logger = zerolog.Nop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	svc := a.Service

	switch cmd := args[0]; cmd {
	case "usage":
		u, err := svc.GetStorageUsage(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(u)
	case "cleanup":
		return report(ctx, "removed", svc.Cleanup)
	case "aggressive":
		return report(ctx, "removed", svc.AggressiveCleanup)
	case "strip":
		if !yes && !confirm("strip every local attachment") {
			return nil
		}
		return report(ctx, "stripped", svc.StripAllAttachments)
	case "clear":
		if !yes && !confirm("delete every local message") {
			return nil
		}
		return report(ctx, "cleared", svc.ClearLocalMessages)
	case "token", "operator":
		if len(args) < 2 {
			return fmt.Errorf("%s needs a user id", cmd)
		}
		issue := a.Signer.IssueToken
		if cmd == "operator" {
			issue = a.Signer.IssueOperatorToken
		}
		token, err := issue(args[1])
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	case "console":
		return console.New(svc).Run(ctx)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func report(ctx context.Context, verb string, op func(context.Context) (int, error)) error {
	n, err := op(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s %d message(s)\n", verb, n)
	return nil
}

func confirm(what string) bool {
	fmt.Printf("This will %s. Continue? [y/N] ", what)
	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false
	}
	return answer == "y" || answer == "Y" || answer == "yes"
}
