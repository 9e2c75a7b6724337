// Command recover-orders finds succeeded payments without a Shopify order and
// replays them through the order bridge.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/campaignbridge/internal/checkout"
	"github.com/smallbiznis/campaignbridge/internal/checkout/domain"
	"github.com/smallbiznis/campaignbridge/internal/clock"
	"github.com/smallbiznis/campaignbridge/internal/config"
	"github.com/smallbiznis/campaignbridge/internal/observability"
	"github.com/smallbiznis/campaignbridge/internal/providers"
	"github.com/smallbiznis/campaignbridge/internal/recovery"
	"github.com/smallbiznis/campaignbridge/internal/shopify"
	"github.com/smallbiznis/campaignbridge/internal/sideeffect"
	"github.com/smallbiznis/campaignbridge/pkg/db"
	"github.com/smallbiznis/campaignbridge/pkg/money"
	"go.uber.org/fx"
)

type recoverer interface {
	Scan(ctx context.Context, lookback time.Duration) (*recovery.Report, error)
	Replay(ctx context.Context, ids []string, opts recovery.Options) ([]recovery.Outcome, error)
}

type options struct {
	intentIDs []string
	hours     int
	yes       bool
	delay     time.Duration
}

func main() {
	cfg := config.Load()
	opts, err := parseFlags(os.Args[1:], cfg.Recovery, os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	var svc *recovery.Service
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		shopify.Module,
		sideeffect.Module,
		providers.Module,
		checkout.Module,
		recovery.Module,
		fx.Populate(&svc),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	code := run(ctx, svc, opts, os.Stdin, os.Stdout)

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	os.Exit(code)
}

func parseFlags(args []string, defaults config.RecoveryConfig, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("recover-orders", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var ids string
	var opts options
	fs.StringVar(&ids, "payment-intent", "", "comma-separated payment intent ids to replay (skips the scan)")
	fs.IntVar(&opts.hours, "hours", defaults.LookbackHours, "lookback window for the scan, in hours")
	fs.BoolVar(&opts.yes, "yes", false, "replay without asking for confirmation")
	fs.DurationVar(&opts.delay, "delay", defaults.ReplayDelay, "pause between replays")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.hours <= 0 {
		fmt.Fprintln(stderr, "-hours must be positive")
		return options{}, errors.New("invalid_hours")
	}
	for _, id := range strings.Split(ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			opts.intentIDs = append(opts.intentIDs, id)
		}
	}
	return opts, nil
}

// run returns the process exit code: 0 when every replay succeeded.
func run(ctx context.Context, svc recoverer, opts options, stdin io.Reader, stdout io.Writer) int {
	failed := 0
	ids := opts.intentIDs

	if len(ids) == 0 {
		report, err := svc.Scan(ctx, time.Duration(opts.hours)*time.Hour)
		if err != nil {
			fmt.Fprintf(stdout, "scan failed: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Scanned %d payment intents since %s: %d linked, %d without an order.\n",
			report.Scanned, report.Since.Format(time.RFC3339), len(report.Linked), len(report.Unlinked))

		for _, rec := range report.Unlinked {
			fmt.Fprintf(stdout, "  %s  %s %s  %s  %s\n",
				rec.PaymentIntentID, money.FormatCents(rec.Amount), rec.Currency,
				rec.Created.Format(time.RFC3339), orDash(rec.CustomerEmail))
			if rec.Incomplete {
				fmt.Fprintln(stdout, "    item list truncated in metadata, create this order manually")
				failed++
				continue
			}
			if rec.LastError != "" {
				fmt.Fprintf(stdout, "    last error: %s\n", rec.LastError)
			}
			ids = append(ids, rec.PaymentIntentID)
		}
		if len(ids) == 0 {
			fmt.Fprintln(stdout, "Nothing to replay.")
			return exitCode(failed)
		}
	}

	replayOpts := recovery.Options{
		Delay: opts.delay,
		Progress: func(o recovery.Outcome) {
			switch {
			case o.Err != nil:
				fmt.Fprintf(stdout, "FAIL %s: %v\n", o.PaymentIntentID, o.Err)
			case o.Result.AlreadyLinked:
				fmt.Fprintf(stdout, "SKIP %s: already linked to order %s\n", o.PaymentIntentID, orderLabel(o.Result))
			default:
				fmt.Fprintf(stdout, "OK   %s: created order %s\n", o.PaymentIntentID, orderLabel(o.Result))
			}
		},
	}
	if !opts.yes {
		replayOpts.Confirm = prompt(stdin, stdout)
	}

	outcomes, err := svc.Replay(ctx, ids, replayOpts)
	if errors.Is(err, recovery.ErrAborted) {
		fmt.Fprintln(stdout, "Aborted.")
		return 1
	}
	if err != nil {
		fmt.Fprintf(stdout, "replay interrupted: %v\n", err)
		return 1
	}
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	fmt.Fprintf(stdout, "Done: %d replayed, %d failed.\n", len(outcomes), failed)
	return exitCode(failed)
}

func prompt(stdin io.Reader, stdout io.Writer) func([]string) bool {
	reader := bufio.NewReader(stdin)
	return func(ids []string) bool {
		fmt.Fprintf(stdout, "Replay %d payment intents? [y/N] ", len(ids))
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
}

func orderLabel(r *domain.OrderResult) string {
	if r.OrderName != "" {
		return r.OrderName + " (" + r.OrderID + ")"
	}
	return r.OrderID
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func exitCode(failed int) int {
	if failed > 0 {
		return 1
	}
	return 0
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
