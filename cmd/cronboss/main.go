package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"cronboss/internal/app"
	"cronboss/internal/runner"
	logx "cronboss/pkg/logx"
)

const usage = `usage: cronboss [-config path] <command> [flags]

commands:
  run       evaluate schedules once and run what is due (default)
  check     validate task definitions and interpreters
  history   show recent audit records
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cronboss", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	cfgPath := fs.String("config", os.Getenv("CRONBOSS_CONFIG"), "path to config (json or yaml)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cmd, rest := "run", fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "run":
		return runTick(ctx, *cfgPath, rest, stderr)
	case "check":
		return runCheck(ctx, *cfgPath, rest, stdout, stderr)
	case "history":
		return runHistory(ctx, *cfgPath, rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

func runTick(ctx context.Context, cfgPath string, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	failOnError := fs.Bool("fail-on-error", false, "exit 1 when any task failed")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, "fatal:", err)
		return 1
	}
	defer a.Close()

	sum, err := a.Run(ctx)
	if err != nil {
		msg := "invocation failed"
		if errors.Is(err, runner.ErrAborted) {
			msg = "invocation aborted"
		}
		a.Logger().Error(msg, logx.Err(err))
		return 1
	}
	if *failOnError && sum.Failure > 0 {
		return 1
	}
	return 0
}

func runCheck(ctx context.Context, cfgPath string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, "fatal:", err)
		return 1
	}
	defer a.Close()

	r, err := a.Check(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "check:", err)
		return 1
	}
	fmt.Fprintf(stdout, "%d task(s), %d enabled, %d due now\n", r.Tasks, r.Enabled, r.DueNow)
	fmt.Fprintf(stdout, "lock dir: %s\n", r.LockDir)
	for _, p := range r.Problems {
		fmt.Fprintln(stdout, "definition:", p)
	}
	for _, is := range r.Issues {
		line := fmt.Sprintf("interpreter: %s (%s) -> %s [%s]", is.Script, is.Origin, is.Interpreter, is.Source)
		if is.Err != nil {
			line += ": " + is.Err.Error()
		}
		fmt.Fprintln(stdout, line)
	}
	if !r.OK() {
		return 1
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func runHistory(ctx context.Context, cfgPath string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	n := fs.Int("n", 20, "number of records")
	asJSON := fs.Bool("json", false, "print JSON lines")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, "fatal:", err)
		return 1
	}
	defer a.Close()

	recs, err := a.History(ctx, *n)
	if err != nil {
		fmt.Fprintln(stderr, "history:", err)
		return 1
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		for _, r := range recs {
			_ = enc.Encode(r)
		}
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSCRIPT\tSTATUS\tCODE\tATTEMPTS\tDURATION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.Timestamp.Local().Format(time.DateTime),
			r.Script,
			r.Status,
			r.ReturnCode,
			r.Attempts,
			(time.Duration(r.Duration * float64(time.Second))).Round(time.Millisecond),
		)
	}
	_ = tw.Flush()
	return 0
}
