package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	appbatch "github.com/bryanwahyu/automaton-batch/internal/application/batch"
	"github.com/bryanwahyu/automaton-batch/internal/bootstrap"
	"github.com/bryanwahyu/automaton-batch/internal/config"
	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
	"github.com/bryanwahyu/automaton-batch/internal/middleware"
	"github.com/bryanwahyu/automaton-batch/pkg/logger"
)

const usage = `usage: batchctl [-config path] <command> [flags]

commands:
  create  -processor <type> -org <org> [-repo <repo>] [-number <n>] [-model m] [-temperature t] [-effort e] [-max-tokens n]
  status  <job-id-or-prefix>
  collect <job-id-or-prefix>
  cancel  <job-id-or-prefix>
  remove  [-force] <job-id-or-prefix>
  list    [-status s]
`

type cli struct {
	mgr    *appbatch.Manager
	types  []domain.ProcessorType
	model  domain.ModelConfig
	out    io.Writer
	in     *bufio.Reader
	asJSON bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("batchctl", flag.ContinueOnError)
	cfgPath := global.String("config", "", "config file (default $CONFIG_PATH or config.yaml)")
	asJSON := global.Bool("json", false, "print JSON")
	verbose := global.Bool("v", false, "debug logging")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	level := cfg.Log.Level
	if *verbose {
		level = "debug"
	}
	lg, err := logger.New(level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer app.Close()

	c := &cli{
		mgr:    app.Manager,
		types:  app.Registry.Types(),
		model:  cfg.ModelConfig(),
		out:    os.Stdout,
		in:     bufio.NewReader(os.Stdin),
		asJSON: *asJSON,
	}
	lg.Debug("running command", zap.String("command", rest[0]))
	return c.dispatch(ctx, rest[0], rest[1:])
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "create":
		return c.create(ctx, args)
	case "status":
		return c.withID(args, func(id string) error {
			j, err := c.mgr.CheckStatus(ctx, id)
			if err != nil {
				return err
			}
			return c.printJob(j)
		})
	case "collect":
		return c.withID(args, func(id string) error {
			res, err := c.mgr.CollectResults(ctx, id)
			if err != nil {
				return err
			}
			return c.printResult(res)
		})
	case "cancel":
		return c.withID(args, func(id string) error {
			j, err := c.mgr.CancelJob(ctx, id)
			if err != nil {
				return err
			}
			return c.printJob(j)
		})
	case "remove":
		return c.remove(ctx, args)
	case "list":
		return c.list(ctx, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (c *cli) withID(args []string, fn func(id string) error) error {
	if len(args) != 1 {
		return errors.New("expected exactly one job id or prefix")
	}
	id := strings.TrimSpace(args[0])
	if err := middleware.ValidateJobRef(id); err != nil {
		return err
	}
	return fn(id)
}

func (c *cli) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	processor := fs.String("processor", "", "processor type")
	org := fs.String("org", "", "organization")
	repo := fs.String("repo", "", "repository")
	number := fs.Int("number", 0, "item number")
	model := fs.String("model", c.model.Model, "model")
	temperature := fs.Float64("temperature", float64(c.model.Temperature), "sampling temperature")
	effort := fs.String("effort", c.model.ReasoningEffort, "reasoning effort for reasoning models")
	maxTokens := fs.Int("max-tokens", c.model.MaxTokens, "max output tokens")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pt := domain.ProcessorType(*processor)
	if err := middleware.ValidateProcessor(pt, c.types); err != nil {
		return err
	}
	scope := domain.Scope{Org: *org, Repo: *repo, Number: *number}
	if err := middleware.ValidateScope(scope); err != nil {
		return err
	}
	cfg := domain.NewModelConfig(*model, float32(*temperature), *effort, *maxTokens, c.model.CompletionWindow)

	j, err := c.mgr.CreateForScope(ctx, pt, scope, cfg)
	if err != nil {
		if j != nil {
			c.printJob(j)
		}
		return err
	}
	return c.printJob(j)
}

func (c *cli) remove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	force := fs.Bool("force", false, "skip confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.withID(fs.Args(), func(id string) error {
		res, err := c.mgr.RemoveJob(ctx, id, *force, &promptConfirmer{in: c.in, out: c.out})
		if !res.Deleted {
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, "aborted")
			return nil
		}
		if c.asJSON {
			c.printJSON(res)
		} else {
			fmt.Fprintf(c.out, "removed job %s\n", res.JobID)
			for _, f := range res.RemovedFiles {
				fmt.Fprintf(c.out, "  deleted %s\n", f)
			}
		}
		return err
	})
}

func (c *cli) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	status := fs.String("status", "", "only jobs in this status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	jobs, err := c.mgr.ListJobs(ctx)
	if err != nil {
		return err
	}
	if *status != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if string(j.Status) == *status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	if c.asJSON {
		return c.printJSON(jobs)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB ID\tPROCESSOR\tSCOPE\tSTATUS\tITEMS\tOK\tFAILED\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			j.ID, j.ProcessorType, j.Scope, j.Status, j.TotalItems, j.ProcessedItems, j.FailedItems,
			j.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (c *cli) printJob(j *domain.Job) error {
	if c.asJSON {
		return c.printJSON(j)
	}
	fmt.Fprintf(c.out, "job:        %s\n", j.ID)
	fmt.Fprintf(c.out, "processor:  %s\n", j.ProcessorType)
	fmt.Fprintf(c.out, "scope:      %s\n", j.Scope)
	fmt.Fprintf(c.out, "status:     %s\n", j.Status)
	fmt.Fprintf(c.out, "items:      %d total, %d processed, %d failed\n", j.TotalItems, j.ProcessedItems, j.FailedItems)
	fmt.Fprintf(c.out, "model:      %s\n", j.ConfigSnapshot.Model)
	if j.ExternalBatchID != "" {
		fmt.Fprintf(c.out, "batch:      %s\n", j.ExternalBatchID)
	}
	fmt.Fprintf(c.out, "created:    %s\n", j.CreatedAt.Local().Format(time.DateTime))
	if d := j.Elapsed(); d > 0 {
		fmt.Fprintf(c.out, "elapsed:    %s\n", d.Round(time.Second))
	}
	c.printErrors(j.Errors)
	return nil
}

func (c *cli) printResult(r *domain.Result) error {
	if c.asJSON {
		return c.printJSON(r)
	}
	fmt.Fprintf(c.out, "job:        %s\n", r.JobID)
	fmt.Fprintf(c.out, "items:      %d total, %d succeeded, %d failed\n", r.TotalItems, r.SuccessfulItems, r.FailedItems)
	fmt.Fprintf(c.out, "elapsed:    %s\n", r.Elapsed.Round(time.Second))
	fmt.Fprintf(c.out, "results:    %s\n", r.ResultsDir)
	c.printErrors(r.Errors)
	return nil
}

// at most this many errors are printed in text mode
const maxErrorsShown = 10

func (c *cli) printErrors(errs []domain.JobError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(c.out, "errors:     %d\n", len(errs))
	for i, e := range errs {
		if i == maxErrorsShown {
			fmt.Fprintf(c.out, "  ... %d more\n", len(errs)-maxErrorsShown)
			break
		}
		cid := e.CorrelationID
		if cid == "" {
			cid = "-"
		}
		fmt.Fprintf(c.out, "  %s  %s  %s\n", cid, e.Code, e.Message)
	}
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// promptConfirmer asks y/N on the terminal.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *promptConfirmer) Confirm(_ context.Context, q domain.Question) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N] ", q.Text)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
