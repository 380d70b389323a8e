// Command riskctl scores shipments and prices quotes from JSON files, printing the
// response envelope. Exit codes: 0 ok, 1 validation, 2 not found, 3 service.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refset/freight-risk-quoting/internal/apperr"
	"github.com/refset/freight-risk-quoting/internal/config"
	"github.com/refset/freight-risk-quoting/internal/envelope"
	"github.com/refset/freight-risk-quoting/internal/logging"
	"github.com/refset/freight-risk-quoting/internal/pipeline"
	"github.com/refset/freight-risk-quoting/internal/ratesource"
	"github.com/refset/freight-risk-quoting/internal/validate"
)

type cli struct {
	configPath string
	timeout    time.Duration
	stdin      io.Reader
	out        io.Writer
	now        func() time.Time
	exitCode   int
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "riskctl",
		Short:         "Score freight shipments and price risk-adjusted quotes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.yaml", "Config file (optional)")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "Operation timeout")

	root.AddCommand(&cobra.Command{
		Use:   "run <shipment.json|->",
		Short: "Run the risk pipeline for a shipment payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), c, args[0], func(ctx context.Context, svc *pipeline.Service, p map[string]any) (any, error) {
				return svc.RunRisk(ctx, p)
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "quote <request.json|->",
		Short: "Price a {shipment, rateCandidates} request",
		Long: `Price a quote request. Without rateCandidates in the request, candidates are
taken from the static rate table in the config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), c, args[0], func(ctx context.Context, svc *pipeline.Service, p map[string]any) (any, error) {
				return svc.Quote(ctx, p)
			})
		},
	})
	return root
}

type stage func(ctx context.Context, svc *pipeline.Service, payload map[string]any) (any, error)

// execute prints exactly one envelope and records the exit code. It only returns an
// error when the envelope itself cannot be written.
func execute(ctx context.Context, c *cli, path string, fn stage) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := func() (any, error) {
		cfg, err := config.LoadFrom(c.configPath, os.Getenv)
		if err != nil {
			return nil, apperr.Wrap(apperr.Service, "invalid configuration", err)
		}
		log, err := logging.New(cfg.LogLevel)
		if err != nil {
			return nil, apperr.Wrap(apperr.Service, "invalid configuration", err)
		}
		defer func() { _ = log.Sync() }()

		payload, err := readPayload(path, c.stdin)
		if err != nil {
			return nil, err
		}
		svc := pipeline.New(pipeline.Deps{
			Scoring: cfg.ScoringConfig(),
			Pricing: cfg.PricingConfig(),
			Rates:   ratesource.NewStatic(validate.Rates(toAnySlice(cfg.Rates.Static))),
			Retry: pipeline.RetryPolicy{
				InitialInterval: cfg.Retry.InitialInterval,
				Multiplier:      cfg.Retry.Multiplier,
				MaxTries:        cfg.Retry.MaxTries,
			},
			Log: log.With(zap.String("component", "riskctl")),
		})
		return fn(ctx, svc, payload)
	}()

	c.exitCode = apperr.ExitCode(err)
	body, merr := envelope.Marshal(envelope.From(data, err, c.now()))
	if merr != nil {
		c.exitCode = apperr.ExitCode(apperr.ErrService)
		return merr
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		body = pretty.Bytes()
	}
	_, werr := fmt.Fprintln(c.out, string(body))
	return werr
}

func toAnySlice(ms []map[string]any) []any {
	out := make([]any, len(ms))
	for i, m := range ms {
		out[i] = m
	}
	return out
}

func readPayload(path string, stdin io.Reader) (map[string]any, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.NotFoundf("payload file " + path + " not found")
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.Service, "open payload", err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var p map[string]any
	if err := dec.Decode(&p); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "malformed JSON payload", err)
	}
	if p == nil {
		return nil, apperr.Validationf("payload must be a JSON object")
	}
	return p, nil
}

func run(args []string, stdin io.Reader, out, errOut io.Writer) int {
	c := &cli{stdin: stdin, out: out, now: time.Now}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(errOut, "Error:", err)
		if c.exitCode == 0 {
			return apperr.ExitCode(apperr.ErrValidation)
		}
	}
	return c.exitCode
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
