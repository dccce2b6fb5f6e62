package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-distribution/internal/integrity"
	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/jobs"
)

// ErrDriftFound is returned by the integrity command when any company has
// mismatches, so scripts can rely on the exit status.
var ErrDriftFound = errors.New("ledger drift found")

// Checker is satisfied by integrity.Service.
type Checker interface {
	Check(ctx context.Context, company string) (integrity.Report, error)
	CheckAll(ctx context.Context) ([]integrity.Report, error)
}

// CacheBumper is satisfied by reporting.Cache.
type CacheBumper interface {
	Bump(ctx context.Context, company string) error
}

// Env opens backing services on demand, so a command only needs the
// services it touches. Every opener returns a release func.
type Env struct {
	Out io.Writer

	Migrate   func(ctx context.Context) error
	Integrity func(ctx context.Context) (Checker, func(), error)
	Jobs      func() (*JobsCLI, error)
	Cache     func(ctx context.Context) (CacheBumper, func(), error)
}

func (e *Env) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

// NewRootCommand builds the odysseyctl command tree.
func NewRootCommand(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "odysseyctl",
		Short:         "Operational commands for the Odyssey distribution ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCommand(env),
		newIntegrityCommand(env),
		newJobsCommand(env),
		newCacheCommand(env),
	)
	return root
}

func newMigrateCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the ledger schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if env.Migrate == nil {
				return errors.New("migrate: database not configured")
			}
			if err := env.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(env.out(), "schema applied")
			return nil
		},
	}
}

func newIntegrityCommand(env *Env) *cobra.Command {
	var (
		company string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "integrity",
		Short: "Recompute balances, stock and cash rows and report drift",
		Example: `  odysseyctl integrity
  odysseyctl integrity --company ACME --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if env.Integrity == nil {
				return errors.New("integrity: database not configured")
			}
			checker, release, err := env.Integrity(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			var reports []integrity.Report
			if code := ledger.NormalizeCode(company); code != "" {
				report, err := checker.Check(cmd.Context(), code)
				if err != nil {
					return err
				}
				reports = []integrity.Report{report}
			} else if reports, err = checker.CheckAll(cmd.Context()); err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(env.out())
				enc.SetIndent("", "  ")
				if err := enc.Encode(reports); err != nil {
					return err
				}
			} else {
				writeReports(env.out(), reports)
			}
			for _, r := range reports {
				if !r.Clean() {
					return ErrDriftFound
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "check one company only")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print reports as JSON")
	return cmd
}

func writeReports(w io.Writer, reports []integrity.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "COMPANY\tKIND\tSUBJECT\tSTORED\tEXPECTED")
	for _, r := range reports {
		if r.Clean() {
			fmt.Fprintf(tw, "%s\tok\t-\t-\t-\n", r.CompanyCode)
			continue
		}
		for _, b := range r.CustomerDrift {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.CompanyCode, integrity.KindCustomer, b.Code, b.Stored.StringFixed(2), b.Expected.StringFixed(2))
		}
		for _, b := range r.SupplierDrift {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.CompanyCode, integrity.KindSupplier, b.Code, b.Stored.StringFixed(2), b.Expected.StringFixed(2))
		}
		for _, b := range r.StockDrift {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", r.CompanyCode, integrity.KindStock, b.ProductCode, b.Stored, b.FromMovements)
		}
		for _, c := range r.CashMismatches {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", r.CompanyCode, integrity.KindCash, c.Number, c.Got, c.Want)
		}
	}
}

func newJobsCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	var opts TriggerOptions
	trigger := &cobra.Command{
		Use:       "trigger <task>",
		Short:     "Enqueue a background job now",
		ValidArgs: []string{jobs.TaskLedgerIntegrity, jobs.TaskIdempotencyCleanup, jobs.TaskReportWarmup},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openJobs(env)
			if err != nil {
				return err
			}
			defer c.Close()
			info, err := c.Trigger(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(env.out(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().StringVar(&opts.Company, "company", "", "limit the job to one company")
	trigger.Flags().IntVar(&opts.RetentionHours, "retention-hours", 0, "override idempotency retention")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openJobs(env)
			if err != nil {
				return err
			}
			defer c.Close()
			s, err := c.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(env.out()).Encode(s)
		},
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openJobs(env)
			if err != nil {
				return err
			}
			defer c.Close()
			tasks, err := c.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Fprintf(env.out(), "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "page size")

	cmd.AddCommand(trigger, stats, scheduled)
	return cmd
}

func openJobs(env *Env) (*JobsCLI, error) {
	if env.Jobs == nil {
		return nil, errors.New("jobs: redis not configured")
	}
	return env.Jobs()
}

func newCacheCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the report cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "bump <company>",
		Short: "Invalidate every cached report of a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			company := ledger.NormalizeCode(args[0])
			if company == "" {
				return errors.New("cache bump: company required")
			}
			if env.Cache == nil {
				return errors.New("cache: redis not configured")
			}
			bumper, release, err := env.Cache(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			if err := bumper.Bump(cmd.Context(), company); err != nil {
				return err
			}
			fmt.Fprintf(env.out(), "report cache of %s invalidated\n", company)
			return nil
		},
	})
	return cmd
}
