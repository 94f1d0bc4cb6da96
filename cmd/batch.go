package main

import (
	"context"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-router/internal/leadio"
	"github.com/sells-group/lead-router/internal/model"
	"github.com/sells-group/lead-router/internal/validate"
)

var (
	batchLimit        int
	batchFormat       string
	batchCSVDelimiter string
	batchCSVComment   string
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Run the waterfall for every lead in a .jsonl, .json or .csv file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := csvReadOptions(batchCSVDelimiter, batchCSVComment)
		if err != nil {
			return err
		}
		leads, err := leadio.ReadFile(ctx, args[0], opts...)
		if err != nil {
			return eris.Wrap(err, "read leads")
		}

		env, err := initRouter(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := processBatch(ctx, leads, batchLimit, cfg.Batch.MaxConcurrentLeads, env.Executor)
		if err != nil {
			return err
		}
		return writeFormatted(cmd.OutOrStdout(), batchFormat, summary)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of leads to process (0 = all)")
	batchCmd.Flags().StringVar(&batchFormat, "format", "json", "summary format: json or yaml")
	batchCmd.Flags().StringVar(&batchCSVDelimiter, "csv-delimiter", ",", `CSV field separator (one character, or "tab")`)
	batchCmd.Flags().StringVar(&batchCSVComment, "csv-comment", "", "skip CSV lines starting with this character")
	rootCmd.AddCommand(batchCmd)
}

// csvReadOptions turns the CSV flags into reader options.
func csvReadOptions(delimiter, comment string) ([]leadio.ReadOption, error) {
	var opts []leadio.ReadOption
	if strings.EqualFold(delimiter, "tab") || delimiter == `\t` {
		delimiter = "\t"
	}
	if delimiter != "" {
		r, err := singleRune("csv-delimiter", delimiter)
		if err != nil {
			return nil, err
		}
		opts = append(opts, leadio.WithCSVDelimiter(r))
	}
	if comment != "" {
		r, err := singleRune("csv-comment", comment)
		if err != nil {
			return nil, err
		}
		opts = append(opts, leadio.WithCSVComment(r))
	}
	return opts, nil
}

func singleRune(flag, s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, eris.Errorf("--%s must be a single character, got %q", flag, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// batchSummary counts lead outcomes for one batch run.
type batchSummary struct {
	Total    int64 `json:"total"`
	Invalid  int64 `json:"invalid"`
	Sold     int64 `json:"sold"`
	Rejected int64 `json:"rejected"`
	Errors   int64 `json:"errors"`
	// Skipped leads were never started because the batch was interrupted.
	Skipped int64 `json:"skipped"`
}

// processBatch applies limit, then validates and runs leads concurrently.
// Invalid leads are skipped and counted; a failed lead never aborts the
// batch. Once ctx ends, leads not yet started are counted as skipped.
func processBatch(ctx context.Context, leads []model.Lead, limit, concurrency int, proc leadProcessor) (*batchSummary, error) {
	if len(leads) == 0 {
		zap.L().Info("no leads found")
		return &batchSummary{}, nil
	}

	// Apply limit
	if limit > 0 && len(leads) > limit {
		leads = leads[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("leads", len(leads)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var invalid, sold, rejected, failed, skipped atomic.Int64
	now := time.Now()

	for i, lead := range leads {
		g.Go(func() error {
			if gctx.Err() != nil {
				skipped.Add(1)
				return nil
			}
			log := zap.L().With(zap.Int("row", i+1))

			lead = validate.Normalize(lead)
			if res := validate.Lead(lead, now); !res.Valid {
				invalid.Add(1)
				log.Warn("lead invalid", zap.Strings("errors", res.Errors))
				return nil
			}

			result := proc.Process(gctx, lead)
			log = log.With(zap.String("lead_id", result.LeadID), zap.Int("attempts", result.TotalAttempts))
			switch result.Status {
			case model.LeadStatusSold:
				sold.Add(1)
				fields := []zap.Field{zap.String("vendor", result.Vendor)}
				if result.Price != nil {
					fields = append(fields, zap.String("price", result.Price.StringFixed(2)))
				}
				log.Info("lead sold", fields...)
			case model.LeadStatusRejected:
				rejected.Add(1)
				log.Info("lead rejected")
			default:
				failed.Add(1)
				log.Error("lead failed", zap.String("message", result.Message))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}

	summary := &batchSummary{
		Total:    int64(len(leads)),
		Invalid:  invalid.Load(),
		Sold:     sold.Load(),
		Rejected: rejected.Load(),
		Errors:   failed.Load(),
		Skipped:  skipped.Load(),
	}
	zap.L().Info("batch complete",
		zap.Int64("sold", summary.Sold),
		zap.Int64("rejected", summary.Rejected),
		zap.Int64("errors", summary.Errors),
		zap.Int64("invalid", summary.Invalid),
		zap.Int64("skipped", summary.Skipped),
	)
	return summary, nil
}
