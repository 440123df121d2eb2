// Package main is the zhcorpus CLI entry point.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/cli"
	"github.com/hyperjump/zhcorpus/internal/config"
	"github.com/hyperjump/zhcorpus/internal/corpus"
	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/internal/server"
	"github.com/hyperjump/zhcorpus/internal/trigger"
	"github.com/hyperjump/zhcorpus/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/zhcorpus/config.yaml"

var (
	configPath string
	debugFlag  bool
	outputFlag string
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory takes precedence, and a missing default file yields the
// built-in defaults. Returns the config and the path actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// env is what every subcommand needs: config, logger, output format.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	format cli.OutputFormat
	out    io.Writer
}

func setup(cmd *cobra.Command, serving bool) (*env, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || debugFlag
	var logger *zap.Logger
	if serving {
		logger, err = utils.NewLogger(debug)
	} else {
		logger, err = utils.NewCLILogger(debug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, format: format, out: cmd.OutOrStdout()}, nil
}

// withComponents runs fn against freshly opened components and closes them afterwards.
func withComponents(cmd *cobra.Command, fn func(ctx context.Context, e *env, c *Components) error) error {
	e, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()
	ctx := cmd.Context()
	c, err := initializeComponents(ctx, e.cfg, e.logger, false)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, e, c)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "zhcorpus",
		Short:        "Source-diverse Chinese corpus sampling and word reports",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&outputFlag, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		newServeCmd(),
		newSearchCmd(),
		newCountCmd(),
		newRankedCmd(),
		newReportCmd(),
		newMaterializeCmd(),
		newRangesCmd(),
		newLookupCmd(),
		newGlossesCmd(),
		newReindexGlossesCmd(),
		newReindexCmd(),
		newImportCmd(),
		newStatsCmd(),
		newInitConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and ingest triggers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := initializeComponents(ctx, e.cfg, e.logger, true)
			if err != nil {
				return err
			}
			defer c.Close()

			if c.Ranges.Snapshot().Len() == 0 {
				if _, err := c.Ranges.Materialize(ctx); err != nil {
					e.logger.Warn("initial materialization failed", zap.Error(err))
				}
			}

			d := newDispatcher(c, e.logger)
			if dir := e.cfg.Trigger.WatchDir; dir != "" {
				ft := trigger.NewFileTrigger(dir, d,
					trigger.WithLogger(e.logger),
					trigger.WithDebounce(time.Duration(e.cfg.Trigger.DebounceMillis)*time.Millisecond),
				)
				if err := ft.Start(ctx); err != nil {
					return fmt.Errorf("failed to start file trigger: %w", err)
				}
				defer ft.Stop()
			}
			if kc := e.cfg.Trigger.Kafka; len(kc.Brokers) > 0 {
				go trigger.RunKafka(ctx, kc, d, trigger.WithLogger(e.logger))
			}

			srv := server.NewServer(c.Deps(), e.cfg, version, e.logger)
			errc := make(chan error, 1)
			go func() { errc <- srv.Start() }()

			select {
			case err := <-errc:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}
			e.logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

func newSearchCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Sample occurrences of a term across sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, e *env, c *Components) error {
				start := time.Now()
				q := models.SearchQuery{Term: strings.Join(args, " "), SampleSize: size}
				if err := q.Validate(e.cfg.Sampling.DefaultSampleSize, e.cfg.Sampling.MaxSampleSize); err != nil {
					return err
				}
				samples, err := c.Sampler.SearchSamples(ctx, q.Term, q.SampleSize)
				if err != nil {
					return err
				}
				sources := map[string]bool{}
				for _, s := range samples {
					sources[s.Source] = true
				}
				return cli.WriteSearchResults(e.out, &models.SearchResponse{
					Term:       q.Term,
					Samples:    samples,
					Sources:    len(sources),
					Generation: c.Ranges.Snapshot().Generation,
					QueryTime:  time.Since(start).Milliseconds(),
				}, e.format)
			})
		},
	}
	cmd.Flags().IntVarP(&size, "sample-size", "n", 0, "number of samples (default from config)")
	return cmd
}

func newCountCmd() *cobra.Command {
	var limit int
	var perSource bool
	cmd := &cobra.Command{
		Use:   "count <term>",
		Short: "Count occurrences of a term up to a cap",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, e *env, c *Components) error {
				start := time.Now()
				q := models.CountQuery{Term: strings.Join(args, " "), Cap: limit, PerSource: perSource}
				if err := q.Validate(e.cfg.Sampling.DefaultCountCap, e.cfg.Sampling.MaxCountCap); err != nil {
					return err
				}
				resp := &models.CountResponse{Term: q.Term, Cap: q.Cap}
				if q.PerSource {
					counts, err := c.Sampler.CountPerSource(ctx, q.Term, q.Cap)
					if err != nil {
						return err
					}
					resp.PerSource = counts
				} else {
					total, err := c.Sampler.CountTotal(ctx, q.Term, q.Cap)
					if err != nil {
						return err
					}
					resp.Total = &total
				}
				resp.QueryTime = time.Since(start).Milliseconds()
				return cli.WriteCounts(e.out, resp, e.format)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "cap", 0, "stop counting at this many matches (default from config)")
	cmd.Flags().BoolVar(&perSource, "per-source", false, "count each source separately")
	return cmd
}

func newRankedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "ranked <term>",
		Short: "Relevance-ranked search for terms below the ranked cap",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, e *env, c *Components) error {
				if limit <= 0 {
					limit = e.cfg.Sampling.RankedLimit
				}
				term := strings.Join(args, " ")
				hits, err := c.Sampler.Ranked(ctx, term, limit, e.cfg.Sampling.RankedCap)
				if err != nil {
					return err
				}
				return cli.WriteRanked(e.out, term, hits, e.format)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results (default from config)")
	return cmd
}

func newReportCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "report <term>",
		Short: "Build a word report: senses, dialect forms, evidence and counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, e *env, c *Components) error {
				m, err := models.ParseReportMode(mode)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(ctx, e.cfg.Report.Timeout())
				defer cancel()
				rep, err := c.Reports.BuildWordReport(ctx, args[0], m)
				if err != nil {
					return err
				}
				return cli.WriteWordReport(e.out, rep, e.format)
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(models.ModeStandard), "brief, standard or full")
	return cmd
}

func newMaterializeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "materialize",
		Short: "Rebuild the source-range table from the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, func(ctx context.Context, e *env, c *Components) error {
				snap, err := c.Ranges.Materialize(ctx)
				if err != nil {
					return err
				}
				return cli.WriteRanges(e.out, snap, e.format)
			})
		},
	}
}

func newRangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ranges",
		Short: "Show the materialized source ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, func(_ context.Context, e *env, c *Components) error {
				return cli.WriteRanges(e.out, c.Ranges.Snapshot(), e.format)
			})
		},
	}
}

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <headword>",
		Short: "Look up a headword in the dictionary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, e *env, c *Components) error {
				entries, err := c.Dictionary.Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				forms, err := c.Dictionary.DialectForms(ctx, args[0])
				if err != nil {
					return err
				}
				dialects := models.DialectSection{
					PronunciationOverlays: []models.PronunciationOverlay{},
					LexicalDivergences:    []models.LexicalDivergence{},
				}
				for _, f := range forms {
					switch v := f.(type) {
					case models.PronunciationOverlay:
						dialects.PronunciationOverlays = append(dialects.PronunciationOverlays, v)
					case models.LexicalDivergence:
						dialects.LexicalDivergences = append(dialects.LexicalDivergences, v)
					}
				}
				return cli.WriteEntries(e.out, args[0], entries, dialects, e.format)
			})
		},
	}
}

func newGlossesCmd() *cobra.Command {
	var lang string
	var limit int
	cmd := &cobra.Command{
		Use:   "glosses <query>",
		Short: "Reverse lookup: find headwords whose definitions match",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, e *env, c *Components) error {
				q := strings.Join(args, " ")
				hits, err := c.Glosses.Search(ctx, q, lang, limit)
				if err != nil {
					return err
				}
				var suggestion string
				if len(hits) == 0 {
					if s, ok, err := c.Glosses.Suggest(q); err == nil && ok {
						suggestion = s
					}
				}
				return cli.WriteGlossHits(e.out, q, hits, suggestion, e.format)
			})
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "restrict to definitions in this language (en, fr, de, ...)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum headwords")
	return cmd
}

func newReindexGlossesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex-glosses",
		Short: "Rebuild the gloss index from the dictionary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, func(ctx context.Context, e *env, c *Components) error {
				n, err := c.Glosses.Rebuild(ctx, c.Dictionary)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "Indexed %d definitions\n", n)
				return nil
			})
		},
	}
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the corpus term index from stored segments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, func(ctx context.Context, e *env, c *Components) error {
				n, err := corpus.NewWriter(c.Corpus).RebuildIndex(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "Indexed %d segments\n", n)
				return nil
			})
		},
	}
}

// readDocuments decodes one models.DocumentInput per line.
func readDocuments(r io.Reader) ([]models.DocumentInput, error) {
	var docs []models.DocumentInput
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var doc models.DocumentInput
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	return docs, sc.Err()
}

func newImportCmd() *cobra.Command {
	var description string
	var materialize bool
	cmd := &cobra.Command{
		Use:   "import <source> <documents.jsonl>",
		Short: "Append one source's documents (JSON lines) to the corpus",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, e *env, c *Components) error {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				docs, err := readDocuments(f)
				if err != nil {
					return fmt.Errorf("reading %s: %w", args[1], err)
				}
				res, err := corpus.NewWriter(c.Corpus).AppendSource(ctx, args[0], description, docs)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "Imported %d documents (%d skipped), %d segments into %s\n",
					res.Documents, res.SkippedDocuments, res.Segments, args[0])
				if materialize {
					snap, err := c.Ranges.Materialize(ctx)
					if err != nil {
						return err
					}
					return cli.WriteRanges(e.out, snap, e.format)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "source description")
	cmd.Flags().BoolVar(&materialize, "materialize", true, "rebuild source ranges after the import")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show corpus and dictionary statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, func(ctx context.Context, e *env, c *Components) error {
				cs, err := c.Corpus.Stats(ctx)
				if err != nil {
					return err
				}
				ds, err := c.Dictionary.Stats(ctx)
				if err != nil {
					return err
				}
				glosses, err := c.Glosses.DocCount()
				if err != nil {
					return err
				}
				return cli.WriteStats(e.out, &cli.Stats{
					Corpus:       cs,
					Dictionary:   ds,
					SourceRanges: c.Ranges.Snapshot().Len(),
					Glosses:      glosses,
				}, e.format)
			})
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config <path>",
		Short: "Write a config file with the default settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zhcorpus version %s\n", version)
		},
	}
}
