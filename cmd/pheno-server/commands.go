package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pheno/pheno/internal/config"
	"github.com/pheno/pheno/internal/domain/mapper"
	"github.com/pheno/pheno/internal/domain/ontology"
	"github.com/pheno/pheno/internal/domain/phenotype"
	"github.com/pheno/pheno/internal/domain/recognition"
	"github.com/pheno/pheno/internal/platform/auth"
	"github.com/pheno/pheno/internal/platform/db"
)

// cliEnv loads configuration without the server-only checks and logs to
// stderr so stdout stays machine readable.
func cliEnv(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if f := cmd.Flags().Lookup("hpo"); f != nil && f.Changed {
		cfg.HPOJSON = f.Value.String()
		cfg.IndexSource = config.IndexSourceFile
	}
	return cfg, newLogger(cfg, cmd.ErrOrStderr()), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cliRuntime is the recognition stack shared by the offline commands.
type cliRuntime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	engine  *recognition.Engine
	overlay *recognition.Overlay
	cleanup func()
}

func (r *cliRuntime) service() *recognition.Service {
	return recognition.NewService(r.engine, r.overlay, r.cfg.Workers)
}

func newCLIRuntime(cmd *cobra.Command) (*cliRuntime, error) {
	cfg, logger, err := cliEnv(cmd)
	if err != nil {
		return nil, err
	}
	idx, cleanup, err := loadIndex(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}

	overlayPath := cfg.OverlayFile
	if f := cmd.Flags().Lookup("overlay"); f != nil && f.Changed {
		overlayPath = f.Value.String()
	}
	overlay, err := loadOverlay(overlayPath)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &cliRuntime{
		cfg:     cfg,
		logger:  logger,
		engine:  recognition.NewEngine(idx, logger),
		overlay: overlay,
		cleanup: cleanup,
	}, nil
}

func newCLIService(cmd *cobra.Command) (*recognition.Service, func(), error) {
	rt, err := newCLIRuntime(cmd)
	if err != nil {
		return nil, nil, err
	}
	return rt.service(), rt.cleanup, nil
}

func recognizeCmd() *cobra.Command {
	var perLine bool
	var input string
	cmd := &cobra.Command{
		Use:   "recognize [text...]",
		Short: "Recognize HPO terms in text from arguments, a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := newCLIService(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			in := cmd.InOrStdin()
			if input != "" && len(args) == 0 {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}
			return runRecognize(cmd.Context(), svc, in, cmd.OutOrStdout(), args, perLine)
		},
	}
	cmd.Flags().String("hpo", "", "Path to hp.json (overrides HPO_JSON and INDEX_SOURCE)")
	cmd.Flags().String("overlay", "", "Path to a YAML or JSON overlay (overrides OVERLAY_FILE)")
	cmd.Flags().StringVarP(&input, "file", "f", "", "Read input from file instead of stdin")
	cmd.Flags().BoolVar(&perLine, "lines", false, "Treat every input line as a separate cell")
	return cmd
}

// runRecognize treats each argument as a cell. Without arguments the whole
// input is one text, or one cell per line when perLine is set.
func runRecognize(ctx context.Context, svc *recognition.Service, in io.Reader, out io.Writer, args []string, perLine bool) error {
	var cells []string
	switch {
	case len(args) > 0:
		cells = args
	case perLine:
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for sc.Scan() {
			cells = append(cells, sc.Text())
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	default:
		b, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		resp, err := svc.Recognize(ctx, &recognition.RecognizeRequest{Text: string(b)})
		if err != nil {
			return err
		}
		return writeJSON(out, resp)
	}

	if len(cells) == 0 {
		return writeJSON(out, &recognition.BatchResponse{Results: [][]*phenotype.HpTerm{}})
	}
	resp, err := svc.RecognizeBatch(ctx, &recognition.BatchRequest{Cells: cells})
	if err != nil {
		return err
	}
	return writeJSON(out, resp)
}

func mapCmd() *cobra.Command {
	var schemaPath, input string
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Map spreadsheet rows (a JSON array of objects) to HPO terms using a column schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := mapper.LoadSchema(schemaPath)
			if err != nil {
				return err
			}
			rt, err := newCLIRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.cleanup()

			in := cmd.InOrStdin()
			if input != "" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}
			h := mapper.NewHandler(rt.engine, rt.overlay, rt.logger)
			return runMap(h, schema, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("hpo", "", "Path to hp.json (overrides HPO_JSON and INDEX_SOURCE)")
	cmd.Flags().String("overlay", "", "Path to a YAML or JSON overlay layered beneath custom columns")
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Path to the YAML column schema")
	cmd.Flags().StringVarP(&input, "file", "f", "", "Read rows from file instead of stdin")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func runMap(h *mapper.Handler, schema *mapper.Schema, in io.Reader, out io.Writer) error {
	var rows []map[string]any
	if err := json.NewDecoder(in).Decode(&rows); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	resp, err := h.Map(&mapper.MapRequest{Schema: schema, Rows: rows})
	if err != nil {
		return err
	}
	return writeJSON(out, resp)
}

func lookupCmd() *cobra.Command {
	var ancestors bool
	cmd := &cobra.Command{
		Use:   "lookup <id|label>",
		Short: "Resolve an HPO identifier or label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := newCLIService(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runLookup(cmd.Context(), svc, cmd.OutOrStdout(), args[0], ancestors)
		},
	}
	cmd.Flags().String("hpo", "", "Path to hp.json (overrides HPO_JSON and INDEX_SOURCE)")
	cmd.Flags().BoolVar(&ancestors, "ancestors", false, "Also list ancestors below the phenotypic abnormality root")
	return cmd
}

func runLookup(ctx context.Context, svc *recognition.Service, out io.Writer, query string, ancestors bool) error {
	id := query
	if !strings.HasPrefix(strings.TrimSpace(query), ontology.Prefix) {
		term, err := svc.LookupLabel(ctx, query)
		if err != nil {
			return err
		}
		id = term.ID
	}
	term, err := svc.LookupID(ctx, id)
	if err != nil {
		return err
	}
	if !ancestors {
		return writeJSON(out, term)
	}
	anc, err := svc.Ancestors(ctx, id)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]interface{}{"term": term, "ancestors": anc})
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect or import the ontology index",
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Print release and build statistics for the configured index",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := newCLIService(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return writeJSON(cmd.OutOrStdout(), svc.Info(cmd.Context()))
		},
	}
	infoCmd.Flags().String("hpo", "", "Path to hp.json (overrides HPO_JSON and INDEX_SOURCE)")
	cmd.AddCommand(infoCmd)

	var migrate bool
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Build the index from hp.json and store it in Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := cliEnv(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}

			ctx := cmd.Context()
			idx, err := indexFromFile(cfg.HPOJSON, logger)
			if err != nil {
				return err
			}

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, appName+"-import", cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if migrate {
				n, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				logger.Info().Int("applied", n).Msg("migrations applied")
			}

			start := time.Now()
			if err := ontology.NewIndexRepoPG(pool).SaveIndex(ctx, idx); err != nil {
				return fmt.Errorf("save index: %w", err)
			}
			logger.Info().
				Str("version", idx.Version()).
				Int("terms", idx.Len()).
				Int("labels", len(idx.Labels())).
				Dur("elapsed", time.Since(start)).
				Msg("index imported")
			fmt.Fprintf(cmd.OutOrStdout(), "Imported HPO %s: %d terms, %d labels.\n",
				idx.Version(), idx.Len(), len(idx.Labels()))
			return nil
		},
	}
	importCmd.Flags().String("hpo", "", "Path to hp.json (overrides HPO_JSON)")
	importCmd.Flags().BoolVar(&migrate, "migrate", true, "Apply pending migrations first")
	cmd.AddCommand(importCmd)

	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.RequireDatabase(); err != nil {
			return err
		}
		ctx := cmd.Context()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, appName+"-migrate", cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, db.Migrations()))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatuses(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	return cmd
}

func printStatuses(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var scopes []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with AUTH_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.AuthEnabled() {
				return fmt.Errorf("AUTH_SECRET is required")
			}
			tok, err := auth.IssueToken([]byte(cfg.AuthSecret), subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "pheno-cli", "Token subject")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeRead, auth.ScopeRecognize}, "Granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
