package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"asbuilt/internal/app"
	"asbuilt/internal/config"
	"asbuilt/internal/domain"
	"asbuilt/internal/engine"
	"asbuilt/internal/logger"
	"asbuilt/internal/repo"
	"asbuilt/internal/server"
)

var log = logger.Nop()

var rootCmd = &cobra.Command{
	Use:   "asbuilt",
	Short: "As-built plugging record reconstruction",
	Long: `asbuilt rebuilds the as-built plugging record of a well from its pre-plugging baseline
and the field events reported by the crew.
- Case file: YAML or JSON holding baseline (header, casing_program, perforations, remarks),
  events (category, narrative, values, date, ...) and an optional document_ref.
- Workspace: asbuilt.yml (optional engine config) plus .asbuilt/ holding the run archive.
- Runs: reconstructions saved with --save, keyed by a digest of their input.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logger.New(viper.GetString("log-mode"))
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ASBUILT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-mode", "dev", "log mode: dev or prod")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-mode", rootCmd.PersistentFlags().Lookup("log-mode"))
}

func registerCommands() {
	rootCmd.AddCommand(reconstructCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func reconstructCmd() *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "reconstruct <case-file>",
		Short: "Reconstruct the as-built record for one case file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := app.LoadCase(args[0])
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				out, runErr := svc.Run(ctx, in, save)
				var invalid *domain.BaselineInvalidError
				if runErr != nil && !errors.As(runErr, &invalid) {
					return runErr
				}
				if viper.GetBool("json") {
					if err := printJSON(out); err != nil {
						return err
					}
				} else {
					printResult(out.Result)
					if out.Saved {
						fmt.Printf("Saved run %s\n", out.RunID)
					}
				}
				return runErr
			})
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "archive the run in the workspace")
	return cmd
}

func batchCmd() *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "batch <case-file>...",
		Short: "Reconstruct several independent case files concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := app.LoadCases(args)
			if err != nil {
				return err
			}
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			results, err := engine.New(cfg, log).ReconstructBatch(cmd.Context(), inputs, parallel)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				out := make([]map[string]any, 0, len(results))
				for i, res := range results {
					out = append(out, map[string]any{"case": args[i], "result": res})
				}
				return printJSON(out)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Case", "Status", "Plugs", "Warnings"})
			for i, res := range results {
				status := "ok"
				if res.Failed {
					status = strings.Join(res.Errors, "; ")
				}
				tw.AppendRow(table.Row{args[i], status, len(res.Report.Plugs), len(res.Warnings)})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&parallel, "parallel", 0, "max concurrent reconstructions (default from config)")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <case-file>",
		Short: "Check a case file without reconstructing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := app.LoadCase(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			eng := engine.New(cfg, log)
			var problems []string
			if err := engine.ValidateBaseline(in.Baseline); err != nil {
				problems = append(problems, err.Error())
			}
			for i, raw := range in.Events {
				_, warns := eng.Normalizer.Normalize(raw, i)
				for _, w := range warns {
					problems = append(problems, w.Error())
				}
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": len(problems) == 0, "problems": problems})
			}
			if len(problems) == 0 {
				fmt.Println("case OK")
				return nil
			}
			for _, p := range problems {
				fmt.Println("-", p)
			}
			return fmt.Errorf("%d problem(s) found", len(problems))
		},
	}
	return cmd
}

func runsCmd() *cobra.Command {
	runs := &cobra.Command{
		Use:   "runs",
		Short: "Inspect archived runs",
	}
	runs.AddCommand(runsListCmd())
	runs.AddCommand(runsShowCmd())
	runs.AddCommand(runsEventsCmd())
	runs.AddCommand(runsDeleteCmd())
	return runs
}

func runsListCmd() *cobra.Command {
	var wellID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				items, err := svc.Repo.ListRuns(ctx, repo.RunFilters{WellID: wellID, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Well", "Document", "Plugs", "Warnings", "Failed", "Created"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.WellID, r.DocumentRef, r.PlugCount, r.WarningCount, r.Failed, r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&wellID, "well", "", "filter by well id")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show an archived run's report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				run, res, err := svc.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"run": run, "result": res})
				}
				fmt.Printf("Run %s (well %s, created %s)\n", run.ID, run.WellID, run.CreatedAt)
				printResult(res)
				return nil
			})
		},
	}
}

func runsEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events <run-id>",
		Short: "List events recorded for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				items, err := svc.Repo.EventsForRun(ctx, args[0], 200, 0)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Payload"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func runsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete an archived run and its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc app.Service) error {
				if err := svc.Repo.DeleteRun(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted run %s\n", args[0])
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage asbuilt.yml",
		Long:  "asbuilt.yml holds engine defaults (cement class, hole diameter, slurry weight), the cement class table and extra template aliases. Without it the built-in defaults apply.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default asbuilt.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate asbuilt.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := app.OpenWorkspace(cmd.Context(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer ws.Close()
			handler, err := server.New(server.Config{Service: ws.Service(log), BasePath: basePath, Log: log})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving api", "addr", addr, "base_path", basePath)
			fmt.Printf("Serving As-Built API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withService(ctx context.Context, fn func(context.Context, app.Service) error) error {
	ws, err := app.OpenWorkspace(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Service(log))
}

func printResult(res domain.Result) {
	rep := res.Report
	if len(rep.Header) > 0 {
		keys := make([]string, 0, len(rep.Header))
		for k := range rep.Header {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s: %s\n", k, rep.Header[k])
		}
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Plug", "Top", "Bottom", "Type", "Class", "Sacks", "Hole", "TOC", "Measured", "Calculated", "Variance"})
	for _, p := range rep.Plugs {
		tw.AppendRow(table.Row{p.Number, ft(p.Top), ft(p.Bottom), p.Type, p.CementClass, ft(p.Sacks), ft(p.HoleSize), ft(p.TOC), ft(p.MeasuredTOC), ft(p.CalculatedTOC), ft(p.Variance)})
	}
	tw.Render()

	if len(rep.Casing) > 0 {
		ct := table.NewWriter()
		ct.SetOutputMirror(os.Stdout)
		ct.AppendHeader(table.Row{"Casing", "OD", "Top", "Bottom", "Cut To"})
		for _, c := range rep.Casing {
			ct.AppendRow(table.Row{c.Name, c.OD, c.Top, c.Bottom, ft(c.CutTo)})
		}
		ct.Render()
	}
	if rep.Remarks != "" {
		fmt.Println("Remarks:")
		fmt.Println(rep.Remarks)
	}
	for _, w := range res.Warnings {
		fmt.Println("warning:", w)
	}
	for _, e := range res.Errors {
		fmt.Println("error:", e)
	}
}

func ft(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
