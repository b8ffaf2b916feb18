package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jhonnyo88/devteam-sub003/internal/app"
	"github.com/jhonnyo88/devteam-sub003/internal/config"
	"github.com/jhonnyo88/devteam-sub003/internal/contract"
	"github.com/jhonnyo88/devteam-sub003/internal/db"
	"github.com/jhonnyo88/devteam-sub003/internal/domain"
	"github.com/jhonnyo88/devteam-sub003/internal/notify"
	"github.com/jhonnyo88/devteam-sub003/internal/pipeline"
	"github.com/jhonnyo88/devteam-sub003/internal/repo"
	"github.com/jhonnyo88/devteam-sub003/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "devteam",
	Short: "DevTeam CLI",
	Long: `DevTeam runs feature stories through an AI software team pipeline.
Core concepts:
- Story: one feature request with acceptance criteria and a time budget.
- Pipeline: project manager -> game designer -> developer -> test engineer ->
  qa tester -> quality reviewer; rejected work loops back to the developer.
- Contract: the JSON handoff document each stage passes to the next.
- DNA compliance: every story is scored against the team's design and
  architecture principles before any work starts.
- Quality gates: named checks each stage must satisfy before handing off.
- Event log: the diary of everything that happened, view with 'devteam log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DEVTEAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(storyCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(serveCmd())
}

func storyCmd() *cobra.Command {
	story := &cobra.Command{
		Use:   "story",
		Short: "Run and inspect stories",
		Long:  "A story goes in as a feature request and comes out approved for deployment or rejected, with every handoff recorded.",
	}
	story.AddCommand(storyRunCmd())
	story.AddCommand(storyListCmd())
	story.AddCommand(storyShowCmd())
	story.AddCommand(storyHistoryCmd())
	story.AddCommand(storyMetricsCmd())
	return story
}

func storyRunCmd() *cobra.Command {
	var filePath string
	var title, description, persona, priority string
	var criteria []string
	var minutes int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a story through the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req contract.StoryRequest
			if filePath != "" {
				data, err := os.ReadFile(filePath)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &req); err != nil {
					return fmt.Errorf("invalid story file: %w", err)
				}
			} else {
				req = contract.StoryRequest{
					Title:                 title,
					FeatureDescription:    description,
					AcceptanceCriteria:    criteria,
					UserPersona:           persona,
					TimeConstraintMinutes: minutes,
					Priority:              priority,
				}
			}
			if strings.TrimSpace(req.FeatureDescription) == "" {
				return fmt.Errorf("feature description is required (--description or --file)")
			}
			if req.Requester == "" {
				req.Requester = viper.GetString("actor-id")
			}
			return withRunner(cmd.Context(), func(ctx context.Context, runner *pipeline.Runner) error {
				result, err := runner.Run(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(result)
				}
				fmt.Printf("story %s: %s (score %.1f, revisions %d)\n",
					result.StoryID, result.Status, result.Score, result.Revisions)
				for _, line := range result.Review.Reasoning {
					fmt.Println("  -", line)
				}
				for _, issue := range result.Review.BlockingIssues {
					fmt.Println("  blocking:", issue)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to story request JSON")
	cmd.Flags().StringVar(&title, "title", "", "story title")
	cmd.Flags().StringVar(&description, "description", "", "feature description")
	cmd.Flags().StringSliceVar(&criteria, "criteria", nil, "acceptance criteria (repeatable)")
	cmd.Flags().StringVar(&persona, "persona", "", "target user persona")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "time constraint in minutes")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	return cmd
}

func storyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListStories(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Title", "Status", "Requester", "Updated"})
				for _, s := range items {
					t.AppendRow(table.Row{s.ID, s.Title, s.Status, s.Requester, s.UpdatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	return cmd
}

func storyShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <story_id>",
		Short: "Show a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				s, err := a.Repo.GetStory(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func storyHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <story_id>",
		Short: "Show a story's handoff history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("story id is required")
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"#", "Stage", "Decision", "Score", "Rev", "TS"})
				for _, h := range items {
					score := ""
					if h.Score != nil {
						score = fmt.Sprintf("%.1f", *h.Score)
					}
					t.AppendRow(table.Row{h.ID, h.Stage, h.Decision, score, h.Revision, h.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	return cmd
}

func storyMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics <story_id>",
		Short: "Show a story's accuracy metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListAccuracyMetrics(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func contractCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "contract",
		Short: "Work with handoff contracts",
	}
	c.AddCommand(contractValidateCmd())
	return c
}

func contractValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a contract JSON document",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var c contract.Contract
			if err := json.Unmarshal(data, &c); err != nil {
				return fmt.Errorf("invalid contract json: %w", err)
			}
			var v contract.Validator
			res := v.Validate(&c)
			if viper.GetBool("json") {
				return printJSON(res)
			}
			if res.Valid {
				fmt.Println("contract OK")
			} else {
				for _, e := range res.Errors {
					fmt.Println("error:", e)
				}
			}
			for _, w := range res.Warnings {
				fmt.Println("warning:", w)
			}
			if !res.Valid {
				return fmt.Errorf("contract invalid")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to contract JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is the rulebook: thresholds for DNA compliance and quality gates, approval weights, and the revision budget. Stored in devteam.yml.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default devteam.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(teamID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "devteam", "team id")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return printJSONOrTable(a.Cfg)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err == nil {
				err = cfg.Validate()
			}
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
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: stories received, stage handoffs, gate warnings, and final decisions.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, storyID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				events, err := a.Repo.ListEvents(ctx, repo.EventFilters{
					StoryID: storyID,
					Type:    evtType,
					Limit:   n,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&storyID, "story", "", "story id filter")
	return cmd
}

func keyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "key",
		Short: "Manage API keys",
	}
	key.AddCommand(keyCreateCmd())
	key.AddCommand(keyListCmd())
	key.AddCommand(keyDeleteCmd())
	return key
}

func keyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				raw := "dtk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				rec := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := a.Repo.InsertAPIKey(ctx, rec); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": rec.ID, "key": raw})
				}
				// The raw key is shown once and never stored.
				fmt.Println("key id:", rec.ID)
				fmt.Println("api key:", raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func keyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func keyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key_id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return a.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer a.Close()
			jwtSecret := os.Getenv("DEVTEAM_JWT_SECRET")
			if jwtSecret == "" {
				jwtSecret = a.Cfg.Server.JWTSecret
			}
			if jwtSecret == "" {
				return fmt.Errorf("DEVTEAM_JWT_SECRET is required for bearer auth")
			}
			runner := pipeline.New(a.DB, a.Cfg, a.Log)
			notify.Start(a.Repo, a.Cfg, a.Log)
			handler, err := server.New(server.Config{
				Runner:   runner,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:        jwtSecret,
					AllowActorHeader: a.Cfg.Server.AllowActorHeader,
					Logger:           a.Log,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving DevTeam API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withRunner(ctx context.Context, fn func(context.Context, *pipeline.Runner) error) error {
	return withWorkspace(ctx, func(ctx context.Context, a *app.Context) error {
		return fn(ctx, pipeline.New(a.DB, a.Cfg, a.Log))
	})
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
