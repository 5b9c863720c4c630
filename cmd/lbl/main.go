package main

import (
	"bufio"
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

	"labelline/internal/config"
	"labelline/internal/db"
	"labelline/internal/domain"
	"labelline/internal/engine"
	"labelline/internal/migrate"
	"labelline/internal/repo"
	"labelline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "lbl",
	Short: "Labelline CLI",
	Long: `Labelline runs the task assignment and review workflow behind a
data-annotation platform: projects own a pool of work units, workers pull
batches of assignments, reviewers approve or reject submissions, and
per-worker performance stats roll up as reviews land.`,
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
	viper.SetEnvPrefix("LABELLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(unitsCmd())
	rootCmd.AddCommand(allocateCmd())
	rootCmd.AddCommand(assignmentCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(categoriesCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	var labels []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project with its label taxonomy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Name == "" {
				return fmt.Errorf("--name required")
			}
			opts.ActorID = viper.GetString("actor-id")
			for _, raw := range labels {
				// --label name[:color[:guideline]]
				parts := strings.SplitN(raw, ":", 3)
				lc := engine.LabelClassInput{Name: parts[0]}
				if len(parts) > 1 {
					lc.Color = parts[1]
				}
				if len(parts) > 2 {
					lc.Guideline = parts[2]
				}
				opts.LabelClasses = append(opts.LabelClasses, lc)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (random UUID if omitted)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().Float64Var(&opts.PricePerLabel, "price", 0, "price per approved label")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (RFC3339)")
	cmd.Flags().StringArrayVar(&labels, "label", []string{}, "label class name[:color[:guideline]] (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Price/Label", "Deadline", "Created"})
				for _, p := range items {
					deadline := ""
					if p.Deadline != nil {
						deadline = *p.Deadline
					}
					tw.AppendRow(table.Row{p.ID, p.Name, p.PricePerLabel, deadline, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project and its labels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := resolveProject(ctx, r)
				if err != nil {
					return err
				}
				labels, err := r.ListLabelClasses(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"project":       p,
					"label_classes": labels,
				})
			})
		},
	}
	return cmd
}

func unitsCmd() *cobra.Command {
	units := &cobra.Command{Use: "units", Short: "Manage the work unit pool"}
	units.AddCommand(unitsImportCmd())
	return units
}

func unitsImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import [storage-ref ...]",
		Short: "Import work units from args or a file of storage refs",
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := append([]string{}, args...)
			if filePath != "" {
				fileRefs, err := readLines(filePath)
				if err != nil {
					return err
				}
				refs = append(refs, fileRefs...)
			}
			if len(refs) == 0 {
				return fmt.Errorf("no storage refs given; pass args or --file")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := resolveProject(ctx, e.Repo)
				if err != nil {
					return err
				}
				units, err := e.ImportWorkUnits(ctx, p.ID, refs, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("Imported %d work units into %s\n", len(units), p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "file with one storage ref per line")
	return cmd
}

func allocateCmd() *cobra.Command {
	var workerID string
	var quantity int
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Allocate a batch of work units to a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workerID == "" {
				workerID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := resolveProject(ctx, e.Repo)
				if err != nil {
					return err
				}
				if quantity <= 0 {
					quantity = e.Config.Allocation.DefaultQuantity
				}
				assignments, err := e.Allocate(ctx, p.ID, workerID, quantity)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(assignments)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Assignment", "Work Unit", "Status"})
				for _, a := range assignments {
					tw.AppendRow(table.Row{a.ID, a.WorkUnitID, a.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&workerID, "worker", "", "worker id (defaults to --actor-id)")
	cmd.Flags().IntVar(&quantity, "quantity", 0, "batch size (config default if omitted)")
	return cmd
}

func assignmentCmd() *cobra.Command {
	asg := &cobra.Command{Use: "assignment", Short: "Work on assignments"}
	asg.AddCommand(assignmentListCmd())
	asg.AddCommand(assignmentShowCmd())
	asg.AddCommand(assignmentSubmitCmd())
	return asg
}

func assignmentListCmd() *cobra.Command {
	var workerID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workerID == "" {
				workerID = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				filters := repo.AssignmentFilters{WorkerID: workerID, Status: status}
				if p, err := resolveProject(ctx, r); err == nil {
					filters.ProjectID = p.ID
				}
				items, err := r.ListAssignments(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Work Unit", "Status", "Assigned", "Submitted"})
				for _, a := range items {
					submitted := ""
					if a.SubmittedAt != nil {
						submitted = *a.SubmittedAt
					}
					tw.AppendRow(table.Row{a.ID, a.WorkUnitID, a.Status, a.AssignedAt, submitted})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&workerID, "worker", "", "worker id (defaults to --actor-id)")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func assignmentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an assignment's detail (starts work on first view)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				detail, err := e.GetDetail(ctx, viper.GetString("actor-id"), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(detail)
			})
		},
	}
	return cmd
}

func assignmentSubmitCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit an assignment with annotations from a JSON file",
		Long: `The file is a JSON array of {"label_class_id": ..., "value": ...} objects.
The annotation set replaces whatever was saved before.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readAnnotations(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Submit(ctx, viper.GetString("actor-id"), args[0], inputs); err != nil {
					return err
				}
				fmt.Printf("Submitted %s for review\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "annotations JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func reviewCmd() *cobra.Command {
	rev := &cobra.Command{Use: "review", Short: "Review submitted assignments"}
	rev.AddCommand(reviewQueueCmd())
	rev.AddCommand(reviewApproveCmd())
	rev.AddCommand(reviewRejectCmd())
	return rev
}

func reviewQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List submitted assignments awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := resolveProject(ctx, e.Repo)
				if err != nil {
					return err
				}
				items, err := e.ReviewQueue(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Assignment", "Storage Ref", "Entries"})
				for _, item := range items {
					tw.AppendRow(table.Row{item.AssignmentID, item.StorageRef, len(item.Entries)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func reviewApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <assignment-id>",
		Short: "Approve a submitted assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				log, err := e.Review(ctx, viper.GetString("actor-id"), args[0], engine.ReviewDecision{Approved: true})
				if err != nil {
					return err
				}
				return printJSONOrTable(log)
			})
		},
	}
	return cmd
}

func reviewRejectCmd() *cobra.Command {
	var category, comment string
	cmd := &cobra.Command{
		Use:   "reject <assignment-id>",
		Short: "Reject a submitted assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				log, err := e.Review(ctx, viper.GetString("actor-id"), args[0], engine.ReviewDecision{
					Approved:      false,
					ErrorCategory: category,
					Comment:       comment,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(log)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "error category (see 'lbl categories')")
	cmd.Flags().StringVar(&comment, "comment", "", "reviewer comment (required for Other)")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func statsCmd() *cobra.Command {
	var workerID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show project statistics and per-worker performance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := resolveProject(ctx, e.Repo)
				if err != nil {
					return err
				}
				if workerID != "" {
					stat, err := e.Repo.GetStat(ctx, workerID, p.ID)
					if err != nil {
						return err
					}
					return printJSONOrTable(stat)
				}
				stats, err := e.GetProjectStatistics(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("Project: %s (%s)\n", stats.ProjectName, stats.ProjectID)
				fmt.Printf("Units: %d total, %d new, %d assigned, %d done\n",
					stats.TotalUnits, stats.NewUnits, stats.Assigned, stats.DoneUnits)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Worker", "Assigned", "Approved", "Rejected", "Efficiency", "Earnings"})
				for _, s := range stats.Workers {
					tw.AppendRow(table.Row{
						s.WorkerID, s.TotalAssigned, s.TotalApproved, s.TotalRejected,
						fmt.Sprintf("%.1f", s.EfficiencyScore), fmt.Sprintf("%.2f", s.EstimatedEarnings),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&workerID, "worker", "", "show a single worker's stat row")
	return cmd
}

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List rejection error categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("json") {
				return printJSON(domain.ErrorCategories)
			}
			for _, c := range domain.ErrorCategories {
				fmt.Println(c)
			}
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				projectID := viper.GetString("project")
				events, err := r.LatestEvents(ctx, n, projectID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, roles, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the secret is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			secret := "lbl_" + uuid.New().String()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key := domain.APIKey{
					ID:      uuid.New().String(),
					ActorID: actorID,
					Roles:   roles,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				fmt.Printf("API key created for %s (roles: %s)\n", actorID, roles)
				fmt.Printf("Secret (save it now, it is not stored): %s\n", secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&roles, "roles", "worker", "comma-separated roles (worker,reviewer,manager)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Roles", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Roles, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
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
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			schemaVersion, err := migrate.Migrate(conn)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              cfg.Auth.JWTSecret,
				AllowLegacyActorHeader: cfg.Auth.AllowActorHeader,
			}
			if authCfg.JWTSecret == "" {
				authCfg.JWTSecret = os.Getenv("LABELLINE_JWT_SECRET")
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("LABELLINE_JWT_SECRET is required for bearer auth")
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Labelline API on http://%s%s (schema v%d, OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, schemaVersion, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (config default if omitted)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (config default if omitted)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

// resolveProject picks the --project flag when set, otherwise the single
// project in the workspace.
func resolveProject(ctx context.Context, r repo.Repo) (domain.Project, error) {
	if target := viper.GetString("project"); target != "" {
		return r.GetProject(ctx, target)
	}
	return r.SingleProject(ctx)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func readAnnotations(path string) ([]engine.AnnotationInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		LabelClassID string          `json:"label_class_id"`
		Value        json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse annotations: %w", err)
	}
	inputs := make([]engine.AnnotationInput, 0, len(raw))
	for _, entry := range raw {
		inputs = append(inputs, engine.AnnotationInput{
			LabelClassID: entry.LabelClassID,
			ValueJSON:    string(entry.Value),
		})
	}
	return inputs, nil
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
