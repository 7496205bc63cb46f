package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/app"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/config"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/db"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/domain"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/engine"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/logger"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/migrate"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "issuetracker",
	Short: "Maintenance issue tracker",
	Long: `issuetracker records equipment problems reported by production staff and
follows them until maintenance closes them.
- Machines: registered equipment, each with a QR label (MACH001, MACH002, ...).
- Issues: reported -> assigned -> in_progress -> closed. Closing needs a resolution.
- Users: a service (production or maintenance) and a role (technician, team_leader, supervisor, manager).
- Realtime: every lifecycle change is pushed over /ws and optionally relayed to NATS or webhooks.`,
	SilenceUsage: true,
}

func main() {
	_ = godotenv.Load()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ISSUETRACKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// Names used by existing deployments.
	_ = viper.BindEnv("jwt-secret", "ISSUETRACKER_JWT_SECRET", "JWT_SECRET_KEY", "SECRET_KEY")
	_ = viper.BindEnv("db", "ISSUETRACKER_DB", "DATABASE_URL")
	_ = viper.BindEnv("cors-origins", "ISSUETRACKER_CORS_ORIGINS", "CORS_ORIGINS")
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", config.FileName, "config file (optional)")
	flags.String("addr", "", "listen address (overrides server.addr)")
	flags.String("db", "", "database path or sqlite:/// url (overrides database.path)")
	flags.String("log-level", "", "log level (overrides log.level)")
	flags.Bool("json", false, "output JSON")
	for _, name := range []string{"config", "addr", "db", "log-level", "json"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(analyticsCmd())
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.SeedAdmin(ctx); err != nil {
					return err
				}
				cfg := a.Config
				handler, err := server.New(server.Config{
					Engine:             a.Engine,
					Auth:               a.Auth,
					Analytics:          a.Analytics,
					Hub:                a.Hub,
					Labels:             a.Labels.Encoder,
					BasePath:           cfg.Server.BasePath,
					CORSOrigins:        cfg.Server.CORSOrigins,
					ExportRequiresAuth: cfg.Server.ExportRequiresAuth,
					Log:                a.Log.Named("http"),
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Log.Infow("serving issue tracker",
					"addr", cfg.Server.Addr,
					"base_path", cfg.Server.BasePath,
					"openapi", cfg.Server.BasePath+"/openapi.json",
					"websocket", "/ws",
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Path: cfg.Database.Path})
			if err != nil {
				return err
			}
			defer conn.Close()
			applied, err := migrate.Migrate(cmd.Context(), conn)
			if err != nil {
				return err
			}
			version, err := migrate.Version(cmd.Context(), conn)
			if err != nil {
				return err
			}
			fmt.Printf("Applied %d migration(s) to %s, schema version %d\n", applied, db.ResolvePath(cfg.Database.Path), version)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect or create the config file"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o600); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			redacted := *cfg
			redacted.Auth.JWTSecret = "********"
			redacted.Admin.Password = "********"
			if viper.GetBool("json") {
				return printJSON(redacted)
			}
			out, err := yaml.Marshal(&redacted)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	cfgCmd.AddCommand(initCmd, showCmd)
	return cfgCmd
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage user accounts"}
	usr.AddCommand(userCreateCmd())
	usr.AddCommand(userListCmd())
	return usr
}

func userCreateCmd() *cobra.Command {
	var in engine.RegisterInput
	var service, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Service = domain.Service(service)
			in.Role = domain.Role(role)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.Register(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				fmt.Printf("Created user %s (%s, %s/%s)\n", u.ID, u.Matricule, u.Service, u.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.UserID, "id", "", "user id (defaults to the matricule)")
	cmd.Flags().StringVar(&in.Matricule, "matricule", "", "matricule number")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "password")
	cmd.Flags().StringVar(&service, "service", string(domain.ServiceMaintenance), "production or maintenance")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleTechnician), "technician, team_leader, supervisor or manager")
	_ = cmd.MarkFlagRequired("matricule")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Engine.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Matricule", "Name", "Service", "Role"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Matricule, u.Name, u.Service, u.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	seed := &cobra.Command{Use: "seed", Short: "Load demo data"}
	var count int
	issues := &cobra.Command{
		Use:   "issues",
		Short: "Create demo issues spread over the last 30 days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Engine.SeedTestIssues(ctx, count, nil)
				if err != nil {
					return err
				}
				fmt.Printf("Created %d test issue(s)\n", n)
				return nil
			})
		},
	}
	issues.Flags().IntVar(&count, "count", 10, "number of issues to create")
	seed.AddCommand(issues)
	return seed
}

func issueCmd() *cobra.Command {
	iss := &cobra.Command{Use: "issue", Short: "Inspect issues"}
	var q engine.ListQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List issues, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				page, err := a.Engine.ListIssues(ctx, operator(), q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Machine", "Urgency", "Status", "Reporter", "Technician", "Created"})
				for _, is := range page.Issues {
					tw.AppendRow(table.Row{
						is.ID,
						is.MachineName,
						is.Urgency,
						is.Status,
						summaryName(is.Reporter),
						summaryName(is.AssignedTech),
						is.CreatedAt.Format("2006-01-02 15:04"),
					})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("page %d/%d", page.CurrentPage, page.Pages), fmt.Sprintf("%d total", page.Total)})
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&q.Status, "status", "", "status filter, comma separated")
	list.Flags().StringVar(&q.Urgency, "urgency", "", "urgency filter")
	list.Flags().StringVar(&q.MachineID, "machine", "", "machine id")
	list.Flags().StringVar(&q.Date, "date", "", "creation day (YYYY-MM-DD)")
	list.Flags().IntVar(&q.Page, "page", 1, "page number")
	list.Flags().IntVar(&q.PerPage, "per-page", engine.DefaultPerPage, "page size")
	iss.AddCommand(list)
	return iss
}

func analyticsCmd() *cobra.Command {
	an := &cobra.Command{Use: "analytics", Short: "Show aggregate statistics"}
	an.AddCommand(&cobra.Command{
		Use:   "dashboard",
		Short: "Totals and distributions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Analytics.Dashboard(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Metric", "Value"})
				tw.AppendRows([]table.Row{
					{"Total issues", d.Summary.TotalIssues},
					{"Open issues", d.Summary.OpenIssues},
					{"High priority open", d.Summary.HighPriority},
					{"Avg resolution (h)", d.Summary.AvgResolutionTimeHours},
					{"Reported today", d.Summary.IssuesToday},
				})
				tw.AppendSeparator()
				for _, s := range domain.Statuses {
					tw.AppendRow(table.Row{"status " + string(s), d.ByStatus[string(s)]})
				}
				for _, u := range domain.Urgencies {
					tw.AppendRow(table.Row{"urgency " + string(u), d.ByUrgency[string(u)]})
				}
				tw.Render()
				return nil
			})
		},
	})
	an.AddCommand(&cobra.Command{
		Use:   "machines",
		Short: "Issue counts per machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				stats, err := a.Analytics.ByMachine(ctx, operator())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Machine", "Name", "Total", "Closed", "High urgency"})
				for _, s := range stats {
					tw.AppendRow(table.Row{s.MachineID, s.MachineName, s.TotalIssues, s.ClosedIssues, s.HighUrgencyIssues})
				}
				tw.Render()
				return nil
			})
		},
	})
	an.AddCommand(&cobra.Command{
		Use:   "technicians",
		Short: "Workload per maintenance technician",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				stats, err := a.Analytics.ByTechnician(ctx, operator())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Technician", "Name", "Assigned", "Closed", "Avg resolution (h)"})
				for _, s := range stats {
					tw.AppendRow(table.Row{s.Technician.ID, s.Technician.Name, s.AssignedIssues, s.ClosedIssues, fmt.Sprintf("%.2f", s.AvgResolutionTimeHours)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return an
}

// --- helpers ---

// loadConfig reads the config file and applies flag and environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := viper.GetString("db"); v != "" {
		cfg.Database.Path = v
	}
	if v := viper.GetString("jwt-secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := viper.GetString("cors-origins"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("nats-url"); v != "" {
		cfg.Realtime.NATSURL = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// operator is the identity used by local administrative commands.
func operator() domain.Principal {
	return domain.Principal{
		ID:      "cli",
		Name:    "Command line",
		Service: domain.ServiceMaintenance,
		Role:    domain.RoleManager,
		Active:  true,
	}
}

func summaryName(s *domain.UserSummary) string {
	if s == nil {
		return "-"
	}
	return s.Name
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
