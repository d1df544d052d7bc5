package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bfflender/internal/app"
	"bfflender/internal/config"
	"bfflender/internal/db"
	"bfflender/internal/domain"
	"bfflender/internal/engine"
	"bfflender/internal/intake"
	"bfflender/internal/migrate"
	"bfflender/internal/repo"
	"bfflender/internal/server"
	"bfflender/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "bff",
	Short: "BFFLender portal CLI",
	Long: `BFFLender runs the P&L Challenge intake and the client portal behind it.
- Intake: a guided chat that collects a broker's numbers and submits a challenge.
- Challenges: submitted leads move submitted -> pending_verification -> verified -> in_progress -> completed (rejected is a terminal exit).
- Verification: confirming the lead's email provisions a portal account and links it.
- Documents: files attached to a challenge, capped at 10MB each.
- Event log: diary of every change, view with 'bff log tail'.`,
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
	viper.SetEnvPrefix("BFF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-admin", "actor identifier")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(intakeCmd())
	rootCmd.AddCommand(challengeCmd())
	rootCmd.AddCommand(documentCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("BFF_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("BFF_JWT_SECRET is required for bearer auth")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ttl := time.Hour
				if e.Config != nil && e.Config.Auth.TokenTTLMinutes > 0 {
					ttl = time.Duration(e.Config.Auth.TokenTTLMinutes) * time.Minute
				}
				mgr := app.NewIntakeManager(e, e.Config, e.Log)
				handler, err := server.New(server.Config{
					Engine:   e,
					Intake:   mgr,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret, TokenTTL: ttl, Logger: e.Log},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving BFFLender API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- intake ---

func intakeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "intake", Short: "Guided intake"}
	cmd.AddCommand(intakeRunCmd())
	return cmd
}

func intakeRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an intake conversation in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				mgr := app.NewIntakeManager(e, e.Config, e.Log)
				s, err := mgr.StartSession(ctx)
				if err != nil {
					return err
				}
				printed := printTranscript(s.Conversation.Log, 0)

				scanner := bufio.NewScanner(os.Stdin)
				for !s.Conversation.Completed {
					fmt.Print("> ")
					if !scanner.Scan() {
						return scanner.Err()
					}
					s, err = mgr.Submit(ctx, s.Conversation.ID, scanner.Text())
					if err != nil {
						return err
					}
					printed = printTranscript(s.Conversation.Log, printed)
				}
				if s.ChallengeID != "" {
					fmt.Printf("\nChallenge submitted: %s\n", s.ChallengeID)
				}
				return nil
			})
		},
	}
	return cmd
}

func printTranscript(log []intake.Message, from int) int {
	for _, m := range log[from:] {
		switch m.Actor {
		case intake.ActorBot:
			fmt.Printf("  %s\n", m.Text)
		case intake.ActorSystem:
			fmt.Printf("  ! %s\n", m.Text)
		}
		if len(m.Suggestions) > 0 {
			fmt.Printf("    (%s)\n", strings.Join(m.Suggestions, " / "))
		}
	}
	return len(log)
}

// --- challenges ---

func challengeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "challenge", Short: "Manage challenges"}
	cmd.AddCommand(challengeListCmd())
	cmd.AddCommand(challengeShowCmd())
	cmd.AddCommand(challengeUpdateCmd())
	cmd.AddCommand(challengeVerifyCmd())
	return cmd
}

func challengeListCmd() *cobra.Command {
	var status, email string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List challenges",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !domain.KnownStatus(status) {
				return fmt.Errorf("unknown status %q", status)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListChallenges(ctx, repo.ChallengeFilters{Status: status, Email: email, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Status", "Progress", "Submitted"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Email, c.Status, fmt.Sprintf("%d%%", domain.ProgressPercent(c.Status)), c.SubmittedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&email, "email", "", "email filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func challengeShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <challenge-id>",
		Short: "Show a challenge with its user and documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				details, err := e.LoadDetails(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(details)
			})
		},
	}
	return cmd
}

func challengeUpdateCmd() *cobra.Command {
	var status, notes string
	cmd := &cobra.Command{
		Use:   "update <challenge-id>",
		Short: "Update a challenge's status and/or notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.StatusUpdateOptions{ActorID: viper.GetString("actor-id")}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("notes") {
					opts.Notes = &notes
				}
				c, err := e.UpdateStatusAndNotes(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&notes, "notes", "", "replacement notes")
	return cmd
}

func challengeVerifyCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "verify <challenge-id>",
		Short: "Verify a challenge email and provision its portal account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.VerifyChallenge(ctx, args[0], email, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if res.Provisioned {
					fmt.Printf("Provisioned portal account %s (temporary password: %s)\n", res.User.Username, res.TempPassword)
				}
				return printJSONOrTable(res.Challenge)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email to verify against the challenge")
	return cmd
}

// --- documents ---

func documentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "document", Short: "Manage documents"}
	cmd.AddCommand(documentListCmd())
	cmd.AddCommand(documentAttachCmd())
	cmd.AddCommand(documentDeleteCmd())
	return cmd
}

func documentListCmd() *cobra.Command {
	var challengeID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a challenge's documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if challengeID == "" {
				return fmt.Errorf("--challenge required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				docs, err := r.ListChallengeDocuments(ctx, challengeID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(docs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Filename", "Type", "Size", "Created"})
				for _, d := range docs {
					tw.AppendRow(table.Row{d.ID, d.Filename, d.DocumentType, d.Filesize, d.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&challengeID, "challenge", "", "challenge id")
	return cmd
}

func documentAttachCmd() *cobra.Command {
	var challengeID, file, docType, mimeType string
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach a file to a challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			if challengeID == "" || file == "" {
				return fmt.Errorf("--challenge and --file required")
			}
			info, err := os.Stat(file)
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.AttachDocument(ctx, engine.DocumentAttachOptions{
					ChallengeID:  challengeID,
					Filename:     filepath.Base(file),
					MimeType:     mimeType,
					Size:         info.Size(),
					Content:      f,
					DocumentType: docType,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&challengeID, "challenge", "", "challenge id")
	cmd.Flags().StringVar(&file, "file", "", "path to the file")
	cmd.Flags().StringVar(&docType, "type", domain.DocumentCompletion, "document type")
	cmd.Flags().StringVar(&mimeType, "mime-type", "application/octet-stream", "MIME type")
	return cmd
}

func documentDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its stored bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteDocument(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// --- users ---

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage portal users"}
	cmd.AddCommand(userListCmd())
	cmd.AddCommand(userCreateCmd())
	cmd.AddCommand(userAPIKeyCmd())
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List portal users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Username", "Email", "Role", "Created"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.ID, u.Username, u.Email, u.Role, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userCreateCmd() *cobra.Command {
	var username, email, password, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a portal user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || email == "" || password == "" {
				return fmt.Errorf("--username, --email and --password required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, engine.UserCreateOptions{
					Username: username,
					Email:    email,
					Password: password,
					Role:     role,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&role, "role", domain.RoleClient, "role (admin, client)")
	return cmd
}

func userAPIKeyCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "apikey <user-id>",
		Short: "Mint an API key for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, raw, err := e.CreateAPIKey(ctx, args[0], name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("API key (shown once): %s\n", raw)
				return printJSONOrTable(k)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: submissions, status changes, uploads, and account provisioning.",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + "/" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Portal configuration"}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configShowCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default portal.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

// --- helpers ---

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	uploads, err := db.UploadsDir(workspace)
	if err != nil {
		return err
	}
	store, err := storage.NewDiskStore(uploads)
	if err != nil {
		return err
	}
	e := engine.New(conn, store, cfg, newLogger())
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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
