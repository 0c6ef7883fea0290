package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/dotpersona/pkg/agent"
	"github.com/dotsetgreg/dotpersona/pkg/bus"
	"github.com/dotsetgreg/dotpersona/pkg/config"
	"github.com/dotsetgreg/dotpersona/pkg/logger"
	"github.com/dotsetgreg/dotpersona/pkg/maintenance"
	"github.com/dotsetgreg/dotpersona/pkg/memory"
	"github.com/dotsetgreg/dotpersona/pkg/personality"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	format     string
	debug      bool
}

func executeCLI() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return buildRootCommand().ExecuteContext(ctx)
}

func buildRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Per-user personality adaptation and response quality evaluation",
		Long: strings.TrimSpace(`dotpersona keeps a personality profile per user, nudges it toward the style
of each message, and scores the replies it produces.

Use CLI commands to chat locally, evaluate message/response pairs, inspect
profiles and quality reports, take backups, and run the line-oriented gateway.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigPath(), "Path to config.json")
	root.PersistentFlags().StringVarP(&opts.format, "output", "o", formatJSON, "Output format: json or yaml")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newChatCommand(opts))
	root.AddCommand(newEvaluateCommand(opts))
	root.AddCommand(newReportCommand(opts))
	root.AddCommand(newUsersCommand(opts))
	root.AddCommand(newStatsCommand(opts))
	root.AddCommand(newBackupCommand(opts))
	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newVersionCommand())
	return root
}

// runtimeDeps is everything a command needs after config load.
type runtimeDeps struct {
	cfg   *config.Config
	agent *agent.Agent
	close func() error
}

func (o *rootOptions) load(mb *bus.MessageBus) (*runtimeDeps, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := logger.ParseLevel(cfg.Logging.Level)
	if o.debug {
		level = logger.DEBUG
	}
	if err := logger.Init(logger.Options{
		Level:       level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, closer, err := agent.NewFromConfig(cfg, mb)
	if err != nil {
		return nil, err
	}
	return &runtimeDeps{cfg: cfg, agent: a, close: func() error {
		_ = logger.Sync()
		return closer()
	}}, nil
}

func newChatCommand(opts *rootOptions) *cobra.Command {
	var (
		userID  string
		message string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat locally with an adapting persona",
		Long:  "Run an interactive session, or send one message with --message. Every turn is adapted, answered and evaluated.",
		Example: strings.Join([]string{
			"  dotpersona chat --user alice",
			"  dotpersona chat --user alice --message \"could you explain the algorithm?\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := opts.load(nil)
			if err != nil {
				return err
			}
			defer deps.close()

			session := &chatSession{agent: deps.agent, userID: agent.ResolveUserID(userID, "cli", currentUser())}
			if strings.TrimSpace(message) != "" {
				turn, ev, err := session.turn(cmd.Context(), message)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), opts.format, chatOutput{Turn: turn, Evaluation: ev})
			}
			return session.interactive(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id (defaults to one derived from the OS user)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot message")
	return cmd
}

func newEvaluateCommand(opts *rootOptions) *cobra.Command {
	var (
		userID   string
		message  string
		response string
		latency  time.Duration
	)
	cmd := &cobra.Command{
		Use:     "evaluate",
		Short:   "Score a message/response pair",
		Example: "  dotpersona evaluate --user alice --message \"how does sorting work?\" --response \"...\" --latency 1.5s",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return fmt.Errorf("--user is required")
			}
			deps, err := opts.load(nil)
			if err != nil {
				return err
			}
			defer deps.close()

			res := deps.agent.EvaluateTurn(cmd.Context(), userID, message, response, latency)
			return writeOutput(cmd.OutOrStdout(), opts.format, res)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id")
	cmd.Flags().StringVarP(&message, "message", "m", "", "User message")
	cmd.Flags().StringVarP(&response, "response", "r", "", "Agent response")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Response latency")
	return cmd
}

func newReportCommand(opts *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:     "report",
		Short:   "Show a user's quality report",
		Example: "  dotpersona report --user alice -o yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := opts.load(nil)
			if err != nil {
				return err
			}
			defer deps.close()

			report, err := deps.agent.QualityReport(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.format, report)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id")
	return cmd
}

func newUsersCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "users",
		Short:   "List users with a stored profile",
		Example: "  dotpersona users",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := opts.load(nil)
			if err != nil {
				return err
			}
			defer deps.close()

			users, err := deps.agent.Store().ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if users == nil {
				users = []string{}
			}
			return writeOutput(cmd.OutOrStdout(), opts.format, users)
		},
	}
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics for one user or across all users",
		Example: strings.Join([]string{
			"  dotpersona stats",
			"  dotpersona stats --user alice",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := opts.load(nil)
			if err != nil {
				return err
			}
			defer deps.close()

			store := deps.agent.Store()
			if strings.TrimSpace(userID) != "" {
				stats, err := store.UserStats(cmd.Context(), userID)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), opts.format, userStatsOutput{
					UserStats: stats,
					Summary:   personality.Describe(stats.PersonalityVector),
				})
			}
			stats, err := store.GlobalStats(cmd.Context())
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.format, globalStatsOutput{
				GlobalStats: stats,
				Cache:       store.CacheStats(),
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id")
	return cmd
}

type userStatsOutput struct {
	memory.UserStats `yaml:",inline"`
	Summary          map[personality.Dimension]string `json:"personality_summary" yaml:"personality_summary"`
}

type globalStatsOutput struct {
	memory.GlobalStats `yaml:",inline"`
	Cache              memory.CacheStats `json:"cache" yaml:"cache"`
}

func newBackupCommand(opts *rootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:     "backup",
		Short:   "Snapshot every stored profile",
		Long:    "Copy every profile into a new timestamped directory and prune snapshots beyond maintenance.keep_backups.",
		Example: "  dotpersona backup --dir /var/backups/dotpersona",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := opts.load(nil)
			if err != nil {
				return err
			}
			defer deps.close()

			if strings.TrimSpace(dir) == "" {
				dir = deps.cfg.BackupDir()
			}
			sched, err := maintenance.NewScheduler("", deps.agent.Store(), dir, deps.cfg.Maintenance.KeepBackups)
			if err != nil {
				return err
			}
			report, err := sched.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.format, report)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Snapshot root (defaults to maintenance.backup_dir)")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  dotpersona version",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", appName, formatVersion())
			build, goVer := formatBuildInfo()
			if build != "" {
				fmt.Fprintf(out, "  Build: %s\n", build)
			}
			if goVer != "" {
				fmt.Fprintf(out, "  Go: %s\n", goVer)
			}
			return nil
		},
	}
}

func currentUser() string {
	for _, key := range []string{"USER", "USERNAME"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}
