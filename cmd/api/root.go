package main

import (
	"bufio"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/yourusername/sessionauth/internal/auth"
	"github.com/yourusername/sessionauth/internal/config"
	"github.com/yourusername/sessionauth/internal/platform"
)

// configFile は --config で指定された YAML ファイルのパスです。
var configFile string

// NewRootCmd はルートコマンドを作成します。サブコマンド無しなら serve と同じ動作です。
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "api",
		Short:        "Session-based authentication API server",
		SilenceUsage: true,
		RunE:         runServe,
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file overlaying environment variables")

	cmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newHashPasswordCmd(),
	)
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending migrations for the users and sessions tables.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL is required")
	}

	ctx := cmd.Context()
	cmd.Println("Connecting to database...")
	pool, err := platform.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	cmd.Println("Running migrations...")
	if err := platform.Migrate(ctx, pool); err != nil {
		return err
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func newHashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for seeding users",
		Long:  `Hash the given password, or the first line of stdin when no argument is given.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, args)
			if err != nil {
				return err
			}
			digest, err := auth.NewBcryptHasher(cost).Hash(password)
			if err != nil {
				return oops.Code("HASH_FAILED").Wrap(err)
			}
			cmd.Println(digest)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", auth.DefaultBcryptCost, "bcrypt cost")
	return cmd
}

func readPassword(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", oops.Code("INVALID_INPUT").Wrapf(err, "read password from stdin")
		}
		return "", oops.Code("INVALID_INPUT").Errorf("password is empty")
	}
	return line, nil
}
