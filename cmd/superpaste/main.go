package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"superpaste/cfg"
	"superpaste/pkg/creds"
	"superpaste/svc/util"
)

const secretCacheTTL = 5 * time.Minute

// CLI carries state shared by every subcommand.
type CLI struct {
	cfg     *cfg.Cfg
	secrets creds.Provider
	cache   *creds.Cache
	in      io.Reader
	out     io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand(&CLI{in: os.Stdin, out: os.Stdout}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(cli *CLI) *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "superpaste",
		Short:         "Create and fetch pastes on hastebin-style services",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.initialize(cmd.Context(), envFile)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			cli.close()
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.AddCommand(
		newCreateCommand(cli),
		newGetCommand(cli),
		newBackendsCommand(cli),
		newEmulateCommand(cli),
	)
	return root
}

func (cli *CLI) initialize(ctx context.Context, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	c, err := cfg.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(c); err != nil {
		return err
	}
	util.InitLog(c.LogLevel, c.Environment == "development")
	cli.cfg = c
	if c.TokensFromSecrets {
		adapter, err := creds.NewAdapter(ctx)
		if err != nil {
			return err
		}
		cli.cache = creds.NewCache(adapter, secretCacheTTL)
		cli.secrets = cli.cache
		util.Debug().Msg("backend tokens resolved through secret providers")
	}
	return nil
}

func (cli *CLI) close() {
	if cli.cache != nil {
		cli.cache.Stop()
	}
	if cli.cfg != nil {
		cli.cfg.Wipe()
	}
}
