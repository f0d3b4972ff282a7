package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"superpaste/svc/api"
	"superpaste/svc/cache"
	"superpaste/svc/lim"
	"superpaste/svc/util"
)

func newEmulateCommand(cli *CLI) *cobra.Command {
	var tokens []string
	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Serve the hastebin, mystb.in and paste.ee protocols locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cli.cfg.Emu
			store, err := cache.NewLRU(c.CacheSize)
			if err != nil {
				return err
			}
			var limiter *lim.Limiter
			if c.RateRPM > 0 {
				limiter = lim.New(c.RateRPM, c.RateBurst)
				defer limiter.Stop()
				util.Info().Int("rpm", c.RateRPM).Int("burst", c.RateBurst).Msg("rate limiter initialized")
			}
			var opts []api.Option
			for _, tok := range tokens {
				opts = append(opts, api.WithToken(tok))
			}
			server := api.NewServer(c, store, limiter, opts...)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()
			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}
			util.Info().Msg("shutting down gracefully...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				util.Error().Err(err).Msg("emulator shutdown error")
				return err
			}
			util.Info().Msg("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tokens, "token", nil, "accept this API token from clients (repeatable)")
	return cmd
}
