package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a secp256k1 key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := eth.GenerateKeyPair()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				SecretKey string `json:"secret_key"`
				PublicKey string `json:"public_key"`
			}{kp.SecretKey, kp.PublicKey})
		},
	}
}

func newTokenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			get := s.auth.Token
			if force {
				get = s.auth.RefreshToken
			}
			token, err := get(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "acquire a new token even if the cached one is valid")
	return cmd
}

func newWalletIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallet-id",
		Short: "Authenticate and print the wallet pub key id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			if _, err := s.auth.Token(cmd.Context()); err != nil {
				return err
			}
			id, ok := s.auth.WalletPubKeyID()
			if !ok {
				return core.PermanentFailure("wallet pub key id unknown after authentication")
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func parseTerms(s string) (core.TermsAndConditions, error) {
	switch strings.ToLower(s) {
	case "lipa":
		return core.TermsAndConditionsLipa, nil
	case "pocket":
		return core.TermsAndConditionsPocket, nil
	}
	return 0, core.InvalidInput(fmt.Sprintf("unknown terms %q, expected lipa or pocket", s))
}

func newTermsCmd() *cobra.Command {
	var termsName string
	cmd := &cobra.Command{
		Use:   "terms",
		Short: "Accept or inspect terms and conditions",
	}
	cmd.PersistentFlags().StringVar(&termsName, "terms", "lipa", "terms to act on: lipa or pocket")

	var version int64
	accept := &cobra.Command{
		Use:   "accept",
		Short: "Accept a version of the terms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := parseTerms(termsName)
			if err != nil {
				return err
			}
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.auth.AcceptTermsAndConditions(cmd.Context(), terms, version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accepted %s version %d\n", terms, version)
			return nil
		},
	}
	accept.Flags().Int64Var(&version, "version", 1, "version of the terms being accepted")

	status := &cobra.Command{
		Use:   "status",
		Short: "Print whether the terms were accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := parseTerms(termsName)
			if err != nil {
				return err
			}
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			st, err := s.auth.TermsAndConditionsStatus(cmd.Context(), terms)
			if err != nil {
				return err
			}
			out := struct {
				Terms      string     `json:"terms"`
				Accepted   bool       `json:"accepted"`
				AcceptedAt *time.Time `json:"accepted_at,omitempty"`
				Version    int64      `json:"version"`
			}{st.TermsAndConditions.String(), st.AcceptedAt != nil, st.AcceptedAt, st.Version}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
		},
	}

	cmd.AddCommand(accept, status)
	return cmd
}

func newWatchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the token fresh and log every renewal",
		Long: `watch asks for a token every interval until interrupted. A renewed token
is logged, and when WALLETAUTH_METRICS_ADDR is set the client metrics are served there.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return core.InvalidInput(fmt.Sprintf("interval must be positive, got %s", interval))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			g, ctx := errgroup.WithContext(ctx)
			if s.cfg.MetricsAddr != "" {
				g.Go(func() error { return s.serveMetrics(ctx) })
			}
			g.Go(func() error {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				var last string
				for {
					token, err := s.auth.Token(ctx)
					switch {
					case err != nil && ctx.Err() != nil:
						return nil
					case err != nil && core.KindOf(err) != core.KindRuntime:
						return err
					case err != nil:
						s.logger.Warn().Err(err).Msg("token renewal failed, retrying")
					case token != last:
						last = token
						s.logger.Info().Msg("token renewed")
					}

					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
				}
			})
			return g.Wait()
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "how often to check the token")
	return cmd
}
