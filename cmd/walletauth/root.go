package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/layer-3/walletauth/core"
)

// Exit codes let scripts tell failures apart
const (
	exitCodeSuccess = 0
	exitCodeError   = 1
	// exitCodeInvalidInput means the configuration or arguments must change
	exitCodeInvalidInput = 2
	// exitCodeAuthFailed means the backend refused the credentials or access expired
	exitCodeAuthFailed = 3
	// exitCodeUnavailable means the backend could not be reached, retrying may help
	exitCodeUnavailable = 4
)

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "walletauth",
		Short: "Obtain and keep fresh access tokens for a wallet",
		Long: `walletauth authenticates a wallet against the auth backend and prints
access tokens. It is configured through WALLETAUTH_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "walletauth version %s\n" .Version}}`)

	root.AddCommand(
		newKeygenCmd(),
		newTokenCmd(),
		newWalletIDCmd(),
		newTermsCmd(),
		newWatchCmd(),
	)
	return root
}

func execute(version string) {
	if err := newRootCmd(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitCodeSuccess)
}

// exitCode maps an error to a process exit code
func exitCode(err error) int {
	switch core.KindOf(err) {
	case core.KindInvalidInput:
		return exitCodeInvalidInput
	case core.KindPermanentFailure:
		return exitCodeError
	}
	switch core.CodeOf(err) {
	case core.CodeAuthServiceError, core.CodeAccessExpired:
		return exitCodeAuthFailed
	case core.CodeNetworkError, core.CodeRemoteServiceUnavailable:
		return exitCodeUnavailable
	}
	return exitCodeError
}
