package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "lockbox",
	Short: "Lockbox is a password-manager backend",
	Long: `A password-manager backend storing envelope-encrypted secrets under
per-user keys derived from a master password. The server never persists
plaintext secrets or derived keys outside of short-lived sessions.
Complete documentation is available at https://github.com/jmcleod/lockbox`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
