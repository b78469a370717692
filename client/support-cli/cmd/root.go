package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "support-cli",
	Short: "A CLI client for the RoboSupport case service",
	Long: `A command-line interface for filing support cases with the manufacturer,
following them until they are resolved, and inspecting open cases as an administrator.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "support-cli: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("SUPPORT_SERVER", "http://localhost:8080"), "base URL of the support service")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("SUPPORT_TOKEN"), "JWT from 'support-cli auth login' (or $SUPPORT_TOKEN)")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newClient() *apiClient {
	return &apiClient{baseURL: serverURL, token: authToken}
}
