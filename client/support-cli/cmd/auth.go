package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Register and log in",
}

var password string

var registerCmd = &cobra.Command{
	Use:   "register [email] [username]",
	Short: "Create an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			UserID string `json:"user_id"`
		}
		body := map[string]string{"email": args[0], "username": args[1], "password": passwordOrEnv()}
		if err := newClient().do("POST", "/api/v1/auth/register", body, &out, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Account created. User ID: %s\n", out.UserID)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login [email or username]",
	Short: "Log in and print a token for --token / $SUPPORT_TOKEN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Token string `json:"token"`
		}
		body := map[string]string{"identifier": args[0], "password": passwordOrEnv()}
		if err := newClient().do("POST", "/api/v1/auth/login", body, &out, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(registerCmd, loginCmd)
	authCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "account password (or $SUPPORT_PASSWORD)")
}

func passwordOrEnv() string {
	if password != "" {
		return password
	}
	return os.Getenv("SUPPORT_PASSWORD")
}
