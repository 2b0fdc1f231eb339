package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	accountName     string
	accountEmail    string
	accountPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the story service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			user, err := a.manager.Login(ctx, accountEmail, password())
			if err != nil {
				return err
			}
			printInfo(fmt.Sprintf("Logged in as %s.", user.Name))

			if n, _ := a.queue.Len(); n > 0 {
				printWarn(fmt.Sprintf("%d pending actions; run `storykeep sync` to upload them.", n))
			}
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if err := a.manager.Logout(); err != nil {
				return err
			}
			printInfo("Logged out.")
			return nil
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if err := a.manager.Register(ctx, accountName, accountEmail, password()); err != nil {
				return err
			}
			printInfo("Account created. Log in with `storykeep login`.")
			return nil
		})
	},
}

// password prefers the flag and falls back to STORYKEEP_PASSWORD so it can
// stay out of shell history.
func password() string {
	if accountPassword != "" {
		return accountPassword
	}
	return os.Getenv("STORYKEEP_PASSWORD")
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVarP(&accountEmail, "email", "e", "", "Account email")
		c.Flags().StringVarP(&accountPassword, "password", "p", "", "Account password (or STORYKEEP_PASSWORD)")
		_ = c.MarkFlagRequired("email")
	}
	registerCmd.Flags().StringVarP(&accountName, "name", "n", "", "Display name")
	_ = registerCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(loginCmd, logoutCmd, registerCmd)
}
