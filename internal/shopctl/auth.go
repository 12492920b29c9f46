package shopctl

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

type session struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
}

func newRegisterCmd(a *app) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new user and store the issued token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := promptPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			client, _ := a.client(false)
			var resp session
			body := map[string]string{"email": email, "password": password, "name": name}
			if err := client.PostJSON(cmd.Context(), "/auth/register", body, &resp); err != nil {
				return describe(err)
			}
			if err := a.saveToken(resp.Token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", resp.User.Email, resp.User.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the issued token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := promptPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			client, _ := a.client(false)
			var resp session
			body := map[string]string{"email": email, "password": password}
			if err := client.PostJSON(cmd.Context(), "/auth/login", body, &resp); err != nil {
				return describe(err)
			}
			if resp.Token == "" {
				return errors.New("gateway returned no token")
			}
			if err := a.saveToken(resp.Token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", resp.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newProfileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the profile of the logged in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client(true)
			if err != nil {
				return err
			}
			var profile map[string]any
			if err := client.GetJSON(cmd.Context(), "/auth/profile", &profile); err != nil {
				return describe(err)
			}
			return printJSON(cmd.OutOrStdout(), profile)
		},
	}
}
