package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/messenger/internal/proto"
)

var passwordFlag string

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVarP(&passwordFlag, "password", "p", "", "password (prompted when empty)")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(logoutCmd)
}

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create an account and sign in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd, args[0], true)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Sign in and store the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd, args[0], false)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		e.cfg.Auth = AuthConfig{}
		if err := saveConfig(e.path, e.cfg); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

func authenticate(cmd *cobra.Command, username string, create bool) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	var resp *proto.AuthResponse
	if create {
		resp, err = e.api.Register(cmd.Context(), username, password)
	} else {
		resp, err = e.api.Login(cmd.Context(), username, password)
	}
	if err != nil {
		return err
	}

	e.cfg.Auth = AuthConfig{Token: resp.Token, UserID: resp.User.ID, Username: resp.User.Username}
	if err := saveConfig(e.path, e.cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (id %d).\n", resp.User.Username, resp.User.ID)
	return nil
}

func readPassword(cmd *cobra.Command) (string, error) {
	if passwordFlag != "" {
		return passwordFlag, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
