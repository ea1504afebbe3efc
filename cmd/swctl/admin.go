package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"siteworker/internal/users"
)

var (
	adminUsername string
	adminPassword string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage the admin account",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin user without the bootstrap token",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := resolvePassword()
		if err != nil {
			return err
		}

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		user, err := users.CreateAdmin(e.dbManager.GetConnection(), e.logger, adminUsername, password)
		if err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}
		fmt.Printf("Admin %q created (id %d)\n", user.Username, user.ID)
		return nil
	},
}

var adminResetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Set a new password and revoke existing sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := resolvePassword()
		if err != nil {
			return err
		}

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := users.ResetPassword(e.dbManager.GetConnection(), e.logger, adminUsername, password); err != nil {
			return fmt.Errorf("failed to reset password: %w", err)
		}
		fmt.Printf("Password for %q updated; existing sessions revoked\n", adminUsername)
		return nil
	},
}

func setDisabledCmd(use, short string, disabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := users.SetDisabled(e.dbManager.GetConnection(), e.logger, adminUsername, disabled); err != nil {
				return err
			}
			fmt.Printf("Admin %q disabled=%t\n", adminUsername, disabled)
			return nil
		},
	}
}

// resolvePassword takes --password, prompts twice on a terminal, or reads one
// line from piped stdin.
func resolvePassword() (string, error) {
	if adminPassword != "" {
		return adminPassword, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password from stdin: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Print("New admin password: ")
	first, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Print("Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

func init() {
	disableCmd := setDisabledCmd("disable", "Block an admin from logging in", true)
	enableCmd := setDisabledCmd("enable", "Allow a disabled admin to log in again", false)

	for _, c := range []*cobra.Command{adminCreateCmd, adminResetPasswordCmd, disableCmd, enableCmd} {
		c.Flags().StringVar(&adminUsername, "username", "", "Admin username (required)")
		c.MarkFlagRequired("username")
		adminCmd.AddCommand(c)
	}
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "Password (prompted when omitted)")
	adminResetPasswordCmd.Flags().StringVar(&adminPassword, "password", "", "Password (prompted when omitted)")

	rootCmd.AddCommand(adminCmd)
}
