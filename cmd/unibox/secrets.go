package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/unibox/internal/credential"
	"github.com/nhle/unibox/internal/secret"
	"github.com/nhle/unibox/internal/theme"
)

var genKeyStore bool

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Store API keys and client secrets in the OS keyring",
	Long: "Secrets in the keyring fill any config value left empty by the config file and environment.\n\nKeys: " +
		strings.Join(credential.Keys, ", "),
}

func checkKey(key string) error {
	if !slices.Contains(credential.Keys, key) {
		return fmt.Errorf("unknown secret %q (want one of %s)", key, strings.Join(credential.Keys, ", "))
	}
	return nil
}

var secretsSetCmd = &cobra.Command{
	Use:   "set KEY",
	Short: "Store a secret read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkKey(args[0]); err != nil {
			return err
		}
		value, err := readSecret(cmd, args[0]+": ")
		if err != nil {
			return err
		}
		if value == "" {
			return errors.New("empty secret")
		}
		if err := credential.Set(args[0], value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s stored %s\n", theme.SuccessStyle.Render("✓"), args[0])
		return nil
	},
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkKey(args[0]); err != nil {
			return err
		}
		if err := credential.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %s\n", theme.SuccessStyle.Render("✓"), args[0])
		return nil
	},
}

var secretsGenKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Generate a credential encryption key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secret.GenerateKey()
		if err != nil {
			return err
		}
		if !genKeyStore {
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		}
		if err := credential.Set(credential.KeyEncryptionKey, key); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s stored new %s\n", theme.SuccessStyle.Render("✓"), credential.KeyEncryptionKey)
		return nil
	},
}

func init() {
	secretsGenKeyCmd.Flags().BoolVar(&genKeyStore, "store", false, "Store the key in the keyring instead of printing it")

	secretsCmd.AddCommand(secretsSetCmd)
	secretsCmd.AddCommand(secretsDeleteCmd)
	secretsCmd.AddCommand(secretsGenKeyCmd)
	rootCmd.AddCommand(secretsCmd)
}
