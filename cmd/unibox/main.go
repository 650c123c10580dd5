package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/unibox/internal/app"
	"github.com/nhle/unibox/internal/credential"
	"github.com/nhle/unibox/internal/logging"
	"github.com/nhle/unibox/internal/model"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	cfgPath    string
	jsonOutput bool
	userID     string

	cfg         *model.AppConfig
	logger      *zap.Logger
	application *app.App
)

var rootCmd = &cobra.Command{
	Use:           "unibox",
	Short:         "unibox - unified inbox with AI triage and reply drafting",
	Long:          "Unibox syncs Gmail, Outlook, and IMAP mailboxes, annotates new mail with an AI model, and drafts replies grounded in your catalog.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !needsApp(cmd) {
			return nil
		}

		var err error
		cfg, err = model.LoadConfig(cfgPath)
		if err != nil {
			return err
		}

		logger, err = logging.New(cfg.Log)
		if err != nil {
			return err
		}

		if err := credential.Fill(cfg, credential.Get); err != nil {
			// The keyring is optional; config and env may carry everything.
			logger.Warn("reading keyring", zap.Error(err))
		}

		application, err = app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("starting unibox: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil {
			if err := application.Close(); err != nil {
				logger.Warn("shutdown", zap.Error(err))
			}
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// needsApp reports whether cmd touches the database or providers.
func needsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "secrets", "completion":
			return false
		}
	}
	return cmd.Runnable()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "unibox version %s\n", Version)
	},
}

// printJSON writes v as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireUser() error {
	if userID == "" {
		return fmt.Errorf("--user is required (or set UNIBOX_USER)")
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", model.DefaultConfigPath(), "Config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&userID, "user", os.Getenv("UNIBOX_USER"), "User the command acts for")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
