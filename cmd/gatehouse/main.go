// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface for the Gatehouse server
// using the Cobra library: the root command, its flags, configuration
// loading via Viper, and the main entry point.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toeirei/gatehouse/buildvars"
	"github.com/toeirei/gatehouse/internal/authfile"
	"github.com/toeirei/gatehouse/internal/db"
	"github.com/toeirei/gatehouse/internal/hub"
	"github.com/toeirei/gatehouse/internal/i18n"
	"github.com/toeirei/gatehouse/internal/logging"
	"github.com/toeirei/gatehouse/internal/sshd"
	"github.com/toeirei/gatehouse/internal/store"
)

var version = buildvars.VersionOrDefault("dev")
var cfgFile string

// main is the entry point of the application.
func main() {
	if err := rootCmd.Execute(); err != nil {
		// The error is already printed by Cobra on failure.
		os.Exit(1)
	}
}

var rootCmd *cobra.Command

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd = newRootCmd()

	// Defaults used when neither the config file nor flags set a value.
	viper.SetDefault("listen", ":2222")
	viper.SetDefault("hostkey", "./gatehouse_ed25519")
	viper.SetDefault("store.type", "file")
	viper.SetDefault("store.path", "./authfile")
	viper.SetDefault("store.dsn", "./gatehouse.db")
	viper.SetDefault("auth.rejection_delay", "3s")
	viper.SetDefault("auth.inactivity_timeout", "1h")
	viper.SetDefault("language", "en")
	viper.SetDefault("debug", false)
}

// newRootCmd creates and configures a new root cobra command. Fresh
// instances are also used for isolated testing.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatehouse",
		Short: "Gatehouse is a shared chat room served over SSH, gated by public keys.",
		Long: `Gatehouse serves one shared, append-only chat to every connected
terminal. Access is granted by public key only: each authorized key is
bound to a named entity with a standard or elevated tier. Elevated
sessions can reload the authorization registry live; sessions whose key
was removed are disconnected on the spot.

Entities live in an authfile or in a SQL database (sqlite, postgres,
mysql), selected by store.type.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			i18n.Init(viper.GetString("language"))
			logging.SetDebug(viper.GetBool("debug"))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	cmd.Version = version

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./gatehouse.yaml)")
	cmd.PersistentFlags().String("listen", ":2222", "listen address")
	cmd.PersistentFlags().String("hostkey", "./gatehouse_ed25519", "host key path (generated when missing)")
	cmd.PersistentFlags().String("store-type", "file", `authorization store ("file", "sqlite", "postgres", "mysql")`)
	cmd.PersistentFlags().String("store-path", "./authfile", "authfile path (file store)")
	cmd.PersistentFlags().String("store-dsn", "./gatehouse.db", "database connection string (database stores)")
	cmd.PersistentFlags().String("lang", "en", `language ("en", "de")`)
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	viper.BindPFlag("listen", cmd.PersistentFlags().Lookup("listen"))
	viper.BindPFlag("hostkey", cmd.PersistentFlags().Lookup("hostkey"))
	viper.BindPFlag("store.type", cmd.PersistentFlags().Lookup("store-type"))
	viper.BindPFlag("store.path", cmd.PersistentFlags().Lookup("store-path"))
	viper.BindPFlag("store.dsn", cmd.PersistentFlags().Lookup("store-dsn"))
	viper.BindPFlag("language", cmd.PersistentFlags().Lookup("lang"))
	viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug"))

	return cmd
}

// buildLoader selects the authorization backend from configuration.
func buildLoader(storeType, path, dsn string) (store.Loader, error) {
	switch storeType {
	case "file":
		return authfile.New(path), nil
	case "sqlite", "postgres", "mysql":
		return db.New(storeType, dsn)
	}
	return nil, fmt.Errorf("unsupported store type: %q", storeType)
}

// runServer wires the store, hub and SSH server together and serves
// until interrupted.
func runServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := buildLoader(
		viper.GetString("store.type"),
		viper.GetString("store.path"),
		viper.GetString("store.dsn"),
	)
	if err != nil {
		return err
	}

	// A broken store is fatal here; once running, reloads keep the last
	// good registry on failure.
	kc, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("initial authorization load failed: %w", err)
	}
	logging.Infof("loaded %d entities from %s store", len(kc.Entities), viper.GetString("store.type"))

	signer, err := sshd.LoadOrGenerateHostKey(viper.GetString("hostkey"))
	if err != nil {
		return err
	}

	srv := sshd.New(sshd.Config{
		Addr:              viper.GetString("listen"),
		RejectionDelay:    viper.GetDuration("auth.rejection_delay"),
		InactivityTimeout: viper.GetDuration("auth.inactivity_timeout"),
	}, hub.New(loader, kc), signer)

	if err := srv.ListenAndServe(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// initConfig reads in a configuration file and environment variables.
// Viper searches for gatehouse.yaml in the user config directory and
// the current directory; when nothing is found a default config file is
// written so configuration stays discoverable.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if configDir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(configDir + "/gatehouse")
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("gatehouse")
	}

	viper.SetEnvPrefix("GATEHOUSE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			const defaultConfigPath = "gatehouse.yaml"
			defaultContent := `# Gatehouse configuration file.
# This file is automatically generated with default values.

# Listen address for the SSH server.
listen: ":2222"

# Host key path. A fresh ed25519 key is generated here when missing.
hostkey: ./gatehouse_ed25519

store:
  # Where authorized entities come from.
  # Supported values: "file", "sqlite", "postgres", "mysql".
  type: file

  # Authfile path, used by the file store. One entity per line:
  #   <role> <authorized_keys line>
  path: ./authfile

  # The Data Source Name (DSN), used by the database stores.
  # sqlite:   path to the database file
  # postgres: "host=localhost user=gatehouse dbname=gatehouse sslmode=disable"
  # mysql:    "gatehouse:secret@tcp(127.0.0.1:3306)/gatehouse?parseTime=true"
  dsn: ./gatehouse.db

auth:
  # Delay before answering a repeated failed public-key offer.
  rejection_delay: 3s
  # Idle sessions are disconnected after this duration.
  inactivity_timeout: 1h

# Language for announcements and status lines. Supported: "en", "de".
language: en

debug: false
`
			// Failing to write the default config is not fatal; the
			// in-memory defaults still apply.
			if err := os.WriteFile(defaultConfigPath, []byte(defaultContent), 0644); err == nil {
				fmt.Println("No config file found. Created a default 'gatehouse.yaml' in the current directory.")
			}
		}
	}
}
