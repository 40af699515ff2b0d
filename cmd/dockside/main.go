// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/docksideai/dockside/pkg/logging"
	"github.com/docksideai/dockside/pkg/ux"
)

var (
	cfgPath     string
	plainFlag   bool
	serverFlag  string
	orgFlag     string
	userFlag    string
	metricsFlag string
	config      Config
	logger      *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dockside",
	Short: "Chat with your documents from the terminal",
	Long: `Dockside is a conversational client for your document workspace.
Mention documents inline with @name to attach them to a question; answers
stream back with citations and follow-up suggestions.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if logger != nil {
		logger.Close()
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "dockside.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&plainFlag, "plain", false, "disable colors and animation")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&orgFlag, "org", "", "organization id (overrides config)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "user id (overrides config)")
	rootCmd.PersistentFlags().StringVar(&metricsFlag, "metrics-addr", "", "serve prometheus metrics on this address")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = LoadConfig(cfgPath)
		if err != nil {
			return err
		}

		logger = logging.New(logging.Config{
			Level:   logging.ParseLevel(config.Logging.Level),
			LogDir:  config.Logging.Dir,
			Service: "cli",
			JSON:    config.Logging.JSON,
			// The terminal belongs to the chat UI; logs go to file only.
			Quiet: config.Logging.Dir != "",
		})

		if plainFlag || !isatty.IsTerminal(os.Stdout.Fd()) {
			ux.SetPlain(true)
		}
		return nil
	}
}
