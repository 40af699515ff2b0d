// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/docksideai/dockside/pkg/transport"
	"github.com/docksideai/dockside/pkg/ux"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAskCommand,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

// runAskCommand does a one-shot exchange: no transcript, no reveal, just
// the answer and its sources.
func runAskCommand(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	parts := buildComponents(true)

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	var resp *transport.Response
	err := ux.WithSpinner("Thinking", func() error {
		var err error
		resp, err = parts.client.Send(ctx, transport.Request{
			Message:        question,
			OrganizationID: config.Identity.OrganizationID,
			UserID:         config.Identity.UserID,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%s", transport.UserMessage(err))
	}

	fmt.Println(resp.Response)
	if len(resp.Sources) > 0 {
		fmt.Println()
		ux.Muted("Sources:")
		for i, source := range resp.Sources {
			line := fmt.Sprintf("%d. %s", i+1, source.Path)
			if source.Score != 0 {
				line += fmt.Sprintf(" (score %.3f)", source.Score)
			}
			ux.Muted(line)
		}
	}
	if len(resp.FollowUpSuggestions) > 0 {
		fmt.Println()
		ux.Muted("You could also ask:")
		for _, followUp := range resp.FollowUpSuggestions {
			ux.Muted("  - " + followUp)
		}
	}
	return nil
}
