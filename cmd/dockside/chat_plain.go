// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/docksideai/dockside/pkg/conversation"
	"github.com/docksideai/dockside/pkg/ux"
)

// runPlainChat is the line-oriented fallback for pipes and dumb
// terminals: read a line, send it, print the settled answer.
func runPlainChat(ctx context.Context, parts *components) error {
	ux.Info("Dockside chat. Commands: /retry, /reset, /quit.")

	scanner := bufio.NewScanner(os.Stdin)
	var lastErrorID string

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			parts.engine.Reset()
			ux.Info("Conversation reset.")
			continue
		case "/retry":
			if lastErrorID == "" {
				ux.Warning("Nothing to retry.")
				continue
			}
			id, err := parts.engine.Retry(lastErrorID)
			if err != nil {
				ux.Error(err.Error())
				continue
			}
			lastErrorID = settle(ctx, parts, id)
			continue
		}

		id, err := parts.engine.Send(line)
		if err != nil {
			ux.Error(err.Error())
			continue
		}
		lastErrorID = settle(ctx, parts, id)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// settle blocks until the assistant message reaches a terminal state and
// prints it. Returns the message id when it errored, for /retry.
func settle(ctx context.Context, parts *components, id string) string {
	spin := ux.NewSpinner("thinking")
	spin.Start()

	watch := parts.store.Watch()
	for {
		msg, ok := parts.store.Get(id)
		if !ok {
			spin.Stop()
			return ""
		}
		if msg.Status.Terminal() {
			spin.Stop()
			printSettled(msg)
			if msg.Status == conversation.StatusError {
				return id
			}
			return ""
		}
		select {
		case <-ctx.Done():
			parts.engine.Cancel()
		case <-watch:
		}
	}
}

func printSettled(msg conversation.Message) {
	switch msg.Status {
	case conversation.StatusDelivered:
		fmt.Println(msg.Text)
		for _, source := range msg.Sources {
			ux.Muted("  - " + sourceLabel(source))
		}
		for _, followUp := range msg.FollowUps {
			ux.Muted("  ? " + followUp)
		}
	case conversation.StatusCancelled:
		ux.Warning("Cancelled.")
	case conversation.StatusError:
		ux.Error(msg.ErrorText)
	}
}
