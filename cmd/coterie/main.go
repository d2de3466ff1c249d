// Copyright 2026 The Coterie Authors
// SPDX-License-Identifier: Apache-2.0

// The coterie CLI is a thin client for the engine's control socket.
// It issues one action per invocation and prints the response as
// JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/coterie-dev/coterie/lib/process"
	"github.com/coterie-dev/coterie/lib/service"
	"github.com/coterie-dev/coterie/lib/version"
)

const defaultSocket = "/run/coterie/coterie.sock"

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return usageError()
	}
	switch args[0] {
	case "version":
		fmt.Printf("coterie %s\n", version.Info())
		return nil
	case "ticket":
		return ticketCommand(args[1:])
	case "dispatch":
		return dispatchCommand(args[1:])
	case "complete":
		return completeCommand(args[1:])
	case "approve":
		return approvalCommand("approve", args[1:])
	case "revoke":
		return approvalCommand("revoke", args[1:])
	case "ship":
		return shipCommand(args[1:])
	case "comments":
		return commentsCommand(args[1:])
	}
	return usageError()
}

func usageError() error {
	return fmt.Errorf("usage: coterie <ticket|dispatch|complete|approve|revoke|ship|comments|version> ...")
}

// call sends one action and prints any response data as JSON.
func call(flags *pflag.FlagSet, action string, fields map[string]any) error {
	socketPath, _ := flags.GetString("socket")
	client := service.NewClient(socketPath)
	var result any
	if err := client.Call(context.Background(), action, fields, &result); err != nil {
		return err
	}
	if result == nil {
		fmt.Println("ok")
		return nil
	}
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("rendering response: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}

func newFlags(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.String("socket", defaultSocket, "engine control socket path")
	return flags
}

func ticketCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: coterie ticket <create|get|list|return> ...")
	}
	switch args[0] {
	case "create":
		flags := newFlags("ticket create")
		project := flags.String("project", "", "project ID")
		title := flags.String("title", "", "ticket title")
		description := flags.String("description", "", "ticket description")
		criteria := flags.String("criteria", "", "acceptance criteria")
		ticketType := flags.String("type", "feature", "feature, bug, or chore")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		return call(flags, "ticket-create", map[string]any{
			"project_id":          *project,
			"title":               *title,
			"description":         *description,
			"acceptance_criteria": *criteria,
			"type":                *ticketType,
		})
	case "get":
		flags := newFlags("ticket get")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		if flags.NArg() != 1 {
			return fmt.Errorf("usage: coterie ticket get <ticket-id>")
		}
		return call(flags, "ticket-get", map[string]any{"ticket_id": flags.Arg(0)})
	case "list":
		flags := newFlags("ticket list")
		project := flags.String("project", "", "project ID")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		return call(flags, "ticket-list", map[string]any{"project_id": *project})
	case "return":
		flags := newFlags("ticket return")
		reason := flags.String("reason", "", "why the ticket failed test")
		if err := flags.Parse(args[1:]); err != nil {
			return err
		}
		if flags.NArg() != 1 {
			return fmt.Errorf("usage: coterie ticket return <ticket-id> --reason ...")
		}
		return call(flags, "ticket-return", map[string]any{
			"ticket_id": flags.Arg(0),
			"reason":    *reason,
		})
	}
	return fmt.Errorf("unknown ticket subcommand %q", args[0])
}

func dispatchCommand(args []string) error {
	flags := newFlags("dispatch")
	persona := flags.String("persona", "", "target persona ID")
	role := flags.String("role", "", "target role (used when no persona is given)")
	comment := flags.String("comment", "", "instruction comment for the agent")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: coterie dispatch <ticket-id> [--persona|--role] [--comment]")
	}
	return call(flags, "dispatch", map[string]any{
		"ticket_id":  flags.Arg(0),
		"persona_id": *persona,
		"role":       *role,
		"comment":    *comment,
	})
}

// completeCommand reports an agent run's terminal output by hand,
// mirroring what the runner callback does in-process. Useful for
// driving the engine with external tooling.
func completeCommand(args []string) error {
	flags := newFlags("complete")
	persona := flags.String("persona", "", "persona that produced the output")
	outputFile := flags.String("output-file", "-", "file holding the output, - for stdin")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: coterie complete <ticket-id> --persona ... [--output-file]")
	}
	var output []byte
	var err error
	if *outputFile == "-" {
		output, err = io.ReadAll(os.Stdin)
	} else {
		output, err = os.ReadFile(*outputFile)
	}
	if err != nil {
		return fmt.Errorf("reading output: %w", err)
	}
	return call(flags, "agent-complete", map[string]any{
		"ticket_id":  flags.Arg(0),
		"persona_id": *persona,
		"output":     string(output),
	})
}

func approvalCommand(verb string, args []string) error {
	flags := newFlags(verb)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 2 {
		return fmt.Errorf("usage: coterie %s <research|plan> <ticket-id>", verb)
	}
	gate := flags.Arg(0)
	if gate != "research" && gate != "plan" {
		return fmt.Errorf("unknown gate %q: want research or plan", gate)
	}
	return call(flags, verb+"-"+gate, map[string]any{"ticket_id": flags.Arg(1)})
}

func shipCommand(args []string) error {
	flags := newFlags("ship")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: coterie ship <ticket-id>")
	}
	return call(flags, "ship", map[string]any{"ticket_id": flags.Arg(0)})
}

func commentsCommand(args []string) error {
	flags := newFlags("comments")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: coterie comments <ticket-id>")
	}
	return call(flags, "comment-list", map[string]any{"ticket_id": flags.Arg(0)})
}
