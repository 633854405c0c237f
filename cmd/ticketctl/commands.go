package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dreamware/ticketd/internal/dispatch"
	"github.com/dreamware/ticketd/internal/ticket"
)

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var draft ticket.Draft

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			id, err := rootOpts.client().Create(ctx, draft)
			if err != nil {
				return err
			}
			return rootOpts.output(cmd.OutOrStdout(), map[string]ticket.ID{"id": id}, func(w io.Writer) {
				fmt.Fprintf(w, "Ticket created with ID: %d\n", uint64(id))
			})
		},
	}

	cmd.Flags().StringVar(&draft.Title, "title", "", "ticket title")
	cmd.Flags().StringVar(&draft.Description, "description", "", "ticket description")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ticket.ParseID(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			t, err := rootOpts.client().Fetch(ctx, id)
			if err != nil {
				return err
			}
			return rootOpts.output(cmd.OutOrStdout(), t, func(w io.Writer) {
				fmt.Fprintln(w, t)
			})
		},
	}
}

// NewUpdateCommand creates the update command. All three fields are
// required because an update replaces the whole ticket body.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		patch  ticket.Patch
		status string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a ticket's title, description and status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ticket.ParseID(args[0])
			if err != nil {
				return err
			}
			if patch.Status, err = ticket.ParseStatus(status); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			t, err := rootOpts.client().Update(ctx, id, patch)
			if err != nil {
				return err
			}
			return rootOpts.output(cmd.OutOrStdout(), t, func(w io.Writer) {
				fmt.Fprintln(w, t)
			})
		},
	}

	cmd.Flags().StringVar(&patch.Title, "title", "", "new title")
	cmd.Flags().StringVar(&patch.Description, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "new status (ToDo|InProgress|Done)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("status")

	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every ticket in id order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			tickets, err := rootOpts.client().List(ctx)
			if err != nil {
				return err
			}
			if tickets == nil {
				tickets = []ticket.Ticket{}
			}
			return rootOpts.output(cmd.OutOrStdout(), tickets, func(w io.Writer) {
				for _, t := range tickets {
					fmt.Fprintln(w, t)
				}
			})
		},
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show operation counters and ticket counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			stats, err := rootOpts.client().Stats(ctx)
			if err != nil {
				return err
			}
			return rootOpts.output(cmd.OutOrStdout(), stats, func(w io.Writer) {
				printStats(w, stats)
			})
		},
	}
}

func printStats(w io.Writer, stats dispatch.Stats) {
	fmt.Fprintf(w, "tickets:     %d\n", stats.Storage.Tickets)
	for _, status := range ticket.Statuses {
		fmt.Fprintf(w, "  %-10s %d\n", status, stats.Storage.ByStatus[status])
	}
	fmt.Fprintf(w, "creates:     %d\n", stats.Ops.Creates)
	fmt.Fprintf(w, "fetches:     %d\n", stats.Ops.Fetches)
	fmt.Fprintf(w, "updates:     %d\n", stats.Ops.Updates)
	fmt.Fprintf(w, "lists:       %d\n", stats.Ops.Lists)
	fmt.Fprintf(w, "not found:   %d\n", stats.Ops.NotFound)
	fmt.Fprintf(w, "faults:      %d\n", stats.Ops.Faults)
}

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that ticketd is answering",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			if err := rootOpts.client().Health(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
