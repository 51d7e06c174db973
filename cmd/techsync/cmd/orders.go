package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/techsync/internal/event"
	"github.com/jmcleod/techsync/session"
	"github.com/jmcleod/techsync/workorder"
)

func newOrdersCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orders",
		Aliases: []string{"order", "wo"},
		Short:   "Work order commands",
		Long:    `List, create, update and delete work orders for the signed-in technician.`,
	}
	cmd.AddCommand(
		newOrdersListCmd(o),
		newOrdersShowCmd(o),
		newOrdersCreateCmd(o),
		newOrdersUpdateCmd(o),
		newOrdersDeleteCmd(o),
		newOrdersWatchCmd(o),
	)
	return cmd
}

func newOrdersListCmd(o *options) *cobra.Command {
	var (
		status     string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(func(a *app) error {
				if err := a.requireSession(cmd.Context()); err != nil {
					return err
				}
				orders, err := a.orders.List(cmd.Context())
				if err != nil {
					return err
				}
				if status != "" {
					orders = filterStatus(orders, workorder.Status(status))
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), orders)
				}
				printOrders(cmd.OutOrStdout(), orders)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show work orders with this status")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newOrdersShowCmd(o *options) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return o.withApp(func(a *app) error {
				if err := a.requireSession(cmd.Context()); err != nil {
					return err
				}
				wo, err := a.orders.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), wo)
				}
				printOrder(cmd.OutOrStdout(), wo)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newOrdersCreateCmd(o *options) *cobra.Command {
	var title, description, status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := workorder.NewInput(title, description, workorder.Status(status))
			if err := in.Validate(); err != nil {
				return err
			}
			return o.withApp(func(a *app) error {
				if err := a.requireSession(cmd.Context()); err != nil {
					return err
				}
				wo, err := a.orders.Create(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created work order %d.\n", wo.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Title (required)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	cmd.Flags().StringVarP(&status, "status", "s", string(workorder.StatusPending), "Status: pending, in_progress, completed or cancelled")
	return cmd
}

func newOrdersUpdateCmd(o *options) *cobra.Command {
	var title, description, status string
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change a work order",
		Long:  `Change a work order. Fields without a flag keep their current value.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			return o.withApp(func(a *app) error {
				if err := a.requireSession(cmd.Context()); err != nil {
					return err
				}
				current, err := a.orders.Get(cmd.Context(), id)
				if err != nil {
					return err
				}

				in := workorder.Input{Title: current.Title, Description: current.Description, Status: current.Status}
				if flags.Changed("title") {
					in.Title = title
				}
				if flags.Changed("description") {
					in.Description = &description
				}
				if flags.Changed("status") {
					in.Status = workorder.Status(status)
				}

				wo, err := a.orders.Update(cmd.Context(), id, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated work order %d.\n", wo.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description; empty clears it")
	cmd.Flags().StringVarP(&status, "status", "s", "", "New status")
	return cmd
}

func newOrdersDeleteCmd(o *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return o.withApp(func(a *app) error {
				if err := a.requireSession(cmd.Context()); err != nil {
					return err
				}
				model := workorder.NewListModel(a.orders, a.logger)
				if err := model.Refresh(cmd.Context()); err != nil {
					return err
				}
				wo, ok := findOrder(model.Items(), id)
				if !ok {
					return fmt.Errorf("work order %d not found", id)
				}

				if !yes {
					p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
					ok, err := p.confirm(fmt.Sprintf("Delete work order %d %q?", wo.ID, wo.Title))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
						return nil
					}
				}

				if err := model.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted work order %d.\n", id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newOrdersWatchCmd(o *options) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the work order list on screen, refreshing periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return o.withApp(func(a *app) error {
				if err := a.requireSession(ctx); err != nil {
					return err
				}
				return watchOrders(ctx, a, o, cmd.OutOrStdout(), interval)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Time between refreshes")
	return cmd
}

// watchOrders treats every tick as the list regaining focus and prints the
// list after each completed refresh. It returns when ctx is done or the
// session ends.
func watchOrders(ctx context.Context, a *app, o *options, w io.Writer, interval time.Duration) error {
	model := workorder.NewListModel(a.orders, a.logger)
	var focus event.Focus

	unsubscribeModel := model.Subscribe(func(s workorder.Snapshot) {
		if s.Loading {
			return
		}
		fmt.Fprintf(w, "\n%s\n", o.clock.Now().Format(time.TimeOnly))
		if s.Err != nil {
			fmt.Fprintf(w, "Error: %s\n", s.Err)
			return
		}
		printOrders(w, s.Items)
	})
	defer unsubscribeModel()

	unbind := model.Bind(ctx, &focus)
	defer unbind()

	ended := make(chan struct{})
	var once sync.Once
	unsubscribeSession := a.session.Subscribe(func(st session.State) {
		if !st.Authenticated() {
			once.Do(func() { close(ended) })
		}
	})
	defer unsubscribeSession()

	ticker := o.clock.NewTicker(interval)
	defer ticker.Stop()

	focus.Fire()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			return &session.Failure{Kind: session.ErrExpired, Message: session.MsgSessionExpired}
		case <-ticker.Chan():
			focus.Fire()
		}
	}
}

func filterStatus(orders []workorder.WorkOrder, status workorder.Status) []workorder.WorkOrder {
	out := make([]workorder.WorkOrder, 0, len(orders))
	for _, wo := range orders {
		if wo.Status == status {
			out = append(out, wo)
		}
	}
	return out
}

func findOrder(orders []workorder.WorkOrder, id int64) (workorder.WorkOrder, bool) {
	for _, wo := range orders {
		if wo.ID == id {
			return wo, true
		}
	}
	return workorder.WorkOrder{}, false
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid work order id %q", s)
	}
	return id, nil
}

func printOrders(w io.Writer, orders []workorder.WorkOrder) {
	if len(orders) == 0 {
		fmt.Fprintln(w, "No work orders yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTITLE")
	for _, wo := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", wo.ID, wo.Status.Label(), wo.Title)
	}
	tw.Flush()
}

func printOrder(w io.Writer, wo workorder.WorkOrder) {
	fmt.Fprintf(w, "ID:          %d\n", wo.ID)
	fmt.Fprintf(w, "Title:       %s\n", wo.Title)
	fmt.Fprintf(w, "Status:      %s\n", wo.Status.Label())
	if d := wo.DescriptionText(); d != "" {
		fmt.Fprintf(w, "Description: %s\n", d)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
