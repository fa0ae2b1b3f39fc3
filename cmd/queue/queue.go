// Package queue implements local offline queue inspection. These commands
// work without a site binding: they only read the local store.
package queue

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msaario/campusync/internal/conf"
	"github.com/msaario/campusync/internal/store"
)

// Command creates the queue command with its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the offline action queue",
	}

	var component string
	cmd.PersistentFlags().StringVar(&component, "component", "", "Limit to one feature's queue (e.g. notes)")

	cmd.AddCommand(
		listCommand(settings, &component),
		flushCommand(settings, &component),
	)
	return cmd
}

func listCommand(settings *conf.Settings, component *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued actions and deferred deletes",
		RunE: func(_ *cobra.Command, _ []string) error {
			st, err := store.Open(settings)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			actions, err := st.PendingActions(*component)
			if err != nil {
				return err
			}
			for _, a := range actions {
				fmt.Printf("%-10s user=%-6d course=%-6d key=%s queued=%s\n",
					a.Component, a.UserID, a.CourseID, a.ItemKey,
					a.Created.Format("2006-01-02 15:04:05"))
			}

			if *component != "" {
				markers, err := st.DeletedMarkers(*component)
				if err != nil {
					return err
				}
				for _, m := range markers {
					fmt.Printf("%-10s delete target=%d course=%d requested=%s\n",
						m.Component, m.TargetID, m.CourseID,
						m.Deleted.Format("2006-01-02 15:04:05"))
				}
			}

			if len(actions) == 0 {
				fmt.Println("queue is empty")
			}
			return nil
		},
	}
}

func flushCommand(settings *conf.Settings, component *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Discard queued actions without replaying them",
		RunE: func(_ *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("flush discards unsynced work; re-run with --yes to confirm")
			}

			st, err := store.Open(settings)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			removed, err := st.ClearPending(*component)
			if err != nil {
				return err
			}
			fmt.Printf("discarded %d queued action(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm discarding unsynced work")
	return cmd
}
