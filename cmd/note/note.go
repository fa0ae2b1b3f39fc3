// Package note implements note commands: create a note (online or queued)
// and list queued notes.
package note

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msaario/campusync/internal/app"
	"github.com/msaario/campusync/internal/conf"
	"github.com/msaario/campusync/internal/notes"
)

// Command creates the note command with its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Create and inspect course notes",
	}
	cmd.AddCommand(addCommand(settings), pendingCommand(settings))
	return cmd
}

func addCommand(settings *conf.Settings) *cobra.Command {
	var (
		userID   int64
		courseID int64
		state    string
	)

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Save a note about a user in a course",
		Long:  "Saves the note online, or queues it for the next sync pass when the site is unreachable.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			a, err := app.New(settings)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := c.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			queued, err := a.Notes.SaveNote(ctx, userID, courseID,
				notes.PublishState(state), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if queued {
				fmt.Println("site unreachable: note queued for the next sync pass")
			} else {
				fmt.Println("note saved")
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "ID of the user the note is about")
	cmd.Flags().Int64Var(&courseID, "course", 0, "Course the note belongs to")
	cmd.Flags().StringVar(&state, "state", string(notes.StateCourse), "Publish state: personal, course or site")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("course")

	return cmd
}

func pendingCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List notes queued for sync",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := app.New(settings)
			if err != nil {
				return err
			}
			defer a.Close()

			pending, err := a.Notes.PendingNotes()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("no notes queued")
				return nil
			}
			for _, n := range pending {
				fmt.Printf("user=%-6d course=%-6d state=%-8s queued=%s  %s\n",
					n.UserID, n.CourseID, n.PublishState,
					n.Created.Format("2006-01-02 15:04:05"), n.Content)
			}
			return nil
		},
	}
}
