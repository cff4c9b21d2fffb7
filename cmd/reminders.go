package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/carecam/internal/database"
	"github.com/kozaktomas/carecam/internal/reminder"
)

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Manage reminders",
}

var remindersAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a reminder",
	Long: `Add a reminder.

The due time is "YYYY-MM-DD HH:MM:SS" or "YYYY-MM-DDTHH:MM". Anything else
falls back to the current time.

Examples:
  carecam reminders add "Take pills" --due "2024-03-04 09:00:00" --category medication
  carecam reminders add "Walk" --due 2024-03-04T17:00 --recurring --pattern daily`,
	Args: cobra.ExactArgs(1),
	RunE: runRemindersAdd,
}

var remindersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reminders ordered by due time",
	Args:  cobra.NoArgs,
	RunE:  runRemindersList,
}

var remindersTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List today's open reminders",
	Args:  cobra.NoArgs,
	RunE:  runRemindersToday,
}

var remindersCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a reminder as completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemindersComplete,
}

var remindersCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one notification sweep and print what became due",
	Long: `Run one notification sweep.

Reminders due within the lookahead window that were not notified within the
debounce window are stamped and printed. Running it twice in a row prints
nothing the second time.`,
	Args: cobra.NoArgs,
	RunE: runRemindersCheck,
}

func init() {
	rootCmd.AddCommand(remindersCmd)
	remindersCmd.AddCommand(remindersAddCmd, remindersListCmd, remindersTodayCmd, remindersCompleteCmd, remindersCheckCmd)

	remindersAddCmd.Flags().String("due", "", "Due time (required)")
	remindersAddCmd.Flags().String("description", "", "Description")
	remindersAddCmd.Flags().String("category", database.DefaultCategory, "Category")
	remindersAddCmd.Flags().Bool("recurring", false, "Mark as recurring")
	remindersAddCmd.Flags().String("pattern", "", "Recurrence pattern, stored as given")
	_ = remindersAddCmd.MarkFlagRequired("due")

	remindersListCmd.Flags().Bool("all", false, "Include completed reminders")
}

// withReminders opens the app for the duration of fn.
func withReminders(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runRemindersAdd(cmd *cobra.Command, args []string) error {
	title := strings.TrimSpace(args[0])
	if title == "" {
		return fmt.Errorf("title is required")
	}

	return withReminders(cmd, func(ctx context.Context, a *app) error {
		due, ok := reminder.NormalizeDueTime(mustGetString(cmd, "due"), time.Now())
		if !ok {
			a.log.Warn("unrecognized due time, using now", "due", mustGetString(cmd, "due"))
		}
		rem := &database.Reminder{
			Title:       title,
			Description: mustGetString(cmd, "description"),
			DueTime:     due,
			Category:    mustGetString(cmd, "category"),
			IsRecurring: mustGetBool(cmd, "recurring"),
		}
		if p := mustGetString(cmd, "pattern"); p != "" {
			rem.RecurrencePattern = &p
		}
		id, err := a.reminders.Create(ctx, rem)
		if err != nil {
			return fmt.Errorf("adding reminder: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added reminder %d due %s\n", id, database.FormatTime(due))
		return nil
	})
}

func runRemindersList(cmd *cobra.Command, args []string) error {
	return withReminders(cmd, func(ctx context.Context, a *app) error {
		list, err := a.reminders.List(ctx, mustGetBool(cmd, "all"))
		if err != nil {
			return err
		}
		printReminders(cmd.OutOrStdout(), list)
		return nil
	})
}

func runRemindersToday(cmd *cobra.Command, args []string) error {
	return withReminders(cmd, func(ctx context.Context, a *app) error {
		engine := reminder.NewEngine(a.reminders, reminder.Options{}, a.log)
		list, err := engine.Today(ctx, time.Now())
		if err != nil {
			return err
		}
		printReminders(cmd.OutOrStdout(), list)
		return nil
	})
}

func runRemindersComplete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid reminder id %q", args[0])
	}

	return withReminders(cmd, func(ctx context.Context, a *app) error {
		if err := a.reminders.Complete(ctx, id); err != nil {
			return fmt.Errorf("completing reminder %d: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reminder %d marked as completed\n", id)
		return nil
	})
}

func runRemindersCheck(cmd *cobra.Command, args []string) error {
	return withReminders(cmd, func(ctx context.Context, a *app) error {
		engine := reminder.NewEngine(a.reminders, reminder.Options{
			Lookahead: a.cfg.Reminders.Lookahead,
			Debounce:  a.cfg.Reminders.Debounce,
		}, a.log)
		due, err := engine.Sweep(ctx, time.Now())
		if err != nil {
			return err
		}
		printReminders(cmd.OutOrStdout(), due)
		return nil
	})
}

func printReminders(w io.Writer, list []database.Reminder) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No reminders.")
		return
	}
	for _, r := range list {
		mark := " "
		if r.IsCompleted {
			mark = "x"
		}
		fmt.Fprintf(w, "[%s] %4d  %s  %-12s %s", mark, r.ID, database.FormatTime(r.DueTime), r.Category, r.Title)
		if r.Description != "" {
			fmt.Fprintf(w, " (%s)", r.Description)
		}
		fmt.Fprintln(w)
	}
}
