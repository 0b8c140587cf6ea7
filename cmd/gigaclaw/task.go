package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gigaclaw/gigaclaw/internal/tasks"
)

func newTaskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage scheduled tasks",
	}
	cmd.AddCommand(newTaskAddCommand(), newTaskListCommand(), newTaskRemoveCommand())
	return cmd
}

func newTaskAddCommand() *cobra.Command {
	var group, name, schedule, prompt string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a scheduled task",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, extra, err := openStores()
			if err != nil {
				return err
			}
			defer stores.Close()

			if _, err := stores.Groups.Get(cmd.Context(), group); err != nil {
				return fmt.Errorf("group %s: %w", group, err)
			}
			taskStore, err := tasks.NewSQLiteStore(extra.db)
			if err != nil {
				return err
			}

			task := &tasks.ScheduledTask{
				GroupFolder: group,
				Name:        name,
				Schedule:    schedule,
				Prompt:      prompt,
			}
			if err := taskStore.Create(cmd.Context(), task); err != nil {
				return err
			}
			fmt.Printf("created task %s, next run %s\n", task.ID, task.NextRunAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "owning group folder (required)")
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression (required)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt sent to the agent (required)")
	cmd.MarkFlagRequired("group")
	cmd.MarkFlagRequired("schedule")
	cmd.MarkFlagRequired("prompt")
	return cmd
}

func newTaskListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, extra, err := openStores()
			if err != nil {
				return err
			}
			defer stores.Close()

			taskStore, err := tasks.NewSQLiteStore(extra.db)
			if err != nil {
				return err
			}
			list, err := taskStore.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range list {
				fmt.Printf("%s\t%s\t%q\t%s\tnext=%s\n",
					t.ID, t.GroupFolder, t.Schedule, t.Status,
					t.NextRunAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newTaskRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, extra, err := openStores()
			if err != nil {
				return err
			}
			defer stores.Close()

			taskStore, err := tasks.NewSQLiteStore(extra.db)
			if err != nil {
				return err
			}
			if err := taskStore.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("removed task %s\n", args[0])
			return nil
		},
	}
}
