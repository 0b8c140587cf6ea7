package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gigaclaw/gigaclaw/internal/config"
	"github.com/gigaclaw/gigaclaw/internal/storage"
	"github.com/gigaclaw/gigaclaw/pkg/models"
)

// configStores bundles the loaded config with the raw database handle for
// subcommands that keep their own tables.
type configStores struct {
	cfg *config.Config
	db  *sql.DB
}

func newGroupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage registered groups",
	}
	cmd.AddCommand(newGroupAddCommand(), newGroupListCommand())
	return cmd
}

func newGroupAddCommand() *cobra.Command {
	var folder, name, chatID string
	var isMain bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, _, err := openStores()
			if err != nil {
				return err
			}
			defer stores.Close()

			group := &models.Group{
				Folder: folder,
				Name:   name,
				ChatID: chatID,
				IsMain: isMain,
			}
			if timeout > 0 {
				group.Container = &models.ContainerOverrides{Timeout: timeout}
			}
			if isMain {
				if err := ensureSingleMain(cmd, stores); err != nil {
					return err
				}
			}
			if err := stores.Groups.Register(cmd.Context(), group); err != nil {
				return err
			}
			fmt.Printf("registered group %s (chat %s)\n", folder, chatID)
			return nil
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "group folder name (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&chatID, "chat", "", "transport chat id (required)")
	cmd.Flags().BoolVar(&isMain, "main", false, "mark as the single main group")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-group turn timeout override")
	cmd.MarkFlagRequired("folder")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("chat")
	return cmd
}

// ensureSingleMain enforces the exactly-one-main-group invariant at
// registration time.
func ensureSingleMain(cmd *cobra.Command, stores storage.StoreSet) error {
	groups, err := stores.Groups.List(cmd.Context())
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g.IsMain {
			return fmt.Errorf("group %s already holds the main role", g.Folder)
		}
	}
	return nil
}

func newGroupListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, _, err := openStores()
			if err != nil {
				return err
			}
			defer stores.Close()

			groups, err := stores.Groups.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, g := range groups {
				role := ""
				if g.IsMain {
					role = " [main]"
				}
				fmt.Printf("%s\t%s\tchat=%s%s\n", g.Folder, g.Name, g.ChatID, role)
			}
			return nil
		},
	}
}

func openStores() (storage.StoreSet, *configStores, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return storage.StoreSet{}, nil, err
	}
	stores, db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return storage.StoreSet{}, nil, err
	}
	return stores, &configStores{cfg: cfg, db: db}, nil
}
