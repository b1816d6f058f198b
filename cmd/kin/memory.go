package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/kin/internal/kin/memory"
	"github.com/bdobrica/kin/internal/kin/status"
	"github.com/bdobrica/kin/internal/kin/store"
)

func newMemoryCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and write the local memory store",
	}
	cmd.AddCommand(newMemoryPutCmd(g), newMemoryRecentCmd(g))
	return cmd
}

func newMemoryPutCmd(g *globalFlags) *cobra.Command {
	var id, tags string
	cmd := &cobra.Command{
		Use:   "put <text>...",
		Short: "Store a memory, replacing any existing one with the same id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, closeFn, err := openMemory(cmd, g)
			if err != nil {
				return err
			}
			defer closeFn()

			text := strings.Join(args, " ")
			if id == "" {
				_, err = mem.Remember(cmd.Context(), text, tags)
				return err
			}
			return mem.Put(cmd.Context(), id, text, tags)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "memory id (generated when empty)")
	cmd.Flags().StringVar(&tags, "tags", "", "free-form tags")
	return cmd
}

func newMemoryRecentCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent memories, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mem, closeFn, err := openMemory(cmd, g)
			if err != nil {
				return err
			}
			defer closeFn()

			if !cmd.Flags().Changed("limit") {
				limit = mem.defaultLimit
			}
			records, err := mem.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				_, err := fmt.Fprintln(out, "no memories")
				return err
			}
			for _, r := range records {
				if _, err := fmt.Fprintln(out, r.String()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of memories to list (default from config)")
	return cmd
}

type memoryHandle struct {
	*memory.SQLiteStore
	defaultLimit int
}

func openMemory(cmd *cobra.Command, g *globalFlags) (*memoryHandle, func(), error) {
	cfg, logger, err := g.load(cmd)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(cfg.DatabasePath, logger)
	if err != nil {
		return nil, nil, err
	}
	mem := memory.NewSQLiteStore(st.DB(), memory.Options{
		Logger: logger,
		Status: status.NewConsole(cmd.OutOrStdout(), logger),
	})
	closeFn := func() {
		if err := st.Close(); err != nil {
			logger.Warn("close memory database", "err", err)
		}
	}
	return &memoryHandle{SQLiteStore: mem, defaultLimit: cfg.RecentLimit}, closeFn, nil
}
