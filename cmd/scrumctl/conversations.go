package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage conversations stored by the backend",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			list, err := newBackendClient(cfg).ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flagJSON {
				return json.NewEncoder(out).Encode(list)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tTITLE\tMESSAGES\tFAVORITE\tUPDATED")
			for _, c := range list {
				fav := ""
				if c.IsFavorite {
					fav = "★"
				}
				updated := "-"
				if !c.UpdatedAt.IsZero() {
					updated = c.UpdatedAt.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", c.ID, c.Title, c.MessageCount, fav, updated)
			}
			return w.Flush()
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete SESSION",
		Short: "Delete a stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := newBackendClient(cfg).DeleteConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}

	favoriteCmd := &cobra.Command{
		Use:   "favorite SESSION",
		Short: "Toggle the favorite flag of a stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fav, err := newBackendClient(cfg).ToggleFavorite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s favorite=%t\n", args[0], fav)
			return nil
		},
	}

	cmd.AddCommand(listCmd, deleteCmd, favoriteCmd)
	return cmd
}
