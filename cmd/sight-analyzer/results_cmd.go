package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List, show and delete saved descriptions",
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved results, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No saved results.")
			return nil
		}
		for _, r := range list {
			fmt.Printf("%s  %s  %-11s %s\n", r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Mode, r.Description)
		}
		return nil
	},
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one saved result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		r, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
		if err != nil {
			return fmt.Errorf("result %s: %w", args[0], err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	},
}

var resultsDeleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "Delete saved results",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		for _, id := range args {
			if err := store.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("result %s: %w", id, err)
			}
			fmt.Fprintf(os.Stderr, "deleted %s\n", id)
		}
		return nil
	},
}

func init() {
	resultsCmd.AddCommand(resultsListCmd, resultsShowCmd, resultsDeleteCmd)
	rootCmd.AddCommand(resultsCmd)
}
