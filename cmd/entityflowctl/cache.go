package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheClearPrefixCmd)
	cacheClearPrefixCmd.Flags().Bool("dry-run", false, "count matching keys without deleting them")
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Operate on the shared two-tier cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty both cache tiers entirely",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		if err := d.cache.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("cache cleared")
		return nil
	},
}

var cacheClearPrefixCmd = &cobra.Command{
	Use:   "clear-prefix [prefix]",
	Short: "Delete every key matching a prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		n, err := d.cache.DeleteByPrefix(cmd.Context(), args[0], dryRun)
		if err != nil {
			return err
		}
		if dryRun {
			fmt.Printf("%d keys match prefix %q\n", n, args[0])
		} else {
			fmt.Printf("deleted %d keys matching prefix %q\n", n, args[0])
		}
		return nil
	},
}
