package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration (hiding sensitive parts)",
	Run: func(cmd *cobra.Command, args []string) {
		for _, line := range cfg.Masked() {
			fmt.Println(line)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
