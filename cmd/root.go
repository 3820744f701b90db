/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "botkit",
	Short: "Channel-agnostic conversational bot runtime",
	Long: `botkit runs one bot across Telegram, Discord, a websocket webchat and the
terminal. Inbound activities pass through a middleware pipeline to the bot,
and replies go back through the channel they came from.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; explicit environment always wins.
		_ = godotenv.Load()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
