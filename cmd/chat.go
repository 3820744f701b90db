/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"botkit/pkg/agent"
	"botkit/pkg/bot"
	"botkit/pkg/channel/console"
	"botkit/pkg/config"
	"botkit/pkg/logger"
	"botkit/pkg/middleware"
	"botkit/pkg/provider"
	"botkit/pkg/schema"

	"github.com/spf13/cobra"
)

var promptText string

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a prompt or start an interactive chat",
	Long:  "Loads botkit configuration and talks to the bot through the terminal channel. With a prompt it sends one message and exits.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.chat")

		responder, err := provider.New(cfg)
		if err != nil {
			fmt.Printf("failed to initialize provider: %v\n", err)
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := responder.Health(ctx); err != nil {
			fmt.Printf("provider health check failed: %v\n", err)
			return
		}

		var in io.Reader = os.Stdin
		if prompt := resolvePrompt(args); prompt != "" {
			in = strings.NewReader(prompt + "\n")
		}

		if err := runChat(ctx, cfg, responder, in, os.Stdout, log); err != nil {
			fmt.Printf("chat failed: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&promptText, "prompt", "p", "", "prompt text to send")
}

// runChat runs the console channel until input ends. Reminders need the
// gateway scheduler and are disabled here.
func runChat(ctx context.Context, cfg *config.Config, responder provider.Responder, in io.Reader, out io.Writer, log *slog.Logger) error {
	terminal := console.New(cfg.Channels.Console, in, out, log)
	instance := agent.New(responder, cfg.Bot, nil, log)

	adapter, err := bot.NewAdapter(terminal,
		bot.WithLogger(log),
		bot.WithMiddleware(
			middleware.Recover(log),
			middleware.Logging(log),
		),
	)
	if err != nil {
		return err
	}

	return terminal.Run(ctx, func(ctx context.Context, activity *schema.Activity) error {
		return adapter.ProcessActivity(ctx, activity, instance.OnTurn)
	})
}

func resolvePrompt(args []string) string {
	if value := strings.TrimSpace(promptText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(args, " "))
}
