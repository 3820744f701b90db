/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"botkit/pkg/channel"
	"botkit/pkg/channel/discord"
	"botkit/pkg/channel/telegram"
	"botkit/pkg/channel/webchat"
	"botkit/pkg/config"
	"botkit/pkg/gateway"
	"botkit/pkg/logger"
	"botkit/pkg/telemetry"

	"github.com/spf13/cobra"
)

const (
	telegramChannelName = "telegram"
	discordChannelName  = "discord"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run channel gateway mode",
	Long:  "Runs botkit as a channel gateway with health, readiness and conversation endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

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
		log := slog.Default().With("component", "cmd.gateway")

		shutdownTracing, err := telemetry.Init(cfg.Telemetry, log)
		if err != nil {
			log.Error("Failed to initialize telemetry", "error", err)
			return
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				log.Warn("Failed to flush traces", "error", err)
			}
		}()

		channels, err := enabledChannels(cfg, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(cfg, channels, gateway.Dependencies{}, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("Gateway started", "channels", enabledChannelNames(channels), "responder", cfg.Bot.Responder, "model", cfg.Bot.Model)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func enabledChannels(cfg *config.Config, log *slog.Logger) ([]channel.Channel, error) {
	channels := make([]channel.Channel, 0, 3)

	if cfg.Channels.Telegram.Enabled {
		ch, err := telegram.New(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
		}
		channels = append(channels, ch)
	}

	if cfg.Channels.Discord.Enabled {
		ch, err := discord.New(cfg.Channels.Discord, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", discordChannelName, err)
		}
		channels = append(channels, ch)
	}

	if cfg.Channels.Webchat.Enabled {
		channels = append(channels, webchat.New(cfg.Channels.Webchat, log))
	}

	if len(channels) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return channels, nil
}

func enabledChannelNames(channels []channel.Channel) string {
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}

	return strings.Join(names, ",")
}
