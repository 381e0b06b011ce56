package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/unklstewy/fleetwatch/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the live flight feed in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		feed, err := tui.Dial(ctx, url)
		if err != nil {
			return err
		}
		return tui.Run(feed, url)
	},
}

func init() {
	watchCmd.Flags().String("url", "ws://localhost:8080/ws/flights", "Live feed WebSocket URL")
}
