package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/studybuddy/internal/app"
	"github.com/ent0n29/studybuddy/internal/generation"
)

func newAskCmd(rt *cli) *cobra.Command {
	var userID, topic string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Run one chat turn and print the response as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question is required")
			}
			built, err := app.Build(cmd.Context(), rt.cfg, rt.logger, app.Options{})
			if err != nil {
				return err
			}
			resp := built.Orchestrator.Chat(cmd.Context(), generation.ChatRequest{
				UserID:  userID,
				Topic:   topic,
				Message: question,
			})
			// Cleanup waits for the memory write of this turn.
			if err := built.Cleanup(); err != nil {
				rt.logger.Sugar().Warnw("cleanup failed", "error", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id whose memory is searched and written")
	cmd.Flags().StringVar(&topic, "topic", "general", "study topic")
	return cmd
}
