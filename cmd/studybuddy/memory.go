package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ent0n29/studybuddy/internal/app"
)

func newMemoryCmd(rt *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect long-term conversation memory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the memory store state and backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			built, err := app.Build(cmd.Context(), rt.cfg, rt.logger, app.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = built.Cleanup() }()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"memory":    built.Memory.Status(),
				"embedding": built.Providers.Embedding,
				"llm":       built.Providers.LLM,
				"search":    built.Providers.Search,
			})
		},
	})
	return cmd
}
