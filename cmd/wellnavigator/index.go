// cmd/wellnavigator/index.go
package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the knowledge-base index",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show what the configured retrieval backend holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Logging.Output = "stderr"
			zapLog := newLogger(cfg)
			defer zapLog.Sync()

			a := &app{cfg: cfg, zap: zapLog, log: logger.NewZapAdapter(zapLog)}
			a.connectElasticsearch()
			h := a.newRetriever()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			h.Available(ctx)
			st := h.Stats(ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Knowledge base"))
			fmt.Fprintf(out, "  backend:   %s\n", cfg.Retrieval.Backend)
			if !st.Loaded {
				fmt.Fprintln(out, warnStyle.Render("  not loaded; retrieval is unavailable"))
				return nil
			}
			fmt.Fprintf(out, "  chunks:    %d\n", st.TotalChunks)
			fmt.Fprintf(out, "  vectors:   %d\n", st.IndexSize)
			fmt.Fprintf(out, "  model:     %s (%d dims)\n", st.ModelName, st.EmbeddingDim)

			sources := make([]string, 0, len(st.Sources))
			for s := range st.Sources {
				sources = append(sources, s)
			}
			sort.Strings(sources)
			for _, s := range sources {
				fmt.Fprintf(out, "    %-40s %d\n", s, st.Sources[s])
			}
			return nil
		},
	})
	return cmd
}
