package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/docquery/docquery/internal/ailink/driver"
	"github.com/docquery/docquery/internal/ratelimit"
)

var searchCmd = &cobra.Command{
	Use:   "search <query> [k]",
	Short: "Embed a search query through the rate limiter",
	Long: `Embed a query with one rate-limited provider call and report the vector size.

The limiter status is printed before and after the call so the slot it used is visible.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(args[0])
		if query == "" {
			return errors.New("query must not be empty")
		}

		a, err := newApp(appOptions{driver: true})
		if err != nil {
			return err
		}
		defer a.Close()

		k, err := parseTopK(args, a.cfg.Search.TopK)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "Searching for: %q (k=%d)\n", query, k)
		printStatus(w, a.limiter)

		ctx, stop := interruptContext(cmd.Context())
		defer stop()

		resp, err := a.driver.Embed(ctx, &driver.EmbedRequest{
			Model: a.cfg.AILink.EmbeddingModel,
			Input: []string{query},
		})
		if err != nil {
			if errors.Is(err, ratelimit.ErrCancelled) {
				_, _ = fmt.Fprintln(w, "Search cancelled while waiting for the rate limiter.")
			}
			return err
		}
		if len(resp.Embeddings) != 1 {
			return fmt.Errorf("expected 1 embedding, got %d", len(resp.Embeddings))
		}

		_, _ = fmt.Fprintf(w, "Query embedded: %d dimensions\n", len(resp.Embeddings[0]))
		printStatus(w, a.limiter)
		return nil
	},
}

// parseTopK reads the optional k argument, falling back to def.
func parseTopK(args []string, def int) (int, error) {
	if len(args) < 2 {
		return def, nil
	}
	k, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil || k <= 0 {
		return 0, fmt.Errorf("k must be a positive integer, got %q", args[1])
	}
	return k, nil
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Int("top-k", 5, "Default number of results when k is not given")
	_ = viper.BindPFlag("search.top_k", searchCmd.Flags().Lookup("top-k"))
}
