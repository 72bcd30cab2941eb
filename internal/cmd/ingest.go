package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/output"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Chunk documents and embed them in rate-limited batches",
	Long: `Split text files into overlapping chunks, embed them in batches and write
one NDJSON record per chunk (source, chunk, offset, text, embedding).

Directories are walked for .txt, .md, .markdown and .text files. Each batch is
one embeddings call and takes one slot from the rate limiter.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		outPath, err := resolveOutputTarget(cmd, "embeddings.ndjson")
		if err != nil {
			return err
		}

		docs, err := ingest.LoadDocuments(args)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return fmt.Errorf("no text documents found in %v", args)
		}

		a, err := newApp(appOptions{driver: true})
		if err != nil {
			return err
		}
		defer a.Close()

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		ctx, stop := interruptContext(cmd.Context())
		defer stop()

		in := &ingest.Ingester{
			Driver:       a.driver,
			Model:        a.cfg.AILink.EmbeddingModel,
			ChunkSize:    a.cfg.Ingest.ChunkSize,
			ChunkOverlap: a.cfg.Ingest.ChunkOverlap,
			BatchSize:    a.cfg.Ingest.BatchSize,
			Workers:      a.cfg.Ingest.Workers,
			Limiter:      a.limiter,
			Logger:       observability.Logger(),
			Out:          sink.writer,
		}
		summary, runErr := in.Run(ctx, docs)

		// NDJSON may be on stdout, so the summary goes to stderr.
		rendered, err := output.NewFormatter(format).FormatSummary(summary)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), rendered)
		if sink.path != "-" {
			observability.Logger().Info("Wrote embeddings", zap.String("path", sink.path))
		}
		return runErr
	},
}

// interruptContext returns a context cancelled by Ctrl+C or SIGTERM, so a
// blocked limiter wait returns instead of holding the process.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("output-format", string(output.FormatText), "Summary format: text|table|json|yaml|markdown")
	ingestCmd.Flags().String("out", "", "Write NDJSON records to a file (default stdout)")
	ingestCmd.Flags().String("out-dir", "", "Write embeddings.ndjson into a directory")
	ingestCmd.Flags().Int("chunk-size", 1000, "Maximum chunk length in characters")
	ingestCmd.Flags().Int("chunk-overlap", 150, "Characters shared by consecutive chunks")
	ingestCmd.Flags().Int("batch-size", 5, "Chunks per embeddings call")
	ingestCmd.Flags().Int("workers", 2, "Batches in flight")

	_ = viper.BindPFlag("ingest.chunk_size", ingestCmd.Flags().Lookup("chunk-size"))
	_ = viper.BindPFlag("ingest.chunk_overlap", ingestCmd.Flags().Lookup("chunk-overlap"))
	_ = viper.BindPFlag("ingest.batch_size", ingestCmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("ingest.workers", ingestCmd.Flags().Lookup("workers"))
}
