package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tgo/docqa/internal/app"
	"github.com/tgo/docqa/internal/config"
	"github.com/tgo/docqa/internal/logger"
	"github.com/tgo/docqa/internal/pkg/jwt"
	"github.com/tgo/docqa/internal/queue"
)

// withApp loads configuration, builds the service graph and hands it to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.LogLevel, cfg.IsDevelopment())

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docctl",
		Short:         "Maintenance tool for the document service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newReprocessCmd(),
		newPurgeCmd(),
		newSearchVectorsCmd(),
		newEnqueueCmd(),
		newTokenCmd(),
	)
	return root
}

func newReprocessCmd() *cobra.Command {
	var (
		all   bool
		docID string
	)
	cmd := &cobra.Command{
		Use:   "reprocess-embeddings",
		Short: "Queue embedding for failed documents",
		Long: `Queues documents for the embedding stage. Only chunks without a stored
vector are embedded again. By default every failed document is queued.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var id uuid.UUID
			if docID != "" {
				parsed, err := uuid.Parse(docID)
				if err != nil {
					return fmt.Errorf("invalid --doc-id: %w", err)
				}
				id = parsed
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := reprocessEmbeddings(ctx, a.Docs, a.Queue, id, all)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %d document(s) for embedding\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Queue every ready or failed document")
	cmd.Flags().StringVar(&docID, "doc-id", "", "Queue a single document")
	cmd.MarkFlagsMutuallyExclusive("all", "doc-id")
	return cmd
}

func newPurgeCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "purge-documents",
		Short: "Delete every document, chunk and stored file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return fmt.Errorf("refusing to purge without --confirm")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := purgeDocuments(ctx, a.Docs, a.Store)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d document(s), %d file(s)\n", res.Documents, res.Files)
				for _, f := range res.Failures {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", f)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm the purge")
	return cmd
}

func newSearchVectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-search-vectors",
		Short: "Rebuild the full-text search vector of every document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Docs.RefreshAllSearchVectors(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %d document(s)\n", n)
				return nil
			})
		},
	}
}

func newEnqueueCmd() *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "enqueue [doc-id]",
		Short: "Queue a document for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id: %w", err)
			}
			from := queue.Stage(stage)
			if from != queue.StageExtract && from != queue.StageEmbed {
				return fmt.Errorf("unknown stage %q", stage)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := a.Docs.FindByID(ctx, id); err != nil {
					return err
				}
				if err := a.Queue.Enqueue(ctx, queue.Job{DocumentID: id, From: from}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s from %s\n", id, from)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stage, "from", string(queue.StageExtract), "Stage to start from (extract or embed)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := jwt.NewManager(cfg.JWTSecret, ttl).GenerateToken(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User id the token is issued for")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
