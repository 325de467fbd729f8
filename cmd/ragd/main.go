package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragbase/internal/agent"
	"github.com/xxxsen/ragbase/internal/ai"
	"github.com/xxxsen/ragbase/internal/chunker"
	"github.com/xxxsen/ragbase/internal/config"
	"github.com/xxxsen/ragbase/internal/db"
	"github.com/xxxsen/ragbase/internal/embedcache"
	"github.com/xxxsen/ragbase/internal/filestore"
	"github.com/xxxsen/ragbase/internal/index"
	"github.com/xxxsen/ragbase/internal/index/memory"
	"github.com/xxxsen/ragbase/internal/index/pgindex"
	"github.com/xxxsen/ragbase/internal/job"
	"github.com/xxxsen/ragbase/internal/pkg/errcode"
	"github.com/xxxsen/ragbase/internal/registry"
	"github.com/xxxsen/ragbase/internal/retrieval"
	"github.com/xxxsen/ragbase/internal/schedule"
	"github.com/xxxsen/ragbase/internal/service"
)

type app struct {
	cfg    *config.Config
	ingest *service.IngestService
	engine *agent.Engine
	reg    registry.Registry
	idx    index.Index
}

func buildApp(cfg *config.Config) (*app, error) {
	var (
		idx index.Index
		reg registry.Registry
	)
	switch {
	case cfg.Index.Type == "memory" && cfg.Registry.Type == "memory":
		idx = memory.New()
		reg = registry.NewMemory()
	default:
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := db.ApplyMigrations(conn); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		if cfg.Index.Type == "pgvector" {
			idx = pgindex.New(conn, cfg.Index.Probes)
		} else {
			idx = memory.New()
		}
		if cfg.Registry.Type == "pg" {
			reg = registry.NewPG(conn)
		} else {
			reg = registry.NewMemory()
		}
	}

	embedProvider, err := ai.NewEmbedProvider(cfg.AI.Embed.Provider, cfg.AI.Embed.Data)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	genProvider, err := ai.NewGenProvider(cfg.AI.Generate.Provider, cfg.AI.Generate.Data)
	if err != nil {
		return nil, fmt.Errorf("init generation provider: %w", err)
	}
	embedder := ai.IEmbedder(ai.NewEmbeddingClient(embedProvider, ai.EmbedOptions{
		Model:          cfg.AI.Embed.Model,
		Dimension:      cfg.AI.EmbedDim,
		BatchSize:      cfg.Pipeline.EmbeddingBatchSize,
		MaxRetries:     cfg.AI.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.AI.RetryBaseDelayMs) * time.Millisecond,
		Timeout:        time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		RatePerSecond:  cfg.AI.RatePerSecond,
	}))
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.EmbedCacheSize, time.Duration(cfg.AI.EmbedCacheTTLSeconds)*time.Second)
	generator := ai.NewGenerationClient(genProvider, ai.GenOptions{
		Model:          cfg.AI.Generate.Model,
		MaxRetries:     cfg.AI.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.AI.RetryBaseDelayMs) * time.Millisecond,
		Timeout:        time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
	})

	ck, err := chunker.New(cfg.Pipeline.MaxChunkSize, cfg.Pipeline.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	store, err := filestore.New(cfg.FileStore.Type, cfg.FileStore.Data)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}

	ingest := service.NewIngestService(ck, embedder, idx, reg, store, cfg.Pipeline.EmbeddingBatchSize)
	retriever := retrieval.New(embedder, idx, cfg.Agent.TopK, cfg.Agent.SimilarityCutoff)
	engine := agent.NewEngine(retriever, generator, agent.NewConversationStore(), agent.Options{
		TopK:               cfg.Agent.TopK,
		MaxPromptSize:      cfg.Agent.MaxPromptSize,
		MaxHistoryTurns:    cfg.Agent.MaxHistoryTurns,
		EnableQueryRewrite: cfg.Agent.EnableQueryRewrite,
	})
	return &app{cfg: cfg, ingest: ingest, engine: engine, reg: reg, idx: idx}, nil
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragd",
		Short: "ragbase retrieval-augmented generation pipeline",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	load := func() (*app, error) {
		if configPath == "" {
			return nil, fmt.Errorf("--config is required")
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(
			cfg.LogConfig.File,
			cfg.LogConfig.Level,
			int(cfg.LogConfig.FileCount),
			int(cfg.LogConfig.FileSize),
			int(cfg.LogConfig.KeepDays),
			cfg.LogConfig.Console,
		)
		return buildApp(cfg)
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "ingest documents into the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				doc, err := app.ingest.Ingest(ctx, filenameOf(path), data)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				fmt.Printf("%s\t%s\t%d chunks\t%s\n", doc.ID, doc.Filename, doc.ChunkCount, doc.Status)
			}
			return nil
		},
	}

	reingestCmd := &cobra.Command{
		Use:   "reingest [document-id]",
		Short: "replay a document from its retained upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load()
			if err != nil {
				return err
			}
			doc, err := app.ingest.Reingest(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("reingest %s: %w", args[0], err)
			}
			fmt.Printf("%s\t%s\t%d chunks\t%s\n", doc.ID, doc.Filename, doc.ChunkCount, doc.Status)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list ingested documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load()
			if err != nil {
				return err
			}
			docs, err := app.ingest.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, doc := range docs {
				fmt.Printf("%s\t%s\t%d chunks\t%s\n", doc.ID, doc.Filename, doc.ChunkCount, doc.Status)
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [document-id]",
		Short: "delete a document and its vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load()
			if err != nil {
				return err
			}
			return app.ingest.Delete(cmd.Context(), args[0])
		},
	}

	var threadID string
	queryCmd := &cobra.Command{
		Use:   "query [message]",
		Short: "run one retrieval-augmented turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			stream, err := app.engine.RunTurn(ctx, threadID, args[0])
			if err != nil {
				return err
			}
			for frag := range stream.Fragments() {
				if frag.Err != nil {
					return fmt.Errorf("stage %s: %w", frag.Stage, frag.Err)
				}
				if frag.Done {
					fmt.Println()
					for _, c := range frag.Citations {
						fmt.Printf("source: %s#%d\n", c.Filename, c.Position)
					}
					break
				}
				fmt.Print(frag.Text)
			}
			return nil
		},
	}
	queryCmd.Flags().StringVar(&threadID, "thread", "", "conversation thread id")

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "run background reconcile jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched := schedule.NewCronScheduler()
			reconcile := job.NewReconcileJob(
				app.reg,
				app.idx,
				time.Duration(app.cfg.Reconcile.StaleAfterSeconds)*time.Second,
				app.cfg.Reconcile.RetryFailedDeletions,
			)
			if err := sched.AddJob(reconcile, app.cfg.Reconcile.CronSpec); err != nil {
				return err
			}
			sched.Start(ctx)
			logutil.GetLogger(ctx).Info("daemon running", zap.String("reconcile_spec", app.cfg.Reconcile.CronSpec))
			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}

	rootCmd.AddCommand(ingestCmd, reingestCmd, listCmd, deleteCmd, queryCmd, daemonCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed",
			zap.Int("code", errcode.FromError(err)), zap.Error(err))
	}
}

func filenameOf(path string) string {
	return filepath.Base(path)
}
