package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/handywriterz/handywriterz/config"
	core "github.com/handywriterz/handywriterz/internal/agent/core"
	srv "github.com/handywriterz/handywriterz/internal/server"
	"github.com/handywriterz/handywriterz/internal/store"
)

func main() {
	var root = &cobra.Command{Use: "handywriterz"}

	root.AddCommand(serveCMD(), processCMD(), migrateCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCMD() *cobra.Command {
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, cfg)
		},
	}
	serve.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return serve
}

func processCMD() *cobra.Command {
	var cfgPath string
	var userID string
	var field string
	var writeupType string
	var wordCount int
	var citationStyle string
	var minSources int
	var sourceAge int
	var design string

	var process = &cobra.Command{
		Use:   "process <prompt>",
		Short: "Run one writing request end to end and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := srv.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			state, err := app.Orch.ProcessRequest(ctx, core.Request{
				UserID: userID,
				Prompt: args[0],
				Params: core.UserParams{
					Field:          field,
					WriteupType:    writeupType,
					WordCount:      wordCount,
					CitationStyle:  citationStyle,
					MinSources:     minSources,
					SourceAgeYears: sourceAge,
					StudyDesign:    design,
				},
			})
			if err != nil {
				return err
			}
			if state.Status == core.StatusFailed {
				return fmt.Errorf("workflow failed: %s", state.ErrorMessage)
			}

			out, err := json.MarshalIndent(map[string]interface{}{
				"conversation_id": state.ConversationID,
				"status":          state.Status,
				"sources":         state.Sources,
				"draft":           state.FormattedDraft,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	process.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	process.Flags().StringVar(&userID, "user", "", "user id for style personalization")
	process.Flags().StringVar(&field, "field", "", "academic field")
	process.Flags().StringVar(&writeupType, "type", "essay", "writeup type (essay, report, dissertation)")
	process.Flags().IntVar(&wordCount, "words", 1500, "target word count")
	process.Flags().StringVar(&citationStyle, "style", "apa", "citation style (apa, harvard)")
	process.Flags().IntVar(&minSources, "min-sources", 3, "minimum verified sources")
	process.Flags().IntVar(&sourceAge, "source-age", 10, "maximum source age in years")
	process.Flags().StringVar(&design, "design", "", "required study design filter")
	return process
}

func migrateCMD() *cobra.Command {
	var cfgPath string
	var migDir string
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Postgres.Host == "" && cfg.Storage.Postgres.URL == "" {
				return fmt.Errorf("postgres not configured (storage.postgres.host or url)")
			}
			return store.Migrate(migDir, cfg.Storage.Postgres.DSN(), direction, steps)
		},
	}
	migrate.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return migrate
}
