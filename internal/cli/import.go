package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/config"
	"proctor-quiz-service/internal/logger"
)

// NewImportCmd publishes quizzes authored as YAML files, skipping the builder.
func NewImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <quiz.yaml>...",
		Short: "Validate and publish quizzes from YAML files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer b.close()
			if cfg.Store.Backend == "" || cfg.Store.Backend == "memory" {
				log.Warn("memory backend: imported quizzes are lost when the command exits")
			}

			authoring := app.NewAuthoring(b.store, app.NewCatalog(b.store), log)
			for _, path := range args {
				draft, err := readDraft(path)
				if err != nil {
					return err
				}
				quiz, err := authoring.Publish(ctx, draft)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				log.Info("quiz imported", zap.String("file", path), zap.Int64("quiz_id", quiz.ID))
			}
			return nil
		},
	}
}

// readDraft goes through JSON so the draft keeps a single set of field names.
func readDraft(path string) (app.Draft, error) {
	var draft app.Draft
	data, err := os.ReadFile(path)
	if err != nil {
		return draft, err
	}
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return draft, fmt.Errorf("%s: %w", path, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return draft, fmt.Errorf("%s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &draft); err != nil {
		return draft, fmt.Errorf("%s: %w", path, err)
	}
	return draft, nil
}
