package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/infosage/backend/internal/kg/neo4j"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/vector/zilliz"
	"github.com/infosage/backend/pkg/config"
	"github.com/infosage/backend/pkg/logger"
)

var (
	confirmReset bool
	resetActor   string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every claim, analysis and cluster",
	Long: `Deletes all claims, analyses and clusters from the store, and clears
the vector collection and narrative graph when they are enabled. Audit
logs are kept and a reset entry is added.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmReset {
			return errors.New("refusing to reset without --yes")
		}

		cfg, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		counts, err := store.Reset(ctx)
		if err != nil {
			return err
		}
		resetSecondary(ctx, cfg)

		if err := store.InsertAuditLog(ctx, &models.AuditLog{
			ActorID:    resetActor,
			Action:     models.AuditReset,
			TargetType: models.TargetSystem,
			TargetID:   "all",
			Metadata: map[string]any{
				"claims":   counts.Claims,
				"analyses": counts.Analyses,
				"clusters": counts.Clusters,
			},
		}); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d claims, %d analyses, %d clusters\n",
			counts.Claims, counts.Analyses, counts.Clusters)
		return nil
	},
}

// resetSecondary clears the optional indexes. Failures are logged; the
// store reset has already happened.
func resetSecondary(ctx context.Context, cfg *config.Config) {
	if cfg.Zilliz.Enabled {
		z, err := zilliz.NewClient(cfg.Zilliz.Endpoint, cfg.Zilliz.APIKey, cfg.Zilliz.CollectionName, cfg.Zilliz.VectorDim)
		if err == nil {
			err = z.Reset(ctx)
			z.Close()
		}
		if err != nil {
			logger.Error("Failed to reset vector collection", zap.Error(err))
		}
	}

	if cfg.Neo4j.Enabled {
		g, err := neo4j.NewClient(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err == nil {
			err = g.Reset(ctx)
			g.Close(ctx)
		}
		if err != nil {
			logger.Error("Failed to reset narrative graph", zap.Error(err))
		}
	}
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVar(&confirmReset, "yes", false, "confirm the reset")
	resetCmd.Flags().StringVar(&resetActor, "actor", "factctl", "actor recorded in the audit log")
}
