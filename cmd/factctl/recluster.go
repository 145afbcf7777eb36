package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infosage/backend/internal/clustering"
)

var reclusterCmd = &cobra.Command{
	Use:   "recluster",
	Short: "Recompute clusters from every embedded claim",
	Long: `Runs k-means over all stored claim embeddings and upserts the
resulting clusters. Existing clusters that share a member are updated in
place.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		engine := clustering.NewEngine(store, clustering.Config{
			MaxClusters:   cfg.Clustering.MaxClusters,
			MaxIterations: cfg.Clustering.MaxIterations,
			Seed:          cfg.Clustering.Seed,
		})

		res, err := engine.Recluster(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "claims: %d\nclusters: %d\ncreated: %d\nupdated: %d\n",
			res.TotalClaims, res.NumClusters, res.ClustersCreated, res.ClustersUpdated)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reclusterCmd)
}
