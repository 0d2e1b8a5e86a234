package main

import (
	"github.com/spf13/cobra"

	"github.com/reviewloop/reviewloop/internal/assets"
)

var assetsRepo string

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Manage pre-built review assets",
}

var assetsBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the repository map asset used by the fetch_repo_map tool",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		store, err := assets.Open(cfg.Assets)
		if err != nil {
			log.Fatalf("asset store: %v", err)
		}
		defer store.Close()

		rm, err := assets.BuildAndSave(store, assetsRepo)
		if err != nil {
			log.Fatalf("repo map build: %v", err)
		}
		log.Infof("repo map built: %d files indexed from %s", rm.FileCount, assetsRepo)
	},
}

func init() {
	assetsBuildCmd.Flags().StringVar(&assetsRepo, "repo", ".", "path to the repository to index")
	assetsCmd.AddCommand(assetsBuildCmd)
}
