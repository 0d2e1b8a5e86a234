package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/reviewloop/reviewloop/internal/config"
)

var configureProvider string

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Store an LLM provider API key in the OS keychain",
	Run: func(cmd *cobra.Command, args []string) {
		provider := strings.ToLower(configureProvider)
		if provider != "openai" && provider != "gemini" {
			log.Fatalf("unknown provider %q (want openai or gemini)", provider)
		}

		fmt.Printf("Enter %s API key: ", provider)
		key, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			log.Fatalf("failed to read key: %v", err)
		}
		if len(key) == 0 {
			log.Fatal("empty key, nothing stored")
		}

		if err := config.SetAPIKey(provider, string(key)); err != nil {
			log.Fatalf("keychain: %v", err)
		}
		log.Infof("API key for %s stored in the OS keychain", provider)
	},
}

func init() {
	configureCmd.Flags().StringVar(&configureProvider, "provider", "openai", "provider the key belongs to (openai or gemini)")
}
