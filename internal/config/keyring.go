package config

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "reviewloop"

// SetAPIKey stores a provider API key in the OS keychain
func SetAPIKey(provider, key string) error {
	if provider == "" {
		return fmt.Errorf("provider is required")
	}
	if err := keyring.Set(keyringService, provider, key); err != nil {
		return fmt.Errorf("failed to store API key for %s: %w", provider, err)
	}
	return nil
}

// GetAPIKey retrieves a provider API key from the OS keychain
func GetAPIKey(provider string) (string, error) {
	key, err := keyring.Get(keyringService, provider)
	if err != nil {
		return "", fmt.Errorf("no stored API key for %s: %w", provider, err)
	}
	return key, nil
}

// DeleteAPIKey removes a provider API key from the OS keychain
func DeleteAPIKey(provider string) error {
	if err := keyring.Delete(keyringService, provider); err != nil {
		return fmt.Errorf("failed to delete API key for %s: %w", provider, err)
	}
	return nil
}
