package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/runoshun/research-crew/internal/domain"
)

// InitStoreInput contains the input parameters for InitStore.
type InitStoreInput struct {
	DataDir string // Path to the .rcrew directory
}

// InitStoreOutput contains the output from InitStore.
type InitStoreOutput struct {
	DataDir       string // Path to the data directory
	ConfigCreated bool   // True if a config template was written
}

// InitStore prepares the data directory, the store and the config file.
type InitStore struct {
	storeInit     domain.StoreInitializer
	configManager domain.ConfigManager
}

// NewInitStore creates a new InitStore use case.
func NewInitStore(storeInit domain.StoreInitializer, configManager domain.ConfigManager) *InitStore {
	return &InitStore{storeInit: storeInit, configManager: configManager}
}

// Execute creates the data and logs directories, initializes the store and
// writes a default config unless one exists. It is safe to run repeatedly.
func (uc *InitStore) Execute(ctx context.Context, in InitStoreInput) (*InitStoreOutput, error) {
	if in.DataDir != "" {
		logsDir := filepath.Join(in.DataDir, "logs")
		if err := os.MkdirAll(logsDir, 0o750); err != nil {
			return nil, fmt.Errorf("create logs directory: %w", err)
		}
	}

	if err := uc.storeInit.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	created := false
	if uc.configManager != nil {
		err := uc.configManager.InitConfig()
		switch {
		case err == nil:
			created = true
		case errors.Is(err, domain.ErrConfigExists):
		default:
			return nil, fmt.Errorf("init config: %w", err)
		}
	}

	return &InitStoreOutput{DataDir: in.DataDir, ConfigCreated: created}, nil
}
