package usecase

import (
	"context"

	"github.com/runoshun/research-crew/internal/domain"
)

// InitConfigOutput contains the output of the InitConfig use case.
type InitConfigOutput struct {
	Path string // Path to the created config file
}

// InitConfig generates a configuration file template.
type InitConfig struct {
	configManager domain.ConfigManager
}

// NewInitConfig creates a new InitConfig use case.
func NewInitConfig(configManager domain.ConfigManager) *InitConfig {
	return &InitConfig{
		configManager: configManager,
	}
}

// Execute creates the data directory config file with the default template.
func (uc *InitConfig) Execute(_ context.Context) (*InitConfigOutput, error) {
	if err := uc.configManager.InitConfig(); err != nil {
		return nil, err
	}
	return &InitConfigOutput{Path: uc.configManager.GetConfigInfo().LocalPath}, nil
}
