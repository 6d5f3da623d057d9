// Package file reads tracker policy from the tabflow config file. The file
// is re-read on every Current call so edits take effect without a restart.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/tabflow/internal/domain"
	"github.com/bnema/tabflow/internal/ports"
)

const (
	configName    = "config"
	configType    = "toml"
	configDirName = "tabflow"

	flipKey         = "policy.flip"
	newTabSelectKey = "policy.new_tab_select"
	relocateKey     = "policy.relocate"
	intervalKey     = "reconcile.interval"
	dormancyGapKey  = "reconcile.dormancy_gap"

	defaultReconcileInterval = 30 * time.Second
	defaultDormancyGap       = 5 * time.Second
)

type Source struct {
	mu  sync.Mutex
	cfg *viper.Viper
}

var _ ports.SettingsSource = (*Source)(nil)

// NewSource binds to the config file under the user config directory. A
// missing file is fine: defaults apply until one appears.
func NewSource(cfg *viper.Viper) (*Source, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user config directory: %w", err)
	}

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(base, configDirName))

	defaults := domain.DefaultSettings()
	cfg.SetDefault(flipKey, defaults.Flip)
	cfg.SetDefault(newTabSelectKey, defaults.NewTabSelect)
	cfg.SetDefault(relocateKey, defaults.Relocate)
	cfg.SetDefault(intervalKey, defaultReconcileInterval)
	cfg.SetDefault(dormancyGapKey, defaultDormancyGap)

	return &Source{cfg: cfg}, nil
}

func (s *Source) Current(ctx context.Context) (domain.Settings, error) {
	if err := ctx.Err(); err != nil {
		return domain.Settings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reload(); err != nil {
		return domain.Settings{}, err
	}

	return domain.Settings{
		Flip:         s.cfg.GetBool(flipKey),
		NewTabSelect: s.cfg.GetBool(newTabSelectKey),
		Relocate:     s.cfg.GetBool(relocateKey),
	}, nil
}

// ReconcileInterval returns the periodic reconciliation cadence. GetDuration
// yields zero for an unparseable value, so a config typo degrades to the
// default instead of propagating a duration no ticker can run on.
func (s *Source) ReconcileInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.reload()
	if d := s.cfg.GetDuration(intervalKey); d > 0 {
		return d
	}
	return defaultReconcileInterval
}

// DormancyGap returns the elapsed-time threshold that marks the process as
// having been suspended.
func (s *Source) DormancyGap() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.reload()
	if d := s.cfg.GetDuration(dormancyGapKey); d > 0 {
		return d
	}
	return defaultDormancyGap
}

func (s *Source) reload() error {
	err := s.cfg.ReadInConfig()
	if err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFound) {
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	return nil
}
