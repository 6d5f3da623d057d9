package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/bnema/tabflow/internal/domain"
	"github.com/bnema/tabflow/internal/ports"
)

const (
	configName       = "config"
	configType       = "toml"
	snapshotPathKey  = "snapshot.path"
	snapshotFileMode = 0o600
	snapshotDirMode  = 0o700
	configDirName    = "tabflow"
	snapshotFileName = "snapshot.toml"
	tempFilePattern  = ".snapshot-*.toml.tmp"
)

// Repository persists the registry snapshot as a TOML document. Writes are
// atomic (temp file + rename) and loads enforce the staleness bound and the
// per-window uniqueness invariant.
type Repository struct {
	snapshotPath string
	clock        ports.Clock
	mu           *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.SnapshotStore = (*Repository)(nil)

func NewRepository(cfg *viper.Viper, clock ports.Clock) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	configDir, err := defaultConfigDir()
	if err != nil {
		return nil, err
	}

	defaultPath := filepath.Join(configDir, snapshotFileName)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(configDir)
	cfg.SetDefault(snapshotPathKey, defaultPath)

	err = cfg.ReadInConfig()
	if err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	snapshotPath := cfg.GetString(snapshotPathKey)
	if snapshotPath == "" {
		return nil, errors.New("snapshot path is empty")
	}
	snapshotPath, err = normalizeSnapshotPath(snapshotPath)
	if err != nil {
		return nil, err
	}

	return &Repository{snapshotPath: snapshotPath, clock: clock, mu: lockForPath(snapshotPath)}, nil
}

func defaultConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config directory: %w", err)
	}
	return filepath.Join(base, configDirName), nil
}

func (r *Repository) Save(ctx context.Context, snapshot domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("refuse to persist invalid snapshot: %w", err)
	}

	return r.writeSchema(toSchema(snapshot))
}

func (r *Repository) Load(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, found, err := r.readSchema()
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !found {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}

	snapshot, err := fromSchema(file)
	if err != nil {
		return domain.Snapshot{}, err
	}

	if err := snapshot.Validate(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("stored snapshot invalid: %w", err)
	}
	if snapshot.Stale(r.clock.Now()) {
		return domain.Snapshot{}, domain.ErrStaleSnapshot
	}

	return snapshot, nil
}

func (r *Repository) readSchema() (fileSchema, bool, error) {
	data, err := os.ReadFile(r.snapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, false, nil
		}
		return fileSchema{}, false, fmt.Errorf("read snapshot file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, false, fmt.Errorf("decode snapshot file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, false, err
	}
	file.applyDefaults()

	return file, true, nil
}

func normalizeSnapshotPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve snapshot path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.snapshotPath), snapshotDirMode); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode snapshot file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.snapshotPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp snapshot file: %w", err)
	}

	if err := tempFile.Chmod(snapshotFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp snapshot file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp snapshot file: %w", err)
	}

	if err := os.Rename(tempName, r.snapshotPath); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}

	cleanup = false

	if err := os.Chmod(r.snapshotPath, snapshotFileMode); err != nil {
		return fmt.Errorf("chmod snapshot file: %w", err)
	}

	return nil
}

func toSchema(snapshot domain.Snapshot) fileSchema {
	file := fileSchema{
		Version: snapshot.SchemaVersion,
		SavedAt: snapshot.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if file.Version == 0 {
		file.Version = currentSchemaVersion
	}

	for _, w := range snapshot.Windows {
		ws := windowSchema{ID: int64(w.WindowID), Movable: w.Movable}
		for _, t := range w.Tabs {
			ws.Tabs = append(ws.Tabs, tabSchema{
				ID:    int64(t.TabID),
				Order: t.Order.UTC().Format(time.RFC3339Nano),
			})
		}
		file.Windows = append(file.Windows, ws)
	}

	return file
}

func fromSchema(file fileSchema) (domain.Snapshot, error) {
	savedAt, err := time.Parse(time.RFC3339Nano, file.SavedAt)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("parse snapshot timestamp: %w", err)
	}

	snapshot := domain.Snapshot{
		SchemaVersion: file.Version,
		Timestamp:     savedAt,
	}

	for _, w := range file.Windows {
		ws := domain.WindowSnapshot{WindowID: domain.WindowID(w.ID), Movable: w.Movable}
		for _, t := range w.Tabs {
			order, err := time.Parse(time.RFC3339Nano, t.Order)
			if err != nil {
				return domain.Snapshot{}, fmt.Errorf("parse tab order for tab %d: %w", t.ID, err)
			}
			ws.Tabs = append(ws.Tabs, domain.TabSnapshot{TabID: domain.TabID(t.ID), Order: order})
		}
		snapshot.Windows = append(snapshot.Windows, ws)
	}

	return snapshot, nil
}
