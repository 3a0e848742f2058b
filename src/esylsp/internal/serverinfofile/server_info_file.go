package serverinfofile

import (
	"context"
	"fmt"
	"sync"

	"github.com/esy-community/esy-language-server/src/esylsp/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v3"
)

const _configKeyInfoFile = "serverInfoFilePath"

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// ServerInfoFile is an interface to manage contents of a single server info file.
// It holds launch state (session state, backend pid) for reference by the host
// editor and other tools, and is written to at session launch.
type ServerInfoFile interface {
	UpdateField(key string, value string) error
}

type module struct {
	infofile     string
	logger       *zap.SugaredLogger
	fs           fs.WorkspaceFS
	fileContents map[string]string
	written      bool
	mu           sync.Mutex
}

// Params define values to be used by ServerInfoFile.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	FS        fs.WorkspaceFS
}

// New creates a new ServerInfoFile which manages contents of a single server info file.
// An empty serverInfoFilePath disables the file; UpdateField becomes a no-op.
func New(p Params) (ServerInfoFile, error) {
	m := module{
		logger:       p.Logger,
		fs:           p.FS,
		fileContents: make(map[string]string),
	}

	if err := m.processConfig(p.Config); err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: m.OnStop,
	})

	return &m, nil
}

func (m *module) OnStop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Only remove a file this process actually wrote; a refused launch never
	// creates one.
	if m.infofile == "" || !m.written {
		return nil
	}
	return m.fs.Remove(m.infofile)
}

func (m *module) UpdateField(key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.infofile == "" {
		return nil
	}

	m.fileContents[key] = value
	out, err := yaml.Marshal(m.fileContents)
	if err != nil {
		return fmt.Errorf("marshalling yaml: %w", err)
	}

	if err := m.fs.WriteFile(m.infofile, string(out)); err != nil {
		return fmt.Errorf("creating info file: %w", err)
	}
	m.written = true
	m.logger.Infow("launch info saved", zap.String("file", m.infofile), zap.String(key, value))
	return nil
}

func (m *module) processConfig(cfg config.Provider) error {
	val := cfg.Get(_configKeyInfoFile)
	if err := val.Populate(&m.infofile); err != nil {
		// incorrectly formatted config
		return fmt.Errorf("getting config field %q: %w", _configKeyInfoFile, err)
	}

	return nil
}
