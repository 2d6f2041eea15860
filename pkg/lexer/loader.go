package lexer

import (
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/xplshn/ccfront/pkg/config"
	"github.com/xplshn/ccfront/pkg/token"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// FileLoader resolves #include paths on disk. A relative path is tried
// against the including file's directory first, then each include path,
// then the working directory.
type FileLoader struct {
	Cfg *config.Config
}

func NewFileLoader(cfg *config.Config) *FileLoader { return &FileLoader{Cfg: cfg} }

func (l *FileLoader) Load(path string, from *token.Source) ([]token.Token, error) {
	name, content, err := l.read(path, from)
	if err != nil {
		return nil, err
	}
	tlog.V("pp").Printw("include", "path", name, "size", humanize.Bytes(uint64(len(content))))
	return Tokenize(name, content, l.Cfg)
}

func (l *FileLoader) candidates(path string, from *token.Source) []string {
	if filepath.IsAbs(path) {
		return []string{path}
	}
	var c []string
	if from != nil && from.Name != "" {
		c = append(c, filepath.Join(filepath.Dir(from.Name), path))
	}
	for _, dir := range l.Cfg.IncludePaths {
		c = append(c, filepath.Join(dir, path))
	}
	return append(c, path)
}

func (l *FileLoader) read(path string, from *token.Source) (string, []byte, error) {
	for _, name := range l.candidates(path, from) {
		content, err := os.ReadFile(name)
		if err == nil {
			return name, content, nil
		}
		if !os.IsNotExist(err) {
			return "", nil, errors.Wrap(err, "read %s", name)
		}
	}
	return "", nil, errors.New("file not found in %d search locations", len(l.candidates(path, from)))
}

// MapLoader serves includes from memory, keyed by path.
type MapLoader struct {
	Cfg   *config.Config
	Files map[string]string
}

func (l *MapLoader) Load(path string, _ *token.Source) ([]token.Token, error) {
	content, ok := l.Files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return Tokenize(path, []byte(content), l.Cfg)
}
