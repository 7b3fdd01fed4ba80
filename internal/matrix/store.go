package matrix

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"gpubw/internal/measure"
)

// LoadMatrix reads a saved matrix. JSON files hold a list of measurements; anything else
// is read as concatenated probe output.
func LoadMatrix(fs afero.Fs, path string) (*AffinityMatrix, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read matrix %s", path)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		m := New()
		if err := json.Unmarshal(trimmed, m); err != nil {
			return nil, errors.Wrapf(err, "decode matrix %s", path)
		}
		m.Freeze()
		return m, nil
	}

	info, err := fs.Stat(path)
	at := time.Time{}
	if err == nil {
		at = info.ModTime()
	}
	ms, err := measure.ParseText(string(data), at)
	if err != nil {
		return nil, errors.Wrapf(err, "parse matrix %s", path)
	}
	m, err := Build(ms)
	if err != nil {
		return nil, errors.Wrapf(err, "build matrix %s", path)
	}
	m.Freeze()
	return m, nil
}

func SaveMatrix(fs afero.Fs, path string, m *AffinityMatrix) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode matrix")
	}
	return WriteFile(fs, path, data)
}

// WriteFile replaces path through a temporary sibling.
func WriteFile(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename %s", tmp)
	}
	return nil
}
