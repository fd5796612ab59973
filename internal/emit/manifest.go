package emit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// bundlerName marks manifests this package writes.
const bundlerName = "rnbundle"

// Manifest describes a build's artifacts for tooling and servers.
type Manifest struct {
	Bundler     string            `json:"bundler"`
	PublicPath  string            `json:"publicPath"`
	HTML        string            `json:"html"`
	Chunks      []ManifestChunk   `json:"chunks"`
	SplitPoints []ManifestPoint   `json:"splitPoints"`
	Modules     map[string]string `json:"modules"`
}

type ManifestChunk struct {
	Name    string   `json:"name"`
	File    string   `json:"file"`
	Kind    string   `json:"kind"`
	Class   string   `json:"class,omitempty"`
	Initial bool     `json:"initial"`
	Size    int      `json:"size"`
	Modules []string `json:"modules"`
}

type ManifestPoint struct {
	Name    string   `json:"name"`
	Module  string   `json:"module"`
	Initial bool     `json:"initial"`
	Chunks  []string `json:"chunks"`
}

func (m *Manifest) marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// replaceable checks that the existing directory out is empty or holds a
// previous build's output, recognised by its manifest.
func replaceable(out, manifest string) error {
	info, err := os.Lstat(out)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrForeignOutput, out)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(manifest))) // #nosec G304 - manifest name from config
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s has no %s", ErrForeignOutput, out, manifest)
	}
	if err != nil {
		return err
	}

	var m struct {
		Bundler string `json:"bundler"`
	}
	if err := json.Unmarshal(data, &m); err != nil || m.Bundler != bundlerName {
		return fmt.Errorf("%w: %s was not written by %s", ErrForeignOutput, manifest, bundlerName)
	}
	return nil
}
