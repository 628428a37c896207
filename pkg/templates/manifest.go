package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one template reference in a manifest file
type Entry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Manifest represents the structure of a template YAML file
type Manifest struct {
	Templates []Entry `yaml:"templates"`
}

// imageExtensions are the formats Load can decode
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
}

// LoadManifest reads a YAML manifest. Relative paths are resolved against the
// manifest's directory and entries keep their file order.
func LoadManifest(filePath string) ([]Entry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read template manifest %s: %w", filePath, err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template manifest: %w", err)
	}

	baseDir := filepath.Dir(filePath)
	entries := make([]Entry, 0, len(manifest.Templates))
	for i, def := range manifest.Templates {
		if def.Path == "" {
			return nil, fmt.Errorf("template %d (%s): path cannot be empty", i+1, def.Name)
		}
		path := def.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		name := def.Name
		if name == "" {
			name = nameFor(path)
		}
		entries = append(entries, Entry{Name: name, Path: path})
	}

	return entries, nil
}

// LoadEntries loads manifest entries, keeping the manifest names
func LoadEntries(entries []Entry) ([]Template, []Warning) {
	loaded, warnings := Load(Paths(entries))

	names := make(map[string]string, len(entries))
	for _, e := range entries {
		if _, ok := names[e.Path]; !ok {
			names[e.Path] = e.Name
		}
	}
	for i := range loaded {
		if name, ok := names[loaded[i].Path]; ok {
			loaded[i].Name = name
		}
	}
	return loaded, warnings
}

// Paths returns the entry paths in order
func Paths(entries []Entry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}

// ExpandDir lists the decodable image files of a directory in lexical order
func ExpandDir(dirPath string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read template directory %s: %w", dirPath, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dirPath, entry.Name()))
	}
	sort.Strings(paths)

	return paths, nil
}
