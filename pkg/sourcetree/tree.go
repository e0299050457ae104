// Package sourcetree reads the on-disk content tree being migrated.
//
// Layout:
//
//	root/
//	  resources/<resource-dir>/resource_properties.txt, resource_data
//	  modules/<module-dir>/index.cnxml, resources/<resource-dir>/...
//	  collections/<collection-dir>/collection.xml, <module-dir>/...
//
// Any of the three top-level directories may instead be sharded into exactly
// ShardCount numbered subdirectories ("000" through "999").
package sourcetree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/spf13/afero"
)

const (
	ResourcesDir   = "resources"
	ModulesDir     = "modules"
	CollectionsDir = "collections"

	ResourcePropertiesFile = "resource_properties.txt"
	ResourceDataFile       = "resource_data"
	ModuleBodyFile         = "index.cnxml"
	ManifestFile           = "collection.xml"

	// ShardCount is the exact number of shard directories in a sharded layout.
	ShardCount = 1000
)

// ErrBadShardLayout is returned when a sharded directory does not contain
// exactly ShardCount entries named "000" through "999".
var ErrBadShardLayout = errors.New("bad shard layout")

// ModuleDirPattern matches module directory names: one lowercase letter then digits.
var ModuleDirPattern = regexp.MustCompile(`^[a-z]\d+$`)

// Tree is a content tree rooted at Root on Fs.
type Tree struct {
	Fs      afero.Fs
	Root    string
	Sharded bool
}

// New returns a tree rooted at root. Use afero.NewOsFs() for the real disk.
func New(fs afero.Fs, root string, sharded bool) *Tree {
	return &Tree{Fs: fs, Root: root, Sharded: sharded}
}

// Resources lists standalone resource directories.
func (t *Tree) Resources() ([]string, error) {
	return t.entries(filepath.Join(t.Root, ResourcesDir), nil)
}

// Modules lists standalone module directories whose names match ModuleDirPattern.
func (t *Tree) Modules() ([]string, error) {
	return t.entries(filepath.Join(t.Root, ModulesDir), ModuleDirPattern)
}

// Collections lists collection directories.
func (t *Tree) Collections() ([]string, error) {
	return t.entries(filepath.Join(t.Root, CollectionsDir), nil)
}

func (t *Tree) entries(dir string, pattern *regexp.Regexp) ([]string, error) {
	exists, err := afero.DirExists(t.Fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !exists {
		return nil, nil
	}

	if !t.Sharded {
		return ChildDirs(t.Fs, dir, pattern)
	}

	shards, err := Shards(t.Fs, dir)
	if err != nil {
		return nil, err
	}
	var all []string
	for _, shard := range shards {
		dirs, err := ChildDirs(t.Fs, shard, pattern)
		if err != nil {
			return nil, err
		}
		all = append(all, dirs...)
	}
	return all, nil
}

// ChildDirs returns the immediate subdirectories of dir, sorted by name.
// When pattern is non-nil only names matching it are returned. Regular files
// are ignored.
func ChildDirs(fs afero.Fs, dir string, pattern *regexp.Regexp) ([]string, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var dirs []string
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		if pattern != nil && !pattern.MatchString(info.Name()) {
			continue
		}
		dirs = append(dirs, filepath.Join(dir, info.Name()))
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Shards returns the ShardCount shard directories of dir in order. Anything
// other than exactly "000" through "999" is a configuration error.
func Shards(fs afero.Fs, dir string) ([]string, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(infos) != ShardCount {
		return nil, fmt.Errorf("%w: %s has %d entries, want %d", ErrBadShardLayout, dir, len(infos), ShardCount)
	}

	shards := make([]string, 0, ShardCount)
	for i := 0; i < ShardCount; i++ {
		name := fmt.Sprintf("%03d", i)
		p := filepath.Join(dir, name)
		info, err := fs.Stat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s is missing shard %s", ErrBadShardLayout, dir, name)
			}
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: %s is not a directory", ErrBadShardLayout, p)
		}
		shards = append(shards, p)
	}
	return shards, nil
}

// ModuleResources lists the resource directories a module declares.
func (t *Tree) ModuleResources(moduleDir string) ([]string, error) {
	dir := filepath.Join(moduleDir, ResourcesDir)
	exists, err := afero.DirExists(t.Fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !exists {
		return nil, nil
	}
	return ChildDirs(t.Fs, dir, nil)
}

// CollectionModules lists the module directories inside a collection.
func (t *Tree) CollectionModules(collectionDir string) ([]string, error) {
	return ChildDirs(t.Fs, collectionDir, ModuleDirPattern)
}

// ReadModuleBody returns a module's primary document.
func (t *Tree) ReadModuleBody(moduleDir string) (string, error) {
	return t.readText(filepath.Join(moduleDir, ModuleBodyFile))
}

// ReadManifest returns a collection's manifest document.
func (t *Tree) ReadManifest(collectionDir string) (string, error) {
	return t.readText(filepath.Join(collectionDir, ManifestFile))
}

// ReadResource returns a resource's properties and binary payload.
func (t *Tree) ReadResource(resourceDir string) (*Resource, error) {
	propsPath := filepath.Join(resourceDir, ResourcePropertiesFile)
	f, err := t.Fs.Open(propsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", propsPath, err)
	}
	defer f.Close()

	props, err := ParseProperties(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", propsPath, err)
	}

	dataPath := filepath.Join(resourceDir, ResourceDataFile)
	data, err := afero.ReadFile(t.Fs, dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dataPath, err)
	}

	return &Resource{Dir: resourceDir, Properties: props, Data: data}, nil
}

func (t *Tree) readText(p string) (string, error) {
	data, err := afero.ReadFile(t.Fs, p)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", p, err)
	}
	return string(data), nil
}
