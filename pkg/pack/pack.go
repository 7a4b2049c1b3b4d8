// Package pack moves between serialized documents and real on-disk
// directory trees without a mount: unpack writes a decoded value out as
// directories, files, and xattrs; pack walks such a tree back into a
// value.
package pack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/xattr"

	"github.com/jacktea/ffs/pkg/munge"
	"github.com/jacktea/ffs/pkg/value"
)

// XattrType mirrors the mounted filesystem's reserved attribute.
const XattrType = "user.type"

// XattrOriginalName records a munged key's original spelling so pack
// can restore it.
const XattrOriginalName = "user.original_name"

// SymlinkMode selects how pack treats symbolic links.
type SymlinkMode int

const (
	// NoFollow silently skips symlinks.
	NoFollow SymlinkMode = iota
	// Follow dereferences all symlinks, with loop and escape checks.
	Follow
	// FollowSelected dereferences only the configured paths.
	FollowSelected
)

var (
	ErrSymlinkLoop     = errors.New("symlink chain forms a loop")
	ErrAncestorSymlink = errors.New("symlink resolves to an ancestor directory")
	ErrSymlinkEscape   = errors.New("symlink resolves outside the directory being packed")
)

// Config fixes pack and unpack policies.
type Config struct {
	Munge           munge.Policy
	AddNewlines     bool
	Exact           bool
	NoXattr         bool
	PadElementNames bool
	KeepMacOSXattr  bool

	// MaxDepth bounds descent; negative means unlimited. Directories
	// at the boundary become empty maps or lists.
	MaxDepth int

	Symlinks SymlinkMode
	// FollowPaths are the symlinks dereferenced under FollowSelected.
	FollowPaths []string
	// AllowSymlinkEscape permits symlink targets outside the pack root.
	AllowSymlinkEscape bool
}

// DefaultConfig mirrors the CLI defaults.
func DefaultConfig() Config {
	return Config{
		AddNewlines:     true,
		PadElementNames: true,
		MaxDepth:        -1,
	}
}

// Pack walks root into a value.
func Pack(root string, cfg Config) (value.Value, error) {
	p := &packer{cfg: cfg, root: root}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	p.root = abs
	v, err := p.pack(abs, 0)
	if err != nil {
		return nil, err
	}
	if v == nil || !value.IsDirectory(v) {
		return nil, fmt.Errorf("pack %s: not a directory", root)
	}
	return v, nil
}

type packer struct {
	cfg  Config
	root string
}

// pack converts one path into a value; a nil value means the entry is
// skipped (unfollowed or broken symlinks).
func (p *packer) pack(path string, depth int) (value.Value, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		resolved, err := p.resolveSymlink(path)
		if err != nil || resolved == "" {
			return nil, err
		}
		path = resolved
		if info, err = os.Lstat(path); err != nil {
			return nil, err
		}
	}

	if info.IsDir() {
		return p.packDir(path, depth)
	}
	return p.packFile(path)
}

func (p *packer) packDir(path string, depth int) (value.Value, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	isList := p.dirIsList(path, names)
	atLimit := p.cfg.MaxDepth >= 0 && depth >= p.cfg.MaxDepth

	if isList {
		list := value.List{}
		if atLimit {
			return list, nil
		}
		for _, name := range names {
			if p.ignored(name) {
				continue
			}
			child, err := p.pack(filepath.Join(path, name), depth+1)
			if err != nil {
				return nil, err
			}
			if child != nil {
				list = append(list, child)
			}
		}
		return list, nil
	}

	m := value.NewMap()
	if atLimit {
		return m, nil
	}
	for _, name := range names {
		if p.ignored(name) {
			continue
		}
		childPath := filepath.Join(path, name)
		child, err := p.pack(childPath, depth+1)
		if err != nil {
			return nil, err
		}
		if child == nil {
			continue
		}
		m.Set(p.restoreName(childPath, name), child)
	}
	return m, nil
}

func (p *packer) packFile(path string) (value.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	typ := value.TypAuto
	if !p.cfg.NoXattr {
		if raw, err := xattr.Get(path, XattrType); err == nil {
			if parsed, ok := value.ParseTyp(string(raw)); ok && !parsed.IsDirectoryTyp() {
				typ = parsed
			}
		}
	}
	if !p.cfg.Exact && len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	return value.FromTyped(typ, data), nil
}

// dirIsList consults user.type first, then falls back to shape: a
// directory whose entries all start with a digit (optionally after a
// leading '-') packs as a list.
func (p *packer) dirIsList(path string, names []string) bool {
	if !p.cfg.NoXattr {
		if raw, err := xattr.Get(path, XattrType); err == nil {
			switch string(raw) {
			case "list":
				return true
			case "named":
				return false
			}
		}
	}
	if len(names) == 0 {
		return false
	}
	for _, name := range names {
		if p.ignored(name) {
			continue
		}
		if !startsWithDigit(name) {
			return false
		}
	}
	return true
}

func startsWithDigit(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' && len(s) > 1 {
		s = s[1:]
	}
	return s[0] >= '0' && s[0] <= '9'
}

// restoreName recovers the original document key stored at unpack time,
// but only when that key actually needed munging; otherwise the current
// filename wins so user renames stick.
func (p *packer) restoreName(path, name string) string {
	if p.cfg.NoXattr {
		return name
	}
	raw, err := xattr.Get(path, XattrOriginalName)
	if err != nil {
		return name
	}
	original := string(raw)
	if !munge.ValidName(original) {
		return original
	}
	return name
}

func (p *packer) ignored(name string) bool {
	if name == "." || name == ".." {
		return true
	}
	return !p.cfg.KeepMacOSXattr && strings.HasPrefix(name, "._")
}

// resolveSymlink walks a symlink chain. The empty string means the
// entry should be silently skipped.
func (p *packer) resolveSymlink(path string) (string, error) {
	switch p.cfg.Symlinks {
	case NoFollow:
		log.Debug("skipping symlink", "path", path)
		return "", nil
	case FollowSelected:
		if !p.selectedForFollow(path) {
			log.Debug("skipping unselected symlink", "path", path)
			return "", nil
		}
	}

	visited := map[string]bool{}
	cursor := path
	for {
		if visited[cursor] {
			return "", fmt.Errorf("%w: %s", ErrSymlinkLoop, path)
		}
		visited[cursor] = true
		info, err := os.Lstat(cursor)
		if err != nil {
			if os.IsNotExist(err) {
				log.Warn("skipping broken symlink", "path", path)
				return "", nil
			}
			return "", err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			break
		}
		target, err := os.Readlink(cursor)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(cursor), target)
		}
		cursor = filepath.Clean(target)
	}

	resolved, err := filepath.Abs(cursor)
	if err != nil {
		return "", err
	}
	if isAncestorOf(resolved, filepath.Dir(path)) {
		return "", fmt.Errorf("%w: %s points at %s", ErrAncestorSymlink, path, resolved)
	}
	if !p.cfg.AllowSymlinkEscape && !within(p.root, resolved) {
		return "", fmt.Errorf("%w: %s points at %s", ErrSymlinkEscape, path, resolved)
	}
	return resolved, nil
}

func (p *packer) selectedForFollow(path string) bool {
	for _, candidate := range p.cfg.FollowPaths {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if abs == path {
			return true
		}
	}
	return false
}

// isAncestorOf reports whether dir sits under ancestor (or equals it).
func isAncestorOf(ancestor, dir string) bool {
	rel, err := filepath.Rel(ancestor, dir)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
