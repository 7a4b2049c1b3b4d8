// Package tree holds the in-memory inode table a mount serves from: the
// bidirectional mapping between decoded documents and a POSIX directory
// tree, the filesystem operations against it, and the serializer that
// walks it back out at unmount.
package tree

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jacktea/ffs/pkg/munge"
	"github.com/jacktea/ffs/pkg/value"
)

// ErrRootNotDirectory is returned when the mounted document's root is a
// scalar. The message text is part of the CLI contract.
var ErrRootNotDirectory = errors.New("the root of the mounted filesystem must be a directory; try mounting a map or list")

// Config fixes the policies a tree is built and served with.
type Config struct {
	UID uint32
	GID uint32
	// FileMode and DirMode are permission bits for materialized inodes.
	FileMode uint32
	DirMode  uint32

	Munge munge.Policy
	// AddNewlines appends a trailing newline to scalar file payloads.
	AddNewlines bool
	// Exact disables the one-newline strip when files are saved.
	Exact bool
	// PadElementNames zero-pads list element filenames to equal width.
	PadElementNames bool
	ReadOnly        bool
	// Lazy defers materialization of directories until first access.
	Lazy           bool
	KeepMacOSXattr bool
	// NoXattr disables the extended-attribute surface; type tags still
	// drive serialization internally.
	NoXattr bool
}

// DefaultConfig mirrors the mount defaults: rw, lazy, padded list
// names, trailing newlines on scalars.
func DefaultConfig() Config {
	return Config{
		FileMode:        0o644,
		DirMode:         0o755,
		AddNewlines:     true,
		PadElementNames: true,
		Lazy:            true,
	}
}

// Tree is the inode table for one mount. Every operation takes the
// single table mutex for its whole duration; callbacks are short and
// the one-lock discipline keeps rename/rmdir atomicity trivial.
type Tree struct {
	mu     sync.Mutex
	cfg    Config
	inodes map[uint64]*Inode
	nextID uint64
	dirty  bool
}

// New builds a tree from a decoded document. The root must be a map or
// a list.
func New(root value.Value, cfg Config) (*Tree, error) {
	if root == nil || !value.IsDirectory(root) {
		return nil, ErrRootNotDirectory
	}
	t := &Tree{
		cfg:    cfg,
		inodes: make(map[uint64]*Inode),
		nextID: RootID,
	}
	now := time.Now()
	rootInode := t.newInode(Directory, RootID, now)
	rootInode.Mode = cfg.DirMode
	rootInode.Tag = value.TypOf(root)
	rootInode.pending = root
	if !cfg.Lazy {
		if err := t.expandAll(rootInode); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Config returns the tree's policies.
func (t *Tree) Config() Config { return t.cfg }

// Dirty reports whether any operation changed payload or structure
// since the build.
func (t *Tree) Dirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// newInode allocates an inode under the table lock. Ids are never
// reused within a session.
func (t *Tree) newInode(kind NodeKind, parent uint64, now time.Time) *Inode {
	id := t.nextID
	t.nextID++
	ino := &Inode{
		ID:     id,
		Kind:   kind,
		Parent: parent,
		UID:    t.cfg.UID,
		GID:    t.cfg.GID,
		Nlink:  1,
		Atime:  now,
		Mtime:  now,
		Ctime:  now,
		Crtime: now,
		Xattrs: make(map[string][]byte),
	}
	if kind == Directory {
		ino.Nlink = 2
	}
	t.inodes[id] = ino
	return ino
}

func (t *Tree) inode(id uint64) (*Inode, bool) {
	ino, ok := t.inodes[id]
	return ino, ok
}

// materialize expands one level of a deferred directory: each child
// value becomes an inode, containers keeping their own deferred source.
func (t *Tree) materialize(dir *Inode) error {
	if dir.expanded() {
		return nil
	}
	src := dir.pending
	dir.pending = nil
	dir.children = newChildSet()
	if src == nil {
		return nil
	}
	now := time.Now()
	switch v := src.(type) {
	case value.List:
		width := listNameWidth(len(v))
		for i, child := range v {
			var name string
			if t.cfg.PadElementNames {
				name = fmt.Sprintf("%0*d", width, i)
			} else {
				name = fmt.Sprintf("%d", i)
			}
			t.attachChild(dir, name, "", child, now)
		}
	case *value.Map:
		v.Range(func(key string, child value.Value) bool {
			name := key
			original := ""
			if !munge.ValidName(key) {
				if t.cfg.Munge == munge.Filter {
					return true
				}
				name = munge.Escape(key)
				for {
					if _, taken := dir.children.get(name); !taken {
						break
					}
					name += "_"
				}
				original = key
			}
			t.attachChild(dir, name, original, child, now)
			return true
		})
	default:
		return fmt.Errorf("materialize: inode %d is not a container", dir.ID)
	}
	return nil
}

func (t *Tree) attachChild(dir *Inode, name, original string, v value.Value, now time.Time) {
	var child *Inode
	if value.IsDirectory(v) {
		child = t.newInode(Directory, dir.ID, now)
		child.Mode = t.cfg.DirMode
		child.pending = v
		dir.Nlink++
	} else {
		child = t.newInode(File, dir.ID, now)
		child.Mode = t.cfg.FileMode
		child.Data = value.Render(v, t.cfg.AddNewlines)
	}
	child.Tag = value.TypOf(v)
	child.OriginalName = original
	dir.children.set(name, child.ID)
}

// expandAll forces eager materialization of the whole subtree.
func (t *Tree) expandAll(dir *Inode) error {
	if err := t.materialize(dir); err != nil {
		return err
	}
	for _, name := range dir.children.ordered() {
		id, _ := dir.children.get(name)
		child := t.inodes[id]
		if child.isDir() {
			if err := t.expandAll(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// listNameWidth is the zero-pad width for list element names: enough
// digits for the largest index.
func listNameWidth(n int) int {
	width := 1
	for limit := 10; limit < n; limit *= 10 {
		width++
	}
	return width
}

// InodeCount reports the number of live inodes, for statfs.
func (t *Tree) InodeCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint64(len(t.inodes))
}
