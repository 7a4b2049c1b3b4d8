package tree

import (
	"time"

	"github.com/jacktea/ffs/pkg/munge"
	"github.com/jacktea/ffs/pkg/value"
	"github.com/jacktea/ffs/pkg/xerrors"
)

// The dispatcher: every POSIX callback the FUSE layer needs, expressed
// against inode ids. Each operation holds the table lock for its whole
// duration, so lookup-then-mutate sequences observe a consistent tree.

// Lookup resolves name under parent.
func (t *Tree) Lookup(parent uint64, name string) (Attr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dir, err := t.expandedDir(parent, "lookup")
	if err != nil {
		return Attr{}, err
	}
	id, ok := dir.children.get(name)
	if !ok {
		return Attr{}, xerrors.E(xerrors.KindNotFound, "lookup", name)
	}
	child := t.inodes[id]
	if child.isDir() {
		if err := t.materialize(child); err != nil {
			return Attr{}, xerrors.Wrap(xerrors.KindInternal, "lookup", name, err)
		}
	}
	return child.attr(), nil
}

// GetAttr returns the attributes of an inode. A directory is expanded
// one level first so its nlink counts its subdirectories.
func (t *Tree) GetAttr(id uint64) (Attr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ino, ok := t.inode(id)
	if !ok {
		return Attr{}, xerrors.E(xerrors.KindNotFound, "getattr", "")
	}
	if ino.isDir() {
		if err := t.materialize(ino); err != nil {
			return Attr{}, xerrors.Wrap(xerrors.KindInternal, "getattr", "", err)
		}
	}
	return ino.attr(), nil
}

// SetAttrChanges carries the optional fields of a setattr request.
type SetAttrChanges struct {
	Size  *uint64
	Mode  *uint32
	UID   *uint32
	GID   *uint32
	Atime *time.Time
	Mtime *time.Time
}

// SetAttr applies attribute changes. Ownership changes are accepted
// only when they match the mount owner, the usual single-user FUSE
// semantics.
func (t *Tree) SetAttr(id uint64, ch SetAttrChanges) (Attr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ino, ok := t.inode(id)
	if !ok {
		return Attr{}, xerrors.E(xerrors.KindNotFound, "setattr", "")
	}
	if t.cfg.ReadOnly {
		return Attr{}, xerrors.E(xerrors.KindReadOnly, "setattr", "")
	}
	if ch.UID != nil && *ch.UID != t.cfg.UID {
		return Attr{}, xerrors.E(xerrors.KindPermission, "setattr", "")
	}
	if ch.GID != nil && *ch.GID != t.cfg.GID {
		return Attr{}, xerrors.E(xerrors.KindPermission, "setattr", "")
	}
	now := time.Now()
	if ch.Size != nil {
		if ino.isDir() {
			return Attr{}, xerrors.E(xerrors.KindIsDirectory, "truncate", "")
		}
		size := int(*ch.Size)
		switch {
		case size < len(ino.Data):
			ino.Data = ino.Data[:size]
		case size > len(ino.Data):
			ino.Data = append(ino.Data, make([]byte, size-len(ino.Data))...)
		}
		ino.Dirty = true
		ino.Mtime = now
		t.dirty = true
	}
	if ch.Mode != nil {
		ino.Mode = *ch.Mode & 0o7777
	}
	if ch.Atime != nil {
		ino.Atime = *ch.Atime
	}
	if ch.Mtime != nil {
		ino.Mtime = *ch.Mtime
	}
	ino.Ctime = now
	return ino.attr(), nil
}

// Read returns up to size bytes at off. Reads beyond EOF are empty.
func (t *Tree) Read(id uint64, off int64, size int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ino, ok := t.inode(id)
	if !ok {
		return nil, xerrors.E(xerrors.KindNotFound, "read", "")
	}
	if ino.isDir() {
		return nil, xerrors.E(xerrors.KindIsDirectory, "read", "")
	}
	ino.Atime = time.Now()
	if off >= int64(len(ino.Data)) {
		return nil, nil
	}
	end := off + int64(size)
	if end > int64(len(ino.Data)) {
		end = int64(len(ino.Data))
	}
	out := make([]byte, end-off)
	copy(out, ino.Data[off:end])
	return out, nil
}

// Write stores data at off, zero-extending as needed.
func (t *Tree) Write(id uint64, off int64, data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ino, ok := t.inode(id)
	if !ok {
		return 0, xerrors.E(xerrors.KindNotFound, "write", "")
	}
	if ino.isDir() {
		return 0, xerrors.E(xerrors.KindIsDirectory, "write", "")
	}
	if t.cfg.ReadOnly {
		return 0, xerrors.E(xerrors.KindReadOnly, "write", "")
	}
	end := off + int64(len(data))
	if end > int64(len(ino.Data)) {
		grown := make([]byte, end)
		copy(grown, ino.Data)
		ino.Data = grown
	}
	copy(ino.Data[off:end], data)
	now := time.Now()
	ino.Dirty = true
	ino.Mtime = now
	ino.Ctime = now
	t.dirty = true
	return len(data), nil
}

// Create allocates a new file under parent. The type tag starts at
// auto, so the payload classifies itself at save time.
func (t *Tree) Create(parent uint64, name string, mode uint32) (Attr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dir, err := t.mutableDir(parent, "create")
	if err != nil {
		return Attr{}, err
	}
	if _, ok := dir.children.get(name); ok {
		return Attr{}, xerrors.E(xerrors.KindExists, "create", name)
	}
	now := time.Now()
	child := t.newInode(File, parent, now)
	child.Mode = mode & 0o7777
	child.Tag = value.TypAuto
	child.Dirty = true
	dir.children.set(name, child.ID)
	dir.Mtime = now
	dir.Ctime = now
	t.dirty = true
	return child.attr(), nil
}

// Mkdir allocates a new named directory under parent.
func (t *Tree) Mkdir(parent uint64, name string, mode uint32) (Attr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dir, err := t.mutableDir(parent, "mkdir")
	if err != nil {
		return Attr{}, err
	}
	if _, ok := dir.children.get(name); ok {
		return Attr{}, xerrors.E(xerrors.KindExists, "mkdir", name)
	}
	now := time.Now()
	child := t.newInode(Directory, parent, now)
	child.Mode = mode & 0o7777
	child.Tag = value.TypNamed
	child.children = newChildSet()
	dir.children.set(name, child.ID)
	dir.Nlink++
	dir.Mtime = now
	dir.Ctime = now
	t.dirty = true
	return child.attr(), nil
}

// Unlink removes a file child.
func (t *Tree) Unlink(parent uint64, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	dir, err := t.mutableDir(parent, "unlink")
	if err != nil {
		return err
	}
	id, ok := dir.children.get(name)
	if !ok {
		return xerrors.E(xerrors.KindNotFound, "unlink", name)
	}
	child := t.inodes[id]
	if child.isDir() {
		return xerrors.E(xerrors.KindIsDirectory, "unlink", name)
	}
	dir.children.delete(name)
	delete(t.inodes, id)
	now := time.Now()
	dir.Mtime = now
	dir.Ctime = now
	t.dirty = true
	return nil
}

// Rmdir removes an empty directory child.
func (t *Tree) Rmdir(parent uint64, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	dir, err := t.mutableDir(parent, "rmdir")
	if err != nil {
		return err
	}
	id, ok := dir.children.get(name)
	if !ok {
		return xerrors.E(xerrors.KindNotFound, "rmdir", name)
	}
	child := t.inodes[id]
	if !child.isDir() {
		return xerrors.E(xerrors.KindNotDirectory, "rmdir", name)
	}
	if err := t.materialize(child); err != nil {
		return xerrors.Wrap(xerrors.KindInternal, "rmdir", name, err)
	}
	if child.children.len() > 0 {
		return xerrors.E(xerrors.KindNotEmpty, "rmdir", name)
	}
	dir.children.delete(name)
	delete(t.inodes, id)
	dir.Nlink--
	now := time.Now()
	dir.Mtime = now
	dir.Ctime = now
	t.dirty = true
	return nil
}

// Rename moves an inode between directory entries. Existing file
// targets are overwritten; non-empty directory targets refuse. A
// user-initiated rename clears the restoration name when the new
// filename no longer matches the munged form of the original key.
func (t *Tree) Rename(oldParent uint64, oldName string, newParent uint64, newName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	src, err := t.mutableDir(oldParent, "rename")
	if err != nil {
		return err
	}
	dst, err := t.mutableDir(newParent, "rename")
	if err != nil {
		return err
	}
	id, ok := src.children.get(oldName)
	if !ok {
		return xerrors.E(xerrors.KindNotFound, "rename", oldName)
	}
	moving := t.inodes[id]

	// Refuse to move a directory into its own subtree.
	if moving.isDir() {
		for cursor := newParent; cursor != RootID; {
			if cursor == id {
				return xerrors.E(xerrors.KindInvalid, "rename", newName)
			}
			parent, ok := t.inode(cursor)
			if !ok {
				break
			}
			cursor = parent.Parent
		}
	}

	if targetID, exists := dst.children.get(newName); exists && targetID != id {
		target := t.inodes[targetID]
		switch {
		case target.isDir() && !moving.isDir():
			return xerrors.E(xerrors.KindIsDirectory, "rename", newName)
		case !target.isDir() && moving.isDir():
			return xerrors.E(xerrors.KindNotDirectory, "rename", newName)
		case target.isDir():
			if err := t.materialize(target); err != nil {
				return xerrors.Wrap(xerrors.KindInternal, "rename", newName, err)
			}
			if target.children.len() > 0 {
				return xerrors.E(xerrors.KindNotEmpty, "rename", newName)
			}
			dst.children.delete(newName)
			delete(t.inodes, targetID)
			dst.Nlink--
		default:
			dst.children.delete(newName)
			delete(t.inodes, targetID)
		}
	}

	src.children.delete(oldName)
	dst.children.set(newName, id)
	moving.Parent = newParent
	if moving.isDir() && oldParent != newParent {
		src.Nlink--
		dst.Nlink++
	}
	if moving.OriginalName != "" && munge.Escape(moving.OriginalName) != newName {
		moving.OriginalName = ""
	}
	now := time.Now()
	src.Mtime = now
	src.Ctime = now
	dst.Mtime = now
	dst.Ctime = now
	moving.Ctime = now
	t.dirty = true
	return nil
}

// ReadDir lists children in stored order.
func (t *Tree) ReadDir(id uint64) ([]DirEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dir, err := t.expandedDir(id, "readdir")
	if err != nil {
		return nil, err
	}
	entries := make([]DirEntry, 0, dir.children.len())
	for _, name := range dir.children.ordered() {
		childID, _ := dir.children.get(name)
		entries = append(entries, DirEntry{
			Name: name,
			ID:   childID,
			Dir:  t.inodes[childID].isDir(),
		})
	}
	dir.Atime = time.Now()
	return entries, nil
}

// Fsync validates the inode; payloads only reach the output at unmount.
func (t *Tree) Fsync(id uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inode(id); !ok {
		return xerrors.E(xerrors.KindNotFound, "fsync", "")
	}
	return nil
}

// expandedDir fetches a directory inode, materializing it first.
func (t *Tree) expandedDir(id uint64, op string) (*Inode, error) {
	ino, ok := t.inode(id)
	if !ok {
		return nil, xerrors.E(xerrors.KindNotFound, op, "")
	}
	if !ino.isDir() {
		return nil, xerrors.E(xerrors.KindNotDirectory, op, "")
	}
	if err := t.materialize(ino); err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, op, "", err)
	}
	return ino, nil
}

// mutableDir is expandedDir plus the read-only mount check.
func (t *Tree) mutableDir(id uint64, op string) (*Inode, error) {
	if t.cfg.ReadOnly {
		return nil, xerrors.E(xerrors.KindReadOnly, op, "")
	}
	return t.expandedDir(id, op)
}
