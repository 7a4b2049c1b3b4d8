package tree

import (
	"sort"
	"time"

	"github.com/jacktea/ffs/pkg/value"
	"github.com/jacktea/ffs/pkg/xerrors"
)

// GetXAttr reads an extended attribute. user.type reflects the inode's
// type tag.
func (t *Tree) GetXAttr(id uint64, name string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.NoXattr {
		return nil, xerrors.E(xerrors.KindNotSupported, "getxattr", "")
	}
	ino, ok := t.inode(id)
	if !ok {
		return nil, xerrors.E(xerrors.KindNotFound, "getxattr", "")
	}
	if name == XattrType {
		return []byte(ino.Tag.String()), nil
	}
	data, ok := ino.Xattrs[name]
	if !ok {
		return nil, xerrors.E(xerrors.KindNoAttr, "getxattr", name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// SetXAttr stores an extended attribute. Setting user.type retags the
// inode; unknown variants, or variants that do not fit the inode's
// kind, are invalid.
func (t *Tree) SetXAttr(id uint64, name string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.NoXattr {
		return xerrors.E(xerrors.KindNotSupported, "setxattr", "")
	}
	ino, ok := t.inode(id)
	if !ok {
		return xerrors.E(xerrors.KindNotFound, "setxattr", "")
	}
	if t.cfg.ReadOnly {
		return xerrors.E(xerrors.KindReadOnly, "setxattr", "")
	}
	if name == XattrType {
		typ, ok := value.ParseTyp(string(data))
		if !ok || !typ.ValidFor(ino.isDir()) {
			return xerrors.E(xerrors.KindInvalid, "setxattr", name)
		}
		ino.Tag = typ
	} else {
		ino.Xattrs[name] = append([]byte(nil), data...)
	}
	now := time.Now()
	ino.Ctime = now
	ino.Mtime = now
	ino.Dirty = true
	t.dirty = true
	return nil
}

// ListXAttr lists attribute names, user.type first.
func (t *Tree) ListXAttr(id uint64) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.NoXattr {
		return nil, xerrors.E(xerrors.KindNotSupported, "listxattr", "")
	}
	ino, ok := t.inode(id)
	if !ok {
		return nil, xerrors.E(xerrors.KindNotFound, "listxattr", "")
	}
	names := make([]string, 0, len(ino.Xattrs)+1)
	names = append(names, XattrType)
	extra := make([]string, 0, len(ino.Xattrs))
	for name := range ino.Xattrs {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	return append(names, extra...), nil
}

// RemoveXAttr drops an attribute. Removing user.type reverts a file to
// auto-typing on save; directories keep their structural tag.
func (t *Tree) RemoveXAttr(id uint64, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.NoXattr {
		return xerrors.E(xerrors.KindNotSupported, "removexattr", "")
	}
	ino, ok := t.inode(id)
	if !ok {
		return xerrors.E(xerrors.KindNotFound, "removexattr", "")
	}
	if t.cfg.ReadOnly {
		return xerrors.E(xerrors.KindReadOnly, "removexattr", "")
	}
	if name == XattrType {
		if !ino.isDir() {
			ino.Tag = value.TypAuto
		}
	} else {
		if _, ok := ino.Xattrs[name]; !ok {
			return xerrors.E(xerrors.KindNoAttr, "removexattr", name)
		}
		delete(ino.Xattrs, name)
	}
	ino.Ctime = time.Now()
	t.dirty = true
	return nil
}
