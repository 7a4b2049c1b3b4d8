package tree

import (
	"sort"
	"strings"

	"github.com/jacktea/ffs/pkg/munge"
	"github.com/jacktea/ffs/pkg/value"
)

// Value walks the tree back into the value model. Directories tagged
// list discard child names and order elements by byte-wise sorted
// filename; named directories keep stored order and restore munged
// keys. Unexpanded subtrees serialize to their original source value,
// except under the filter munge policy, where they are expanded first
// so that filtered keys stay dropped.
func (t *Tree) Value() (value.Value, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.valueOf(t.inodes[RootID])
}

func (t *Tree) valueOf(ino *Inode) (value.Value, error) {
	if !ino.isDir() {
		data := ino.Data
		if !t.cfg.Exact && len(data) > 0 && data[len(data)-1] == '\n' {
			data = data[:len(data)-1]
		}
		return value.FromTyped(ino.Tag, data), nil
	}
	if !ino.expanded() {
		if t.cfg.Munge != munge.Filter {
			return ino.pending, nil
		}
		if err := t.materialize(ino); err != nil {
			return nil, err
		}
	}
	if ino.Tag == value.TypList {
		names := append([]string(nil), ino.children.ordered()...)
		sort.Strings(names)
		list := make(value.List, 0, len(names))
		for _, name := range names {
			if t.ignoredOnSave(name) {
				continue
			}
			id, _ := ino.children.get(name)
			child, err := t.valueOf(t.inodes[id])
			if err != nil {
				return nil, err
			}
			list = append(list, child)
		}
		return list, nil
	}
	m := value.NewMap()
	for _, name := range ino.children.ordered() {
		if t.ignoredOnSave(name) {
			continue
		}
		id, _ := ino.children.get(name)
		childInode := t.inodes[id]
		child, err := t.valueOf(childInode)
		if err != nil {
			return nil, err
		}
		// Rename clears OriginalName as soon as the filename stops
		// matching the munged form, so a surviving restoration name is
		// authoritative here (collision-suffixed names included).
		key := name
		if childInode.OriginalName != "" {
			key = childInode.OriginalName
		}
		m.Set(key, child)
	}
	return m, nil
}

// ignoredOnSave filters macOS metadata companions unless the mount was
// asked to keep them.
func (t *Tree) ignoredOnSave(name string) bool {
	return !t.cfg.KeepMacOSXattr && strings.HasPrefix(name, "._")
}
