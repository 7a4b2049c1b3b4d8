package tree

import (
	"errors"
	"testing"

	"github.com/jacktea/ffs/pkg/format"
	"github.com/jacktea/ffs/pkg/munge"
	"github.com/jacktea/ffs/pkg/value"
)

func mustTree(t *testing.T, doc string, mutate func(cfg *Config)) *Tree {
	t.Helper()
	v, err := format.JSON.Decode([]byte(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	tr, err := New(v, cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return tr
}

func lookupID(t *testing.T, tr *Tree, parent uint64, name string) uint64 {
	t.Helper()
	attr, err := tr.Lookup(parent, name)
	if err != nil {
		t.Fatalf("lookup %q: %v", name, err)
	}
	return attr.ID
}

func readAll(t *testing.T, tr *Tree, id uint64) string {
	t.Helper()
	data, err := tr.Read(id, 0, 1<<20)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func encodeJSON(t *testing.T, tr *Tree) string {
	t.Helper()
	v, err := tr.Value()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	out, err := format.JSON.Encode(v, false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(out)
}

func TestScalarRootRefused(t *testing.T) {
	for _, doc := range []string{`false`, `null`, `"scalar"`, `42`} {
		v, err := format.JSON.Decode([]byte(doc))
		if err != nil {
			t.Fatalf("decode %q: %v", doc, err)
		}
		if _, err := New(v, DefaultConfig()); !errors.Is(err, ErrRootNotDirectory) {
			t.Fatalf("root %q should be refused, got %v", doc, err)
		}
	}
}

func TestMountedMapReadsScalars(t *testing.T) {
	tr := mustTree(t, `{"name":"Michael Greenberg","eyes":2,"human":true}`, nil)
	if got := readAll(t, tr, lookupID(t, tr, RootID, "name")); got != "Michael Greenberg\n" {
		t.Fatalf("name=%q", got)
	}
	if got := readAll(t, tr, lookupID(t, tr, RootID, "eyes")); got != "2\n" {
		t.Fatalf("eyes=%q", got)
	}
	if got := readAll(t, tr, lookupID(t, tr, RootID, "human")); got != "true\n" {
		t.Fatalf("human=%q", got)
	}
}

func TestLazyAndEagerAgree(t *testing.T) {
	doc := `{"a":{"b":[1,2,{"c":"deep"}]},"d":null}`
	lazy := mustTree(t, doc, nil)
	eager := mustTree(t, doc, func(cfg *Config) { cfg.Lazy = false })

	walk := func(tr *Tree) string { return encodeJSON(t, tr) }
	if walk(lazy) != walk(eager) {
		t.Fatalf("lazy %s != eager %s", walk(lazy), walk(eager))
	}

	// Lazy expansion happens on observation too.
	a := lookupID(t, lazy, RootID, "a")
	b := lookupID(t, lazy, a, "b")
	entries, err := lazy.ReadDir(b)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 list elements, got %v", entries)
	}
	if entries[0].Name != "0" || entries[2].Name != "2" {
		t.Fatalf("unexpected element names %v", entries)
	}
}

func TestListElementPadding(t *testing.T) {
	doc := `[0,1,2,3,4,5,6,7,8,9,10]`
	tr := mustTree(t, doc, nil)
	entries, err := tr.ReadDir(RootID)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if entries[0].Name != "00" || entries[10].Name != "10" {
		t.Fatalf("expected padded names, got %v and %v", entries[0].Name, entries[10].Name)
	}

	unpadded := mustTree(t, doc, func(cfg *Config) { cfg.PadElementNames = false })
	entries, err = unpadded.ReadDir(RootID)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if entries[0].Name != "0" || entries[10].Name != "10" {
		t.Fatalf("expected unpadded names, got %v and %v", entries[0].Name, entries[10].Name)
	}
}

func TestSessionScenarioWriteCreateMkdir(t *testing.T) {
	tr := mustTree(t, `{"name":"Michael Greenberg","eyes":2,"fingernails":10,"human":true}`, nil)

	name := lookupID(t, tr, RootID, "name")
	if _, err := tr.SetAttr(name, SetAttrChanges{Size: new(uint64)}); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if _, err := tr.Write(name, 0, []byte("Mikey Indiana\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	nose, err := tr.Create(RootID, "nose", 0o644)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tr.Write(nose.ID, 0, []byte("1\n")); err != nil {
		t.Fatalf("write nose: %v", err)
	}

	pockets, err := tr.Mkdir(RootID, "pockets", 0o755)
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, contents := range map[string]string{"pants": "keys", "shirt": "pen"} {
		attr, err := tr.Create(pockets.ID, name, 0o644)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := tr.Write(attr.ID, 0, []byte(contents+"\n")); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	got := encodeJSON(t, tr)
	want := `{"eyes":2,"fingernails":10,"human":true,"name":"Mikey Indiana","nose":1,"pockets":{"pants":"keys","shirt":"pen"}}`
	if got != want {
		t.Fatalf("serialized %s, want %s", got, want)
	}
	if !tr.Dirty() {
		t.Fatalf("session made changes; tree should be dirty")
	}
}

func TestListRetaggedNamed(t *testing.T) {
	tr := mustTree(t, `[1,2,"3",false]`, nil)
	if err := tr.SetXAttr(RootID, XattrType, []byte("named")); err != nil {
		t.Fatalf("setxattr: %v", err)
	}
	renames := map[string]string{"0": "loneliest_number", "1": "to_tango", "2": "three", "3": "not_true"}
	for old, new := range renames {
		if err := tr.Rename(RootID, old, RootID, new); err != nil {
			t.Fatalf("rename %s: %v", old, err)
		}
	}
	got := encodeJSON(t, tr)
	want := `{"loneliest_number":1,"not_true":false,"three":"3","to_tango":2}`
	if got != want {
		t.Fatalf("serialized %s, want %s", got, want)
	}
}

func TestNamedRetaggedListSortsChildren(t *testing.T) {
	tr := mustTree(t, `{}`, nil)
	for name, contents := range map[string]string{"a": "hi", "a1": "hello", "b": "bye"} {
		attr, err := tr.Create(RootID, name, 0o644)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := tr.Write(attr.ID, 0, []byte(contents)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := tr.SetXAttr(RootID, XattrType, []byte("list")); err != nil {
		t.Fatalf("setxattr: %v", err)
	}
	if got, want := encodeJSON(t, tr), `["hi","hello","bye"]`; got != want {
		t.Fatalf("serialized %s, want %s", got, want)
	}
}

func TestMungedKeysRestore(t *testing.T) {
	doc := `{".":"first","..":"second","dot":"third","dotdot":"fourth"}`
	tr := mustTree(t, doc, nil)
	entries, err := tr.ReadDir(RootID)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	want := []string{"_.", "_..", "dot", "dotdot"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("visible names %v, want %v", names, want)
		}
	}
	if got := encodeJSON(t, tr); got != doc {
		t.Fatalf("serialized %s, want %s", got, doc)
	}
}

func TestMungeFilterDropsKeys(t *testing.T) {
	doc := `{".":"first","keep":"me"}`
	tr := mustTree(t, doc, func(cfg *Config) { cfg.Munge = munge.Filter })
	if got, want := encodeJSON(t, tr), `{"keep":"me"}`; got != want {
		t.Fatalf("serialized %s, want %s", got, want)
	}
}

func TestUserRenameOverridesRestoration(t *testing.T) {
	tr := mustTree(t, `{".":"first"}`, nil)
	if err := tr.Rename(RootID, "_.", RootID, "dot"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got, want := encodeJSON(t, tr), `{"dot":"first"}`; got != want {
		t.Fatalf("serialized %s, want %s", got, want)
	}
}

func TestExactModeKeepsBytes(t *testing.T) {
	tr := mustTree(t, `{"a":"text"}`, func(cfg *Config) {
		cfg.Exact = true
		cfg.AddNewlines = false
	})
	a := lookupID(t, tr, RootID, "a")
	if _, err := tr.Write(a, 4, []byte("\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, want := encodeJSON(t, tr), `{"a":"text\n"}`; got != want {
		t.Fatalf("serialized %s, want %s", got, want)
	}
}

func TestMacOSMetadataFiltered(t *testing.T) {
	tr := mustTree(t, `{"a":1}`, nil)
	if _, err := tr.Create(RootID, "._a", 0o644); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got, want := encodeJSON(t, tr), `{"a":1}`; got != want {
		t.Fatalf("serialized %s, want %s", got, want)
	}
	keep := mustTree(t, `{"a":1}`, func(cfg *Config) { cfg.KeepMacOSXattr = true })
	if _, err := keep.Create(RootID, "._a", 0o644); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got, want := encodeJSON(t, keep), `{"._a":null,"a":1}`; got != want {
		t.Fatalf("serialized %s, want %s", got, want)
	}
}

func TestUntouchedMountSerializesIdentically(t *testing.T) {
	doc := `{"deep":{"flag":true,"list":[1,2,3]},"s":"x"}`
	tr := mustTree(t, doc, nil)
	if got := encodeJSON(t, tr); got != doc {
		t.Fatalf("untouched serialize %s, want %s", got, doc)
	}
	if tr.Dirty() {
		t.Fatalf("untouched tree should not be dirty")
	}
}

func TestDatetimeRoundTrip(t *testing.T) {
	// A fresh file is auto-typed, so a datetime payload classifies
	// itself on save.
	tr := mustTree(t, `{}`, nil)
	when, err := tr.Create(RootID, "when", 0o644)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tr.Write(when.ID, 0, []byte("2021-07-08T12:00:00Z\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, err := tr.Value()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	m := v.(*value.Map)
	got, _ := m.Get("when")
	if got.Kind() != value.KindDatetime {
		t.Fatalf("expected datetime, got %v", got.Kind())
	}
}
