package mount

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jacktea/ffs/pkg/format"
	"github.com/jacktea/ffs/pkg/tree"
)

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.json")
	output := filepath.Join(dir, "out.json")
	doc := `{"eyes":2,"human":true}`
	if err := os.WriteFile(input, []byte(doc), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	cfg := Config{
		Input:  input,
		Output: output,
		Source: format.JSON,
		Target: format.JSON,
		Tree:   tree.DefaultConfig(),
	}
	tr, err := Load(cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Save(tr, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != doc {
		t.Fatalf("output %s, want %s", got, doc)
	}
}

func TestLoadScalarRootFails(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.json")
	if err := os.WriteFile(input, []byte(`false`), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	cfg := Config{Input: input, Source: format.JSON, Tree: tree.DefaultConfig()}
	if _, err := Load(cfg); err == nil {
		t.Fatalf("scalar root should fail to load")
	} else if want := "must be a directory"; !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q should mention %q", err, want)
	}
}

func TestLoadNewStartsEmpty(t *testing.T) {
	cfg := Config{New: true, Source: format.JSON, Target: format.JSON, Tree: tree.DefaultConfig()}
	tr, err := Load(cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	entries, err := tr.ReadDir(tree.RootID)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("fresh mount should be empty, got %v", entries)
	}
}

func TestFormatConversion(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.json")
	output := filepath.Join(dir, "out.yaml")
	if err := os.WriteFile(input, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	cfg := Config{
		Input:  input,
		Output: output,
		Source: format.JSON,
		Target: format.YAML,
		Tree:   tree.DefaultConfig(),
	}
	tr, err := Load(cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Save(tr, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "a: 1\n" {
		t.Fatalf("yaml output %q", got)
	}
}

func TestReadonlyMountStillConverts(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.json")
	output := filepath.Join(dir, "out.yaml")
	if err := os.WriteFile(input, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	treeCfg := tree.DefaultConfig()
	treeCfg.ReadOnly = true
	cfg := Config{
		Input:  input,
		Output: output,
		Source: format.JSON,
		Target: format.YAML,
		Tree:   treeCfg,
	}
	tr, err := Load(cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Save(tr, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "a: 1\n" {
		t.Fatalf("readonly conversion gave %q", got)
	}
}

func TestFailedEncodeLeavesOutputUntouched(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.json")
	output := filepath.Join(dir, "out.toml")
	if err := os.WriteFile(input, []byte(`{"bad":null}`), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if err := os.WriteFile(output, []byte("previous = true\n"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}
	cfg := Config{
		Input:  input,
		Output: output,
		Source: format.JSON,
		Target: format.TOML,
		Tree:   tree.DefaultConfig(),
	}
	tr, err := Load(cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Save(tr, cfg); err == nil {
		t.Fatalf("TOML cannot encode null; save should fail")
	}
	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "previous = true\n" {
		t.Fatalf("existing output was clobbered: %q", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestInPlaceWritesOverInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "data.json")
	if err := os.WriteFile(input, []byte(`{"n":1}`), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	cfg := Config{
		Input:   input,
		InPlace: true,
		Source:  format.JSON,
		Target:  format.JSON,
		Tree:    tree.DefaultConfig(),
	}
	tr, err := Load(cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	n, err := tr.Create(tree.RootID, "m", 0o644)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tr.Write(n.ID, 0, []byte("2\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Save(tr, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := os.ReadFile(input)
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	if string(got) != `{"m":2,"n":1}` {
		t.Fatalf("in-place result %s", got)
	}
}

func TestNoOutputSkipsWriting(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.json")
	output := filepath.Join(dir, "out.json")
	if err := os.WriteFile(input, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	cfg := Config{
		Input:    input,
		Output:   output,
		NoOutput: true,
		Source:   format.JSON,
		Target:   format.JSON,
		Tree:     tree.DefaultConfig(),
	}
	tr, err := Load(cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Save(tr, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Fatalf("output should not exist")
	}
}
