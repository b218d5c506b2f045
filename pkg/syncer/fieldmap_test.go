package syncer

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadFieldMapDefaults(t *testing.T) {
	got, err := LoadFieldMap("")
	if err != nil {
		t.Fatalf("LoadFieldMap: %v", err)
	}
	if !reflect.DeepEqual(got, DefaultFieldMap()) {
		t.Error("empty path should return the defaults unchanged")
	}
	if got.ID[0] != "id_posisi" {
		t.Errorf("ID candidates = %v", got.ID)
	}
}

func TestLoadFieldMapOverridesMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fields.yaml")
	content := []byte("id:\n  - kode_posisi\ntitle:\n  - nama_posisi\n  - posisi\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadFieldMap(path)
	if err != nil {
		t.Fatalf("LoadFieldMap: %v", err)
	}
	if !reflect.DeepEqual(got.ID, []string{"kode_posisi"}) {
		t.Errorf("ID = %v, want override", got.ID)
	}
	if !reflect.DeepEqual(got.Title, []string{"nama_posisi", "posisi"}) {
		t.Errorf("Title = %v, want override", got.Title)
	}
	if !reflect.DeepEqual(got.Levels, DefaultFieldMap().Levels) {
		t.Errorf("Levels = %v, want defaults for fields the file omits", got.Levels)
	}
}

func TestLoadFieldMapMissingFileFallsBack(t *testing.T) {
	got, err := LoadFieldMap(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Error("expected error for missing file")
	}
	if !reflect.DeepEqual(got, DefaultFieldMap()) {
		t.Error("missing file should still return usable defaults")
	}
}
