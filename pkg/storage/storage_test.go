package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrCodeEU/facedetect/pkg/recognition"
)

func testKnownFace(name string) KnownFace {
	var d recognition.Descriptor
	for i := range d {
		d[i] = float32(i) / 128
	}
	return KnownFace{
		Name:       name,
		Source:     "resources/" + name + ".png",
		SHA256:     "abc123",
		Descriptor: d,
		EncodedAt:  time.Now(),
	}
}

func TestNewFileStorage(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name       string
		dataDir    string
		encryption bool
	}{
		{"without encryption", filepath.Join(tmpDir, "test1"), false},
		{"with encryption", filepath.Join(tmpDir, "test2"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := NewFileStorage(tt.dataDir, tt.encryption)
			if err != nil {
				t.Fatalf("NewFileStorage() error = %v", err)
			}
			if fs == nil {
				t.Fatal("NewFileStorage returned nil")
			}

			if _, err := os.Stat(filepath.Join(tt.dataDir, "faces")); os.IsNotExist(err) {
				t.Error("faces directory was not created")
			}
		})
	}
}

func TestFileStorage_SaveAndLoad(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	known := testKnownFace("John")
	if err := fs.Save(known); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := fs.Load("John")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != "John" || loaded.Source != known.Source || loaded.SHA256 != known.SHA256 {
		t.Errorf("record mismatch: %+v", loaded)
	}
	if loaded.Descriptor != known.Descriptor {
		t.Error("descriptor not preserved")
	}
}

func TestFileStorage_SaveAndLoad_Encrypted(t *testing.T) {
	tmpDir := t.TempDir()
	fs, err := NewFileStorage(tmpDir, true)
	if err != nil {
		t.Fatalf("failed to create encrypted storage: %v", err)
	}

	known := testKnownFace("Jane")
	if err := fs.Save(known); err != nil {
		t.Fatalf("Save (encrypted) failed: %v", err)
	}

	loaded, err := fs.Load("Jane")
	if err != nil {
		t.Fatalf("Load (encrypted) failed: %v", err)
	}
	if loaded.Descriptor != known.Descriptor {
		t.Error("descriptor not preserved through encryption")
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "faces", "Jane.enc"))
	if err != nil {
		t.Fatalf("failed to read encrypted file: %v", err)
	}
	if len(data) > 0 && data[0] == '{' {
		t.Error("file does not appear to be encrypted")
	}
}

func TestFileStorage_TamperedCiphertext(t *testing.T) {
	tmpDir := t.TempDir()
	fs, err := NewFileStorage(tmpDir, true)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(tmpDir, "faces", "Eve.enc")
	if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Load("Eve"); !errors.Is(err, ErrEncryption) {
		t.Errorf("expected ErrEncryption, got %v", err)
	}
}

func TestFileStorage_Lookup(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}

	known := testKnownFace("John")
	if err := fs.Save(known); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		lookup  string
		sha     string
		wantErr error
	}{
		{"hit", "John", "abc123", nil},
		{"changed source", "John", "def456", ErrStale},
		{"missing", "Jane", "abc123", ErrNotFound},
		{"bad name", "../John", "abc123", ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := fs.Lookup(tt.lookup, tt.sha)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && d != known.Descriptor {
				t.Error("descriptor mismatch")
			}
		})
	}
}

func TestFileStorage_Delete(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}

	if err := fs.Save(testKnownFace("todelete")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Delete("todelete"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if _, err := fs.Load("todelete"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := fs.Delete("todelete"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestFileStorage_ListAndClear(t *testing.T) {
	tmpDir := t.TempDir()
	fs, err := NewFileStorage(tmpDir, false)
	if err != nil {
		t.Fatal(err)
	}

	names, err := fs.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected empty cache, got %v", names)
	}

	for _, name := range []string{"charlie", "alice", "bob"} {
		if err := fs.Save(testKnownFace(name)); err != nil {
			t.Fatalf("failed to save %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "faces", "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	names, err = fs.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"alice", "bob", "charlie"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected %v, got %v", want, names)
		}
	}

	removed, err := fs.Clear()
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "faces", "notes.txt")); err != nil {
		t.Error("Clear should leave foreign files alone")
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.png")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	sum, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if sum != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Errorf("unexpected hash %s", sum)
	}

	if _, err := HashFile(filepath.Join(t.TempDir(), "missing")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestDeriveKey_Stable(t *testing.T) {
	k1, err := deriveKey()
	if err != nil {
		t.Fatal(err)
	}
	k2, _ := deriveKey()
	if k1 != k2 {
		t.Error("key derivation should be deterministic")
	}
	if k1 == ([KeySize]byte{}) {
		t.Error("derived key is all zeros")
	}
}
