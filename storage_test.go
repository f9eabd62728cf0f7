package visionkit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvVarName(t *testing.T) {
	tests := []struct {
		appName string
		want    string
	}{
		{"visionkit", "VISIONKIT_MODELS_DIR"},
		{"myapp", "MYAPP_MODELS_DIR"},
		{"MyApp", "MYAPP_MODELS_DIR"},
		{"my-app", "MY-APP_MODELS_DIR"},
	}

	for _, tt := range tests {
		t.Run(tt.appName, func(t *testing.T) {
			got := envVarName(tt.appName)
			if got != tt.want {
				t.Errorf("envVarName(%q) = %q, want %q", tt.appName, got, tt.want)
			}
		})
	}
}

func TestNewStorageWithDataDir(t *testing.T) {
	tmpDir := t.TempDir()
	scratch := filepath.Join(t.TempDir(), "scratch")

	cfg := Config{
		AppName:    "testapp",
		DataDir:    tmpDir,
		ScratchDir: scratch,
	}

	s, err := newStorage(cfg)
	if err != nil {
		t.Fatalf("newStorage() error = %v", err)
	}

	if s.baseDir != tmpDir {
		t.Errorf("baseDir = %q, want %q", s.baseDir, tmpDir)
	}
	if s.scratchDir != scratch {
		t.Errorf("scratchDir = %q, want %q", s.scratchDir, scratch)
	}
	if !exists(scratch) {
		t.Error("scratch directory should be created")
	}
}

func TestNewStorageWithEnvVar(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(envVarName("testenvapp"), tmpDir)

	cfg := Config{
		AppName:    "testenvapp",
		DataDir:    "/should/be/ignored",
		ScratchDir: t.TempDir(),
	}

	s, err := newStorage(cfg)
	if err != nil {
		t.Fatalf("newStorage() error = %v", err)
	}

	if s.baseDir != tmpDir {
		t.Errorf("baseDir = %q, want %q (env var should take priority)", s.baseDir, tmpDir)
	}
}

func TestAtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "nested", "test.txt")
	testData := []byte("hello world")

	if err := atomicWriteFile(testFile, testData); err != nil {
		t.Fatalf("atomicWriteFile() error = %v", err)
	}

	got, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != string(testData) {
		t.Errorf("file content = %q, want %q", string(got), string(testData))
	}

	// Verify temp file doesn't exist (atomic write should clean up)
	if _, err := os.Stat(testFile + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should not exist after atomic write")
	}
}

func TestArtifactPath(t *testing.T) {
	s := &storage{baseDir: "/data/models"}

	got := s.artifactPath(ModelIdentity{Name: "widgets", Version: 3})
	want := filepath.Join("/data/models", "widgets-3.mlmodelc")

	if got != want {
		t.Errorf("artifactPath() = %q, want %q", got, want)
	}
}

func TestResolveArtifact(t *testing.T) {
	base := t.TempDir()
	s := &storage{baseDir: base}

	tests := []struct {
		name    string
		rel     string
		want    string
		wantErr bool
	}{
		{"relative name", "widgets-3.mlmodelc", filepath.Join(base, "widgets-3.mlmodelc"), false},
		{"empty", "", "", true},
		{"absolute", filepath.Join(base, "x.mlmodelc"), "", true},
		{"traversal", "../outside.mlmodelc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.resolveArtifact(tt.rel)
			if tt.wantErr {
				if !errors.Is(err, ErrStorageError) {
					t.Errorf("resolveArtifact(%q) error = %v, want ErrStorageError", tt.rel, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveArtifact(%q) error = %v", tt.rel, err)
			}
			if got != tt.want {
				t.Errorf("resolveArtifact(%q) = %q, want %q", tt.rel, got, tt.want)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	s := &storage{baseDir: tmpDir}

	newDir := filepath.Join(tmpDir, "new", "nested", "dir")
	if err := s.ensureDir(newDir); err != nil {
		t.Fatalf("ensureDir() error = %v", err)
	}

	info, err := os.Stat(newDir)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.IsDir() {
		t.Error("ensureDir() should create a directory")
	}
}

func TestNewScratchDirIsUnique(t *testing.T) {
	s := &storage{scratchDir: t.TempDir()}

	a, err := s.newScratchDir("unpack")
	if err != nil {
		t.Fatalf("newScratchDir() error = %v", err)
	}
	b, err := s.newScratchDir("unpack")
	if err != nil {
		t.Fatalf("newScratchDir() error = %v", err)
	}

	if a == b {
		t.Errorf("newScratchDir() returned %q twice", a)
	}
	if filepath.Dir(a) != s.scratchDir {
		t.Errorf("scratch dir %q not under %q", a, s.scratchDir)
	}
}

func TestRemoveArtifact(t *testing.T) {
	s := &storage{baseDir: t.TempDir()}
	id := ModelIdentity{Name: "widgets", Version: 3}

	path := s.artifactPath(id)
	if err := os.MkdirAll(filepath.Join(path, "weights"), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if err := s.removeArtifact(id); err != nil {
		t.Fatalf("removeArtifact() error = %v", err)
	}
	if exists(path) {
		t.Error("artifact should not exist after removeArtifact()")
	}

	// Removing again is not an error
	if err := s.removeArtifact(id); err != nil {
		t.Errorf("second removeArtifact() error = %v", err)
	}
}

func TestPruneScratch(t *testing.T) {
	s := &storage{scratchDir: t.TempDir()}

	old := filepath.Join(s.scratchDir, "acquire-old")
	fresh := filepath.Join(s.scratchDir, "acquire-fresh")
	for _, dir := range []string{old, fresh} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	n, err := s.pruneScratch(24 * time.Hour)
	if err != nil {
		t.Fatalf("pruneScratch() error = %v", err)
	}
	if n != 1 {
		t.Errorf("pruneScratch() removed %d entries, want 1", n)
	}
	if exists(old) {
		t.Error("old scratch entry should be removed")
	}
	if !exists(fresh) {
		t.Error("fresh scratch entry should be kept")
	}
}

func TestPruneScratchMissingDir(t *testing.T) {
	s := &storage{scratchDir: filepath.Join(t.TempDir(), "missing")}

	n, err := s.pruneScratch(time.Hour)
	if err != nil || n != 0 {
		t.Errorf("pruneScratch() = %d, %v; want 0, nil", n, err)
	}
}

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 5), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := diskUsage(dir)
	if err != nil {
		t.Fatalf("diskUsage() error = %v", err)
	}
	if n != 15 {
		t.Errorf("diskUsage() = %d, want 15", n)
	}
}

func TestDefaultDocumentsDir(t *testing.T) {
	dir, err := defaultDocumentsDir("testapp")
	if err != nil {
		t.Fatalf("defaultDocumentsDir() error = %v", err)
	}

	if !filepath.IsAbs(dir) {
		t.Errorf("defaultDocumentsDir() should return absolute path, got %q", dir)
	}
	if filepath.Base(dir) != "models" {
		t.Errorf("defaultDocumentsDir() = %q, want a models directory", dir)
	}
}
