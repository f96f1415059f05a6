// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPIDFile_Acquire(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("creates PID file with correct content", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "fresh.pid")
		p := NewPIDFile(pidPath)
		defer p.Release()

		stale, err := p.Acquire(1234)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if stale != 0 {
			t.Errorf("stale = %d, want 0", stale)
		}
		if !p.Held() {
			t.Error("Held() = false after Acquire")
		}

		pid, err := p.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if pid != 1234 {
			t.Errorf("Read() = %d, want 1234", pid)
		}

		info, err := os.Stat(pidPath)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if mode := info.Mode() & os.ModePerm; mode != 0600 {
			t.Errorf("PID file mode = %04o, want 0600", mode)
		}
	})

	t.Run("replaces stale file", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "stale.pid")
		if err := os.WriteFile(pidPath, []byte("4242\n"), 0600); err != nil {
			t.Fatal(err)
		}

		p := NewPIDFile(pidPath)
		p.isLive = func(int) bool { return false }
		defer p.Release()

		stale, err := p.Acquire(1234)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if stale != 4242 {
			t.Errorf("stale = %d, want 4242", stale)
		}
		if pid, _ := p.Read(); pid != 1234 {
			t.Errorf("Read() = %d, want 1234", pid)
		}
	})

	t.Run("replaces garbage file", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "garbage.pid")
		if err := os.WriteFile(pidPath, []byte("not-a-pid"), 0600); err != nil {
			t.Fatal(err)
		}

		p := NewPIDFile(pidPath)
		defer p.Release()

		if _, err := p.Acquire(1234); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	})

	t.Run("refuses when owner is live", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "live.pid")
		owner := NewPIDFile(pidPath)
		if _, err := owner.Acquire(1111); err != nil {
			t.Fatal(err)
		}
		defer owner.Release()

		p := NewPIDFile(pidPath)
		p.isLive = func(pid int) bool { return pid == 1111 }

		_, err := p.Acquire(2222)
		if !errors.Is(err, ErrAlreadyRunning) {
			t.Errorf("Acquire() error = %v, want ErrAlreadyRunning", err)
		}
		if p.Held() {
			t.Error("second manager must not hold the file")
		}
	})

	t.Run("creates parent directory", func(t *testing.T) {
		deepPath := filepath.Join(tmpDir, "nested", "dir", "test.pid")
		p := NewPIDFile(deepPath)
		defer p.Release()

		if _, err := p.Acquire(1234); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		info, err := os.Stat(filepath.Dir(deepPath))
		if err != nil {
			t.Fatalf("parent directory not created: %v", err)
		}
		if mode := info.Mode() & os.ModePerm; mode != 0700 {
			t.Errorf("parent directory mode = %04o, want 0700", mode)
		}
	})

	t.Run("rejects world-writable directory", func(t *testing.T) {
		unsafeDir := filepath.Join(tmpDir, "unsafe")
		if err := os.Mkdir(unsafeDir, 0777); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(unsafeDir, 0777); err != nil {
			t.Fatal(err)
		}

		p := NewPIDFile(filepath.Join(unsafeDir, "x.pid"))
		_, err := p.Acquire(1234)
		if !errors.Is(err, ErrUnsafeDirectory) {
			t.Errorf("Acquire() error = %v, want ErrUnsafeDirectory", err)
		}
	})
}

func TestPIDFile_Release(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "release.pid")
	p := NewPIDFile(pidPath)

	if err := p.Release(); err != nil {
		t.Errorf("Release() before Acquire error = %v", err)
	}
	if _, err := p.Acquire(1234); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("PID file should be removed")
	}
	if err := p.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestReadPID(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    int
		wantErr error
	}{
		{"valid", "9999\n", 9999, nil},
		{"whitespace", "  1234  \n", 1234, nil},
		{"non-numeric", "not-a-number\n", 0, ErrInvalidPID},
		{"negative", "-123\n", 0, ErrInvalidPID},
		{"zero", "0\n", 0, ErrInvalidPID},
		{"empty", "", 0, ErrInvalidPID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.name+".pid")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			pid, err := ReadPID(path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ReadPID() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || pid != tt.want {
				t.Errorf("ReadPID() = %d, %v; want %d", pid, err, tt.want)
			}
		})
	}

	if _, err := ReadPID(filepath.Join(tmpDir, "missing.pid")); !os.IsNotExist(err) {
		t.Errorf("ReadPID(missing) error = %v, want not-exist", err)
	}
}
