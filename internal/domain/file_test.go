package domain

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestFileSubcommandWireForms(t *testing.T) {
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name string
		sub  FileSubcommand
		want string
	}{
		{"ls by name", FileSubcommand{Op: FileLs, Path: []byte("/tmp"), Sort: SortByName}, "ls\n" + b64("/tmp") + "\nn"},
		{"ls by date", FileSubcommand{Op: FileLs, Path: []byte("/tmp"), Sort: SortByDate}, "ls\n" + b64("/tmp") + "\nd"},
		{"fetch", FileSubcommand{Op: FileFetch, Path: []byte("/etc/hosts")}, "fetch\n" + b64("/etc/hosts")},
		{"stat", FileSubcommand{Op: FileStat, Path: []byte("/tmp/x")}, "stat\n" + b64("/tmp/x")},
		{"rm", FileSubcommand{Op: FileRm, Path: []byte("/tmp/x")}, "rm\n" + b64("/tmp/x") + "\n-"},
		{"rm recursive", FileSubcommand{Op: FileRm, Path: []byte("/tmp/d"), Recursive: true}, "rm\n" + b64("/tmp/d") + "\nr"},
		{"ln", FileSubcommand{Op: FileLn, Source: []byte("/a"), Path: []byte("/b")}, "ln\n" + b64("/a") + "\n" + b64("/b")},
		{"mv", FileSubcommand{Op: FileMv, Source: []byte("/a"), Path: []byte("/b")}, "mv\n" + b64("/a") + "\n" + b64("/b")},
		{"mkdir", FileSubcommand{Op: FileMkdir, Path: []byte("/tmp/new")}, "mkdir\n" + b64("/tmp/new")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.WireForm(); got != tt.want {
				t.Errorf("WireForm() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateChunksContent(t *testing.T) {
	content := make([]byte, 300)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	sub := FileSubcommand{Op: FileCreate, Path: []byte("/tmp/f"), Content: content}

	lines := strings.Split(sub.WireForm(), "\n")
	if lines[0] != "create" {
		t.Fatalf("first token = %q", lines[0])
	}

	chunks := lines[2:]
	for i, chunk := range chunks {
		if len(chunk) > createChunkSize {
			t.Fatalf("chunk %d exceeds %d bytes: %d", i, createChunkSize, len(chunk))
		}
	}
	final := chunks[len(chunks)-1]
	if len(final) >= createChunkSize {
		t.Fatalf("final chunk must be shorter than the width, got %d", len(final))
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.Join(chunks, ""))
	if err != nil {
		t.Fatalf("rejoined content is not base64: %v", err)
	}
	if string(decoded) != string(content) {
		t.Fatal("rejoined content does not round-trip")
	}
}

// Exact multiples of the chunk width must still end on a short line.
func TestSplitChunksFinalAlwaysShort(t *testing.T) {
	for _, size := range []int{79, 80, 160, 240} {
		s := strings.Repeat("A", size)
		out := splitChunks(s, 80)
		lines := strings.Split(out, "\n")
		if got := strings.Join(lines, ""); got != s {
			t.Fatalf("size %d: join mismatch", size)
		}
		if last := lines[len(lines)-1]; len(last) >= 80 {
			t.Errorf("size %d: final chunk %d bytes", size, len(last))
		}
	}
}
