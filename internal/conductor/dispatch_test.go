package conductor

import (
	"strings"
	"testing"

	"github.com/coxswain-dev/coxswain/internal/domain"
)

// Chunking law: stripping markers and concatenating restores the
// original line, for any content.
func TestChunkLineRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"short",
		strings.Repeat("x", chunkLimit),
		strings.Repeat("x", chunkLimit+1),
		strings.Repeat("abc", 200),
		strings.Repeat("y", chunkLimit*3),
	}

	for _, in := range inputs {
		for _, marker := range []string{"", framerContinuation} {
			chunks := chunkLine(in, chunkLimit, marker)
			var joined strings.Builder
			for i, chunk := range chunks {
				if i < len(chunks)-1 {
					if !strings.HasSuffix(chunk, marker) {
						t.Fatalf("non-final chunk missing marker %q: %q", marker, chunk)
					}
					chunk = strings.TrimSuffix(chunk, marker)
					if len(chunk) > chunkLimit {
						t.Fatalf("chunk content exceeds limit: %d", len(chunk))
					}
				}
				joined.WriteString(chunk)
			}
			if joined.String() != in {
				t.Fatalf("marker %q: join(chunks(s)) != s for len %d", marker, len(in))
			}
		}
	}
}

func TestEncodeRecordTrailingNewline(t *testing.T) {
	got := encodeRecord(domain.Command{Kind: domain.CmdGetShell})
	if got != "getshell\n" {
		t.Fatalf("encodeRecord = %q", got)
	}
}

// Long framer record lines carry the backslash continuation; plain
// records split bare.
func TestEncodeRecordContinuationMarkers(t *testing.T) {
	long := strings.Repeat("a", chunkLimit+10)

	framerRec := encodeRecord(domain.Command{Kind: domain.CmdFramerRun, Arg: long})
	lines := strings.Split(strings.TrimSuffix(framerRec, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("framer record lines = %d, want run + 2 chunks", len(lines))
	}
	if lines[0] != "run" {
		t.Fatalf("first line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], framerContinuation) {
		t.Fatal("framer continuation chunk must end with a backslash")
	}
	if strings.HasSuffix(lines[2], framerContinuation) {
		t.Fatal("final chunk must not carry the marker")
	}
	rejoined := strings.TrimSuffix(lines[1], framerContinuation) + lines[2]
	if rejoined != long {
		t.Fatal("framer chunks do not reassemble")
	}

	plainRec := encodeRecord(domain.Command{Kind: domain.CmdShell, Arg: long})
	plainLines := strings.Split(strings.TrimSuffix(plainRec, "\n"), "\n")
	if len(plainLines) != 2 {
		t.Fatalf("plain record lines = %d, want 2", len(plainLines))
	}
	if strings.HasSuffix(plainLines[0], framerContinuation) {
		t.Fatal("plain records chunk without markers")
	}
	if plainLines[0]+plainLines[1] != "shell "+long {
		t.Fatal("plain chunks do not reassemble")
	}
}

// With no transport at all, sends drain immediately with abort.
func TestSendWithoutTransportAborts(t *testing.T) {
	c := New(Config{})
	c.registry = NewRegistry()

	code := 0
	c.Poll(func(out []byte, status int) { code = status })
	if code != -1 {
		t.Fatalf("status = %d, want -1 abort", code)
	}
	if len(c.queue) != 0 {
		t.Fatal("queue must drain without a transport")
	}
}
