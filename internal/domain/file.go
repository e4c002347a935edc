package domain

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// FileSort selects the listing order for a remote directory.
type FileSort int

const (
	SortByName FileSort = iota
	SortByDate
)

func (s FileSort) String() string {
	switch s {
	case SortByName:
		return "name"
	case SortByDate:
		return "date"
	default:
		return "unknown"
	}
}

// wireToken is the single-letter form the helper expects.
func (s FileSort) wireToken() string {
	if s == SortByDate {
		return "d"
	}
	return "n"
}

// FileOp enumerates the framer file subcommands.
type FileOp int

const (
	FileLs FileOp = iota
	FileFetch
	FileStat
	FileRm
	FileLn
	FileMv
	FileMkdir
	FileCreate
)

func (op FileOp) String() string {
	switch op {
	case FileLs:
		return "ls"
	case FileFetch:
		return "fetch"
	case FileStat:
		return "stat"
	case FileRm:
		return "rm"
	case FileLn:
		return "ln"
	case FileMv:
		return "mv"
	case FileMkdir:
		return "mkdir"
	case FileCreate:
		return "create"
	default:
		return "unknown"
	}
}

// createChunkSize is the line length base64 content is split into for
// file create records.
const createChunkSize = 80

// FileSubcommand is the nested variant carried by a framer file
// command. Paths and content are raw byte buffers; they are base64
// encoded on the wire so arbitrary filenames survive the line protocol.
type FileSubcommand struct {
	Op        FileOp
	Path      []byte
	Sort      FileSort // FileLs
	Recursive bool     // FileRm
	Source    []byte   // FileLn, FileMv
	Content   []byte   // FileCreate
}

// WireForm renders the newline-separated subcommand tokens.
func (f *FileSubcommand) WireForm() string {
	b64 := func(p []byte) string { return base64.StdEncoding.EncodeToString(p) }
	switch f.Op {
	case FileLs:
		return "ls\n" + b64(f.Path) + "\n" + f.Sort.wireToken()
	case FileFetch:
		return "fetch\n" + b64(f.Path)
	case FileStat:
		return "stat\n" + b64(f.Path)
	case FileRm:
		flag := "-"
		if f.Recursive {
			flag = "r"
		}
		return "rm\n" + b64(f.Path) + "\n" + flag
	case FileLn:
		return "ln\n" + b64(f.Source) + "\n" + b64(f.Path)
	case FileMv:
		return "mv\n" + b64(f.Source) + "\n" + b64(f.Path)
	case FileMkdir:
		return "mkdir\n" + b64(f.Path)
	case FileCreate:
		return "create\n" + b64(f.Path) + "\n" + splitChunks(b64(f.Content), createChunkSize)
	default:
		return ""
	}
}

// Describe is the log-safe form: operation plus path, never content.
func (f *FileSubcommand) Describe() string {
	var b strings.Builder
	b.WriteString(f.Op.String())
	b.WriteString(" ")
	b.Write(f.Path)
	if f.Op == FileRm && f.Recursive {
		b.WriteString(" recursive")
	}
	return b.String()
}

// splitChunks breaks s into newline-separated runs of at most n bytes.
// The final run is always shorter than n; the helper relies on a short
// line to detect the end of the content.
func splitChunks(s string, n int) string {
	if len(s) < n {
		return s
	}
	var b strings.Builder
	for len(s) > n {
		b.WriteString(s[:n])
		b.WriteString("\n")
		s = s[n:]
	}
	if len(s) == n {
		b.WriteString(s[:n-1])
		b.WriteString("\n")
		s = s[n-1:]
	}
	b.WriteString(s)
	return b.String()
}

// RemoteFileKind mirrors the kind field the helper reports for each
// directory entry.
type RemoteFileKind string

const (
	RemoteFileRegular RemoteFileKind = "file"
	RemoteFileFolder  RemoteFileKind = "folder"
	RemoteFileSymlink RemoteFileKind = "symlink"
)

// RemoteFile is one entry of a remote listing or stat result, decoded
// from the helper's JSON payload.
type RemoteFile struct {
	Name        string         `json:"name"`
	Kind        RemoteFileKind `json:"kind"`
	Size        int64          `json:"size"`
	MTime       int64          `json:"mtime"`
	Permissions string         `json:"permissions,omitempty"`
	Target      string         `json:"target,omitempty"`
}

// ParsePID parses a helper-reported PID line. Helpers always report
// positive PIDs; anything else is a protocol violation.
func ParsePID(line string) (int, bool) {
	pid, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
