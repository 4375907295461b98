// Package cpio implements a streaming reader for gzip-wrapped CPIO-odc
// archives (the format AirDrop senders upload). The reader is a push-style
// state machine so it never needs the whole archive buffered — callers may
// feed it arbitrarily sized chunks, down to one byte at a time, and get
// identical results.
package cpio

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dotside-studios/airdrop-bridge/octal"
)

// EntryType classifies a CPIO entry by its mode bits.
type EntryType int

const (
	TypeOther EntryType = iota
	TypeDirectory
	TypeFile
)

const (
	headerSize = 76

	offMagic    = 0
	lenMagic    = 6
	offDevice   = 6
	lenDevice   = 6
	offInode    = 12
	lenInode    = 6
	offMode     = 18
	lenMode     = 6
	offUID      = 24
	lenUID      = 6
	offGID      = 30
	lenGID      = 6
	offNlink    = 36
	lenNlink    = 6
	offRdev     = 42
	lenRdev     = 6
	offMtime    = 48
	lenMtime    = 11
	offNamesize = 59
	lenNamesize = 6
	offFilesize = 65
	lenFilesize = 11

	magicValue = 0o070707

	modeDirBit  = 0o040000
	modeFileBit = 0o100000
)

// trailerName marks the end of a CPIO-odc archive.
const trailerName = "TRAILER!!!"

type state int

const (
	stateExpectHeader state = iota
	stateExpectName
	stateExpectData
	stateEnd
)

// entryMeta holds the parsed metadata for the entry currently being read.
type entryMeta struct {
	mode     uint32
	nameSize uint32
	fileSize uint32
	typ      EntryType
}

// Extractor drives the CPIO-odc state machine, extracting regular files to
// a sandboxed output root. It must be fed archive bytes in order via Feed;
// call Close once the stream is exhausted to retrieve the created files.
type Extractor struct {
	root string

	state   state
	pending []byte // accumulation buffer for the current header/name field
	meta    entryMeta
	skip    bool // current entry is being skipped (non-regular, ., .., or trailer)

	outFile *os.File
	written uint32

	created []string
	err     error
}

// NewExtractor creates an Extractor that will write files under root.
// root is created if it does not already exist.
func NewExtractor(root string) (*Extractor, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cpio: create output root: %w", err)
	}
	return &Extractor{root: root}, nil
}

// Feed pushes the next chunk of archive bytes into the state machine. It
// may be called any number of times with buffers of any size. Once the
// extractor has reached End (or failed), further bytes are ignored.
func (e *Extractor) Feed(p []byte) error {
	if e.err != nil {
		return e.err
	}

	for len(p) > 0 {
		switch e.state {
		case stateExpectHeader:
			p = e.feedHeader(p)
		case stateExpectName:
			p = e.feedName(p)
		case stateExpectData:
			p = e.feedData(p)
		case stateEnd:
			return nil
		}
		if e.err != nil {
			return e.err
		}
	}
	return nil
}

func (e *Extractor) feedHeader(p []byte) []byte {
	need := headerSize - len(e.pending)
	take := min(need, len(p))
	e.pending = append(e.pending, p[:take]...)
	p = p[take:]

	if len(e.pending) < headerSize {
		return p
	}

	header := e.pending
	e.pending = nil

	magic, ok := octal.Parse(header[offMagic : offMagic+lenMagic])
	if !ok || magic != magicValue {
		e.fail(fmt.Errorf("cpio: bad magic"))
		return nil
	}

	mode, ok := octal.Parse(header[offMode : offMode+lenMode])
	if !ok {
		e.fail(fmt.Errorf("cpio: bad mode field"))
		return nil
	}

	nameSize, ok := octal.Parse(header[offNamesize : offNamesize+lenNamesize])
	if !ok {
		e.fail(fmt.Errorf("cpio: bad namesize field"))
		return nil
	}
	if nameSize == 0 {
		e.fail(fmt.Errorf("cpio: zero namesize"))
		return nil
	}

	fileSize, ok := octal.Parse(header[offFilesize : offFilesize+lenFilesize])
	if !ok {
		e.fail(fmt.Errorf("cpio: bad filesize field"))
		return nil
	}

	typ := TypeOther
	switch {
	case mode&modeDirBit != 0:
		typ = TypeDirectory
	case mode&modeFileBit != 0:
		typ = TypeFile
	}

	e.meta = entryMeta{mode: mode, nameSize: nameSize, fileSize: fileSize, typ: typ}
	e.state = stateExpectName
	return p
}

func (e *Extractor) feedName(p []byte) []byte {
	need := int(e.meta.nameSize) - len(e.pending)
	take := min(need, len(p))
	e.pending = append(e.pending, p[:take]...)
	p = p[take:]

	if len(e.pending) < int(e.meta.nameSize) {
		return p
	}

	raw := e.pending
	e.pending = nil

	name := strings.TrimRight(string(raw), "\x00")
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")

	switch {
	case name == trailerName:
		e.state = stateEnd
		e.skip = true
	case name == "." || name == "..":
		e.skip = true
	default:
		if err := e.openEntry(name); err != nil {
			e.fail(err)
			return nil
		}
	}

	if e.meta.fileSize == 0 {
		// Zero-length file (or skipped entry): nothing to read, go straight
		// back to the next header.
		if e.state != stateEnd {
			e.state = stateExpectHeader
		}
		return p
	}

	if e.state != stateEnd {
		e.state = stateExpectData
	}
	return p
}

// openEntry resolves name against the output root, enforcing containment,
// and opens the destination file if this entry is a regular file.
func (e *Extractor) openEntry(name string) error {
	cleanRoot := filepath.Clean(e.root)
	joined := filepath.Join(cleanRoot, name)

	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return fmt.Errorf("cpio: entry %q escapes output root", name)
	}

	if e.meta.typ != TypeFile {
		e.skip = true
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(joined), 0o755); err != nil {
		return fmt.Errorf("cpio: create parent directories for %q: %w", name, err)
	}

	f, err := os.Create(joined)
	if err != nil {
		return fmt.Errorf("cpio: create %q: %w", name, err)
	}

	e.outFile = f
	e.written = 0
	e.created = append(e.created, joined)
	e.skip = false
	return nil
}

func (e *Extractor) feedData(p []byte) []byte {
	remaining := e.meta.fileSize - e.written
	take := uint32(min(int(remaining), len(p)))

	if take > 0 && !e.skip && e.outFile != nil {
		if _, err := e.outFile.Write(p[:take]); err != nil {
			e.fail(fmt.Errorf("cpio: write: %w", err))
			return nil
		}
	}

	e.written += take
	p = p[take:]

	if e.written == e.meta.fileSize {
		if e.outFile != nil {
			if err := e.outFile.Close(); err != nil {
				e.fail(fmt.Errorf("cpio: close: %w", err))
				return nil
			}
			e.outFile = nil
		}
		e.state = stateExpectHeader
	}

	return p
}

func (e *Extractor) fail(err error) {
	if e.outFile != nil {
		e.outFile.Close()
		e.outFile = nil
	}
	e.err = err
}

// Close finalizes the extraction. It returns an error if the archive ended
// before reaching the trailer entry (truncation). On success, it returns
// the ordered list of file paths created (directories omitted).
func (e *Extractor) Close() ([]string, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.state != stateEnd {
		return nil, fmt.Errorf("cpio: truncated archive (state=%d)", e.state)
	}
	return e.created, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// chunkSize is the buffer size ExtractStream reads in; it has no bearing
// on correctness (Feed accepts any size) and only affects throughput.
const chunkSize = 64 * 1024

// ExtractStream drives an Extractor from r until EOF or failure.
func ExtractStream(r io.Reader, root string) ([]string, error) {
	ex, err := NewExtractor(root)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if feedErr := ex.Feed(buf[:n]); feedErr != nil {
				return nil, feedErr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cpio: read: %w", err)
		}
	}

	return ex.Close()
}

// ExtractGzipStream wraps r with a gzip decompressor and extracts the
// resulting CPIO-odc stream. AirDrop senders compress their upload bodies
// without setting Content-Encoding, so the caller must opt into this
// explicitly rather than relying on the transport to decompress.
func ExtractGzipStream(r io.Reader, root string) ([]string, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("cpio: gzip: %w", err)
	}
	defer gz.Close()

	return ExtractStream(gz, root)
}
