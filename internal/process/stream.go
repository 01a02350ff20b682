package process

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"
)

// lineBuffer accumulates "\n"-terminated lines. Safe for concurrent use:
// a drain goroutine may still append after the engine took its snapshot.
type lineBuffer struct {
	mu    sync.Mutex
	sb    strings.Builder
	lines int
}

func (b *lineBuffer) AppendLine(line string) {
	b.mu.Lock()
	b.sb.WriteString(line)
	b.sb.WriteByte('\n')
	b.lines++
	b.mu.Unlock()
}

func (b *lineBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

// Lines returns how many lines were appended.
func (b *lineBuffer) Lines() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lines
}

// stream is one redirected standard stream: an OS pipe, the text read from
// it and the signal resolved at end-of-stream.
type stream struct {
	name string
	r    *os.File
	w    *os.File
	buf  lineBuffer
	eof  *CompletionSignal

	closeReadOnce  sync.Once
	closeWriteOnce sync.Once
}

func newStream(name string) (*stream, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &stream{
		name: name,
		r:    r,
		w:    w,
		eof:  NewCompletionSignal(),
	}, nil
}

// closeWriter drops the parent's copy of the write end. Must happen right
// after Start so the reader sees EOF once the child side closes.
func (s *stream) closeWriter() {
	s.closeWriteOnce.Do(func() { s.w.Close() })
}

// closeReader unblocks a drain goroutine still waiting on a pipe held open
// by something other than the child (e.g. a detached grandchild).
func (s *stream) closeReader() {
	s.closeReadOnce.Do(func() { s.r.Close() })
}

// drain reads lines until end-of-stream or a read error, then resolves eof.
// MUST run in its own goroutine, started before anything waits on the process.
func (s *stream) drain(observe func(line string)) {
	defer s.eof.Resolve()
	drainLines(s.r, &s.buf, observe)
}

// drainLines splits r on '\n' (trimming a trailing '\r'). A final line
// without a terminator is kept. Lines have no length limit so a single
// huge line can never stall the pipe.
func drainLines(r io.Reader, buf *lineBuffer, observe func(line string)) {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			buf.AppendLine(line)
			if observe != nil {
				observe(line)
			}
		}
		if err != nil {
			return
		}
	}
}
