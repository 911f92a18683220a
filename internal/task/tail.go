package task

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

const (
	defaultTailLines = 200
	maxLineBytes     = 4096
)

// tailBuffer keeps the most recent lines of one output stream.
// It has exactly one writer (the drain goroutine).
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
	next  int
	full  bool
	total int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = defaultTailLines
	}
	return &tailBuffer{max: max, lines: make([]string, max)}
}

func (b *tailBuffer) append(line string) {
	b.mu.Lock()
	b.lines[b.next] = line
	b.next = (b.next + 1) % b.max
	if b.next == 0 {
		b.full = true
	}
	b.total++
	b.mu.Unlock()
}

// Lines returns the buffered lines, oldest first.
func (b *tailBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return append([]string(nil), b.lines[:b.next]...)
	}
	out := make([]string, 0, b.max)
	out = append(out, b.lines[b.next:]...)
	out = append(out, b.lines[:b.next]...)
	return out
}

func (b *tailBuffer) String() string {
	return strings.Join(b.Lines(), "\n")
}

// drain reads r line by line into b until EOF or a read error.
// Over-long lines are cut at maxLineBytes; invalid UTF-8 is replaced.
func drain(r io.Reader, b *tailBuffer) {
	if r == nil {
		return
	}
	br := bufio.NewReaderSize(r, maxLineBytes)
	var cur []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if len(chunk) > 0 && len(cur) < maxLineBytes {
			room := maxLineBytes - len(cur)
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			cur = append(cur, chunk...)
		}
		if err != nil {
			if len(cur) > 0 {
				b.append(strings.ToValidUTF8(string(cur), "�"))
			}
			return
		}
		if isPrefix {
			continue
		}
		b.append(strings.ToValidUTF8(string(cur), "�"))
		cur = cur[:0]
	}
}
