package progress

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var (
	counterWithTotal = regexp.MustCompile(`^(.+?):\s+\d+% \((\d+)/(\d+)\)`)
	counterOnly      = regexp.MustCompile(`^(.+?):\s+(\d+)`)
)

// SidebandWriter turns the remote's textual progress ("Receiving objects:
// 45% (9/20)") into tracker updates. It is handed to go-git as the
// Progress writer of network operations.
type SidebandWriter struct {
	mu      sync.Mutex
	tracker *Tracker
	buf     bytes.Buffer
}

func NewSidebandWriter(tracker *Tracker) *SidebandWriter {
	return &SidebandWriter{tracker: tracker}
}

func (w *SidebandWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			break
		}
		line := string(data[:i])
		w.buf.Next(i + 1)
		w.parse(line)
	}

	return len(p), nil
}

func (w *SidebandWriter) parse(line string) {
	line = strings.TrimSpace(strings.TrimPrefix(line, "remote:"))
	if line == "" {
		return
	}

	if m := counterWithTotal.FindStringSubmatch(line); m != nil {
		loaded, _ := strconv.ParseInt(m[2], 10, 64)
		total, _ := strconv.ParseInt(m[3], 10, 64)
		w.tracker.UpdateProgress(loaded, total, m[1])
		return
	}

	if m := counterOnly.FindStringSubmatch(line); m != nil {
		loaded, _ := strconv.ParseInt(m[2], 10, 64)
		w.tracker.UpdateProgress(loaded, 0, m[1])
	}
}
