package llm

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// sseEvent is one dispatched server-sent event.
type sseEvent struct {
	Name string
	Data string
}

// readSSE parses r as a text/event-stream and calls fn per event until the
// stream ends, fn returns false, or a read fails. Multi-line data fields are
// joined with "\n"; comment lines are ignored.
func readSSE(r io.Reader, fn func(sseEvent) bool) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		name string
		data strings.Builder
		has  bool
	)
	dispatch := func() bool {
		if !has {
			name = ""
			return true
		}
		ev := sseEvent{Name: name, Data: data.String()}
		name, has = "", false
		data.Reset()
		return fn(ev)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if !dispatch() {
				return nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			v := strings.TrimPrefix(line, "data:")
			v = strings.TrimPrefix(v, " ")
			if has {
				data.WriteByte('\n')
			}
			data.WriteString(v)
			has = true
		}

		if errors.Is(err, io.EOF) {
			dispatch()
			return nil
		}
	}
}

// readAllLimit reads at most n bytes of r.
func readAllLimit(r io.Reader, n int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, n))
}
