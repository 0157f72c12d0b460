package search

import (
	"bufio"
	"io"
	"strings"
)

// ChunkMarkdown splits a markdown document into retrieval chunks. Consecutive
// prose lines form one chunk and blank lines end it. Headings start a new
// chunk. Each table row becomes its own chunk, with cells labelled by the
// header row ("Plan: Pro; Price: $20") so a row stays meaningful in isolation.
func ChunkMarkdown(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		out     []string
		para    []string
		headers []string
	)
	flush := func() {
		if len(para) == 0 {
			return
		}
		out = append(out, strings.Join(para, " "))
		para = para[:0]
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			headers = nil
			continue
		}

		if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") {
			flush()
			cells, sep := tableCells(line)
			if sep || len(cells) == 0 {
				continue
			}
			if headers == nil {
				headers = cells
				continue
			}
			out = append(out, labelRow(headers, cells))
			continue
		}
		headers = nil

		if strings.HasPrefix(line, "#") {
			flush()
			line = strings.TrimSpace(strings.TrimLeft(line, "#"))
			if line == "" {
				continue
			}
		}
		para = append(para, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return out, nil
}

// tableCells returns the non-empty cells of a "| a | b |" row and whether the
// row is a separator ("|---|:--:|").
func tableCells(line string) ([]string, bool) {
	raw := strings.Trim(line, "|")
	cols := strings.Split(raw, "|")
	allSep := true
	cleaned := make([]string, 0, len(cols))
	for _, c := range cols {
		cell := strings.TrimSpace(c)
		cleaned = append(cleaned, cell)
		tmp := strings.ReplaceAll(cell, ":", "")
		tmp = strings.ReplaceAll(tmp, "-", "")
		if strings.TrimSpace(tmp) != "" {
			allSep = false
		}
	}
	return cleaned, allSep
}

func labelRow(headers, cells []string) string {
	parts := make([]string, 0, len(cells))
	for i, c := range cells {
		if c == "" {
			continue
		}
		if i < len(headers) && headers[i] != "" {
			parts = append(parts, headers[i]+": "+c)
			continue
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, "; ")
}
