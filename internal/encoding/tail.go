package encoding

import "strings"

// tailBuffer keeps the last few diagnostic lines of a pass for failure reasons.
type tailBuffer struct {
	lines []string
	next  int
	full  bool
}

func newTailBuffer(size int) *tailBuffer {
	if size <= 0 {
		size = 1
	}
	return &tailBuffer{lines: make([]string, size)}
}

func (t *tailBuffer) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
}

func (t *tailBuffer) Lines() []string {
	if !t.full {
		return append([]string(nil), t.lines[:t.next]...)
	}
	out := make([]string, 0, len(t.lines))
	out = append(out, t.lines[t.next:]...)
	return append(out, t.lines[:t.next]...)
}

// Summary joins the retained lines and keeps at most limit trailing bytes.
func (t *tailBuffer) Summary(limit int) string {
	joined := strings.Join(t.Lines(), " | ")
	if limit > 0 && len(joined) > limit {
		joined = "..." + joined[len(joined)-limit:]
	}
	return joined
}
