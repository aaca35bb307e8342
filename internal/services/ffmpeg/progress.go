package ffmpeg

import (
	"bytes"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ProgressEvent is one normalized progress sample.
type ProgressEvent struct {
	// Elapsed is the encoded media time in seconds.
	Elapsed float64
	// Speed is the processing speed multiplier; 0 when unreported.
	Speed float64
	// Bitrate is the raw bitrate token, e.g. "512.0kbits/s".
	Bitrate     string
	BitrateKbps float64
	Frame       int64
	// Percent is clamped to [0,100] and never decreases. When the total
	// duration is unknown the previous value is held.
	Percent float64
	// ETA is the estimated wall-clock seconds remaining; meaningful only when
	// ETAKnown is set.
	ETA      float64
	ETAKnown bool
	// Duration is the total media duration the percentage is based on, 0 when
	// unknown.
	Duration float64
}

var (
	tokenPattern    = regexp.MustCompile(`([A-Za-z_]+)=\s*(\S+)`)
	durationPattern = regexp.MustCompile(`Duration:\s*(N/A|-?\d+:\d{1,2}:\d{1,2}(?:\.\d+)?)`)
	clockPattern    = regexp.MustCompile(`^(-)?(\d+):(\d{1,2}):(\d{1,2}(?:\.\d+)?)$`)
)

// ProgressParser turns ffmpeg stderr records into ProgressEvent values. It is
// not safe for concurrent use; each pass of each job owns one.
type ProgressParser struct {
	duration float64
	last     ProgressEvent
	emitted  bool
}

// NewProgressParser returns a parser for an input of durationSeconds. Pass 0
// when the duration is unknown; a "Duration:" header in the stream then fills
// it in.
func NewProgressParser(durationSeconds float64) *ProgressParser {
	if durationSeconds < 0 || math.IsNaN(durationSeconds) || math.IsInf(durationSeconds, 0) {
		durationSeconds = 0
	}
	return &ProgressParser{duration: durationSeconds}
}

// Duration returns the total duration currently in use, 0 when unknown.
func (p *ProgressParser) Duration() float64 {
	return p.duration
}

// Last returns the most recent emitted event.
func (p *ProgressParser) Last() (ProgressEvent, bool) {
	return p.last, p.emitted
}

// Feed consumes one line of ffmpeg output. Carriage returns inside line are
// treated as record terminators; when several records produce events the
// last one is returned. Unrecognized or malformed input yields no event.
func (p *ProgressParser) Feed(line string) (ProgressEvent, bool) {
	var (
		out ProgressEvent
		ok  bool
	)
	records := strings.FieldsFunc(line, func(r rune) bool { return r == '\r' || r == '\n' })
	for _, record := range records {
		if ev, emitted := p.feedRecord(record); emitted {
			out, ok = ev, true
		}
	}
	return out, ok
}

func (p *ProgressParser) feedRecord(record string) (ProgressEvent, bool) {
	if match := durationPattern.FindStringSubmatch(record); match != nil {
		if p.duration <= 0 {
			if seconds, ok := parseClock(match[1]); ok && seconds > 0 {
				p.duration = seconds
			}
		}
		return ProgressEvent{}, false
	}

	matches := tokenPattern.FindAllStringSubmatch(record, -1)
	if len(matches) == 0 {
		return ProgressEvent{}, false
	}
	tokens := make(map[string]string, len(matches))
	for _, m := range matches {
		tokens[m[1]] = m[2]
	}

	elapsed, ok := elapsedFromTokens(tokens)
	if !ok {
		return ProgressEvent{}, false
	}
	if p.emitted && elapsed < p.last.Elapsed {
		return ProgressEvent{}, false
	}

	ev := ProgressEvent{
		Elapsed:  elapsed,
		Speed:    parseSpeed(tokens["speed"]),
		Duration: p.duration,
		Percent:  p.last.Percent,
	}
	if raw, present := tokens["bitrate"]; present {
		ev.Bitrate = raw
		ev.BitrateKbps = parseKbps(raw)
	}
	if raw, present := tokens["frame"]; present {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= 0 {
			ev.Frame = n
		}
	}

	if p.duration > 0 {
		percent := math.Min(100, elapsed/p.duration*100)
		if percent > ev.Percent {
			ev.Percent = percent
		}
		if ev.Speed > 0 {
			eta := math.Max(0, p.duration-elapsed) / ev.Speed
			if !math.IsInf(eta, 0) && !math.IsNaN(eta) {
				ev.ETA = eta
				ev.ETAKnown = true
			}
		}
	}

	p.last = ev
	p.emitted = true
	return ev, true
}

// elapsedFromTokens prefers the microsecond counters of -progress output and
// falls back to the clock forms of the classic status line.
func elapsedFromTokens(tokens map[string]string) (float64, bool) {
	for _, key := range []string{"out_time_us", "out_time_ms"} {
		raw, ok := tokens[key]
		if !ok {
			continue
		}
		// ffmpeg reports out_time_ms in microseconds as well.
		us, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || us < 0 {
			continue
		}
		return float64(us) / 1e6, true
	}
	for _, key := range []string{"out_time", "time"} {
		raw, ok := tokens[key]
		if !ok {
			continue
		}
		if seconds, ok := parseClock(raw); ok {
			return seconds, true
		}
	}
	return 0, false
}

// parseClock parses HH:MM:SS.frac. Negative and malformed values are rejected.
func parseClock(value string) (float64, bool) {
	match := clockPattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil || match[1] == "-" {
		return 0, false
	}
	hours, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.ParseFloat(match[3], 64)
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(match[4], 64)
	if err != nil {
		return 0, false
	}
	total := hours*3600 + minutes*60 + seconds
	if math.IsInf(total, 0) {
		return 0, false
	}
	return total, true
}

func parseSpeed(value string) float64 {
	value = strings.TrimSpace(value)
	if !strings.HasSuffix(value, "x") {
		return 0
	}
	speed, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64)
	if err != nil || speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return 0
	}
	return speed
}

func parseKbps(value string) float64 {
	value = strings.TrimSuffix(strings.TrimSpace(value), "kbits/s")
	kbps, err := strconv.ParseFloat(value, 64)
	if err != nil || kbps < 0 || math.IsNaN(kbps) || math.IsInf(kbps, 0) {
		return 0
	}
	return kbps
}

// ScanRecords is a bufio.SplitFunc that ends a record at '\r' or '\n'. ffmpeg
// rewrites its status line with bare carriage returns, so both count as
// terminators. A "\r\n" pair yields an empty record, which callers skip.
func ScanRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
