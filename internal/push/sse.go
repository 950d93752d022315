package push

import (
	"bufio"
	"io"
	"strings"
)

// maxLine bounds a single SSE line; the first conversation event can carry a
// page of history.
const maxLine = 1 << 20

// Event is one dispatched server-sent event, or a poll tick.
type Event struct {
	Name string
	ID   string
	Data string
}

// PollEvent is the name of events produced by the polling fallback.
const PollEvent = "poll"

// readEvents parses an SSE stream and calls fn for every dispatched event
// until the stream ends. Comment lines (heartbeats) are skipped.
func readEvents(r io.Reader, fn func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var (
		ev      Event
		data    strings.Builder
		hasData bool
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if hasData || ev.Name != "" {
				ev.Data = data.String()
				if ev.Name == "" {
					ev.Name = "message"
				}
				fn(ev)
			}
			ev = Event{}
			data.Reset()
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			ev.ID = value
		}
	}
	return scanner.Err()
}
