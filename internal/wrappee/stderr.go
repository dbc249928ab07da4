package wrappee

import (
	"bufio"
	"log/slog"

	"github.com/charmbracelet/x/ansi"

	"github.com/loykin/wrapmcp/internal/metrics"
)

// stderrLoop captures the wrappee's diagnostic stream line by line,
// independently of request/response traffic, so a chatty wrappee can never
// stall call delivery. Recognized terminal escape sequences are stripped
// unless preservation was requested. The loop ends when the pipe closes.
func (c *Client) stderrLoop() {
	sc := bufio.NewScanner(c.handle.Stderr())
	sc.Buffer(make([]byte, 64*1024), maxFrameSize)
	for sc.Scan() {
		select {
		case <-c.closed:
			return
		default:
		}
		line := sc.Text()
		if !c.preserveANSI {
			line = ansi.Strip(line)
		}
		c.store.AddStderr(line)
		metrics.IncStderrLine()
		slog.Debug("wrappee stderr", "line", line)
	}
	slog.Debug("wrappee stderr reader finished")
}
