package logstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Format selects how query results are rendered for the show_log tool.
type Format string

const (
	// FormatAI is a compact line-oriented rendering meant for model
	// consumption. It is the default.
	FormatAI Format = "ai"
	// FormatText is a human-readable rendering with timestamps.
	FormatText Format = "text"
	// FormatJSON is the raw structured form.
	FormatJSON Format = "json"
)

// Render projects query results into the requested format. Rendering is a
// pure read of the entries; any unrecognized format falls back to FormatAI.
func Render(entries []Entry, format Format) string {
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Sprintf("failed to render log entries: %v", err)
		}
		return string(b)
	case FormatText:
		return renderText(entries)
	default:
		return renderAI(entries)
	}
}

func renderAI(entries []Entry) string {
	if len(entries) == 0 {
		return "No log entries found.\n"
	}
	var b strings.Builder
	for _, e := range entries {
		switch e.Kind {
		case KindRequest:
			b.WriteString(fmt.Sprintf("[REQUEST #%d] %s(%s)\n", e.Seq, e.Tool, compactArgs(e.Payload)))
		case KindResponse:
			texts := resultTexts(e.Payload)
			if len(texts) == 0 {
				b.WriteString(fmt.Sprintf("[RESPONSE #%d] %s\n", e.CorrelationID, compactJSON(e.Payload)))
			}
			for _, t := range texts {
				b.WriteString(fmt.Sprintf("[RESPONSE #%d] %q\n", e.CorrelationID, t))
			}
		case KindError:
			b.WriteString(fmt.Sprintf("[ERROR #%d] %s\n", e.CorrelationID, e.Text))
		case KindStderr:
			b.WriteString(fmt.Sprintf("[STDERR] %s\n", e.Text))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func renderText(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("[#%d] %s | %s\n", e.Seq, e.Timestamp.Format("2006-01-02 15:04:05 UTC"), e.Kind))
		if e.Tool != "" {
			b.WriteString(fmt.Sprintf("Tool: %s\n", e.Tool))
		}
		if e.Elapsed > 0 {
			b.WriteString(fmt.Sprintf("Elapsed: %s\n", e.Elapsed))
		}
		switch {
		case len(e.Payload) > 0:
			b.WriteString(fmt.Sprintf("Content: %s\n", prettyJSON(e.Payload)))
		case e.Text != "":
			b.WriteString(fmt.Sprintf("Content: %s\n", e.Text))
		}
		b.WriteString(strings.Repeat("-", 60))
		b.WriteByte('\n')
	}
	return b.String()
}

// compactArgs renders a JSON object payload as "key: value" pairs so a
// request line reads like a call expression.
func compactArgs(raw json.RawMessage) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return compactJSON(raw)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, string(obj[k])))
	}
	return strings.Join(parts, ", ")
}

// resultTexts pulls text content blocks out of a tools/call result payload.
func resultTexts(raw json.RawMessage) []string {
	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	texts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		if c.Text != "" {
			texts = append(texts, c.Text)
		}
	}
	return texts
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
