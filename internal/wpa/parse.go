package wpa

import "strings"

// replyShape is how a verb's reply text is interpreted.
type replyShape int

const (
	shapeKeyValue replyShape = iota
	shapeText
	shapeTable
)

func shapeOf(verb Verb) replyShape {
	switch verb {
	case VerbScan, VerbAddNetwork, VerbRemoveNetwork, VerbSetNetwork,
		VerbSelectNetwork, VerbEnableNetwork, VerbDisableNetwork,
		VerbAttach, VerbDetach, VerbPing:
		return shapeText
	case VerbScanResults, VerbListNetworks:
		return shapeTable
	default:
		return shapeKeyValue
	}
}

// ParseReply interprets raw reply text for verb.
//
// A reply whose trimmed text is FAIL is always the failure marker. Otherwise:
//   - text verbs (SCAN, *_NETWORK, ATTACH, DETACH, PING) yield the trimmed text
//   - SCAN_RESULTS and LIST_NETWORKS yield labelled rows
//   - everything else (STATUS, SIGNAL_POLL) yields a key=value mapping
func ParseReply(verb Verb, raw string) Result {
	if strings.TrimSpace(raw) == TokenFail {
		return Fail()
	}

	switch shapeOf(verb) {
	case shapeText:
		return Text(strings.TrimSpace(raw))
	case shapeTable:
		return Rows(ParseTable(raw))
	default:
		return Fields(ParseKeyValue(raw))
	}
}

// ParseTable parses a header of "/"-separated labels followed by
// tab-separated rows. Labels are trimmed; values are kept verbatim.
// Cells are zipped positionally: short rows yield fewer fields and surplus
// cells are ignored. Blank lines are skipped.
func ParseTable(raw string) []Row {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return []Row{}
	}

	header := strings.Split(lines[0], "/")
	labels := make([]string, len(header))
	for i, h := range header {
		labels[i] = strings.TrimSpace(h)
	}

	rows := make([]Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		cells := strings.Split(line, "\t")
		n := min(len(labels), len(cells))
		row := make(Row, 0, n)
		for i := 0; i < n; i++ {
			row = row.set(labels[i], cells[i])
		}
		rows = append(rows, row)
	}
	return rows
}

// ParseKeyValue folds "key=value" lines into a mapping. Lines are split at the
// first "=", both sides trimmed; lines without "=" are ignored and later
// duplicates win.
func ParseKeyValue(raw string) map[string]string {
	out := make(map[string]string)
	for _, line := range splitLines(raw) {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

// splitLines splits on newlines, dropping a trailing empty line and any
// carriage returns.
func splitLines(raw string) []string {
	raw = strings.TrimRight(raw, "\n\x00")
	if raw == "" {
		return nil
	}
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
