package parse

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/sanonone/kompaktdb/pkg/graph"
)

// ParseTriples reads the base dataset: one `subject predicate object .` per
// line, whitespace separated, the trailing dot optional. Blank lines and
// `#` comments are skipped. Unlike the graph core's invariant errors, a
// malformed line is a recoverable input error for the caller to report.
func ParseTriples(r io.Reader, dict *Dict) ([]graph.Triple, error) {
	var triples []graph.Triple
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		t, ok, err := parseLine(scanner.Text(), dict, lineNo)
		if err != nil {
			return nil, err
		}
		if ok {
			triples = append(triples, t)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return triples, nil
}

// ParseUpdate reads the update file: triple lines prefixed with `+` for
// additions and `-` for deletions.
func ParseUpdate(r io.Reader, dict *Dict) (additions, deletions []graph.Triple, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		op := line[0]
		if op != '+' && op != '-' {
			return nil, nil, fmt.Errorf("update line %d: expected '+' or '-' prefix: %q", lineNo, line)
		}
		t, ok, err := parseLine(line[1:], dict, lineNo)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, fmt.Errorf("update line %d: missing triple after %q", lineNo, string(op))
		}
		if op == '+' {
			additions = append(additions, t)
		} else {
			deletions = append(deletions, t)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read update file: %w", err)
	}
	return additions, deletions, nil
}

func parseLine(line string, dict *Dict, lineNo int) (graph.Triple, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return graph.Triple{}, false, nil
	}
	fields := strings.Fields(line)
	if len(fields) == 4 && fields[3] == "." {
		fields = fields[:3]
	}
	if len(fields) != 3 {
		return graph.Triple{}, false, fmt.Errorf("line %d: malformed triple: %q", lineNo, line)
	}
	return graph.Triple{
		Sub:  dict.Encode(fields[0]),
		Pred: dict.Encode(fields[1]),
		Obj:  dict.Encode(fields[2]),
	}, true, nil
}
