package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ExtractJSON pulls the JSON payload out of a free-text model reply. A
// fenced code block wins; otherwise the substring starting at the first
// '{' or '[' is taken.
func ExtractJSON(raw string) string {
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	// An unterminated fence still marks where the payload starts.
	if idx := strings.Index(raw, "```"); idx >= 0 {
		rest := raw[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		raw = rest
	}

	objIdx := strings.IndexByte(raw, '{')
	arrIdx := strings.IndexByte(raw, '[')
	switch {
	case objIdx < 0 && arrIdx < 0:
		return ""
	case objIdx < 0:
		return raw[arrIdx:]
	case arrIdx < 0 || objIdx < arrIdx:
		return raw[objIdx:]
	default:
		return raw[arrIdx:]
	}
}

// ParseJSON extracts, parses, and if necessary repairs the JSON in a model
// reply. The repair is attempted once; if the repaired text still fails to
// parse the error wraps ErrMalformedResponse.
func ParseJSON(raw string, v any) error {
	text := ExtractJSON(raw)
	if text == "" {
		return fmt.Errorf("no JSON payload in model reply: %w", ErrMalformedResponse)
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	repaired := RepairJSON(text)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("parse after repair: %v: %w", err, ErrMalformedResponse)
	}
	return nil
}

// container tracks one open { or [ during the repair scan. lastGood is the
// index just past its most recent structurally complete child (for objects,
// a complete key:value pair); openEnd is the index just past the opening
// bracket.
type container struct {
	kind     byte // '{' or '['
	openEnd  int
	lastGood int
	// object parse state: true when the next completed string is a key
	// rather than a value
	expectKey bool
}

// RepairJSON makes truncated JSON parseable by dropping the incomplete
// trailing element and closing all open brackets in LIFO order. It never
// closes a string cut mid-token: a truncated value would silently fabricate
// data, so the whole partial element is removed instead.
func RepairJSON(text string) string {
	stack := make([]*container, 0, 8)
	inString := false
	escaped := false
	inPrimitive := false

	completeChild := func(end int) {
		if len(stack) == 0 {
			return
		}
		top := stack[len(stack)-1]
		top.lastGood = end
		if top.kind == '{' {
			top.expectKey = true
		}
	}

	endPrimitive := func(i int) {
		if inPrimitive {
			inPrimitive = false
			completeChild(i)
		}
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
				if len(stack) > 0 {
					top := stack[len(stack)-1]
					if top.kind == '{' && top.expectKey {
						// Key string: the pair is complete only once its
						// value completes.
						top.expectKey = false
					} else {
						completeChild(i + 1)
					}
				}
			}
			continue
		}

		switch ch {
		case '"':
			endPrimitive(i)
			inString = true
		case '{', '[':
			endPrimitive(i)
			stack = append(stack, &container{
				kind:      ch,
				openEnd:   i + 1,
				lastGood:  i + 1,
				expectKey: ch == '{',
			})
		case '}', ']':
			endPrimitive(i)
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
				completeChild(i + 1)
			}
		case ',', ':':
			endPrimitive(i)
		case ' ', '\t', '\n', '\r':
			endPrimitive(i)
		default:
			inPrimitive = true
		}
	}

	if len(stack) == 0 {
		if inString || inPrimitive {
			// Bare truncated scalar at top level; nothing to salvage.
			return text
		}
		return text
	}

	// Incomplete trailing state: cut back to the innermost container that
	// has a complete child, dropping everything opened after it.
	cutDepth := len(stack) - 1
	clean := !inString && !inPrimitive
	for cutDepth >= 0 {
		top := stack[cutDepth]
		if clean && cutDepth == len(stack)-1 && trailingIsClean(text, top.lastGood) {
			break
		}
		if top.lastGood > top.openEnd {
			break
		}
		cutDepth--
	}

	var cut int
	var open []*container
	if cutDepth < 0 {
		cut = stack[0].openEnd
		open = stack[:1]
	} else {
		cut = stack[cutDepth].lastGood
		open = stack[:cutDepth+1]
	}

	var b strings.Builder
	b.WriteString(text[:cut])
	for i := len(open) - 1; i >= 0; i-- {
		if open[i].kind == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// trailingIsClean reports whether everything after lastGood is ignorable
// (whitespace only), meaning the innermost container can close where it
// stands without dropping anything.
func trailingIsClean(text string, from int) bool {
	return strings.TrimSpace(text[from:]) == ""
}
