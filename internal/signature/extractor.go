// Package signature turns raw log messages into stable grouping keys.
// Variable content (ids, counters, URLs, payload dumps) is scrubbed so two
// occurrences of the same failure collapse onto one signature.
package signature

import (
	"regexp"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/youngsu5582/logsift/internal/utils"
)

const (
	// maxSignatureLen bounds the normalized message half of a signature.
	maxSignatureLen = 80
	// fallbackPrefixLen is how much of an unrecognized line feeds the fallback rule.
	fallbackPrefixLen = 100
)

// DefaultScrubFields are high-cardinality key=value field names whose values
// are replaced during normalization. Callers append their own dialect's
// fields via WithScrubFields.
var DefaultScrubFields = []string{
	"preset", "langCode", "consumer", "name", "desc", "image_file", "prompt",
}

var (
	exceptionWithMsgRE = regexp.MustCompile(`([\w$.]+(?:Exception|Error|Failure|Fault|Throwable))\s*:\s*(.*)`)
	exceptionOnlyRE    = regexp.MustCompile(`([\w$.]+(?:Exception|Error|Failure|Fault|Throwable))\s*$`)
	leveledLineRE      = regexp.MustCompile(`\[(\w+)\s*\]\s+\[[\w$.]+\]\s+(.*)`)

	hexIDRE        = regexp.MustCompile(`\b[0-9a-f]{8,}\b`)
	longNumberRE   = regexp.MustCompile(`\b\d{5,}\b`)
	urlRE          = regexp.MustCompile(`https?://\S+`)
	bracePayloadRE = regexp.MustCompile(`\{[^}]{20,}\}`)
	arrayPayloadRE = regexp.MustCompile(`\[[^\]]{30,}\]`)
	isoTimestampRE = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}[\d.]*`)
)

// stackContinuationPrefixes open stack-trace continuation lines. Such lines
// carry no standalone signature and are excluded from grouping entirely.
var stackContinuationPrefixes = []string{"at ", "Caused by:", "..."}

// alertLevels are the only bracketed levels treated as error signatures.
// Other levels fall through to the generic fallback rule.
var alertLevels = map[string]struct{}{"ERROR": {}, "WARN": {}, "FATAL": {}}

// rule pairs a matcher with the normalizer applied to its captures. Rules are
// evaluated in order, first match wins; match reports ok=false to pass the
// line to the next rule.
type rule struct {
	name  string
	match func(e *Extractor, line string) (sig string, ok bool)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithScrubFields appends field names whose key=value/key: value pairs are
// collapsed to key={val} during normalization.
func WithScrubFields(fields ...string) Option {
	return func(e *Extractor) {
		e.scrubFields = append(e.scrubFields, fields...)
	}
}

// Extractor derives signatures via an ordered rule table. It is a pure
// function of its input after construction and safe for concurrent use.
type Extractor struct {
	scrubFields []string
	scrubKVRE   *regexp.Regexp
	rules       []rule
	parsers     fastjson.ParserPool
}

// New builds an Extractor with the default rule table.
func New(opts ...Option) *Extractor {
	e := &Extractor{scrubFields: append([]string(nil), DefaultScrubFields...)}
	for _, opt := range opts {
		opt(e)
	}

	escaped := make([]string, 0, len(e.scrubFields))
	for _, f := range e.scrubFields {
		escaped = append(escaped, regexp.QuoteMeta(f))
	}
	e.scrubKVRE = regexp.MustCompile(`(` + strings.Join(escaped, "|") + `)[=:]\s*\S+`)

	e.rules = []rule{
		{name: "exception-with-message", match: matchExceptionWithMessage},
		{name: "exception-class-only", match: matchExceptionOnly},
		{name: "leveled-log-line", match: matchLeveledLine},
		{name: "fallback", match: matchFallback},
	}
	return e
}

// Extract returns the grouping signature for a raw log message. ok is false
// for empty messages and stack-trace continuation lines, which contribute
// nothing on their own.
func (e *Extractor) Extract(message string) (string, bool) {
	line := strings.TrimSpace(message)
	if line == "" {
		return "", false
	}

	for _, prefix := range stackContinuationPrefixes {
		if strings.HasPrefix(line, prefix) {
			return "", false
		}
	}

	line = e.unwrapJSONEnvelope(line)

	for _, r := range e.rules {
		if sig, ok := r.match(e, line); ok {
			return sig, true
		}
	}
	// Unreachable: the fallback rule matches everything.
	return "", false
}

// unwrapJSONEnvelope extracts the human message out of structured JSON log
// lines ({"level":"ERROR","message":"..."}) so the rule table sees the same
// text a plain-format logger would have emitted. Non-JSON lines pass through.
func (e *Extractor) unwrapJSONEnvelope(line string) string {
	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
		return line
	}
	parser := e.parsers.Get()
	defer e.parsers.Put(parser)

	v, err := parser.Parse(line)
	if err != nil || v.Type() != fastjson.TypeObject {
		return line
	}
	var msg []byte
	for _, key := range []string{"message", "msg", "error"} {
		if msg = v.GetStringBytes(key); msg != nil {
			break
		}
	}
	if len(msg) == 0 {
		return line
	}
	inner := strings.TrimSpace(string(msg))
	if inner == "" {
		return line
	}
	if level := strings.ToUpper(string(v.GetStringBytes("level"))); level != "" {
		if _, ok := alertLevels[level]; ok && !exceptionWithMsgRE.MatchString(inner) {
			return "[" + level + "] [json] " + inner
		}
	}
	return inner
}

func matchExceptionWithMessage(e *Extractor, line string) (string, bool) {
	m := exceptionWithMsgRE.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	class := shortClassName(m[1])
	msg := e.normalizeMessage(strings.TrimSpace(m[2]))
	if msg == "" {
		return class, true
	}
	return class + ": " + msg, true
}

func matchExceptionOnly(_ *Extractor, line string) (string, bool) {
	m := exceptionOnlyRE.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return shortClassName(m[1]), true
}

func matchLeveledLine(e *Extractor, line string) (string, bool) {
	m := leveledLineRE.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	level := strings.TrimSpace(m[1])
	if _, ok := alertLevels[level]; !ok {
		// Not an error level: let the fallback rule keep the line instead
		// of dropping data.
		return "", false
	}
	return "[" + level + "] " + e.normalizeMessage(strings.TrimSpace(m[2])), true
}

func matchFallback(_ *Extractor, line string) (string, bool) {
	line = utils.Truncate(line, fallbackPrefixLen)
	line = hexIDRE.ReplaceAllString(line, "{id}")
	line = isoTimestampRE.ReplaceAllString(line, "{ts}")
	line = longNumberRE.ReplaceAllString(line, "{num}")
	return line, true
}

// normalizeMessage scrubs variable substrings from the message half of a
// signature and truncates the result.
func (e *Extractor) normalizeMessage(msg string) string {
	msg = hexIDRE.ReplaceAllString(msg, "{id}")
	msg = longNumberRE.ReplaceAllString(msg, "{num}")
	msg = urlRE.ReplaceAllString(msg, "{url}")
	msg = e.scrubKVRE.ReplaceAllString(msg, "${1}={val}")
	msg = bracePayloadRE.ReplaceAllString(msg, "{...}")
	msg = arrayPayloadRE.ReplaceAllString(msg, "[...]")
	return utils.Truncate(msg, maxSignatureLen)
}

func shortClassName(path string) string {
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
