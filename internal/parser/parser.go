// Package parser turns raw upstream payloads (stew-call log tail, XML alarm
// feed, HTML alarm table) into ServiceCallRecords. Parsers never fail: the
// worst case for malformed input is an empty result.
package parser

import (
	"regexp"
	"strings"

	"renaissance-stewcall/internal/extractor"
	"renaissance-stewcall/internal/models"

	"go.uber.org/zap"
)

// Result output of one parse pass
type Result struct {
	Kind    models.SourceKind
	Records []models.ServiceCallRecord
	Acks    []models.AckEvent
	// Skipped notify lines whose inner message matched neither sub-pattern
	Skipped int
}

// Parser bundles the three source parsers
type Parser struct {
	xmlMode XMLMode
	logger  *zap.Logger
}

// NewParser creates a parser; xmlMode selects the XML retention rule
func NewParser(xmlMode XMLMode, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{xmlMode: xmlMode, logger: logger}
}

// Parse runs the parser matching kind. SourceUnknown is resolved by sniffing.
func (p *Parser) Parse(kind models.SourceKind, body string) Result {
	if kind == models.SourceUnknown || kind == "" {
		kind = Detect("", body)
	}
	switch kind {
	case models.SourceXML:
		return Result{Kind: kind, Records: p.ParseXML(body)}
	case models.SourceHTML:
		return Result{Kind: kind, Records: p.ParseHTMLTable(body)}
	default:
		return p.ParseLog(body)
	}
}

var (
	alarmElementRe = regexp.MustCompile(`(?i)<alarm\b`)
	tableElementRe = regexp.MustCompile(`(?i)<table\b`)
)

// Detect picks the parser from the response content type first and the body second
func Detect(contentType, body string) models.SourceKind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "xml"):
		return models.SourceXML
	case strings.Contains(ct, "html"):
		if alarmElementRe.MatchString(body) && !tableElementRe.MatchString(body) {
			return models.SourceXML
		}
		return models.SourceHTML
	case strings.Contains(ct, "text/plain"):
		return models.SourceLog
	}

	switch {
	case alarmElementRe.MatchString(body):
		return models.SourceXML
	case tableElementRe.MatchString(body):
		return models.SourceHTML
	default:
		return models.SourceLog
	}
}

// assignID uses an explicit upstream id when present, a content hash when the
// record carries a timestamp and parse order otherwise.
func assignID(explicit string, order int, rec models.ServiceCallRecord) int64 {
	if id, ok := parseExplicitID(explicit); ok {
		return id
	}
	if rec.Timestamp != "" {
		return extractor.StableID(strings.Join(rec.AffectedIdentifiers, ","), rec.Text, rec.Timestamp)
	}
	return int64(order)
}

func parseExplicitID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 15 {
		return 0, false
	}
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, n > 0
}
