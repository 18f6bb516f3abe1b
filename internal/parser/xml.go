package parser

import (
	"regexp"
	"strings"

	"renaissance-stewcall/internal/extractor"
	"renaissance-stewcall/internal/models"

	"go.uber.org/zap"
)

// XMLMode decides which alarm blocks count as service calls
type XMLMode int

const (
	// XMLTypeOnly keeps blocks whose type is "ste"
	XMLTypeOnly XMLMode = iota
	// XMLServiceLike also keeps blocks whose text or identifiers look like a
	// service, housekeeping or maintenance call
	XMLServiceLike
)

// candidate element/attribute names per logical field, most specific first
var (
	typeFields      = []string{"type", "alarmType", "alarm_type", "category", "kind"}
	textFields      = []string{"text", "message", "description", "desc", "msg", "name"}
	statusFields    = []string{"status", "state", "alarmStatus", "alarm_status"}
	ackByFields     = []string{"ackBy", "ack_by", "acknowledgedBy", "acknowledged_by", "ackUser", "owner"}
	ackTimeFields   = []string{"ackTime", "ack_time", "acknowledgedAt", "acknowledged_at", "acknowledgeTime"}
	timestampFields = []string{"timestamp", "time", "dateTime", "datetime", "date", "created"}
	idFields        = []string{"id", "alarmId", "alarm_id", "number"}
)

var (
	selfClosingAlarmRe = regexp.MustCompile(`(?is)<alarm\b[^>]*?/>`)
	blockAlarmRe       = regexp.MustCompile(`(?is)<alarm\b[^>]*>.*?</alarm\s*>`)

	serviceKeywordRe = regexp.MustCompile(`(?i)\b(service|stew|steward|housekeeping|maintenance|turndown|butler)\b`)
)

// ParseXML parses <alarm>...</alarm> blocks followed by self-closing <alarm/>
// elements. Blocks that do not look like stew calls are dropped silently.
func (p *Parser) ParseXML(blob string) []models.ServiceCallRecord {
	if blob == "" {
		return nil
	}

	selfClosing := selfClosingAlarmRe.FindAllString(blob, -1)
	remainder := selfClosingAlarmRe.ReplaceAllString(blob, "")
	blocks := append(blockAlarmRe.FindAllString(remainder, -1), selfClosing...)

	var out []models.ServiceCallRecord
	dropped := 0
	for i, block := range blocks {
		rec, explicitID := recordFromBlock(block)
		if !p.keepXML(rec) {
			dropped++
			continue
		}
		rec.ID = assignID(explicitID, i+1, rec)
		rec.Source = models.SourceXML
		out = append(out, rec)
	}

	p.logger.Debug("Parsed XML alarm feed",
		zap.Int("alarm_blocks", len(blocks)),
		zap.Int("service_calls", len(out)),
		zap.Int("dropped", dropped),
	)
	return out
}

func recordFromBlock(block string) (models.ServiceCallRecord, string) {
	text := extractor.ExtractField(block, textFields...)
	if text == "" {
		text = extractor.StripTags(block)
	}
	rec := models.ServiceCallRecord{
		RawType:   extractor.ExtractField(block, typeFields...),
		Text:      text,
		Status:    models.MapStatus(extractor.ExtractField(block, statusFields...)),
		AckBy:     extractor.ExtractField(block, ackByFields...),
		AckTime:   extractor.ExtractField(block, ackTimeFields...),
		Timestamp: extractor.ExtractField(block, timestampFields...),
	}
	rec.AffectedIdentifiers = extractor.ExtractIdentifiers(rec.Text)
	return rec, extractor.ExtractField(block, idFields...)
}

func (p *Parser) keepXML(rec models.ServiceCallRecord) bool {
	if strings.EqualFold(rec.RawType, "ste") {
		return true
	}
	if p.xmlMode != XMLServiceLike {
		return false
	}
	return serviceKeywordRe.MatchString(rec.Text) || len(rec.AffectedIdentifiers) > 0
}
