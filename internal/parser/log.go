package parser

import (
	"regexp"
	"strconv"
	"strings"

	"renaissance-stewcall/internal/extractor"
	"renaissance-stewcall/internal/models"

	"go.uber.org/zap"
)

var (
	// 20250808:090430 or 2025-08-08 09:04:30 at the start of a line, optionally bracketed
	lineTimestampRe = regexp.MustCompile(`^\s*\[?(\d{8}:\d{6}|\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2})\]?`)

	// alarmAcknowledge(1234, ACK01, "Chief Stew")
	ackCallRe = regexp.MustCompile(`(?i)alarm\s*acknowledge\s*\(\s*(\d+)\s*,\s*"?([\w-]+)"?\s*,\s*"?([^")]*?)"?\s*\)`)
	// Alarm Acknowledge id=1234 code=ACK01 by=Chief Stew
	ackKVRe = regexp.MustCompile(`(?i)alarm\s*acknowledge\b.*?\bid\s*[=:]\s*(\d+).*?\bcode\s*[=:]\s*([\w-]+).*?\bby\s*[=:]\s*"?([^"]+?)"?\s*$`)

	// C28StewCallInterface Port 28007 Notify of other STE: (G2 505 Renaissance on AV ROOM 232)
	notifyRe = regexp.MustCompile(`(?i)StewCallInterface\s+Port\s+(\d+)\s+Notify\s+of\s+[^:]*:\s*\((.*)\)`)

	guestInnerRe = regexp.MustCompile(`^(G[1-9][- ]?\d{3})\b.*?\b(?i:on)\s+(.+)$`)
	ownerInnerRe = regexp.MustCompile(`^([PC][1-9])\b.*?\b(?i:on)\s+(.+)$`)
)

// ParseLog parses a raw stew-call log tail. Acknowledge lines become AckEvents,
// notify lines become records. The same call is broadcast on several ports;
// only the first (wristband, location) occurrence in a pass is kept.
func (p *Parser) ParseLog(text string) Result {
	res := Result{Kind: models.SourceLog}
	if text == "" {
		return res
	}

	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		stamp := lineTimestamp(line)

		if ack, ok := parseAckLine(line, stamp); ok {
			res.Acks = append(res.Acks, ack)
			continue
		}

		m := notifyRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		port, _ := strconv.Atoi(m[1])
		inner := extractor.CollapseSpaces(m[2])

		wristband, location, ok := parseNotifyInner(inner)
		if !ok {
			res.Skipped++
			p.logger.Debug("Unrecognised stew call message",
				zap.Int("port", port),
				zap.String("message", inner),
			)
			continue
		}

		key := wristband + "|" + strings.ToUpper(location)
		if seen[key] {
			continue
		}
		seen[key] = true

		res.Records = append(res.Records, models.ServiceCallRecord{
			ID:                  extractor.StableID(wristband, location, stamp),
			Text:                inner,
			AffectedIdentifiers: []string{wristband},
			Status:              models.StatusSentToRadios,
			Timestamp:           stamp,
			Location:            location,
			Port:                port,
			RawType:             "STE",
			Source:              models.SourceLog,
		})
	}

	if res.Skipped > 0 {
		p.logger.Warn("Skipped stew call lines without wristband/location",
			zap.Int("skipped", res.Skipped),
		)
	}
	return res
}

func lineTimestamp(line string) string {
	if m := lineTimestampRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

func parseAckLine(line, stamp string) (models.AckEvent, bool) {
	m := ackCallRe.FindStringSubmatch(line)
	if m == nil {
		m = ackKVRe.FindStringSubmatch(line)
	}
	if m == nil {
		return models.AckEvent{}, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return models.AckEvent{}, false
	}
	return models.AckEvent{
		AlarmID: id,
		AckCode: m[2],
		AckBy:   extractor.CollapseSpaces(m[3]),
		AckTime: stamp,
	}, true
}

// parseNotifyInner guest form "G2 505 <name> on LOCATION", owner/child form
// "P1 <name> on LOCATION"
func parseNotifyInner(inner string) (wristband, location string, ok bool) {
	for _, re := range []*regexp.Regexp{guestInnerRe, ownerInnerRe} {
		if m := re.FindStringSubmatch(inner); m != nil {
			loc := strings.TrimSpace(m[2])
			if loc == "" {
				continue
			}
			return extractor.CollapseSpaces(m[1]), loc, true
		}
	}
	return "", "", false
}
