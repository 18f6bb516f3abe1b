package parser

import (
	"io"
	"strings"

	"renaissance-stewcall/internal/extractor"
	"renaissance-stewcall/internal/models"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// logical columns of the alarm table
const (
	colType = iota
	colText
	colStatus
	colAck
	colTimestamp
	colID
	colCount
)

// fallback column indices when the header row is missing or unmatched
var defaultColumns = [colCount]int{colType: 2, colText: 3, colStatus: 4, colAck: 7, colTimestamp: 1, colID: -1}

type tableRow struct {
	header bool
	cells  []string
}

// ParseHTMLTable reads the first <table> of an alarm page. Only rows with
// type "ste" are returned.
func (p *Parser) ParseHTMLTable(doc string) []models.ServiceCallRecord {
	rows := firstTableRows(doc)
	if len(rows) == 0 {
		return nil
	}

	columns := defaultColumns
	start := 0
	if rows[0].header {
		columns = mapHeader(rows[0].cells)
		start = 1
	}

	var out []models.ServiceCallRecord
	for i := start; i < len(rows); i++ {
		cells := rows[i].cells
		if rows[i].header || len(cells) == 0 {
			continue
		}
		rec := models.ServiceCallRecord{
			RawType:   cell(cells, columns[colType]),
			Text:      cell(cells, columns[colText]),
			Status:    models.MapStatus(cell(cells, columns[colStatus])),
			AckBy:     cell(cells, columns[colAck]),
			Timestamp: cell(cells, columns[colTimestamp]),
			Source:    models.SourceHTML,
		}
		if !strings.EqualFold(rec.RawType, "ste") {
			continue
		}
		if rec.Text == "" {
			rec.Text = extractor.CollapseSpaces(strings.Join(cells, " "))
		}
		rec.AffectedIdentifiers = extractor.ExtractIdentifiers(rec.Text)
		rec.ID = assignID(cell(cells, columns[colID]), i-start+1, rec)
		out = append(out, rec)
	}
	return out
}

// mapHeader matches header text by keyword. A field whose header is not
// recognised keeps its fixed fallback index unless another field already
// claimed that column.
func mapHeader(headers []string) [colCount]int {
	cols := [colCount]int{-1, -1, -1, -1, -1, -1}
	found := [colCount]bool{}
	claimed := make(map[int]bool, len(headers))
	for i, h := range headers {
		h = strings.ToLower(h)
		isAck := strings.Contains(h, "ack") || strings.Contains(h, "owner")
		isTime := strings.Contains(h, "time") || strings.Contains(h, "date")
		field := -1
		switch {
		case isAck && isTime:
			// ack time column is not used
			claimed[i] = true
		case !found[colAck] && isAck:
			field = colAck
		case !found[colType] && strings.Contains(h, "type"):
			field = colType
		case !found[colText] && (strings.Contains(h, "description") || strings.Contains(h, "text") || strings.Contains(h, "message")):
			field = colText
		case !found[colStatus] && (strings.Contains(h, "status") || strings.Contains(h, "state")):
			field = colStatus
		case !found[colTimestamp] && isTime:
			field = colTimestamp
		case !found[colID] && (h == "id" || h == "#" || h == "no" || h == "no."):
			field = colID
		}
		if field >= 0 {
			cols[field], found[field] = i, true
			claimed[i] = true
		}
	}
	for field, ok := range found {
		idx := defaultColumns[field]
		if ok || idx < 0 || claimed[idx] {
			continue
		}
		cols[field] = idx
	}
	return cols
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

// firstTableRows tokenizes doc and returns the rows of its first table.
// Nested tables are flattened into their parent's cells.
func firstTableRows(doc string) []tableRow {
	z := html.NewTokenizer(strings.NewReader(doc))

	var (
		rows    []tableRow
		current *tableRow
		cellBuf strings.Builder
		inCell  bool
		depth   int
	)
	flushCell := func() {
		if inCell && current != nil {
			current.cells = append(current.cells, extractor.CollapseSpaces(cellBuf.String()))
		}
		cellBuf.Reset()
		inCell = false
	}
	flushRow := func() {
		flushCell()
		if current != nil && len(current.cells) > 0 {
			rows = append(rows, *current)
		}
		current = nil
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return nil
			}
			flushRow()
			return rows
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Table:
				depth++
			case atom.Tr:
				if depth == 1 {
					flushRow()
					current = &tableRow{}
				}
			case atom.Th, atom.Td:
				if depth == 1 {
					flushCell()
					if current == nil {
						current = &tableRow{}
					}
					inCell = true
					if atom.Lookup(name) == atom.Th {
						current.header = true
					}
				}
			case atom.Br:
				if inCell {
					cellBuf.WriteByte(' ')
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Table:
				depth--
				if depth <= 0 {
					flushRow()
					return rows
				}
			case atom.Tr:
				if depth == 1 {
					flushRow()
				}
			case atom.Th, atom.Td:
				if depth == 1 {
					flushCell()
				}
			}
		case html.TextToken:
			if inCell && depth >= 1 {
				cellBuf.Write(z.Text())
				cellBuf.WriteByte(' ')
			}
		}
	}
}
