package parser

import (
	"testing"

	"renaissance-stewcall/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHTMLTable_HeaderMapping(t *testing.T) {
	doc := `<html><body><h1>Alarms</h1>
<table>
  <tr><th>Time</th><th>Type</th><th>Description</th><th>Status</th><th>Ack Time</th><th>Acknowledged By</th></tr>
  <tr><td>20250808:090430</td><td>STE</td><td>G2 505 on AV ROOM 232</td><td>Active</td><td></td><td></td></tr>
  <tr><td>20250808:090500</td><td>FIRE</td><td>Galley</td><td>Active</td><td></td><td></td></tr>
  <tr><td>20250808:091000</td><td>ste</td><td>P1 &amp; C2 on MASTER</td><td>Acknowledged</td><td>09:12</td><td>Chief Stew</td></tr>
</table>
<table><tr><td>ignored</td></tr></table>
</body></html>`

	recs := newTestParser().ParseHTMLTable(doc)
	require.Len(t, recs, 2)

	assert.Equal(t, "G2 505 on AV ROOM 232", recs[0].Text)
	assert.Equal(t, []string{"G2 505"}, recs[0].AffectedIdentifiers)
	assert.Equal(t, models.StatusSentToRadios, recs[0].Status)
	assert.Equal(t, "20250808:090430", recs[0].Timestamp)

	assert.Equal(t, "P1 & C2 on MASTER", recs[1].Text)
	assert.Equal(t, []string{"P1", "C2"}, recs[1].AffectedIdentifiers)
	assert.Equal(t, models.StatusAccepted, recs[1].Status)
	assert.Equal(t, "Chief Stew", recs[1].AckBy)
	assert.Equal(t, models.SourceHTML, recs[1].Source)
}

func TestParseHTMLTable_FallbackIndices(t *testing.T) {
	// no header row: timestamp 1, type 2, text 3, status 4, ack 7
	doc := `<table>
<tr><td>1</td><td>20250808:090430</td><td>STE</td><td>G4 210 on SPA</td><td>accepted</td><td></td><td></td><td>Mia</td></tr>
<tr><td>2</td><td>20250808:090431</td><td>GEN</td><td>Door open</td><td>active</td></tr>
</table>`
	recs := newTestParser().ParseHTMLTable(doc)
	require.Len(t, recs, 1)
	assert.Equal(t, "G4 210 on SPA", recs[0].Text)
	assert.Equal(t, models.StatusAccepted, recs[0].Status)
	assert.Equal(t, "Mia", recs[0].AckBy)
	assert.Equal(t, "20250808:090430", recs[0].Timestamp)
}

func TestParseHTMLTable_PartialHeaderKeepsFallbackColumns(t *testing.T) {
	// "Condition" and "Handled" match no keyword: status and ack stay on 4 and 7
	doc := `<table>
<tr><th>Time</th><th>Zone</th><th>Type</th><th>Description</th><th>Condition</th><th>Deck</th><th>Panel</th><th>Handled</th></tr>
<tr><td>20250808:090430</td><td>AFT</td><td>STE</td><td>G4 210 on SPA</td><td>accepted</td><td>2</td><td>P3</td><td>Anna</td></tr>
</table>`
	recs := newTestParser().ParseHTMLTable(doc)
	require.Len(t, recs, 1)
	assert.Equal(t, "G4 210 on SPA", recs[0].Text)
	assert.Equal(t, models.StatusAccepted, recs[0].Status)
	assert.Equal(t, "Anna", recs[0].AckBy)
	assert.Equal(t, "20250808:090430", recs[0].Timestamp)
}

func TestMapHeader_FallbackSkipsClaimedColumn(t *testing.T) {
	// "Details" is unmatched, but the fallback text index 3 already holds Status
	cols := mapHeader([]string{"ID", "Time", "Type", "Status", "Details"})
	assert.Equal(t, 3, cols[colStatus])
	assert.Equal(t, -1, cols[colText])
	assert.Equal(t, 0, cols[colID])
	assert.Equal(t, 7, cols[colAck])
}

func TestParseHTMLTable_NoTable(t *testing.T) {
	p := newTestParser()
	assert.Empty(t, p.ParseHTMLTable(""))
	assert.Empty(t, p.ParseHTMLTable("<html><p>maintenance</p></html>"))
	assert.Empty(t, p.ParseHTMLTable("<table><tr><td>STE"))
}

func TestParseHTMLTable_Idempotent(t *testing.T) {
	p := newTestParser()
	doc := `<table><tr><th>Type</th><th>Text</th></tr><tr><td>STE</td><td>C1 on POOL</td></tr></table>`
	first := p.ParseHTMLTable(doc)
	require.Len(t, first, 1)
	assert.Equal(t, first, p.ParseHTMLTable(doc))
	assert.Equal(t, int64(1), first[0].ID)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, models.SourceXML, Detect("application/xml; charset=utf-8", ""))
	assert.Equal(t, models.SourceHTML, Detect("text/html", "<table></table>"))
	assert.Equal(t, models.SourceXML, Detect("text/html", "<alarm/>"))
	assert.Equal(t, models.SourceLog, Detect("text/plain", "<alarm/>"))
	assert.Equal(t, models.SourceXML, Detect("", "<alarms><alarm/></alarms>"))
	assert.Equal(t, models.SourceHTML, Detect("", "<TABLE>"))
	assert.Equal(t, models.SourceLog, Detect("", "C28StewCallInterface Port 1"))
}

func TestParse_Dispatch(t *testing.T) {
	p := newTestParser()
	res := p.Parse(models.SourceUnknown, `<alarm><type>STE</type><text>Service call</text></alarm>`)
	assert.Equal(t, models.SourceXML, res.Kind)
	assert.Len(t, res.Records, 1)

	res = p.Parse(models.SourceLog, redundantBroadcast)
	assert.Equal(t, models.SourceLog, res.Kind)
	assert.Len(t, res.Records, 1)
}
