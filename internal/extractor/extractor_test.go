package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractField_TagThenAttribute(t *testing.T) {
	block := `<alarm id="7" status="active"><Type> STE </Type><message></message><text>Service   call</text></alarm>`

	assert.Equal(t, "STE", ExtractField(block, "type"))
	// empty <message> is skipped in favour of the next candidate
	assert.Equal(t, "Service call", ExtractField(block, "message", "text"))
	assert.Equal(t, "active", ExtractField(block, "state", "status"))
	assert.Equal(t, "7", ExtractField(block, "id"))
}

func TestExtractField_NoMatch(t *testing.T) {
	assert.Equal(t, "", ExtractField("", "type"))
	assert.Equal(t, "", ExtractField("<alarm/>", "type", ""))
	assert.Equal(t, "", ExtractField("<<<>>> not xml at all", "type"))
	assert.Equal(t, "", ExtractField(`<typeName>x</typeName>`, "type"))
}

func TestExtractField_SingleQuotesEntitiesAndCDATA(t *testing.T) {
	assert.Equal(t, "Bob & Co", ExtractField(`<alarm ackBy='Bob &amp; Co'/>`, "ackby"))
	assert.Equal(t, "G2 505 cabin", ExtractField(`<text><![CDATA[G2 505 cabin]]></text>`, "text"))
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "STE Service call on DECK 3", StripTags("<alarm><type>STE</type>\n<x>Service call on DECK 3</x></alarm>"))
	assert.Equal(t, "", StripTags("<a></a>"))
}

func TestExtractIdentifiers(t *testing.T) {
	ids := ExtractIdentifiers("G2 505 Renaissance on AV ROOM 232, also P1 and C3 and G505 and G2  505")
	assert.Equal(t, []string{"G2 505", "P1", "C3"}, ids)
}

func TestExtractIdentifiers_CabinOnly(t *testing.T) {
	assert.Equal(t, []string{"G404"}, ExtractIdentifiers("Housekeeping G404"))
}

func TestExtractIdentifiers_IgnoresEmbeddedCodes(t *testing.T) {
	assert.Empty(t, ExtractIdentifiers("C28StewCallInterface Port 28007"))
	assert.Nil(t, ExtractIdentifiers(""))
}

func TestNormalizeTimestamp(t *testing.T) {
	ts, ok := NormalizeTimestamp("20250808:090430")
	assert.True(t, ok)
	assert.True(t, ts.Equal(time.Date(2025, 8, 8, 9, 4, 30, 0, time.UTC)))

	_, ok = NormalizeTimestamp("notadate")
	assert.False(t, ok)
	_, ok = NormalizeTimestamp("")
	assert.False(t, ok)

	ts, ok = NormalizeTimestamp("2025-08-08 09:04:30")
	assert.True(t, ok)
	assert.Equal(t, 9, ts.Hour())
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "2025-08-08T09:04:30Z", FormatTimestamp("20250808:090430"))
	assert.Equal(t, "notadate", FormatTimestamp(" notadate "))
}

func TestNormalizeTimestamp_ShipZone(t *testing.T) {
	SetShipZone(time.FixedZone("CEST", 2*60*60))
	t.Cleanup(func() { SetShipZone(nil) })

	ts, ok := NormalizeTimestamp("20250808:090430")
	assert.True(t, ok)
	assert.Equal(t, 7, ts.UTC().Hour())
	assert.Equal(t, "2025-08-08T09:04:30+02:00", FormatTimestamp("20250808:090430"))

	// explicit offsets are kept
	ts, ok = NormalizeTimestamp("2025-08-08T09:04:30Z")
	assert.True(t, ok)
	assert.Equal(t, 9, ts.UTC().Hour())
}

func TestStableID(t *testing.T) {
	a := StableID("G2 505", "AV ROOM 232", "20250808:090430")
	b := StableID("G2 505", "AV ROOM 232", "20250808:090430")
	c := StableID("G2 505", "AV ROOM 233", "20250808:090430")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Greater(t, a, int64(0))
	assert.Less(t, a, int64(1)<<53)
	assert.NotEqual(t, StableID("ab", "c"), StableID("a", "bc"))
}
