package x12parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isaSegment builds a fixed-length ISA segment (106 characters including the
// terminator) using the given element separator and segment terminator.
func isaSegment(sep, term string) string {
	fields := []string{
		"ISA", "00", strings.Repeat(" ", 10), "00", strings.Repeat(" ", 10),
		"ZZ", fmt.Sprintf("%-15s", "SENDER"), "ZZ", fmt.Sprintf("%-15s", "RECEIVER"),
		"240101", "1200", "U", "00401", "000000001", "0", "P", ">",
	}
	return strings.Join(fields, sep) + term
}

func sample315(sep, term string) string {
	segs := []string{
		"GS*QO*SENDER*RECEIVER*20240101*1200*1*X*004010",
		"ST*315*0001",
		"B4***VA*20240101*1200**MSCU*1234567*E*4500*USNYC*UN",
		"N9*BM*BOOK1",
		"N9*BN*BN1*",
		"Q2*9123456*US",
		"R4*1*UN*USNYC*NEW YORK",
		"R4*5*UN*USLAX*LOS ANGELES",
		"SE*8*0001",
		"ZZ*orphan",
		"ST*315*0002",
		"B4***AE*20240102*0800",
		"SE*3*0002",
		"GE*2*1",
		"IEA*1*000000001",
	}
	body := strings.ReplaceAll(strings.Join(segs, term+"\r\n"), "*", sep)
	return isaSegment(sep, term) + "\n" + body + term
}

func TestDetectDelimitersFromISAOffsets(t *testing.T) {
	content := isaSegment("*", "~")
	require.Len(t, content, 106)
	require.Equal(t, "~", content[105:106])

	d, err := DetectDelimiters(content)
	require.NoError(t, err)
	assert.Equal(t, "*", d.ElementSeparator)
	assert.Equal(t, "~", d.SegmentTerminator)
}

func TestDetectDelimitersDefaultsTerminatorWhenShort(t *testing.T) {
	d, err := DetectDelimiters("ISA|00|")
	require.NoError(t, err)
	assert.Equal(t, "|", d.ElementSeparator)
	assert.Equal(t, DefaultSegmentTerminator, d.SegmentTerminator)
}

func TestParseRejectsTooShortContent(t *testing.T) {
	_, err := Parse("ISA")
	require.Error(t, err)

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 3, fe.Length)
}

func TestParseBuildsTree(t *testing.T) {
	root, err := Parse(sample315("*", "~"))
	require.NoError(t, err)

	env := root.Get("envelope")
	assert.Equal(t, []string{"ISA", "GS", "GE", "IEA"}, env.Keys())
	assert.Equal(t, "SENDER", env.Path("ISA", "06").Text())
	assert.Equal(t, "QO", env.Path("GS", "01").Text())

	txs := root.Get("transactions")
	require.Equal(t, 2, txs.Len())

	meta := root.Get("_metadata")
	assert.Equal(t, "2", meta.Get("transactionCount").Text())
	assert.Equal(t, "*", meta.Get("elementSeparator").Text())
	assert.Equal(t, "~", meta.Get("segmentTerminator").Text())

	first := txs.Index(0)
	assert.Equal(t, []string{"ST", "B4", "N9", "Q2", "R4", "SE"}, first.Keys())
	assert.Equal(t, "0001", first.Path("ST", "02").Text())
	assert.Equal(t, "VA", first.Path("B4", "03").Text())
	assert.Equal(t, "", first.Path("B4", "01").Text())
	assert.NotNil(t, first.Path("B4", "01"))
}

func TestParseCountsTransactionsPerSTSEPair(t *testing.T) {
	content := sample315("*", "~")
	root, err := Parse(content)
	require.NoError(t, err)

	flat := strings.NewReplacer("\r", "", "\n", "").Replace(content)
	pairs := strings.Count(flat, "~ST*")
	require.Equal(t, 2, pairs)
	assert.Equal(t, pairs, root.Get("transactions").Len())
}

func TestParsePromotesRepeatingSegments(t *testing.T) {
	root, err := Parse(sample315("*", "~"))
	require.NoError(t, err)

	first := root.Get("transactions").Index(0)
	n9 := first.Get("N9")
	require.True(t, n9.IsArray())
	require.Equal(t, 2, n9.Len())
	assert.Equal(t, "BM", n9.Index(0).Get("01").Text())
	assert.Equal(t, "BN1", n9.Index(1).Get("02").Text())

	// trailing empty element is preserved
	assert.True(t, n9.Index(1).Has("03"))
	assert.Equal(t, "", n9.Index(1).Get("03").Text())

	q2 := first.Get("Q2")
	assert.True(t, q2.IsObject())
}

func TestParseDropsSegmentsOutsideTransactions(t *testing.T) {
	root, err := Parse(sample315("*", "~"))
	require.NoError(t, err)

	for _, tx := range root.Get("transactions").Items() {
		assert.False(t, tx.Has("ZZ"))
	}
	assert.False(t, root.Get("envelope").Has("ZZ"))
}

func TestParseHonorsCustomDelimiters(t *testing.T) {
	root, err := Parse(sample315("|", "!"))
	require.NoError(t, err)

	txs := root.Get("transactions")
	require.Equal(t, 2, txs.Len())
	assert.Equal(t, "USNYC", txs.Index(0).Get("R4").Index(0).Get("03").Text())
	assert.Equal(t, "|", root.Path("_metadata", "elementSeparator").Text())
	assert.Equal(t, "!", root.Path("_metadata", "segmentTerminator").Text())
}

func TestParseNewlineTerminator(t *testing.T) {
	content := isaSegment("*", "\n") + "ST*315*0001\nB4***VA\nSE*3*0001\n"
	root, err := Parse(content)
	require.NoError(t, err)

	txs := root.Get("transactions")
	require.Equal(t, 1, txs.Len())
	assert.Equal(t, "VA", txs.Index(0).Path("B4", "03").Text())
}

func TestParseDiscardsUnclosedTransaction(t *testing.T) {
	content := isaSegment("*", "~") + "ST*315*0001~B4***VA~"
	root, err := Parse(content)
	require.NoError(t, err)
	assert.Equal(t, 0, root.Get("transactions").Len())
}
