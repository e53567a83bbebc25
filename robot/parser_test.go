package robot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const codecoSample = "UNB+UNOA:2+TERMINAL+LINE+240115:0930+1'\n" +
	"UNH+1+CODECO:D:95B:UN'\n" +
	"BGM+34+DOC0001+9'\n" +
	"EQD+CN+MSKU1234567+4500:102:5++2+5'\n" +
	"DTM+132:202401150930:203'\n" +
	"TDT+20+V123+++MAERSK:172:20+++X:146::MAERSK SEMARANG'\n" +
	"RFF+BN:BOOK12345'\n" +
	"MEA+AAE+G+KGM:24000'\n" +
	"SEL+ML123456'\n" +
	"FTX+AAI+++Handle with care'\n" +
	"UNT+10+1'\n" +
	"UNH+2+CODECO:D:95B:UN'\n" +
	"BGM+36+DOC0002+9'\n" +
	"EQD+CN+MSKU7654321+4500:102:5++2+4'\n" +
	"DTM+133:20240116:102'\n" +
	"TDT+1++++TRK001:146'\n" +
	"UNT+6+2'\n"

func TestParseTransactionsCodeco(t *testing.T) {
	txs := ParseTransactions(codecoSample)
	require.Len(t, txs, 2)

	in := txs[0]
	require.Equal(t, "CODECO", in.Type)
	require.Equal(t, "Gate In (Entrada)", in.Function)
	require.Equal(t, "MSKU1234567", in.Container)
	require.Equal(t, "4500", in.ISOCode)
	require.Equal(t, "Full (Cheio)", in.Status)
	require.Equal(t, "15/01/2024 09:30", in.Date)
	require.Equal(t, "Vessel: MAERSK SEMARANG", in.Transport)
	require.Equal(t, "BOOK12345", in.Booking)
	require.Equal(t, "24000 KG", in.Weight)
	require.Equal(t, []string{"ML123456"}, in.Seals)
	require.Equal(t, []string{"Handle with care"}, in.Remarks)

	out := txs[1]
	require.Equal(t, "Gate Out (Saída)", out.Function)
	require.Equal(t, "MSKU7654321", out.Container)
	require.Equal(t, "Empty (Vazio)", out.Status)
	require.Equal(t, "16/01/2024", out.Date)
	require.Equal(t, "Truck: TRK001", out.Transport)
	// Nothing from the first block may leak into the second.
	require.Equal(t, "N/A", out.Booking)
	require.Equal(t, "N/A", out.Weight)
	require.Empty(t, out.Seals)
}

func TestParseTransactionsCoarri(t *testing.T) {
	content := "UNH+1+COARRI:D:95B:UN'BGM+46+D1+9'EQD+CN+TCLU0000001+2200::5++2+5'UNT+4+1'" +
		"UNH+2+COARRI:D:95B:UN'BGM+44+D2+9'UNT+3+2'" +
		"UNH+3+COARRI:D:95B:UN'BGM+98+D3+9'UNT+3+3'"
	txs := ParseTransactions(content)
	require.Len(t, txs, 3)
	require.Equal(t, "Discharge (Descarga)", txs[0].Function)
	require.Equal(t, "Load (Embarque)", txs[1].Function)
	require.Equal(t, "Report (98)", txs[2].Function)
}

func TestParseTransactionsFunctionFallbacks(t *testing.T) {
	txs := ParseTransactions("UNH+1+CODECO:D:95B:UN'BGM+270+D+9'UNT+3+1'" +
		"UNH+2+CODECO:D:95B:UN'BGM+99+D+9'UNT+3+2'")
	require.Len(t, txs, 2)
	require.Equal(t, "Status Report (270)", txs[0].Function)
	require.Equal(t, "Code 99", txs[1].Function)
}

func TestParseTransactionsDatePreference(t *testing.T) {
	// A qualifier 203 timestamp replaces an earlier event date.
	txs := ParseTransactions("UNH+1+CODECO:D:95B:UN'DTM+132:20240110:102'DTM+203:202401111200:203'UNT+4+1'")
	require.Len(t, txs, 1)
	require.Equal(t, "11/01/2024 12:00", txs[0].Date)

	// Irrelevant qualifiers are ignored outright.
	txs = ParseTransactions("UNH+1+CODECO:D:95B:UN'DTM+137:202401111200:203'UNT+3+1'")
	require.Equal(t, "N/A", txs[0].Date)
}

func TestParseTransactionsInvalidDate(t *testing.T) {
	txs := ParseTransactions("UNH+1+CODECO:D:95B:UN'DTM+132:NOTADATE:203'UNT+3+1'")
	require.Len(t, txs, 1)
	require.Equal(t, "Invalid Date", txs[0].Date)
}

func TestParseTransactionsVoyageAndGenset(t *testing.T) {
	txs := ParseTransactions("UNH+1+COARRI:D:95B:UN'RFF+VON:0123W'EQA+RG+GEN42'TDT+10+++++++X:146::FEEDER ONE'UNT+5+1'")
	require.Len(t, txs, 1)
	require.Equal(t, "Voyage: 0123W", txs[0].Booking)
	require.Equal(t, "RG: GEN42", txs[0].Genset)
	require.Equal(t, "Vessel (Feeder): FEEDER ONE", txs[0].Transport)
}

func TestParseTransactionsIgnoresEnvelopeAndNoise(t *testing.T) {
	require.Empty(t, ParseTransactions("this is not an EDI file at all"))
	require.Empty(t, ParseTransactions(""))
	// A BGM outside any message block is dropped.
	require.Empty(t, ParseTransactions("UNB+UNOA:2+A+B+240101:0000+1'BGM+34+D+9'UNZ+1+1'"))
}

func TestExtractContainers(t *testing.T) {
	units := ExtractContainers(codecoSample)
	require.Equal(t, []string{"MSKU1234567", "MSKU7654321"}, units)

	// Repeats collapse, blocks without equipment contribute nothing.
	dup := "UNH+1+CODECO:D:95B:UN'EQD+CN+ABCU1111111'UNT+3+1'" +
		"UNH+2+CODECO:D:95B:UN'EQD+CN+ABCU1111111'UNT+3+2'" +
		"UNH+3+CODECO:D:95B:UN'BGM+34+D+9'UNT+3+3'"
	require.Equal(t, []string{"ABCU1111111"}, ExtractContainers(dup))

	require.Empty(t, ExtractContainers("plain text"))
}

func TestExtractEventDate(t *testing.T) {
	got := ExtractEventDate(codecoSample)
	require.NotNil(t, got)
	require.Equal(t, time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC), *got)

	require.Nil(t, ExtractEventDate("no dates here"))
	require.Nil(t, ExtractEventDate("UNH+1+CODECO:D:95B:UN'DTM+132:NOTADATE:203'UNT+3+1'"))

	// Qualifier 203 wins; another qualifier carrying the 203 format does not
	// displace it.
	mixed := "UNH+1+CODECO:D:95B:UN'" +
		"DTM+203:202401150930:203'" +
		"DTM+7:202402201200:203'" +
		"UNT+4+1'"
	got = ExtractEventDate(mixed)
	require.NotNil(t, got)
	require.Equal(t, time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC), *got)
}
