package ingest_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/crmlens/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSVPadsAndTrims(t *testing.T) {
	in := "\ufeffEmail, Phone ,Company\n" +
		"a@x.com,1234567890,Acme\n" +
		"b@x.com,555\n"
	tb, err := ingest.ReadCSV(strings.NewReader(in), "contacts.csv", ingest.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"Email", "Phone", "Company"}, tb.Header())
	require.Equal(t, 2, tb.Len())
	assert.Equal(t, "Acme", tb.Value(0, "Company"))
	assert.Equal(t, "", tb.Value(1, "Company"))
}

func TestReadCSVErrors(t *testing.T) {
	var pe *ingest.ParseError

	_, err := ingest.ReadCSV(strings.NewReader(""), "empty.csv", ingest.DefaultOptions())
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "empty.csv", pe.Source)

	_, err = ingest.ReadCSV(strings.NewReader("Email,Phone\na,1,extra\n"), "wide.csv", ingest.DefaultOptions())
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)

	_, err = ingest.ReadCSV(strings.NewReader("Email,Phone\na,1\nb,\"2,x\",y\n"), "quoted-wide.csv", ingest.DefaultOptions())
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.Line)
}

func TestReadCSVBareQuotesInField(t *testing.T) {
	in := "Email,Phone,Company\n" +
		"a@x.com,1234567890,Acme \"West\" Inc\n" +
		"b@x.com,555-123-4567,\"Globex, Ltd\"\n"
	tb, err := ingest.ReadCSV(strings.NewReader(in), "crm.csv", ingest.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 2, tb.Len())
	assert.Equal(t, `Acme "West" Inc`, tb.Value(0, "Company"))
	assert.Equal(t, "Globex, Ltd", tb.Value(1, "Company"))
}

func TestReadCSVMaxRowsAndDelimiter(t *testing.T) {
	in := "Email;Phone\na;1\nb;2\nc;3\n"
	opt := ingest.DefaultOptions()
	opt.Delimiter = ';'
	opt.MaxRows = 2
	tb, err := ingest.ReadCSV(strings.NewReader(in), "x.csv", opt)
	require.NoError(t, err)
	assert.Equal(t, 2, tb.Len())

	tsv := "Email\tPhone\na\t1\n"
	tb, err = ingest.ReadCSV(strings.NewReader(tsv), "x.tsv", ingest.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "1", tb.Value(0, "Phone"))
}

func TestReadFileDispatchesByExtension(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "export.csv")
	require.NoError(t, os.WriteFile(p, []byte("Email,Phone,Company\na@x.com,1,Acme\n"), 0o644))

	tb, err := ingest.ReadFile(p, ingest.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, tb.Len())

	_, err = ingest.ReadFile(filepath.Join(dir, "missing.csv"), ingest.DefaultOptions())
	assert.Error(t, err)
}

func writeWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	_, err := f.NewSheet("Contacts")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Contacts", "A1", &[]interface{}{"Email", "Phone", "Company"}))
	require.NoError(t, f.SetSheetRow("Contacts", "A2", &[]interface{}{"a@x.com", "1234567890", "Acme"}))
	require.NoError(t, f.SetSheetRow("Contacts", "A3", &[]interface{}{"b@x.com", "555"}))
	p := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, f.SaveAs(p))
	return p
}

func TestReadXLSXBySheetNameAndIndex(t *testing.T) {
	p := writeWorkbook(t)

	opt := ingest.DefaultOptions()
	opt.SheetName = "contacts"
	tb, err := ingest.ReadFile(p, opt)
	require.NoError(t, err)
	require.Equal(t, 2, tb.Len())
	assert.Equal(t, "1234567890", tb.Value(0, "Phone"))
	assert.Equal(t, "", tb.Value(1, "Company"))

	opt = ingest.DefaultOptions()
	opt.SheetIndex = 2
	tb, err = ingest.ReadFile(p, opt)
	require.NoError(t, err)
	assert.Equal(t, 2, tb.Len())
}

func TestReadXLSXErrors(t *testing.T) {
	p := writeWorkbook(t)
	var pe *ingest.ParseError

	opt := ingest.DefaultOptions()
	opt.SheetName = "Nope"
	_, err := ingest.ReadFile(p, opt)
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "Contacts")

	// Sheet1 exists but is empty.
	_, err = ingest.ReadFile(p, ingest.DefaultOptions())
	require.ErrorAs(t, err, &pe)

	_, err = ingest.Read(strings.NewReader("not a zip"), "bad.xlsx", ingest.DefaultOptions())
	require.ErrorAs(t, err, &pe)
}
