package leadio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-router/internal/model"
)

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFor("leads.json"))
	assert.Equal(t, FormatCSV, FormatFor("LEADS.CSV"))
	assert.Equal(t, FormatJSONL, FormatFor("leads.jsonl"))
	assert.Equal(t, FormatJSONL, FormatFor("leads.ndjson"))
}

func TestRead_JSONLines(t *testing.T) {
	input := `{"first_name":"Dana","requested_amount":1000}

{"first_name":"Sam","requested_amount":500}
`
	leads, err := Read(context.Background(), strings.NewReader(input), FormatJSONL)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "Dana", leads[0].FirstName)
	assert.Equal(t, 500, leads[1].RequestedAmount)
}

func TestRead_JSONLinesBadLine(t *testing.T) {
	input := `{"first_name":"Dana"}
{"first_name":`
	_, err := Read(context.Background(), strings.NewReader(input), FormatJSONL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestRead_JSONArray(t *testing.T) {
	input := `[{"email":"a@example.com"},{"email":"b@example.com"}]`
	leads, err := Read(context.Background(), strings.NewReader(input), FormatJSON)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "b@example.com", leads[1].Email)
}

func TestRead_JSONArrayNotArray(t *testing.T) {
	_, err := Read(context.Background(), strings.NewReader(`{"email":"a"}`), FormatJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}

func TestRead_CSV(t *testing.T) {
	input := "first_name, last_name ,email,birth_year,requested_amount,unknown\n" +
		"Dana,Reyes,dana@example.com,1992,1000,x\n" +
		" Sam ,Lee,sam@example.com,1985,,y\n"
	leads, err := Read(context.Background(), strings.NewReader(input), FormatCSV)
	require.NoError(t, err)
	require.Len(t, leads, 2)

	assert.Equal(t, "Reyes", leads[0].LastName)
	assert.Equal(t, 1992, leads[0].BirthYear)
	assert.Equal(t, 1000, leads[0].RequestedAmount)
	assert.Equal(t, "Sam", leads[1].FirstName)
	assert.Zero(t, leads[1].RequestedAmount)
}

func TestRead_CSVDelimiterAndComment(t *testing.T) {
	input := "# exported 2026-10-17\n" +
		"first_name;email;requested_amount\n" +
		"Dana;dana@example.com;1000\n" +
		"# Sam withdrew\n" +
		"Lee;lee@example.com;2500\n"
	leads, err := Read(context.Background(), strings.NewReader(input), FormatCSV,
		WithCSVDelimiter(';'), WithCSVComment('#'))
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "dana@example.com", leads[0].Email)
	assert.Equal(t, 1000, leads[0].RequestedAmount)
	assert.Equal(t, "Lee", leads[1].FirstName)
	assert.Equal(t, 2500, leads[1].RequestedAmount)
}

func TestRead_CSVOptionsIgnoredForJSON(t *testing.T) {
	leads, err := Read(context.Background(), strings.NewReader(`{"first_name":"Dana"}`+"\n"), FormatJSONL, WithCSVDelimiter(';'))
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Dana", leads[0].FirstName)
}

func TestRead_CSVBadNumber(t *testing.T) {
	input := "first_name,requested_amount\nDana,1000\nSam,lots\n"
	_, err := Read(context.Background(), strings.NewReader(input), FormatCSV)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")
	assert.Contains(t, err.Error(), "requested_amount")
}

func TestRead_CSVHeaderOnly(t *testing.T) {
	leads, err := Read(context.Background(), strings.NewReader("first_name,email\n"), FormatCSV)
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestRead_UnknownFormat(t *testing.T) {
	_, err := Read(context.Background(), strings.NewReader(""), Format("xml"))
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"first_name":"Dana"}`+"\n"), 0o644))

	leads, err := ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []model.Lead{{FirstName: "Dana"}}, leads)

	_, err = ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestRead_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Read(ctx, strings.NewReader(`{"first_name":"Dana"}`+"\n"), FormatJSONL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeJSONObject(t *testing.T) {
	lead, err := DecodeJSONObject[model.Lead](strings.NewReader(`{"zip":"78701"}`))
	require.NoError(t, err)
	assert.Equal(t, "78701", lead.Zip)

	_, err = DecodeJSONObject[model.Lead](strings.NewReader(`{`))
	assert.Error(t, err)
}
