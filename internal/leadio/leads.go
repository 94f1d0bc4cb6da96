package leadio

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-router/internal/model"
)

// Format identifies a lead file encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// intColumns are the lead fields that CSV cells must parse as integers.
var intColumns = map[string]bool{
	"birth_month":        true,
	"birth_day":          true,
	"birth_year":         true,
	"years_at_address":   true,
	"requested_amount":   true,
	"monthly_net_income": true,
}

// FormatFor picks a format from a file extension. Unknown extensions are
// read as JSON lines.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	default:
		return FormatJSONL
	}
}

// ReadOption adjusts how lead files are parsed.
type ReadOption func(*CSVOptions)

// WithCSVDelimiter sets the CSV field separator. Zero keeps ','.
func WithCSVDelimiter(r rune) ReadOption {
	return func(o *CSVOptions) { o.Delimiter = r }
}

// WithCSVComment skips CSV lines starting with r.
func WithCSVComment(r rune) ReadOption {
	return func(o *CSVOptions) { o.Comment = r }
}

// ReadFile loads every lead in path.
func ReadFile(ctx context.Context, path string, opts ...ReadOption) ([]model.Lead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "leadio: open %s", path)
	}
	defer f.Close()

	leads, err := Read(ctx, f, FormatFor(path), opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "leadio: read %s", path)
	}
	return leads, nil
}

// Read decodes leads from r in the given format.
func Read(ctx context.Context, r io.Reader, format Format, opts ...ReadOption) ([]model.Lead, error) {
	switch format {
	case FormatJSON:
		return drain(DecodeJSONArray[model.Lead](ctx, r))
	case FormatJSONL:
		return drain(DecodeJSONLines[model.Lead](ctx, r))
	case FormatCSV:
		return readCSV(ctx, r, opts)
	default:
		return nil, eris.Errorf("leadio: unknown format %q", format)
	}
}

func drain(ch <-chan model.Lead, errCh <-chan error) ([]model.Lead, error) {
	var leads []model.Lead
	for l := range ch {
		leads = append(leads, l)
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	return leads, nil
}

// readCSV maps a header row of lead JSON field names onto each record.
func readCSV(ctx context.Context, r io.Reader, opts []ReadOption) ([]model.Lead, error) {
	headerCh := make(chan []string, 1)
	csvOpts := CSVOptions{HasHeader: true, HeaderCh: headerCh, TrimSpace: true}
	for _, opt := range opts {
		opt(&csvOpts)
	}
	rows, errCh := StreamCSV(ctx, r, csvOpts)

	var header []string
	var leads []model.Lead
	rowNum := 1
	for row := range rows {
		rowNum++
		if header == nil {
			header = <-headerCh
		}
		lead, err := leadFromRecord(header, row)
		if err != nil {
			// Drain so the reader goroutine can exit.
			for range rows {
			}
			return nil, eris.Wrapf(err, "csv: row %d", rowNum)
		}
		leads = append(leads, lead)
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	return leads, nil
}

func leadFromRecord(header, record []string) (model.Lead, error) {
	fields := make(map[string]any, len(header))
	for i, name := range header {
		if i >= len(record) || record[i] == "" {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if intColumns[name] {
			n, err := strconv.Atoi(record[i])
			if err != nil {
				return model.Lead{}, eris.Errorf("%s: %q is not a whole number", name, record[i])
			}
			fields[name] = n
			continue
		}
		fields[name] = record[i]
	}

	b, err := json.Marshal(fields)
	if err != nil {
		return model.Lead{}, eris.Wrap(err, "marshal record")
	}
	var lead model.Lead
	if err := json.Unmarshal(b, &lead); err != nil {
		return model.Lead{}, eris.Wrap(err, "decode record")
	}
	return lead, nil
}
