package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"dkovalchuk/catalogcrawler/logger"
	crawlerr "dkovalchuk/catalogcrawler/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter appends accepted records to a timestamped CSV file. The column
// order is the configured field order, with the listing URL appended last
// when not already among the fields.
// Writes are safe for concurrent use and flushed per row, so a killed run
// keeps everything accepted so far.
type CSVWriter struct {
	mu      sync.Mutex
	file    *os.File
	writer  *csv.Writer
	columns []string
	path    string
	log     *logger.Logger
}

// ResolvePath derives the actual output path from the configured one at t:
//   - a path with an extension becomes stem_YYYYMMDD-HH.ext
//   - a directory (or extensionless path) gets output_YYYYMMDD-HH.csv inside it
func ResolvePath(configured string, t time.Time) string {
	stamp := t.Format("20060102-15")
	ext := filepath.Ext(configured)
	if ext != "" {
		stem := strings.TrimSuffix(configured, ext)
		return fmt.Sprintf("%s_%s%s", stem, stamp, ext)
	}
	return filepath.Join(configured, fmt.Sprintf("output_%s.csv", stamp))
}

// NewCSVWriter creates the output file and writes the header row. fields is
// the configured column order; "url" is appended unless configured. The encoding
// name is resolved through the HTML charset registry; UTF-8 output starts
// with a BOM so spreadsheet tools pick the encoding up.
func NewCSVWriter(configuredPath string, fields []string, delimiter string, encoding string) (*CSVWriter, error) {
	path := ResolvePath(configuredPath, time.Now())
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, crawlerr.NewOutput("csv", "failed to create output directory", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, crawlerr.NewOutput("csv", "failed to create output file", err)
	}

	var sink io.Writer = file
	name := strings.ToLower(strings.TrimSpace(encoding))
	switch name {
	case "", "utf-8", "utf8":
		if _, err := file.Write(utf8BOM); err != nil {
			file.Close()
			return nil, crawlerr.NewOutput("csv", "failed to write BOM", err)
		}
	default:
		enc, _ := charset.Lookup(name)
		if enc == nil {
			file.Close()
			return nil, crawlerr.NewOutput("csv", fmt.Sprintf("unknown output encoding %q", encoding), nil)
		}
		sink = transform.NewWriter(file, enc.NewEncoder())
	}

	columns := make([]string, 0, len(fields)+1)
	columns = append(columns, fields...)
	hasURL := false
	for _, f := range fields {
		if f == "url" {
			hasURL = true
			break
		}
	}
	if !hasURL {
		columns = append(columns, "url")
	}

	writer := csv.NewWriter(sink)
	if delimiter != "" {
		writer.Comma = []rune(delimiter)[0]
	}

	w := &CSVWriter{
		file:    file,
		writer:  writer,
		columns: columns,
		path:    path,
		log:     logger.ForComponent("output"),
	}
	if err := w.writeRow(columns); err != nil {
		file.Close()
		return nil, err
	}
	w.log.Info().Str("path", path).Msg("Output file created")
	return w, nil
}

// Path returns the resolved output file path
func (w *CSVWriter) Path() string {
	return w.path
}

// Write appends one record in column order; missing fields become empty cells
func (w *CSVWriter) Write(record map[string]string) error {
	row := make([]string, len(w.columns))
	for i, col := range w.columns {
		row[i] = record[col]
	}
	return w.writeRow(row)
}

func (w *CSVWriter) writeRow(row []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Write(row); err != nil {
		return crawlerr.NewOutput("csv", "failed to write row", err)
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return crawlerr.NewOutput("csv", "failed to flush row", err)
	}
	return nil
}

// Close flushes and closes the output file
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return crawlerr.NewOutput("csv", "failed to flush output", err)
	}
	return w.file.Close()
}
