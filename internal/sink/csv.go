package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/fyrsmithlabs/apreview/internal/answers"
)

// CSV appends submission rows to a file. Prior rows are never rewritten.
// Appends are serialized and fsynced.
type CSV struct {
	mu     sync.Mutex
	path   string
	header []string
	index  map[string]int
}

// OpenCSV prepares path for appending rows with header. An existing
// non-empty file must start with exactly header.
func OpenCSV(path string, header []string) (*CSV, error) {
	if path == "" {
		return nil, errors.New("csv path is required")
	}
	if len(header) == 0 {
		return nil, errors.New("csv header is required")
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		if _, dup := index[col]; dup {
			return nil, fmt.Errorf("csv header repeats column %q", col)
		}
		index[col] = i
	}

	c := &CSV{path: path, header: slices.Clone(header), index: index}
	if err := c.checkHeader(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the file path.
func (c *CSV) Path() string { return c.path }

// Header returns a copy of the column header.
func (c *CSV) Header() []string { return slices.Clone(c.header) }

func (c *CSV) checkHeader() error {
	f, err := os.Open(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	existing, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading header of %s: %w", c.path, err)
	}
	if !slices.Equal(existing, c.header) {
		return fmt.Errorf("%w: %s has %d columns, questionnaire produces %d",
			ErrSchemaMismatch, c.path, len(existing), len(c.header))
	}
	return nil
}

// Record maps row onto the header. Columns the row lacks are blank.
func (c *CSV) Record(row *answers.Set) ([]string, error) {
	record := make([]string, len(c.header))
	var unknown []string
	row.Each(func(key string, v answers.Value) {
		i, ok := c.index[key]
		if !ok {
			unknown = append(unknown, key)
			return
		}
		record[i] = v.String()
	})
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: row has columns outside the header: %v", ErrSchemaMismatch, unknown)
	}
	return record, nil
}

// Append writes row as one CSV record, writing the header first when the
// file is new or empty.
func (c *CSV) Append(ctx context.Context, row *answers.Set) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record, err := c.Record(row)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat %s: %w", c.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(c.header); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing header: %w", err)
		}
	}
	if err := w.Write(record); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flushing row: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing %s: %w", c.path, err)
	}
	return f.Close()
}

// Contains reports whether a row carrying submissionID has been appended.
func (c *CSV) Contains(ctx context.Context, submissionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	col, ok := c.index[answers.ColumnSubmissionID]
	if !ok {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", c.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("reading header of %s: %w", c.path, err)
	}
	for {
		record, err := r.Read()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("reading %s: %w", c.path, err)
		}
		if col < len(record) && record[col] == submissionID {
			return true, nil
		}
	}
}
