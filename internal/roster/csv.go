package roster

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

func readCSVFile(ctx context.Context, path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "roster: open csv")
	}
	defer f.Close() //nolint:errcheck

	return ReadCSV(ctx, f)
}

// ReadCSV parses a CSV roster. Lines that fail to parse or carry more fields
// than the header are logged and skipped.
func ReadCSV(ctx context.Context, r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	first, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("roster: empty file")
	}
	if err != nil {
		return nil, eris.Wrap(err, "roster: read header")
	}
	cols, err := header(first)
	if err != nil {
		return nil, err
	}

	var rows []Row
	skipped := 0
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "roster: context cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				skipped++
				zap.L().Warn("roster: skipping malformed line", zap.Int("line", pe.Line), zap.Error(err))
				continue
			}
			return nil, eris.Wrap(err, "roster: read row")
		}

		if len(record) > len(cols) {
			skipped++
			zap.L().Warn("roster: skipping line with extra fields",
				zap.Int("fields", len(record)),
				zap.Int("expected", len(cols)),
			)
			continue
		}
		if isBlank(record) {
			continue
		}
		rows = append(rows, toRow(cols, record))
	}

	zap.L().Debug("roster: csv loaded", zap.Int("rows", len(rows)), zap.Int("skipped", skipped))
	return rows, nil
}
