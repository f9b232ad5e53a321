package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"battery-sizer/internal/model"
)

// CSVSource reads a table with a header row and one row per hour. Only the
// demand and PV columns are used; any other columns (an index, timestamps)
// are ignored.
type CSVSource struct {
	Path         string
	DemandColumn string
	PVColumn     string
}

func (s *CSVSource) Load(ctx context.Context) (model.Profiles, error) {
	if err := ctx.Err(); err != nil {
		return model.Profiles{}, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return model.Profiles{}, err
	}
	defer f.Close()
	p, err := ReadProfilesCSV(f, s.DemandColumn, s.PVColumn)
	if err != nil {
		return model.Profiles{}, fmt.Errorf("%s: %w", s.Path, err)
	}
	return p, nil
}

// ReadProfilesCSV parses profiles from r. Empty column names fall back to
// DefaultDemandColumn and DefaultPVColumn.
func ReadProfilesCSV(r io.Reader, demandCol, pvCol string) (model.Profiles, error) {
	if demandCol == "" {
		demandCol = DefaultDemandColumn
	}
	if pvCol == "" {
		pvCol = DefaultPVColumn
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.Profiles{}, errors.New("empty csv")
		}
		return model.Profiles{}, err
	}
	di, pi := -1, -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch h {
		case demandCol:
			di = i
		case pvCol:
			pi = i
		}
	}
	if di < 0 {
		return model.Profiles{}, fmt.Errorf("missing column %q", demandCol)
	}
	if pi < 0 {
		return model.Profiles{}, fmt.Errorf("missing column %q", pvCol)
	}

	var out model.Profiles
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return model.Profiles{}, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if di >= len(rec) || pi >= len(rec) {
			return model.Profiles{}, fmt.Errorf("line %d: expected at least %d fields, got %d", line, max(di, pi)+1, len(rec))
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(rec[di]), 64)
		if err != nil {
			return model.Profiles{}, fmt.Errorf("line %d: %s: %w", line, demandCol, err)
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(rec[pi]), 64)
		if err != nil {
			return model.Profiles{}, fmt.Errorf("line %d: %s: %w", line, pvCol, err)
		}
		out.DemandFraction = append(out.DemandFraction, d)
		out.PVFraction = append(out.PVFraction, p)
	}
	return out, nil
}

// WriteProfilesCSV writes profiles with an hour index and the default
// column names, in the layout ReadProfilesCSV accepts.
func WriteProfilesCSV(w io.Writer, p model.Profiles) error {
	if len(p.DemandFraction) != len(p.PVFraction) {
		return fmt.Errorf("%w: demand has %d values, pv has %d", model.ErrShapeMismatch, len(p.DemandFraction), len(p.PVFraction))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"hour", DefaultDemandColumn, DefaultPVColumn}); err != nil {
		return err
	}
	for i := range p.DemandFraction {
		rec := []string{
			strconv.Itoa(i),
			strconv.FormatFloat(p.DemandFraction[i], 'g', -1, 64),
			strconv.FormatFloat(p.PVFraction[i], 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
