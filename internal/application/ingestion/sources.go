package ingestion

import (
	"encoding/csv"
	"io"
	"strings"

	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
)

// SliceSource serves rows from memory.  Used by tests and programmatic
// callers that already hold the parsed rows.
type SliceSource struct {
	rows []mtypes.UploadRow
	pos  int
}

// NewSliceSource wraps rows in a RowSource.
func NewSliceSource(rows []mtypes.UploadRow) *SliceSource {
	return &SliceSource{rows: rows}
}

func (s *SliceSource) Next() (mtypes.UploadRow, bool, error) {
	if s.pos >= len(s.rows) {
		return mtypes.UploadRow{}, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

// CSVSource streams upload rows from a CSV document.  The first record must
// be a header naming a "structure" column; an optional "format" column
// overrides the per-row structure format, defaulting to SMILES.
type CSVSource struct {
	reader       *csv.Reader
	structureCol int
	formatCol    int
	row          int
	headerRead   bool
	headerErr    error
}

// NewCSVSource wraps r in a streaming RowSource.  The header is read lazily
// on the first Next call.
func NewCSVSource(r io.Reader) *CSVSource {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	return &CSVSource{reader: cr, structureCol: -1, formatCol: -1}
}

func (s *CSVSource) readHeader() error {
	if s.headerRead {
		return s.headerErr
	}
	s.headerRead = true

	header, err := s.reader.Read()
	if err == io.EOF {
		s.headerErr = apperrors.InvalidParam("upload is empty")
		return s.headerErr
	}
	if err != nil {
		s.headerErr = apperrors.Wrap(err, apperrors.ErrCodeBadRequest, "failed to read csv header")
		return s.headerErr
	}

	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "structure", "smiles":
			if s.structureCol < 0 {
				s.structureCol = i
			}
		case "format":
			s.formatCol = i
		}
	}
	if s.structureCol < 0 {
		s.headerErr = apperrors.InvalidParam("csv header is missing a structure column")
		return s.headerErr
	}
	return nil
}

func (s *CSVSource) Next() (mtypes.UploadRow, bool, error) {
	if err := s.readHeader(); err != nil {
		return mtypes.UploadRow{}, false, err
	}

	record, err := s.reader.Read()
	if err == io.EOF {
		return mtypes.UploadRow{}, false, nil
	}
	if err != nil {
		return mtypes.UploadRow{}, false,
			apperrors.Wrap(err, apperrors.ErrCodeBadRequest, "failed to read csv row")
	}
	s.row++

	row := mtypes.UploadRow{Row: s.row, Format: mtypes.FormatSMILES}
	if s.structureCol < len(record) {
		row.Structure = strings.TrimSpace(record[s.structureCol])
	}
	if s.formatCol >= 0 && s.formatCol < len(record) {
		if f := strings.TrimSpace(record[s.formatCol]); f != "" {
			// Unknown formats flow through unparsed so the validator can
			// reject the row instead of the whole upload.
			if parsed, ok := mtypes.ParseFormat(f); ok {
				row.Format = parsed
			} else {
				row.Format = mtypes.StructureFormat(f)
			}
		}
	}
	return row, true, nil
}
