// Package molecule defines cross-layer types for chemical structure records:
// supported notation formats, validation statuses, and the DTO exchanged
// between the ingestion pipeline, repositories, and the HTTP interface.
package molecule

import (
	"strings"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

// StructureFormat identifies the notation a raw structure string is written in.
type StructureFormat string

const (
	// FormatSMILES is the simplified molecular-input line-entry system.
	FormatSMILES StructureFormat = "smiles"
	// FormatInChI is the IUPAC international chemical identifier.
	FormatInChI StructureFormat = "inchi"
)

// ParseFormat normalizes a user-supplied format string.  Returns false when
// the format is not supported.
func ParseFormat(s string) (StructureFormat, bool) {
	switch StructureFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatSMILES:
		return FormatSMILES, true
	case FormatInChI:
		return FormatInChI, true
	default:
		return "", false
	}
}

// ValidationStatus is the lifecycle status of a molecule record.  The status
// is monotonic: PENDING may move to VALID or INVALID exactly once and is never
// reversed.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "PENDING"
	ValidationValid   ValidationStatus = "VALID"
	ValidationInvalid ValidationStatus = "INVALID"
)

// PropertyMap holds predicted or measured property values keyed by property
// name.  A nil value means the property was requested but no value has been
// produced (prediction pending or terminally failed).
type PropertyMap map[string]*float64

// MoleculeDTO is the transfer shape for a molecule record.
type MoleculeDTO struct {
	common.BaseEntity
	CanonicalKey     string           `json:"canonical_key"`
	RawStructure     string           `json:"raw_structure"`
	Format           StructureFormat  `json:"format"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ValidationError  string           `json:"validation_error,omitempty"`
	Properties       PropertyMap      `json:"properties,omitempty"`
	CreatedBy        common.UserID    `json:"created_by"`
}

// UploadRow is one line of an uploaded structure batch.
type UploadRow struct {
	// Row is the 1-based position in the upload; reports preserve this order.
	Row       int             `json:"row"`
	Structure string          `json:"structure"`
	Format    StructureFormat `json:"format"`
}

// RowError describes one rejected upload row.
type RowError struct {
	Row     int    `json:"row"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AcceptedRow describes one accepted upload row.
type AcceptedRow struct {
	Row        int       `json:"row"`
	MoleculeID common.ID `json:"molecule_id"`
	// Existing is true when the row matched a molecule already persisted from
	// an earlier batch; such rows are accepted but skipped for prediction.
	Existing bool `json:"existing"`
}

// BatchReportDTO is the per-row outcome report returned by an ingestion run.
type BatchReportDTO struct {
	TotalRows int           `json:"total_rows"`
	Accepted  []AcceptedRow `json:"accepted"`
	Rejected  []RowError    `json:"rejected"`
}
