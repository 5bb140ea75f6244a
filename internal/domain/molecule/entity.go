package molecule

import (
	"time"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Domain Events
// ─────────────────────────────────────────────────────────────────────────────

// DomainEvent is the marker interface for molecule domain events.
type DomainEvent interface {
	EventType() string
}

// ValidatedEvent is published when a molecule reaches VALID.
type ValidatedEvent struct {
	MoleculeID   common.ID
	CanonicalKey string
}

func (e ValidatedEvent) EventType() string { return "molecule.validated" }

// PropertiesMergedEvent is published when predicted or measured property
// values are merged into the record.
type PropertiesMergedEvent struct {
	MoleculeID common.ID
	Properties []string
}

func (e PropertiesMergedEvent) EventType() string { return "molecule.properties_merged" }

// ─────────────────────────────────────────────────────────────────────────────
// Molecule Aggregate Root
// ─────────────────────────────────────────────────────────────────────────────

// Molecule is the aggregate root for one uploaded chemical structure.  The
// validation status is monotonic: PENDING moves to VALID or INVALID exactly
// once and never reverses.  A VALID molecule is immutable except for property
// value additions.
type Molecule struct {
	common.BaseEntity

	CanonicalKey     string
	RawStructure     string
	Format           mtypes.StructureFormat
	ValidationStatus mtypes.ValidationStatus
	ValidationError  string
	Properties       mtypes.PropertyMap
	CreatedBy        common.UserID

	events []DomainEvent
}

// New constructs a PENDING molecule for a raw structure row.  Validation
// outcome is applied afterwards via MarkValid or MarkInvalid.
func New(rawStructure string, format mtypes.StructureFormat, createdBy common.UserID) *Molecule {
	now := time.Now().UTC()
	return &Molecule{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
		RawStructure:     rawStructure,
		Format:           format,
		ValidationStatus: mtypes.ValidationPending,
		Properties:       mtypes.PropertyMap{},
		CreatedBy:        createdBy,
	}
}

// MarkValid records a successful validation outcome with its canonical key.
// Returns InvalidState when the status already left PENDING.
func (m *Molecule) MarkValid(canonicalKey string) error {
	if m.ValidationStatus != mtypes.ValidationPending {
		return errors.InvalidState("validation status is final and cannot change")
	}
	m.CanonicalKey = canonicalKey
	m.ValidationStatus = mtypes.ValidationValid
	m.UpdatedAt = time.Now().UTC()
	m.events = append(m.events, ValidatedEvent{MoleculeID: m.ID, CanonicalKey: canonicalKey})
	return nil
}

// MarkInvalid records a failed validation outcome with its reason.
// Returns InvalidState when the status already left PENDING.
func (m *Molecule) MarkInvalid(reason string) error {
	if m.ValidationStatus != mtypes.ValidationPending {
		return errors.InvalidState("validation status is final and cannot change")
	}
	m.ValidationStatus = mtypes.ValidationInvalid
	m.ValidationError = reason
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// RequestProperties registers the named properties with nil values so that a
// reader can distinguish "prediction pending" from "never requested".
func (m *Molecule) RequestProperties(names []string) {
	if m.Properties == nil {
		m.Properties = mtypes.PropertyMap{}
	}
	for _, name := range names {
		if _, ok := m.Properties[name]; !ok {
			m.Properties[name] = nil
		}
	}
}

// MergeProperties fills in values for the supplied properties.  Only VALID
// molecules accept property values; values overwrite earlier predictions for
// the same property.
func (m *Molecule) MergeProperties(values map[string]float64) error {
	if m.ValidationStatus != mtypes.ValidationValid {
		return errors.InvalidState("properties can only be merged into a VALID molecule")
	}
	if len(values) == 0 {
		return nil
	}
	if m.Properties == nil {
		m.Properties = mtypes.PropertyMap{}
	}
	names := make([]string, 0, len(values))
	for name, value := range values {
		v := value
		m.Properties[name] = &v
		names = append(names, name)
	}
	m.UpdatedAt = time.Now().UTC()
	m.events = append(m.events, PropertiesMergedEvent{MoleculeID: m.ID, Properties: names})
	return nil
}

// HasAllProperties reports whether every named property has a value.
func (m *Molecule) HasAllProperties(names []string) bool {
	for _, name := range names {
		v, ok := m.Properties[name]
		if !ok || v == nil {
			return false
		}
	}
	return len(names) > 0
}

// Events returns the unpublished domain events and clears the internal list.
func (m *Molecule) Events() []DomainEvent {
	events := m.events
	m.events = nil
	return events
}

// ToDTO converts the aggregate to its transfer shape.
func (m *Molecule) ToDTO() mtypes.MoleculeDTO {
	return mtypes.MoleculeDTO{
		BaseEntity:       m.BaseEntity,
		CanonicalKey:     m.CanonicalKey,
		RawStructure:     m.RawStructure,
		Format:           m.Format,
		ValidationStatus: m.ValidationStatus,
		ValidationError:  m.ValidationError,
		Properties:       m.Properties,
		CreatedBy:        m.CreatedBy,
	}
}

// FromDTO reconstructs the aggregate from its transfer shape.
func FromDTO(dto mtypes.MoleculeDTO) *Molecule {
	return &Molecule{
		BaseEntity:       dto.BaseEntity,
		CanonicalKey:     dto.CanonicalKey,
		RawStructure:     dto.RawStructure,
		Format:           dto.Format,
		ValidationStatus: dto.ValidationStatus,
		ValidationError:  dto.ValidationError,
		Properties:       dto.Properties,
		CreatedBy:        dto.CreatedBy,
	}
}
