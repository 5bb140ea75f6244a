package molecule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
)

func testValidator() *Validator {
	return NewValidator(ValidatorConfig{
		ElementBlacklist: []string{"U", "Pu", "Tc"},
		MaxHeavyAtoms:    200,
	})
}

func TestValidateAcceptsCommonSMILES(t *testing.T) {
	v := testValidator()

	tests := []struct {
		name      string
		structure string
		heavy     int
	}{
		{"methane", "C", 1},
		{"ethanol", "CCO", 3},
		{"benzene aromatic", "c1ccccc1", 6},
		{"aspirin", "CC(=O)Oc1ccccc1C(=O)O", 13},
		{"chlorobenzene", "Clc1ccccc1", 7},
		{"bracket sodium", "[Na+].[Cl-]", 2},
		{"isotope", "[13CH4]", 1},
		{"ring bond label", "C%12CCCCC%12", 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.structure, mtypes.FormatSMILES)
			require.Nil(t, res.Err)
			assert.True(t, res.OK)
			assert.Equal(t, tt.heavy, res.HeavyAtoms)
			assert.NotEmpty(t, res.CanonicalKey)
		})
	}
}

func TestValidateRejectsMalformedSMILES(t *testing.T) {
	v := testValidator()

	tests := []struct {
		name      string
		structure string
	}{
		{"empty", ""},
		{"unbalanced open paren", "CC(C"},
		{"unbalanced close paren", "CC)C"},
		{"unterminated bracket", "[NaCl"},
		{"stray closing bracket", "CC]"},
		{"two letter outside bracket", "NaCl"},
		{"invalid character", "C!C"},
		{"wildcard", "C*C"},
		{"bad ring label", "C%1C"},
		{"invalid aromatic", "q1ccccc1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.structure, mtypes.FormatSMILES)
			require.NotNil(t, res.Err)
			assert.False(t, res.OK)
			assert.Equal(t, errors.ErrCodeMalformedStructure, res.Err.Code)
		})
	}
}

func TestValidateInChI(t *testing.T) {
	v := testValidator()

	res := v.Validate("InChI=1S/C2H6O/c1-2-3/h3H,2H2,1H3", mtypes.FormatInChI)
	require.Nil(t, res.Err)
	assert.Equal(t, 3, res.HeavyAtoms) // two carbons, one oxygen

	res = v.Validate("InChI=1S/2C2H6O.H2O/c2*1-2-3;/h2*3H,2H2,1H3;1H2", mtypes.FormatInChI)
	require.Nil(t, res.Err)
	assert.Equal(t, 7, res.HeavyAtoms)

	res = v.Validate("not-an-inchi", mtypes.FormatInChI)
	require.NotNil(t, res.Err)
	assert.Equal(t, errors.ErrCodeMalformedStructure, res.Err.Code)

	res = v.Validate("InChI=1S/", mtypes.FormatInChI)
	require.NotNil(t, res.Err)
	assert.Equal(t, errors.ErrCodeMalformedStructure, res.Err.Code)
}

func TestValidateElementBlacklist(t *testing.T) {
	v := testValidator()

	res := v.Validate("[U]", mtypes.FormatSMILES)
	require.NotNil(t, res.Err)
	assert.Equal(t, errors.ErrCodePolicyViolation, res.Err.Code)
	assert.Contains(t, res.Err.Message, "U")

	res = v.Validate("InChI=1S/Pu", mtypes.FormatInChI)
	require.NotNil(t, res.Err)
	assert.Equal(t, errors.ErrCodePolicyViolation, res.Err.Code)
}

func TestValidateHeavyAtomBound(t *testing.T) {
	v := NewValidator(ValidatorConfig{MaxHeavyAtoms: 5})

	res := v.Validate("CCCCC", mtypes.FormatSMILES)
	assert.True(t, res.OK)

	res = v.Validate("CCCCCC", mtypes.FormatSMILES)
	require.NotNil(t, res.Err)
	assert.Equal(t, errors.ErrCodePolicyViolation, res.Err.Code)

	// Hydrogens never count against the bound.
	res = v.Validate("InChI=1S/C5H12/c1-3-5-4-2/h3-5H2,1-2H3", mtypes.FormatInChI)
	assert.True(t, res.OK)
}

func TestValidateUnsupportedFormat(t *testing.T) {
	res := testValidator().Validate("CCO", mtypes.StructureFormat("mol2"))
	require.NotNil(t, res.Err)
	assert.Equal(t, errors.ErrCodeUnsupportedFormat, res.Err.Code)
}

func TestValidateIsDeterministic(t *testing.T) {
	v := testValidator()

	first := v.Validate("CC(=O)Oc1ccccc1C(=O)O", mtypes.FormatSMILES)
	for i := 0; i < 10; i++ {
		again := v.Validate("CC(=O)Oc1ccccc1C(=O)O", mtypes.FormatSMILES)
		assert.Equal(t, first.CanonicalKey, again.CanonicalKey)
		assert.Equal(t, first.HeavyAtoms, again.HeavyAtoms)
	}
}

func TestCanonicalKeyNormalisesWhitespace(t *testing.T) {
	v := testValidator()

	a := v.Validate("CCO", mtypes.FormatSMILES)
	b := v.Validate("  CCO  ", mtypes.FormatSMILES)
	require.True(t, a.OK)
	require.True(t, b.OK)
	assert.Equal(t, a.CanonicalKey, b.CanonicalKey)
}

func TestCanonicalKeyDiffersAcrossFormats(t *testing.T) {
	v := NewValidator(ValidatorConfig{MaxHeavyAtoms: 200})

	smiles := v.Validate("CO", mtypes.FormatSMILES)
	require.True(t, smiles.OK)

	other := v.Validate("CN", mtypes.FormatSMILES)
	require.True(t, other.OK)
	assert.NotEqual(t, smiles.CanonicalKey, other.CanonicalKey)
}
