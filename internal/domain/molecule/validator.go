// Package molecule provides the domain model for chemical structure records:
// the structure validator, the Molecule aggregate, and its repository
// contract.  Validation is pure computation; nothing in this package performs
// I/O.
package molecule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	mtypes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// ValidatorConfig
// ─────────────────────────────────────────────────────────────────────────────

// ValidatorConfig carries the structure validation policy.  Both fields are
// supplied by the ingestion configuration at construction time.
type ValidatorConfig struct {
	// ElementBlacklist lists element symbols rejected outright.
	ElementBlacklist []string
	// MaxHeavyAtoms bounds the non-hydrogen atom count per structure.
	MaxHeavyAtoms int
}

// ─────────────────────────────────────────────────────────────────────────────
// ValidationResult
// ─────────────────────────────────────────────────────────────────────────────

// ValidationResult is the outcome of validating one structure.
type ValidationResult struct {
	OK bool
	// CanonicalKey is the deterministic deduplication key.  Set only when OK.
	CanonicalKey string
	// HeavyAtoms is the parsed non-hydrogen atom count.  Set only when OK.
	HeavyAtoms int
	// Err carries the rejection reason.  Nil when OK.
	Err *errors.AppError
}

// ─────────────────────────────────────────────────────────────────────────────
// Validator
// ─────────────────────────────────────────────────────────────────────────────

// Validator parses and validates chemical structures.  It is stateless after
// construction and safe for concurrent use.  Given the same input and
// configuration, Validate always returns the same result.
type Validator struct {
	blacklist     map[string]struct{}
	maxHeavyAtoms int
}

// NewValidator constructs a Validator from cfg.
func NewValidator(cfg ValidatorConfig) *Validator {
	blacklist := make(map[string]struct{}, len(cfg.ElementBlacklist))
	for _, sym := range cfg.ElementBlacklist {
		blacklist[sym] = struct{}{}
	}
	return &Validator{
		blacklist:     blacklist,
		maxHeavyAtoms: cfg.MaxHeavyAtoms,
	}
}

// Validate parses structure per the declared format, applies the element
// blacklist and heavy-atom bound, and derives the canonical deduplication key.
// Malformed input yields a MalformedStructure error; policy breaches yield
// PolicyViolation with the specific reason.
func (v *Validator) Validate(structure string, format mtypes.StructureFormat) ValidationResult {
	structure = strings.TrimSpace(structure)
	if structure == "" {
		return rejected(errors.MalformedStructure("structure is empty"))
	}

	var (
		atoms []string
		err   *errors.AppError
	)
	switch format {
	case mtypes.FormatSMILES:
		atoms, err = parseSMILES(structure)
	case mtypes.FormatInChI:
		atoms, err = parseInChI(structure)
	default:
		return rejected(errors.New(errors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("unsupported structure format %q", format)))
	}
	if err != nil {
		return rejected(err)
	}

	heavy := 0
	for _, sym := range atoms {
		if sym == "H" {
			continue
		}
		heavy++
		if _, banned := v.blacklist[sym]; banned {
			return rejected(errors.PolicyViolation(
				fmt.Sprintf("element %s is blacklisted", sym)))
		}
	}
	if heavy == 0 {
		return rejected(errors.MalformedStructure("structure contains no heavy atoms"))
	}
	if v.maxHeavyAtoms > 0 && heavy > v.maxHeavyAtoms {
		return rejected(errors.PolicyViolation(
			fmt.Sprintf("heavy atom count %d exceeds bound %d", heavy, v.maxHeavyAtoms)))
	}

	return ValidationResult{
		OK:           true,
		CanonicalKey: canonicalKey(structure, format),
		HeavyAtoms:   heavy,
	}
}

func rejected(err *errors.AppError) ValidationResult {
	return ValidationResult{Err: err}
}

// canonicalKey derives the deterministic deduplication key.  The structure is
// whitespace-normalised before hashing so cosmetic differences never split
// duplicates; the format tag keeps SMILES and InChI keyspaces disjoint.
func canonicalKey(structure string, format mtypes.StructureFormat) string {
	normalised := strings.Join(strings.Fields(structure), "")
	sum := sha256.Sum256([]byte(string(format) + ":" + normalised))
	return hex.EncodeToString(sum[:])
}

// ─────────────────────────────────────────────────────────────────────────────
// SMILES parsing
// ─────────────────────────────────────────────────────────────────────────────

// organicSubset holds the atoms writable outside brackets in SMILES.
var organicSubset = map[string]struct{}{
	"B": {}, "C": {}, "N": {}, "O": {}, "P": {}, "S": {},
	"F": {}, "Cl": {}, "Br": {}, "I": {},
}

// aromaticSubset holds the lowercase aromatic forms of organic-subset atoms.
var aromaticSubset = map[byte]string{
	'b': "B", 'c': "C", 'n': "N", 'o': "O", 'p': "P", 's': "S",
}

// parseSMILES tokenises a SMILES string and returns the element symbol of
// every atom, hydrogens included.  It checks bracket balance, ring-bond
// digits, and the allowed character set, but performs no valence analysis.
func parseSMILES(s string) ([]string, *errors.AppError) {
	var (
		atoms []string
		depth int
	)

	i := 0
	for i < len(s) {
		ch := s[i]
		switch {
		case ch == '(':
			depth++
			i++
		case ch == ')':
			depth--
			if depth < 0 {
				return nil, errors.MalformedStructure("unbalanced parentheses")
			}
			i++
		case ch == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, errors.MalformedStructure("unterminated bracket atom")
			}
			bracket := s[i+1 : i+end]
			sym, err := parseBracketAtom(bracket)
			if err != nil {
				return nil, err
			}
			atoms = append(atoms, sym)
			i += end + 1
		case ch == ']':
			return nil, errors.MalformedStructure("unmatched closing bracket")
		case ch == '%':
			// Two-digit ring-bond label.
			if i+2 >= len(s) || !isDigit(s[i+1]) || !isDigit(s[i+2]) {
				return nil, errors.MalformedStructure("malformed ring-bond label")
			}
			i += 3
		case isDigit(ch):
			i++
		case ch == '-' || ch == '=' || ch == '#' || ch == '$' || ch == ':' ||
			ch == '/' || ch == '\\' || ch == '.':
			i++
		case ch >= 'A' && ch <= 'Z':
			// Organic-subset atom, possibly two characters (Cl, Br).
			sym := string(ch)
			if i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z' {
				two := sym + string(s[i+1])
				if _, ok := organicSubset[two]; ok {
					sym = two
					i++
				}
			}
			if _, ok := organicSubset[sym]; !ok {
				return nil, errors.MalformedStructure(
					fmt.Sprintf("element %s requires bracket notation", sym))
			}
			atoms = append(atoms, sym)
			i++
		case ch >= 'a' && ch <= 'z':
			sym, ok := aromaticSubset[ch]
			if !ok {
				return nil, errors.MalformedStructure(
					fmt.Sprintf("invalid aromatic atom %q", string(ch)))
			}
			atoms = append(atoms, sym)
			i++
		case ch == '*':
			return nil, errors.MalformedStructure("wildcard atoms are not accepted")
		default:
			return nil, errors.MalformedStructure(
				fmt.Sprintf("invalid character %q", string(ch)))
		}
	}

	if depth != 0 {
		return nil, errors.MalformedStructure("unbalanced parentheses")
	}
	if len(atoms) == 0 {
		return nil, errors.MalformedStructure("no atoms found")
	}
	return atoms, nil
}

// parseBracketAtom extracts the element symbol from the inside of a SMILES
// bracket atom, e.g. "Na+", "13CH4", "O-", "nH".
func parseBracketAtom(body string) (string, *errors.AppError) {
	// Leading isotope digits.
	j := 0
	for j < len(body) && isDigit(body[j]) {
		j++
	}
	if j >= len(body) {
		return "", errors.MalformedStructure("bracket atom has no element symbol")
	}

	ch := body[j]
	switch {
	case ch >= 'A' && ch <= 'Z':
		sym := string(ch)
		if j+1 < len(body) && body[j+1] >= 'a' && body[j+1] <= 'z' {
			sym += string(body[j+1])
		}
		return sym, nil
	case ch >= 'a' && ch <= 'z':
		if sym, ok := aromaticSubset[ch]; ok {
			return sym, nil
		}
		return "", errors.MalformedStructure(
			fmt.Sprintf("invalid aromatic atom %q in bracket", string(ch)))
	default:
		return "", errors.MalformedStructure(
			fmt.Sprintf("invalid bracket atom %q", body))
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// ─────────────────────────────────────────────────────────────────────────────
// InChI parsing
// ─────────────────────────────────────────────────────────────────────────────

// parseInChI validates the identifier prefix and expands the formula layer
// into per-atom element symbols.  Later layers (connectivity, charge,
// stereochemistry) are accepted without interpretation.
func parseInChI(s string) ([]string, *errors.AppError) {
	rest, ok := strings.CutPrefix(s, "InChI=1S/")
	if !ok {
		rest, ok = strings.CutPrefix(s, "InChI=1/")
	}
	if !ok {
		return nil, errors.MalformedStructure("missing InChI=1S/ prefix")
	}

	formula := rest
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		formula = rest[:idx]
	}
	if formula == "" {
		return nil, errors.MalformedStructure("empty formula layer")
	}

	var atoms []string
	// Multi-component formulas separate components with '.'; a leading count
	// multiplies the component, e.g. "2C2H6O.H2O".
	for _, component := range strings.Split(formula, ".") {
		if component == "" {
			return nil, errors.MalformedStructure("empty formula component")
		}
		multiplier := 1
		j := 0
		for j < len(component) && isDigit(component[j]) {
			j++
		}
		if j > 0 {
			n, err := strconv.Atoi(component[:j])
			if err != nil || n < 1 {
				return nil, errors.MalformedStructure("invalid component multiplier")
			}
			multiplier = n
		}

		componentAtoms, appErr := parseFormulaComponent(component[j:])
		if appErr != nil {
			return nil, appErr
		}
		for k := 0; k < multiplier; k++ {
			atoms = append(atoms, componentAtoms...)
		}
	}
	if len(atoms) == 0 {
		return nil, errors.MalformedStructure("formula layer contains no atoms")
	}
	return atoms, nil
}

// parseFormulaComponent expands one Hill-notation component such as "C6H5Cl"
// into its element symbols.
func parseFormulaComponent(component string) ([]string, *errors.AppError) {
	var atoms []string
	i := 0
	for i < len(component) {
		ch := rune(component[i])
		if !unicode.IsUpper(ch) {
			return nil, errors.MalformedStructure(
				fmt.Sprintf("invalid formula element at %q", component[i:]))
		}
		sym := string(ch)
		i++
		if i < len(component) && component[i] >= 'a' && component[i] <= 'z' {
			sym += string(component[i])
			i++
		}

		count := 1
		j := i
		for j < len(component) && isDigit(component[j]) {
			j++
		}
		if j > i {
			n, err := strconv.Atoi(component[i:j])
			if err != nil || n < 1 {
				return nil, errors.MalformedStructure("invalid element count")
			}
			count = n
			i = j
		}

		for k := 0; k < count; k++ {
			atoms = append(atoms, sym)
		}
	}
	if len(atoms) == 0 {
		return nil, errors.MalformedStructure("empty formula component")
	}
	return atoms, nil
}
