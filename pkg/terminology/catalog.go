package terminology

import (
	"embed"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/synaptica-ai/comorbidity/pkg/common/models"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var embedded embed.FS

// Category identifies one comorbidity, frailty code group or severity
// component within a scheme. The set of valid categories for a scheme is
// closed: it is exactly the scheme's declared category list.
type Category string

// Unmapped is returned when no rule of the scheme+version table matches.
const Unmapped Category = ""

type Confidence string

const (
	ConfidenceReference     Confidence = "reference"
	ConfidenceSupplementary Confidence = "supplementary"
)

// Window selects which admissions contribute diagnosis codes.
type Window string

const (
	WindowCurrentAdmission  Window = "current_admission"
	WindowEmergencyLookback Window = "emergency_lookback"
)

// Points are thousandths of a scheme point, so decimal weights such as 7.1
// sum and compare exactly.
type Points int64

const pointScale = 1000

func PointsFromFloat(v float64) Points {
	return Points(math.Round(v * pointScale))
}

func (p Points) Float() float64 {
	return float64(p) / pointScale
}

type Rule struct {
	Prefix   string
	Category Category
	Also     []Category
}

// Categories returns the primary category followed by any secondary ones.
func (r Rule) Categories() []Category {
	out := make([]Category, 0, 1+len(r.Also))
	out = append(out, r.Category)
	return append(out, r.Also...)
}

// Table is the code->category mapping of one scheme for one ICD version.
type Table struct {
	Scheme     models.SchemeID
	Version    models.ICDVersion
	Source     string
	Confidence Confidence

	rules  map[string]Rule
	maxLen int
}

// Match finds the rule whose prefix matches the normalised code. Prefixes of
// different categories never overlap, so the longest match is the only
// candidate of its category.
func (t *Table) Match(code string) (Rule, bool) {
	if t == nil || code == "" {
		return Rule{}, false
	}
	n := len(code)
	if n > t.maxLen {
		n = t.maxLen
	}
	for ; n > 0; n-- {
		if rule, ok := t.rules[code[:n]]; ok {
			return rule, true
		}
	}
	return Rule{}, false
}

func (t *Table) Len() int {
	return len(t.rules)
}

// Rules returns the table's rules ordered by prefix.
func (t *Table) Rules() []Rule {
	out := make([]Rule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}

type AgeBand struct {
	Min    *float64 `yaml:"min" json:"min,omitempty"`
	Max    *float64 `yaml:"max" json:"max,omitempty"`
	Points float64  `yaml:"points" json:"points"`
}

type RiskBand struct {
	Label        string   `yaml:"label" json:"label"`
	Min          *float64 `yaml:"min" json:"min,omitempty"`
	MinExclusive bool     `yaml:"min_exclusive" json:"min_exclusive,omitempty"`
	Max          *float64 `yaml:"max" json:"max,omitempty"`
	MaxExclusive bool     `yaml:"max_exclusive" json:"max_exclusive,omitempty"`
}

func (b RiskBand) Contains(score float64) bool {
	if b.Min != nil {
		if b.MinExclusive && !(score > *b.Min) {
			return false
		}
		if !b.MinExclusive && score < *b.Min {
			return false
		}
	}
	if b.Max != nil {
		if b.MaxExclusive && !(score < *b.Max) {
			return false
		}
		if !b.MaxExclusive && score > *b.Max {
			return false
		}
	}
	return true
}

// Override says that when Dominant is flagged, Dominated is dropped.
type Override struct {
	Dominant  Category `yaml:"dominant" json:"dominant"`
	Dominated Category `yaml:"dominated" json:"dominated"`
}

type Scheme struct {
	ID               models.SchemeID
	Name             string
	Reference        string
	Window           Window
	LookbackYears    int
	PrimaryExclusion bool
	AgeBands         []AgeBand
	RiskBands        []RiskBand

	categories []Category
	weights    map[Category]Points
	overrides  []Override
	tables     map[models.ICDVersion]*Table
}

func (s *Scheme) Categories() []Category {
	return append([]Category(nil), s.categories...)
}

func (s *Scheme) Weight(c Category) (Points, bool) {
	w, ok := s.weights[c]
	return w, ok
}

// Overrides are returned in topological order of the override graph: every
// pair whose dominant is itself dominated comes after the pair dominating it.
func (s *Scheme) Overrides() []Override {
	return append([]Override(nil), s.overrides...)
}

// Table returns the mapping for exactly this ICD version. There is no
// fallback to the other version.
func (s *Scheme) Table(version models.ICDVersion) (*Table, bool) {
	t, ok := s.tables[version]
	return t, ok
}

func (s *Scheme) Versions() []models.ICDVersion {
	out := make([]models.ICDVersion, 0, len(s.tables))
	for v := range s.tables {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Scheme) AgeScoring() bool {
	return len(s.AgeBands) > 0
}

// AgePoints scores completed years of age against the age bands; bands are
// closed on both ends.
func (s *Scheme) AgePoints(age float64) Points {
	years := math.Floor(age)
	for _, band := range s.AgeBands {
		if band.Min != nil && years < *band.Min {
			continue
		}
		if band.Max != nil && years > *band.Max {
			continue
		}
		return PointsFromFloat(band.Points)
	}
	return 0
}

func (s *Scheme) RiskCategory(score float64) string {
	for _, band := range s.RiskBands {
		if band.Contains(score) {
			return band.Label
		}
	}
	return ""
}

// Catalog is the validated, read-only set of scoring schemes. It is built
// once at startup and shared by every computation.
type Catalog struct {
	schemes map[models.SchemeID]*Scheme
}

func (c *Catalog) Scheme(id models.SchemeID) (*Scheme, bool) {
	if c == nil {
		return nil, false
	}
	s, ok := c.schemes[id]
	return s, ok
}

func (c *Catalog) Schemes() []*Scheme {
	out := make([]*Scheme, 0, len(c.schemes))
	for _, s := range c.schemes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Load reads every *.yaml scheme file in dir. An empty dir loads the tables
// shipped with the engine.
func Load(dir string) (*Catalog, error) {
	if dir == "" {
		return DefaultCatalog()
	}
	return LoadFS(os.DirFS(filepath.Clean(dir)), ".")
}

func DefaultCatalog() (*Catalog, error) {
	return LoadFS(embedded, "data")
}

// MustDefaultCatalog panics when the shipped tables fail validation.
func MustDefaultCatalog() *Catalog {
	cat, err := DefaultCatalog()
	if err != nil {
		panic(err)
	}
	return cat
}

func LoadFS(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	cat := &Catalog{schemes: make(map[models.SchemeID]*Scheme)}
	for _, entry := range entries {
		if entry.IsDir() || !(strings.HasSuffix(entry.Name(), ".yaml") || strings.HasSuffix(entry.Name(), ".yml")) {
			continue
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		scheme, err := ParseScheme(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		if _, dup := cat.schemes[scheme.ID]; dup {
			return nil, &LoadError{Scheme: scheme.ID, reason: fmt.Errorf("%w: scheme defined twice", ErrInvalidTable)}
		}
		cat.schemes[scheme.ID] = scheme
	}
	if len(cat.schemes) == 0 {
		return nil, fmt.Errorf("%w: no scheme files in %s", ErrInvalidTable, dir)
	}
	return cat, nil
}

type schemeFile struct {
	ID               string     `yaml:"id"`
	Name             string     `yaml:"name"`
	Reference        string     `yaml:"reference"`
	Window           string     `yaml:"window"`
	LookbackYears    int        `yaml:"lookback_years"`
	PrimaryExclusion bool       `yaml:"primary_exclusion"`
	AgeBands         []AgeBand  `yaml:"age_bands"`
	RiskBands        []RiskBand `yaml:"risk_bands"`
	Categories       []struct {
		ID     string  `yaml:"id"`
		Weight float64 `yaml:"weight"`
	} `yaml:"categories"`
	Overrides []Override `yaml:"overrides"`
	Tables    []struct {
		Version    int    `yaml:"version"`
		Source     string `yaml:"source"`
		Confidence string `yaml:"confidence"`
		Rules      []struct {
			Category string   `yaml:"category"`
			Also     []string `yaml:"also"`
			Codes    []string `yaml:"codes"`
		} `yaml:"rules"`
	} `yaml:"tables"`
}

// ParseScheme decodes and validates one scheme document.
func ParseScheme(content []byte) (*Scheme, error) {
	var doc schemeFile
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	id := models.SchemeID(strings.TrimSpace(doc.ID))
	if id == "" {
		return nil, &LoadError{reason: fmt.Errorf("%w: missing scheme id", ErrInvalidTable)}
	}
	fail := func(version models.ICDVersion, err error) (*Scheme, error) {
		return nil, &LoadError{Scheme: id, Version: version, reason: err}
	}

	scheme := &Scheme{
		ID:               id,
		Name:             doc.Name,
		Reference:        doc.Reference,
		Window:           Window(doc.Window),
		LookbackYears:    doc.LookbackYears,
		PrimaryExclusion: doc.PrimaryExclusion,
		AgeBands:         doc.AgeBands,
		RiskBands:        doc.RiskBands,
		weights:          make(map[Category]Points),
		tables:           make(map[models.ICDVersion]*Table),
	}
	switch scheme.Window {
	case "":
		scheme.Window = WindowCurrentAdmission
	case WindowCurrentAdmission:
	case WindowEmergencyLookback:
		if scheme.LookbackYears <= 0 {
			return fail(0, fmt.Errorf("%w: emergency_lookback needs lookback_years", ErrInvalidTable))
		}
	default:
		return fail(0, fmt.Errorf("%w: unknown window %q", ErrInvalidTable, doc.Window))
	}

	if len(doc.Categories) == 0 {
		return fail(0, fmt.Errorf("%w: no categories", ErrInvalidTable))
	}
	for _, c := range doc.Categories {
		cat := Category(strings.TrimSpace(c.ID))
		if cat == Unmapped {
			return fail(0, fmt.Errorf("%w: empty category id", ErrInvalidTable))
		}
		if _, dup := scheme.weights[cat]; dup {
			return fail(0, fmt.Errorf("%w: category %s declared twice", ErrInvalidTable, cat))
		}
		scheme.weights[cat] = PointsFromFloat(c.Weight)
		scheme.categories = append(scheme.categories, cat)
	}

	if err := validateAgeBands(scheme.AgeBands); err != nil {
		return fail(0, err)
	}

	for _, td := range doc.Tables {
		version, err := ParseVersion(td.Version)
		if err != nil {
			return fail(0, fmt.Errorf("%w: %v", ErrInvalidTable, err))
		}
		if _, dup := scheme.tables[version]; dup {
			return fail(version, fmt.Errorf("%w: table defined twice", ErrInvalidTable))
		}
		confidence := Confidence(td.Confidence)
		switch confidence {
		case "":
			confidence = ConfidenceReference
		case ConfidenceReference, ConfidenceSupplementary:
		default:
			return fail(version, fmt.Errorf("%w: unknown confidence %q", ErrInvalidTable, td.Confidence))
		}

		var rules []Rule
		for _, rd := range td.Rules {
			primary := Category(strings.TrimSpace(rd.Category))
			if _, ok := scheme.weights[primary]; !ok {
				return fail(version, fmt.Errorf("%w: %q", ErrUnknownCategory, rd.Category))
			}
			also := make([]Category, 0, len(rd.Also))
			for _, a := range rd.Also {
				ac := Category(strings.TrimSpace(a))
				if _, ok := scheme.weights[ac]; !ok {
					return fail(version, fmt.Errorf("%w: %q", ErrUnknownCategory, a))
				}
				if ac != primary {
					also = append(also, ac)
				}
			}
			if len(rd.Codes) == 0 {
				return fail(version, fmt.Errorf("%w: rule for %s has no codes", ErrInvalidTable, primary))
			}
			for _, entry := range rd.Codes {
				prefixes, err := expandCode(entry)
				if err != nil {
					return fail(version, fmt.Errorf("%w: %v", ErrInvalidTable, err))
				}
				for _, p := range prefixes {
					rules = append(rules, Rule{Prefix: p, Category: primary, Also: also})
				}
			}
		}

		table, err := buildTable(id, version, rules)
		if err != nil {
			return fail(version, err)
		}
		table.Source = td.Source
		table.Confidence = confidence
		scheme.tables[version] = table
	}
	if len(scheme.tables) == 0 {
		return fail(0, fmt.Errorf("%w: no mapping tables", ErrInvalidTable))
	}

	ordered, err := orderOverrides(scheme.weights, doc.Overrides)
	if err != nil {
		return fail(0, err)
	}
	scheme.overrides = ordered
	return scheme, nil
}

// buildTable indexes rules by prefix and rejects tables in which two
// different primary categories claim overlapping prefixes.
func buildTable(scheme models.SchemeID, version models.ICDVersion, rules []Rule) (*Table, error) {
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Prefix < rules[j].Prefix })

	for i := range rules {
		for j := i + 1; j < len(rules) && strings.HasPrefix(rules[j].Prefix, rules[i].Prefix); j++ {
			a, b := rules[i], rules[j]
			if a.Category != b.Category {
				return nil, fmt.Errorf("%w: %s (%s) overlaps %s (%s)", ErrAmbiguousMapping, a.Prefix, a.Category, b.Prefix, b.Category)
			}
			if a.Prefix == b.Prefix && !sameCategories(a.Also, b.Also) {
				return nil, fmt.Errorf("%w: %s declared with different secondary categories", ErrAmbiguousMapping, a.Prefix)
			}
		}
	}

	table := &Table{Scheme: scheme, Version: version, rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		table.rules[r.Prefix] = r
		if len(r.Prefix) > table.maxLen {
			table.maxLen = len(r.Prefix)
		}
	}
	return table, nil
}

func sameCategories(a, b []Category) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[Category]int, len(a))
	for _, c := range a {
		seen[c]++
	}
	for _, c := range b {
		if seen[c] == 0 {
			return false
		}
		seen[c]--
	}
	return true
}

func validateAgeBands(bands []AgeBand) error {
	var prevMax *float64
	for i, band := range bands {
		if band.Min != nil && band.Max != nil && *band.Min > *band.Max {
			return fmt.Errorf("%w: age band %d is inverted", ErrInvalidTable, i)
		}
		if i > 0 {
			if prevMax == nil || band.Min == nil || *band.Min <= *prevMax {
				return fmt.Errorf("%w: age band %d overlaps its predecessor", ErrInvalidTable, i)
			}
		}
		prevMax = band.Max
	}
	return nil
}
