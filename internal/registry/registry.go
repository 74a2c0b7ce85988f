// Package registry implements the parameter registry (C1): the
// alias-to-measurand map loaded once at startup, plus the lookup rules
// around quality-flag aliases and sensor-number suffixes.
package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fmiobs/obsengine/internal/obserrors"
)

// Classification is the kind a parameter is classified as.
type Classification int

const (
	Data Classification = iota
	DataDerived
	DataIndependent
	Landscaped
)

// frictionSensorDefault is the hardcoded exception: the friction
// parameter defaults to sensor 3 instead of the usual default of 1.
const frictionSensorDefault = 3
const defaultSensorNo = 1

// ClassAttributes holds the per-station-class attributes declared
// alongside the parameter map in configuration.
type ClassAttributes struct {
	UsesCommonQueryMethod bool
	Cached                bool
	GroupCodes            map[string]struct{}
	ProducerIDs           map[int]struct{}
	DatabaseTableName     string
}

// entry is what a registered alias resolves to for one station class.
type entry struct {
	measurandCode string
	classify      Classification
}

// Registry is the loaded, immutable parameter map. It is safe for
// concurrent read-only use after Load returns; it is never mutated
// afterward.
type Registry struct {
	// byAlias[alias][class] -> entry; alias keys are lower-cased.
	byAlias map[string]map[string]entry
	classes []string
	attrs   map[string]ClassAttributes
}

// AliasDecl is one parameter declaration as read from configuration:
// an alias plus its per-class measurand codes.
type AliasDecl struct {
	Alias      string
	Classify   Classification
	PerClass   map[string]string // station_class -> measurand_code
}

// ClassDecl is one station-class declaration as read from configuration.
type ClassDecl struct {
	Name  string
	Attrs ClassAttributes
}

// Load builds a Registry from the parsed configuration document. It
// fails with obserrors.ErrConfig if a class list is empty, with
// obserrors.ErrDuplicateAlias if the same alias (case-insensitively) is
// declared twice, and rejects any alias pre-declared with a "qc_" prefix
// since that prefix is reserved for the quality-flag lookup convention.
func Load(aliases []AliasDecl, classes []ClassDecl) (*Registry, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("registry: no station classes declared: %w", obserrors.ErrConfig)
	}

	r := &Registry{
		byAlias: make(map[string]map[string]entry),
		attrs:   make(map[string]ClassAttributes, len(classes)),
	}

	for _, c := range classes {
		if c.Name == "" {
			return nil, fmt.Errorf("registry: station class with empty name: %w", obserrors.ErrConfig)
		}
		r.classes = append(r.classes, c.Name)
		r.attrs[c.Name] = c.Attrs
	}

	for _, decl := range aliases {
		lower := strings.ToLower(decl.Alias)
		if strings.HasPrefix(lower, "qc_") {
			return nil, fmt.Errorf("registry: alias %q may not be pre-declared with a qc_ prefix: %w", decl.Alias, obserrors.ErrConfig)
		}
		if _, exists := r.byAlias[lower]; exists {
			return nil, fmt.Errorf("registry: alias %q declared twice: %w", decl.Alias, obserrors.ErrDuplicateAlias)
		}
		perClass := make(map[string]entry, len(decl.PerClass))
		for class, code := range decl.PerClass {
			perClass[class] = entry{measurandCode: code, classify: decl.Classify}
		}
		r.byAlias[lower] = perClass
	}

	return r, nil
}

// Lookup is the result of resolving a raw query-time alias: the
// normalized base alias, whether the quality-flag column was requested,
// and the sensor number to use.
type Lookup struct {
	BaseAlias   string
	QualityFlag bool
	SensorNo    int
}

// NormalizeAlias applies the qc_ prefix and _<digit> suffix rules to a
// raw, query-time alias, without consulting the registered parameter
// map. It is split out from IsParameter/ParameterID so both can share
// the same normalization.
func NormalizeAlias(raw string) Lookup {
	alias := strings.ToLower(strings.TrimSpace(raw))

	qc := false
	if strings.HasPrefix(alias, "qc_") {
		qc = true
		alias = strings.TrimPrefix(alias, "qc_")
	}

	sensorNo := defaultSensorNo
	if alias == "friction" {
		sensorNo = frictionSensorDefault
	}

	if idx := strings.LastIndexByte(alias, '_'); idx >= 0 && idx < len(alias)-1 {
		suffix := alias[idx+1:]
		if n, err := strconv.Atoi(suffix); err == nil && len(suffix) == 1 {
			sensorNo = n
			alias = alias[:idx]
		}
	}

	return Lookup{BaseAlias: alias, QualityFlag: qc, SensorNo: sensorNo}
}

// IsParameter reports whether alias is registered for class.
func (r *Registry) IsParameter(alias, class string) bool {
	lk := NormalizeAlias(alias)
	perClass, ok := r.byAlias[lk.BaseAlias]
	if !ok {
		return false
	}
	_, ok = perClass[class]
	return ok
}

// IsParameterVariant reports whether alias is registered for any class.
func (r *Registry) IsParameterVariant(alias string) bool {
	lk := NormalizeAlias(alias)
	_, ok := r.byAlias[lk.BaseAlias]
	return ok
}

// ParameterID returns the measurand code, the resolved sensor number, and
// whether the quality-flag column was requested, for alias in class. It
// fails with obserrors.ErrUnknownParameter if alias is not registered for
// class.
func (r *Registry) ParameterID(alias, class string) (code string, sensorNo int, qualityFlag bool, err error) {
	lk := NormalizeAlias(alias)
	perClass, ok := r.byAlias[lk.BaseAlias]
	if !ok {
		return "", 0, false, fmt.Errorf("registry: parameter %q: %w", alias, obserrors.ErrUnknownParameter)
	}
	e, ok := perClass[class]
	if !ok {
		return "", 0, false, fmt.Errorf("registry: parameter %q not registered for class %q: %w", alias, class, obserrors.ErrUnknownParameter)
	}
	return e.measurandCode, lk.SensorNo, lk.QualityFlag, nil
}

// Classify returns the classification of alias, or DataIndependent with
// ok=false if the alias is not registered under any class.
func (r *Registry) Classify(alias string) (Classification, bool) {
	lk := NormalizeAlias(alias)
	perClass, ok := r.byAlias[lk.BaseAlias]
	if !ok || len(perClass) == 0 {
		return DataIndependent, false
	}
	for _, e := range perClass {
		return e.classify, true
	}
	return DataIndependent, false
}

// GroupCodesFor returns the group codes declared for class.
func (r *Registry) GroupCodesFor(class string) map[string]struct{} {
	return r.attrs[class].GroupCodes
}

// ProducerIDsFor returns the producer ids declared for class.
func (r *Registry) ProducerIDsFor(class string) map[int]struct{} {
	return r.attrs[class].ProducerIDs
}

// TableFor returns the database table name declared for class.
func (r *Registry) TableFor(class string) string {
	return r.attrs[class].DatabaseTableName
}

// UsesCommonQuery reports whether class uses the QueryOpenData-shaped
// pivot query path.
func (r *Registry) UsesCommonQuery(class string) bool {
	return r.attrs[class].UsesCommonQueryMethod
}

// IsCached reports whether class is eligible for the local cache path.
func (r *Registry) IsCached(class string) bool {
	return r.attrs[class].Cached
}

// ValidStationTypes returns the ordered list of known station-class
// names, in declaration order.
func (r *Registry) ValidStationTypes() []string {
	return append([]string(nil), r.classes...)
}
