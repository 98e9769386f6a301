package query

import (
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Derivation builds the parameters of the next drill-down step from a picked entity.
type Derivation func(e Entity, rng *rand.Rand) (map[string]string, error)

// DrillDown describes how a kind chains its follow-up queries.
type DrillDown struct {
	Strategy  string
	Extractor Extractor
	Derive    Derivation
}

// Built-in drill-down strategies.
const (
	StrategyGeo  = "geo"
	StrategyDate = "date"
)

var derivations = map[string]Derivation{
	StrategyGeo:  DeriveGeo,
	StrategyDate: DeriveDate,
}

// DefaultDrillDowns maps the drill-down templates of the standard query mix.
func DefaultDrillDowns() map[string]string {
	return map[string]string{
		"query24.txt": StrategyGeo,
		"query25.txt": StrategyDate,
	}
}

// ResolveDrillDowns turns a template name to strategy name mapping into drill-down specs.
func ResolveDrillDowns(strategies map[string]string) (map[string]DrillDown, error) {
	out := make(map[string]DrillDown, len(strategies))
	for name, strategy := range strategies {
		strategy = strings.ToLower(strings.TrimSpace(strategy))
		derive, ok := derivations[strategy]
		if !ok {
			return nil, errors.Errorf("template %s: unknown drill-down strategy %q", name, strategy)
		}
		out[name] = DrillDown{
			Strategy:  strategy,
			Extractor: XMLResultsExtractor{},
			Derive:    derive,
		}
	}
	return out, nil
}

// DeriveGeo constrains the next query around the entity's coordinates with a
// random radius in [0.01, 0.08).
func DeriveGeo(e Entity, rng *rand.Rand) (map[string]string, error) {
	lat, err := floatProperty(e, "lat", "geo:lat")
	if err != nil {
		return nil, err
	}
	long, err := floatProperty(e, "long", "geo:long")
	if err != nil {
		return nil, err
	}
	radius := 0.01 + rng.Float64()*0.07
	return map[string]string{
		"lat":    strconv.FormatFloat(lat, 'f', -1, 64),
		"long":   strconv.FormatFloat(long, 'f', -1, 64),
		"radius": strconv.FormatFloat(radius, 'f', 4, 64),
	}, nil
}

// DeriveDate constrains the next query to the entity's modification date with a
// random range of 1 or 2.
func DeriveDate(e Entity, rng *rand.Rand) (map[string]string, error) {
	raw, ok := e.Property("dateModified", "cwork:dateModified")
	if !ok {
		return nil, errors.Errorf("entity %s has no dateModified", e.URI)
	}
	date, err := parseDateTime(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "entity %s: parsing dateModified", e.URI)
	}
	return map[string]string{
		"dateModified": date.Format(time.RFC3339Nano),
		"range":        strconv.Itoa(1 + rng.Intn(2)),
	}, nil
}

// xsd:dateTime with or without a timezone; a missing zone means UTC.
var dateTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

func parseDateTime(raw string) (time.Time, error) {
	var err error
	for _, layout := range dateTimeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func floatProperty(e Entity, names ...string) (float64, error) {
	raw, ok := e.Property(names...)
	if !ok {
		return 0, errors.Errorf("entity %s has no %s", e.URI, names[0])
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "entity %s: parsing %s", e.URI, names[0])
	}
	return v, nil
}
