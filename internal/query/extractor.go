package query

import (
	"encoding/xml"
	"strings"

	"github.com/pkg/errors"
)

// Entity is one row of a result, reduced to a URI and its named values.
type Entity struct {
	URI        string
	Properties map[string]string
}

// Property returns the first non-empty value stored under any of the given names.
func (e Entity) Property(names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := e.Properties[n]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Extractor turns a raw result into the entities a drill-down step picks from.
type Extractor interface {
	Extract(result string) ([]Entity, error)
}

// XMLResultsExtractor reads the SPARQL Query Results XML Format.
// Every <result> becomes an entity; its URI is the first URI-valued binding.
type XMLResultsExtractor struct{}

type xmlSparql struct {
	Results []xmlResult `xml:"results>result"`
}

type xmlResult struct {
	Bindings []xmlBinding `xml:"binding"`
}

type xmlBinding struct {
	Name    string  `xml:"name,attr"`
	URI     *string `xml:"uri"`
	Literal *string `xml:"literal"`
	BNode   *string `xml:"bnode"`
}

func (b xmlBinding) value() string {
	switch {
	case b.URI != nil:
		return strings.TrimSpace(*b.URI)
	case b.Literal != nil:
		return strings.TrimSpace(*b.Literal)
	case b.BNode != nil:
		return strings.TrimSpace(*b.BNode)
	}
	return ""
}

func (XMLResultsExtractor) Extract(result string) ([]Entity, error) {
	if strings.TrimSpace(result) == "" {
		return nil, nil
	}
	var doc xmlSparql
	if err := xml.Unmarshal([]byte(result), &doc); err != nil {
		return nil, errors.Wrap(err, "decoding sparql xml results")
	}

	entities := make([]Entity, 0, len(doc.Results))
	for _, r := range doc.Results {
		e := Entity{Properties: make(map[string]string, len(r.Bindings))}
		for _, b := range r.Bindings {
			v := b.value()
			e.Properties[b.Name] = v
			if e.URI == "" && b.URI != nil {
				e.URI = v
			}
		}
		if len(e.Properties) == 0 {
			continue
		}
		entities = append(entities, e)
	}
	return entities, nil
}
