package query

import (
	"bufio"
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"sparqlbench/internal/allocation"
)

// Directory names below the queries path, one per role.
const (
	AggregationDir = "aggregation"
	EditorialDir   = "editorial"
)

// Template is one query template as loaded from disk.
type Template struct {
	Name string
	Role allocation.Role
	Type Type
	Text string
}

type templateKey struct {
	role allocation.Role
	name string
}

// TemplateSet holds the raw templates of a run. It is shared by all agents;
// each agent renders through its own Generator.
type TemplateSet struct {
	templates map[templateKey]Template
	names     map[allocation.Role][]string
	lines     *lineCache
}

// NewTemplateSet validates the given templates by parsing each one once.
func NewTemplateSet(templates ...Template) (*TemplateSet, error) {
	s := &TemplateSet{
		templates: make(map[templateKey]Template, len(templates)),
		names:     make(map[allocation.Role][]string),
		lines:     &lineCache{files: make(map[string][]string)},
	}
	probe := newEngine(rand.New(rand.NewSource(1)), s.lines)
	for _, t := range templates {
		if _, err := probe.parse(t.Name, t.Text); err != nil {
			return nil, errors.Wrapf(err, "parsing %s template %s", t.Role, t.Name)
		}
		k := templateKey{t.Role, t.Name}
		if _, dup := s.templates[k]; dup {
			return nil, errors.Errorf("duplicate %s template %s", t.Role, t.Name)
		}
		s.templates[k] = t
		s.names[t.Role] = append(s.names[t.Role], t.Name)
	}
	for role := range s.names {
		sortNames(role, s.names[role])
	}
	return s, nil
}

// LoadDir reads every *.txt template below root/aggregation and root/editorial.
func LoadDir(root string) (*TemplateSet, error) {
	var templates []Template
	for role, dir := range map[allocation.Role]string{
		allocation.RoleRead:  AggregationDir,
		allocation.RoleWrite: EditorialDir,
	} {
		files, err := filepath.Glob(filepath.Join(root, dir, "*.txt"))
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s templates", role)
		}
		for _, f := range files {
			content, err := os.ReadFile(f)
			if err != nil {
				return nil, errors.Wrapf(err, "reading template %s", f)
			}
			name := filepath.Base(f)
			text := string(content)
			templates = append(templates, Template{
				Name: name,
				Role: role,
				Type: DetectType(role, name, text),
				Text: text,
			})
		}
	}
	return NewTemplateSet(templates...)
}

// Names lists the template names of a role in allocation order.
func (s *TemplateSet) Names(role allocation.Role) []string {
	out := make([]string, len(s.names[role]))
	copy(out, s.names[role])
	return out
}

// Template returns a template by role and name.
func (s *TemplateSet) Template(role allocation.Role, name string) (Template, bool) {
	t, ok := s.templates[templateKey{role, name}]
	return t, ok
}

// Generator renders queries for one agent. It is not safe for concurrent use.
type Generator struct {
	set    *TemplateSet
	engine *TemplateEngine
	parsed map[templateKey]*template.Template
}

// NewGenerator parses every template with functions bound to rng, so the
// generated sequence is deterministic for a given seed.
func (s *TemplateSet) NewGenerator(rng *rand.Rand) (*Generator, error) {
	g := &Generator{
		set:    s,
		engine: newEngine(rng, s.lines),
		parsed: make(map[templateKey]*template.Template, len(s.templates)),
	}
	for k, t := range s.templates {
		parsed, err := g.engine.parse(t.Name, t.Text)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s template %s", t.Role, t.Name)
		}
		g.parsed[k] = parsed
	}
	return g, nil
}

// Generate renders the template of kind. params feeds the {{{name}}} placeholders
// and is nil for a seed query.
func (g *Generator) Generate(kind allocation.Kind, params map[string]string) (Query, error) {
	k := templateKey{kind.Role, kind.Name}
	t, ok := g.parsed[k]
	if !ok {
		return Query{}, errors.Errorf("no %s template named %s", kind.Role, kind.Name)
	}
	id, err := uuid.NewRandomFromReader(g.engine.rng)
	if err != nil {
		return Query{}, errors.Wrap(err, "generating uuid")
	}
	text, err := g.engine.execute(t, TemplateData{UUID: id.String(), Params: params})
	if err != nil {
		return Query{}, errors.Wrapf(err, "rendering %s", kind.Name)
	}
	return Query{
		Text:         text,
		Type:         g.set.templates[k].Type,
		TemplateName: kind.Name,
	}, nil
}

// TemplateData is passed to the execution context.
type TemplateData struct {
	UUID   string
	Params map[string]string
}

// TemplateEngine handles parsing and executing templates.
type TemplateEngine struct {
	rng     *rand.Rand
	lines   *lineCache
	funcMap template.FuncMap
}

func newEngine(rng *rand.Rand, lines *lineCache) *TemplateEngine {
	e := &TemplateEngine{rng: rng, lines: lines}
	e.funcMap = template.FuncMap{
		"randomInt":    e.randomInt,
		"randomFloat":  e.randomFloat,
		"randomUUID":   e.randomUUID,
		"randomChoice": e.randomChoice,
		"randomLine":   e.randomLine,
		"randomDate":   e.randomDate,
		"uuid":         e.randomUUID, // Alias
	}
	return e
}

var mustacheParam = regexp.MustCompile(`\{\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}\}`)

// Preprocess converts mustache style placeholders to Go template syntax:
// {{{name}}} reads a drill-down parameter, {{uuid}} a per-query random id.
func (e *TemplateEngine) Preprocess(input string) string {
	s := mustacheParam.ReplaceAllString(input, `{{index .Params "$1"}}`)
	s = strings.ReplaceAll(s, "{{uuid}}", "{{.UUID}}")
	return s
}

func (e *TemplateEngine) parse(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(e.funcMap).Option("missingkey=zero").Parse(e.Preprocess(text))
}

func (e *TemplateEngine) execute(t *template.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// --- Functions ---

func (e *TemplateEngine) randomInt(min, max int) int {
	if max <= min {
		return min
	}
	return e.rng.Intn(max-min) + min
}

func (e *TemplateEngine) randomFloat(min, max float64) string {
	v := min + e.rng.Float64()*(max-min)
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func (e *TemplateEngine) randomUUID() string {
	id, err := uuid.NewRandomFromReader(e.rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (e *TemplateEngine) randomChoice(choices ...string) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[e.rng.Intn(len(choices))]
}

// randomDate returns an xsd:dateTime between the start of fromYear and the end of toYear.
func (e *TemplateEngine) randomDate(fromYear, toYear int) string {
	from := time.Date(fromYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(toYear+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	span := to.Sub(from)
	if span <= 0 {
		return from.Format(time.RFC3339)
	}
	return from.Add(time.Duration(e.rng.Int63n(int64(span)))).Format(time.RFC3339)
}

func (e *TemplateEngine) randomLine(filename string) (string, error) {
	lines, err := e.lines.get(filename)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}
	return lines[e.rng.Intn(len(lines))], nil
}

// lineCache lazily loads the files read by randomLine. It is shared by every generator.
type lineCache struct {
	mu    sync.RWMutex
	files map[string][]string
}

func (c *lineCache) get(filename string) ([]string, error) {
	c.mu.RLock()
	lines, ok := c.files[filename]
	c.mu.RUnlock()
	if ok {
		return lines, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double check
	if lines, ok = c.files[filename]; ok {
		return lines, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file '%s'", filename)
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	var loaded []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			loaded = append(loaded, line)
		}
	}
	c.files[filename] = loaded
	return loaded, nil
}

var editorialRank = map[string]int{"insert": 0, "update": 1, "delete": 2}

// sortNames orders templates the way allocation weights are listed: editorial
// operations as insert, update, delete; everything else by embedded number,
// so query2.txt sorts before query10.txt.
func sortNames(role allocation.Role, names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		if role == allocation.RoleWrite {
			ri, iok := editorialRank[strings.TrimSuffix(names[i], filepath.Ext(names[i]))]
			rj, jok := editorialRank[strings.TrimSuffix(names[j], filepath.Ext(names[j]))]
			if iok && jok {
				return ri < rj
			}
			if iok != jok {
				return iok
			}
		}
		return naturalLess(names[i], names[j])
	})
}

var digits = regexp.MustCompile(`\d+`)

func naturalLess(a, b string) bool {
	na, aok := firstNumber(a)
	nb, bok := firstNumber(b)
	if aok && bok && na != nb {
		return na < nb
	}
	return a < b
}

func firstNumber(s string) (int, bool) {
	m := digits.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	return n, err == nil
}
