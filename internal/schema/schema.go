// Package schema decides whether a parsed model response can be trusted.
//
// Validation runs in two passes. The structural pass checks the response
// against an embedded JSON Schema for its kind. Only when that succeeds does
// the semantic pass run the rules in rules.go. Every violation is collected;
// a single error invalidates the whole response.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

// Kind selects the response shape being validated.
type Kind string

const (
	KindSingle     Kind = "single"
	KindIntegrated Kind = "integrated"
)

// ParseKind accepts the wire names of the two kinds.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSingle:
		return KindSingle, nil
	case KindIntegrated:
		return KindIntegrated, nil
	}
	return "", fmt.Errorf("ParseKind: unknown analysis kind %q", s)
}

// InsightsKey names the array holding the insights for kind.
func (k Kind) InsightsKey() string {
	if k == KindIntegrated {
		return "integratedInsights"
	}
	return "insights"
}

// Issue is one structural or semantic finding.
type Issue struct {
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Result is returned by Validate. Data is set only when IsValid is true.
type Result struct {
	IsValid  bool          `json:"isValid"`
	Data     jsonval.Value `json:"data,omitempty"`
	Errors   []Issue       `json:"errors,omitempty"`
	Warnings []Issue       `json:"warnings,omitempty"`
}

// Messages flattens the errors into strings, for logs and corrective prompts.
func (r Result) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.String()
	}
	return out
}

const schemaBaseURL = "https://finance-insights.local/schemas/"

//go:embed schemas/*.schema.json
var schemaFS embed.FS

type compiled struct {
	schema     *jsonschema.Schema
	properties map[string]struct{}
}

var schemas = mustLoad()

func mustLoad() map[Kind]compiled {
	kinds := []Kind{KindSingle, KindIntegrated}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	raw := make(map[Kind][]byte, len(kinds))
	for _, k := range kinds {
		data, err := schemaFS.ReadFile("schemas/" + string(k) + ".schema.json")
		if err != nil {
			panic(fmt.Sprintf("schema: read %s: %v", k, err))
		}
		if err := c.AddResource(schemaURL(k), bytes.NewReader(data)); err != nil {
			panic(fmt.Sprintf("schema: add %s: %v", k, err))
		}
		raw[k] = data
	}

	out := make(map[Kind]compiled, len(kinds))
	for _, k := range kinds {
		sch, err := c.Compile(schemaURL(k))
		if err != nil {
			panic(fmt.Sprintf("schema: compile %s: %v", k, err))
		}
		props, err := topLevelProperties(raw[k])
		if err != nil {
			panic(fmt.Sprintf("schema: properties %s: %v", k, err))
		}
		out[k] = compiled{schema: sch, properties: props}
	}
	return out
}

func schemaURL(k Kind) string {
	return schemaBaseURL + string(k) + ".schema.json"
}

func topLevelProperties(doc []byte) (map[string]struct{}, error) {
	var head struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return nil, err
	}
	props := make(map[string]struct{}, len(head.Properties))
	for name := range head.Properties {
		props[name] = struct{}{}
	}
	return props, nil
}

// Validate checks response against the schema and semantic rules for kind.
func Validate(response jsonval.Value, kind Kind) Result {
	c, ok := schemas[kind]
	if !ok {
		return Result{Errors: []Issue{{Rule: "kind", Message: fmt.Sprintf("unknown analysis kind %q", kind)}}}
	}
	if response == nil {
		response = jsonval.Null{}
	}

	if errs := structural(c.schema, response); len(errs) > 0 {
		return Result{Errors: errs}
	}

	var res Result
	for _, rule := range rules {
		errs, warns := rule(response, kind)
		res.Errors = append(res.Errors, errs...)
		res.Warnings = append(res.Warnings, warns...)
	}
	if len(res.Errors) > 0 {
		return res
	}
	res.IsValid = true
	res.Data = response
	return res
}

func structural(sch *jsonschema.Schema, response jsonval.Value) []Issue {
	err := sch.Validate(jsonval.ToAny(response))
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Issue{{Rule: "schema", Message: err.Error()}}
	}

	var issues []Issue
	for _, leaf := range leaves(ve) {
		issues = append(issues, Issue{
			Path:    pointerToPath(leaf.InstanceLocation),
			Rule:    keyword(leaf.KeywordLocation),
			Message: leaf.Message,
		})
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return issues
}

func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

func keyword(location string) string {
	if i := strings.LastIndex(location, "/"); i >= 0 {
		return location[i+1:]
	}
	return location
}

// pointerToPath turns /insights/0/confidence into insights[0].confidence.
func pointerToPath(pointer string) string {
	var b strings.Builder
	for _, seg := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		if seg == "" {
			continue
		}
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}
