// Package rubric parses and validates the organiser-side YAML rubric: top
// matter (title, seed, aead), a document separator, then a sequence of
// check entries. YAML anchors and aliases are resolved by the decoder
// during parse, so aliased condition blocks need no extra handling here.
package rubric

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ajiang-xyz/zekaengine/pkg/automaton"
	"github.com/ajiang-xyz/zekaengine/pkg/models"
	yaml "gopkg.in/yaml.v2"
)

// Check types a leaf condition may carry.
const (
	CheckRegex  = "regex"
	CheckIRegex = "iregex"
	CheckMatch  = "match"
	CheckIMatch = "imatch"
	CheckExists = "exists"
	CheckAbsent = "absent"
)

// Rubric is the fully validated plaintext rubric.
type Rubric struct {
	Title   string
	Seed    int64
	SeedSet bool
	AEAD    string
	Checks  []Check
}

// Check is one scorable entry.
type Check struct {
	Title    string
	Points   float64
	Category models.Category
	Pass     Condition
}

// Condition is a leaf check or a boolean composite over conditions.
type Condition interface{ isCondition() }

// Leaf is a single concrete check.
type Leaf struct {
	Check string
	Args  []string
}

// Group is an and/or composite.
type Group struct {
	Op   string // "and" or "or"
	Subs []Condition
}

func (Leaf) isCondition()  {}
func (Group) isCondition() {}

// SchemaError reports a YAML-shape problem: wrong document structure,
// unknown keys, non-scalar values. The compiler exits 2 for these.
type SchemaError struct{ Msg string }

func (e *SchemaError) Error() string { return "rubric: " + e.Msg }

// CheckError reports a duplicate or malformed check entry. The compiler
// exits 3 for these.
type CheckError struct {
	Title string
	Msg   string
}

func (e *CheckError) Error() string {
	if e.Title == "" {
		return "rubric: malformed check: " + e.Msg
	}
	return fmt.Sprintf("rubric: check %q: %s", e.Title, e.Msg)
}

// ParseFile reads and validates the rubric at path.
func ParseFile(path string) (*Rubric, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the two-document rubric stream.
func Parse(r io.Reader) (*Rubric, error) {
	dec := yaml.NewDecoder(r)

	var top map[string]interface{}
	if err := dec.Decode(&top); err != nil {
		if err == io.EOF {
			return nil, &SchemaError{Msg: "empty rubric"}
		}
		return nil, &SchemaError{Msg: err.Error()}
	}

	var entries []map[string]interface{}
	if err := dec.Decode(&entries); err != nil {
		if err != io.EOF {
			return nil, &SchemaError{Msg: err.Error()}
		}
		// Single-document rubric with no top matter: re-read the first
		// document as the check sequence is not supported; an empty check
		// list is.
	}

	rb := &Rubric{Title: models.DefaultTitle}
	if err := rb.readTopMatter(top); err != nil {
		return nil, err
	}

	seenTitles := map[string]bool{}
	for i, entry := range entries {
		check, err := parseEntry(i, entry)
		if err != nil {
			return nil, err
		}
		key := check.Category.String() + "\x00" + check.Title
		if seenTitles[key] {
			return nil, &CheckError{Title: check.Title, Msg: "duplicate title within category " + check.Category.String()}
		}
		seenTitles[key] = true
		rb.Checks = append(rb.Checks, check)
	}
	return rb, nil
}

func (rb *Rubric) readTopMatter(top map[string]interface{}) error {
	for key, val := range top {
		switch key {
		case "title":
			s, ok := val.(string)
			if !ok {
				return &SchemaError{Msg: "title must be a string"}
			}
			rb.Title = s
		case "seed":
			n, ok := asInt64(val)
			if !ok {
				return &SchemaError{Msg: "seed must be an integer"}
			}
			rb.Seed = n
			rb.SeedSet = true
		case "aead":
			s, ok := val.(string)
			if !ok {
				return &SchemaError{Msg: "aead must be a string"}
			}
			rb.AEAD = s
		case "remote_url", "remote_password", "is_local":
			// Reserved; accepted and ignored.
		default:
			return &SchemaError{Msg: "unknown top-matter key " + fmt.Sprintf("%q", key)}
		}
	}
	return nil
}

func parseEntry(idx int, entry map[string]interface{}) (Check, error) {
	var check Check
	var haveTitle, haveCategory, havePass bool

	for key, val := range entry {
		switch key {
		case "category":
			s, ok := val.(string)
			if !ok {
				return check, &SchemaError{Msg: fmt.Sprintf("entry %d: category must be a string", idx)}
			}
			cat, ok := models.ParseCategory(s)
			if !ok {
				return check, &CheckError{Title: check.Title, Msg: "unknown category " + fmt.Sprintf("%q", s)}
			}
			check.Category = cat
			haveCategory = true
		case "pass":
			cond, err := parsePassList(val)
			if err != nil {
				return check, err
			}
			check.Pass = cond
			havePass = true
		default:
			if haveTitle {
				return check, &CheckError{Title: check.Title, Msg: "entry carries two title keys"}
			}
			pts, ok := asFloat(val)
			if !ok {
				return check, &SchemaError{Msg: fmt.Sprintf("entry %d: point value for %q must be numeric", idx, key)}
			}
			check.Title = key
			check.Points = pts
			haveTitle = true
		}
	}

	switch {
	case !haveTitle:
		return check, &CheckError{Msg: fmt.Sprintf("entry %d has no title key", idx)}
	case !haveCategory:
		check.Category = models.CategoryUncategorized
	}
	if !havePass {
		return check, &CheckError{Title: check.Title, Msg: "entry has no pass conditions"}
	}
	if err := validateCondition(check.Title, check.Pass); err != nil {
		return check, err
	}
	return check, nil
}

// parsePassList handles the `pass:` value: a bare list of conditions is an
// implicit AND.
func parsePassList(val interface{}) (Condition, error) {
	list, ok := val.([]interface{})
	if !ok {
		return nil, &SchemaError{Msg: "pass must be a list of conditions"}
	}
	if len(list) == 0 {
		return nil, &SchemaError{Msg: "pass list is empty"}
	}
	subs := make([]Condition, 0, len(list))
	for _, item := range list {
		c, err := parseCondition(item)
		if err != nil {
			return nil, err
		}
		subs = append(subs, c)
	}
	if len(subs) == 1 {
		return subs[0], nil
	}
	return Group{Op: "and", Subs: subs}, nil
}

func parseCondition(val interface{}) (Condition, error) {
	m, ok := asStringMap(val)
	if !ok || len(m) != 1 {
		return nil, &SchemaError{Msg: "a condition must be a single-key map"}
	}
	for key, inner := range m {
		switch key {
		case "and", "or":
			list, ok := inner.([]interface{})
			if !ok || len(list) == 0 {
				return nil, &SchemaError{Msg: key + " must hold a non-empty list of conditions"}
			}
			subs := make([]Condition, 0, len(list))
			for _, item := range list {
				c, err := parseCondition(item)
				if err != nil {
					return nil, err
				}
				subs = append(subs, c)
			}
			return Group{Op: key, Subs: subs}, nil
		default:
			args, err := asStringList(inner)
			if err != nil {
				return nil, &SchemaError{Msg: "arguments of " + key + " must be a list of strings"}
			}
			return Leaf{Check: key, Args: args}, nil
		}
	}
	return nil, &SchemaError{Msg: "unreachable condition shape"}
}

func validateCondition(title string, c Condition) error {
	switch t := c.(type) {
	case Leaf:
		return validateLeaf(title, t)
	case Group:
		for _, sub := range t.Subs {
			if err := validateCondition(title, sub); err != nil {
				return err
			}
		}
		return nil
	}
	return &CheckError{Title: title, Msg: "unknown condition kind"}
}

func validateLeaf(title string, l Leaf) error {
	switch l.Check {
	case CheckRegex, CheckIRegex, CheckMatch, CheckIMatch:
		if len(l.Args) != 2 {
			return &CheckError{Title: title, Msg: fmt.Sprintf("%s takes [path, pattern], got %d args", l.Check, len(l.Args))}
		}
	case CheckExists, CheckAbsent:
		if len(l.Args) != 1 {
			return &CheckError{Title: title, Msg: fmt.Sprintf("%s takes [path], got %d args", l.Check, len(l.Args))}
		}
	default:
		return &CheckError{Title: title, Msg: "unknown check type " + fmt.Sprintf("%q", l.Check)}
	}
	if !strings.HasPrefix(l.Args[0], "/") {
		return &CheckError{Title: title, Msg: fmt.Sprintf("%s path %q is not absolute", l.Check, l.Args[0])}
	}
	// Patterns must compile now; a malformed regex surfacing at scoring
	// time would be silent by design and therefore undiagnosable.
	switch l.Check {
	case CheckRegex:
		if _, err := automaton.Compile(l.Args[1]); err != nil {
			return &CheckError{Title: title, Msg: err.Error()}
		}
	case CheckIRegex:
		if _, err := automaton.CompileInsensitive(l.Args[1]); err != nil {
			return &CheckError{Title: title, Msg: err.Error()}
		}
	}
	return nil
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[s] = val
		}
		return out, true
	}
	return nil, false
}

func asStringList(v interface{}) ([]string, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("not a list")
	}
	out := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("element %d is not a string", i)
		}
		out[i] = s
	}
	return out, nil
}
