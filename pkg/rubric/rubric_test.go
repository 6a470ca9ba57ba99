package rubric_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/ajiang-xyz/zekaengine/pkg/models"
	"github.com/ajiang-xyz/zekaengine/pkg/rubric"
)

const sampleRubric = `
title: "Practice Image"
seed: 12345
aead: "round-aad"
---
- "Forensics 1": 5
  category: fq
  pass:
    - regex: ["/fq1", "fq1: 2"]
- "Removed bad tool": 3.5
  category: prohibited_file
  pass:
    - absent: ["/tmp/bad.exe"]
`

func TestParseBasics(t *testing.T) {
	rb, err := rubric.Parse(strings.NewReader(sampleRubric))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rb.Title != "Practice Image" || rb.Seed != 12345 || rb.AEAD != "round-aad" {
		t.Errorf("top matter mismatch: %+v", rb)
	}
	if !rb.SeedSet {
		t.Error("SeedSet should be true when seed is present")
	}
	if len(rb.Checks) != 2 {
		t.Fatalf("check count: got %d, want 2", len(rb.Checks))
	}

	first := rb.Checks[0]
	if first.Title != "Forensics 1" || first.Points != 5 || first.Category != models.CategoryFQ {
		t.Errorf("first check mismatch: %+v", first)
	}
	leaf, ok := first.Pass.(rubric.Leaf)
	if !ok {
		t.Fatalf("single condition should parse as a leaf, got %T", first.Pass)
	}
	if leaf.Check != rubric.CheckRegex || leaf.Args[0] != "/fq1" || leaf.Args[1] != "fq1: 2" {
		t.Errorf("leaf mismatch: %+v", leaf)
	}

	if rb.Checks[1].Points != 3.5 {
		t.Errorf("float points: got %v", rb.Checks[1].Points)
	}
}

func TestDefaultsApplied(t *testing.T) {
	src := `
{}
---
- "c": 1
  pass:
    - exists: ["/etc/motd"]
`
	rb, err := rubric.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rb.Title != models.DefaultTitle {
		t.Errorf("default title: got %q", rb.Title)
	}
	if rb.SeedSet {
		t.Error("SeedSet should be false when seed is absent")
	}
	if rb.Checks[0].Category != models.CategoryUncategorized {
		t.Error("missing category should default to uncategorized")
	}
}

func TestImplicitAndAndComposites(t *testing.T) {
	src := `
{}
---
- "combo": 2
  category: local_policy
  pass:
    - or:
        - and:
            - regex: ["/f", "A"]
            - regex: ["/f", "B"]
        - regex: ["/f", "2"]
- "pair": 1
  category: local_policy
  pass:
    - exists: ["/a"]
    - exists: ["/b"]
`
	rb, err := rubric.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	combo, ok := rb.Checks[0].Pass.(rubric.Group)
	if !ok || combo.Op != "or" || len(combo.Subs) != 2 {
		t.Fatalf("or group mismatch: %+v", rb.Checks[0].Pass)
	}
	inner, ok := combo.Subs[0].(rubric.Group)
	if !ok || inner.Op != "and" || len(inner.Subs) != 2 {
		t.Fatalf("nested and mismatch: %+v", combo.Subs[0])
	}

	pair, ok := rb.Checks[1].Pass.(rubric.Group)
	if !ok || pair.Op != "and" || len(pair.Subs) != 2 {
		t.Fatalf("bare condition list must become an implicit and, got %+v", rb.Checks[1].Pass)
	}
}

func TestAnchorsAndAliases(t *testing.T) {
	src := `
{}
---
- "a": 1
  category: fq
  pass:
    - regex: &cond ["/shared", "x+"]
- "b": 2
  category: fq
  pass:
    - regex: *cond
`
	rb, err := rubric.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b := rb.Checks[1].Pass.(rubric.Leaf)
	if b.Args[0] != "/shared" || b.Args[1] != "x+" {
		t.Errorf("alias substitution failed: %+v", b)
	}
}

func TestErrors(t *testing.T) {
	cases := []struct {
		name    string
		src     string
		isCheck bool // expect *CheckError rather than *SchemaError
	}{
		{
			name: "unknown category",
			src:  "{}\n---\n- \"x\": 1\n  category: nonsense\n  pass:\n    - exists: [\"/f\"]\n",
			isCheck: true,
		},
		{
			name: "unknown check type",
			src:  "{}\n---\n- \"x\": 1\n  category: fq\n  pass:\n    - frobnicate: [\"/f\"]\n",
			isCheck: true,
		},
		{
			name: "malformed regex",
			src:  "{}\n---\n- \"x\": 1\n  category: fq\n  pass:\n    - regex: [\"/f\", \"(a\"]\n",
			isCheck: true,
		},
		{
			name: "duplicate title in category",
			src:  "{}\n---\n- \"x\": 1\n  category: fq\n  pass:\n    - exists: [\"/f\"]\n- \"x\": 2\n  category: fq\n  pass:\n    - exists: [\"/g\"]\n",
			isCheck: true,
		},
		{
			name: "wrong arg count",
			src:  "{}\n---\n- \"x\": 1\n  category: fq\n  pass:\n    - regex: [\"/f\"]\n",
			isCheck: true,
		},
		{
			name: "missing pass",
			src:  "{}\n---\n- \"x\": 1\n  category: fq\n",
			isCheck: true,
		},
		{
			name: "unknown top matter key",
			src:  "bogus: 1\n---\n- \"x\": 1\n  category: fq\n  pass:\n    - exists: [\"/f\"]\n",
		},
		{
			name: "non-numeric points",
			src:  "{}\n---\n- \"x\": \"five\"\n  category: fq\n  pass:\n    - exists: [\"/f\"]\n",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := rubric.Parse(strings.NewReader(c.src))
			if err == nil {
				t.Fatal("expected an error")
			}
			var checkErr *rubric.CheckError
			var schemaErr *rubric.SchemaError
			gotCheck := errors.As(err, &checkErr)
			gotSchema := errors.As(err, &schemaErr)
			if c.isCheck && !gotCheck {
				t.Errorf("expected CheckError, got %T: %v", err, err)
			}
			if !c.isCheck && !gotSchema {
				t.Errorf("expected SchemaError, got %T: %v", err, err)
			}
		})
	}
}

func TestDuplicateTitleAcrossCategoriesAllowed(t *testing.T) {
	src := "{}\n---\n- \"x\": 1\n  category: fq\n  pass:\n    - exists: [\"/f\"]\n- \"x\": 2\n  category: malware\n  pass:\n    - exists: [\"/g\"]\n"
	if _, err := rubric.Parse(strings.NewReader(src)); err != nil {
		t.Fatalf("same title in different categories should be legal: %v", err)
	}
}
