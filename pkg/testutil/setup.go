package testutil

import (
	"strings"
	"testing"

	"github.com/ajiang-xyz/zekaengine/pkg/artifact"
	"github.com/ajiang-xyz/zekaengine/pkg/compiler"
	"github.com/ajiang-xyz/zekaengine/pkg/rubric"
)

// MustRubric parses a rubric source string, failing the test on error.
// Exported for use in external test packages.
func MustRubric(t *testing.T, src string) *rubric.Rubric {
	t.Helper()
	rb, err := rubric.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("rubric.Parse: %v", err)
	}
	return rb
}

// MustArtifact compiles a rubric source and pushes the result through the
// binary encode/decode round trip, so tests always score against an
// artifact that survived serialization.
func MustArtifact(t *testing.T, src string, opts compiler.Options) *artifact.Artifact {
	t.Helper()
	art, err := compiler.Compile(MustRubric(t, src), opts)
	if err != nil {
		t.Fatalf("compiler.Compile: %v", err)
	}
	data, err := art.Encode()
	if err != nil {
		t.Fatalf("artifact.Encode: %v", err)
	}
	loaded, err := artifact.Decode(data)
	if err != nil {
		t.Fatalf("artifact.Decode: %v", err)
	}
	return loaded
}
