package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ajiang-xyz/zekaengine/internal/cliutil"
	"github.com/ajiang-xyz/zekaengine/pkg/compiler"
	"github.com/ajiang-xyz/zekaengine/pkg/models"
	"github.com/ajiang-xyz/zekaengine/pkg/rubric"
	version "github.com/ajiang-xyz/zekaengine/pkg/version"
)

// Package main provides the zekac CLI, the rubric compiler that turns a
// plaintext YAML rubric into the opaque artifact the engine scores from.

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `zekac - Zeka rubric compiler

Compiles a plaintext YAML rubric into the opaque scoring artifact.

Usage:
  zekac build <rubric.yaml> [-o zeka.dat] [-decoys N]
  zekac version

Commands:
  build    Validate the rubric and write the compiled artifact
           Exit codes: 0 success, 2 rubric schema failure,
           3 duplicate or malformed check
  version  Display CLI and engine version

Examples:
  zekac build round.yaml
  zekac build round.yaml -o /image/zeka.dat
`)
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	buildCmd := flag.NewFlagSet("build", flag.ExitOnError)
	buildOut := buildCmd.String("o", models.ArtifactFileName, "Output artifact path")
	buildDecoys := buildCmd.Int("decoys", compiler.DefaultDecoys, "Decoy points mixed into each polynomial")

	switch os.Args[1] {
	case "build":
		buildCmd.Parse(os.Args[2:])
		if buildCmd.NArg() != 1 {
			buildCmd.Usage()
			os.Exit(1)
		}
		runBuild(buildCmd.Arg(0), *buildOut, *buildDecoys)
	case "version":
		fmt.Printf("zekac %s\n", version.EngineVersion())
	default:
		flag.Usage()
		os.Exit(1)
	}
}

func runBuild(rubricPath, outPath string, decoys int) {
	rb, err := rubric.ParseFile(rubricPath)
	if err != nil {
		exitRubricError(err)
	}

	art, err := compiler.Compile(rb, compiler.Options{
		// A rubric without a declared seed gets the wall clock, matching
		// the YAML schema's documented default.
		Seed:   time.Now().UnixNano(),
		Decoys: decoys,
	})
	if err != nil {
		exitRubricError(err)
	}

	if err := art.Save(outPath); err != nil {
		cliutil.ExitError(err)
	}
	fmt.Printf("Wrote %s (%d checks, %d+%d+%d coefficients)\n",
		outPath, len(rb.Checks), len(art.L1), len(art.L2), len(art.L3))
}

// exitRubricError maps the rubric error taxonomy onto the documented exit
// codes.
func exitRubricError(err error) {
	var checkErr *rubric.CheckError
	if errors.As(err, &checkErr) {
		cliutil.ExitCode(err, 3)
	}
	var schemaErr *rubric.SchemaError
	if errors.As(err, &schemaErr) {
		cliutil.ExitCode(err, 2)
	}
	cliutil.ExitCode(err, 2)
}
