package generator

import (
	"path/filepath"
	"slices"
)

// Environment variables exported to every generation worker
const (
	EnvOutputPath = "GENERATION_OUTPUT_PATH"
	EnvJobID      = "GENERATION_JOB_ID"
)

// Template is the configured shape of a worker command line
type Template struct {
	Command    string
	Args       []string
	OutputFlag string
	Env        []string
}

// Descriptor is the fully resolved invocation of the generation worker for one job
type Descriptor struct {
	JobID      string
	Command    string
	Args       []string
	Dir        string
	Env        []string
	OutputPath string
}

// Describe resolves the invocation for a job. The result depends only on its
// arguments: configured args first, then the optional output flag, then the
// staged inputs in input order. The worker runs inside the job directory, so a
// worker that writes a fixed file name into its working directory still writes
// into the job's namespace.
func (t Template) Describe(jobID, dir, outputPath string, inputs []string) Descriptor {
	args := slices.Clone(t.Args)
	if t.OutputFlag != "" {
		args = append(args, t.OutputFlag, outputPath)
	}
	args = append(args, inputs...)

	env := slices.Clone(t.Env)
	env = append(env,
		EnvOutputPath+"="+outputPath,
		EnvJobID+"="+jobID,
	)

	return Descriptor{
		JobID:      jobID,
		Command:    t.Command,
		Args:       args,
		Dir:        filepath.Clean(dir),
		Env:        env,
		OutputPath: outputPath,
	}
}
