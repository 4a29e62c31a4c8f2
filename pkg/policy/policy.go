// Package policy evaluates the optional Rego ingest policy that decides
// whether a candidate memory skips human review. Policies live under a
// directory as *.rego files in the "ingest" package:
//
//	package ingest
//
//	default approve = false
//
//	approve if input.category == "preference"
//
// When no policy directory is configured, every candidate goes to the
// pending queue unless auto-approval is forced by configuration.
package policy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Input is the candidate view the policy evaluates.
type Input struct {
	Content  string `json:"content"`
	Category string `json:"category"`
	UserID   string `json:"user_id"`
	Source   string `json:"source"`
}

// IngestPolicy wraps a prepared query over data.ingest.
type IngestPolicy struct {
	query *rego.PreparedEvalQuery
}

// Load reads all *.rego files from policyDir and prepares the ingest
// query. It returns nil when the directory holds no policy files.
func Load(ctx context.Context, policyDir string) (*IngestPolicy, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := []func(*rego.Rego){rego.Query("data.ingest")}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare ingest policy")
	}

	return &IngestPolicy{query: &prepared}, nil
}

// AutoApprove evaluates the policy for a candidate. Missing or non-bool
// results deny auto-approval rather than fail.
func (p *IngestPolicy) AutoApprove(ctx context.Context, input Input) (bool, error) {
	if p == nil || p.query == nil {
		return false, nil
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate ingest policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return false, nil
	}
	approve, ok := data["approve"].(bool)
	if !ok {
		return false, nil
	}
	return approve, nil
}
