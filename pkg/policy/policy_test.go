package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/magi-stack/rin-memory/pkg/policy"
)

func TestAutoApprove(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	ingestPolicy := `package ingest

default approve = false

approve if {
	input.category == "preference"
}
`
	gt.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ingest.rego"), []byte(ingestPolicy), 0644))

	p, err := policy.Load(ctx, tmpDir)
	gt.NoError(t, err)
	gt.V(t, p).NotNil()

	approve, err := p.AutoApprove(ctx, policy.Input{
		Content:  "prefers dark mode",
		Category: "preference",
		UserID:   "rin",
	})
	gt.NoError(t, err)
	gt.Equal(t, approve, true)

	approve, err = p.AutoApprove(ctx, policy.Input{
		Content:  "lives in Tokyo",
		Category: "fact",
		UserID:   "rin",
	})
	gt.NoError(t, err)
	gt.Equal(t, approve, false)
}

func TestLoadEmptyDir(t *testing.T) {
	ctx := context.Background()

	p, err := policy.Load(ctx, t.TempDir())
	gt.NoError(t, err)
	gt.V(t, p == nil).Equal(true)

	// A nil policy always denies.
	approve, err := p.AutoApprove(ctx, policy.Input{Category: "preference"})
	gt.NoError(t, err)
	gt.Equal(t, approve, false)
}

func TestLoadInvalidPolicy(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	gt.NoError(t, os.WriteFile(filepath.Join(tmpDir, "broken.rego"), []byte("not rego at all {"), 0644))

	_, err := policy.Load(ctx, tmpDir)
	gt.Error(t, err)
}
