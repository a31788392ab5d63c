package store

import (
	"github.com/pmezard/go-difflib/difflib"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/model"
)

// DiffChanges returns a unified diff of two runs' change sets, or "" when
// they are byte-identical.
func DiffChanges(a, b *model.Run) (string, error) {
	if string(a.Changes) == string(b.Changes) {
		return "", nil
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a.Changes)),
		B:        difflib.SplitLines(string(b.Changes)),
		FromFile: a.ID,
		ToFile:   b.ID,
		Context:  1,
	})
	if err != nil {
		return "", eris.Wrap(err, "store: diff changes")
	}
	return out, nil
}
