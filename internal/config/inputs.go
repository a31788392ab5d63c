package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
)

// matrixFile is the on-disk layout of the probability matrices:
//
//	current:
//	  Proposal:
//	    Existing Client: 0.50
//	proposed:
//	  Proposal:
//	    Existing Client: 0.55
type matrixFile struct {
	Current  map[string]map[string]float64 `yaml:"current"`
	Proposed map[string]map[string]float64 `yaml:"proposed"`
}

// Matrices is the pair of probability matrices for a reprice run.
type Matrices struct {
	Current  model.ProbabilityMatrix
	Proposed model.ProbabilityMatrix
}

// LoadMatrices reads the current and proposed matrices from YAML. Unknown
// stage or class labels and probabilities outside [0,1] are returned
// together as a *model.ValidationError.
func LoadMatrices(path string) (*Matrices, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read matrices %s", path)
	}
	var f matrixFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse matrices %s", path)
	}

	var issues []model.RowIssue
	cur := buildMatrix("current", f.Current, &issues)
	prop := buildMatrix("proposed", f.Proposed, &issues)
	if len(f.Current) == 0 {
		issues = append(issues, model.RowIssue{Source: path, Column: "current", Reason: "matrix is empty"})
	}
	if len(f.Proposed) == 0 {
		issues = append(issues, model.RowIssue{Source: path, Column: "proposed", Reason: "matrix is empty"})
	}
	for _, msg := range cur.Validate() {
		issues = append(issues, model.RowIssue{Source: path, Column: "current", Reason: msg})
	}
	for _, msg := range prop.Validate() {
		issues = append(issues, model.RowIssue{Source: path, Column: "proposed", Reason: msg})
	}
	if len(issues) > 0 {
		return nil, &model.ValidationError{Issues: issues}
	}
	return &Matrices{Current: cur, Proposed: prop}, nil
}

func buildMatrix(name string, raw map[string]map[string]float64, issues *[]model.RowIssue) model.ProbabilityMatrix {
	m := model.ProbabilityMatrix{}
	for _, stageLabel := range sortedKeys(raw) {
		stage, ok := normalize.Stage(stageLabel)
		if !ok {
			*issues = append(*issues, model.RowIssue{Source: "matrices", Column: name, Reason: fmt.Sprintf("unknown stage %q", stageLabel)})
			continue
		}
		for _, classLabel := range sortedKeys(raw[stageLabel]) {
			class, ok := normalize.AccountClass(classLabel)
			if !ok {
				*issues = append(*issues, model.RowIssue{Source: "matrices", Column: name, Reason: fmt.Sprintf("unknown account class %q", classLabel)})
				continue
			}
			m.Set(stage, class, raw[stageLabel][classLabel])
		}
	}
	return m
}

// aliasFile is the on-disk alias list:
//
//	aliases:
//	  - from: DOJ
//	    to: Department of Justice
type aliasFile struct {
	Aliases []struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	} `yaml:"aliases"`
}

// LoadAliases reads the folder-label alias list. A label mapped to two
// different canonical names is a validation error.
func LoadAliases(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read aliases %s", path)
	}
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse aliases %s", path)
	}

	out := make(map[string]string, len(f.Aliases))
	byKey := make(map[string]string, len(f.Aliases))
	var issues []model.RowIssue
	for i, a := range f.Aliases {
		if a.From == "" || a.To == "" {
			issues = append(issues, model.RowIssue{Source: path, Row: i + 1, Column: "aliases", Reason: "from and to are required"})
			continue
		}
		key := normalize.AccountName(a.From)
		if prev, ok := byKey[key]; ok && normalize.AccountName(prev) != normalize.AccountName(a.To) {
			issues = append(issues, model.RowIssue{Source: path, Row: i + 1, Column: "aliases",
				Reason: fmt.Sprintf("%q maps to both %q and %q", a.From, prev, a.To)})
			continue
		}
		byKey[key] = a.To
		out[a.From] = a.To
	}
	if len(issues) > 0 {
		return nil, &model.ValidationError{Issues: issues}
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
