// Package changeset collects change records from the engine's rules,
// detects conflicting field mutations and serializes the result in a
// stable, byte-identical order.
package changeset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/model"
)

type fieldKey struct {
	kind  model.ObjectKind
	key   string
	field string
}

type fieldOwner struct {
	record int
	value  string
}

// Emitter accumulates change records. It is not safe for concurrent use.
type Emitter struct {
	allowConflicts bool

	records []model.ChangeRecord
	owners  map[fieldKey]fieldOwner
	seen    map[string]bool
	issues  []model.Issue
	skipped int
}

// NewEmitter creates an Emitter. With allowConflicts set, a conflicting
// record is skipped and recorded as an issue instead of failing the run.
func NewEmitter(allowConflicts bool) *Emitter {
	return &Emitter{
		allowConflicts: allowConflicts,
		owners:         make(map[fieldKey]fieldOwner),
		seen:           make(map[string]bool),
	}
}

// Add appends records in order. Exact duplicates are dropped. A record
// that would set a field already set to a different value returns a
// *model.ConflictError, unless conflicts are allowed.
func (e *Emitter) Add(recs ...model.ChangeRecord) error {
	for _, rec := range recs {
		if err := validate(rec); err != nil {
			return err
		}
		sig := signature(rec)
		if e.seen[sig] {
			continue
		}

		if conflict := e.findConflict(rec); conflict != nil {
			if !e.allowConflicts {
				return conflict
			}
			zap.L().Warn("changeset: conflict skipped",
				zap.String("kind", string(conflict.Kind)),
				zap.String("key", conflict.Key),
				zap.String("field", conflict.Field),
			)
			e.issues = append(e.issues, model.Issue{
				Kind:    model.IssueConflict,
				Subject: fmt.Sprintf("%s %s", conflict.Kind, conflict.Key),
				Detail:  conflict.Error(),
			})
			e.skipped++
			continue
		}

		e.seen[sig] = true
		idx := len(e.records)
		e.records = append(e.records, rec)
		if !mutates(rec.Op) {
			continue
		}
		for f, v := range rec.Fields {
			fk := fieldKey{rec.Kind, rec.Key, f}
			if _, ok := e.owners[fk]; !ok {
				e.owners[fk] = fieldOwner{record: idx, value: v}
			}
		}
	}
	return nil
}

// findConflict checks every field of rec against earlier owners in sorted
// field order so the reported field is deterministic.
func (e *Emitter) findConflict(rec model.ChangeRecord) *model.ConflictError {
	if !mutates(rec.Op) {
		return nil
	}
	for _, f := range sortedKeys(rec.Fields) {
		owner, ok := e.owners[fieldKey{rec.Kind, rec.Key, f}]
		if !ok || owner.value == rec.Fields[f] {
			continue
		}
		return &model.ConflictError{
			Kind:        rec.Kind,
			Key:         rec.Key,
			Field:       f,
			First:       e.records[owner.record],
			Second:      rec,
			FirstValue:  owner.value,
			SecondValue: rec.Fields[f],
		}
	}
	return nil
}

// Records returns the accepted records in serialization order.
func (e *Emitter) Records() []model.ChangeRecord {
	out := make([]model.ChangeRecord, len(e.records))
	copy(out, e.records)
	Sort(out)
	return out
}

// Issues returns conflicts recorded under allowConflicts.
func (e *Emitter) Issues() []model.Issue {
	return e.issues
}

// Skipped returns how many records were dropped as conflicts.
func (e *Emitter) Skipped() int {
	return e.skipped
}

// Len returns the number of accepted records.
func (e *Emitter) Len() int {
	return len(e.records)
}

// Sort orders records by kind, key, operation, rule, rationale, then by
// their serialized form.
func Sort(recs []model.ChangeRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Op != b.Op {
			return a.Op < b.Op
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		if a.Rationale != b.Rationale {
			return a.Rationale < b.Rationale
		}
		return signature(a) < signature(b)
	})
}

// mutates reports whether the operation writes field values that must not
// conflict. Tags and no-ops are additive.
func mutates(op model.Operation) bool {
	return op == model.OpUpdate || op == model.OpInsert
}

func validate(rec model.ChangeRecord) error {
	switch {
	case rec.Kind == "":
		return eris.New("changeset: record has no object kind")
	case rec.Key == "":
		return eris.Errorf("changeset: %s record has no key", rec.Kind)
	case rec.Rule == "":
		return eris.Errorf("changeset: %s %s has no originating rule", rec.Kind, rec.Key)
	}
	return nil
}

func signature(rec model.ChangeRecord) string {
	var sb strings.Builder
	sb.WriteString(string(rec.Kind))
	sb.WriteByte(0)
	sb.WriteString(rec.Key)
	sb.WriteByte(0)
	sb.WriteString(string(rec.Op))
	sb.WriteByte(0)
	sb.WriteString(string(rec.Rule))
	sb.WriteByte(0)
	sb.WriteString(rec.Rationale)
	sb.WriteByte(0)
	sb.WriteString(rec.Account)
	sb.WriteByte(0)
	sb.WriteString(string(rec.Confidence))
	for _, k := range sortedKeys(rec.Fields) {
		sb.WriteByte(0)
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(rec.Fields[k])
	}
	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
