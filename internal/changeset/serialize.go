package changeset

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/recon-cli/internal/model"
)

// FieldPrefix prefixes field names in the flat serialized form.
const FieldPrefix = "fields."

// Flatten renders a record as a flat string map. encoding/json sorts map
// keys, so the serialized line is key-sorted.
func Flatten(rec model.ChangeRecord) map[string]string {
	flat := map[string]string{
		"kind":       string(rec.Kind),
		"key":        rec.Key,
		"op":         string(rec.Op),
		"rationale":  rec.Rationale,
		"account":    rec.Account,
		"confidence": string(rec.Confidence),
		"rule":       string(rec.Rule),
	}
	for k, v := range rec.Fields {
		flat[FieldPrefix+k] = v
	}
	return flat
}

// WriteJSONL writes one flat, key-sorted JSON object per line.
func WriteJSONL(w io.Writer, recs []model.ChangeRecord) error {
	bw := bufio.NewWriter(w)
	for _, rec := range recs {
		line, err := json.Marshal(Flatten(rec))
		if err != nil {
			return eris.Wrapf(err, "changeset: marshal %s %s", rec.Kind, rec.Key)
		}
		if _, err := bw.Write(line); err != nil {
			return eris.Wrap(err, "changeset: write")
		}
		if err := bw.WriteByte('\n'); err != nil {
			return eris.Wrap(err, "changeset: write")
		}
	}
	if err := bw.Flush(); err != nil {
		return eris.Wrap(err, "changeset: flush")
	}
	return nil
}

// Marshal returns the JSONL serialization of recs.
func Marshal(recs []model.ChangeRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteJSONL(&buf, recs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Digest returns the hex SHA-256 of the serialized change set.
func Digest(recs []model.ChangeRecord) (string, error) {
	b, err := Marshal(recs)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// ByKind groups records per object kind, preserving order.
func ByKind(recs []model.ChangeRecord) map[model.ObjectKind][]model.ChangeRecord {
	out := make(map[model.ObjectKind][]model.ChangeRecord)
	for _, rec := range recs {
		out[rec.Kind] = append(out[rec.Kind], rec)
	}
	return out
}

var csvBaseColumns = []string{"key", "op", "rule", "confidence", "account", "rationale"}

// WriteCSV writes a bulk-upload CSV: fixed columns followed by the sorted
// union of field names across recs.
func WriteCSV(w io.Writer, recs []model.ChangeRecord) error {
	fieldSet := make(map[string]string)
	for _, rec := range recs {
		for k := range rec.Fields {
			fieldSet[k] = ""
		}
	}
	fields := sortedKeys(fieldSet)

	cw := csv.NewWriter(w)
	header := append(append([]string{}, csvBaseColumns...), fields...)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "changeset: write csv header")
	}
	for _, rec := range recs {
		row := []string{
			rec.Key, string(rec.Op), string(rec.Rule), string(rec.Confidence),
			rec.Account, rec.Rationale,
		}
		for _, f := range fields {
			row = append(row, rec.Fields[f])
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "changeset: write csv row %s", rec.Key)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "changeset: flush csv")
	}
	return nil
}

// FormatMoney renders an amount with two decimals and no grouping.
func FormatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatDate renders a date as ISO 8601, or "" when nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
