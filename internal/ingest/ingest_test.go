package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/recon-cli/internal/config"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
	"github.com/sells-group/recon-cli/internal/ocr"
)

func oppColumnsConfig() config.OpportunityColumns {
	return config.OpportunityColumns{
		ID:                    "Opportunity ID",
		Account:               "Account Name",
		Name:                  "Opportunity Name",
		AccountClass:          "Account Classification",
		Stage:                 "Stage",
		Revenue:               "Revenue",
		ACV:                   "ACV",
		TermMonths:            "Term (Months)",
		WeightedACV:           "Weighted ACV",
		CustomProbability:     "Custom Probability",
		CalculatedProbability: "Calculated Probability",
		RevenueType:           "Revenue Type",
		CloseDate:             "Close Date",
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validationIssues(t *testing.T, err error) []model.RowIssue {
	t.Helper()
	require.Error(t, err)
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Issues
}

func TestLoadOpportunities_CSV(t *testing.T) {
	path := writeFile(t, t.TempDir(), "opps.csv",
		"Opportunity ID,Account Name,Opportunity Name,Account Classification,Stage,Revenue,Weighted ACV,Custom Probability,Revenue Type,Close Date,Term (Months)\n"+
			`006A,Acme Ltd,Acme Renewal 2026,Existing Client,Stage 4 - Proposal,"$100,000",50000,,Recurring,2025-12-15,24`+"\n"+
			"006B,Globex,Globex Pilot,New Logo,Pilot,20000,,70%,,15/01/2026,\n"+
			",,,,,,,,,,\n"+
			"006C,Initech,Initech LOI,LOI,SQO,0,0,,,,\n")

	opps, err := LoadOpportunities(context.Background(), path, "", oppColumnsConfig())
	require.NoError(t, err)
	require.Len(t, opps, 3)

	a := opps[0]
	assert.Equal(t, "006A", a.ID)
	assert.Equal(t, "Acme Ltd", a.AccountLabel)
	assert.Equal(t, normalize.AccountName("Acme Ltd"), a.AccountKey)
	assert.Equal(t, normalize.OppName("Acme Renewal 2026"), a.NameKey)
	assert.Equal(t, model.AccountExistingClient, a.AccountClass)
	assert.Equal(t, model.StageProposal, a.Stage)
	assert.InDelta(t, 100000, a.Revenue, 1e-9)
	require.NotNil(t, a.WeightedACV)
	assert.InDelta(t, 50000, *a.WeightedACV, 1e-9)
	assert.Nil(t, a.CustomProbability)
	assert.Nil(t, a.ACV)
	assert.Equal(t, 24, a.TermMonths)
	assert.Equal(t, model.RevenueTypeRecurring, a.RevenueType)
	require.NotNil(t, a.CloseDate)
	assert.Equal(t, time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC), *a.CloseDate)
	assert.Equal(t, 2, a.Row)
	assert.Equal(t, "opps.csv", a.Source)

	b := opps[1]
	assert.Equal(t, model.StagePilot, b.Stage)
	require.NotNil(t, b.CustomProbability)
	assert.InDelta(t, 0.70, *b.CustomProbability, 1e-9)
	assert.Nil(t, b.WeightedACV)
	require.NotNil(t, b.CloseDate)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), *b.CloseDate)

	c := opps[2]
	assert.Equal(t, 5, c.Row, "blank row still counts toward sheet position")
	require.NotNil(t, c.WeightedACV)
	assert.Zero(t, *c.WeightedACV)
	assert.Nil(t, c.CloseDate)
}

func TestLoadOpportunities_CollectsEveryIssue(t *testing.T) {
	path := writeFile(t, t.TempDir(), "opps.csv",
		"Opportunity ID,Account Name,Opportunity Name,Stage,Revenue,Close Date\n"+
			"1,Acme,Deal A,Dreaming,100,2025-12-01\n"+
			"2,Acme,Deal B,Proposal,abc,2025-12-01\n"+
			"3,Acme,Deal C,Proposal,-5,2025-12-01\n"+
			"1,,Deal D,Proposal,5,someday\n")

	_, err := LoadOpportunities(context.Background(), path, "", oppColumnsConfig())
	issues := validationIssues(t, err)
	require.Len(t, issues, 6)

	assert.Equal(t, 2, issues[0].Row)
	assert.Equal(t, "Stage", issues[0].Column)
	assert.Contains(t, issues[0].Reason, `unknown stage "Dreaming"`)
	assert.Equal(t, 3, issues[1].Row)
	assert.Contains(t, issues[1].Reason, "bad revenue")
	assert.Equal(t, 4, issues[2].Row)
	assert.Contains(t, issues[2].Reason, "negative revenue")
	assert.Contains(t, issues[3].Reason, "duplicate opportunity id")
	assert.Contains(t, issues[4].Reason, "empty account")
	assert.Contains(t, issues[5].Reason, "unparseable date")
	for _, is := range issues {
		assert.Equal(t, "opps.csv", is.Source)
	}
}

func TestLoadOpportunities_MissingRequiredColumn(t *testing.T) {
	path := writeFile(t, t.TempDir(), "opps.csv",
		"Account Name,Opportunity Name,Revenue\nAcme,Deal,100\n")

	_, err := LoadOpportunities(context.Background(), path, "", oppColumnsConfig())
	issues := validationIssues(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "Stage", issues[0].Column)
	assert.Equal(t, "missing required column", issues[0].Reason)
}

func TestLoadOpportunities_UnknownAccountClass(t *testing.T) {
	path := writeFile(t, t.TempDir(), "opps.csv",
		"Account Name,Opportunity Name,Account Classification,Stage,Revenue\nAcme,Deal,Partner,SQO,100\n")

	_, err := LoadOpportunities(context.Background(), path, "", oppColumnsConfig())
	issues := validationIssues(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Reason, `unknown account class "Partner"`)
}

func TestLoadOpportunities_OptionalRejectedToNull(t *testing.T) {
	path := writeFile(t, t.TempDir(), "opps.csv",
		"Account Name,Opportunity Name,Stage,Revenue,ACV,Calculated Probability\nAcme,Deal,SQO,100,n/a,tbd\n")

	opps, err := LoadOpportunities(context.Background(), path, "", oppColumnsConfig())
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Nil(t, opps[0].ACV)
	assert.Nil(t, opps[0].CalculatedProbability)
}

func TestLoadOpportunities_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Pipeline")
	require.NoError(t, err)
	header := sheet.AddRow()
	for _, h := range []string{"Account Name", "Opportunity Name", "Stage", "Revenue", "Calculated Probability"} {
		header.AddCell().SetString(h)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("Acme")
	row.AddCell().SetString("Acme Expansion")
	row.AddCell().SetString("5. Proposal")
	row.AddCell().SetFloatWithFormat(250000, "$#,##0")
	row.AddCell().SetFloat(0.5)
	path := filepath.Join(t.TempDir(), "opps.xlsx")
	require.NoError(t, f.Save(path))

	opps, err := LoadOpportunities(context.Background(), path, "Pipeline", oppColumnsConfig())
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.InDelta(t, 250000, opps[0].Revenue, 1e-9)
	assert.Equal(t, model.StageProposal, opps[0].Stage)
	require.NotNil(t, opps[0].CalculatedProbability)
	assert.InDelta(t, 0.5, *opps[0].CalculatedProbability, 1e-9)
}

func TestLoadOpportunities_MissingFile(t *testing.T) {
	_, err := LoadOpportunities(context.Background(), filepath.Join(t.TempDir(), "none.csv"), "", oppColumnsConfig())
	require.Error(t, err)
	var ve *model.ValidationError
	assert.False(t, errors.As(err, &ve))
}

const runRateCSV = "Account,Oct 2025,Nov 2025,Dec 2025\n" +
	`Acme Ltd,"10,000","12,000",` + "\n" +
	"Globex,5000,,\n" +
	"Initech,,,\n" +
	",,,\n"

func TestLoadRunRate_RightmostMonth(t *testing.T) {
	path := writeFile(t, t.TempDir(), "runrate.csv", runRateCSV)

	rows, err := LoadRunRate(context.Background(), path, config.RunRateColumns{Account: "Account"},
		RunRateOptions{Currency: model.USD})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	acme := rows[0]
	assert.Equal(t, normalize.AccountName("Acme Ltd"), acme.AccountKey)
	assert.Equal(t, []string{"Oct 2025", "Nov 2025", "Dec 2025"}, acme.MonthLabels)
	assert.Equal(t, []float64{10000, 12000, 0}, acme.Months)
	assert.Equal(t, "Nov 2025", acme.MonthUsed)
	assert.InDelta(t, 12000, acme.MonthlyUSD, 1e-9)
	assert.InDelta(t, 144000, acme.AnnualizedUSD, 1e-9)
	assert.Equal(t, 2, acme.Row)

	assert.Equal(t, "Oct 2025", rows[1].MonthUsed)
	assert.InDelta(t, 60000, rows[1].AnnualizedUSD, 1e-9)

	assert.Empty(t, rows[2].MonthUsed)
	assert.Zero(t, rows[2].AnnualizedUSD)
}

func TestLoadRunRate_EURConverted(t *testing.T) {
	path := writeFile(t, t.TempDir(), "runrate.csv", runRateCSV)

	rows, err := LoadRunRate(context.Background(), path, config.RunRateColumns{Account: "Account"},
		RunRateOptions{Currency: model.EUR, EURUSDRate: 1.18})
	require.NoError(t, err)
	assert.InDelta(t, 14160, rows[0].MonthlyUSD, 1e-6)
	assert.InDelta(t, 169920, rows[0].AnnualizedUSD, 1e-6)
	assert.InDelta(t, 11800, rows[0].Months[0], 1e-6)
}

func TestLoadRunRate_PinnedMonth(t *testing.T) {
	path := writeFile(t, t.TempDir(), "runrate.csv", runRateCSV)

	rows, err := LoadRunRate(context.Background(), path, config.RunRateColumns{Account: "Account"},
		RunRateOptions{MonthColumn: "Oct 2025", Currency: model.USD})
	require.NoError(t, err)
	assert.Equal(t, "Oct 2025", rows[0].MonthUsed)
	assert.InDelta(t, 120000, rows[0].AnnualizedUSD, 1e-9)

	_, err = LoadRunRate(context.Background(), path, config.RunRateColumns{Account: "Account"},
		RunRateOptions{MonthColumn: "Jan 2026", Currency: model.USD})
	issues := validationIssues(t, err)
	assert.Equal(t, "Jan 2026", issues[0].Column)
}

func TestLoadRunRate_DeclaredMonths(t *testing.T) {
	path := writeFile(t, t.TempDir(), "runrate.csv", runRateCSV)

	rows, err := LoadRunRate(context.Background(), path,
		config.RunRateColumns{Account: "Account", Months: []string{"Oct 2025", "Nov 2025"}},
		RunRateOptions{Currency: model.USD})
	require.NoError(t, err)
	assert.Len(t, rows[0].Months, 2)

	_, err = LoadRunRate(context.Background(), path,
		config.RunRateColumns{Account: "Account", Months: []string{"Feb 2026"}},
		RunRateOptions{Currency: model.USD})
	issues := validationIssues(t, err)
	assert.Contains(t, issues[0].Reason, "missing month column")
}

func TestLoadRunRate_BadValue(t *testing.T) {
	path := writeFile(t, t.TempDir(), "runrate.csv", "Account,Nov 2025\nAcme,lots\n")

	_, err := LoadRunRate(context.Background(), path, config.RunRateColumns{Account: "Account"},
		RunRateOptions{Currency: model.USD})
	issues := validationIssues(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 2, issues[0].Row)
	assert.Contains(t, issues[0].Reason, `bad run-rate value "lots"`)
}

func TestLoadRunRate_MissingAccountColumn(t *testing.T) {
	path := writeFile(t, t.TempDir(), "runrate.csv", "Client,Nov 2025\nAcme,100\n")

	_, err := LoadRunRate(context.Background(), path, config.RunRateColumns{Account: "Account"},
		RunRateOptions{Currency: model.USD})
	issues := validationIssues(t, err)
	assert.Equal(t, "missing required column", issues[0].Reason)
}

func TestListContracts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Globex/sow.pdf", "%PDF")
	writeFile(t, root, "Acme/msa.txt", "annual fee of $120,000")
	writeFile(t, root, "Acme/notes.docx", "x")
	writeFile(t, root, "Acme/.hidden.txt", "x")
	writeFile(t, root, "Acme/~$lock.pdf", "x")
	writeFile(t, root, "loose.txt", "x")
	writeFile(t, root, ".git/config.txt", "x")

	got, err := ListContracts(root)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Acme", got[0].AccountLabel)
	assert.Equal(t, "msa.txt", got[0].FileLabel)
	assert.Equal(t, filepath.Join(root, "Acme", "msa.txt"), got[0].Path)
	assert.Equal(t, "Globex", got[1].AccountLabel)

	_, err = ListContracts(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestLoadContracts_RecordsReadErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Acme/msa.txt", "annual fee of $120,000")
	writeFile(t, root, "Globex/sow.pdf", "%PDF")

	got, err := LoadContracts(context.Background(), root, ocr.NewDocument(nil), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "annual fee of $120,000", got[0].Text)
	assert.NoError(t, got[0].Err)
	assert.Empty(t, got[1].Text)
	assert.Error(t, got[1].Err)
}

type echoExtractor struct{}

func (echoExtractor) ExtractText(_ context.Context, path string) (string, error) {
	return filepath.Base(path), nil
}

func TestLoadContracts_KeepsListingOrder(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 25; i++ {
		writeFile(t, root, fmt.Sprintf("Account %02d/contract.txt", i), "x")
	}

	got, err := LoadContracts(context.Background(), root, echoExtractor{}, 8)
	require.NoError(t, err)
	require.Len(t, got, 25)
	for i, c := range got {
		assert.Equal(t, fmt.Sprintf("Account %02d", i), c.AccountLabel)
		assert.Equal(t, "contract.txt", c.Text)
	}
}

func TestLoadContracts_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Acme/msa.txt", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LoadContracts(ctx, root, echoExtractor{}, 0)
	assert.Error(t, err)
}
