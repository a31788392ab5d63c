package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/recon-cli/internal/ocr"
)

const defaultConcurrency = 4

// ContractInput is one contract document: its account folder, file label,
// and full text. Err is set when the text could not be read.
type ContractInput struct {
	AccountLabel string
	FileLabel    string
	Path         string
	Text         string
	Err          error
}

// ListContracts walks <root>/<account folder>/<file> and returns the
// readable documents sorted by folder then file. Hidden entries and loose
// files at the root are ignored.
func ListContracts(root string) ([]ContractInput, error) {
	folders, err := os.ReadDir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read contracts root %s", root)
	}

	var out []ContractInput
	for _, folder := range folders {
		if hidden(folder.Name()) {
			continue
		}
		if !folder.IsDir() {
			zap.L().Debug("ingest: loose file at contracts root ignored", zap.String("file", folder.Name()))
			continue
		}
		dir := filepath.Join(root, folder.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read contract folder %s", dir)
		}
		for _, f := range files {
			if f.IsDir() || hidden(f.Name()) || !ocr.Supported(f.Name()) {
				continue
			}
			out = append(out, ContractInput{
				AccountLabel: folder.Name(),
				FileLabel:    f.Name(),
				Path:         filepath.Join(dir, f.Name()),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AccountLabel != out[j].AccountLabel {
			return out[i].AccountLabel < out[j].AccountLabel
		}
		return out[i].FileLabel < out[j].FileLabel
	})
	return out, nil
}

// LoadContracts lists the corpus under root and extracts every document's
// text in parallel. Results keep the listing order; a document that fails
// to read carries its error instead of failing the load.
func LoadContracts(ctx context.Context, root string, ext ocr.Extractor, concurrency int) ([]ContractInput, error) {
	inputs, err := ListContracts(root)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := ext.ExtractText(gctx, inputs[i].Path)
			if err != nil {
				zap.L().Warn("ingest: contract text extraction failed",
					zap.String("path", inputs[i].Path),
					zap.Error(err),
				)
				inputs[i].Err = err
				return nil // recorded against the contract
			}
			inputs[i].Text = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "ingest: load contracts")
	}

	zap.L().Info("ingest: contracts loaded",
		zap.String("root", root),
		zap.Int("documents", len(inputs)),
	)
	return inputs, nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
}
