// Package pdfinfo validates uploaded PDFs and reports their page count.
package pdfinfo

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Inspect validates the PDF at inPath in relaxed mode, writes an optimized
// copy to outPath and returns the page count of that copy.
func Inspect(inPath, outPath string) (int, error) {
	if err := api.OptimizeFile(inPath, outPath, relaxedConfig()); err != nil {
		return 0, fmt.Errorf("failed to validate/optimize PDF: %w", err)
	}
	n, err := api.PageCountFile(outPath)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return n, nil
}

// PageCount returns the page count without rewriting the file.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return n, nil
}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}
