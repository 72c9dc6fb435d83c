package pipespec

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/encodelab/fmripipe/internal/ctxlog"
)

// Load parses and validates one pipeline definition file.
func Load(ctx context.Context, path string) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing pipeline file %s: %w", path, diags)
	}

	var file File
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &file); diags.HasErrors() {
		return nil, fmt.Errorf("decoding pipeline file %s: %w", path, diags)
	}
	if len(file.Pipelines) == 0 {
		return nil, fmt.Errorf("pipeline file %s declares no pipelines", path)
	}

	seen := make(map[string]bool, len(file.Pipelines))
	for _, p := range file.Pipelines {
		if seen[p.Name] {
			return nil, fmt.Errorf("pipeline %q is declared twice", p.Name)
		}
		seen[p.Name] = true
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
	}

	ctxlog.FromContext(ctx).Debug("pipeline definitions loaded",
		"path", path, "pipelines", len(file.Pipelines))
	return &file, nil
}
