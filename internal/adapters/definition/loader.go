package definition

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/xjson"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// FormatFromPath picks the format by file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".hcl":
		return FormatHCL, true
	default:
		return "", false
	}
}

// Loader reads workflow definitions. JSON and YAML files hold one workflow;
// HCL files may hold several.
type Loader struct {
	logger *slog.Logger
}

func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger: logger.With("component", "definition-loader"),
	}
}

func (l *Loader) Parse(data []byte, format Format, name string) ([]*domain.WorkflowGraph, error) {
	switch format {
	case FormatJSON:
		var doc document
		if err := xjson.UnmarshalStrict(data, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %v: %w", name, err, domain.ErrInvalidInput)
		}
		return single(doc, name)

	case FormatYAML:
		var doc document
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s: %v: %w", name, err, domain.ErrInvalidInput)
		}
		return single(doc, name)

	case FormatHCL:
		// hclparse caches by filename, so each parse gets its own parser.
		return parseHCL(hclparse.NewParser(), data, name)

	default:
		return nil, fmt.Errorf("unknown definition format %q: %w", format, domain.ErrInvalidInput)
	}
}

func single(doc document, name string) ([]*domain.WorkflowGraph, error) {
	wf, err := doc.toGraph()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return []*domain.WorkflowGraph{wf}, nil
}

func (l *Loader) LoadFile(path string) ([]*domain.WorkflowGraph, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported definition file %s: %w", path, domain.ErrInvalidInput)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	workflows, err := l.Parse(data, format, path)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("loaded workflow definitions", "path", path, "format", format, "count", len(workflows))
	return workflows, nil
}

// LoadDir loads every supported file under dir in lexical path order.
// Duplicate workflow ids across files are rejected.
func (l *Loader) LoadDir(dir string) ([]*domain.WorkflowGraph, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := FormatFromPath(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		l.logger.Warn("no workflow definitions found", "path", dir)
		return nil, nil
	}

	seen := make(map[string]string)
	var out []*domain.WorkflowGraph
	for _, path := range paths {
		workflows, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, wf := range workflows {
			if prev, dup := seen[wf.ID]; dup {
				return nil, fmt.Errorf("workflow %s defined in %s and %s: %w", wf.ID, prev, path, domain.ErrConflict)
			}
			seen[wf.ID] = path
			out = append(out, wf)
		}
	}
	return out, nil
}
