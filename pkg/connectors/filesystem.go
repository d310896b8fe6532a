package connectors

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/veriflow/veriflow/pkg/engine"
)

// Error handling policies for unreadable or non-text files.
const (
	errorHandlingFail = "fail"
	errorHandlingSkip = "skip"
)

// FilesystemOptions configures the filesystem connector.
type FilesystemOptions struct {
	// Path is the root directory to extract from.
	Path string `json:"path" validate:"required"`

	// ChunkSize splits file content into chunks of this many lines. Zero
	// disables chunking.
	ChunkSize int `json:"chunkSize,omitempty" validate:"min=0"`

	// Encoding names the expected text encoding. Only utf-8 is supported.
	Encoding string `json:"encoding,omitempty" validate:"omitempty,oneof=utf-8"`

	// ErrorHandling is "fail" (default) or "skip". Skip drops unreadable and
	// non-UTF-8 files instead of failing the extraction.
	ErrorHandling string `json:"errorHandling,omitempty" validate:"omitempty,oneof=fail skip"`

	// ExcludePatterns are doublestar glob patterns matched against paths
	// relative to Path.
	ExcludePatterns []string `json:"excludePatterns,omitempty"`

	// MaxFiles caps the number of files extracted. Zero means no cap.
	MaxFiles int `json:"maxFiles,omitempty" validate:"min=0"`
}

// FilesystemConnector walks a directory tree and emits file contents as
// sources. Chunked extraction emits one source per chunk with the chunk
// index appended to the source ID.
type FilesystemConnector struct {
	opts FilesystemOptions
}

// NewFilesystemConnector creates a filesystem connector from validated
// options.
func NewFilesystemConnector(opts FilesystemOptions) *FilesystemConnector {
	if opts.ErrorHandling == "" {
		opts.ErrorHandling = errorHandlingFail
	}
	return &FilesystemConnector{opts: opts}
}

// Name implements engine.Connector.
func (c *FilesystemConnector) Name() string { return "filesystem" }

// SupportedOutputSchemas implements engine.Connector. Version 1.1.0 adds
// per-source file metadata (size, modification time).
func (c *FilesystemConnector) SupportedOutputSchemas() []engine.Schema {
	return []engine.Schema{
		engine.NewSchema(SchemaSourceFiles, 1, 0, 0),
		engine.NewSchema(SchemaSourceFiles, 1, 1, 0),
	}
}

// Extract implements engine.Connector.
func (c *FilesystemConnector) Extract(ctx context.Context, output engine.Schema) (engine.Message, error) {
	if !schemaSupported(c.SupportedOutputSchemas(), output) {
		return engine.Message{}, engine.NewConnectorConfigError(
			fmt.Sprintf("filesystem connector cannot emit schema %s", output), nil).
			WithComponent(c.Name())
	}

	info, err := os.Stat(c.opts.Path)
	if err != nil {
		return engine.Message{}, engine.NewConnectorConfigError(
			fmt.Sprintf("path %q is not accessible", c.opts.Path), err).
			WithComponent(c.Name())
	}
	if !info.IsDir() {
		return engine.Message{}, engine.NewConnectorConfigError(
			fmt.Sprintf("path %q is not a directory", c.opts.Path), nil).
			WithComponent(c.Name())
	}

	withMetadata := output.Minor >= 1

	var entries []interface{}
	files := 0
	walkErr := filepath.WalkDir(c.opts.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if c.opts.ErrorHandling == errorHandlingSkip {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(c.opts.Path, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && c.excluded(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if c.excluded(rel) {
			return nil
		}
		if c.opts.MaxFiles > 0 && files >= c.opts.MaxFiles {
			return fs.SkipAll
		}

		content, err := os.ReadFile(path)
		if err != nil {
			if c.opts.ErrorHandling == errorHandlingSkip {
				return nil
			}
			return err
		}
		if !utf8.Valid(content) {
			if c.opts.ErrorHandling == errorHandlingSkip {
				return nil
			}
			return fmt.Errorf("file %q is not valid UTF-8", rel)
		}

		var metadata map[string]interface{}
		if withMetadata {
			if fi, err := d.Info(); err == nil {
				metadata = map[string]interface{}{
					"size_bytes": fi.Size(),
					"modified":   fi.ModTime().UTC().Format("2006-01-02T15:04:05Z07:00"),
				}
			}
		}

		for _, chunk := range c.chunk(rel, string(content)) {
			entries = append(entries, sourceEntry(chunk.id, chunk.content, metadata))
		}
		files++
		return nil
	})
	if walkErr != nil {
		return engine.Message{}, engine.NewConnectorExtractionError(
			fmt.Sprintf("walking %q failed", c.opts.Path), walkErr).
			WithComponent(c.Name())
	}

	return engine.Message{
		ID:      uuid.NewString(),
		Schema:  output,
		Content: sourcesContent(entries),
		Source:  c.opts.Path,
	}, nil
}

// excluded matches a relative path against the exclude patterns. Invalid
// patterns are rejected at creation time, so match errors cannot occur here.
func (c *FilesystemConnector) excluded(rel string) bool {
	for _, pattern := range c.opts.ExcludePatterns {
		if ok, _ := doublestar.Match(pattern, strings.TrimSuffix(rel, "/")); ok {
			return true
		}
	}
	return false
}

type chunk struct {
	id      string
	content string
}

// chunk splits content into ChunkSize-line pieces, or returns it whole when
// chunking is disabled.
func (c *FilesystemConnector) chunk(rel, content string) []chunk {
	if c.opts.ChunkSize <= 0 {
		return []chunk{{id: rel, content: content}}
	}
	lines := strings.Split(content, "\n")
	var chunks []chunk
	for start := 0; start < len(lines); start += c.opts.ChunkSize {
		end := start + c.opts.ChunkSize
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, chunk{
			id:      fmt.Sprintf("%s#c%d", rel, len(chunks)),
			content: strings.Join(lines[start:end], "\n"),
		})
	}
	return chunks
}

// FilesystemFactory builds filesystem connectors.
type FilesystemFactory struct{}

// ComponentName implements engine.ConnectorFactory.
func (FilesystemFactory) ComponentName() string { return "filesystem" }

// OutputSchemas implements engine.ConnectorFactory.
func (FilesystemFactory) OutputSchemas() []engine.Schema {
	return (&FilesystemConnector{}).SupportedOutputSchemas()
}

// CanCreate implements engine.ConnectorFactory.
func (FilesystemFactory) CanCreate(config engine.ComponentConfig) bool {
	path, ok := config["path"].(string)
	return ok && path != ""
}

// Create implements engine.ConnectorFactory. Exclude patterns are compiled
// eagerly so pattern errors surface as configuration failures.
func (FilesystemFactory) Create(config engine.ComponentConfig) (engine.Connector, error) {
	var opts FilesystemOptions
	if err := decodeOptions(config, &opts); err != nil {
		return nil, engine.NewConnectorConfigError("invalid filesystem connector config", err).
			WithComponent("filesystem")
	}
	for _, pattern := range opts.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, engine.NewConnectorConfigError(
				fmt.Sprintf("invalid exclude pattern %q", pattern), nil).
				WithComponent("filesystem")
		}
	}
	return NewFilesystemConnector(opts), nil
}

// ServiceDependencies implements engine.ConnectorFactory.
func (FilesystemFactory) ServiceDependencies() map[string]reflect.Type { return nil }
