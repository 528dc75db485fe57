// Package project loads blox projects from YAML files.
//
// A project file lists global variables, custom blocks and entities; each
// entity has fields, custom blocks and scripts. Blocks are written as YAML
// sequences whose first item is the opcode name:
//
//	name: counter
//	globals:
//	  count: 0
//	entities:
//	  - name: stage
//	    scripts:
//	      - when: start
//	        body:
//	          - [Repeat, 10, [[ChangeVar, $count, 1]]]
//	          - [Print, $count]
//
// An unquoted string starting with "$" reads (or names) a variable; quoted
// strings are always text and "$$" escapes a literal dollar sign.
//
// A project may import library files holding shared globals and custom
// blocks:
//
//	imports: [lib/shapes.yaml]
package project

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"

	"github.com/zurustar/blox/pkg/vm"
)

// Supported source encodings.
const (
	EncodingUTF8     = "utf-8"
	EncodingShiftJIS = "shift_jis"
)

// Loader reads project files.
type Loader struct {
	encoding string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEncoding sets the encoding of project files: "utf-8" (default) or
// "shift_jis" for legacy files.
func WithEncoding(encoding string) Option {
	return func(l *Loader) {
		l.encoding = encoding
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{encoding: EncodingUTF8}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads and parses a project file. A project without a name is named
// after the file.
func (l *Loader) Load(name string) (*vm.Project, error) {
	return l.LoadFS(os.DirFS(filepath.Dir(name)), filepath.Base(name))
}

// LoadFS reads a project file from fsys. Imported libraries are resolved
// relative to the importing file.
func (l *Loader) LoadFS(fsys fs.FS, name string) (*vm.Project, error) {
	raw, actual, err := l.readProject(fsys, name)
	if err != nil {
		return nil, err
	}

	proj, err := raw.build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path.Base(actual), err)
	}
	if proj.Name == "" {
		base := path.Base(actual)
		proj.Name = strings.TrimSuffix(base, path.Ext(base))
	}

	seen := map[string]bool{actual: true}
	if err := l.importLibraries(fsys, proj, path.Dir(actual), raw.Imports, seen); err != nil {
		return nil, err
	}

	if err := proj.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}
	return proj, nil
}

// Parse builds a project from file contents. Imports need a file system;
// use LoadFS for projects that have them.
func (l *Loader) Parse(data []byte) (*vm.Project, error) {
	raw, err := l.decode(data)
	if err != nil {
		return nil, err
	}
	if len(raw.Imports) > 0 {
		return nil, fmt.Errorf("imports can only be resolved when loading from a file")
	}

	proj, err := raw.build()
	if err != nil {
		return nil, err
	}
	if err := proj.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}
	return proj, nil
}

func (l *Loader) readProject(fsys fs.FS, name string) (*projectFile, string, error) {
	data, actual, err := readFile(fsys, name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read project: %w", err)
	}
	raw, err := l.decode(data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path.Base(actual), err)
	}
	return raw, actual, nil
}

// importLibraries merges the globals and custom blocks of imported files.
// Definitions already present win, so a project can override a library.
func (l *Loader) importLibraries(fsys fs.FS, proj *vm.Project, dir string, imports []string, seen map[string]bool) error {
	for _, imp := range imports {
		raw, actual, err := l.readProject(fsys, path.Join(dir, imp))
		if err != nil {
			return fmt.Errorf("import %s: %w", imp, err)
		}
		if seen[actual] {
			continue
		}
		seen[actual] = true

		if len(raw.Entities) > 0 {
			return fmt.Errorf("import %s: a library cannot define entities", imp)
		}
		if err := raw.mergeInto(proj); err != nil {
			return fmt.Errorf("import %s: %w", imp, err)
		}
		if err := l.importLibraries(fsys, proj, path.Dir(actual), raw.Imports, seen); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) decode(data []byte) (*projectFile, error) {
	text, err := l.decodeText(data)
	if err != nil {
		return nil, err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(text))
	decoder.KnownFields(true)

	var raw projectFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("project is empty")
		}
		return nil, fmt.Errorf("failed to parse project: %w", err)
	}
	return &raw, nil
}

// decodeText converts the file contents to UTF-8.
func (l *Loader) decodeText(data []byte) ([]byte, error) {
	switch strings.ToLower(l.encoding) {
	case "", EncodingUTF8, "utf8":
		return data, nil
	case EncodingShiftJIS, "sjis", "shift-jis":
		// Shift-JISからUTF-8に変換
		reader := transform.NewReader(bytes.NewReader(data), japanese.ShiftJIS.NewDecoder())
		out, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to decode Shift-JIS: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", l.encoding)
	}
}

// Load reads a UTF-8 project file with the default loader.
func Load(path string) (*vm.Project, error) {
	return NewLoader().Load(path)
}
