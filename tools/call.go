// Package tools exposes the vault operations to the model as a closed set
// of typed tool calls.
package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/darkostanimirovic/vaultagent/vault"
)

// Tool names advertised to the model.
const (
	ToolListFiles = "list_files"
	ToolReadFile  = "read_file"
	ToolWriteFile = "write_file"
	ToolSearch    = "search"
	ToolTree      = "tree"
)

// DefaultTreeDepth is used when the model does not pass max_depth.
const DefaultTreeDepth = 3

var (
	ErrUnknownTool      = errors.New("tools: unknown tool")
	ErrInvalidArguments = errors.New("tools: invalid arguments")
)

// Call is a validated tool invocation. The set of implementations is
// closed: ListFilesArgs, ReadFileArgs, WriteFileArgs, SearchArgs, TreeArgs.
type Call interface {
	ToolName() string
	sealed()
}

// ListFilesArgs are the arguments of list_files.
type ListFilesArgs struct {
	Pattern string `json:"pattern,omitempty" jsonschema_description:"Optional glob pattern to filter files (e.g. '*.md', 'projects/*.md', '**/daily/*.md')"`
}

// ReadFileArgs are the arguments of read_file.
type ReadFileArgs struct {
	Path string `json:"path" jsonschema_description:"The relative path to the file within the vault"`
}

// WriteFileArgs are the arguments of write_file.
type WriteFileArgs struct {
	Path    string          `json:"path" jsonschema_description:"The relative path where to write the file"`
	Content string          `json:"content" jsonschema_description:"The markdown content to write"`
	Mode    vault.WriteMode `json:"mode,omitempty" jsonschema:"enum=overwrite,enum=append" jsonschema_description:"overwrite replaces the file (default), append adds to the end"`
}

// SearchArgs are the arguments of search.
type SearchArgs struct {
	Query         string `json:"query" jsonschema_description:"The text to search for"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema_description:"Whether the search should be case-sensitive"`
}

// TreeArgs are the arguments of tree.
type TreeArgs struct {
	MaxDepth *int `json:"max_depth,omitempty" jsonschema_description:"Maximum depth to show (default: 3)"`
}

func (ListFilesArgs) ToolName() string { return ToolListFiles }
func (ReadFileArgs) ToolName() string  { return ToolReadFile }
func (WriteFileArgs) ToolName() string { return ToolWriteFile }
func (SearchArgs) ToolName() string    { return ToolSearch }
func (TreeArgs) ToolName() string      { return ToolTree }

func (ListFilesArgs) sealed() {}
func (ReadFileArgs) sealed()  {}
func (WriteFileArgs) sealed() {}
func (SearchArgs) sealed()    {}
func (TreeArgs) sealed()      {}

// Depth returns the requested depth or DefaultTreeDepth.
func (a TreeArgs) Depth() int {
	if a.MaxDepth == nil {
		return DefaultTreeDepth
	}
	return *a.MaxDepth
}

// Parse validates name and args against the tool's schema and returns the
// typed call. Unknown fields, missing required fields and mistyped values
// are rejected with ErrInvalidArguments.
func Parse(name string, args map[string]any) (Call, error) {
	def, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	for _, field := range def.required {
		if _, present := args[field]; !present {
			return nil, fmt.Errorf("%w: %s requires %q", ErrInvalidArguments, name, field)
		}
	}

	var call Call
	var err error
	switch name {
	case ToolListFiles:
		call, err = decode[ListFilesArgs](args)
	case ToolReadFile:
		call, err = decode[ReadFileArgs](args)
	case ToolWriteFile:
		call, err = decode[WriteFileArgs](args)
	case ToolSearch:
		call, err = decode[SearchArgs](args)
	case ToolTree:
		call, err = decode[TreeArgs](args)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidArguments, name, err)
	}

	if err := validate(call); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidArguments, name, err)
	}
	return call, nil
}

func decode[T Call](args map[string]any) (T, error) {
	var out T
	data, err := json.Marshal(args)
	if err != nil {
		return out, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func validate(call Call) error {
	switch c := call.(type) {
	case ReadFileArgs:
		if strings.TrimSpace(c.Path) == "" {
			return errors.New("path must not be empty")
		}
	case WriteFileArgs:
		if strings.TrimSpace(c.Path) == "" {
			return errors.New("path must not be empty")
		}
		if c.Mode != "" && c.Mode != vault.ModeOverwrite && c.Mode != vault.ModeAppend {
			return fmt.Errorf("mode must be %q or %q", vault.ModeOverwrite, vault.ModeAppend)
		}
	case SearchArgs:
		if c.Query == "" {
			return errors.New("query must not be empty")
		}
	}
	return nil
}
