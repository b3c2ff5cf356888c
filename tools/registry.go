package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/darkostanimirovic/vaultagent/providers"
	"github.com/darkostanimirovic/vaultagent/vault"
)

// Status reports whether a tool call succeeded.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// ErrorKind prefixes error payloads so the model can tell failures apart.
type ErrorKind string

const (
	KindOutOfBounds      ErrorKind = "OutOfBounds"
	KindNotFound         ErrorKind = "NotFound"
	KindUnknownTool      ErrorKind = "UnknownTool"
	KindInvalidArguments ErrorKind = "InvalidArguments"
	KindRejected         ErrorKind = "Rejected"
	KindCancelled        ErrorKind = "Cancelled"
	KindError            ErrorKind = "Error"
)

// ToolResult is the textual outcome of one tool call.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Status     Status `json:"status"`
	Payload    string `json:"payload"`
}

// IsError reports whether the result carries a failure.
func (r ToolResult) IsError() bool {
	return r.Status == StatusError
}

// ErrorResult builds an error result with a kind-prefixed payload.
func ErrorResult(callID string, kind ErrorKind, message string) ToolResult {
	return ToolResult{
		ToolCallID: callID,
		Status:     StatusError,
		Payload:    fmt.Sprintf("%s: %s", kind, message),
	}
}

// Classify maps an error from Parse or the vault to an ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, vault.ErrOutOfBounds):
		return KindOutOfBounds
	case errors.Is(err, vault.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnknownTool):
		return KindUnknownTool
	case errors.Is(err, ErrInvalidArguments),
		errors.Is(err, vault.ErrInvalidPath),
		errors.Is(err, vault.ErrEmptyQuery):
		return KindInvalidArguments
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindError
	}
}

type definition struct {
	name        string
	description string
	args        Call
	parameters  map[string]any
	required    []string
}

var definitions = mustBuildDefinitions([]definition{
	{
		name:        ToolListFiles,
		description: "List all markdown files in the vault. Optionally filter by a glob pattern (e.g., '*.md', 'projects/*.md', '**/daily/*.md').",
		args:        ListFilesArgs{},
	},
	{
		name:        ToolReadFile,
		description: "Read the full content of a specific file from the vault.",
		args:        ReadFileArgs{},
	},
	{
		name:        ToolWriteFile,
		description: "Write content to a file in the vault. Creates the file and any missing folders if needed. Overwrites by default; use mode 'append' to add to the end.",
		args:        WriteFileArgs{},
	},
	{
		name:        ToolSearch,
		description: "Search every note line by line for specific text. Returns the path, line number and text of each matching line.",
		args:        SearchArgs{},
	},
	{
		name:        ToolTree,
		description: "Show the folder structure of the vault as a tree.",
		args:        TreeArgs{},
	},
})

func mustBuildDefinitions(defs []definition) []definition {
	reflector := jsonschema.Reflector{DoNotReference: true}
	for i := range defs {
		schema := reflector.ReflectFromType(reflect.TypeOf(defs[i].args))
		params, err := schemaToMap(schema)
		if err != nil {
			panic(fmt.Sprintf("tools: build schema for %s: %v", defs[i].name, err))
		}
		defs[i].parameters = params
		defs[i].required = slices.Clone(schema.Required)
	}
	return defs
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	delete(out, "$schema")
	delete(out, "$id")
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out, nil
}

func lookup(name string) (definition, bool) {
	for _, def := range definitions {
		if def.name == name {
			return def, true
		}
	}
	return definition{}, false
}

// Names returns the tool names in advertised order.
func Names() []string {
	names := make([]string, len(definitions))
	for i, def := range definitions {
		names[i] = def.name
	}
	return names
}

// Description returns the model-facing description of a tool.
func Description(name string) string {
	def, _ := lookup(name)
	return def.description
}

// Registry dispatches tool calls to a vault.
type Registry struct {
	vault *vault.Vault
}

// NewRegistry creates a registry bound to v.
func NewRegistry(v *vault.Vault) *Registry {
	return &Registry{vault: v}
}

// Definitions returns the schema of every tool.
func (r *Registry) Definitions() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, len(definitions))
	for i, def := range definitions {
		defs[i] = providers.ToolDefinition{
			Name:        def.name,
			Description: def.description,
			Parameters:  cloneMap(def.parameters),
		}
	}
	return defs
}

// Dispatch validates and runs a single tool call. It never returns an
// error: every failure is reported as an error ToolResult.
func (r *Registry) Dispatch(ctx context.Context, call providers.ToolCall) ToolResult {
	if err := ctx.Err(); err != nil {
		return ErrorResult(call.ID, KindCancelled, err.Error())
	}

	if call.Arguments == nil && strings.TrimSpace(call.RawArguments) != "" {
		if _, ok := lookup(call.Name); !ok {
			return ErrorResult(call.ID, KindUnknownTool, fmt.Sprintf("%q is not a known tool; available tools: %s", call.Name, strings.Join(Names(), ", ")))
		}
		return ErrorResult(call.ID, KindInvalidArguments, fmt.Sprintf("arguments are not a valid JSON object: %s", call.RawArguments))
	}

	parsed, err := Parse(call.Name, call.Arguments)
	if err != nil {
		if errors.Is(err, ErrUnknownTool) {
			return ErrorResult(call.ID, KindUnknownTool, fmt.Sprintf("%q is not a known tool; available tools: %s", call.Name, strings.Join(Names(), ", ")))
		}
		return ErrorResult(call.ID, Classify(err), err.Error())
	}

	payload, err := r.Execute(parsed)
	if err != nil {
		return ErrorResult(call.ID, Classify(err), err.Error())
	}
	return ToolResult{
		ToolCallID: call.ID,
		Status:     StatusOK,
		Payload:    payload,
	}
}

// Execute runs a parsed call against the vault and renders its output.
func (r *Registry) Execute(call Call) (string, error) {
	switch c := call.(type) {
	case ListFilesArgs:
		files, err := r.vault.ListFiles(c.Pattern)
		if err != nil {
			return "", err
		}
		return formatFiles(files), nil

	case ReadFileArgs:
		content, err := r.vault.ReadFile(c.Path)
		if err != nil {
			return "", err
		}
		if content == "" {
			return fmt.Sprintf("File is empty: %s", c.Path), nil
		}
		return content, nil

	case WriteFileArgs:
		mode := c.Mode
		if mode == "" {
			mode = vault.ModeOverwrite
		}
		if err := r.vault.WriteFile(c.Path, c.Content, mode); err != nil {
			return "", err
		}
		if mode == vault.ModeAppend {
			return fmt.Sprintf("Successfully appended %d bytes to: %s", len(c.Content), c.Path), nil
		}
		return fmt.Sprintf("Successfully wrote %d bytes to: %s", len(c.Content), c.Path), nil

	case SearchArgs:
		matches, err := r.vault.Search(c.Query, c.CaseSensitive)
		if err != nil {
			return "", err
		}
		return formatMatches(c.Query, matches), nil

	case TreeArgs:
		return r.vault.Tree(c.Depth())

	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownTool, call)
	}
}

func formatFiles(files []string) string {
	if len(files) == 0 {
		return "No files found matching the criteria."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d file(s):\n\n", len(files))
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return b.String()
}

func formatMatches(query string, matches []vault.Match) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No matches found for: %s", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching line(s) for '%s':\n\n", len(matches), query)
	for _, m := range matches {
		fmt.Fprintf(&b, "- %s:%d: %s\n", m.Path, m.LineNumber, m.LineText)
	}
	return b.String()
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	default:
		return v
	}
}
