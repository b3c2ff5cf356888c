package tools

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/darkostanimirovic/vaultagent/internal/testutil"
	"github.com/darkostanimirovic/vaultagent/providers"
	"github.com/darkostanimirovic/vaultagent/vault"
)

func newTestRegistry(t *testing.T, files map[string]string) (*Registry, string) {
	t.Helper()
	root := testutil.WriteVault(t, files)
	v, err := vault.New(root)
	testutil.AssertNoError(t, err)
	return NewRegistry(v), root
}

func call(id, name string, args map[string]any) providers.ToolCall {
	return providers.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestDefinitions(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	defs := r.Definitions()

	var names []string
	for _, def := range defs {
		names = append(names, def.Name)
		if def.Description == "" {
			t.Errorf("%s has no description", def.Name)
		}
		if def.Parameters["type"] != "object" {
			t.Errorf("%s parameters type = %v, want object", def.Name, def.Parameters["type"])
		}
		if _, ok := def.Parameters["$schema"]; ok {
			t.Errorf("%s parameters should not carry $schema", def.Name)
		}
		if _, ok := def.Parameters["properties"].(map[string]any); !ok {
			t.Errorf("%s parameters missing properties", def.Name)
		}
	}

	want := []string{ToolListFiles, ToolReadFile, ToolWriteFile, ToolSearch, ToolTree}
	if !slices.Equal(names, want) {
		t.Fatalf("tool names = %v, want %v", names, want)
	}
}

func TestDefinitions_RequiredAndEnums(t *testing.T) {
	tests := []struct {
		tool     string
		required []string
	}{
		{tool: ToolListFiles, required: nil},
		{tool: ToolReadFile, required: []string{"path"}},
		{tool: ToolWriteFile, required: []string{"path", "content"}},
		{tool: ToolSearch, required: []string{"query"}},
		{tool: ToolTree, required: nil},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			def, ok := lookup(tt.tool)
			if !ok {
				t.Fatalf("tool %s not registered", tt.tool)
			}
			got := slices.Clone(def.required)
			slices.Sort(got)
			want := slices.Clone(tt.required)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Errorf("required = %v, want %v", got, want)
			}
		})
	}

	def, _ := lookup(ToolWriteFile)
	props := def.parameters["properties"].(map[string]any)
	mode := props["mode"].(map[string]any)
	enum, _ := mode["enum"].([]any)
	if len(enum) != 2 || enum[0] != "overwrite" || enum[1] != "append" {
		t.Errorf("mode enum = %v, want [overwrite append]", mode["enum"])
	}

	def, _ = lookup(ToolTree)
	props = def.parameters["properties"].(map[string]any)
	depth := props["max_depth"].(map[string]any)
	if depth["type"] != "integer" {
		t.Errorf("max_depth type = %v, want integer", depth["type"])
	}
}

func TestDefinitions_ReturnsCopies(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	defs := r.Definitions()
	defs[0].Parameters["type"] = "mutated"

	if r.Definitions()[0].Parameters["type"] != "object" {
		t.Fatal("mutating returned definitions leaked into the registry")
	}

	var readDef providers.ToolDefinition
	for _, def := range r.Definitions() {
		if def.Name == ToolReadFile {
			readDef = def
		}
	}
	required, ok := readDef.Parameters["required"].([]any)
	if !ok || len(required) == 0 {
		t.Fatalf("read_file should list required fields, got %v", readDef.Parameters["required"])
	}
	required[0] = "mutated"

	for _, def := range r.Definitions() {
		if def.Name != ToolReadFile {
			continue
		}
		if got := def.Parameters["required"].([]any)[0]; got != "path" {
			t.Errorf("mutating a required list leaked into the registry: %v", got)
		}
	}
}

func TestParse(t *testing.T) {
	depth := 2
	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		want    Call
		wantErr error
	}{
		{name: "list without pattern", tool: ToolListFiles, args: nil, want: ListFilesArgs{}},
		{name: "list with pattern", tool: ToolListFiles, args: map[string]any{"pattern": "*.md"}, want: ListFilesArgs{Pattern: "*.md"}},
		{name: "read", tool: ToolReadFile, args: map[string]any{"path": "a.md"}, want: ReadFileArgs{Path: "a.md"}},
		{name: "write default mode", tool: ToolWriteFile, args: map[string]any{"path": "a.md", "content": ""}, want: WriteFileArgs{Path: "a.md"}},
		{name: "write append", tool: ToolWriteFile, args: map[string]any{"path": "a.md", "content": "x", "mode": "append"}, want: WriteFileArgs{Path: "a.md", Content: "x", Mode: vault.ModeAppend}},
		{name: "search", tool: ToolSearch, args: map[string]any{"query": "q", "case_sensitive": true}, want: SearchArgs{Query: "q", CaseSensitive: true}},
		{name: "unknown tool", tool: "delete_file", args: map[string]any{"path": "a.md"}, wantErr: ErrUnknownTool},
		{name: "missing required", tool: ToolReadFile, args: map[string]any{}, wantErr: ErrInvalidArguments},
		{name: "missing content", tool: ToolWriteFile, args: map[string]any{"path": "a.md"}, wantErr: ErrInvalidArguments},
		{name: "wrong type", tool: ToolReadFile, args: map[string]any{"path": 42}, wantErr: ErrInvalidArguments},
		{name: "unknown field", tool: ToolReadFile, args: map[string]any{"path": "a.md", "force": true}, wantErr: ErrInvalidArguments},
		{name: "bad mode", tool: ToolWriteFile, args: map[string]any{"path": "a.md", "content": "x", "mode": "truncate"}, wantErr: ErrInvalidArguments},
		{name: "empty query", tool: ToolSearch, args: map[string]any{"query": ""}, wantErr: ErrInvalidArguments},
		{name: "fractional depth", tool: ToolTree, args: map[string]any{"max_depth": 1.5}, wantErr: ErrInvalidArguments},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.tool, tt.args)
			if tt.wantErr != nil {
				testutil.AssertErrorIs(t, err, tt.wantErr)
				return
			}
			testutil.AssertNoError(t, err)
			if got != tt.want {
				t.Errorf("Parse() = %#v, want %#v", got, tt.want)
			}
		})
	}

	got, err := Parse(ToolTree, map[string]any{"max_depth": float64(depth)})
	testutil.AssertNoError(t, err)
	if got.(TreeArgs).Depth() != depth {
		t.Errorf("Depth() = %d, want %d", got.(TreeArgs).Depth(), depth)
	}

	got, err = Parse(ToolTree, nil)
	testutil.AssertNoError(t, err)
	if got.(TreeArgs).Depth() != DefaultTreeDepth {
		t.Errorf("default Depth() = %d, want %d", got.(TreeArgs).Depth(), DefaultTreeDepth)
	}
}

func TestDispatch(t *testing.T) {
	r, root := newTestRegistry(t, map[string]string{
		"a.md":        "alpha line\nTODO: beta\n",
		"notes/b.md":  "todo later",
		"private.txt": "ignored",
	})
	ctx := context.Background()

	tests := []struct {
		name        string
		call        providers.ToolCall
		wantStatus  Status
		wantPayload string
		contains    []string
	}{
		{
			name:        "list files",
			call:        call("1", ToolListFiles, nil),
			wantStatus:  StatusOK,
			wantPayload: "Found 2 file(s):\n\n- a.md\n- notes/b.md\n",
		},
		{
			name:        "list files no match",
			call:        call("2", ToolListFiles, map[string]any{"pattern": "*.org"}),
			wantStatus:  StatusOK,
			wantPayload: "No files found matching the criteria.",
		},
		{
			name:        "read file returns raw content",
			call:        call("3", ToolReadFile, map[string]any{"path": "a.md"}),
			wantStatus:  StatusOK,
			wantPayload: "alpha line\nTODO: beta\n",
		},
		{
			name:       "search",
			call:       call("4", ToolSearch, map[string]any{"query": "todo"}),
			wantStatus: StatusOK,
			contains:   []string{"Found 2 matching line(s)", "- a.md:2: TODO: beta", "- notes/b.md:1: todo later"},
		},
		{
			name:        "search no match",
			call:        call("5", ToolSearch, map[string]any{"query": "zzz"}),
			wantStatus:  StatusOK,
			wantPayload: "No matches found for: zzz",
		},
		{
			name:       "tree",
			call:       call("6", ToolTree, map[string]any{"max_depth": 1}),
			wantStatus: StatusOK,
			contains:   []string{"📁 notes/", "📄 a.md"},
		},
		{
			name:       "unknown tool",
			call:       call("7", "delete_file", map[string]any{"path": "a.md"}),
			wantStatus: StatusError,
			contains:   []string{"UnknownTool:", "delete_file", "list_files"},
		},
		{
			name:       "out of bounds",
			call:       call("8", ToolReadFile, map[string]any{"path": "../../etc/passwd"}),
			wantStatus: StatusError,
			contains:   []string{"OutOfBounds:"},
		},
		{
			name:       "not found",
			call:       call("9", ToolReadFile, map[string]any{"path": "missing.md"}),
			wantStatus: StatusError,
			contains:   []string{"NotFound:"},
		},
		{
			name:       "invalid arguments",
			call:       call("10", ToolWriteFile, map[string]any{"path": "x.md"}),
			wantStatus: StatusError,
			contains:   []string{"InvalidArguments:", "content"},
		},
		{
			name:       "unparseable raw arguments",
			call:       providers.ToolCall{ID: "11", Name: ToolReadFile, RawArguments: "{not json"},
			wantStatus: StatusError,
			contains:   []string{"InvalidArguments:", "{not json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := r.Dispatch(ctx, tt.call)
			if result.ToolCallID != tt.call.ID {
				t.Errorf("ToolCallID = %q, want %q", result.ToolCallID, tt.call.ID)
			}
			if result.Status != tt.wantStatus {
				t.Fatalf("Status = %s, want %s (payload %q)", result.Status, tt.wantStatus, result.Payload)
			}
			if tt.wantPayload != "" && result.Payload != tt.wantPayload {
				t.Errorf("Payload = %q, want %q", result.Payload, tt.wantPayload)
			}
			for _, s := range tt.contains {
				if !strings.Contains(result.Payload, s) {
					t.Errorf("Payload %q does not contain %q", result.Payload, s)
				}
			}
		})
	}

	if got := testutil.ReadVaultFile(t, root, "a.md"); got != "alpha line\nTODO: beta\n" {
		t.Errorf("a.md modified by read-only dispatches: %q", got)
	}
}

func TestDispatch_ReadEmptyFile(t *testing.T) {
	r, _ := newTestRegistry(t, map[string]string{"empty.md": ""})

	result := r.Dispatch(context.Background(), call("1", ToolReadFile, map[string]any{"path": "empty.md"}))

	if result.IsError() {
		t.Fatalf("unexpected error result %+v", result)
	}
	if result.Payload != "File is empty: empty.md" {
		t.Errorf("payload = %q", result.Payload)
	}
}

func TestDispatch_WriteThenRead(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	write := r.Dispatch(ctx, call("w1", ToolWriteFile, map[string]any{"path": "journal/today.md", "content": "# Today\n"}))
	if write.IsError() {
		t.Fatalf("write failed: %s", write.Payload)
	}
	if !strings.Contains(write.Payload, "journal/today.md") {
		t.Errorf("write payload should name the path, got %q", write.Payload)
	}

	appendResult := r.Dispatch(ctx, call("w2", ToolWriteFile, map[string]any{"path": "journal/today.md", "content": "- item\n", "mode": "append"}))
	if appendResult.IsError() {
		t.Fatalf("append failed: %s", appendResult.Payload)
	}

	read := r.Dispatch(ctx, call("r1", ToolReadFile, map[string]any{"path": "journal/today.md"}))
	testutil.AssertEqual(t, read.Payload, "# Today\n- item\n")
}

func TestDispatch_Cancelled(t *testing.T) {
	r, root := newTestRegistry(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := r.Dispatch(ctx, call("c1", ToolWriteFile, map[string]any{"path": "a.md", "content": "x"}))
	if !result.IsError() || !strings.HasPrefix(result.Payload, "Cancelled:") {
		t.Fatalf("expected cancelled result, got %+v", result)
	}
	v, err := vault.New(root)
	testutil.AssertNoError(t, err)
	if _, err := v.ReadFile("a.md"); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("cancelled write should not touch the vault, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{err: vault.ErrOutOfBounds, want: KindOutOfBounds},
		{err: vault.ErrNotFound, want: KindNotFound},
		{err: ErrUnknownTool, want: KindUnknownTool},
		{err: ErrInvalidArguments, want: KindInvalidArguments},
		{err: vault.ErrInvalidPath, want: KindInvalidArguments},
		{err: context.Canceled, want: KindCancelled},
		{err: errors.New("disk full"), want: KindError},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
