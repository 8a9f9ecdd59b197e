package tools

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newEchoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes its input",
		Schema: ToolSchema{
			Required: []string{"text"},
			Properties: map[string]Property{
				"text": {Type: "string", Description: "text to echo"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return args["text"].(string), nil
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(newEchoTool("echo")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !r.Has("echo") {
		t.Error("Has should report registered tool")
	}
	if r.Get("echo") == nil {
		t.Error("Get returned nil for registered tool")
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(newEchoTool("echo")); err != nil {
		t.Fatal(err)
	}
	err := r.Register(newEchoTool("echo"))
	if !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Errorf("expected ErrToolAlreadyRegistered, got %v", err)
	}
}

func TestRegistryInvalidTool(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Tool{Name: ""}); !errors.Is(err, ErrToolNameEmpty) {
		t.Errorf("expected ErrToolNameEmpty, got %v", err)
	}
	if err := r.Register(&Tool{Name: "broken"}); !errors.Is(err, ErrToolExecuteNil) {
		t.Errorf("expected ErrToolExecuteNil, got %v", err)
	}
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(newEchoTool("echo"))

	res, err := r.Execute(context.Background(), "echo", map[string]any{"text": "hello"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Result != "hello" {
		t.Errorf("result = %q, want hello", res.Result)
	}
	if res.ToolName != "echo" {
		t.Errorf("tool name = %q, want echo", res.ToolName)
	}
}

func TestRegistryExecuteNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "missing", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistryExecuteMissingArg(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(newEchoTool("echo"))

	_, err := r.Execute(context.Background(), "echo", map[string]any{})
	if !errors.Is(err, ErrMissingRequiredArg) {
		t.Errorf("expected ErrMissingRequiredArg, got %v", err)
	}
}

func TestRegistryTimeout(t *testing.T) {
	r := NewRegistry()
	r.SetTimeout(20 * time.Millisecond)
	r.MustRegister(&Tool{
		Name:        "slow",
		Description: "blocks until cancelled",
		Schema:      ToolSchema{Properties: map[string]Property{}},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second):
				return "done", nil
			}
		},
	})

	_, err := r.Execute(context.Background(), "slow", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRegistryDefinitions(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(newEchoTool("zeta"))
	r.MustRegister(newEchoTool("alpha"))

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Errorf("definitions should be name-sorted, got %s, %s", defs[0].Name, defs[1].Name)
	}
	schema := defs[0].InputSchema
	if schema["type"] != "object" {
		t.Errorf("input schema type = %v, want object", schema["type"])
	}
}

func TestToolErrorRendering(t *testing.T) {
	err := NewToolError("No property named \"Bulding-120\" was found in the dataset.",
		"Building-120", "Building-250")
	want := "No property named \"Bulding-120\" was found in the dataset. Did you mean: Building-120, Building-250?"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !IsToolError(err) {
		t.Error("IsToolError should match ToolError")
	}
	if IsToolError(errors.New("plain")) {
		t.Error("IsToolError should not match plain errors")
	}
}
