package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/assistkit/chatgraph/pkg/chatgraph/llm"
	"github.com/assistkit/chatgraph/pkg/chatgraph/registry"
)

// permissiveSchema accepts any JSON object. Used when a spec has no schema.
const permissiveSchema = `{"type":"object"}`

// registered pairs a spec with its resolved validation schema.
type registered struct {
	spec       Spec
	resolved   *jsonschema.Resolved
	schemaJSON json.RawMessage
}

// Registry keeps the mapping between tool names and implementations.
// Safe for concurrent use.
type Registry struct {
	tools *registry.Registry[string, *registered]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: registry.New[string, *registered](),
	}
}

// Register adds a tool. The name must be unique and the spec's schema,
// if any, must be resolvable.
func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if spec.Handler == nil {
		return fmt.Errorf("tool %q: handler is nil", spec.Name)
	}
	if r.tools.Has(spec.Name) {
		return fmt.Errorf("tool %q already registered", spec.Name)
	}

	entry := &registered{spec: spec}

	if spec.InputSchema != nil {
		resolved, err := spec.InputSchema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("tool %q: resolve schema: %w", spec.Name, err)
		}
		entry.resolved = resolved

		raw, err := json.Marshal(spec.InputSchema)
		if err != nil {
			return fmt.Errorf("tool %q: marshal schema: %w", spec.Name, err)
		}
		entry.schemaJSON = raw
	} else {
		entry.schemaJSON = json.RawMessage(permissiveSchema)
	}

	r.tools.Register(spec.Name, entry)
	return nil
}

// MustRegister registers a tool and panics on error. For init-time wiring.
func (r *Registry) MustRegister(spec Spec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Lookup returns the spec for a name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	entry, ok := r.tools.Get(name)
	if !ok {
		return Spec{}, false
	}
	return entry.spec, true
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := r.tools.Keys()
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return r.tools.Len()
}

// Schemas returns tool declarations for a model request, sorted by name
// so requests are deterministic.
func (r *Registry) Schemas() []llm.Tool {
	names := r.Names()
	decls := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		entry, ok := r.tools.Get(name)
		if !ok {
			continue
		}
		decls = append(decls, llm.Tool{
			Name:        entry.spec.Name,
			Description: entry.spec.Description,
			Parameters:  entry.schemaJSON,
		})
	}
	return decls
}

// Execute runs one tool call: argument validation, timeout, and panic
// containment. It always returns a Result; failures are reported through
// Result.IsError so the model can observe them.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) Result {
	entry, ok := r.tools.Get(call.Name)
	if !ok {
		return errorResult(call, "tool %q is not available", call.Name)
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	if entry.resolved != nil {
		var instance any
		if err := json.Unmarshal(args, &instance); err != nil {
			return errorResult(call, "invalid arguments for tool %q: %v", call.Name, err)
		}
		if err := entry.resolved.Validate(instance); err != nil {
			return errorResult(call, "arguments for tool %q failed validation: %v", call.Name, err)
		}
	}

	timeout := entry.spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	content, err := runHandler(callCtx, entry.spec.Handler, args)
	duration := time.Since(start)

	if err != nil {
		res := errorResult(call, "tool %q failed: %v", call.Name, err)
		res.Duration = duration
		return res
	}
	return Result{
		CallID:   call.ID,
		Name:     call.Name,
		Content:  content,
		Duration: duration,
	}
}

// ExecuteAll runs calls sequentially in the order the model requested
// them. Each call is isolated: a failure produces an error result and the
// remaining calls still run.
func (r *Registry) ExecuteAll(ctx context.Context, calls []llm.ToolCall) []Result {
	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		results = append(results, r.Execute(ctx, call))
	}
	return results
}

// runHandler invokes the handler, converting a panic into an error.
func runHandler(ctx context.Context, h Handler, args json.RawMessage) (content string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return h(ctx, args)
}
