package container

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// OperationHandler performs an action on the live content.
type OperationHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// OperationMeta is optional declarative metadata about an operation.
type OperationMeta struct {
	Locator     string
	Action      ActionKind
	Label       string
	AutoExecute bool

	// MaxAttempts bounds automatic executions. Required with AutoExecute.
	MaxAttempts int
}

// RegisteredOperation is a row of the operation table.
type RegisteredOperation struct {
	ID           string
	Meta         OperationMeta
	Discovered   bool
	Attempts     int
	RegisteredAt time.Time

	handler OperationHandler
}

// OperationResult is the outcome of executing an operation. Handler
// failures are reported here rather than as an error.
type OperationResult struct {
	OperationID string        `json:"operation_id"`
	Success     bool          `json:"success"`
	Value       interface{}   `json:"value,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`

	Err error `json:"-"`
}

// AffordanceProbe lists actionable controls in the live content.
type AffordanceProbe func(ctx context.Context) ([]Affordance, error)

// OperationRegistry is a per-container table of named actions. Every
// execution is followed by the afterExecute hook, whether the handler
// succeeded or not.
type OperationRegistry struct {
	mu    sync.RWMutex
	ops   map[string]*RegisteredOperation
	order []string

	onRegistered func(op RegisteredOperation)
	afterExecute func(ctx context.Context, result OperationResult, params map[string]interface{})
}

// NewOperationRegistry creates an empty registry.
func NewOperationRegistry() *OperationRegistry {
	return &OperationRegistry{
		ops: make(map[string]*RegisteredOperation),
	}
}

// Register adds a static operation. Registering an id twice is an error.
func (r *OperationRegistry) Register(id string, handler OperationHandler, meta *OperationMeta) error {
	if id == "" {
		return configErrorf("operation.id", "must not be empty")
	}
	if handler == nil {
		return configErrorf("operation.handler", "operation %q has no handler", id)
	}
	if meta != nil && meta.AutoExecute && meta.MaxAttempts <= 0 {
		return configErrorf("operation.max_attempts", "auto-executed operation %q needs a positive attempt budget", id)
	}

	op := RegisteredOperation{
		ID:           id,
		RegisteredAt: time.Now(),
		handler:      handler,
	}
	if meta != nil {
		op.Meta = *meta
	}

	r.mu.Lock()
	if _, exists := r.ops[id]; exists {
		r.mu.Unlock()
		return configErrorf("operation.id", "operation %q already registered", id)
	}
	r.ops[id] = &op
	r.order = append(r.order, id)
	hook := r.onRegistered
	r.mu.Unlock()

	if hook != nil {
		hook(op)
	}
	return nil
}

// Execute runs the handler for id. Unknown ids fail immediately with a
// ConfigurationError and no follow-up refresh. Handler errors and panics
// become a failed OperationResult.
func (r *OperationRegistry) Execute(ctx context.Context, id string, params map[string]interface{}) (OperationResult, error) {
	r.mu.Lock()
	op, ok := r.ops[id]
	if !ok {
		r.mu.Unlock()
		return OperationResult{OperationID: id}, &ConfigurationError{
			Field:  "operation.id",
			Reason: fmt.Sprintf("operation %q is not registered", id),
			Err:    ErrUnknownOperation,
		}
	}
	op.Attempts++
	handler := op.handler
	hook := r.afterExecute
	r.mu.Unlock()

	if params == nil {
		params = make(map[string]interface{})
	}

	result := invokeHandler(ctx, id, handler, params)

	if hook != nil {
		hook(ctx, result, params)
	}
	return result, nil
}

func invokeHandler(ctx context.Context, id string, handler OperationHandler, params map[string]interface{}) (result OperationResult) {
	start := time.Now()
	result.OperationID = id

	defer func() {
		if p := recover(); p != nil {
			result.Success = false
			result.Err = fmt.Errorf("operation %q panicked: %v", id, p)
			result.Error = result.Err.Error()
		}
		result.Duration = time.Since(start)
	}()

	value, err := handler(ctx, params)
	if err != nil {
		result.Err = err
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.Value = value
	return result
}

// Discover probes the content and registers every affordance that is not
// registered yet. Affordance ids are derived from content, so probing the
// same content twice registers nothing new. Returns the new ids.
func (r *OperationRegistry) Discover(ctx context.Context, probe AffordanceProbe, handlerFor func(Affordance) OperationHandler, budget int) ([]string, error) {
	affordances, err := probe(ctx)
	if err != nil {
		return nil, err
	}

	var added []string
	var registered []RegisteredOperation

	r.mu.Lock()
	for _, aff := range affordances {
		if aff.ID == "" {
			continue
		}
		if _, exists := r.ops[aff.ID]; exists {
			continue
		}
		op := &RegisteredOperation{
			ID: aff.ID,
			Meta: OperationMeta{
				Locator:     aff.Locator,
				Action:      aff.SuggestedAction,
				Label:       aff.Label,
				AutoExecute: true,
				MaxAttempts: budget,
			},
			Discovered:   true,
			RegisteredAt: time.Now(),
			handler:      handlerFor(aff),
		}
		r.ops[aff.ID] = op
		r.order = append(r.order, aff.ID)
		added = append(added, aff.ID)
		registered = append(registered, *op)
	}
	hook := r.onRegistered
	r.mu.Unlock()

	if hook != nil {
		for _, op := range registered {
			hook(op)
		}
	}
	return added, nil
}

// AutoExecutable returns the ids of operations flagged for automatic
// execution that still have attempts left, in registration order.
func (r *OperationRegistry) AutoExecutable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, id := range r.order {
		op := r.ops[id]
		if !op.Meta.AutoExecute {
			continue
		}
		if op.Attempts >= op.Meta.MaxAttempts {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Get returns a copy of the operation row.
func (r *OperationRegistry) Get(id string) (RegisteredOperation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[id]
	if !ok {
		return RegisteredOperation{}, false
	}
	return *op, true
}

// IDs returns the registered ids in registration order.
func (r *OperationRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// List returns the operations sorted by id.
func (r *OperationRegistry) List() []RegisteredOperation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RegisteredOperation, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered operations.
func (r *OperationRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}

// Clear removes every operation and detaches the hooks.
func (r *OperationRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ops = make(map[string]*RegisteredOperation)
	r.order = nil
	r.onRegistered = nil
	r.afterExecute = nil
}
