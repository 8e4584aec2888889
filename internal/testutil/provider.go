package testutil

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/roach88/tracked/internal/model"
)

// Responder answers one provider request.
type Responder func(ctx context.Context, req *model.Request) (*model.Result, error)

// ScriptedProvider is a model.Provider whose answers are scripted per
// method. Unscripted creates assign "srv-N" ids and echo the data back;
// other unscripted methods succeed with no record.
//
// Every request is recorded. Thread-safety: safe for concurrent use, as
// Collection.Sync issues calls from several goroutines.
type ScriptedProvider struct {
	mu       sync.Mutex
	requests []*model.Request
	script   map[model.Method]Responder
	nextID   int
}

// NewScriptedProvider creates a provider with no scripted answers.
func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{script: make(map[model.Method]Responder)}
}

// On scripts the answer for method.
func (p *ScriptedProvider) On(method model.Method, fn Responder) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script[method] = fn
	return p
}

// FailWith makes every call of method fail with err.
func (p *ScriptedProvider) FailWith(method model.Method, err error) *ScriptedProvider {
	return p.On(method, func(context.Context, *model.Request) (*model.Result, error) {
		return nil, err
	})
}

// Requests returns the recorded requests in arrival order.
func (p *ScriptedProvider) Requests() []*model.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*model.Request(nil), p.requests...)
}

// Calls returns how many requests used method.
func (p *ScriptedProvider) Calls(method model.Method) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, req := range p.requests {
		if req.Method == method {
			n++
		}
	}
	return n
}

func (p *ScriptedProvider) Create(ctx context.Context, req *model.Request) (*model.Result, error) {
	return p.handle(ctx, req)
}

func (p *ScriptedProvider) Read(ctx context.Context, req *model.Request) (*model.Result, error) {
	return p.handle(ctx, req)
}

func (p *ScriptedProvider) Update(ctx context.Context, req *model.Request) (*model.Result, error) {
	return p.handle(ctx, req)
}

func (p *ScriptedProvider) Destroy(ctx context.Context, req *model.Request) (*model.Result, error) {
	return p.handle(ctx, req)
}

func (p *ScriptedProvider) handle(ctx context.Context, req *model.Request) (*model.Result, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	fn := p.script[req.Method]
	var id string
	if fn == nil && req.Method == model.MethodCreate {
		p.nextID++
		id = fmt.Sprintf("srv-%d", p.nextID)
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Method != model.MethodCreate {
		return &model.Result{}, nil
	}
	rec := maps.Clone(req.Data)
	if rec == nil {
		rec = make(map[string]any)
	}
	rec[req.IDAttribute] = id
	return &model.Result{Record: rec}, nil
}

var _ model.Provider = (*ScriptedProvider)(nil)
