package llm

import "fmt"

// ModelRoute binds a logical model to a provider and physical model name.
type ModelRoute struct {
	Name        string
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Pipeline roles resolved through the registry.
const (
	RoleTarget   = "target"
	RolePlanner  = "planner"
	RoleRepair   = "repair"
	RoleReviewer = "reviewer"
)

// Registry resolves logical models to providers and maps pipeline roles to models.
type Registry struct {
	providers    map[string]Provider
	models       map[string]ModelRoute
	roles        map[string]string
	defaultModel string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		models:    make(map[string]ModelRoute),
		roles:     make(map[string]string),
	}
}

// RegisterProvider adds a provider implementation.
func (r *Registry) RegisterProvider(name string, p Provider) {
	r.providers[name] = p
}

// RegisterModel adds a model route.
func (r *Registry) RegisterModel(name string, route ModelRoute, isDefault bool) {
	route.Name = name
	r.models[name] = route
	if isDefault || r.defaultModel == "" {
		r.defaultModel = name
	}
}

// BindRole points a pipeline role at a logical model. Empty model ids are ignored.
func (r *Registry) BindRole(role, modelName string) {
	if modelName == "" {
		return
	}
	r.roles[role] = modelName
}

// Resolve returns the provider and route for a given model name (default if empty).
func (r *Registry) Resolve(modelName string) (Provider, ModelRoute, error) {
	if modelName == "" {
		modelName = r.defaultModel
	}

	route, ok := r.models[modelName]
	if !ok {
		return nil, ModelRoute{}, fmt.Errorf("model %q not registered", modelName)
	}

	p, ok := r.providers[route.Provider]
	if !ok {
		return nil, ModelRoute{}, fmt.Errorf("provider %q not registered for model %q", route.Provider, modelName)
	}

	return p, route, nil
}

// ResolveRole resolves a pipeline role to a provider and route. An override
// model id wins over the role binding; both fall back to the default model.
func (r *Registry) ResolveRole(role, override string) (Provider, ModelRoute, error) {
	modelName := override
	if modelName == "" {
		modelName = r.roles[role]
	}
	return r.Resolve(modelName)
}
