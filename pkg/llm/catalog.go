package llm

// DefaultModel is used when no model is configured.
const DefaultModel = "qwen-flash"

// Model is a selectable entry in the built-in catalog
type Model struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Provider Provider `json:"provider"`
}

var catalog = []Model{
	{ID: "qwen-flash", Name: "通义千问 Turbo (极速)", Provider: ProviderAliyun},
	{ID: "qwen-long-latest", Name: "通义千问 Plus (均衡推荐)", Provider: ProviderAliyun},
	{ID: "qwen-long-2025-01-25", Name: "通义千问 Max (最强逻辑)", Provider: ProviderAliyun},
	{ID: "llama-3.3-70b-versatile", Name: "Llama 3.3 70B (Meta最新)", Provider: ProviderGroq},
	{ID: "llama-3.1-70b-versatile", Name: "Llama 3.1 70B (稳定)", Provider: ProviderGroq},
	{ID: "llama-3.1-8b-instant", Name: "Llama 3.1 8B (极速)", Provider: ProviderGroq},
}

// Catalog returns a copy of the built-in model list.
func Catalog() []Model {
	out := make([]Model, len(catalog))
	copy(out, catalog)
	return out
}

// LookupModel finds a catalog entry by ID.
func LookupModel(id string) (Model, bool) {
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}
