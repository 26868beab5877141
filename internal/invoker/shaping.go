package invoker

import (
	"net/url"

	"github.com/lawgenie/hscompass/internal/model"
)

// request is a shaped call to a single source.
type request struct {
	URL     string
	Method  string
	Params  map[string]string
	Headers map[string]string
}

// shaper rewrites a generic request into the form a specific source
// expects.
type shaper func(src model.Source, product string, req *request)

// shapers keys source names to their request strategies. Sources
// without an entry are called with their catalog URL and params as-is.
var shapers = map[string]shaper{
	// CompTox takes a single search parameter; CAS numbers beat free
	// text when the ingredient is known.
	"epa_comptox_chemicals": func(src model.Source, product string, req *request) {
		term := CASNumber(product)
		if term == "" {
			term = SearchTerm(product)
		}
		req.Params = map[string]string{"search": term}
		req.Headers["Accept"] = "application/json"
	},
	// SRS chemname queries by path segment, not query string.
	"epa_srs_chemname": func(src model.Source, product string, req *request) {
		req.URL = src.URL + url.PathEscape(SearchTerm(product))
		req.Params = map[string]string{}
		req.Headers["Accept"] = "application/json"
	},
	"usda_fooddata_central": func(src model.Source, product string, req *request) {
		req.Params["query"] = SearchTerm(product)
	},
	"fda_food_enforcement": func(src model.Source, product string, req *request) {
		req.Params["search"] = "product_description:" + SearchTerm(product)
	},
}

// shapeRequest builds the outgoing request for a source, cloning the
// catalog's params and headers before any strategy rewrites them.
func shapeRequest(src model.Source, product string) request {
	req := request{
		URL:     src.URL,
		Method:  src.Method,
		Params:  make(map[string]string, len(src.Params)),
		Headers: make(map[string]string, len(src.Headers)+1),
	}
	for k, v := range src.Params {
		req.Params[k] = v
	}
	for k, v := range src.Headers {
		req.Headers[k] = v
	}
	if s, ok := shapers[src.Name]; ok {
		s(src, product, &req)
	}
	return req
}

// injectCredential places an API key where the source expects it. A
// header slot named in the catalog wins over the default query
// parameter.
func injectCredential(src model.Source, req *request, key string) {
	if key == "" {
		return
	}
	if _, ok := req.Headers["X-Api-Key"]; ok {
		req.Headers["X-Api-Key"] = key
		return
	}
	req.Params["api_key"] = key
}
