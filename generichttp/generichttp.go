// Package generichttp defines the plumbing shared by the HTTP interfaces to
// devices: a route table bound to a chi router, and small JSON payload types
// used to move scalars between client and server.
package generichttp

import (
	"encoding/json"
	"fmt"
	"go/types"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi"
)

// MethodPath is an HTTP method and URL path pair, the key of a RouteTable
type MethodPath struct {
	// Method is an HTTP method, e.g. http.MethodGet
	Method string

	// Path is the URL fragment the handler is bound to, e.g. /axis/{axis}/pos
	Path string
}

// RouteTable maps method-path pairs to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Bind registers every route in the table on r
func (rt RouteTable) Bind(r chi.Router) {
	for mp, handler := range rt {
		r.Method(mp.Method, mp.Path, handler)
	}
}

// Endpoints returns the sorted "METHOD path" strings in the table
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for mp := range rt {
		routes = append(routes, mp.Method+" "+mp.Path)
	}
	sort.Strings(routes)
	return routes
}

// HTTPer is an object which can supply a route table to bind to a router
type HTTPer interface {
	RT() RouteTable
}

// SubMuxSanitize prepares an endpoint for mounting as a submux,
// "omc/hex" => "/omc/hex"
func SubMuxSanitize(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return strings.TrimSuffix(endpoint, "/")
}

// HumanPayload is a struct containing the basic types response to an HTTP request
type HumanPayload struct {
	// T holds the type of data actually contained
	T types.BasicKind

	// Bool holds a binary value
	Bool bool

	// Int holds an integer value
	Int int

	// Float holds a floating point value
	Float float64

	// String holds a string value
	String string
}

// EncodeAndRespond writes the payload to w as JSON
func (hp *HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var err error
	switch hp.T {
	case types.Bool:
		err = json.NewEncoder(w).Encode(BoolT{Bool: hp.Bool})
	case types.Int:
		err = json.NewEncoder(w).Encode(IntT{Int: hp.Int})
	case types.Float64:
		err = json.NewEncoder(w).Encode(FloatT{F64: hp.Float})
	case types.String:
		err = json.NewEncoder(w).Encode(StrT{Str: hp.String})
	default:
		err = fmt.Errorf("generichttp: unknown payload kind %v", hp.T)
	}
	if err != nil {
		log.Println(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// FloatT is a struct with a single F64 field
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single Int field
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single Str field
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single Bool field
type BoolT struct {
	Bool bool `json:"bool"`
}
