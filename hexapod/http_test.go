package hexapod

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/hexsrv/generichttp"
)

func newControllerServer(t *testing.T) (*httptest.Server, *Controller) {
	t.Helper()
	c, m := newTestController(t)
	m.Reference()
	r := chi.NewRouter()
	NewHTTPController(c).RT().Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, c
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		t.Fatalf("encode: %v", err)
	}
	resp, err := http.Post(url, "application/json", buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, into interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestHTTPControllerBasics(t *testing.T) {
	srv, _ := newControllerServer(t)

	id := generichttp.StrT{}
	getJSON(t, srv.URL+"/id", &id)
	if !strings.Contains(id.Str, "C-887") {
		t.Errorf("unexpected id %q", id.Str)
	}

	var axes []string
	getJSON(t, srv.URL+"/axes", &axes)
	if len(axes) != 6 || axes[0] != "X" {
		t.Errorf("unexpected axis list %v", axes)
	}

	st := generichttp.StrT{}
	getJSON(t, srv.URL+"/state", &st)
	if st.Str != "ON" {
		t.Errorf("expected ON, got %q", st.Str)
	}
}

func TestHTTPControllerMoveResultCode(t *testing.T) {
	srv, _ := newControllerServer(t)

	resp := postJSON(t, srv.URL+"/axis/X/pos", generichttp.FloatT{F64: 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	code := generichttp.IntT{}
	if err := json.NewDecoder(resp.Body).Decode(&code); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if code.Int != 0 {
		t.Errorf("expected result code 0, got %d", code.Int)
	}

	// out of travel: the controller rejects with a code, HTTP stays 200
	resp = postJSON(t, srv.URL+"/axis/X/pos", generichttp.FloatT{F64: 100})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&code); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if code.Int != 7 {
		t.Errorf("expected result code 7, got %d", code.Int)
	}

	// unknown axis is a caller error
	resp = postJSON(t, srv.URL+"/axis/Q/pos", generichttp.FloatT{F64: 1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown axis, got %d", resp.StatusCode)
	}
}

func TestHTTPControllerPivot(t *testing.T) {
	srv, _ := newControllerServer(t)
	resp := postJSON(t, srv.URL+"/pivot", PivotT{X: 1, Y: 2, Z: 3})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	p := PivotT{}
	getJSON(t, srv.URL+"/pivot", &p)
	if (p != PivotT{X: 1, Y: 2, Z: 3}) {
		t.Errorf("pivot round trip failed: %+v", p)
	}
}

func TestHTTPAxis(t *testing.T) {
	a, _ := newTestAxis(t, "X", memMemory{})
	r := chi.NewRouter()
	NewHTTPAxis(a).RT().Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	// a target outside travel is refused before the controller sees it
	resp := postJSON(t, srv.URL+"/pos", generichttp.FloatT{F64: 100})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for an out-of-travel target, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/pos", generichttp.FloatT{F64: 4})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	code := generichttp.IntT{}
	if err := json.NewDecoder(resp.Body).Decode(&code); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if code.Int != 0 {
		t.Errorf("expected result code 0, got %d", code.Int)
	}

	inv := generichttp.BoolT{}
	getJSON(t, srv.URL+"/inverted", &inv)
	if inv.Bool {
		t.Error("inversion should default to false")
	}
	resp = postJSON(t, srv.URL+"/inverted", generichttp.BoolT{Bool: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	getJSON(t, srv.URL+"/inverted", &inv)
	if !inv.Bool {
		t.Error("inversion flag did not stick")
	}

	lim := struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	}{}
	getJSON(t, srv.URL+"/limits", &lim)
	if lim.Min != -17 || lim.Max != 17 {
		t.Errorf("unexpected limits %+v", lim)
	}
}

func TestHTTPControllerEndpoints(t *testing.T) {
	c, _ := newTestController(t)
	rt := NewHTTPController(c).RT()
	eps := rt.Endpoints()
	if len(eps) == 0 {
		t.Fatal("route table should not be empty")
	}
	want := fmt.Sprintf("%s %s", http.MethodPost, "/find-references")
	found := false
	for _, ep := range eps {
		if ep == want {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("endpoint list missing %q: %v", want, eps)
	}
}
