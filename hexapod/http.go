package hexapod

import (
	"encoding/json"
	"errors"
	"go/types"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/hexsrv/generichttp"
	"github.com/nasa-jpl/hexsrv/util"
)

// PivotT is a JSON-friendly pivot point in platform coordinates
type PivotT struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// httpErr writes the error with a status that distinguishes caller mistakes
// (unknown axis) from controller failures
func httpErr(w http.ResponseWriter, err error) {
	var uae UnknownAxisError
	if errors.As(err, &uae) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// HTTPController wraps a Controller with an HTTP interface
type HTTPController struct {
	c *Controller

	RouteTable generichttp.RouteTable
}

// NewHTTPController returns a newly HTTP-wrapped controller
func NewHTTPController(c *Controller) HTTPController {
	w := HTTPController{c: c}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/id"}:               generichttp.GetString(c.Identification),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/state"}:            w.State,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/axes"}:             w.Axes,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/velocity"}:         generichttp.GetFloat(c.SystemVelocity),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/velocity"}:        generichttp.SetFloat(c.SetSystemVelocity),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/pivot"}:            w.GetPivot,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/pivot"}:           w.SetPivot,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/find-references"}: generichttp.Command(c.FindReferences),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/halt"}:            w.Halt,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/stop"}:            w.Stop,

		generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/state"}:  w.AxisState,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/pos"}:    w.AxisPos,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/pos"}:   w.SetAxisPos,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/limits"}: w.AxisLimits,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/unit"}:   w.AxisUnit,
	}
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPController) RT() generichttp.RouteTable {
	return h.RouteTable
}

// State reads the derived platform state
func (h HTTPController) State(w http.ResponseWriter, r *http.Request) {
	hp := generichttp.HumanPayload{T: types.String, String: h.c.DeviceState().String()}
	hp.EncodeAndRespond(w, r)
}

// Axes lists the axis names reported by the controller
func (h HTTPController) Axes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(h.c.AxisNames())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetPivot reads the rotation pivot point
func (h HTTPController) GetPivot(w http.ResponseWriter, r *http.Request) {
	p, err := h.c.PivotPoint()
	if err != nil {
		httpErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(PivotT{X: p.R, Y: p.S, Z: p.T})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SetPivot writes the rotation pivot point
func (h HTTPController) SetPivot(w http.ResponseWriter, r *http.Request) {
	p := PivotT{}
	err := json.NewDecoder(r.Body).Decode(&p)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.c.SetPivotPoint(p.X, p.Y, p.Z)
	if err != nil {
		httpErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Halt smoothly stops all motion
func (h HTTPController) Halt(w http.ResponseWriter, r *http.Request) {
	h.c.Halt()
	w.WriteHeader(http.StatusOK)
}

// Stop aborts all motion
func (h HTTPController) Stop(w http.ResponseWriter, r *http.Request) {
	h.c.Stop()
	w.WriteHeader(http.StatusOK)
}

// AxisState reads the derived state of one axis by URL parameter
func (h HTTPController) AxisState(w http.ResponseWriter, r *http.Request) {
	axis := chi.URLParam(r, "axis")
	snap, err := h.c.QueryAxisState(axis)
	if err != nil {
		httpErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(snap)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// AxisPos reads the position of one axis by URL parameter
func (h HTTPController) AxisPos(w http.ResponseWriter, r *http.Request) {
	axis := chi.URLParam(r, "axis")
	snap, err := h.c.QueryAxisState(axis)
	if err != nil {
		httpErr(w, err)
		return
	}
	hp := generichttp.HumanPayload{T: types.Float64, Float: snap.Position}
	hp.EncodeAndRespond(w, r)
}

// SetAxisPos commands an absolute move of one axis and returns the
// controller result code as json {'int': code}
func (h HTTPController) SetAxisPos(w http.ResponseWriter, r *http.Request) {
	axis := chi.URLParam(r, "axis")
	f := generichttp.FloatT{}
	err := json.NewDecoder(r.Body).Decode(&f)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	code, err := h.c.SetPosition(axis, f.F64)
	if err != nil {
		httpErr(w, err)
		return
	}
	hp := generichttp.HumanPayload{T: types.Int, Int: code}
	hp.EncodeAndRespond(w, r)
}

// AxisLimits reads the travel range of one axis as json {'min': v, 'max': v}
func (h HTTPController) AxisLimits(w http.ResponseWriter, r *http.Request) {
	axis := chi.URLParam(r, "axis")
	min, max, err := h.c.AxisBounds(axis)
	if err != nil {
		httpErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(util.Limiter{Min: min, Max: max})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// AxisUnit reads the physical unit of one axis
func (h HTTPController) AxisUnit(w http.ResponseWriter, r *http.Request) {
	axis := chi.URLParam(r, "axis")
	unit, err := h.c.AxisUnit(axis)
	if err != nil {
		httpErr(w, err)
		return
	}
	hp := generichttp.HumanPayload{T: types.String, String: unit}
	hp.EncodeAndRespond(w, r)
}

// HTTPAxis wraps an Axis with an HTTP interface
type HTTPAxis struct {
	a *Axis

	RouteTable generichttp.RouteTable
}

// NewHTTPAxis returns a newly HTTP-wrapped axis
func NewHTTPAxis(a *Axis) HTTPAxis {
	w := HTTPAxis{a: a}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/pos"}:          generichttp.GetFloat(a.Position),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/pos"}:         w.SetPos,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/state"}:        w.State,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/limit-switch"}: generichttp.GetBool(a.LimitSwitch),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/referenced"}:   generichttp.GetBool(a.Referenced),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/velocity"}:     generichttp.GetFloat(a.Velocity),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/velocity"}:    generichttp.SetFloat(a.SetVelocity),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/inverted"}:     w.GetInverted,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/inverted"}:    generichttp.SetBool(a.SetInverted),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/limits"}:       w.Limits,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/unit"}:         w.Unit,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/halt"}:        w.Halt,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/stop"}:        w.Stop,
	}
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPAxis) RT() generichttp.RouteTable {
	return h.RouteTable
}

// SetPos commands an absolute move in the view frame.  Targets outside the
// travel range are rejected with Bad Request before touching the
// controller; accepted moves return the controller result code as json
// {'int': code}.
func (h HTTPAxis) SetPos(w http.ResponseWriter, r *http.Request) {
	f := generichttp.FloatT{}
	err := json.NewDecoder(r.Body).Decode(&f)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !h.a.TargetInBounds(f.F64) {
		http.Error(w, "target position outside axis travel range", http.StatusBadRequest)
		return
	}
	code, err := h.a.MoveTo(f.F64)
	if err != nil {
		httpErr(w, err)
		return
	}
	hp := generichttp.HumanPayload{T: types.Int, Int: code}
	hp.EncodeAndRespond(w, r)
}

// State reads the derived axis state
func (h HTTPAxis) State(w http.ResponseWriter, r *http.Request) {
	hp := generichttp.HumanPayload{T: types.String, String: h.a.State().String()}
	hp.EncodeAndRespond(w, r)
}

// GetInverted reads the inversion flag
func (h HTTPAxis) GetInverted(w http.ResponseWriter, r *http.Request) {
	hp := generichttp.HumanPayload{T: types.Bool, Bool: h.a.Inverted()}
	hp.EncodeAndRespond(w, r)
}

// Limits reads the travel range as json {'min': v, 'max': v}
func (h HTTPAxis) Limits(w http.ResponseWriter, r *http.Request) {
	min, max := h.a.Bounds()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(util.Limiter{Min: min, Max: max})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Unit reads the physical unit
func (h HTTPAxis) Unit(w http.ResponseWriter, r *http.Request) {
	hp := generichttp.HumanPayload{T: types.String, String: h.a.Unit()}
	hp.EncodeAndRespond(w, r)
}

// Halt smoothly stops the platform
func (h HTTPAxis) Halt(w http.ResponseWriter, r *http.Request) {
	h.a.Halt()
	w.WriteHeader(http.StatusOK)
}

// Stop aborts all platform motion
func (h HTTPAxis) Stop(w http.ResponseWriter, r *http.Request) {
	h.a.Stop()
	w.WriteHeader(http.StatusOK)
}
