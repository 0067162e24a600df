package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"gopkg.in/yaml.v2"

	"github.com/nasa-jpl/hexsrv/gcs2"
	"github.com/nasa-jpl/hexsrv/generichttp"
	"github.com/nasa-jpl/hexsrv/hexapod"
)

// AxisSetup configures one axis served as an independent device
type AxisSetup struct {
	// Name is the controller-side axis name, e.g. X or W
	Name string `yaml:"Name"`

	// Endpoint is the full path the routes for this axis will be served on,
	// ex. Endpoint="/omc/hex-z" will produce routes of /omc/hex-z/pos, etc.
	Endpoint string `yaml:"Endpoint"`
}

// Config holds the initialization parameters for the server.  It is to be
// populated by a yaml unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Controller is the network or filesystem address of the hexapod
	// controller, e.g. 192.168.0.100:50000, or /dev/ttyS4 for RS232
	Controller string `yaml:"Controller"`

	// Serial determines if the connection is serial/RS232 (True) or TCP (False)
	Serial bool `yaml:"Serial"`

	// Mock runs the server against a simulated controller
	Mock bool `yaml:"Mock"`

	// DB is the path to the settings database, which persists per-axis
	// flags across restarts
	DB string `yaml:"DB"`

	// Endpoint is the full path the platform routes will be served on
	Endpoint string `yaml:"Endpoint"`

	// Axes is the list of axes to additionally serve as independent devices
	Axes []AxisSetup `yaml:"Axes"`
}

// LoadYaml converts a (path to a) yaml file into a Config struct
func LoadYaml(path string) (Config, error) {
	cfg := Config{}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&cfg)
	return cfg, err
}

// BuildMux connects to the controller and builds the full routing table: the
// platform submux at c.Endpoint, one submux per configured axis, and
// /endpoints, which returns all routes as JSON.  The error return means the
// controller could not be reached; the server has nothing to serve then and
// should exit.
func BuildMux(c Config, mem hexapod.Memory) (chi.Router, error) {
	var link hexapod.Link
	if c.Mock {
		link = gcs2.NewMock()
	} else {
		link = gcs2.New(c.Controller, c.Serial)
	}
	ctl, err := hexapod.New(link)
	if err != nil {
		return nil, err
	}
	if id, err := ctl.Identification(); err == nil {
		log.Println("connected to ", id)
	}

	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	httper := hexapod.NewHTTPController(ctl)
	hndlS := generichttp.SubMuxSanitize(c.Endpoint)
	r := chi.NewRouter()
	httper.RT().Bind(r)
	root.Mount(hndlS, r)
	supergraph[hndlS] = httper.RT().Endpoints()

	for _, ax := range c.Axes {
		a, err := hexapod.NewAxis(ctl, ax.Name, mem)
		if err != nil {
			return nil, err
		}
		if !a.Known() {
			log.Printf("axis %s is not reported by the controller; serving it in permanent fault", ax.Name)
		}
		ep := ax.Endpoint
		if ep == "" {
			ep = c.Endpoint + "-" + strings.ToLower(ax.Name)
		}
		hndlS := generichttp.SubMuxSanitize(ep)
		h := hexapod.NewHTTPAxis(a)
		r := chi.NewRouter()
		h.RT().Bind(r)
		root.Mount(hndlS, r)
		supergraph[hndlS] = h.RT().Endpoints()
	}

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root, nil
}
