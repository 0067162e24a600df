package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/hexsrv/settings"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "hexsrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:       ":8000",
		Controller: "192.168.0.100:50000",
		Endpoint:   "/hexapod",
		DB:         "hexsrv.db"}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `hexsrv communicates with a PI hexapod motion controller and exposes an
HTTP interface to it.  This enables a server-client architecture, and the
clients can leverage the excellent HTTP libraries for any programming language.

Usage:
	hexsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `hexsrv is amenable to configuration via its .yaml file.  For a primer on YAML,
see https://yaml.org/start.html

The server speaks GCS2 to a single C-887 class controller over TCP (port 50000)
or RS232.  The whole platform is served at Endpoint, with per-axis routes under
Endpoint/axis/{axis}.  Each entry in Axes additionally serves that one axis as
an independent device at its own endpoint, with an Inverted flag persisted in
the DB file across restarts.

An axis listed in Axes that the controller does not report is served in
permanent fault rather than refused, so a misconfigured name is visible to
clients instead of silently absent.

With Mock: true the server runs against a simulated controller and touches no
hardware.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("hexsrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	store, err := settings.Open(c.DB)
	if err != nil {
		log.Fatalf("error opening settings db %s: %v", c.DB, err)
	}
	defer store.Close()
	mux, err := BuildMux(c, store)
	if err != nil {
		log.Fatalf("error connecting to the controller at %s: %v", c.Controller, err)
	}
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
