package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vela-lang/vela/internal/opt"
)

const version = "0.1.0"

func main() {
	var (
		showVersion bool
		configFile  string
		validate    bool
		defaults    bool
	)

	flag.BoolVar(&showVersion, "version", false, "show version information")
	flag.StringVar(&configFile, "config", "vela-opt.yaml", "optimizer configuration file path")
	flag.BoolVar(&validate, "validate", false, "validate the configuration file and exit")
	flag.BoolVar(&defaults, "defaults", false, "print the built-in cost model")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Vela optimizer configuration inspector.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s --defaults                    # Print the built-in cost model\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --config vela-opt.yaml        # Print the effective cost model\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --validate                    # Check the file without printing\n", os.Args[0])
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("vela-config %s\n", version)
		return
	}

	if defaults {
		printConfig(opt.DefaultConfig())
		return
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading %s: %v\n", configFile, err)
		os.Exit(1)
	}
	cfg, err := opt.LoadConfig(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", configFile, err)
		os.Exit(1)
	}
	if validate {
		fmt.Printf("%s: OK\n", configFile)
		return
	}
	printConfig(cfg)
}

func printConfig(cfg opt.Config) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: encoding configuration: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}
