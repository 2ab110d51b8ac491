package main

import (
	"fmt"
	"os"

	"github.com/debemdeboas/archive-editor/internal/config"
	"gopkg.in/yaml.v3"
)

const header = "# Archive editor configuration example\n# Copy this file to config.yaml and customize as needed.\n# Secrets are read from the environment variables named by the *_env keys.\n\n"

// exampleConfig renders the default configuration as commented YAML.
func exampleConfig() ([]byte, error) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("error generating YAML: %w", err)
	}
	return append([]byte(header), yamlData...), nil
}

func main() {
	output, err := exampleConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	outputFile := "config.example.yaml"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if outputFile == "-" {
		os.Stdout.Write(output)
		return
	}
	if err := os.WriteFile(outputFile, output, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated example config: %s\n", outputFile)
}
