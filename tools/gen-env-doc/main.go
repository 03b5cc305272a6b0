//go:build ignore
// +build ignore

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cfg "github.com/ArkLabsHQ/subswap/internal/config"
	log "github.com/sirupsen/logrus"
)

func main() {
	out := flag.String("out", "../../docs/environment.md", "output markdown file")
	flag.Parse()

	specs := cfg.EnvSpecs()

	var sb strings.Builder
	sb.WriteString("# swapd environment\n\n")
	sb.WriteString("Generated from `config.EnvSpecs()` by `go generate ./internal/config`.\n\n")
	sb.WriteString("| Variable | Default | Type | Description |\n")
	sb.WriteString("|----------|---------|------|-------------|\n")

	for _, s := range specs {
		def := "`" + s.Default + "`"
		if s.Default == "" {
			def = "unset"
		}
		desc := s.Description
		if s.Notes != "" {
			desc += "<br/><em>" + s.Notes + "</em>"
		}
		fmt.Fprintf(&sb, "| `%s` | %s | `%s` | %s |\n", s.FullName, def, s.Type, desc)
	}

	// Sample env file for a regtest setup against cmd/boltz-mock.
	sb.WriteString("\n## Example\n\n```sh\n")
	for _, s := range specs {
		value := s.Default
		switch s.Name {
		case cfg.Network:
			value = "regtest"
		case cfg.BoltzURL:
			value = "http://localhost:9001"
		}
		if value == "" {
			fmt.Fprintf(&sb, "# %s=\n", s.FullName)
			continue
		}
		fmt.Fprintf(&sb, "%s=%s\n", s.FullName, value)
	}
	sb.WriteString("```\n")

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(*out, []byte(sb.String()), 0o644); err != nil {
		log.Fatal(err)
	}
	log.Infof("wrote %d variables to %s", len(specs), *out)
}
