// cmd/tools/registry-dump/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"geodialogue/internal/models"
	"geodialogue/pkg/registry"
)

func main() {
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	schemaCmd := flag.NewFlagSet("schema", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	listOverrides := listCmd.String("overrides", "", "Optional overrides file applied before listing")
	schemaOverrides := schemaCmd.String("overrides", "", "Optional overrides file applied before printing")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "list":
		listCmd.Parse(os.Args[2:])
		err = withRegistry(*listOverrides, func(reg *registry.Registry) error {
			return list(os.Stdout, reg)
		})

	case "schema":
		schemaCmd.Parse(os.Args[2:])
		if schemaCmd.NArg() != 1 {
			fmt.Println("Error: schema takes exactly one analysis kind.")
			schemaCmd.Usage()
			os.Exit(1)
		}
		err = withRegistry(*schemaOverrides, func(reg *registry.Registry) error {
			return printSchema(os.Stdout, reg, schemaCmd.Arg(0))
		})

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if validateCmd.NArg() != 1 {
			fmt.Println("Error: validate takes the path of an overrides file.")
			validateCmd.Usage()
			os.Exit(1)
		}
		err = validateOverrides(os.Stdout, validateCmd.Arg(0))

	case "help":
		fallthrough
	default:
		help()
		return
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func withRegistry(overridesPath string, fn func(*registry.Registry) error) error {
	reg := registry.Default()
	if overridesPath != "" {
		o, err := registry.LoadOverrides(overridesPath)
		if err != nil {
			return err
		}
		if err := reg.ApplyOverrides(o); err != nil {
			return err
		}
	}
	return fn(reg)
}

// list prints one block per kind with its parameters and their questions.
func list(w io.Writer, reg *registry.Registry) error {
	fmt.Fprintf(w, "Schema registry %s\n", reg.Version())
	for _, s := range reg.Schemas() {
		fmt.Fprintf(w, "\n%s (%s)\n  %s\n", s.Kind, s.DisplayName, s.Description)
		for _, p := range s.Params {
			var attrs []string
			if p.Required {
				attrs = append(attrs, "required")
			}
			if p.OneOf != "" {
				attrs = append(attrs, "one of "+p.OneOf)
			}
			if p.Default != nil {
				attrs = append(attrs, fmt.Sprintf("default %v", p.Default))
			}
			if p.Minimum != nil && p.Maximum != nil {
				attrs = append(attrs, fmt.Sprintf("range %v-%v", *p.Minimum, *p.Maximum))
			}
			if len(p.Enum) > 0 {
				attrs = append(attrs, "values "+strings.Join(p.Enum, "/"))
			}
			fmt.Fprintf(w, "  - %-12s %-10s %s\n", p.Name, p.Type, strings.Join(attrs, ", "))
		}
	}
	return nil
}

func printSchema(w io.Writer, reg *registry.Registry, kindName string) error {
	kind, ok := models.ParseKind(kindName)
	if !ok {
		return fmt.Errorf("unknown analysis kind %q", kindName)
	}
	s, ok := reg.Schema(kind)
	if !ok {
		return fmt.Errorf("analysis kind %q is not registered", kind)
	}
	data, err := json.MarshalIndent(s.JSONSchema(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func validateOverrides(w io.Writer, path string) error {
	o, err := registry.LoadOverrides(path)
	if err != nil {
		return err
	}
	if err := registry.Default().ApplyOverrides(o); err != nil {
		return fmt.Errorf("overrides validation failed: %w", err)
	}
	fmt.Fprintf(w, "Overrides %s (version %q) are valid.\n", path, o.Version)
	return nil
}

func help() {
	fmt.Println(`Usage:
  registry-dump list [-overrides file]
  registry-dump schema [-overrides file] <kind>
  registry-dump validate <overrides file>
  registry-dump help`)
}
