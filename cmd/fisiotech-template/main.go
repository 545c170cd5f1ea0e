package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/marcelrenan-web/Fisiotech-app/internal/templates"
)

var version = "0.1.0-dev"

func main() {
	var manifestPath string
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateCmd.StringVar(&manifestPath, "file", "template.yaml", "Path to template manifest")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'validate', 'fields' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := runValidate(manifestPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("manifest valid")
	case "fields":
		validateCmd.Parse(os.Args[2:])
		if err := runFields(manifestPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runValidate(path string) error {
	m, err := templates.Load(path)
	if err != nil {
		return err
	}
	return templates.Validate(m)
}

// runFields prints the dictation field catalog of a template, in the order
// voice navigation will walk it.
func runFields(path string) error {
	m, err := templates.Load(path)
	if err != nil {
		return err
	}
	if err := templates.Validate(m); err != nil {
		return err
	}
	for _, f := range m.Fields {
		fmt.Printf("%s\t%s\n", f.ID, f.Label)
	}
	return nil
}
