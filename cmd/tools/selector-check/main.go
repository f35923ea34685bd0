// cmd/tools/selector-check/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	portalsignup "league-signup/internal/workers/signup/portal-signup"
	"league-signup/pkg/registry"
)

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)

	validatePath := validateCmd.String("path", "", "Path to selector registry (empty: built-in)")

	listPath := listCmd.String("path", "", "Path to selector registry (empty: built-in)")
	listFlow := listCmd.String("flow", "", "Show the chains one flow resolves (parent or adult)")

	addPath := addCmd.String("path", "configs/selectors.json", "Path to selector registry")
	addName := addCmd.String("name", "", "Element name (e.g., common.email)")
	addSelector := addCmd.String("selector", "", "CSS selector, or XPath starting with //")
	addFirst := addCmd.Bool("first", false, "Prepend instead of append to the chain")
	addDescription := addCmd.String("description", "", "Description for a new element")

	exportPath := exportCmd.String("path", "configs/selectors.json", "Where to write the built-in registry")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := load(*validatePath)
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		if err := checkFlows(reg); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d elements.\n", len(reg.Elements))

	case "list":
		listCmd.Parse(os.Args[2:])
		reg, err := load(*listPath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		if *listFlow != "" {
			if err := printFlow(reg, *listFlow); err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
		for _, el := range reg.Elements {
			fmt.Printf("%-24s %s\n", el.Name, strings.Join(el.Selectors, "  |  "))
		}

	case "add":
		addCmd.Parse(os.Args[2:])
		if *addName == "" || *addSelector == "" {
			fmt.Println("Error: name and selector are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		if err := addSelectorTo(*addPath, *addName, *addSelector, *addDescription, *addFirst); err != nil {
			fmt.Printf("Error adding selector: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added %q to %s\n", *addSelector, *addName)

	case "export":
		exportCmd.Parse(os.Args[2:])
		if err := registry.Default().Save(*exportPath); err != nil {
			fmt.Printf("Error exporting registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote built-in registry to %s\n", *exportPath)

	case "help":
		fallthrough
	default:
		help()
	}
}

func load(path string) (*registry.SelectorRegistry, error) {
	reg, err := registry.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	// LoadOrDefault only validates files; check the built-in one too.
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// checkFlows verifies both signup flows can resolve every field they use.
func checkFlows(reg *registry.SelectorRegistry) error {
	for _, flow := range []string{"parent", "adult"} {
		for _, field := range portalsignup.RequiredFields() {
			if _, _, err := reg.ChainFor(flow, field); err != nil {
				return err
			}
		}
	}
	return nil
}

func printFlow(reg *registry.SelectorRegistry, flow string) error {
	for _, field := range portalsignup.RequiredFields() {
		name, chain, err := reg.ChainFor(flow, field)
		if err != nil {
			return err
		}
		fmt.Printf("%-16s %-24s %s\n", field, name, strings.Join(chain, "  |  "))
	}
	return nil
}

func addSelectorTo(path, name, selector, description string, first bool) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		reg = &registry.SelectorRegistry{Version: "1.0.0"}
	}

	found := false
	for i := range reg.Elements {
		el := &reg.Elements[i]
		if el.Name != name {
			continue
		}
		found = true
		for _, existing := range el.Selectors {
			if existing == selector {
				return fmt.Errorf("%s already has selector %q", name, selector)
			}
		}
		if first {
			el.Selectors = append([]string{selector}, el.Selectors...)
		} else {
			el.Selectors = append(el.Selectors, selector)
		}
		break
	}
	if !found {
		reg.Elements = append(reg.Elements, registry.Element{
			Name:        name,
			Description: description,
			Selectors:   []string{selector},
		})
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	return reg.Save(path)
}

func help() {
	fmt.Print(`
Usage: selector-check <command> [flags]

Commands:
  validate  Validate a selector registry and check both flows resolve every field
  list      Print every element's selector chain, or the chains one flow uses
  add       Add a fallback selector to an element (creates the element if missing)
  export    Write the built-in registry to a file for editing
  help      Show this help message

Examples:
  selector-check validate -path configs/selectors.json
  selector-check list -flow adult
  selector-check add -path configs/selectors.json -name common.email -selector "input[name='emailAddress']"
  selector-check export -path configs/selectors.json

Use 'selector-check <command> -h' for more information about a command.
`+"\n")
}
