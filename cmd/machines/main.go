// Command machines edits the machine document read by the simulator.
// Changes take effect the next time the simulator starts.
//
//	machines [-config machines.yaml] <command> [flags]
//
// Commands: list, add-machine, remove-machine, add-parameter,
// attach-parameter, remove-parameter.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/OlexDemOn/IoT-app/data-simulator/config"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal().Msgf("%s", err)
	}
}

func run(args []string, out io.Writer) error {
	settings, err := config.ParseSettings()
	if err != nil {
		return err
	}
	global := flag.NewFlagSet("machines", flag.ContinueOnError)
	path := global.String("config", settings.ConfigPath, "Path to the machine document (env: CONFIG_PATH)")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		return fmt.Errorf("missing command")
	}

	doc, err := loadOrDefault(*path)
	if err != nil {
		return err
	}
	command, rest := global.Arg(0), global.Args()[1:]
	changed, err := apply(doc, command, rest, out)
	if err != nil || !changed {
		return err
	}
	if err := doc.Save(*path); err != nil {
		return err
	}
	log.Info().Msgf("Saved machine document %s", *path)
	return nil
}

func loadOrDefault(path string) (*config.Document, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Warn().Msgf("Machine document %s not found, starting from defaults", path)
		return config.Default(), nil
	}
	return config.Load(path)
}

// apply runs one command on doc and reports whether doc changed.
func apply(doc *config.Document, command string, args []string, out io.Writer) (bool, error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	switch command {
	case "list":
		if err := fs.Parse(args); err != nil {
			return false, err
		}
		list(doc, out)
		return false, nil

	case "add-machine":
		name := fs.String("name", "", "Machine name")
		var params []config.ParameterSpec
		fs.Func("param", "Parameter as NAME:UNIT, repeatable", func(v string) error {
			name, unit, _ := strings.Cut(v, ":")
			if name == "" {
				return fmt.Errorf("parameter name is required")
			}
			params = append(params, config.ParameterSpec{Parameter: name, Unit: unit})
			return nil
		})
		if err := fs.Parse(args); err != nil {
			return false, err
		}
		m, err := doc.AddMachine(*name, params)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Added %s with id %d\n", m.Name, m.ID)
		return true, nil

	case "remove-machine":
		name := fs.String("name", "", "Machine name")
		if err := fs.Parse(args); err != nil {
			return false, err
		}
		if !doc.RemoveMachine(*name) {
			return false, fmt.Errorf("machine %q not found", *name)
		}
		return true, nil

	case "add-parameter":
		name := fs.String("name", "", "Parameter name")
		low := fs.Float64("low", 0, "Lower bound")
		high := fs.Float64("high", 0, "Upper bound")
		if err := fs.Parse(args); err != nil {
			return false, err
		}
		if *name == "" {
			return false, fmt.Errorf("parameter name is required")
		}
		return true, doc.AddParameter(*name, config.Range{Low: *low, High: *high})

	case "attach-parameter":
		machine := fs.String("machine", "", "Machine name")
		parameter := fs.String("parameter", "", "Global parameter name")
		unit := fs.String("unit", "", "Unit of the values")
		if err := fs.Parse(args); err != nil {
			return false, err
		}
		return true, doc.AddParameterToMachine(*machine, *parameter, *unit)

	case "remove-parameter":
		name := fs.String("name", "", "Parameter name")
		if err := fs.Parse(args); err != nil {
			return false, err
		}
		doc.RemoveParameter(*name)
		return true, nil
	}
	return false, fmt.Errorf("unknown command %q", command)
}

func list(doc *config.Document, out io.Writer) {
	for _, m := range doc.Machines {
		fmt.Fprintf(out, "%s (id %d)\n", m.Name, m.ID)
		for _, p := range m.Parameters {
			fmt.Fprintf(out, "  %-14s %-32s %s\n", p.Parameter, p.Topic, p.Unit)
		}
	}
}
