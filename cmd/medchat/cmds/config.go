package cmds

import (
	"context"
	"io"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/medchat/pkg/config"
)

type ConfigShowCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = &ConfigShowCommand{}

func NewConfigShowCommand(base config.Settings) (*ConfigShowCommand, error) {
	sections, err := config.NewSections(base)
	if err != nil {
		return nil, err
	}
	return &ConfigShowCommand{
		CommandDescription: cmds.NewCommandDescription(
			"show",
			cmds.WithShort("Print the merged configuration (defaults, file, env and flags) as YAML"),
			cmds.WithLong("Print the effective settings in the layout of ~/.medchat/config.yaml, "+
				"so the output can be saved as a config file."),
			cmds.WithSections(sections...),
		),
	}, nil
}

func (c *ConfigShowCommand) RunIntoWriter(_ context.Context, parsed *values.Values, w io.Writer) error {
	s, err := config.FromValues(parsed)
	if err != nil {
		return err
	}
	out, err := s.YAML()
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func NewConfigCommand(base config.Settings) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	show, err := NewConfigShowCommand(base)
	if err != nil {
		return nil, err
	}
	showCmd, err := cli.BuildCobraCommand(show, cli.WithCobraMiddlewaresFunc(config.Middlewares))
	if err != nil {
		return nil, err
	}
	cmd.AddCommand(showCmd)
	return cmd, nil
}
