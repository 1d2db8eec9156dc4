package cmds

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/medchat/pkg/config"
	"github.com/go-go-golems/medchat/pkg/theme"
)

type ThemeShowCommand struct {
	*cmds.CommandDescription
}

type ThemeToggleCommand struct {
	*cmds.CommandDescription
}

type ThemeSetCommand struct {
	*cmds.CommandDescription

	// pick asks for a theme when no argument is given; nil outside a terminal.
	pick func(current theme.Theme) (string, error)
}

var (
	_ cmds.WriterCommand = &ThemeShowCommand{}
	_ cmds.WriterCommand = &ThemeToggleCommand{}
	_ cmds.WriterCommand = &ThemeSetCommand{}
)

type ThemeSetSettings struct {
	Theme string `glazed:"theme"`
}

func NewThemeShowCommand(name string, base config.Settings) (*ThemeShowCommand, error) {
	sections, err := config.NewSections(base)
	if err != nil {
		return nil, err
	}
	return &ThemeShowCommand{
		CommandDescription: cmds.NewCommandDescription(
			name,
			cmds.WithShort("Print the persisted color theme"),
			cmds.WithSections(sections...),
		),
	}, nil
}

func NewThemeToggleCommand(base config.Settings) (*ThemeToggleCommand, error) {
	sections, err := config.NewSections(base)
	if err != nil {
		return nil, err
	}
	return &ThemeToggleCommand{
		CommandDescription: cmds.NewCommandDescription(
			"toggle",
			cmds.WithShort("Switch between light and dark"),
			cmds.WithSections(sections...),
		),
	}, nil
}

func NewThemeSetCommand(base config.Settings) (*ThemeSetCommand, error) {
	sections, err := config.NewSections(base)
	if err != nil {
		return nil, err
	}
	c := &ThemeSetCommand{
		CommandDescription: cmds.NewCommandDescription(
			"set",
			cmds.WithShort("Set the theme; prompts for it when run on a terminal without an argument"),
			cmds.WithArguments(
				fields.New(
					"theme",
					fields.TypeString,
					fields.WithHelp("dark or light"),
					fields.WithDefault(""),
				),
			),
			cmds.WithSections(sections...),
		),
	}
	if stdinIsTerminal() {
		c.pick = pickTheme
	}
	return c, nil
}

func (c *ThemeShowCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s, err := config.FromValues(parsed)
	if err != nil {
		return err
	}
	return showTheme(ctx, s.UI.ThemeDB, w)
}

func (c *ThemeToggleCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s, err := config.FromValues(parsed)
	if err != nil {
		return err
	}
	return toggleTheme(ctx, s.UI.ThemeDB, w)
}

func (c *ThemeSetCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	ts := &ThemeSetSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, ts); err != nil {
		return err
	}
	s, err := config.FromValues(parsed)
	if err != nil {
		return err
	}
	return setTheme(ctx, s.UI.ThemeDB, ts.Theme, c.pick, w)
}

func showTheme(ctx context.Context, path string, w io.Writer) error {
	m, closeThemes, err := OpenThemes(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = closeThemes() }()
	_, err = fmt.Fprintln(w, m.Current())
	return err
}

func toggleTheme(ctx context.Context, path string, w io.Writer) error {
	m, closeThemes, err := OpenThemes(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = closeThemes() }()
	next, err := m.Toggle(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, next)
	return err
}

func setTheme(
	ctx context.Context,
	path string,
	choice string,
	pick func(theme.Theme) (string, error),
	w io.Writer,
) error {
	m, closeThemes, err := OpenThemes(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = closeThemes() }()

	if choice == "" {
		if pick == nil {
			return errors.New("theme set needs an argument when stdin is not a terminal")
		}
		choice, err = pick(m.Current())
		if err != nil {
			return err
		}
	}

	t, err := theme.Parse(choice)
	if err != nil {
		return err
	}
	if err := m.Set(ctx, t); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, t)
	return err
}

func pickTheme(current theme.Theme) (string, error) {
	choice := string(current)
	err := huh.NewSelect[string]().
		Title("Color theme").
		Options(
			huh.NewOption("Light "+theme.Icon(theme.Dark), string(theme.Light)),
			huh.NewOption("Dark "+theme.Icon(theme.Light), string(theme.Dark)),
		).
		Value(&choice).
		Run()
	if err != nil {
		return "", errors.Wrap(err, "theme prompt")
	}
	return choice, nil
}

// NewThemeCommand builds `theme`, which prints the theme, with its show,
// toggle and set subcommands.
func NewThemeCommand(base config.Settings) (*cobra.Command, error) {
	root, err := NewThemeShowCommand("theme", base)
	if err != nil {
		return nil, err
	}
	show, err := NewThemeShowCommand("show", base)
	if err != nil {
		return nil, err
	}
	toggle, err := NewThemeToggleCommand(base)
	if err != nil {
		return nil, err
	}
	set, err := NewThemeSetCommand(base)
	if err != nil {
		return nil, err
	}

	themeCmd, err := cli.BuildCobraCommand(root, cli.WithCobraMiddlewaresFunc(config.Middlewares))
	if err != nil {
		return nil, err
	}
	themeCmd.Short = "Show or change the persisted color theme"
	for _, c := range []cmds.Command{show, toggle, set} {
		sub, err := cli.BuildCobraCommand(c, cli.WithCobraMiddlewaresFunc(config.Middlewares))
		if err != nil {
			return nil, err
		}
		themeCmd.AddCommand(sub)
	}
	return themeCmd, nil
}
