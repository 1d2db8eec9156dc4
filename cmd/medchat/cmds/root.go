package cmds

import (
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/medchat/pkg/config"
)

// AddToRootCommand registers the medchat commands. base seeds the field
// defaults, usually the built-in defaults overlaid with the config file.
func AddToRootCommand(root *cobra.Command, base config.Settings) error {
	chat, err := NewChatCommand(base)
	if err != nil {
		return err
	}
	ask, err := NewAskCommand(base)
	if err != nil {
		return err
	}
	tail, err := NewTailCommand(base)
	if err != nil {
		return err
	}

	cobraChat, err := cli.BuildCobraCommand(chat, cli.WithCobraMiddlewaresFunc(config.Middlewares))
	if err != nil {
		return err
	}
	cobraChat.Annotations = map[string]string{LogToFileAnnotation: "true"}

	cobraAsk, err := cli.BuildCobraCommand(ask, cli.WithCobraMiddlewaresFunc(config.Middlewares))
	if err != nil {
		return err
	}
	cobraTail, err := cli.BuildCobraCommand(tail, cli.WithCobraMiddlewaresFunc(config.Middlewares))
	if err != nil {
		return err
	}

	themeCmd, err := NewThemeCommand(base)
	if err != nil {
		return err
	}
	configCmd, err := NewConfigCommand(base)
	if err != nil {
		return err
	}

	root.AddCommand(cobraChat, cobraAsk, themeCmd, configCmd, cobraTail)
	return nil
}
