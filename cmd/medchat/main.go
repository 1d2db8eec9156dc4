package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/help"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/medchat/cmd/medchat/cmds"
	"github.com/go-go-golems/medchat/pkg/config"
	"github.com/go-go-golems/medchat/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "medchat",
	Short: "medchat is a terminal chat client for a medical assistant endpoint",
	Long: "medchat sends your symptom descriptions to a chat endpoint and shows the replies. " +
		"Without a subcommand it opens the chat UI.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		ownsScreen := cmd.Annotations[cmds.LogToFileAnnotation] == "true" && cmds.StdoutIsTerminal()
		return logging.Init(ownsScreen)
	},
}

func initRootCmd() error {
	helpSystem := help.NewHelpSystem()
	if err := clay.AddDocToHelpSystem(helpSystem); err != nil {
		return err
	}
	helpSystem.SetupCobraRootCommand(rootCmd)

	if err := clay.InitViper(config.AppName, rootCmd); err != nil {
		return err
	}
	if err := clay.InitLogger(); err != nil {
		return err
	}
	if rootCmd.PersistentFlags().Lookup("config") == nil {
		rootCmd.PersistentFlags().String("config", "", "Path to the config file (default ~/.medchat/config.yaml)")
	}

	// the config file seeds the field defaults, so it is read before the
	// commands are built and before cobra parses --config
	if err := config.ReadFile(viper.GetViper(), config.FileFromArgs(os.Args[1:])); err != nil {
		return err
	}
	base, err := config.FileDefaults(viper.GetViper())
	if err != nil {
		return err
	}
	return cmds.AddToRootCommand(rootCmd, base)
}

// defaultToChat runs `chat` when no subcommand is named.
func defaultToChat(args []string) []string {
	for _, a := range args[1:] {
		if a == "-h" || a == "--help" {
			return args
		}
	}
	c, _, err := rootCmd.Find(args[1:])
	if err != nil || c != rootCmd {
		return args
	}
	return append([]string{args[0], "chat"}, args[1:]...)
}

func main() {
	err := initRootCmd()
	cobra.CheckErr(err)

	os.Args = defaultToChat(os.Args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	cobra.CheckErr(err)
}
