package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// IO holds the streams commands read from and write to
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// NewRootCommand creates the root command on the process streams
func NewRootCommand() *Command {
	return NewRootCommandWithIO(IO{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
}

// NewRootCommandWithIO creates the root command on the given streams
func NewRootCommandWithIO(streams IO) *Command {
	root := &Command{
		Name:        "mindful",
		Description: "Mindful - talk to an expert from your terminal",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("mindful", flag.ContinueOnError),
	}

	env := &env{io: streams}
	root.Subcommands["balance"] = env.newBalanceCommand()
	root.Subcommands["history"] = env.newHistoryCommand()
	root.Subcommands["send"] = env.newSendCommand()
	root.Subcommands["buy"] = env.newBuyCommand()
	root.Subcommands["return"] = env.newReturnCommand()
	root.Subcommands["chat"] = env.newChatCommand()
	root.Subcommands["login"] = env.newLoginCommand()

	root.Flags.SetOutput(streams.Err)
	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	out := c.Flags.Output()
	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// commonFlags are accepted by every command
type commonFlags struct {
	configPath string
	baseURL    string
	token      string
	unitPrice  int64
	location   string
	verbose    bool
}

func (cf *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&cf.configPath, "config", DefaultConfigPath(), "Config file")
	fs.StringVar(&cf.baseURL, "base-url", "", "API base URL (overrides config)")
	fs.StringVar(&cf.token, "token", "", "Session token (overrides config)")
	fs.Int64Var(&cf.unitPrice, "unit-price", 0, "Price of one message in rupees (overrides config)")
	fs.StringVar(&cf.location, "location", "", "Chat screen URL (overrides config)")
	fs.BoolVar(&cf.verbose, "verbose", false, "Log requests and state changes to stderr")
}

// resolve loads the config file and applies flag overrides
func (cf *commonFlags) resolve() (*Config, error) {
	cfg, err := LoadConfig(cf.configPath)
	if err != nil {
		return nil, err
	}
	if cf.baseURL != "" {
		cfg.BaseURL = cf.baseURL
	}
	if cf.token != "" {
		cfg.Token = cf.token
	}
	if cf.unitPrice > 0 {
		cfg.UnitPrice = cf.unitPrice
	}
	if cf.location != "" {
		cfg.Location = cf.location
	}
	return cfg, nil
}

func (cf *commonFlags) logger(w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if cf.verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}
