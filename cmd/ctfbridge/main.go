// Command ctfbridge talks to CTF competition platforms from the terminal.
//
// Usage:
//
//	ctfbridge platforms
//	ctfbridge detect https://demo.ctfd.io
//	ctfbridge challenges https://demo.ctfd.io --category pwn
//	ctfbridge get https://demo.ctfd.io 42
//	ctfbridge download https://demo.ctfd.io 42 --dir ./files
//	ctfbridge submit https://demo.ctfd.io 42 'flag{...}'
//	ctfbridge scoreboard https://demo.ctfd.io --limit 10
//
// Credentials come from flags, the config file
// (~/.config/ctfbridge/config.yaml), or CTFBRIDGE_* environment variables.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/codeGROOVE-dev/ctfbridge"
	"github.com/codeGROOVE-dev/ctfbridge/challenge"
	"github.com/codeGROOVE-dev/ctfbridge/config"
	"github.com/codeGROOVE-dev/ctfbridge/ctf"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "platforms":
		err = outputJSON(ctfbridge.Platforms())
	case "detect":
		err = runDetect(args)
	case "challenges":
		err = runChallenges(args)
	case "get":
		err = runGet(args)
	case "download":
		err = runDownload(args)
	case "submit":
		err = runSubmit(args)
	case "scoreboard":
		err = runScoreboard(args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: ctfbridge <command> [options] <url> [args]")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	fmt.Fprintln(os.Stderr, "  platforms                  list supported platforms")
	fmt.Fprintln(os.Stderr, "  detect <url>               identify the platform at a URL")
	fmt.Fprintln(os.Stderr, "  challenges <url>           list challenges")
	fmt.Fprintln(os.Stderr, "  get <url> <id>             fetch one challenge")
	fmt.Fprintln(os.Stderr, "  download <url> <id>        save a challenge's attachments")
	fmt.Fprintln(os.Stderr, "  submit <url> <id> <flag>   submit a flag")
	fmt.Fprintln(os.Stderr, "  scoreboard <url>           show the scoreboard")
	fmt.Fprintln(os.Stderr, "\nRun a command with -h for its options.")
}

// commonFlags are shared by every subcommand that opens a connection.
type commonFlags struct {
	debug      *bool
	noBrowser  *bool
	noCache    *bool
	platform   *string
	token      *string
	username   *string
	password   *string
	timeout    *time.Duration
	configPath *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		debug:      fs.Bool("debug", false, "enable debug logging"),
		noBrowser:  fs.Bool("no-browser", false, "disable reading cookies from browser stores"),
		noCache:    fs.Bool("no-cache", false, "disable disk caches"),
		platform:   fs.String("platform", "", "pin the platform and skip detection"),
		token:      fs.String("token", "", "API or team token"),
		username:   fs.String("user", "", "username for credential login"),
		password:   fs.String("password", "", "password for credential login"),
		timeout:    fs.Duration("timeout", 0, "request timeout (default 10s)"),
		configPath: fs.String("config", "", "config file path (default ~/.config/ctfbridge/config.yaml)"),
	}
}

func (f *commonFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if *f.debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// options merges flags with the config file: flags win, then the host
// section, then environment variables inside the library.
func (f *commonFlags) options(instanceURL string) ([]ctfbridge.Option, error) {
	opts := []ctfbridge.Option{ctfbridge.WithLogger(f.logger())}

	path := *f.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	host, _ := cfg.HostFor(instanceURL)

	platform := *f.platform
	if platform == "" {
		platform = host.Platform
	}
	if platform != "" {
		opts = append(opts, ctfbridge.WithPlatform(platform))
	}

	switch {
	case *f.token != "":
		opts = append(opts, ctfbridge.WithToken(*f.token))
	case *f.username != "":
		opts = append(opts, ctfbridge.WithCredentials(*f.username, *f.password))
	default:
		creds := host.Credentials()
		switch creds.Method() {
		case ctf.AuthToken:
			opts = append(opts, ctfbridge.WithToken(creds.Token))
		case ctf.AuthCredentials:
			opts = append(opts, ctfbridge.WithCredentials(creds.Username, creds.Password))
		case ctf.AuthCookies:
			opts = append(opts, ctfbridge.WithCookies(creds.Cookies))
		}
	}

	if *f.timeout > 0 {
		opts = append(opts, ctfbridge.WithTimeout(*f.timeout))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, ctfbridge.WithRateLimit(cfg.RateLimit, 1))
	}
	if cfg.Timeout != "" && *f.timeout == 0 {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("config timeout: %w", err)
		}
		opts = append(opts, ctfbridge.WithTimeout(d))
	}
	if !*f.noBrowser {
		opts = append(opts, ctfbridge.WithBrowserCookies())
	}
	if *f.noCache {
		opts = append(opts, ctfbridge.WithoutCache())
	}
	return opts, nil
}

func connect(f *commonFlags, instanceURL string) (*ctfbridge.Client, error) {
	opts, err := f.options(instanceURL)
	if err != nil {
		return nil, err
	}
	return ctfbridge.Connect(context.Background(), instanceURL, opts...)
}

func runDetect(args []string) error {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	f := addCommonFlags(fs)
	_ = fs.Parse(args) //nolint:errcheck // ExitOnError
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: ctfbridge detect [options] <url>")
	}

	opts, err := f.options(fs.Arg(0))
	if err != nil {
		return err
	}
	res, err := ctfbridge.Detect(context.Background(), fs.Arg(0), opts...)
	if err != nil {
		return err
	}
	return outputJSON(res)
}

func runChallenges(args []string) error {
	fs := flag.NewFlagSet("challenges", flag.ExitOnError)
	f := addCommonFlags(fs)
	category := fs.String("category", "", "only this category")
	tag := fs.String("tag", "", "only challenges carrying this tag")
	name := fs.String("name", "", "only names containing this substring")
	minPoints := fs.Int("min-points", 0, "minimum point value")
	maxPoints := fs.Int("max-points", 0, "maximum point value")
	unsolved := fs.Bool("unsolved", false, "only unsolved challenges")
	summary := fs.Bool("summary", false, "skip detail hydration on split-detail platforms")
	_ = fs.Parse(args) //nolint:errcheck // ExitOnError
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: ctfbridge challenges [options] <url>")
	}

	client, err := connect(f, fs.Arg(0))
	if err != nil {
		return err
	}

	listOpts := challenge.ListOptions{SummaryOnly: *summary}
	listOpts.Filter.Category = *category
	listOpts.Filter.NameContains = *name
	if *tag != "" {
		listOpts.Filter.Tags = []string{*tag}
	}
	if *minPoints > 0 {
		listOpts.Filter.MinPoints = ctf.Int(*minPoints)
	}
	if *maxPoints > 0 {
		listOpts.Filter.MaxPoints = ctf.Int(*maxPoints)
	}
	if *unsolved {
		listOpts.Filter.Solved = ctf.Bool(false)
	}

	challenges, err := client.Challenges.All(context.Background(), listOpts)
	if err != nil {
		return err
	}
	return outputJSON(challenges)
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	f := addCommonFlags(fs)
	_ = fs.Parse(args) //nolint:errcheck // ExitOnError
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: ctfbridge get [options] <url> <id>")
	}

	client, err := connect(f, fs.Arg(0))
	if err != nil {
		return err
	}
	chall, err := client.Challenges.ByID(context.Background(), fs.Arg(1))
	if err != nil {
		return err
	}
	return outputJSON(chall)
}

func runDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	f := addCommonFlags(fs)
	dir := fs.String("dir", ".", "directory to save attachments into")
	_ = fs.Parse(args) //nolint:errcheck // ExitOnError
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: ctfbridge download [options] <url> <id>")
	}

	client, err := connect(f, fs.Arg(0))
	if err != nil {
		return err
	}
	chall, err := client.Challenges.ByID(context.Background(), fs.Arg(1))
	if err != nil {
		return err
	}
	if len(chall.Attachments) == 0 {
		return fmt.Errorf("challenge %s has no attachments", chall.ID)
	}

	paths, err := client.Attachments.SaveAll(context.Background(), chall.Attachments, *dir)
	if err != nil {
		return err
	}
	return outputJSON(paths)
}

func runSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	f := addCommonFlags(fs)
	_ = fs.Parse(args) //nolint:errcheck // ExitOnError
	if fs.NArg() < 3 {
		return fmt.Errorf("usage: ctfbridge submit [options] <url> <id> <flag>")
	}

	client, err := connect(f, fs.Arg(0))
	if err != nil {
		return err
	}
	result, err := client.Challenges.Submit(context.Background(), fs.Arg(1), fs.Arg(2))
	if err != nil {
		return err
	}
	return outputJSON(result)
}

func runScoreboard(args []string) error {
	fs := flag.NewFlagSet("scoreboard", flag.ExitOnError)
	f := addCommonFlags(fs)
	limit := fs.Int("limit", 25, "number of entries to show (0 for all)")
	_ = fs.Parse(args) //nolint:errcheck // ExitOnError
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: ctfbridge scoreboard [options] <url>")
	}

	client, err := connect(f, fs.Arg(0))
	if err != nil {
		return err
	}
	entries, err := client.Scoreboard.Top(context.Background(), *limit)
	if err != nil {
		return err
	}
	return outputJSON(entries)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
