package main

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/alertwall/cmd"
	"grimm.is/alertwall/internal/brand"
)

func main() {
	if err := cmd.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "api":
		apiFlags := flag.NewFlagSet("api", flag.ExitOnError)
		configFile := apiFlags.String("config", "", "Configuration file (default "+brand.DefaultConfigFile()+")")
		apiFlags.StringVar(configFile, "c", "", "Configuration file (short)")
		apiFlags.Parse(os.Args[2:])

		if err := cmd.RunAPI(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "api: %v\n", err)
			os.Exit(1)
		}

	case "watch":
		watchFlags := flag.NewFlagSet("watch", flag.ExitOnError)
		configFile := watchFlags.String("config", "", "Configuration file (default "+brand.DefaultConfigFile()+")")
		watchFlags.StringVar(configFile, "c", "", "Configuration file (short)")
		fromStart := watchFlags.Bool("from-start", false, "Process the existing log content before tailing")
		watchFlags.Parse(os.Args[2:])

		if err := cmd.RunWatch(*configFile, *fromStart); err != nil {
			fmt.Fprintf(os.Stderr, "watch: %v\n", err)
			os.Exit(1)
		}

	case "inspect":
		inspectFlags := flag.NewFlagSet("inspect", flag.ExitOnError)
		configFile := inspectFlags.String("config", "", "Configuration file (default "+brand.DefaultConfigFile()+")")
		inspectFlags.StringVar(configFile, "c", "", "Configuration file (short)")
		inspectFlags.Parse(os.Args[2:])

		if err := cmd.RunInspect(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
			os.Exit(1)
		}

	case "rules":
		if err := cmd.RunRules(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "rules: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Print the effective settings")
		checkFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		checkFlags.Parse(os.Args[2:])

		configFile := ""
		if checkFlags.NArg() > 0 {
			configFile = checkFlags.Arg(0)
		}
		if err := cmd.RunCheck(configFile, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "hash-key":
		hashFlags := flag.NewFlagSet("hash-key", flag.ExitOnError)
		cost := hashFlags.Int("cost", 0, "bcrypt cost (default 10)")
		hashFlags.Parse(os.Args[2:])

		if err := cmd.RunHashKey(hashFlags.Arg(0), *cost); err != nil {
			fmt.Fprintf(os.Stderr, "hash-key: %v\n", err)
			os.Exit(1)
		}

	case "version":
		fmt.Printf("%s %s (%s)\n", brand.Name, brand.Version, brand.GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - %s

Usage:
  %s <command> [options]

Commands:
  api        Run the firewall control API
  watch      Tail the alert log and block offending sources
  inspect    Log packets from an NFQUEUE without altering them
  rules      List, add, delete or watch rules through the control API
  check      Validate a configuration file
  hash-key   Print a bcrypt hash for api.api_key_hash
  version    Print version information

Run '%s <command> -h' for command options.
`, brand.Name, brand.Description, brand.BinaryName, brand.BinaryName)
}
