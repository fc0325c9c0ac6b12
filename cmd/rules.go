package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"grimm.is/alertwall/internal/brand"
	"grimm.is/alertwall/internal/client"
	"grimm.is/alertwall/internal/config"
	"grimm.is/alertwall/internal/tui"
)

const rulesUsage = `Usage: %s rules [flags] <command> [args]

Commands:
  list                 Show the rules in the dedicated chain
  add <ip> [action]    Insert a rule at the head of the chain (default DROP)
  delete <id>          Delete the rule at position <id>
  watch                Stream rule changes as they happen
  status               Show control API health

Flags:
`

// RunRules is the CLI client of the control API.
func RunRules(args []string) error {
	ctx, stop := signalContext()
	defer stop()
	return runRules(ctx, os.Stdout, os.Stderr, args)
}

func runRules(ctx context.Context, out, errOut io.Writer, args []string) error {
	fs := flag.NewFlagSet("rules", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configFile := fs.String("c", "", "Configuration file (api_url and api_key defaults)")
	apiURL := fs.String("url", "", "Control API URL")
	apiKey := fs.String("api-key", "", "API key for add/delete")
	timeout := fs.Duration("timeout", config.DefaultTimeout, "Request timeout")
	source := fs.String("source", "", "delete: only delete if the rule still has this source")
	fs.Usage = func() {
		fmt.Fprintf(errOut, rulesUsage, brand.BinaryName)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	if *apiURL == "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			return err
		}
		*apiURL = cfg.Watch.APIURL
		if *apiKey == "" {
			*apiKey = cfg.Watch.APIKey
		}
	}

	opts := []client.ClientOption{}
	if *timeout > 0 {
		opts = append(opts, client.WithTimeout(*timeout))
	}
	if *apiKey != "" {
		opts = append(opts, client.WithAPIKey(*apiKey))
	}
	c := client.NewHTTPClient(*apiURL, opts...)

	switch rest[0] {
	case "list", "ls":
		return rulesList(ctx, out, c)
	case "add":
		if len(rest) < 2 || len(rest) > 3 {
			return fmt.Errorf("usage: %s rules add <ip> [ACCEPT|DROP|REJECT]", brand.BinaryName)
		}
		action := "DROP"
		if len(rest) == 3 {
			action = strings.ToUpper(rest[2])
		}
		return rulesAdd(ctx, out, c, rest[1], action)
	case "delete", "rm":
		if len(rest) != 2 {
			return fmt.Errorf("usage: %s rules [-source ip] delete <id>", brand.BinaryName)
		}
		id, err := strconv.Atoi(rest[1])
		if err != nil || id < 1 {
			return fmt.Errorf("invalid rule id %q", rest[1])
		}
		return rulesDelete(ctx, out, c, id, *source)
	case "watch":
		return rulesWatch(ctx, out, c)
	case "status":
		h, err := c.Health(ctx)
		if err != nil {
			return err
		}
		Printer.Fprint(out, tui.RenderHealth(h))
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func rulesList(ctx context.Context, out io.Writer, c *client.HTTPClient) error {
	rules, err := c.ListRules(ctx)
	if err != nil {
		return err
	}
	chain := ""
	if h, err := c.Health(ctx); err == nil {
		chain = h.Chain
	}
	Printer.Fprint(out, tui.RenderRules(chain, rules))
	return nil
}

func rulesAdd(ctx context.Context, out io.Writer, c *client.HTTPClient, ip, action string) error {
	resp, err := c.CreateRule(ctx, ip, action)
	if err != nil {
		return err
	}
	if resp.Rule.Source == "" {
		Printer.Fprintf(out, "%s\n", resp.Message)
		return nil
	}
	Printer.Fprintf(out, "%s: %s %s\n", resp.Message, resp.Rule.Target, resp.Rule.Source)
	return nil
}

func rulesDelete(ctx context.Context, out io.Writer, c *client.HTTPClient, id int, source string) error {
	msg, err := c.DeleteRule(ctx, id, source)
	if err != nil {
		return err
	}
	Printer.Fprintf(out, "%s\n", msg)
	return nil
}

func rulesWatch(ctx context.Context, out io.Writer, c *client.HTTPClient) error {
	Printer.Fprintf(out, "Watching %s for rule changes (Ctrl-C to stop)\n", c.BaseURL())
	start := time.Now()
	err := c.WatchEvents(ctx, func(e client.Event) {
		re, err := e.RuleEvent()
		if err != nil {
			return
		}
		Printer.Fprintln(out, tui.RenderEvent(re))
	})
	if err != nil {
		return err
	}
	Printer.Fprintf(out, "Stopped after %s\n", time.Since(start).Round(time.Second))
	return nil
}
