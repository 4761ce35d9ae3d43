package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"

	"vrouter/pkg/ip"
)

func newTable(w io.Writer) *tabwriter.Writer {
	// minwidth, tabwidth, padding, padchar, flags
	return tabwriter.NewWriter(w, 8, 8, 2, ' ', 0)
}

/*
	Routine for printing out the interfaces
*/
func printInterfaces(w io.Writer, r *ip.Router) {
	tw := newTable(w)
	fmt.Fprintln(tw, "name\tstate\taddress\tmac\tlink")
	for _, iface := range r.Interfaces() {
		state := "up"
		if !iface.IsUp() {
			state = "down"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s/%d\t%s\t%v\n", iface.Name, state, ip.FormatAddr(iface.IPAddress),
			ip.MaskLen(iface.Mask), iface.MAC, iface.Link)
	}
	tw.Flush()
}

/*
	Routine for printing out the routing table, longest prefixes first
*/
func printRoutingTable(w io.Writer, r *ip.Router) {
	tw := newTable(w)
	fmt.Fprintln(tw, "network\tgateway\tiface")
	for _, entry := range r.RoutingTable.Entries() {
		gateway := "connected"
		if entry.Gateway != 0 {
			gateway = ip.FormatAddr(entry.Gateway)
		}
		fmt.Fprintf(tw, "%s/%d\t%s\t%s\n", ip.FormatAddr(entry.Network), entry.PrefixLen(), gateway, entry.Iface.Name)
	}
	tw.Flush()
}

func printRIPTable(w io.Writer, rip *ip.RipHandler) {
	if rip == nil {
		fmt.Fprintln(w, "rip is not running, routes come from the static table")
		return
	}

	now := rip.Now()
	tw := newTable(w)
	fmt.Fprintln(tw, "network\tmetric\tage")
	for _, record := range rip.Table.Records() {
		age := "-"
		if !record.Connected {
			age = now.Sub(record.Updated).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s/%d\t%d\t%s\n", ip.FormatAddr(record.Address), ip.MaskLen(record.Mask), record.Metric, age)
	}
	tw.Flush()
}

func printArpCache(w io.Writer, r *ip.Router) {
	tw := newTable(w)
	fmt.Fprintln(tw, "address\tmac")
	for _, entry := range r.ArpCache.Entries() {
		fmt.Fprintf(tw, "%s\t%s\n", ip.FormatAddr(entry.IPAddress), entry.MAC)
	}
	tw.Flush()
}

func printStats(w io.Writer, r *ip.Router) {
	tw := newTable(w)
	for _, counter := range r.Stats.Counters() {
		fmt.Fprintf(tw, "%s\t%d\n", counter.Name, counter.Value)
	}
	tw.Flush()
}

/*
	print out help usage for the node
*/
func printHelp(w io.Writer) {
	tw := newTable(w)
	fmt.Fprintln(tw, "interfaces, li\tPrint each interface, its state and link.")
	fmt.Fprintln(tw, "routes, lr\tPrint the routing table in lookup order.")
	fmt.Fprintln(tw, "rip\tPrint RIP records with their metric and age.")
	fmt.Fprintln(tw, "arp\tPrint the ARP cache.")
	fmt.Fprintln(tw, "stats\tPrint packet and route counters.")
	fmt.Fprintln(tw, "down <iface>\tBring an interface \"down\".")
	fmt.Fprintln(tw, "up <iface>\tBring an interface \"up\".")
	fmt.Fprintln(tw, "quit, q\tQuit this router.")
	fmt.Fprintln(tw, "help, h\tShow this help.")
	tw.Flush()
}

// Execute runs one shell command and reports whether the shell should exit.
func (n *Node) Execute(w io.Writer, line string) bool {
	commands := strings.Fields(line)
	if len(commands) == 0 {
		return false
	}

	switch commands[0] {
	case "interfaces", "li":
		printInterfaces(w, n.Router)
	case "routes", "lr":
		printRoutingTable(w, n.Router)
	case "rip":
		printRIPTable(w, n.Rip)
	case "arp":
		printArpCache(w, n.Router)
	case "stats":
		printStats(w, n.Router)
	case "down", "up":
		if len(commands) != 2 {
			fmt.Fprintf(w, "usage: %s <iface>\n", commands[0])
			break
		}
		var err error
		if commands[0] == "down" {
			err = n.Router.DownInterface(commands[1])
		} else {
			err = n.Router.UpInterface(commands[1])
		}
		if err != nil {
			fmt.Fprintln(w, err)
		}
	case "quit", "q":
		return true
	case "help", "h":
		printHelp(w)
	default:
		fmt.Fprintf(w, "unknown command %q\n", commands[0])
		printHelp(w)
	}
	return false
}

func (n *Node) completer() readline.AutoCompleter {
	ifaces := make([]readline.PrefixCompleterInterface, 0)
	for _, iface := range n.Router.Interfaces() {
		ifaces = append(ifaces, readline.PcItem(iface.Name))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem("interfaces"),
		readline.PcItem("li"),
		readline.PcItem("routes"),
		readline.PcItem("lr"),
		readline.PcItem("rip"),
		readline.PcItem("arp"),
		readline.PcItem("stats"),
		readline.PcItem("down", ifaces...),
		readline.PcItem("up", ifaces...),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

/*
	interactive shell, returns on quit, EOF or when ctx is cancelled
*/
func (n *Node) Shell(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          n.Router.Name + "> ",
		HistoryFile:     filepath.Join(os.TempDir(), "vrouter-"+n.Router.Name+".history"),
		AutoComplete:    n.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	// keep log lines from tearing through the prompt
	n.Log.SetOutput(rl.Stderr())
	defer n.Log.SetOutput(os.Stderr)

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					return nil
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if n.Execute(rl.Stdout(), line) {
			return nil
		}
	}
}
