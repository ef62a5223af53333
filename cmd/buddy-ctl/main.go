package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"github.com/waifuisalie/Talking-Buddy/internal/ipc"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [--socket PATH] wake|status|say <text>\n", os.Args[0])
	os.Exit(2)
}

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Daemon control socket")
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		usage()
	}

	req := ipc.Request{Cmd: args[0]}
	switch args[0] {
	case "wake", "status":
	case "say":
		if len(args) < 2 {
			usage()
		}
		req.Text = strings.Join(args[1:], " ")
	default:
		usage()
	}

	resp, err := ipc.Send(*socket, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "buddy-daemon not running:", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Fprintln(os.Stderr, "error:", resp.Error)
		os.Exit(1)
	}

	if len(resp.Status) > 0 {
		var pretty map[string]any
		if err := json.Unmarshal(resp.Status, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
		} else {
			fmt.Println(string(resp.Status))
		}
	}
}
