package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

const usage = `usage: cli <command> [args]

  list                          show endpoints and their last status
  add [name ip ports]           add an endpoint (prompts when args are missing)
  edit <id> <name> <ip> <ports> replace an endpoint's name, ip and ports
  rm <id>                       remove an endpoint
  check                         run a check pass now
  interval [seconds]            show or set the refresh interval (0 disables)
  export | import               save or load the server-side state file

ports are comma separated, e.g. "22,80,443".
API_BASE (default http://localhost:8080) and API_KEY are read from the environment.`

type client struct {
	base string
	key  string
	http *http.Client
}

type endpoint struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	IP             string     `json:"ip"`
	Ports          []uint16   `json:"ports"`
	IsReachable    bool       `json:"is_reachable"`
	LastChecked    *time.Time `json:"last_checked"`
	CheckedAgoSecs *int64     `json:"checked_ago_secs"`
	PortStates     []struct {
		Port  uint16 `json:"port"`
		State string `json:"state"`
	} `json:"port_states"`
}

type policy struct {
	RefreshIntervalSecs uint64 `json:"refresh_interval_secs"`
	Enabled             bool   `json:"enabled"`
	RemainingSecs       uint64 `json:"remaining_secs"`
	State               string `json:"state"`
}

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	c := &client{base: strings.TrimRight(api, "/"), key: os.Getenv("API_KEY"), http: &http.Client{Timeout: 10 * time.Second}}

	if err := c.run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *client) run(args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(out, usage)
		return nil
	}
	switch args[0] {
	case "list", "ls":
		var eps []endpoint
		if err := c.call(http.MethodGet, "/api/endpoints", nil, &eps); err != nil {
			return err
		}
		printEndpoints(out, eps)
	case "add":
		fields := args[1:]
		if len(fields) < 3 {
			fields = prompt(in, out, fields, "Name", "IP address", "Ports (e.g. 22,80,443)")
		}
		var e endpoint
		body := map[string]string{"name": fields[0], "ip": fields[1], "ports": fields[2]}
		if err := c.call(http.MethodPost, "/api/endpoints", body, &e); err != nil {
			return err
		}
		fmt.Fprintf(out, "Added %s (%s) id=%s\n", e.Name, e.IP, e.ID)
	case "edit":
		if len(args) != 5 {
			return errors.New("edit needs <id> <name> <ip> <ports>")
		}
		body := map[string]string{"name": args[2], "ip": args[3], "ports": args[4]}
		if err := c.call(http.MethodPut, "/api/endpoints/"+args[1], body, nil); err != nil {
			return err
		}
		fmt.Fprintln(out, "Updated.")
	case "rm", "remove":
		if len(args) != 2 {
			return errors.New("rm needs <id>")
		}
		if err := c.call(http.MethodDelete, "/api/endpoints/"+args[1], nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(out, "Removed.")
	case "check":
		if err := c.call(http.MethodPost, "/api/check", nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(out, "Check scheduled.")
	case "interval":
		var p policy
		if len(args) > 1 {
			secs, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("interval must be whole seconds: %w", err)
			}
			if err := c.call(http.MethodPut, "/api/policy", map[string]uint64{"refresh_interval_secs": secs}, &p); err != nil {
				return err
			}
		} else if err := c.call(http.MethodGet, "/api/policy", nil, &p); err != nil {
			return err
		}
		printPolicy(out, p)
	case "export", "import":
		var res map[string]string
		if err := c.call(http.MethodPost, "/api/state/"+args[0], nil, &res); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", res["status"], res["path"])
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
	return nil
}

func (c *client) call(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("API returned status: %s", resp.Status)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func prompt(in io.Reader, out io.Writer, have []string, labels ...string) []string {
	reader := bufio.NewReader(in)
	fields := append([]string{}, have...)
	for i := len(fields); i < len(labels); i++ {
		fmt.Fprintf(out, "%s: ", labels[i])
		line, _ := reader.ReadString('\n')
		fields = append(fields, strings.TrimSpace(line))
	}
	return fields
}

func printEndpoints(out io.Writer, eps []endpoint) {
	if len(eps) == 0 {
		fmt.Fprintln(out, "No endpoints.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tIP\tSTATUS\tPORTS\tCHECKED")
	for _, e := range eps {
		status, checked := "-", "never"
		if e.LastChecked != nil {
			status = "DOWN"
			if e.IsReachable {
				status = "UP"
			}
			if e.CheckedAgoSecs != nil {
				checked = fmt.Sprintf("%ds ago", *e.CheckedAgoSecs)
			}
		}
		ports := make([]string, 0, len(e.PortStates))
		for _, p := range e.PortStates {
			ports = append(ports, fmt.Sprintf("%d:%s", p.Port, p.State))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.Name, e.IP, status, strings.Join(ports, " "), checked)
	}
	_ = tw.Flush()
}

func printPolicy(out io.Writer, p policy) {
	if !p.Enabled {
		fmt.Fprintf(out, "Automatic refresh disabled (state: %s)\n", p.State)
		return
	}
	fmt.Fprintf(out, "Refresh every %ds, next in %ds (state: %s)\n", p.RefreshIntervalSecs, p.RemainingSecs, p.State)
}
