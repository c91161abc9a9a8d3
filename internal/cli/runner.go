package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/g960059/devmode/internal/api"
	"github.com/g960059/devmode/internal/config"
)

type Runner struct {
	baseURL string
	client  *http.Client
	out     io.Writer
	errOut  io.Writer
}

func NewRunner(socketPath string, out, errOut io.Writer) *Runner {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return NewRunnerWithClient("http://unix", &http.Client{Transport: transport, Timeout: 5 * time.Second}, out, errOut)
}

func NewRunnerWithClient(baseURL string, client *http.Client, out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Runner{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		out:     out,
		errOut:  errOut,
	}
}

// Run executes one CLI invocation and returns the process exit code: 0 on
// success, 1 on a request failure, 2 on a usage error.
func (r *Runner) Run(ctx context.Context, args []string) int {
	socketPath, rest, err := parseGlobalArgs(args)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if socketPath != "" && r.baseURL == "http://unix" {
		*r = *NewRunner(socketPath, r.out, r.errOut)
	}
	if len(rest) == 0 {
		r.printUsage()
		return 2
	}
	switch rest[0] {
	case "status":
		return r.runStatus(ctx, rest[1:])
	case "history":
		return r.runHistory(ctx, rest[1:])
	case "health":
		return r.runHealth(ctx, rest[1:])
	case "help", "-h", "--help":
		r.printUsage()
		return 0
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown command: %s\n", rest[0])
		r.printUsage()
		return 2
	}
}

func parseGlobalArgs(args []string) (string, []string, error) {
	socket := config.DefaultConfig().SocketPath
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--socket":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--socket requires value")
			}
			socket = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--socket="):
			socket = strings.TrimPrefix(args[i], "--socket=")
		default:
			rest = append(rest, args[i])
		}
	}
	return socket, rest, nil
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (r *Runner) runStatus(ctx context.Context, args []string) int {
	fs := newFlagSet("status")
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	body, err := r.request(ctx, "/v1/mode", nil)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	var resp api.ModeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return r.handleErr(fmt.Errorf("decode mode: %w", err))
	}
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "posture:\t%s\n", resp.Posture)
	_, _ = fmt.Fprintf(tw, "docked:\t%t\n", resp.Docked)
	if resp.Plan == "" || resp.AppliedAt == nil {
		_, _ = fmt.Fprintf(tw, "mode:\tnot applied\n")
	} else {
		_, _ = fmt.Fprintf(tw, "mode:\t%s (applied %s)\n", resp.Plan, resp.AppliedAt.Local().Format(time.DateTime))
		_, _ = fmt.Fprintf(tw, "actions:\t%s\n", strings.Join(resp.Actions, ", "))
	}
	_, _ = fmt.Fprintf(tw, "displays:\t%s\n", joinOrDash(resp.Displays))
	_, _ = fmt.Fprintf(tw, "helpers:\tkeyboard=%s rotation=%s\n", onOff(resp.Helpers.Keyboard), onOff(resp.Helpers.Rotation))
	_ = tw.Flush()
	return 0
}

func (r *Runner) runHistory(ctx context.Context, args []string) int {
	fs := newFlagSet("history")
	jsonOut := fs.Bool("json", false, "output JSON")
	limit := fs.Int("limit", 20, "maximum number of transitions")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if *limit <= 0 {
		_, _ = fmt.Fprintln(r.errOut, "error: --limit must be positive")
		return 2
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(*limit))
	body, err := r.request(ctx, "/v1/transitions", query)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	var env api.TransitionsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(fmt.Errorf("decode transitions: %w", err))
	}
	if len(env.Transitions) == 0 {
		_, _ = fmt.Fprintln(r.out, "no transitions recorded")
		return 0
	}
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "APPLIED\tTRIGGER\tPOSTURE\tDOCKED\tPLAN\tDISPLAYS")
	for _, tr := range env.Transitions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
			tr.AppliedAt.Local().Format(time.DateTime), tr.Trigger, tr.Posture, tr.Docked, tr.Plan, joinOrDash(tr.Displays))
	}
	_ = tw.Flush()
	return 0
}

func (r *Runner) runHealth(ctx context.Context, args []string) int {
	fs := newFlagSet("health")
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	body, err := r.request(ctx, "/v1/health", nil)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeRaw(body)
	}
	var resp api.HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return r.handleErr(fmt.Errorf("decode health: %w", err))
	}
	_, _ = fmt.Fprintf(r.out, "%s (up since %s)\n", resp.Status, resp.StartedAt.Local().Format(time.DateTime))
	return 0
}

func (r *Runner) request(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var er api.ErrorResponse
		if unmarshalErr := json.Unmarshal(payload, &er); unmarshalErr == nil && er.Error.Code != "" {
			return nil, fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return payload, nil
}

func (r *Runner) writeRaw(body []byte) int {
	_, _ = r.out.Write(body)
	if len(body) == 0 || body[len(body)-1] != '\n' {
		_, _ = fmt.Fprintln(r.out)
	}
	return 0
}

func (r *Runner) handleErr(err error) int {
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	return 1
}

func (r *Runner) printUsage() {
	_, _ = fmt.Fprintln(r.errOut, "usage: devmode [--socket <path>] <status|history|health> [--json] [--limit N]")
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
