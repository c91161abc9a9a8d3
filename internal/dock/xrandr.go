package dock

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/g960059/devmode/internal/command"
	"github.com/g960059/devmode/internal/model"
)

var connectedLinePattern = regexp.MustCompile(`^(\S+).+?(\d+x\d+\+\d+\+\d+)`)

// Enumerator lists the currently connected displays.
type Enumerator interface {
	Displays(ctx context.Context) (model.Topology, error)
}

type XrandrEnumerator struct {
	executor *command.Executor
}

func NewXrandrEnumerator(executor *command.Executor) *XrandrEnumerator {
	return &XrandrEnumerator{executor: executor}
}

func (e *XrandrEnumerator) Displays(ctx context.Context) (model.Topology, error) {
	res, err := e.executor.Run(ctx, []string{"xrandr"})
	if err != nil {
		return nil, err
	}
	topo, err := ParseXrandr(res.Output)
	if err != nil {
		return nil, err
	}
	return topo, nil
}

// ParseXrandr extracts connected outputs that have an active mode. Lines that
// are not connected outputs, or connected outputs without a WxH+X+Y geometry,
// are skipped.
func ParseXrandr(output string) (model.Topology, error) {
	s := bufio.NewScanner(strings.NewReader(output))
	topo := model.Topology{}
	for s.Scan() {
		line := s.Text()
		if !strings.Contains(line, " connected ") {
			continue
		}
		m := connectedLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		topo[m[1]] = model.Display{
			Name:     m[1],
			Geometry: m[2],
			Primary:  strings.Contains(line, " primary "),
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan xrandr output: %w", err)
	}
	return topo, nil
}
