package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/wolfeidau/rnbundle/internal/bundle"
	"github.com/wolfeidau/rnbundle/internal/logger"
)

// StatsCmd plans a build and prints the resulting chunks without writing any
// output.
type StatsCmd struct {
	ConfigFlags `embed:""`
}

func (s *StatsCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx = log.WithContext(ctx)

	cfg, err := s.load()
	if err != nil {
		return err
	}

	p, err := bundle.PlanBuild(ctx, cfg)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	printPlan(os.Stdout, p)
	return nil
}

func printPlan(w io.Writer, p *bundle.Plan) {
	initial := make(map[string]bool)
	for _, sp := range p.Partition.SplitPoints {
		if sp.Initial {
			for _, name := range sp.Chunks {
				initial[name] = true
			}
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Chunk", "Kind", "Initial", "Modules", "Size"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	var total int64
	for _, c := range p.Partition.Chunks {
		total += int64(c.Size)
		table.Append([]string{
			c.Name,
			string(c.Kind),
			strconv.FormatBool(initial[c.Name]),
			strconv.Itoa(len(c.Modules)),
			humanSize(int64(c.Size)),
		})
	}
	table.SetFooter([]string{"", "", "", strconv.Itoa(p.Graph.Len()), humanSize(total)})
	table.Render()

	stages := make([]string, 0, len(p.Stages))
	for _, st := range p.Stages {
		stages = append(stages, fmt.Sprintf("%s %s", st.Name, st.Duration.Round(time.Microsecond)))
	}
	_, _ = fmt.Fprintf(w, "\n%d modules, %d transformed (%s)\n", p.Graph.Len(), p.Transformed, strings.Join(stages, ", "))
}
