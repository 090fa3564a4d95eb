package experiment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// writeRewardChart renders one line chart per episode with each agent's
// cumulative reward over ticks
func writeRewardChart(path, name string, history []EpisodeStats) error {
	if len(history) == 0 {
		return fmt.Errorf("no episodes to chart")
	}
	page := components.NewPage()
	page.PageTitle = name

	for _, ep := range history {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title:    fmt.Sprintf("Episode %d", ep.Episode),
				Subtitle: fmt.Sprintf("outcome: %s, ticks: %d", ep.Outcome, ep.Ticks),
			}),
			charts.WithInitializationOpts(opts.Initialization{
				Theme: "shine",
			}),
		)

		ticks := make([]string, ep.Ticks)
		for i := range ticks {
			ticks[i] = fmt.Sprintf("%d", i+1)
		}
		line.SetXAxis(ticks)
		for _, id := range ep.AgentIDs {
			items := make([]opts.LineData, 0, len(ep.RewardTrace[id]))
			for _, v := range ep.RewardTrace[id] {
				items = append(items, opts.LineData{Value: v})
			}
			line.AddSeries(id, items)
		}
		page.AddCharts(line)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
