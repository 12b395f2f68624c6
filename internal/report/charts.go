// Package report renders recorded episodes as self-contained HTML chart
// pages using go-echarts.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/signal.report/internal/priority"
	"github.com/banshee-data/signal.report/internal/store"
	"github.com/banshee-data/signal.report/internal/units"
)

// Options controls report rendering.
type Options struct {
	SpeedUnits string // axis units for the speed chart; defaults to m/s
}

// RenderEpisode writes a single HTML page with the episode's congestion,
// speed, and emergency charts.
func RenderEpisode(w io.Writer, episode *store.Episode, snapshots []store.SnapshotRow, transitions []store.TransitionRow, options Options) error {
	if len(snapshots) == 0 {
		return fmt.Errorf("episode %s has no snapshots to chart", episode.EpisodeID)
	}
	speedUnits := options.SpeedUnits
	if !units.IsValid(speedUnits) {
		speedUnits = units.MPS
	}

	times := make([]string, len(snapshots))
	queue := make([]opts.LineData, len(snapshots))
	waiting := make([]opts.LineData, len(snapshots))
	vehicles := make([]opts.LineData, len(snapshots))
	stopped := make([]opts.LineData, len(snapshots))
	speed := make([]opts.LineData, len(snapshots))
	emergency := make([]opts.LineData, len(snapshots))
	for i, snap := range snapshots {
		times[i] = fmt.Sprintf("%.0f", snap.SimTime)
		queue[i] = opts.LineData{Value: snap.MaxQueueLength}
		waiting[i] = opts.LineData{Value: snap.TotalWaitingTime}
		vehicles[i] = opts.LineData{Value: snap.TotalVehicles}
		stopped[i] = opts.LineData{Value: snap.TotalStopped}
		speed[i] = opts.LineData{Value: units.ConvertSpeed(snap.AvgSpeed, speedUnits)}
		active := 0
		if snap.HasEmergency {
			active = 1
		}
		emergency[i] = opts.LineData{Value: active}
	}

	subtitle := fmt.Sprintf("episode=%s lanes=%d samples=%d", episode.EpisodeID, len(episode.LaneIDs), len(snapshots))

	congestion := charts.NewLine()
	congestion.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Congestion", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "queue (m) / wait (s)"}),
	)
	congestion.SetXAxis(times).
		AddSeries("max queue length (m)", queue).
		AddSeries("total waiting time (s)", waiting)

	counts := charts.NewLine()
	counts.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Vehicles"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "vehicles"}),
	)
	counts.SetXAxis(times).
		AddSeries("tracked", vehicles).
		AddSeries("stopped", stopped)

	speedChart := charts.NewLine()
	speedChart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Mean speed"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: speedUnits}),
	)
	speedChart.SetXAxis(times).
		AddSeries(fmt.Sprintf("avg speed (%s)", speedUnits), speed)

	timeline := charts.NewLine()
	timeline.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Emergency activity",
			Subtitle: transitionSummary(transitions),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "active", Min: 0, Max: 1}),
	)
	timeline.SetXAxis(times).
		AddSeries("emergency present", emergency,
			charts.WithLineChartOpts(opts.LineChart{Step: "end"}),
		)

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Episode %s", episode.EpisodeID)
	page.AddCharts(congestion, counts, speedChart, timeline)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// transitionSummary compresses the transition log into one subtitle line.
func transitionSummary(transitions []store.TransitionRow) string {
	if len(transitions) == 0 {
		return "no emergency transitions"
	}
	preemptions := 0
	for _, tr := range transitions {
		if tr.To == string(priority.StatePreempting) {
			preemptions++
		}
	}
	return fmt.Sprintf("%d transitions, %d preemptions", len(transitions), preemptions)
}
