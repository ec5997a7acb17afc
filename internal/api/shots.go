package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lasershot/internal/arenamask"
	"github.com/banshee-data/lasershot/internal/httputil"
	"github.com/banshee-data/lasershot/internal/shotdetection"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

var shotSeriesColors = map[shotdetection.Color]string{
	shotdetection.ColorRed:      "#ff5252",
	shotdetection.ColorGreen:    "#69f0ae",
	shotdetection.ColorInfrared: "#b388ff",
	shotdetection.ColorUnknown:  "#9e9e9e",
}

func (s *Server) listShots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, ok := limitParam(r, 100)
	if !ok {
		httputil.BadRequest(w, "Invalid 'limit' parameter")
		return
	}
	shots, err := s.store.Shots(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve shots: %v", err))
		return
	}
	if shots == nil {
		shots = []shotdetection.Shot{}
	}
	httputil.WriteJSONOK(w, shots)
}

// showShotChart renders the shot positions over the projection area, one
// series per colour, with the sector grid drawn as axis split lines.
func (s *Server) showShotChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, ok := limitParam(r, 500)
	if !ok {
		httputil.BadRequest(w, "Invalid 'limit' parameter")
		return
	}
	shots, err := s.store.Shots(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve shots: %v", err))
		return
	}

	bounds := s.camera.ProjectionBounds()
	rows, cols := 3, 3
	if s.arena != nil {
		if g := s.arena.Grid(); g.Rows > 0 && g.Cols > 0 {
			rows, cols = g.Rows, g.Cols
		}
	}
	grid := arenamask.NewGrid(rows, cols, bounds)

	series := make(map[shotdetection.Color][]opts.ScatterData)
	for _, shot := range shots {
		series[shot.Color] = append(series[shot.Color], opts.ScatterData{
			Value: []interface{}{shot.X, shot.Y, shot.Sector.String()},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Shots", Theme: "dark", Width: "900px", Height: "700px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Shot placement", Subtitle: fmt.Sprintf("shots=%d sectors=%dx%d", len(shots), rows, cols)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{
			Min: bounds.Min.X, Max: bounds.Max.X, Name: "x (px)", NameLocation: "middle", NameGap: 25,
			SplitNumber: grid.Cols,
			SplitLine:   &opts.SplitLine{Show: opts.Bool(true)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Min: bounds.Min.Y, Max: bounds.Max.Y, Name: "y (px, down)", NameLocation: "middle", NameGap: 30,
			SplitNumber: grid.Rows,
			SplitLine:   &opts.SplitLine{Show: opts.Bool(true)},
		}),
	)
	for _, c := range []shotdetection.Color{shotdetection.ColorRed, shotdetection.ColorGreen, shotdetection.ColorInfrared, shotdetection.ColorUnknown} {
		data, ok := series[c]
		if !ok {
			continue
		}
		scatter.AddSeries(c.String(), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: shotSeriesColors[c]}),
		)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
