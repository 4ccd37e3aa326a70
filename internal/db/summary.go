package db

import (
	"io"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SpeedSummary describes the approach speeds seen since a point in time,
// in cm/s towards the radar.
type SpeedSummary struct {
	Since  time.Time `json:"since"`
	Count  int       `json:"count"`
	Mean   float64   `json:"mean"`
	StdDev float64   `json:"stddev"`
	P85    float64   `json:"p85"`
	Max    float64   `json:"max"`
}

// ApproachSpeeds returns the speed of every approaching target recorded
// since the given time, as positive cm/s, in ascending order.
func (db *DB) ApproachSpeeds(since time.Time) ([]float64, error) {
	rows, err := db.Query(
		`SELECT -t.speed_cms
		 FROM targets t JOIN frames f USING (frame_id)
		 WHERE f.recorded_at >= ? AND t.speed_cms < 0`, since.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var speeds []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		speeds = append(speeds, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Float64s(speeds)
	return speeds, nil
}

// SpeedSummary summarises ApproachSpeeds(since). All statistics are zero
// when nothing approached.
func (db *DB) SpeedSummary(since time.Time) (SpeedSummary, error) {
	speeds, err := db.ApproachSpeeds(since)
	if err != nil {
		return SpeedSummary{}, err
	}
	return summarize(since, speeds), nil
}

// summarize expects sorted speeds.
func summarize(since time.Time, speeds []float64) SpeedSummary {
	s := SpeedSummary{Since: since, Count: len(speeds)}
	if len(speeds) == 0 {
		return s
	}
	s.Mean = stat.Mean(speeds, nil)
	if len(speeds) > 1 {
		s.StdDev = stat.StdDev(speeds, nil)
	}
	s.P85 = stat.Quantile(0.85, stat.Empirical, speeds, nil)
	s.Max = speeds[len(speeds)-1]
	return s
}

// WriteSpeedHistogram renders a PNG histogram of speeds to w.
func WriteSpeedHistogram(w io.Writer, speeds []float64, title string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Approach speed (cm/s)"
	p.Y.Label.Text = "Targets"

	if len(speeds) > 0 {
		bins := 20
		if len(speeds) < bins {
			bins = len(speeds)
		}
		h, err := plotter.NewHist(plotter.Values(speeds), bins)
		if err != nil {
			return err
		}
		p.Add(h)
	}

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
