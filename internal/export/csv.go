package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/nvandessel/episim/internal/models"
)

// TimeseriesHeader is the first row of run_<id>_timeseries.csv.
var TimeseriesHeader = []string{"Day", "Susceptible", "Exposed", "Infected", "Recovered"}

// EventsHeader is the first row of run_<id>_events.csv.
var EventsHeader = []string{"Day", "PersonID", "Age", "AgeGroup", "Event"}

// WriteTimeseriesCSV writes one row per simulated day.
func WriteTimeseriesCSV(w io.Writer, history []models.DayCounts) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TimeseriesHeader); err != nil {
		return err
	}
	for _, c := range history {
		row := []string{
			strconv.Itoa(c.Day),
			strconv.Itoa(c.Susceptible),
			strconv.Itoa(c.Exposed),
			strconv.Itoa(c.Infected),
			strconv.Itoa(c.Recovered),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEventsCSV writes one row per state change.
func WriteEventsCSV(w io.Writer, events []models.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EventsHeader); err != nil {
		return err
	}
	for _, e := range events {
		row := []string{
			strconv.Itoa(e.Day),
			strconv.Itoa(e.PersonID),
			strconv.Itoa(e.Age),
			e.AgeGroup,
			e.Label(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTimeseriesCSV parses a file written by WriteTimeseriesCSV.
func ReadTimeseriesCSV(r io.Reader) ([]models.DayCounts, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("timeseries: missing header")
	}

	out := make([]models.DayCounts, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(TimeseriesHeader) {
			return nil, fmt.Errorf("timeseries row %d: want %d columns, got %d", i+1, len(TimeseriesHeader), len(rec))
		}
		var vals [5]int
		for j, field := range rec {
			n, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("timeseries row %d column %s: %w", i+1, TimeseriesHeader[j], err)
			}
			vals[j] = n
		}
		out = append(out, models.DayCounts{
			Day: vals[0], Susceptible: vals[1], Exposed: vals[2], Infected: vals[3], Recovered: vals[4],
		})
	}
	return out, nil
}
