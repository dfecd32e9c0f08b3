package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/simulation"
)

func sampleHistory() []models.DayCounts {
	return []models.DayCounts{
		{Day: 1, Susceptible: 5, Exposed: 4, Infected: 1},
		{Day: 2, Susceptible: 3, Exposed: 2, Infected: 5},
		{Day: 3, Susceptible: 0, Exposed: 3, Infected: 4, Recovered: 3},
	}
}

func runRing(t *testing.T) (*config.Config, *simulation.Result) {
	t.Helper()
	cfg := config.Default()
	cfg.Simulation.Seed = 3
	cfg.Simulation.Duration = 6
	cfg.Population.Size = 10
	cfg.Population.AvgDegree = 4
	cfg.Population.RewireProb = 0
	cfg.Virus.InfectRate = 1
	cfg.Virus.CureRate = 0

	sim, err := simulation.New(cfg, simulation.WithRunID("007"))
	if err != nil {
		t.Fatalf("simulation.New() error = %v", err)
	}
	result, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return cfg, result
}

func TestFileName(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{KindTimeseries, "run_004_timeseries.csv"},
		{KindEvents, "run_004_events.csv"},
		{KindSummary, "run_004_summary.json"},
		{KindConfig, "run_004_config.json"},
		{KindArrow, "run_004_timeseries.arrow"},
		{KindCurve, "run_004_curve.svg"},
	}
	for _, tt := range tests {
		if got := FileName("004", tt.kind); got != tt.want {
			t.Errorf("FileName(004, %s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestTimeseriesCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTimeseriesCSV(&buf, sampleHistory()); err != nil {
		t.Fatalf("WriteTimeseriesCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "Day,Susceptible,Exposed,Infected,Recovered" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "1,5,4,1,0" {
		t.Errorf("first row = %q, want all four counts", lines[1])
	}

	got, err := ReadTimeseriesCSV(&buf)
	if err != nil {
		t.Fatalf("ReadTimeseriesCSV() error = %v", err)
	}
	if !reflect.DeepEqual(got, sampleHistory()) {
		t.Errorf("ReadTimeseriesCSV() = %v, want %v", got, sampleHistory())
	}
}

func TestReadTimeseriesCSV_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"short row", "Day,Susceptible,Exposed,Infected,Recovered\n1,2,3\n"},
		{"not a number", "Day,Susceptible,Exposed,Infected,Recovered\n1,x,0,0,0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadTimeseriesCSV(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEventsCSV(t *testing.T) {
	events := []models.Event{
		{Day: 1, PersonID: 3, Age: 42, AgeGroup: "35-49", From: models.StateSusceptible, To: models.StateExposed},
		{Day: 2, PersonID: 3, Age: 42, AgeGroup: "35-49", From: models.StateExposed, To: models.StateInfected},
	}
	var buf bytes.Buffer
	if err := WriteEventsCSV(&buf, events); err != nil {
		t.Fatalf("WriteEventsCSV() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := [][]string{
		EventsHeader,
		{"1", "3", "42", "35-49", "Susceptible → Exposed"},
		{"2", "3", "42", "35-49", "Exposed → Infected"},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("events = %v, want %v", records, want)
	}
}

func TestTimeseriesArrowRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTimeseriesArrow(&buf, sampleHistory()); err != nil {
		t.Fatalf("WriteTimeseriesArrow() error = %v", err)
	}

	got, err := ReadTimeseriesArrow(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadTimeseriesArrow() error = %v", err)
	}
	if !reflect.DeepEqual(got, sampleHistory()) {
		t.Errorf("ReadTimeseriesArrow() = %v, want %v", got, sampleHistory())
	}
}

func TestTimeseriesArrow_NonSeekableSink(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := WriteTimeseriesArrow(bw, sampleHistory()); err != nil {
		t.Fatalf("WriteTimeseriesArrow() error = %v", err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatal(err)
	}
	got, err := ReadTimeseriesArrow(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadTimeseriesArrow() error = %v", err)
	}
	if !reflect.DeepEqual(got, sampleHistory()) {
		t.Errorf("ReadTimeseriesArrow() = %v, want %v", got, sampleHistory())
	}
}

func TestSeekBuffer(t *testing.T) {
	var b seekBuffer
	b.Write([]byte("ARROW1"))
	if pos, err := b.Seek(1, io.SeekStart); err != nil || pos != 1 {
		t.Fatalf("Seek(1, start) = %d, %v", pos, err)
	}
	b.Write([]byte("xx"))
	if pos, _ := b.Seek(0, io.SeekCurrent); pos != 3 {
		t.Errorf("position after overwrite = %d, want 3", pos)
	}
	b.Seek(2, io.SeekEnd)
	b.Write([]byte("!"))
	if got, want := string(b.Bytes()), "AxxOW1\x00\x00!"; got != want {
		t.Errorf("Bytes() = %q, want %q", got, want)
	}
	if _, err := b.Seek(-1, io.SeekStart); err == nil {
		t.Error("Seek to a negative position should fail")
	}
}

func TestTimeseriesArrow_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTimeseriesArrow(&buf, nil); err != nil {
		t.Fatalf("WriteTimeseriesArrow() error = %v", err)
	}
	got, err := ReadTimeseriesArrow(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadTimeseriesArrow() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d rows, want 0", len(got))
	}
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	cfg, result := runRing(t)

	files, err := Write(context.Background(), dir, "007", cfg, result)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	list := files.List()
	if len(list) != len(Kinds) {
		t.Fatalf("List() = %v, want %d files", list, len(Kinds))
	}
	for i, f := range list {
		if f.Kind != Kinds[i] {
			t.Errorf("List()[%d].Kind = %s, want %s", i, f.Kind, Kinds[i])
		}
		if _, err := os.Stat(f.Path); err != nil {
			t.Errorf("%s not written: %v", f.Path, err)
		}
	}

	f, err := os.Open(files[KindTimeseries])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	history, err := ReadTimeseriesCSV(f)
	if err != nil {
		t.Fatalf("ReadTimeseriesCSV() error = %v", err)
	}
	if !reflect.DeepEqual(history, result.History) {
		t.Errorf("timeseries CSV = %v, want %v", history, result.History)
	}

	af, err := os.Open(files[KindArrow])
	if err != nil {
		t.Fatal(err)
	}
	defer af.Close()
	arrowHistory, err := ReadTimeseriesArrow(af)
	if err != nil {
		t.Fatalf("ReadTimeseriesArrow() error = %v", err)
	}
	if !reflect.DeepEqual(arrowHistory, result.History) {
		t.Errorf("arrow timeseries = %v, want %v", arrowHistory, result.History)
	}

	data, err := os.ReadFile(files[KindSummary])
	if err != nil {
		t.Fatal(err)
	}
	var summary map[string]any
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("summary is not JSON: %v", err)
	}
	for _, key := range []string{"RunID", "Purpose", "FinalState", "TotalCounts", "AvgCounts", "Throughput", "AgeDistribution"} {
		if _, ok := summary[key]; !ok {
			t.Errorf("summary missing %q", key)
		}
	}
	if summary["RunID"] != "007" {
		t.Errorf("summary RunID = %v", summary["RunID"])
	}

	data, err = os.ReadFile(files[KindConfig])
	if err != nil {
		t.Fatal(err)
	}
	var cfgBack config.Config
	if err := json.Unmarshal(data, &cfgBack); err != nil {
		t.Fatalf("config is not JSON: %v", err)
	}
	if cfgBack.Population.Size != 10 || cfgBack.Simulation.Seed != 3 {
		t.Errorf("config round trip = %+v", cfgBack)
	}

	data, err = os.ReadFile(files[KindCurve])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("<svg ")) || !bytes.Contains(data, []byte("Epidemic Simulation: "+cfg.Virus.Name)) {
		t.Errorf("curve plot = %.80s...", data)
	}
}

func TestWrite_Cancelled(t *testing.T) {
	cfg, result := runRing(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Write(ctx, t.TempDir(), "001", cfg, result); err == nil {
		t.Error("expected error for cancelled context")
	}
}
