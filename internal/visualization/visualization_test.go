package visualization

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/population"
)

// ringPopulation builds a 6-person ring (6 edges) with person 0 infected,
// person 1 vaccinated and person 2 quarantined.
func ringPopulation(t *testing.T) *population.Population {
	t.Helper()
	pop, err := population.Build(population.Params{Size: 6, AvgDegree: 2}, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("population.Build() error = %v", err)
	}
	pop.Get(0).SetState(models.StateInfected)
	pop.Get(1).Vaccinated = true
	pop.Quarantine(2)
	return pop
}

func sampleHistory() []models.DayCounts {
	return []models.DayCounts{
		{Day: 1, Susceptible: 5, Infected: 1},
		{Day: 2, Susceptible: 4, Exposed: 1, Infected: 1},
		{Day: 3, Susceptible: 4, Infected: 1, Recovered: 1},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"dot", FormatDOT, false},
		{"JSON", FormatJSON, false},
		{"html", FormatHTML, false},
		{"png", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestRenderDOT(t *testing.T) {
	pop := ringPopulation(t)
	dot := RenderDOT(pop)

	if !strings.HasPrefix(dot, "graph episim {") || !strings.HasSuffix(dot, "}\n") {
		t.Errorf("unexpected DOT framing:\n%s", dot)
	}
	for _, want := range []string{
		`0 [fillcolor="tomato"`,
		`1 [fillcolor="steelblue", style="filled", peripheries=2`,
		`2 [fillcolor="steelblue", style="filled,dashed"`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}

	edges := strings.Count(dot, " -- ")
	if edges != 6 {
		t.Errorf("DOT has %d edges, want 6", edges)
	}
	// Quarantining 2 suppresses both of its contacts.
	if dashed := strings.Count(dot, "[style=dashed]"); dashed != 2 {
		t.Errorf("DOT has %d dashed edges, want 2", dashed)
	}
}

func TestRenderJSON(t *testing.T) {
	pop := ringPopulation(t)
	graph := RenderJSON(pop)

	if graph["node_count"] != 6 || graph["edge_count"] != 6 || graph["active_edge_count"] != 4 {
		t.Errorf("counts = %v/%v/%v", graph["node_count"], graph["edge_count"], graph["active_edge_count"])
	}
	nodes := graph["nodes"].([]map[string]any)
	if nodes[0]["state"] != "Infected" || nodes[0]["color"] != "tomato" {
		t.Errorf("node 0 = %v", nodes[0])
	}
	if nodes[1]["vaccinated"] != true || nodes[2]["quarantined"] != true {
		t.Errorf("flags not rendered: %v, %v", nodes[1], nodes[2])
	}

	if _, err := json.Marshal(graph); err != nil {
		t.Errorf("graph is not JSON-encodable: %v", err)
	}
}

func TestRenderCurveSVG(t *testing.T) {
	svg := string(RenderCurveSVG("T-Virus <run 001>", sampleHistory()))

	if !strings.HasPrefix(svg, "<svg ") || !strings.HasSuffix(svg, "</svg>\n") {
		t.Fatalf("not an SVG document:\n%s", svg)
	}
	if !strings.Contains(svg, "T-Virus &lt;run 001&gt;") {
		t.Error("title should be escaped")
	}
	if got := strings.Count(svg, `class="series"`); got != 4 {
		t.Errorf("found %d series, want 4", got)
	}
	for _, st := range []string{"Susceptible", "Exposed", "Infected", "Recovered"} {
		if !strings.Contains(svg, ">"+st+"</text>") {
			t.Errorf("legend missing %s", st)
		}
	}
}

func TestRenderCurveSVG_Empty(t *testing.T) {
	svg := string(RenderCurveSVG("empty", nil))
	if strings.Contains(svg, "<polyline") {
		t.Error("empty history should draw no series")
	}
	if !strings.Contains(svg, "</svg>") {
		t.Error("empty history should still produce a document")
	}
}

func TestRenderHTML(t *testing.T) {
	page, err := RenderHTML("T-Virus </script>", ringPopulation(t), sampleHistory())
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	html := string(page)
	if !strings.Contains(html, "<svg ") {
		t.Error("report should inline the curve")
	}
	if !strings.Contains(html, `"node_count":6`) {
		t.Error("report should embed the network JSON")
	}
	if strings.Count(html, "</script>") != 1 {
		t.Error("title must not break out of the script block")
	}
}

func TestServer_Endpoints(t *testing.T) {
	srv := NewServer("test run", ringPopulation(t), sampleHistory())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	waitForServer(t, srv, 2*time.Second)

	tests := []struct {
		path        string
		wantStatus  int
		contentType string
	}{
		{"/", http.StatusOK, "text/html; charset=utf-8"},
		{"/api/network", http.StatusOK, "application/json"},
		{"/api/day?day=2", http.StatusOK, "application/json"},
		{"/api/day", http.StatusBadRequest, ""},
		{"/api/day?day=x", http.StatusBadRequest, ""},
		{"/api/day?day=9", http.StatusNotFound, ""},
		{"/missing", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		resp, err := http.Get("http://" + srv.Addr() + tt.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.wantStatus)
		}
		if tt.contentType != "" && resp.Header.Get("Content-Type") != tt.contentType {
			t.Errorf("GET %s Content-Type = %q, want %q", tt.path, resp.Header.Get("Content-Type"), tt.contentType)
		}
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/day?day=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var day models.DayCounts
	if err := json.NewDecoder(resp.Body).Decode(&day); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if day.Day != 2 || day.Exposed != 1 {
		t.Errorf("day 2 = %+v", day)
	}
}

func TestServer_CleanShutdown(t *testing.T) {
	srv := NewServer("test run", ringPopulation(t), sampleHistory())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	waitForServer(t, srv, 2*time.Second)

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("unexpected error on shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down within 3 seconds")
	}
}

// waitForServer polls the server until it's ready or the timeout is reached.
func waitForServer(t *testing.T, srv *Server, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		addr := srv.Addr()
		if addr == "" {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start within timeout")
}
