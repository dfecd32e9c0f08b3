// Package visualization renders simulation results: the epidemic curve as
// SVG, and the contact network as DOT, JSON or a self-contained HTML report.
package visualization

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/goccy/go-json"

	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/population"
)

// Format specifies the output format for network rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want dot, json or html)", s)
}

// stateColors maps disease states to DOT/SVG colors.
var stateColors = map[models.State]string{
	models.StateSusceptible: "steelblue",
	models.StateExposed:     "goldenrod",
	models.StateInfected:    "tomato",
	models.StateRecovered:   "mediumseagreen",
}

// StateColor returns the color used for s.
func StateColor(s models.State) string {
	if c, ok := stateColors[s]; ok {
		return c
	}
	return "lightgray"
}

// RenderDOT produces a Graphviz DOT representation of the contact network.
// Nodes are filled by state; vaccinated nodes get a double border,
// quarantined ones a dashed outline, and suppressed contacts are dashed.
func RenderDOT(pop *population.Population) string {
	var b strings.Builder
	b.WriteString("graph episim {\n")
	b.WriteString("  layout=neato;\n")
	b.WriteString("  node [shape=circle, style=filled, fontname=\"Helvetica\", fontsize=9];\n")
	b.WriteString("  edge [color=gray60];\n\n")

	for i := range pop.Individuals {
		ind := &pop.Individuals[i]
		style := "filled"
		if ind.Quarantined {
			style = "filled,dashed"
		}
		periph := 1
		if ind.Vaccinated {
			periph = 2
		}
		fmt.Fprintf(&b, "  %d [fillcolor=%q, style=%q, peripheries=%d, tooltip=%q];\n",
			ind.ID, StateColor(ind.State), style, periph,
			fmt.Sprintf("%s, age %d (%s)", ind.State, ind.Age, ind.AgeGroup))
	}
	b.WriteString("\n")

	g := pop.Network
	for e, edge := range g.Edges() {
		if g.Active(e) {
			fmt.Fprintf(&b, "  %d -- %d;\n", edge.A, edge.B)
		} else {
			fmt.Fprintf(&b, "  %d -- %d [style=dashed];\n", edge.A, edge.B)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready graph with nodes and edges arrays.
func RenderJSON(pop *population.Population) map[string]any {
	nodes := make([]map[string]any, 0, pop.Len())
	for i := range pop.Individuals {
		ind := &pop.Individuals[i]
		nodes = append(nodes, map[string]any{
			"id":          ind.ID,
			"age":         ind.Age,
			"age_group":   ind.AgeGroup,
			"state":       ind.State.String(),
			"color":       StateColor(ind.State),
			"vaccinated":  ind.Vaccinated,
			"quarantined": ind.Quarantined,
		})
	}

	g := pop.Network
	edges := make([]map[string]any, 0, g.EdgeCount())
	for e, edge := range g.Edges() {
		edges = append(edges, map[string]any{
			"source": edge.A,
			"target": edge.B,
			"active": g.Active(e),
		})
	}

	return map[string]any{
		"nodes":             nodes,
		"edges":             edges,
		"node_count":        len(nodes),
		"edge_count":        len(edges),
		"active_edge_count": g.ActiveEdgeCount(),
	}
}

// htmlTemplateData holds data passed to the report template.
// GraphJSON is pre-sanitized JSON (via json.HTMLEscape) safe for inline <script>.
type htmlTemplateData struct {
	Title     string
	Curve     template.HTML
	Final     models.DayCounts
	Days      int
	GraphJSON template.JS
}

// RenderHTML produces a self-contained report with the epidemic curve and
// an interactive view of the final contact network.
func RenderHTML(title string, pop *population.Population, history []models.DayCounts) ([]byte, error) {
	graphJSON, err := json.Marshal(RenderJSON(pop))
	if err != nil {
		return nil, fmt.Errorf("marshal graph data: %w", err)
	}

	tmplBytes, err := templates.ReadFile("templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}
	tmpl, err := template.New("report").Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, graphJSON)

	data := htmlTemplateData{
		Title: title,
		// Curve: generated here, text content escaped by RenderCurveSVG.
		Curve:     template.HTML(RenderCurveSVG(title, history)), // #nosec G203
		Final:     pop.Counts(),
		Days:      len(history),
		GraphJSON: template.JS(escaped.String()), // #nosec G203
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}
