package visualization

import (
	"fmt"
	"html"
	"strings"

	"github.com/nvandessel/episim/internal/models"
)

// Curve geometry in SVG user units.
const (
	curveWidth   = 800
	curveHeight  = 420
	marginLeft   = 60
	marginRight  = 150
	marginTop    = 40
	marginBottom = 50
	yTicks       = 5
)

// RenderCurveSVG draws the daily S, E, I and R counts as four line series.
func RenderCurveSVG(title string, history []models.DayCounts) []byte {
	plotW := float64(curveWidth - marginLeft - marginRight)
	plotH := float64(curveHeight - marginTop - marginBottom)

	maxY := 1
	for _, day := range history {
		maxY = max(maxY, day.Total())
	}
	days := max(len(history), 2)

	x := func(i int) float64 { return marginLeft + plotW*float64(i)/float64(days-1) }
	y := func(v int) float64 { return marginTop + plotH - plotH*float64(v)/float64(maxY) }

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="Helvetica" font-size="12">`+"\n",
		curveWidth, curveHeight, curveWidth, curveHeight)
	fmt.Fprintf(&b, `<rect width="100%%" height="100%%" fill="white"/>`+"\n")
	fmt.Fprintf(&b, `<text x="%d" y="24" font-size="16" text-anchor="middle">%s</text>`+"\n",
		marginLeft+int(plotW)/2, html.EscapeString(title))

	// Axes
	fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="black"/>`+"\n",
		marginLeft, marginTop, marginLeft, curveHeight-marginBottom)
	fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="black"/>`+"\n",
		marginLeft, curveHeight-marginBottom, curveWidth-marginRight, curveHeight-marginBottom)

	for i := 0; i <= yTicks; i++ {
		v := maxY * i / yTicks
		fmt.Fprintf(&b, `<text x="%d" y="%.1f" text-anchor="end">%d</text>`+"\n", marginLeft-6, y(v)+4, v)
		fmt.Fprintf(&b, `<line x1="%d" y1="%.1f" x2="%d" y2="%.1f" stroke="#eee"/>`+"\n",
			marginLeft+1, y(v), curveWidth-marginRight, y(v))
	}
	if len(history) > 0 {
		fmt.Fprintf(&b, `<text x="%d" y="%d" text-anchor="middle">%d</text>`+"\n",
			marginLeft, curveHeight-marginBottom+18, history[0].Day)
		fmt.Fprintf(&b, `<text x="%.1f" y="%d" text-anchor="middle">%d</text>`+"\n",
			x(len(history)-1), curveHeight-marginBottom+18, history[len(history)-1].Day)
	}
	fmt.Fprintf(&b, `<text x="%d" y="%d" text-anchor="middle">Day</text>`+"\n",
		marginLeft+int(plotW)/2, curveHeight-12)
	fmt.Fprintf(&b, `<text x="16" y="%d" text-anchor="middle" transform="rotate(-90 16 %d)">Individuals</text>`+"\n",
		marginTop+int(plotH)/2, marginTop+int(plotH)/2)

	for si, st := range models.AllStates {
		color := StateColor(st)
		if len(history) > 0 {
			points := make([]string, len(history))
			for i, day := range history {
				points[i] = fmt.Sprintf("%.1f,%.1f", x(i), y(day.Get(st)))
			}
			fmt.Fprintf(&b, `<polyline class="series" data-state="%s" fill="none" stroke="%s" stroke-width="2" points="%s"/>`+"\n",
				st.Short(), color, strings.Join(points, " "))
		}

		ly := marginTop + 10 + si*20
		fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="3"/>`+"\n",
			curveWidth-marginRight+15, ly, curveWidth-marginRight+35, ly, color)
		fmt.Fprintf(&b, `<text x="%d" y="%d">%s</text>`+"\n", curveWidth-marginRight+42, ly+4, st)
	}

	b.WriteString("</svg>\n")
	return []byte(b.String())
}
