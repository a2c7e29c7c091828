package dashboard

import (
	"embed"
	"fmt"
	"html/template"
	"math"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

//go:embed templates/*.gohtml
var templates embed.FS

var (
	indexTmpl    = parse("index.gohtml")
	overviewTmpl = parse("overview.gohtml")
	floatsTmpl   = parse("floats.gohtml")
	chatTmpl     = parse("chat.gohtml")
)

var funcs = template.FuncMap{
	"percent": func(v float64) string { return strconv.FormatFloat(math.Round(v*1000)/10, 'f', -1, 64) + "%" },
	"reading": func(v *float64, unit string) string {
		if v == nil {
			return "–"
		}
		return strconv.FormatFloat(*v, 'f', 1, 64) + " " + unit
	},
	"lat": func(v float64) string { return coordinate(v, "N", "S") },
	"lon": func(v float64) string { return coordinate(v, "E", "W") },
	"comma": func(v int) string { return humanize.Comma(int64(v)) },
	"rfc3339": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}

func coordinate(v float64, positive, negative string) string {
	hemisphere := positive
	if v < 0 {
		hemisphere = negative
	}
	return fmt.Sprintf("%.2f°%s", math.Abs(v), hemisphere)
}

func parse(name string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).ParseFS(templates, "templates/"+name))
}

type indexContext struct {
	Title  string
	Panels []renderedPanel
}
