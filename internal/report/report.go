// Package report writes page activity and lead summaries to XLSX workbooks.
package report

import (
	"cmp"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/hotspot/internal/model"
)

// Sheet names.
const (
	SheetPages = "Pages"
	SheetLeads = "Leads"
)

var (
	pageHeader = []string{"ID", "URL", "Tracked", "Click", "Context", "Hover", "Referrers", "Top Referrer", "Funnel"}
	leadHeader = []string{"Page ID", "Page URL", "From", "Weight"}
)

// Row is one page with its inferred funnel ids, start page first.
type Row struct {
	Page   *model.Page
	Funnel []string
}

// Build renders rows into a workbook with a page sheet and a lead sheet.
func Build(rows []Row) (*xlsx.File, error) {
	f := xlsx.NewFile()
	pages, err := f.AddSheet(SheetPages)
	if err != nil {
		return nil, eris.Wrap(err, "report: add pages sheet")
	}
	leads, err := f.AddSheet(SheetLeads)
	if err != nil {
		return nil, eris.Wrap(err, "report: add leads sheet")
	}
	addStrings(pages, pageHeader...)
	addStrings(leads, leadHeader...)

	for _, r := range rows {
		p := r.Page
		row := pages.AddRow()
		row.AddCell().SetString(p.ID)
		row.AddCell().SetString(p.URL)
		names := make([]string, len(p.Config.Hotspot.Track))
		for i, c := range p.Config.Hotspot.Track {
			names[i] = c.String()
		}
		row.AddCell().SetString(strings.Join(names, ","))
		for _, c := range model.AllCategories() {
			var total int64
			if g := p.Grid(c); g != nil {
				total = g.Total()
			}
			row.AddCell().SetInt64(total)
		}
		row.AddCell().SetInt(p.Leads.Len())
		top, _ := p.Leads.Heaviest()
		row.AddCell().SetString(top)
		row.AddCell().SetString(strings.Join(r.Funnel, " <- "))

		for _, l := range sortedLeads(p.Leads.Snapshot()) {
			lr := leads.AddRow()
			lr.AddCell().SetString(p.ID)
			lr.AddCell().SetString(p.URL)
			lr.AddCell().SetString(l.from)
			lr.AddCell().SetInt64(l.weight)
		}
	}
	return f, nil
}

// Save builds the workbook and writes it to path.
func Save(rows []Row, path string) error {
	f, err := Build(rows)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addStrings(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

type lead struct {
	from   string
	weight int64
}

// sortedLeads orders by weight descending, then referrer id.
func sortedLeads(m map[string]int64) []lead {
	out := make([]lead, 0, len(m))
	for from, w := range m {
		out = append(out, lead{from: from, weight: w})
	}
	slices.SortFunc(out, func(a, b lead) int {
		if c := cmp.Compare(b.weight, a.weight); c != 0 {
			return c
		}
		return cmp.Compare(a.from, b.from)
	})
	return out
}
