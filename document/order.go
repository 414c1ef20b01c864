package document

import "sort"

// SortReadingOrder orders regions row by row. Regions whose vertical extent
// overlaps the current row by at least half of the smaller height join it.
// Inside a row regions run left to right, or right to left when rtl is set
// (manga reading order).
func SortReadingOrder(rs []Region, rtl bool) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Bounds().Y < rs[j].Bounds().Y
	})
	var rows [][]Region
	var rowTop, rowBottom float64
	for _, r := range rs {
		b := r.Bounds()
		if len(rows) > 0 {
			overlap := min(rowBottom, b.Y+b.Height) - max(rowTop, b.Y)
			if overlap >= min(rowBottom-rowTop, b.Height)/2 {
				rows[len(rows)-1] = append(rows[len(rows)-1], r)
				rowBottom = max(rowBottom, b.Y+b.Height)
				continue
			}
		}
		rows = append(rows, []Region{r})
		rowTop, rowBottom = b.Y, b.Y+b.Height
	}
	out := rs[:0]
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool {
			if rtl {
				return row[i].Bounds().X > row[j].Bounds().X
			}
			return row[i].Bounds().X < row[j].Bounds().X
		})
		out = append(out, row...)
	}
}
