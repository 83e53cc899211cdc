package rdata

import (
	"fmt"
	"math"
	"time"

	"github.com/rpattn/datastash/internal/domain"
)

const secondsPerDay = 24 * 60 * 60

// toTable converts data frames and atomic vectors. Anything else is not tabular.
func toTable(name string, obj *sexp) (*domain.Table, bool, error) {
	if obj == nil {
		return nil, false, nil
	}
	switch {
	case obj.typ == vecSxp && obj.inherits("data.frame"):
		table, err := dataFrame(obj)
		return table, err == nil, err
	case obj.typ == lglSxp, obj.typ == intSxp, obj.typ == realSxp, obj.typ == strSxp:
		fieldType, values := column(obj)
		table := &domain.Table{
			Columns: []domain.Column{{Name: name, Type: fieldType}},
			Rows:    make([][]any, len(values)),
		}
		for i, v := range values {
			table.Rows[i] = []any{v}
		}
		return table, true, nil
	default:
		return nil, false, nil
	}
}

func dataFrame(obj *sexp) (*domain.Table, error) {
	names := obj.attr("names").strings()

	var columns []domain.Column
	var values [][]any

	if rowNames := obj.attr("row.names"); rowNames != nil && rowNames.typ == strSxp {
		fieldType, vals := column(rowNames)
		columns = append(columns, domain.Column{Name: "rownames", Type: fieldType})
		values = append(values, vals)
	}

	for idx, elem := range obj.elems {
		colName := fmt.Sprintf("column_%d", idx+1)
		if idx < len(names) && names[idx] != nil && *names[idx] != "" {
			colName = *names[idx]
		}
		fieldType, vals := column(elem)
		columns = append(columns, domain.Column{Name: colName, Type: fieldType})
		values = append(values, vals)
	}

	rows, err := frameRowCount(obj, values)
	if err != nil {
		return nil, err
	}
	table := &domain.Table{Columns: columns, Rows: make([][]any, rows)}
	for r := 0; r < rows; r++ {
		row := make([]any, len(columns))
		for c := range columns {
			if r < len(values[c]) {
				row[c] = values[c][r]
			}
		}
		table.Rows[r] = row
	}
	return table, nil
}

// frameRowCount prefers the compact row.names form c(NA, -n) R writes for default
// row names, then falls back to the longest column. A declared count longer than every
// column is corrupt. A frame without columns has no rows to materialize.
func frameRowCount(obj *sexp, values [][]any) (int, error) {
	longest := 0
	for _, v := range values {
		if len(v) > longest {
			longest = len(v)
		}
	}
	if len(values) == 0 {
		return 0, nil
	}

	rows := longest
	if rn := obj.attr("row.names"); rn != nil {
		switch {
		case rn.typ == intSxp && len(rn.ints) == 2 && rn.ints[0] == naInteger:
			n := int64(rn.ints[1])
			if n < 0 {
				n = -n
			}
			if n > maxVectorLength {
				return 0, fmt.Errorf("%w: data frame declares %d rows", domain.ErrDecode, n)
			}
			rows = int(n)
		case rn.length() > 0:
			rows = rn.length()
		}
	}
	if rows > longest {
		return 0, fmt.Errorf("%w: data frame declares %d rows but its longest column has %d", domain.ErrDecode, rows, longest)
	}
	return rows, nil
}

// column converts one R vector into typed cells, NA becoming nil.
func column(v *sexp) (domain.FieldType, []any) {
	switch v.typ {
	case intSxp:
		if levels := v.attr("levels").strings(); v.inherits("factor") && levels != nil {
			out := make([]any, len(v.ints))
			for i, code := range v.ints {
				if code == naInteger || int(code) < 1 || int(code) > len(levels) || levels[code-1] == nil {
					continue
				}
				out[i] = *levels[code-1]
			}
			return domain.FieldTypeString, out
		}
		out := make([]any, len(v.ints))
		for i, n := range v.ints {
			if n != naInteger {
				out[i] = int64(n)
			}
		}
		return domain.FieldTypeInteger, out
	case lglSxp:
		out := make([]any, len(v.ints))
		for i, n := range v.ints {
			if n != naInteger {
				out[i] = n != 0
			}
		}
		return domain.FieldTypeBoolean, out
	case realSxp:
		return realColumn(v)
	case strSxp:
		out := make([]any, len(v.strs))
		for i, s := range v.strs {
			if s != nil {
				out[i] = *s
			}
		}
		return domain.FieldTypeString, out
	default:
		out := make([]any, v.length())
		for i := range out {
			out[i] = "<list>"
		}
		return domain.FieldTypeString, out
	}
}

func realColumn(v *sexp) (domain.FieldType, []any) {
	out := make([]any, len(v.reals))
	switch {
	case v.inherits("Date"):
		for i, f := range v.reals {
			if isNAReal(f) || math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			out[i] = time.Unix(int64(f)*secondsPerDay, 0).UTC().Format("2006-01-02")
		}
		return domain.FieldTypeTimestamp, out
	case v.inherits("POSIXct"):
		for i, f := range v.reals {
			if isNAReal(f) || math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			sec, frac := math.Modf(f)
			out[i] = time.Unix(int64(sec), int64(frac*1e9)).UTC().Format(time.RFC3339Nano)
		}
		return domain.FieldTypeTimestamp, out
	}
	for i, f := range v.reals {
		if isNAReal(f) {
			continue
		}
		out[i] = f
	}
	return domain.FieldTypeFloat, out
}
