package rdata

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rpattn/datastash/internal/domain"
)

// R object types as written in the serialization stream.
const (
	nilSxp     = 0
	symSxp     = 1
	listSxp    = 2
	cloSxp     = 3
	envSxp     = 4
	promSxp    = 5
	langSxp    = 6
	specialSxp = 7
	builtinSxp = 8
	charSxp    = 9
	lglSxp     = 10
	intSxp     = 13
	realSxp    = 14
	cplxSxp    = 15
	strSxp     = 16
	dotSxp     = 17
	vecSxp     = 19
	exprSxp    = 20
	bcodeSxp   = 21
	extptrSxp  = 22
	weakrefSxp = 23
	rawSxp     = 24
	s4Sxp      = 25

	altrepSxp        = 238
	baseEnvSxp       = 241
	emptyEnvSxp      = 242
	persistSxp       = 247
	packageSxp       = 248
	namespaceSxp     = 249
	baseNamespaceSxp = 250
	missingArgSxp    = 251
	unboundValueSxp  = 252
	globalEnvSxp     = 253
	nilValueSxp      = 254
	refSxp           = 255
)

const (
	flagHasAttr = 1 << 9
	flagHasTag  = 1 << 10
)

// naInteger is R's NA for integer and logical vectors.
const naInteger = math.MinInt32

// naRealLowWord distinguishes R's NA_real_ from other NaN payloads.
const naRealLowWord = 1954

type pair struct {
	tag   string
	value *sexp
}

// sexp is the decoded subset of an R object needed to rebuild frames.
type sexp struct {
	typ   int
	attrs []pair

	ints  []int32
	reals []float64
	strs  []*string
	elems []*sexp
	pairs []pair
	name  string // symbol name or CHARSXP content
	na    bool   // CHARSXP NA_character_
}

var nilValue = &sexp{typ: nilSxp}

func (s *sexp) attr(name string) *sexp {
	if s == nil {
		return nil
	}
	for _, a := range s.attrs {
		if a.tag == name {
			return a.value
		}
	}
	return nil
}

func (s *sexp) length() int {
	if s == nil {
		return 0
	}
	switch s.typ {
	case lglSxp, intSxp:
		return len(s.ints)
	case realSxp:
		return len(s.reals)
	case strSxp:
		return len(s.strs)
	case vecSxp, exprSxp:
		return len(s.elems)
	case listSxp:
		return len(s.pairs)
	default:
		return 0
	}
}

// strings returns the elements of a character vector, nil for NA.
func (s *sexp) strings() []*string {
	if s == nil || s.typ != strSxp {
		return nil
	}
	return s.strs
}

func (s *sexp) classes() []string {
	var out []string
	for _, v := range s.attr("class").strings() {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func (s *sexp) inherits(class string) bool {
	for _, c := range s.classes() {
		if c == class {
			return true
		}
	}
	return false
}

func isNAReal(f float64) bool {
	return math.IsNaN(f) && uint32(math.Float64bits(f)) == naRealLowWord
}

func formatReal(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'g', 15, 64)
}

func errUnsupportedType(typ int) error {
	return fmt.Errorf("%w: unsupported R object type %d", domain.ErrCodecUnavailable, typ)
}
