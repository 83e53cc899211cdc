// Package rdata decodes R workspaces (.RData/.rda) and serialized objects (.rds) written
// in R's XDR serialization format into named frames.
package rdata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/rpattn/datastash/internal/domain"

	"github.com/rs/zerolog"
)

var (
	workspaceXDR   = []byte("RDX2\n")
	workspaceXDRv3 = []byte("RDX3\n")
)

// maxDepth bounds recursion through nested objects.
const maxDepth = 512

type options struct {
	logger zerolog.Logger
}

// Option customizes Decode.
type Option func(*options)

// WithLogger sets the diagnostic logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

type decoder struct {
	x     *xdrReader
	refs  []*sexp
	depth int
}

// Decode reads an R workspace or serialized object from src. Workspace objects are keyed
// by their variable names; a bare serialized object is keyed by name. Objects that are
// not tabular (functions, environments, nested lists) are skipped.
func Decode(src io.Reader, name string, opts ...Option) (map[string]*domain.Table, error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	r, err := decompress(src)
	if err != nil {
		return nil, err
	}

	magic := make([]byte, 5)
	n, err := io.ReadFull(r, magic)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, unexpected(err)
	}
	magic = magic[:n]

	workspace := bytes.Equal(magic, workspaceXDR) || bytes.Equal(magic, workspaceXDRv3)
	var format []byte
	if workspace {
		format = make([]byte, 2)
		if _, err := io.ReadFull(r, format); err != nil {
			return nil, unexpected(err)
		}
	} else {
		if len(magic) >= 4 && (bytes.HasPrefix(magic, []byte("RDA")) || bytes.HasPrefix(magic, []byte("RDB"))) {
			return nil, fmt.Errorf("%w: only XDR workspaces are supported", domain.ErrCodecUnavailable)
		}
		if len(magic) < 2 {
			return nil, fmt.Errorf("%w: file too short", domain.ErrDecode)
		}
		format = magic[:2]
		r = io.MultiReader(bytes.NewReader(magic[2:]), r)
	}

	switch string(format) {
	case "X\n":
	case "A\n", "B\n":
		return nil, fmt.Errorf("%w: only the XDR serialization format is supported", domain.ErrCodecUnavailable)
	default:
		return nil, fmt.Errorf("%w: not an R data file", domain.ErrDecode)
	}

	d := &decoder{x: &xdrReader{r: r}}
	if err := d.readHeader(); err != nil {
		return nil, err
	}

	root, err := d.readItem()
	if err != nil {
		return nil, err
	}

	objects := []pair{{tag: name, value: root}}
	if workspace {
		if root.typ != listSxp && root.typ != nilSxp {
			return nil, fmt.Errorf("%w: workspace is not a pairlist", domain.ErrDecode)
		}
		objects = root.pairs
	}

	frames := make(map[string]*domain.Table, len(objects))
	for idx, obj := range objects {
		key := obj.tag
		if key == "" {
			key = "object_" + strconv.Itoa(idx+1)
		}
		table, ok, err := toTable(key, obj.value)
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", key, err)
		}
		if !ok {
			o.logger.Debug().Str("object", key).Int("type", obj.value.typ).Msg("skipping non-tabular R object")
			continue
		}
		frames[key] = table
	}
	return frames, nil
}

func (d *decoder) readHeader() error {
	version, err := d.x.int()
	if err != nil {
		return err
	}
	if version != 2 && version != 3 {
		return fmt.Errorf("%w: unsupported serialization version %d", domain.ErrCodecUnavailable, version)
	}
	// writer R version, minimal reader R version
	for i := 0; i < 2; i++ {
		if _, err := d.x.int(); err != nil {
			return err
		}
	}
	if version == 3 {
		n, err := d.x.int()
		if err != nil {
			return err
		}
		if _, err := d.x.bytes(int(n)); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) addRef(s *sexp) {
	d.refs = append(d.refs, s)
}

func (d *decoder) readItem() (*sexp, error) {
	flags, err := d.x.int()
	if err != nil {
		return nil, err
	}
	return d.readItemFlags(flags)
}

func (d *decoder) readItemFlags(flags int32) (*sexp, error) {
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > maxDepth {
		return nil, fmt.Errorf("%w: objects nested too deeply", domain.ErrDecode)
	}

	typ := int(flags & 0xFF)
	hasAttr := flags&flagHasAttr != 0

	switch typ {
	case nilValueSxp:
		return nilValue, nil
	case emptyEnvSxp, baseEnvSxp, globalEnvSxp, unboundValueSxp, missingArgSxp, baseNamespaceSxp:
		return &sexp{typ: envSxp}, nil
	case refSxp:
		idx := int(flags >> 8)
		if idx == 0 {
			i, err := d.x.int()
			if err != nil {
				return nil, err
			}
			idx = int(i)
		}
		if idx < 1 || idx > len(d.refs) {
			return nil, fmt.Errorf("%w: invalid reference %d", domain.ErrDecode, idx)
		}
		return d.refs[idx-1], nil
	case persistSxp, packageSxp, namespaceSxp:
		s := &sexp{typ: envSxp}
		if err := d.readStringVec(s); err != nil {
			return nil, err
		}
		d.addRef(s)
		return s, nil
	case symSxp:
		item, err := d.readItem()
		if err != nil {
			return nil, err
		}
		s := &sexp{typ: symSxp, name: item.name}
		d.addRef(s)
		return s, nil
	case envSxp:
		return d.readEnv()
	case listSxp, langSxp, cloSxp, promSxp, dotSxp:
		return d.readPairlist(flags)
	case altrepSxp:
		return d.readAltrep()
	}

	s := &sexp{typ: typ}
	switch typ {
	case extptrSxp:
		d.addRef(s)
		for i := 0; i < 2; i++ { // protected value, tag
			if _, err := d.readItem(); err != nil {
				return nil, err
			}
		}
	case weakrefSxp:
		d.addRef(s)
	case specialSxp, builtinSxp:
		n, err := d.x.int()
		if err != nil {
			return nil, err
		}
		name, err := d.x.bytes(int(n))
		if err != nil {
			return nil, err
		}
		s.name = string(name)
	case charSxp:
		n, err := d.x.int()
		if err != nil {
			return nil, err
		}
		if n == -1 {
			s.na = true
		} else {
			b, err := d.x.bytes(int(n))
			if err != nil {
				return nil, err
			}
			s.name = string(b)
		}
	case lglSxp, intSxp:
		n, err := d.x.length()
		if err != nil {
			return nil, err
		}
		s.ints = make([]int32, 0, initialCap(n))
		for i := 0; i < n; i++ {
			v, err := d.x.int()
			if err != nil {
				return nil, err
			}
			s.ints = append(s.ints, v)
		}
	case realSxp:
		n, err := d.x.length()
		if err != nil {
			return nil, err
		}
		s.reals = make([]float64, 0, initialCap(n))
		for i := 0; i < n; i++ {
			v, err := d.x.float()
			if err != nil {
				return nil, err
			}
			s.reals = append(s.reals, v)
		}
	case cplxSxp:
		n, err := d.x.length()
		if err != nil {
			return nil, err
		}
		for i := 0; i < 2*n; i++ {
			if _, err := d.x.float(); err != nil {
				return nil, err
			}
		}
	case strSxp:
		n, err := d.x.length()
		if err != nil {
			return nil, err
		}
		s.strs = make([]*string, 0, initialCap(n))
		for i := 0; i < n; i++ {
			item, err := d.readItem()
			if err != nil {
				return nil, err
			}
			if item.typ != charSxp || item.na {
				s.strs = append(s.strs, nil)
				continue
			}
			v := item.name
			s.strs = append(s.strs, &v)
		}
	case vecSxp, exprSxp:
		n, err := d.x.length()
		if err != nil {
			return nil, err
		}
		s.elems = make([]*sexp, 0, initialCap(n))
		for i := 0; i < n; i++ {
			item, err := d.readItem()
			if err != nil {
				return nil, err
			}
			s.elems = append(s.elems, item)
		}
	case rawSxp:
		n, err := d.x.length()
		if err != nil {
			return nil, err
		}
		if _, err := d.x.bytes(n); err != nil {
			return nil, err
		}
	case s4Sxp:
	default:
		return nil, errUnsupportedType(typ)
	}

	if hasAttr {
		attrs, err := d.readItem()
		if err != nil {
			return nil, err
		}
		s.attrs = attrs.pairs
	}
	return s, nil
}

// readPairlist reads a CONS chain iteratively; R writes the CDR as the next item.
func (d *decoder) readPairlist(flags int32) (*sexp, error) {
	head := &sexp{typ: int(flags & 0xFF)}
	for {
		var p pair
		if flags&flagHasAttr != 0 {
			attrs, err := d.readItem()
			if err != nil {
				return nil, err
			}
			if len(head.pairs) == 0 {
				head.attrs = attrs.pairs
			}
		}
		if flags&flagHasTag != 0 {
			tag, err := d.readItem()
			if err != nil {
				return nil, err
			}
			p.tag = tag.name
		}
		car, err := d.readItem()
		if err != nil {
			return nil, err
		}
		p.value = car
		head.pairs = append(head.pairs, p)

		next, err := d.x.int()
		if err != nil {
			return nil, err
		}
		switch int(next & 0xFF) {
		case listSxp, langSxp, cloSxp, promSxp, dotSxp:
			flags = next
			continue
		case nilValueSxp:
			return head, nil
		default:
			// dotted pair: keep the CDR as an untagged trailing element
			tail, err := d.readItemFlags(next)
			if err != nil {
				return nil, err
			}
			head.pairs = append(head.pairs, pair{value: tail})
			return head, nil
		}
	}
}

func (d *decoder) readEnv() (*sexp, error) {
	s := &sexp{typ: envSxp}
	d.addRef(s)
	if _, err := d.x.int(); err != nil { // locked
		return nil, err
	}
	for i := 0; i < 4; i++ { // enclosure, frame, hash table, attributes
		if _, err := d.readItem(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (d *decoder) readStringVec(s *sexp) error {
	if _, err := d.x.int(); err != nil {
		return err
	}
	n, err := d.x.length()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		item, err := d.readItem()
		if err != nil {
			return err
		}
		if i == 0 {
			s.name = item.name
		}
	}
	return nil
}

// readAltrep expands the compact and wrapper representations R writes for ALTREP
// vectors back into plain vectors.
func (d *decoder) readAltrep() (*sexp, error) {
	info, err := d.readItem()
	if err != nil {
		return nil, err
	}
	state, err := d.readItem()
	if err != nil {
		return nil, err
	}
	attrs, err := d.readItem()
	if err != nil {
		return nil, err
	}

	class := ""
	if len(info.pairs) > 0 && info.pairs[0].value != nil {
		class = info.pairs[0].value.name
	}

	var out *sexp
	switch class {
	case "compact_intseq":
		out, err = expandSeq(state, intSxp)
	case "compact_realseq":
		out, err = expandSeq(state, realSxp)
	case "wrap_integer", "wrap_logical", "wrap_real", "wrap_string", "wrap_complex", "wrap_raw", "wrap_list":
		if len(state.pairs) == 0 {
			return nil, fmt.Errorf("%w: empty %s state", domain.ErrDecode, class)
		}
		wrapped := *state.pairs[0].value
		out = &wrapped
	case "deferred_string":
		if len(state.pairs) == 0 {
			return nil, fmt.Errorf("%w: empty deferred_string state", domain.ErrDecode)
		}
		out = deferredStrings(state.pairs[0].value)
	default:
		return nil, fmt.Errorf("%w: ALTREP class %q", domain.ErrCodecUnavailable, class)
	}
	if err != nil {
		return nil, err
	}
	if attrs != nil && attrs.typ == listSxp {
		out.attrs = attrs.pairs
	}
	return out, nil
}

func expandSeq(state *sexp, typ int) (*sexp, error) {
	if state == nil || state.typ != realSxp || len(state.reals) != 3 {
		return nil, fmt.Errorf("%w: malformed compact sequence", domain.ErrDecode)
	}
	n, start, step := state.reals[0], state.reals[1], state.reals[2]
	if n < 0 || n > maxVectorLength {
		return nil, fmt.Errorf("%w: compact sequence length %v", domain.ErrDecode, n)
	}
	out := &sexp{typ: typ}
	count := int(n)
	for i := 0; i < count; i++ {
		v := start + float64(i)*step
		if typ == intSxp {
			out.ints = append(out.ints, int32(v))
		} else {
			out.reals = append(out.reals, v)
		}
	}
	return out, nil
}

func deferredStrings(arg *sexp) *sexp {
	out := &sexp{typ: strSxp}
	switch arg.typ {
	case intSxp:
		for _, v := range arg.ints {
			if v == naInteger {
				out.strs = append(out.strs, nil)
				continue
			}
			s := strconv.Itoa(int(v))
			out.strs = append(out.strs, &s)
		}
	case realSxp:
		for _, v := range arg.reals {
			if isNAReal(v) {
				out.strs = append(out.strs, nil)
				continue
			}
			s := formatReal(v)
			out.strs = append(out.strs, &s)
		}
	}
	return out
}
