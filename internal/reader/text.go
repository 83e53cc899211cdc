package reader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rpattn/datastash/internal/domain"
)

var (
	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "\n", "&#10;")
)

// readCSV keeps the file as raw text. Rows are not parsed.
func readCSV(src io.Reader, _ string) (domain.LoadedValue, error) {
	reader := bufio.NewReader(src)
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}
	payload, err := io.ReadAll(reader)
	if err != nil {
		return domain.LoadedValue{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return domain.TextValue(domain.ContentKindCSV, string(payload)), nil
}

func readJSON(src io.Reader, _ string) (domain.LoadedValue, error) {
	dec := json.NewDecoder(src)
	var out any
	if err := dec.Decode(&out); err != nil {
		return domain.LoadedValue{}, fmt.Errorf("failed to parse json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.LoadedValue{}, errors.New("failed to parse json: trailing data after document")
	}
	return domain.JSONValue(domain.ContentKindJSON, out), nil
}

// readXML parses the document and renders its root element back to a single string.
// Comments, processing instructions and directives outside or inside the root are dropped.
func readXML(src io.Reader, _ string) (domain.LoadedValue, error) {
	dec := xml.NewDecoder(src)
	dec.Strict = true

	var (
		out   strings.Builder
		stack []string
		roots int
	)
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.LoadedValue{}, fmt.Errorf("failed to parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 {
				roots++
				if roots > 1 {
					return domain.LoadedValue{}, errors.New("failed to parse xml: multiple root elements")
				}
			}
			name := qualifiedName(t.Name)
			stack = append(stack, name)
			out.WriteByte('<')
			out.WriteString(name)
			for _, attr := range t.Attr {
				out.WriteByte(' ')
				out.WriteString(qualifiedName(attr.Name))
				out.WriteString(`="`)
				out.WriteString(attrEscaper.Replace(attr.Value))
				out.WriteByte('"')
			}
			out.WriteByte('>')
		case xml.EndElement:
			name := qualifiedName(t.Name)
			if len(stack) == 0 || stack[len(stack)-1] != name {
				return domain.LoadedValue{}, fmt.Errorf("failed to parse xml: unexpected end element </%s>", name)
			}
			stack = stack[:len(stack)-1]
			out.WriteString("</")
			out.WriteString(name)
			out.WriteByte('>')
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return domain.LoadedValue{}, errors.New("failed to parse xml: text outside root element")
				}
				continue
			}
			out.WriteString(textEscaper.Replace(string(t)))
		}
	}

	if len(stack) != 0 {
		return domain.LoadedValue{}, fmt.Errorf("failed to parse xml: unclosed element <%s>", stack[len(stack)-1])
	}
	if roots == 0 {
		return domain.LoadedValue{}, errors.New("failed to parse xml: no root element")
	}
	return domain.TextValue(domain.ContentKindXML, out.String()), nil
}

func qualifiedName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}
