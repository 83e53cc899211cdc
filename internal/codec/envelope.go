// Package codec writes LoadedValues to workspace artifacts and reads them back.
//
// Two artifact formats exist. The binary format is a CBOR envelope that carries the
// value's tag alongside its payload, so tables and frames round-trip without a schema.
// The JSON format is a pretty-printed document holding only JSON-representable values.
package codec

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/rpattn/datastash/internal/domain"
)

const envelopeVersion = 1

// envelope is the on-disk shape of a binary artifact.
type envelope struct {
	Version int                      `cbor:"v"`
	Kind    domain.ValueKind         `cbor:"kind"`
	Source  domain.ContentKind       `cbor:"source"`
	Text    string                   `cbor:"text"`
	JSON    any                      `cbor:"json"`
	Table   *domain.Table            `cbor:"table"`
	Frames  map[string]*domain.Table `cbor:"frames"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor encode options: %v", err))
	}

	// Maps decode with string keys and integers as int64 so decoded values compare
	// equal to what the reader produced.
	decMode, err = cbor.DecOptions{
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		IntDec:           cbor.IntDecConvertSigned,
		UTF8:             cbor.UTF8DecodeInvalid,
		MaxNestedLevels:  512,
		MaxArrayElements: math.MaxInt32,
		MaxMapPairs:      math.MaxInt32,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor decode options: %v", err))
	}
}

func encodeBinary(value domain.LoadedValue) ([]byte, error) {
	return encMode.Marshal(envelope{
		Version: envelopeVersion,
		Kind:    value.Kind,
		Source:  value.Source,
		Text:    value.Text,
		JSON:    value.JSON,
		Table:   value.Table,
		Frames:  value.Frames,
	})
}

func decodeBinary(payload []byte) (domain.LoadedValue, error) {
	var env envelope
	if err := decMode.Unmarshal(payload, &env); err != nil {
		return domain.LoadedValue{}, err
	}
	if env.Version != envelopeVersion {
		return domain.LoadedValue{}, fmt.Errorf("unsupported envelope version %d", env.Version)
	}

	switch env.Kind {
	case domain.ValueKindText:
		return domain.TextValue(env.Source, env.Text), nil
	case domain.ValueKindJSON:
		return domain.JSONValue(env.Source, env.JSON), nil
	case domain.ValueKindTable:
		if env.Table == nil {
			return domain.LoadedValue{}, errors.New("table envelope has no table")
		}
		return domain.TableValue(env.Source, env.Table), nil
	case domain.ValueKindFrames:
		frames := env.Frames
		if frames == nil {
			frames = map[string]*domain.Table{}
		}
		return domain.FramesValue(env.Source, frames), nil
	default:
		return domain.LoadedValue{}, fmt.Errorf("unknown value kind %q", env.Kind)
	}
}
