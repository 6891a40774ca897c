// Package stream converts change-stream JSON into records and back.
//
// Two input shapes are accepted:
//
// The stream envelope, with typed attribute values:
//
//	{"eventID": "...", "eventName": "MODIFY", "eventSourceARN": "...",
//	 "dynamodb": {"SequenceNumber": "...",
//	              "OldImage": {"n": {"N": "1"}},
//	              "NewImage": {"n": {"N": "2"}}}}
//
// The plain form, with untyped JSON values:
//
//	{"id": "...", "operation": "UPDATE", "old": {"n": 1}, "new": {"n": 2}}
//
// Typed attributes map onto the value model: S string, N float64, B []byte
// (base64), SS/NS/BS sets, L []any, M map[string]any, NULL nil, BOOL bool.
// Plain JSON maps strings, numbers (float64), booleans, null, arrays and
// objects directly; plain input has no set or binary types.
package stream

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/solatis/streamrouter/internal/types"
)

// MaxBatchSize bounds the number of records accepted in one batch document.
const MaxBatchSize = 10000

// DecodeRecord decodes one record in either shape.
func DecodeRecord(data []byte) (*types.Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", types.ErrInvalidRecord)
	}
	return decodeResult(gjson.ParseBytes(data))
}

// DecodeBatch decodes {"Records": [...]}, a top-level JSON array of records,
// or a single record object.
func DecodeBatch(data []byte) ([]*types.Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", types.ErrInvalidRecord)
	}
	doc := gjson.ParseBytes(data)

	var items []gjson.Result
	switch {
	case doc.IsArray():
		items = doc.Array()
	case doc.Get("Records").IsArray():
		items = doc.Get("Records").Array()
	case doc.IsObject():
		items = []gjson.Result{doc}
	default:
		return nil, fmt.Errorf("%w: expected object or array", types.ErrInvalidRecord)
	}

	if len(items) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d records (max %d)", types.ErrBatchTooLarge, len(items), MaxBatchSize)
	}

	records := make([]*types.Record, 0, len(items))
	for i, item := range items {
		rec, err := decodeResult(item)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeResult(doc gjson.Result) (*types.Record, error) {
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: record must be an object", types.ErrInvalidRecord)
	}
	if ddb := doc.Get("dynamodb"); ddb.Exists() {
		return decodeEnvelope(doc, ddb)
	}
	return decodePlain(doc)
}

func decodeEnvelope(doc, ddb gjson.Result) (*types.Record, error) {
	op, err := types.ParseOperation(doc.Get("eventName").String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidRecord, err)
	}

	old, err := decodeTypedImage(ddb.Get("OldImage"))
	if err != nil {
		return nil, fmt.Errorf("OldImage: %w", err)
	}
	cur, err := decodeTypedImage(ddb.Get("NewImage"))
	if err != nil {
		return nil, fmt.Errorf("NewImage: %w", err)
	}

	rec := types.NewRecord(op, old, cur)
	rec.ID = doc.Get("eventID").String()
	rec.SequenceNumber = ddb.Get("SequenceNumber").String()
	rec.Source = doc.Get("eventSourceARN").String()
	if rec.ID == "" {
		rec.ID = types.NewRecordID()
	}
	return rec, nil
}

func decodePlain(doc gjson.Result) (*types.Record, error) {
	op, err := types.ParseOperation(doc.Get("operation").String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidRecord, err)
	}

	old, err := decodePlainImage(doc.Get("old"))
	if err != nil {
		return nil, fmt.Errorf("old: %w", err)
	}
	cur, err := decodePlainImage(doc.Get("new"))
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	rec := types.NewRecord(op, old, cur)
	rec.ID = doc.Get("id").String()
	rec.SequenceNumber = doc.Get("sequence_number").String()
	rec.Source = doc.Get("source").String()
	if rec.ID == "" {
		rec.ID = types.NewRecordID()
	}
	return rec, nil
}

func decodeTypedImage(img gjson.Result) (types.Image, error) {
	if !img.Exists() || img.Type == gjson.Null {
		return types.Image{}, nil
	}
	if !img.IsObject() {
		return nil, fmt.Errorf("%w: image must be an object", types.ErrInvalidRecord)
	}
	out := types.Image{}
	var err error
	img.ForEach(func(key, value gjson.Result) bool {
		var v any
		v, err = DecodeAttribute(value)
		if err != nil {
			err = fmt.Errorf("attribute %q: %w", key.String(), err)
			return false
		}
		out[key.String()] = v
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeAttribute decodes one typed attribute value such as {"N": "1"}.
func DecodeAttribute(attr gjson.Result) (any, error) {
	if !attr.IsObject() {
		return nil, fmt.Errorf("%w: typed attribute must be an object", types.ErrInvalidRecord)
	}

	var (
		tag   string
		value gjson.Result
		count int
	)
	attr.ForEach(func(k, v gjson.Result) bool {
		tag, value = k.String(), v
		count++
		return true
	})
	if count != 1 {
		return nil, fmt.Errorf("%w: typed attribute needs exactly one tag, found %d", types.ErrInvalidRecord, count)
	}

	typ, ok := types.ParseType(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownType, tag)
	}

	switch typ {
	case types.TypeString:
		return value.String(), nil
	case types.TypeNumber:
		return parseNumber(value)
	case types.TypeBinary:
		return decodeBinary(value)
	case types.TypeBool:
		if value.Type != gjson.True && value.Type != gjson.False {
			return nil, fmt.Errorf("%w: BOOL value %s", types.ErrInvalidRecord, value.Raw)
		}
		return value.Bool(), nil
	case types.TypeNull:
		return nil, nil
	case types.TypeStringSet:
		set := types.StringSet{}
		for _, v := range value.Array() {
			set = append(set, v.String())
		}
		return set, nil
	case types.TypeNumberSet:
		set := types.NumberSet{}
		for _, v := range value.Array() {
			n, err := parseNumber(v)
			if err != nil {
				return nil, err
			}
			set = append(set, n)
		}
		return set, nil
	case types.TypeBinarySet:
		set := types.BinarySet{}
		for _, v := range value.Array() {
			b, err := decodeBinary(v)
			if err != nil {
				return nil, err
			}
			set = append(set, b)
		}
		return set, nil
	case types.TypeList:
		list := make([]any, 0, len(value.Array()))
		for _, v := range value.Array() {
			elem, err := DecodeAttribute(v)
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil
	case types.TypeMap:
		m, err := decodeTypedImage(value)
		if err != nil {
			return nil, err
		}
		return map[string]any(m), nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnknownType, tag)
}

func decodeBinary(v gjson.Result) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(v.String())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %w", types.ErrInvalidRecord, err)
	}
	return b, nil
}

// parseNumber accepts numbers sent as strings (the stream convention) or as
// JSON numbers.
func parseNumber(v gjson.Result) (float64, error) {
	if v.Type == gjson.Number {
		return v.Num, nil
	}
	n, err := strconv.ParseFloat(v.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid number %q", types.ErrInvalidRecord, v.String())
	}
	return n, nil
}

func decodePlainImage(img gjson.Result) (types.Image, error) {
	if !img.Exists() || img.Type == gjson.Null {
		return types.Image{}, nil
	}
	if !img.IsObject() {
		return nil, fmt.Errorf("%w: image must be an object", types.ErrInvalidRecord)
	}
	m, _ := PlainValue(img).(map[string]any)
	return types.Image(m), nil
}

// PlainValue converts an untyped JSON value to the value model.
func PlainValue(v gjson.Result) any {
	switch {
	case v.IsObject():
		m := make(map[string]any)
		v.ForEach(func(key, value gjson.Result) bool {
			m[key.String()] = PlainValue(value)
			return true
		})
		return m
	case v.IsArray():
		arr := v.Array()
		list := make([]any, len(arr))
		for i, elem := range arr {
			list[i] = PlainValue(elem)
		}
		return list
	}
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return v.Num
	case gjson.True:
		return true
	case gjson.False:
		return false
	default:
		return nil
	}
}
