package stream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/solatis/streamrouter/internal/types"
)

// EncodeAttribute converts a value-model value to its typed attribute form,
// the inverse of DecodeAttribute. Numbers are emitted as strings.
func EncodeAttribute(v any) (map[string]any, error) {
	switch val := v.(type) {
	case nil:
		return map[string]any{"NULL": true}, nil
	case string:
		return map[string]any{"S": val}, nil
	case bool:
		return map[string]any{"BOOL": val}, nil
	case []byte:
		return map[string]any{"B": base64.StdEncoding.EncodeToString(val)}, nil
	case types.StringSet:
		return map[string]any{"SS": []string(val)}, nil
	case types.NumberSet:
		out := make([]string, len(val))
		for i, n := range val {
			out[i] = formatNumber(n)
		}
		return map[string]any{"NS": out}, nil
	case types.BinarySet:
		out := make([]string, len(val))
		for i, b := range val {
			out[i] = base64.StdEncoding.EncodeToString(b)
		}
		return map[string]any{"BS": out}, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			enc, err := EncodeAttribute(elem)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return map[string]any{"L": out}, nil
	case map[string]any, types.Image:
		m, _ := types.AsMap(val)
		out, err := encodeAttributes(m)
		if err != nil {
			return nil, err
		}
		return map[string]any{"M": out}, nil
	}
	if n, ok := types.ToNumber(v); ok {
		return map[string]any{"N": formatNumber(n)}, nil
	}
	return nil, fmt.Errorf("%w: cannot encode %T", types.ErrUnknownType, v)
}

func encodeAttributes(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		enc, err := EncodeAttribute(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// EncodeImage renders an image as typed-attribute JSON.
func EncodeImage(img types.Image) ([]byte, error) {
	attrs, err := encodeAttributes(img)
	if err != nil {
		return nil, err
	}
	return json.Marshal(attrs)
}

type envelope struct {
	EventID        string         `json:"eventID"`
	EventName      string         `json:"eventName"`
	EventSourceARN string         `json:"eventSourceARN,omitempty"`
	Dynamodb       envelopeImages `json:"dynamodb"`
}

type envelopeImages struct {
	SequenceNumber string         `json:"SequenceNumber,omitempty"`
	OldImage       map[string]any `json:"OldImage,omitempty"`
	NewImage       map[string]any `json:"NewImage,omitempty"`
}

// EncodeRecord renders a record in the stream envelope shape, which
// DecodeRecord reads back to an equal record.
func EncodeRecord(rec *types.Record) ([]byte, error) {
	env := envelope{
		EventID:        rec.ID,
		EventName:      eventName(rec.Operation),
		EventSourceARN: rec.Source,
	}
	env.Dynamodb.SequenceNumber = rec.SequenceNumber

	var err error
	if len(rec.Old) > 0 {
		if env.Dynamodb.OldImage, err = encodeAttributes(rec.Old); err != nil {
			return nil, fmt.Errorf("OldImage: %w", err)
		}
	}
	if len(rec.New) > 0 {
		if env.Dynamodb.NewImage, err = encodeAttributes(rec.New); err != nil {
			return nil, fmt.Errorf("NewImage: %w", err)
		}
	}
	return json.Marshal(env)
}

// eventName uses the stream's spelling, MODIFY, for updates.
func eventName(op types.Operation) string {
	if op == types.OperationUpdate {
		return "MODIFY"
	}
	return op.String()
}
