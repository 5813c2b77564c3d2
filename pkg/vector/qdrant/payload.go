package qdrant

import (
	qc "github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/cohort/pkg/vector"
)

// toPayload flattens a document into a payload map accepted by TryValueMap,
// which understands []any but not typed slices.
func toPayload(doc vector.Document) map[string]any {
	out := make(map[string]any, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		switch t := v.(type) {
		case []string:
			list := make([]any, len(t))
			for i, s := range t {
				list[i] = s
			}
			out[k] = list
		default:
			out[k] = v
		}
	}
	out[payloadDocID] = doc.ID
	out[payloadContent] = doc.Content
	return out
}

func fromPayload(payload map[string]*qc.Value) vector.Document {
	doc := vector.Document{Metadata: make(map[string]any, len(payload))}
	for k, v := range payload {
		switch k {
		case payloadDocID:
			doc.ID = v.GetStringValue()
		case payloadContent:
			doc.Content = v.GetStringValue()
		default:
			doc.Metadata[k] = fromValue(v)
		}
	}
	return doc
}

func fromValue(v *qc.Value) any {
	switch k := v.GetKind().(type) {
	case *qc.Value_StringValue:
		return k.StringValue
	case *qc.Value_IntegerValue:
		return k.IntegerValue
	case *qc.Value_DoubleValue:
		return k.DoubleValue
	case *qc.Value_BoolValue:
		return k.BoolValue
	case *qc.Value_ListValue:
		values := k.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = fromValue(item)
		}
		return list
	case *qc.Value_StructValue:
		fields := k.StructValue.GetFields()
		m := make(map[string]any, len(fields))
		for name, item := range fields {
			m[name] = fromValue(item)
		}
		return m
	default:
		return nil
	}
}
