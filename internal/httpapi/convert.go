package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

var errBadProtoField = errors.New("bad field")

// ── Access ───────────────────────────────────────────────────────────────────

// accessRequestFromProto reads a verify request carried as a
// google.protobuf.Struct with the same keys as the JSON body.
func accessRequestFromProto(p *structpb.Struct) (types.AccessRequest, error) {
	var req types.AccessRequest
	fields := p.GetFields()

	if v, ok := fields["entity_type"]; ok {
		s, isStr := v.GetKind().(*structpb.Value_StringValue)
		if !isStr {
			return req, fmt.Errorf("%w: entity_type must be a string", errBadProtoField)
		}
		req.EntityType = s.StringValue
	}
	if v, ok := fields["entity_id"]; ok {
		n, err := intField("entity_id", v)
		if err != nil {
			return req, err
		}
		req.EntityID = &n
	}
	if v, ok := fields["max_retries"]; ok {
		n, err := intField("max_retries", v)
		if err != nil {
			return req, err
		}
		req.MaxRetries = n
	}
	return req, nil
}

func intField(name string, v *structpb.Value) (int, error) {
	num, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", errBadProtoField, name)
	}
	f := num.NumberValue
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadProtoField, name)
	}
	return int(f), nil
}

// accessDecisionToProto renders the decision with its JSON field names so
// both encodings carry the same document.
func accessDecisionToProto(d types.AccessDecision) (*structpb.Struct, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
