/*
Copyright 2024 The Rojo Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package rbxval

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncodeJSON renders a Value the way the JSON and HuJSON middlewares store
// it: scalar types (Bool, String, Int64, Float64) are written as bare JSON
// literals; every compound type is written as a single-key object keyed by
// its type name, e.g. {"Vector3": [1, 2, 3]}. Ref values never reach this
// function directly; the Reference Linker rewrites them into Rojo_Ref_*/
// Rojo_RefPointer_* attributes before a subtree is serialized.
func EncodeJSON(v Value) (json.RawMessage, error) {
	switch val := v.(type) {
	case BoolValue:
		return json.Marshal(bool(val))
	case StringValue:
		return json.Marshal(string(val))
	case Int64Value:
		return json.Marshal(int64(val))
	case Float64Value:
		return json.Marshal(float64(val))
	case nil:
		return json.Marshal(nil)
	}

	inner, err := encodeInner(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{v.Type().String(): inner})
}

// Wire shapes for the compound types that serialize as keyed objects
// rather than bare arrays.
type wireUDim struct {
	Scale  float32 `json:"scale"`
	Offset int32   `json:"offset"`
}

type wireUDim2 struct {
	X wireUDim `json:"x"`
	Y wireUDim `json:"y"`
}

type wireCFrame struct {
	Position    [3]float32    `json:"position"`
	Orientation [3][3]float32 `json:"orientation"`
}

type wireNumberRange struct {
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

type wireRect struct {
	Min [2]float32 `json:"min"`
	Max [2]float32 `json:"max"`
}

type wireNumberKeypoint struct {
	Time     float32 `json:"time"`
	Value    float32 `json:"value"`
	Envelope float32 `json:"envelope,omitempty"`
}

type wireColorKeypoint struct {
	Time  float32    `json:"time"`
	Color [3]float32 `json:"color"`
}

type wireKeypoints[K any] struct {
	Keypoints []K `json:"keypoints"`
}

func toWireUDim(v UDimValue) wireUDim {
	return wireUDim{Scale: v.Scale, Offset: v.Offset}
}

func encodeInner(v Value) (json.RawMessage, error) {
	switch val := v.(type) {
	case Int32Value:
		return json.Marshal(int32(val))
	case Float32Value:
		return json.Marshal(float32(val))
	case BinaryStringValue:
		return json.Marshal(base64.StdEncoding.EncodeToString(val))
	case RefValue:
		return nil, fmt.Errorf("rbxval: Ref properties must be linked before encoding, not serialized directly")
	case EnumValue:
		return json.Marshal(uint32(val))
	case UDimValue:
		return json.Marshal(toWireUDim(val))
	case UDim2Value:
		return json.Marshal(wireUDim2{X: toWireUDim(val.X), Y: toWireUDim(val.Y)})
	case Vector2Value:
		return json.Marshal([2]float32{val.X, val.Y})
	case Vector2int16Value:
		return json.Marshal([2]int16{val.X, val.Y})
	case Vector3Value:
		return json.Marshal([3]float32{val.X, val.Y, val.Z})
	case Vector3int16Value:
		return json.Marshal([3]int16{val.X, val.Y, val.Z})
	case Color3Value:
		return json.Marshal([3]float32{val.R, val.G, val.B})
	case CFrameValue:
		var w wireCFrame
		w.Position = [3]float32{val.Position.X, val.Position.Y, val.Position.Z}
		for row := 0; row < 3; row++ {
			copy(w.Orientation[row][:], val.Rotation[row*3:row*3+3])
		}
		return json.Marshal(w)
	case BrickColorValue:
		return json.Marshal(uint32(val))
	case NumberRangeValue:
		return json.Marshal(wireNumberRange{Min: val.Min, Max: val.Max})
	case NumberSequenceValue:
		kps := make([]wireNumberKeypoint, len(val.Keypoints))
		for i, kp := range val.Keypoints {
			kps[i] = wireNumberKeypoint{Time: kp.Time, Value: kp.Value, Envelope: kp.Envelope}
		}
		return json.Marshal(wireKeypoints[wireNumberKeypoint]{Keypoints: kps})
	case ColorSequenceValue:
		kps := make([]wireColorKeypoint, len(val.Keypoints))
		for i, kp := range val.Keypoints {
			kps[i] = wireColorKeypoint{Time: kp.Time, Color: [3]float32{kp.Color.R, kp.Color.G, kp.Color.B}}
		}
		return json.Marshal(wireKeypoints[wireColorKeypoint]{Keypoints: kps})
	case RectValue:
		return json.Marshal(wireRect{
			Min: [2]float32{val.Min.X, val.Min.Y},
			Max: [2]float32{val.Max.X, val.Max.Y},
		})
	case PhysicalPropertiesValue:
		if !val.Custom {
			return json.Marshal(false)
		}
		return json.Marshal(val)
	case AttributesValue:
		out := make(map[string]json.RawMessage, len(val))
		for name, prop := range val {
			raw, err := EncodeJSON(prop)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			out[name] = raw
		}
		return json.Marshal(out)
	case UniqueIdValue:
		return json.Marshal(val.String())
	case TagsValue:
		return json.Marshal([]string(val))
	case SharedStringValue:
		return json.Marshal(base64.StdEncoding.EncodeToString(val))
	case FontValue:
		return json.Marshal(val)
	case ContentValue:
		return json.Marshal(val.URI)
	default:
		return nil, fmt.Errorf("rbxval: no JSON encoding for %T", v)
	}
}

// DecodeJSON parses a value of the given type out of raw, following the
// inverse of EncodeJSON's shape: a single-key {"TypeName": ...} wrapper
// naming t is unwrapped first, and a bare payload is accepted as is.
func DecodeJSON(t Type, raw json.RawMessage) (Value, error) {
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped) == 1 {
		if inner, ok := wrapped[t.String()]; ok {
			return decodeInner(t, inner)
		}
	}
	return decodeInner(t, raw)
}

// decodeInner parses the payload EncodeJSON places inside its wrapper (or
// a bare scalar literal) as a value of type t.
func decodeInner(t Type, raw json.RawMessage) (Value, error) {
	switch t {
	case TypeBool:
		var b bool
		err := json.Unmarshal(raw, &b)
		return BoolValue(b), err
	case TypeString:
		var s string
		err := json.Unmarshal(raw, &s)
		return StringValue(s), err
	case TypeInt32:
		var n int32
		err := json.Unmarshal(raw, &n)
		return Int32Value(n), err
	case TypeInt64:
		var n int64
		err := json.Unmarshal(raw, &n)
		return Int64Value(n), err
	case TypeFloat32:
		var f float32
		err := json.Unmarshal(raw, &f)
		return Float32Value(f), err
	case TypeFloat64:
		var f float64
		err := json.Unmarshal(raw, &f)
		return Float64Value(f), err
	case TypeBinaryString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		return BinaryStringValue(b), err
	case TypeEnum:
		var n uint32
		err := json.Unmarshal(raw, &n)
		return EnumValue(n), err
	case TypeUDim:
		var w wireUDim
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return UDimValue{Scale: w.Scale, Offset: w.Offset}, nil
	case TypeUDim2:
		var w wireUDim2
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return UDim2Value{
			X: UDimValue{Scale: w.X.Scale, Offset: w.X.Offset},
			Y: UDimValue{Scale: w.Y.Scale, Offset: w.Y.Offset},
		}, nil
	case TypeVector2:
		var pair [2]float32
		err := json.Unmarshal(raw, &pair)
		return Vector2Value{X: pair[0], Y: pair[1]}, err
	case TypeVector2int16:
		var pair [2]int16
		err := json.Unmarshal(raw, &pair)
		return Vector2int16Value{X: pair[0], Y: pair[1]}, err
	case TypeVector3:
		var triple [3]float32
		err := json.Unmarshal(raw, &triple)
		return Vector3Value{X: triple[0], Y: triple[1], Z: triple[2]}, err
	case TypeVector3int16:
		var triple [3]int16
		err := json.Unmarshal(raw, &triple)
		return Vector3int16Value{X: triple[0], Y: triple[1], Z: triple[2]}, err
	case TypeColor3:
		var triple [3]float32
		err := json.Unmarshal(raw, &triple)
		return Color3Value{R: triple[0], G: triple[1], B: triple[2]}, err
	case TypeCFrame:
		var w wireCFrame
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		var cf CFrameValue
		cf.Position = Vector3Value{X: w.Position[0], Y: w.Position[1], Z: w.Position[2]}
		for row := 0; row < 3; row++ {
			copy(cf.Rotation[row*3:row*3+3], w.Orientation[row][:])
		}
		return cf, nil
	case TypeBrickColor:
		var n uint32
		err := json.Unmarshal(raw, &n)
		return BrickColorValue(n), err
	case TypeNumberRange:
		var w wireNumberRange
		err := json.Unmarshal(raw, &w)
		return NumberRangeValue{Min: w.Min, Max: w.Max}, err
	case TypeNumberSequence:
		var w wireKeypoints[wireNumberKeypoint]
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		kps := make([]NumberSequenceKeypoint, len(w.Keypoints))
		for i, kp := range w.Keypoints {
			kps[i] = NumberSequenceKeypoint{Time: kp.Time, Value: kp.Value, Envelope: kp.Envelope}
		}
		return NumberSequenceValue{Keypoints: kps}, nil
	case TypeColorSequence:
		var w wireKeypoints[wireColorKeypoint]
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		kps := make([]ColorSequenceKeypoint, len(w.Keypoints))
		for i, kp := range w.Keypoints {
			kps[i] = ColorSequenceKeypoint{
				Time:  kp.Time,
				Color: Color3Value{R: kp.Color[0], G: kp.Color[1], B: kp.Color[2]},
			}
		}
		return ColorSequenceValue{Keypoints: kps}, nil
	case TypeRect:
		var w wireRect
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return RectValue{
			Min: Vector2Value{X: w.Min[0], Y: w.Min[1]},
			Max: Vector2Value{X: w.Max[0], Y: w.Max[1]},
		}, nil
	case TypePhysicalProperties:
		var asBool bool
		if err := json.Unmarshal(raw, &asBool); err == nil {
			return PhysicalPropertiesValue{Custom: false}, nil
		}
		var pp PhysicalPropertiesValue
		err := json.Unmarshal(raw, &pp)
		pp.Custom = true
		return pp, err
	case TypeAttributes:
		var raws map[string]json.RawMessage
		if err := json.Unmarshal(raw, &raws); err != nil {
			return nil, err
		}
		out := make(AttributesValue, len(raws))
		for name, r := range raws {
			v, err := DecodeAutoJSON(r)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			out[name] = v
		}
		return out, nil
	case TypeUniqueId:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return parseUniqueID(s)
	case TypeTags:
		var tags []string
		err := json.Unmarshal(raw, &tags)
		return TagsValue(tags), err
	case TypeSharedString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		return SharedStringValue(b), err
	case TypeFont:
		var f FontValue
		err := json.Unmarshal(raw, &f)
		return f, err
	case TypeContent:
		var s string
		err := json.Unmarshal(raw, &s)
		return ContentValue{URI: s}, err
	default:
		return nil, fmt.Errorf("rbxval: no JSON decoding for %s", t)
	}
}

// DecodeAutoJSON parses a value whose type is not known ahead of time: a
// bare JSON literal decodes to the matching scalar Value (an integer
// literal to Int64, any other number to Float64), and a single-key
// object decodes to the compound type named by that key. This is how
// middleware that stores untyped properties (the Json middleware, and
// Attributes members) round-trips values without a companion type field.
func DecodeAutoJSON(raw json.RawMessage) (Value, error) {
	var asObj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asObj); err == nil && len(asObj) == 1 {
		for name, inner := range asObj {
			t, ok := typeByName(name)
			if !ok {
				return nil, fmt.Errorf("rbxval: unknown property type %q", name)
			}
			return decodeInner(t, inner)
		}
	}

	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return BoolValue(asBool), nil
	}
	var asInt int64
	if err := json.Unmarshal(raw, &asInt); err == nil {
		return Int64Value(asInt), nil
	}
	var asNum float64
	if err := json.Unmarshal(raw, &asNum); err == nil {
		return Float64Value(asNum), nil
	}
	var asStr string
	if err := json.Unmarshal(raw, &asStr); err == nil {
		return StringValue(asStr), nil
	}
	return nil, fmt.Errorf("rbxval: could not infer a property type for %s", raw)
}

func typeByName(name string) (Type, bool) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), true
		}
	}
	return 0, false
}

func parseUniqueID(s string) (UniqueIdValue, error) {
	var id UniqueIdValue
	hex := make([]byte, 0, 32)
	for _, r := range s {
		if r == '-' {
			continue
		}
		hex = append(hex, byte(r))
	}
	if len(hex) != 32 {
		return id, fmt.Errorf("rbxval: malformed UniqueId %q", s)
	}
	decoded := make([]byte, 16)
	for i := 0; i < 16; i++ {
		hi := hexNibble(hex[i*2])
		lo := hexNibble(hex[i*2+1])
		if hi < 0 || lo < 0 {
			return id, fmt.Errorf("rbxval: malformed UniqueId %q", s)
		}
		decoded[i] = byte(hi<<4 | lo)
	}
	copy(id[:], decoded)
	return id, nil
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}
