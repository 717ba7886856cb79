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

// Package rbxval holds the property value type, a closed tagged union
// rather than interface{}, so every consumer (JSON codec, default-property
// filtering, reference linking) switches over it exhaustively instead of
// doing runtime type assertions against an open set.
package rbxval

import "fmt"

// Type identifies one of the concrete Value variants below. It is used as
// the discriminator both in the Go switch statements throughout this module
// and as the single JSON object key when a property can't be represented as
// a bare JSON scalar.
type Type uint8

const (
	TypeBool Type = iota
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeBinaryString
	TypeRef
	TypeEnum
	TypeUDim
	TypeUDim2
	TypeVector2
	TypeVector2int16
	TypeVector3
	TypeVector3int16
	TypeColor3
	TypeCFrame
	TypeBrickColor
	TypeNumberRange
	TypeNumberSequence
	TypeColorSequence
	TypeRect
	TypePhysicalProperties
	TypeAttributes
	TypeUniqueId
	TypeTags
	TypeSharedString
	TypeFont
	TypeContent
)

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

var typeNames = [...]string{
	"Bool", "Int32", "Int64", "Float32", "Float64", "String", "BinaryString",
	"Ref", "Enum", "UDim", "UDim2", "Vector2", "Vector2int16", "Vector3",
	"Vector3int16", "Color3", "CFrame", "BrickColor", "NumberRange",
	"NumberSequence", "ColorSequence", "Rect", "PhysicalProperties",
	"Attributes", "UniqueId", "Tags", "SharedString", "Font", "Content",
}

// Value is implemented by every concrete property value variant. Equal is
// used by the Syncback Planner's default-property filter and by the
// Change Processor when deciding whether an incoming property write is a
// no-op.
type Value interface {
	Type() Type
	Equal(other Value) bool
}

// NilRef is the zero Ref value: a property of type Ref pointing at nothing.
var NilRef = RefValue{}

type BoolValue bool

func (BoolValue) Type() Type { return TypeBool }
func (v BoolValue) Equal(o Value) bool { b, ok := o.(BoolValue); return ok && b == v }

type Int32Value int32

func (Int32Value) Type() Type { return TypeInt32 }
func (v Int32Value) Equal(o Value) bool { b, ok := o.(Int32Value); return ok && b == v }

type Int64Value int64

func (Int64Value) Type() Type { return TypeInt64 }
func (v Int64Value) Equal(o Value) bool { b, ok := o.(Int64Value); return ok && b == v }

type Float32Value float32

func (Float32Value) Type() Type { return TypeFloat32 }
func (v Float32Value) Equal(o Value) bool { b, ok := o.(Float32Value); return ok && b == v }

type Float64Value float64

func (Float64Value) Type() Type { return TypeFloat64 }
func (v Float64Value) Equal(o Value) bool { b, ok := o.(Float64Value); return ok && b == v }

type StringValue string

func (StringValue) Type() Type { return TypeString }
func (v StringValue) Equal(o Value) bool { b, ok := o.(StringValue); return ok && b == v }

type BinaryStringValue []byte

func (BinaryStringValue) Type() Type { return TypeBinaryString }
func (v BinaryStringValue) Equal(o Value) bool {
	b, ok := o.(BinaryStringValue)
	if !ok || len(b) != len(v) {
		return false
	}
	for i := range v {
		if v[i] != b[i] {
			return false
		}
	}
	return true
}

// RefValue is a reference to another instance, identified by a process-local
// Ref (see package dom). A zero Ref means nil.
type RefValue struct {
	Index uint32
	Gen   uint32
}

func (RefValue) Type() Type { return TypeRef }
func (v RefValue) Equal(o Value) bool { b, ok := o.(RefValue); return ok && b == v }
func (v RefValue) IsNone() bool       { return v.Index == 0 && v.Gen == 0 }

type EnumValue uint32

func (EnumValue) Type() Type { return TypeEnum }
func (v EnumValue) Equal(o Value) bool { b, ok := o.(EnumValue); return ok && b == v }

type UDimValue struct {
	Scale  float32
	Offset int32
}

func (UDimValue) Type() Type { return TypeUDim }
func (v UDimValue) Equal(o Value) bool { b, ok := o.(UDimValue); return ok && b == v }

type UDim2Value struct {
	X, Y UDimValue
}

func (UDim2Value) Type() Type { return TypeUDim2 }
func (v UDim2Value) Equal(o Value) bool { b, ok := o.(UDim2Value); return ok && b == v }

type Vector2Value struct{ X, Y float32 }

func (Vector2Value) Type() Type { return TypeVector2 }
func (v Vector2Value) Equal(o Value) bool { b, ok := o.(Vector2Value); return ok && b == v }

type Vector2int16Value struct{ X, Y int16 }

func (Vector2int16Value) Type() Type { return TypeVector2int16 }
func (v Vector2int16Value) Equal(o Value) bool { b, ok := o.(Vector2int16Value); return ok && b == v }

type Vector3Value struct{ X, Y, Z float32 }

func (Vector3Value) Type() Type { return TypeVector3 }
func (v Vector3Value) Equal(o Value) bool { b, ok := o.(Vector3Value); return ok && b == v }

type Vector3int16Value struct{ X, Y, Z int16 }

func (Vector3int16Value) Type() Type { return TypeVector3int16 }
func (v Vector3int16Value) Equal(o Value) bool { b, ok := o.(Vector3int16Value); return ok && b == v }

type Color3Value struct{ R, G, B float32 }

func (Color3Value) Type() Type { return TypeColor3 }
func (v Color3Value) Equal(o Value) bool { b, ok := o.(Color3Value); return ok && b == v }

// CFrameValue is a position plus a 3x3 rotation matrix, stored row-major.
type CFrameValue struct {
	Position Vector3Value
	Rotation [9]float32
}

func (CFrameValue) Type() Type { return TypeCFrame }
func (v CFrameValue) Equal(o Value) bool { b, ok := o.(CFrameValue); return ok && b == v }

type BrickColorValue uint32

func (BrickColorValue) Type() Type { return TypeBrickColor }
func (v BrickColorValue) Equal(o Value) bool { b, ok := o.(BrickColorValue); return ok && b == v }

type NumberRangeValue struct{ Min, Max float32 }

func (NumberRangeValue) Type() Type { return TypeNumberRange }
func (v NumberRangeValue) Equal(o Value) bool { b, ok := o.(NumberRangeValue); return ok && b == v }

type NumberSequenceKeypoint struct {
	Time     float32
	Value    float32
	Envelope float32
}

type NumberSequenceValue struct {
	Keypoints []NumberSequenceKeypoint
}

func (NumberSequenceValue) Type() Type { return TypeNumberSequence }
func (v NumberSequenceValue) Equal(o Value) bool {
	b, ok := o.(NumberSequenceValue)
	if !ok || len(b.Keypoints) != len(v.Keypoints) {
		return false
	}
	for i := range v.Keypoints {
		if v.Keypoints[i] != b.Keypoints[i] {
			return false
		}
	}
	return true
}

type ColorSequenceKeypoint struct {
	Time  float32
	Color Color3Value
}

type ColorSequenceValue struct {
	Keypoints []ColorSequenceKeypoint
}

func (ColorSequenceValue) Type() Type { return TypeColorSequence }
func (v ColorSequenceValue) Equal(o Value) bool {
	b, ok := o.(ColorSequenceValue)
	if !ok || len(b.Keypoints) != len(v.Keypoints) {
		return false
	}
	for i := range v.Keypoints {
		if v.Keypoints[i] != b.Keypoints[i] {
			return false
		}
	}
	return true
}

type RectValue struct {
	Min, Max Vector2Value
}

func (RectValue) Type() Type { return TypeRect }
func (v RectValue) Equal(o Value) bool { b, ok := o.(RectValue); return ok && b == v }

type PhysicalPropertiesValue struct {
	Custom           bool
	Density          float32
	Friction         float32
	Elasticity       float32
	FrictionWeight   float32
	ElasticityWeight float32
}

func (PhysicalPropertiesValue) Type() Type { return TypePhysicalProperties }
func (v PhysicalPropertiesValue) Equal(o Value) bool {
	b, ok := o.(PhysicalPropertiesValue)
	return ok && b == v
}

// AttributesValue is the map backing an instance's Attributes property,
// which in turn is where the Reference Linker stashes Rojo_Id and the
// Rojo_Ref_*/Rojo_RefPointer_* link attributes.
type AttributesValue map[string]Value

func (AttributesValue) Type() Type { return TypeAttributes }
func (v AttributesValue) Equal(o Value) bool {
	b, ok := o.(AttributesValue)
	if !ok || len(b) != len(v) {
		return false
	}
	for k, val := range v {
		ov, ok := b[k]
		if !ok || !val.Equal(ov) {
			return false
		}
	}
	return true
}

// UniqueIdValue is a process-wide-unique, time-ordered 16-byte identifier,
// used both as the Roblox UniqueId property and, stringified, as the value
// of the Rojo_Id attribute written by the Reference Linker.
type UniqueIdValue [16]byte

func (UniqueIdValue) Type() Type { return TypeUniqueId }
func (v UniqueIdValue) Equal(o Value) bool { b, ok := o.(UniqueIdValue); return ok && b == v }

func (v UniqueIdValue) String() string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", v[0:4], v[4:6], v[6:8], v[8:10], v[10:16])
}

type TagsValue []string

func (TagsValue) Type() Type { return TypeTags }
func (v TagsValue) Equal(o Value) bool {
	b, ok := o.(TagsValue)
	if !ok || len(b) != len(v) {
		return false
	}
	for i := range v {
		if v[i] != b[i] {
			return false
		}
	}
	return true
}

type SharedStringValue []byte

func (SharedStringValue) Type() Type { return TypeSharedString }
func (v SharedStringValue) Equal(o Value) bool {
	b, ok := o.(SharedStringValue)
	if !ok || len(b) != len(v) {
		return false
	}
	for i := range v {
		if v[i] != b[i] {
			return false
		}
	}
	return true
}

type FontValue struct {
	Family string
	Weight int32
	Style  string
}

func (FontValue) Type() Type { return TypeFont }
func (v FontValue) Equal(o Value) bool { b, ok := o.(FontValue); return ok && b == v }

// ContentValue models the Content property kind, which may hold either a
// literal URI or an embedded asset reference.
type ContentValue struct {
	URI string
}

func (ContentValue) Type() Type { return TypeContent }
func (v ContentValue) Equal(o Value) bool { b, ok := o.(ContentValue); return ok && b == v }

// ToPlain converts v into the generic Go value a TOML/YAML encoder expects,
// the inverse of the Toml/Yaml Snapshot decoder's valueFromAny. Only the
// scalar kinds that decoder ever produces round-trip losslessly; anything
// else (a property written onto a config-shaped instance through some other
// path) falls back to its string form, matching valueFromAny's own
// catch-all.
func ToPlain(v Value) interface{} {
	switch val := v.(type) {
	case StringValue:
		return string(val)
	case BoolValue:
		return bool(val)
	case Int64Value:
		return int64(val)
	case Int32Value:
		return int32(val)
	case Float64Value:
		return float64(val)
	case Float32Value:
		return float32(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
