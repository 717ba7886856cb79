package rbxval

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		BoolValue(true),
		StringValue("hello"),
		Int64Value(42),
		Float64Value(3.5),
		Vector3Value{X: 1, Y: 2, Z: 3},
		Color3Value{R: 1, G: 0, B: 0.5},
		UDim2Value{X: UDimValue{Scale: 1, Offset: 0}, Y: UDimValue{Scale: 0, Offset: 4}},
		TagsValue{"a", "b"},
		NumberRangeValue{Min: 0, Max: 1},
	}

	for _, v := range cases {
		raw, err := EncodeJSON(v)
		if err != nil {
			t.Fatalf("encode %v: %v", v, err)
		}
		got, err := DecodeAutoJSON(raw)
		if err != nil {
			t.Fatalf("decode %v: %v", v, err)
		}
		if !v.Equal(got) {
			t.Errorf("round trip mismatch: %#v != %#v (json: %s)", v, got, raw)
		}
	}
}

func TestUniqueIDRoundTrip(t *testing.T) {
	var id UniqueIdValue
	for i := range id {
		id[i] = byte(i)
	}
	raw, err := EncodeJSON(id)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeJSON(TypeUniqueId, raw)
	if err != nil {
		t.Fatal(err)
	}
	if !id.Equal(got) {
		t.Errorf("got %v, want %v", got, id)
	}
}

func TestAttributesRoundTrip(t *testing.T) {
	attrs := AttributesValue{
		"Foo": StringValue("bar"),
		"N":   Int64Value(7),
	}
	raw, err := EncodeJSON(attrs)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeJSON(TypeAttributes, raw)
	if err != nil {
		t.Fatal(err)
	}
	if !attrs.Equal(got) {
		t.Errorf("got %#v, want %#v", got, attrs)
	}
}

func TestCompoundShapesRoundTrip(t *testing.T) {
	cases := []Value{
		CFrameValue{
			Position: Vector3Value{X: 1, Y: 2, Z: 3},
			Rotation: [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1},
		},
		NumberSequenceValue{Keypoints: []NumberSequenceKeypoint{
			{Time: 0, Value: 0}, {Time: 1, Value: 1, Envelope: 0.5},
		}},
		ColorSequenceValue{Keypoints: []ColorSequenceKeypoint{
			{Time: 0, Color: Color3Value{R: 1}}, {Time: 1, Color: Color3Value{B: 1}},
		}},
		RectValue{Min: Vector2Value{X: 0, Y: 0}, Max: Vector2Value{X: 10, Y: 20}},
		UDimValue{Scale: 0.5, Offset: 16},
	}
	for _, v := range cases {
		raw, err := EncodeJSON(v)
		if err != nil {
			t.Fatalf("encode %v: %v", v, err)
		}
		got, err := DecodeAutoJSON(raw)
		if err != nil {
			t.Fatalf("decode %v: %v", v, err)
		}
		if !v.Equal(got) {
			t.Errorf("round trip mismatch: %#v != %#v (json: %s)", v, got, raw)
		}
	}
}

func TestCompoundWireShapes(t *testing.T) {
	raw, err := EncodeJSON(UDimValue{Scale: 1, Offset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"UDim":{"scale":1,"offset":4}}`; string(raw) != want {
		t.Errorf("UDim wire = %s, want %s", raw, want)
	}

	raw, err = EncodeJSON(NumberRangeValue{Min: 0, Max: 2})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"NumberRange":{"min":0,"max":2}}`; string(raw) != want {
		t.Errorf("NumberRange wire = %s, want %s", raw, want)
	}

	raw, err = EncodeJSON(CFrameValue{
		Position: Vector3Value{X: 1, Y: 2, Z: 3},
		Rotation: [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"CFrame":{"position":[1,2,3],"orientation":[[1,0,0],[0,1,0],[0,0,1]]}}`
	if string(raw) != want {
		t.Errorf("CFrame wire = %s, want %s", raw, want)
	}
}

func TestRefNeverSerializesDirectly(t *testing.T) {
	if _, err := EncodeJSON(RefValue{Index: 1, Gen: 1}); err == nil {
		t.Fatal("encoding a raw Ref should fail; the Reference Linker owns that path")
	}
}
