package objid

import "testing"

func TestComposeDecomposeRoundTrip(t *testing.T) {
	indices := []int{0, 1, 2, 63, 511, MaxIndex}
	serials := []uint32{0, 1, 2, 100, SerialMask - 1, SerialMask}

	for _, typ := range Types() {
		for _, idx := range indices {
			for _, s := range serials {
				id := Compose(typ, idx, s)
				gt, gi, gs := Decompose(id)
				if gt != typ || gi != idx || gs != s {
					t.Fatalf("Decompose(Compose(%v,%d,%d)) = (%v,%d,%d)", typ, idx, s, gt, gi, gs)
				}
				if !id.Defined() {
					t.Fatalf("composed id %v reported as undefined", id)
				}
			}
		}
	}
}

func TestComposeNeverYieldsSentinel(t *testing.T) {
	for _, typ := range Types() {
		if Compose(typ, 0, 0) == Undefined {
			t.Fatalf("type %v composed to Undefined", typ)
		}
		if Compose(typ, MaxIndex, SerialMask) == Reserved {
			t.Fatalf("type %v composed to Reserved", typ)
		}
	}
}

func TestComposeMasksFields(t *testing.T) {
	id := Compose(TypeMutex, MaxIndex+1, SerialMask+1)
	if id.Index() != 0 || id.Serial() != 0 || id.Type() != TypeMutex {
		t.Fatalf("expected masked fields, got %v", id)
	}
}

func TestEqualRequiresAllFields(t *testing.T) {
	base := Compose(TypeQueue, 4, 9)
	cases := []ID{
		Compose(TypeCountSem, 4, 9),
		Compose(TypeQueue, 5, 9),
		Compose(TypeQueue, 4, 10),
	}
	for _, other := range cases {
		if base.Equal(other) {
			t.Errorf("%v should not equal %v", base, other)
		}
	}
	if !base.Equal(Compose(TypeQueue, 4, 9)) {
		t.Error("identical fields should compare equal")
	}
}

func TestNextSerialWraps(t *testing.T) {
	if got := NextSerial(SerialMask); got != 0 {
		t.Fatalf("NextSerial(max) = %d, want 0", got)
	}
	if got := NextSerial(7); got != 8 {
		t.Fatalf("NextSerial(7) = %d, want 8", got)
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{Undefined, "undefined"},
		{Reserved, "reserved"},
		{Compose(TypeTask, 3, 17), "task:3#17"},
	}
	for _, tt := range tests {
		if got := tt.id.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range Types() {
		got, ok := ParseType(typ.String())
		if !ok || got != typ {
			t.Fatalf("ParseType(%q) = %v, %v", typ.String(), got, ok)
		}
	}
	if _, ok := ParseType("undefined"); ok {
		t.Fatal("undefined should not parse as a valid type")
	}
	if TypeUndefined.Valid() || NumTypes.Valid() {
		t.Fatal("sentinel types must not be valid")
	}
}
