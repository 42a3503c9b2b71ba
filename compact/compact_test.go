package compact

import (
	"reflect"
	"testing"
)

func TestEncodeOrdersAndFormats(t *testing.T) {
	r := NewRecord()
	r.Set("compliance_name", "GST GSTR-3B")
	r.Set("new_due_date", "2024-04-25")
	r.Set("is_permanent", false)
	r.Set("retries", int64(3))
	r.Set("weight", 0.5)
	r.Set("tags", []string{"gst", "monthly"})

	got := Encode(r)
	want := "compliance_name:GST GSTR-3B|new_due_date:2024-04-25|is_permanent:false|retries:3|weight:0.5|tags:[gst,monthly]"
	if got != want {
		t.Fatalf("encode mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestEncodeFlattensOneLevel(t *testing.T) {
	sub := NewRecord()
	sub.Set("b", int64(1))
	sub.Set("c", int64(2))
	r := NewRecord()
	r.Set("a", sub)
	if got := Encode(r); got != "a.b:1|a.c:2" {
		t.Fatalf("unexpected flattened encoding %q", got)
	}
}

func TestDecodeCoercion(t *testing.T) {
	cases := []struct {
		in   string
		key  string
		want any
	}{
		{"x:TRUE", "x", true},
		{"x:true", "x", true},
		{"x:False", "x", false},
		{"x:42", "x", int64(42)},
		{"x:-7", "x", int64(-7)},
		{"x:3.14", "x", 3.14},
		{"x:[1,2,3]", "x", []string{"1", "2", "3"}},
		{"x:[a, b, ,c]", "x", []string{"a", "b", "c"}},
		{"x:hello world", "x", "hello world"},
		{"x:12:30", "x", "12:30"},
	}
	for _, tc := range cases {
		r := Decode(tc.in)
		got, ok := r.Get(tc.key)
		if !ok {
			t.Fatalf("decode(%q): key %q missing", tc.in, tc.key)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("decode(%q)=%#v want %#v", tc.in, got, tc.want)
		}
	}
}

func TestDecodeDropsPairsWithoutColon(t *testing.T) {
	r := Decode("a|b:c|d")
	if r.Len() != 1 {
		t.Fatalf("expected single pair, got %d", r.Len())
	}
	if got := r.String("b"); got != "c" {
		t.Fatalf("expected b=c, got %q", got)
	}
}

func TestDecodeNeverFails(t *testing.T) {
	for _, in := range []string{"", "|||", ":", "::", "a:", ".:x", "  ", "no delimiters here"} {
		r := Decode(in)
		if r == nil {
			t.Fatalf("decode(%q) returned nil", in)
		}
	}
	if Decode("").Len() != 0 {
		t.Fatal("empty input should yield empty record")
	}
}

func TestDecodeNestedKeys(t *testing.T) {
	r := Decode("a.b:1|a.c:2")
	sub, ok := r.Sub("a")
	if !ok {
		t.Fatal("expected nested record under a")
	}
	if v, _ := sub.Get("b"); v != int64(1) {
		t.Fatalf("a.b=%v want 1", v)
	}
	if v, _ := sub.Get("c"); v != int64(2) {
		t.Fatalf("a.c=%v want 2", v)
	}
}

func TestRoundTrip(t *testing.T) {
	r := NewRecord()
	r.Set("name", "Income Tax Return")
	r.Set("valid", true)
	r.Set("count", int64(12))
	r.Set("ratio", 0.25)
	r.Set("towns", []string{"alpha", "beta"})
	sub := NewRecord()
	sub.Set("year", "2023-2024")
	r.Set("meta", sub)

	back := Decode(Encode(r))
	if got := back.String("name"); got != "Income Tax Return" {
		t.Fatalf("name=%q", got)
	}
	if !back.Bool("valid") {
		t.Fatal("valid should survive round trip")
	}
	if v, _ := back.Get("count"); v != int64(12) {
		t.Fatalf("count=%v", v)
	}
	if v, _ := back.Get("ratio"); v != 0.25 {
		t.Fatalf("ratio=%v", v)
	}
	if v, _ := back.Get("towns"); !reflect.DeepEqual(v, []string{"alpha", "beta"}) {
		t.Fatalf("towns=%v", v)
	}
	meta, ok := back.Sub("meta")
	if !ok || meta.String("year") != "2023-2024" {
		t.Fatalf("nested meta lost: %v", meta)
	}
}

func TestBoolHelperAcceptsStringForms(t *testing.T) {
	r := NewRecord()
	r.Set("a", "True")
	r.Set("b", "nope")
	if !r.Bool("a") {
		t.Fatal("string True should read as bool")
	}
	if r.Bool("b") || r.Bool("missing") {
		t.Fatal("non-true values must read false")
	}
}
