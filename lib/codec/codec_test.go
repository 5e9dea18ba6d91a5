package codec

import (
	"reflect"
	"strings"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type person struct {
	Name    string            `json:"name" yaml:"name"`
	Age     int               `json:"age" yaml:"age"`
	Tags    []string          `json:"tags" yaml:"tags"`
	Friends map[string]string `json:"friends" yaml:"friends"`
}

func TestStructCodecs(t *testing.T) {
	in := person{
		Name:    "Ada",
		Age:     36,
		Tags:    []string{"math", "engines"},
		Friends: map[string]string{"charles": "babbage"},
	}

	for _, c := range []ICodec{JSON, Gob, YAML} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Encode(in)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			var out person
			if err := c.Decode(data, &out); err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !reflect.DeepEqual(in, out) {
				t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
			}

			// decoding into a pointer variable allocates the value
			var ptr *person
			if err := c.Decode(data, &ptr); err != nil {
				t.Fatalf("Decode into **person failed: %v", err)
			}
			if ptr == nil || !reflect.DeepEqual(in, *ptr) {
				t.Errorf("round trip through pointer mismatch: got %+v", ptr)
			}
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	for _, c := range []ICodec{JSON, Gob, YAML} {
		t.Run(c.Name(), func(t *testing.T) {
			var out person
			if err := c.Decode([]byte("\x00\x01{not valid"), &out); err == nil {
				t.Errorf("expected an error")
			} else if !strings.HasPrefix(err.Error(), c.Name()) {
				t.Errorf("error should name the codec: %v", err)
			}
		})
	}
}

func TestProtoCodecs(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{"name": "Ada", "age": 36})
	if err != nil {
		t.Fatalf("failed to build message: %v", err)
	}

	for _, c := range []ICodec{Proto, ProtoJSON} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Encode(in)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			// direct message
			out := &structpb.Struct{}
			if err := c.Decode(data, out); err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !proto.Equal(in, out) {
				t.Errorf("round trip mismatch: got %v", out)
			}

			// pointer to a nil message pointer, as a Book[*structpb.Struct] does it
			var ptr *structpb.Struct
			if err := c.Decode(data, &ptr); err != nil {
				t.Fatalf("Decode into **Struct failed: %v", err)
			}
			if !proto.Equal(in, ptr) {
				t.Errorf("round trip through pointer mismatch: got %v", ptr)
			}
		})
	}
}

func TestProtoRejectsPlainValues(t *testing.T) {
	if _, err := Proto.Encode(person{Name: "x"}); err == nil {
		t.Errorf("expected Encode of a non-message to fail")
	}

	data, err := Proto.Encode(wrapperspb.String("hello"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var s string
	if err := Proto.Decode(data, &s); err == nil {
		t.Errorf("expected Decode into *string to fail")
	}
	var p *person
	if err := Proto.Decode(data, &p); err == nil {
		t.Errorf("expected Decode into **person to fail")
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "JSON", " gob ", "yaml", "proto", "protojson"} {
		c, err := ByName(name)
		if err != nil {
			t.Errorf("ByName(%q) failed: %v", name, err)
			continue
		}
		if c.Name() != strings.ToLower(strings.TrimSpace(name)) {
			t.Errorf("ByName(%q) returned %s", name, c.Name())
		}
	}

	if _, err := ByName("xml"); err == nil || !strings.Contains(err.Error(), "json") {
		t.Errorf("expected an error listing the available codecs, got %v", err)
	}
}

func TestNamesSorted(t *testing.T) {
	want := []string{"gob", "json", "proto", "protojson", "yaml"}
	if got := Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}
