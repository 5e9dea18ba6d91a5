package codec

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// protoMarshaler is the pair of functions a protobuf based codec differs in
type protoMarshaler struct {
	name      string
	marshal   func(proto.Message) ([]byte, error)
	unmarshal func([]byte, proto.Message) error
}

// Proto encodes protobuf messages in the binary wire format.
// Values must implement proto.Message.
var Proto ICodec = protoMarshaler{
	name:      "proto",
	marshal:   proto.Marshal,
	unmarshal: proto.Unmarshal,
}

// ProtoJSON encodes protobuf messages in their canonical JSON mapping.
var ProtoJSON ICodec = protoMarshaler{
	name:      "protojson",
	marshal:   protojson.Marshal,
	unmarshal: protojson.Unmarshal,
}

func (c protoMarshaler) Name() string { return c.name }

func (c protoMarshaler) Encode(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%s encode: %T is not a proto.Message", c.name, v)
	}
	data, err := c.marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%s encode: %w", c.name, err)
	}
	return data, nil
}

// Decode accepts a message (*M) or a pointer to a message pointer (**M). The latter
// is what a Book[*M] passes in, a fresh message is allocated for it.
func (c protoMarshaler) Decode(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		if err := c.unmarshal(data, msg); err != nil {
			return fmt.Errorf("%s decode: %w", c.name, err)
		}
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Pointer {
		return fmt.Errorf("%s decode: %T is neither a proto.Message nor a pointer to one", c.name, v)
	}
	fresh := reflect.New(rv.Elem().Type().Elem())
	msg, ok := fresh.Interface().(proto.Message)
	if !ok {
		return fmt.Errorf("%s decode: %T is neither a proto.Message nor a pointer to one", c.name, v)
	}
	if err := c.unmarshal(data, msg); err != nil {
		return fmt.Errorf("%s decode: %w", c.name, err)
	}
	rv.Elem().Set(fresh)
	return nil
}
