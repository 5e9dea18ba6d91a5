// Package codec provides the encode/decode pairs a book uses to turn typed
// values into the bytes handed to storage.
//
// Available codecs: json (default), gob, yaml, proto and protojson. The proto
// codecs only accept values implementing proto.Message. Select one by name with
// ByName, e.g. from the --codec flag.
package codec
