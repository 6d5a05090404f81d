package json

import jsoniter "github.com/json-iterator/go"

var (
	// JSON is the instance of jsoniter.API that should be used throughout the codebase
	JSON = jsoniter.ConfigCompatibleWithStandardLibrary

	// Marshal is a shorthand for JSON.Marshal
	Marshal = JSON.Marshal

	// Unmarshal is a shorthand for JSON.Unmarshal
	Unmarshal = JSON.Unmarshal

	// MarshalToString is a shorthand for JSON.MarshalToString; the wire
	// codec builds frame bodies from it without an extra copy
	MarshalToString = JSON.MarshalToString

	// UnmarshalFromString is a shorthand for JSON.UnmarshalFromString
	UnmarshalFromString = JSON.UnmarshalFromString

	// NewDecoder is a shorthand for JSON.NewDecoder
	NewDecoder = JSON.NewDecoder

	// NewEncoder is a shorthand for JSON.NewEncoder
	NewEncoder = JSON.NewEncoder

	// Valid is a shorthand for JSON.Valid
	Valid = JSON.Valid
)
