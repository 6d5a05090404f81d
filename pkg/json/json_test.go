package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginPayload struct {
	Name     string `json:"NOM"`
	Password string `json:"PW"`
	Language string `json:"LANG"`
}

func TestMarshalUnmarshal(t *testing.T) {
	original := loginPayload{
		Name:     "lord_cofresi",
		Password: "hunter2",
		Language: "en",
	}

	data, err := Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"NOM":"lord_cofresi"`)
	assert.Contains(t, string(data), `"LANG":"en"`)

	var decoded loginPayload
	err = Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)

	err = Unmarshal([]byte(`{"invalid`), &decoded)
	assert.Error(t, err)
}

func TestStringHelpers(t *testing.T) {
	s, err := MarshalToString(map[string]int{"CD": 37})
	require.NoError(t, err)
	assert.Equal(t, `{"CD":37}`, s)

	var decoded map[string]int
	require.NoError(t, UnmarshalFromString(s, &decoded))
	assert.Equal(t, 37, decoded["CD"])

	assert.True(t, Valid([]byte(`[1,2,3]`)))
	assert.False(t, Valid([]byte(`%xt%zone%lli%`)))
}

func TestEncoderDecoder(t *testing.T) {
	original := loginPayload{Name: "scout", Language: "de"}

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(original))

	var decoded loginPayload
	require.NoError(t, NewDecoder(bytes.NewReader(buf.Bytes())).Decode(&decoded))
	assert.Equal(t, original, decoded)

	err := NewDecoder(bytes.NewReader([]byte(`{"invalid`))).Decode(&decoded)
	assert.Error(t, err)
}

func TestNilHandling(t *testing.T) {
	data, err := Marshal(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	var result interface{}
	err = Unmarshal([]byte("null"), &result)
	require.NoError(t, err)
	assert.Nil(t, result)
}
