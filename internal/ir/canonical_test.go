package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCanonical(t *testing.T, v Value) string {
	t.Helper()
	data, err := MarshalCanonical(v)
	require.NoError(t, err)
	return string(data)
}

func TestMarshalCanonical_Compact(t *testing.T) {
	v := Object{
		"b": List{Int(1), Bool(false), Null{}},
		"a": Object{"z": String("1"), "y": String("2")},
	}
	assert.Equal(t, `{"a":{"y":"2","z":"1"},"b":[1,false,null]}`, mustCanonical(t, v))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	assert.Equal(t, `"<b>&</b>"`, mustCanonical(t, String("<b>&</b>")))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	assert.Equal(t, "\"a\u2028b\u2029c\"", mustCanonical(t, String("a\u2028b\u2029c")))
}

func TestMarshalCanonical_Escaping(t *testing.T) {
	assert.Equal(t, `"q\"b\\n\nt\tc\u0001"`, mustCanonical(t, String("q\"b\\n\nt\tc\x01")))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"
	assert.Equal(t, mustCanonical(t, String(composed)), mustCanonical(t, String(decomposed)))
	assert.Equal(t, `{"`+composed+`":1}`, mustCanonical(t, Object{decomposed: Int(1)}))
}

func TestMarshalCanonical_NFCKeyCollision(t *testing.T) {
	_, err := MarshalCanonical(Object{"e\u0301": Int(1), "\u00e9": Int(2)})
	assert.Error(t, err)
}

func TestMarshalCanonical_RejectsNilValue(t *testing.T) {
	_, err := MarshalCanonical(List{nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[0]")
}

func TestMarshalCanonical_InvalidUTF8(t *testing.T) {
	assert.Equal(t, "\"a\uFFFDb\"", mustCanonical(t, String("a\xffb")))
}

func TestHash_DomainSeparated(t *testing.T) {
	v := Object{"root": String("main")}

	snap, err := SnapshotHash(v)
	require.NoError(t, err)
	trace, err := TraceHash(v)
	require.NoError(t, err)

	assert.Len(t, snap, 64)
	assert.NotEqual(t, snap, trace)

	again, err := SnapshotHash(Object{"root": String("main")})
	require.NoError(t, err)
	assert.Equal(t, snap, again)
}

func FuzzMarshalCanonical_Idempotent(f *testing.F) {
	f.Add("plain")
	f.Add("e\u0301")
	f.Add("\u2028<&>\x00")
	f.Fuzz(func(t *testing.T, s string) {
		first, err := MarshalCanonical(Object{s: String(s)})
		if err != nil {
			return
		}
		second, err := MarshalCanonical(Object{s: String(s)})
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}
