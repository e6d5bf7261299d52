package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ugorji/go/codec"
)

// ErrInvalidJSON is returned when the input is not a single well-formed JSON
// value.
var ErrInvalidJSON = errors.New("invalid json")

// ErrInvalidNumber is returned when a value has no JSON representation, like
// NaN or an infinity.
var ErrInvalidNumber = errors.New("invalid number")

// maxSafeInteger bounds the integers a float64 holds exactly.
const maxSafeInteger = 1 << 53

// The handle is configured once and shared; codec handles are safe for
// concurrent use after their first use.
var jsonHandle = newJSONHandle()

func newJSONHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.HTMLCharsAsIs = true
	jh.Raw = true
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	jh.SliceType = reflect.TypeOf([]interface{}(nil))
	return jh
}

// Decode parses a JSON document into generic values: objects become
// map[string]interface{}, arrays []interface{}, non-negative integers uint64,
// negative integers int64 and other numbers float64. A number is an integer
// when its value is, whatever its notation: 5.0 and 5e0 decode as uint64(5).
func Decode(data []byte) (interface{}, error) {
	if !json.Valid(data) {
		return nil, ErrInvalidJSON
	}

	var v interface{}
	dec := codec.NewDecoderBytes(data, jsonHandle)
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	return normalize(v), nil
}

// normalize turns integral floats into integers, in place.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		for k, e := range x {
			x[k] = normalize(e)
		}
	case []interface{}:
		for i, e := range x {
			x[i] = normalize(e)
		}
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= maxSafeInteger {
			if x < 0 {
				return int64(x)
			}
			return uint64(x)
		}
	}
	return v
}

// CanonicalMarshal encodes v as canonical JSON: object keys sorted, no
// insignificant whitespace, numbers written the way ECMAScript prints them and
// U+2028/U+2029 left unescaped. Struct values are
// encoded through their json tags and then normalised like any other document,
// so two values with the same JSON meaning always yield the same bytes.
func CanonicalMarshal(v interface{}) ([]byte, error) {
	b, err := encode(v)
	if err != nil {
		return nil, err
	}

	switch v.(type) {
	case map[string]interface{}, []interface{}, string, bool, nil,
		uint64, int64, float64:
		return b, nil
	}

	return Canonicalize(b)
}

// Canonicalize re-encodes a JSON document in canonical form.
func Canonicalize(data []byte) ([]byte, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}

	return encode(v)
}

func encode(v interface{}) ([]byte, error) {
	v, err := numbersAsRaw(v)
	if err != nil {
		return nil, err
	}

	var b []byte
	enc := codec.NewEncoderBytes(&b, jsonHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return unescapeSeparators(b), nil
}

// numbersAsRaw copies a generic document, replacing floats with their
// canonical text. Other values are left to the encoder.
func numbersAsRaw(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, e := range x {
			r, err := numbersAsRaw(e)
			if err != nil {
				return nil, err
			}
			m[k] = r
		}
		return m, nil
	case []interface{}:
		l := make([]interface{}, len(x))
		for i, e := range x {
			r, err := numbersAsRaw(e)
			if err != nil {
				return nil, err
			}
			l[i] = r
		}
		return l, nil
	case float64:
		f, err := FormatNumber(x)
		if err != nil {
			return nil, err
		}
		return codec.Raw(f), nil
	}
	return v, nil
}

// FormatNumber writes f the way ECMAScript's Number.prototype.toString does:
// the shortest digits that read back as f, in plain notation when the decimal
// exponent is between -7 and 21 and in exponent notation otherwise.
func FormatNumber(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", ErrInvalidNumber
	}
	if f == 0 {
		return "0", nil
	}

	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}

	// d.ddde±x
	s := strconv.FormatFloat(f, 'e', -1, 64)
	i := strings.IndexByte(s, 'e')
	digits := strings.Replace(s[:i], ".", "", 1)
	exp, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return "", err
	}

	k := len(digits)
	n := exp + 1

	switch {
	case k <= n && n <= 21:
		return sign + digits + strings.Repeat("0", n-k), nil
	case 0 < n && n <= 21:
		return sign + digits[:n] + "." + digits[n:], nil
	case -6 < n && n <= 0:
		return sign + "0." + strings.Repeat("0", -n) + digits, nil
	}

	m := digits[:1]
	if k > 1 {
		m += "." + digits[1:]
	}
	if n-1 < 0 {
		return sign + m + "e-" + strconv.Itoa(1-n), nil
	}
	return sign + m + "e+" + strconv.Itoa(n-1), nil
}

// unescapeSeparators writes U+2028 and U+2029 as themselves. The encoder
// escapes them, and a backslash in its output always starts an escape.
func unescapeSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}

	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' {
			out = append(out, b[i])
			continue
		}
		if i+5 < len(b) && b[i+1] == 'u' && string(b[i+2:i+5]) == "202" &&
			(b[i+5] == '8' || b[i+5] == '9') {
			r := rune(0x2028)
			if b[i+5] == '9' {
				r = 0x2029
			}
			var rb [utf8.UTFMax]byte
			out = append(out, rb[:utf8.EncodeRune(rb[:], r)]...)
			i += 5
			continue
		}
		out = append(out, b[i], b[i+1])
		i++
	}
	return out
}
