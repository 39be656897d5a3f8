package llm

import (
	"io"
	"unicode/utf8"

	"github.com/pmeller/verba/errors"
)

// JSONStream incrementally scans a byte stream for complete top-level JSON
// objects and passes each one to handle as soon as its closing brace arrives.
// Chunk boundaries may fall anywhere, including inside a multi-byte character
// or an escape sequence. Braces inside string literals never affect nesting.
//
// The scan buffer grows with the largest in-flight value; an input that never
// closes its braces grows it without bound.
//
// A handle error aborts the scan and is returned as-is. Malformed UTF-8 is
// fatal for the stream.
func JSONStream(r io.Reader, handle func(frame string) error) error {
	var (
		buffer  []rune
		pending []byte // incomplete UTF-8 sequence carried across chunks
		cursor  int
		start   int
		depth   []rune // open '{' and '[' runes, innermost last
		quoting bool
		escape  bool
	)
	chunk := make([]byte, 4096)
	for {
		n, readErr := r.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			runes, rest, err := decodeRunes(pending)
			if err != nil {
				return err
			}
			buffer = append(buffer, runes...)
			pending = rest
		}

		for i := cursor; i < len(buffer); i++ {
			ch := buffer[i]
			if quoting {
				if ch == '\\' {
					escape = !escape
				} else {
					if !escape && ch == '"' {
						quoting = false
					}
					escape = false
				}
				continue
			}
			switch ch {
			case '"':
				quoting = true
				escape = false
			case '{':
				if len(depth) == 0 {
					start = i
				}
				depth = append(depth, ch)
			case '[':
				// Only tracked inside a candidate object; a top-level
				// array is not a frame boundary in this protocol.
				if len(depth) > 0 {
					depth = append(depth, ch)
				}
			case '}':
				if len(depth) == 0 {
					continue
				}
				depth = depth[:len(depth)-1]
				if len(depth) == 0 {
					if err := handle(string(buffer[start : i+1])); err != nil {
						return err
					}
				}
			case ']':
				if len(depth) > 0 {
					depth = depth[:len(depth)-1]
				}
			}
		}
		cursor = len(buffer)

		if readErr != nil {
			if readErr == io.EOF {
				if len(pending) > 0 {
					return errors.New("stream ended inside a multi-byte character")
				}
				return nil
			}
			return readErr
		}
	}
}

// decodeRunes decodes the complete UTF-8 runes at the front of data and
// returns any trailing incomplete sequence for the next chunk. Invalid byte
// sequences are an error.
func decodeRunes(data []byte) ([]rune, []byte, error) {
	var runes []rune
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			if !utf8.FullRune(data) {
				// Incomplete trailing sequence, wait for more bytes.
				rest := make([]byte, len(data))
				copy(rest, data)
				return runes, rest, nil
			}
			return nil, nil, errors.New("malformed UTF-8 in stream")
		}
		runes = append(runes, r)
		data = data[size:]
	}
	return runes, nil, nil
}
