package gspro

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
)

// MaxPending bounds how many bytes of an incomplete object a Decoder keeps
// between reads.
const MaxPending = 64 * 1024

var (
	ErrMalformed = errors.New("malformed GSPro payload")
	ErrOptions   = errors.New("ShotDataOptions do not match attached data")
)

// Encode serializes a request as indented UTF-8 JSON. Unset optional fields
// are left out instead of being written as null.
func Encode(request Request) ([]byte, error) {
	if request.BallData != nil && !request.ShotDataOptions.ContainsBallData {
		return nil, fmt.Errorf("%w: BallData present without ContainsBallData", ErrOptions)
	}
	if request.ClubData != nil && !request.ShotDataOptions.ContainsClubData {
		return nil, fmt.Errorf("%w: ClubData present without ContainsClubData", ErrOptions)
	}
	data, err := json.MarshalIndent(request, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return data, nil
}

// Decode parses zero or more JSON objects written back to back in data.
//
// Objects that are valid JSON but do not fit Response are skipped. A
// trailing object cut short by the end of data is returned in rest with a
// nil error. A syntax error stops decoding: the responses before it are
// returned, rest holds the unparsed bytes and err wraps ErrMalformed.
func Decode(data []byte) (responses []Response, rest []byte, err error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	for {
		offset := decoder.InputOffset()
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return responses, nil, nil
			case errors.Is(err, io.ErrUnexpectedEOF):
				return responses, data[offset:], nil
			default:
				return responses, data[offset:], fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}

		var response Response
		if err := json.Unmarshal(raw, &response); err != nil {
			logger.DebugF("Couldn't deserialize %s because %v", raw, err)
			continue
		}
		responses = append(responses, response)
	}
}

// RecoverReady works around GSPro sending its ready notification glued to
// a match-ended message in a way that does not parse. If the raw text still
// carries the ready marker the data is treated as a single 202.
func RecoverReady(raw []byte) (Response, bool) {
	if !bytes.Contains(raw, []byte(ReadyMessage)) {
		return Response{}, false
	}
	return NewResponse(CodeReady, ReadyMessage), true
}

// Decoder de-frames a byte stream, carrying incomplete objects over to the
// next Feed.
type Decoder struct {
	pending []byte
}

// Feed appends p to the pending bytes and returns every complete response.
// On a malformed stream the pending bytes are discarded and returned as
// unparsed so the caller can inspect them.
func (d *Decoder) Feed(p []byte) (responses []Response, unparsed []byte, err error) {
	buf := append(d.pending, p...)
	d.pending = nil

	responses, rest, err := Decode(buf)
	if err != nil {
		return responses, rest, err
	}
	if len(rest) > MaxPending {
		return responses, rest, fmt.Errorf("%w: %d bytes without a complete object", ErrMalformed, len(rest))
	}
	if len(rest) > 0 {
		d.pending = append([]byte(nil), rest...)
	}
	return responses, nil, nil
}

// Pending reports how many bytes are waiting for the rest of an object.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

func (d *Decoder) Reset() {
	d.pending = nil
}
