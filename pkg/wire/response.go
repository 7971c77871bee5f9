package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/deploything/agent/pkg/types"
)

// CommandResponse fields
const (
	responseStarted protowire.Number = 1
	responseStopped protowire.Number = 2
	responseError   protowire.Number = 3

	// ContainerStarted.container_id, ContainerStopped.container_id and
	// CommandError.message all use field 1
	responseValue protowire.Number = 1
)

// EncodeResponse encodes a response as a CommandResponse
func EncodeResponse(r types.Response) ([]byte, error) {
	switch v := r.(type) {
	case types.StartedResponse:
		return appendMessage(nil, responseStarted, appendString(nil, responseValue, v.ContainerID)), nil
	case types.StoppedResponse:
		return appendMessage(nil, responseStopped, appendString(nil, responseValue, v.ContainerID)), nil
	case types.ErrorResponse:
		return appendMessage(nil, responseError, appendString(nil, responseValue, v.Message)), nil
	default:
		return nil, fmt.Errorf("cannot encode response of type %T", r)
	}
}

// DecodeResponse decodes a CommandResponse payload
func DecodeResponse(b []byte) (types.Response, error) {
	var resp types.Response

	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != responseStarted && num != responseStopped && num != responseError {
			return 0, errSkip
		}
		v, n, err := consumeBytes(num, typ, b)
		if err != nil {
			return 0, err
		}
		var value string
		err = walk(v, func(inner protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if inner != responseValue {
				return 0, errSkip
			}
			s, n, err := consumeString(inner, typ, b)
			value = s
			return n, err
		})
		if err != nil {
			return 0, err
		}

		switch num {
		case responseStarted:
			resp = types.StartedResponse{ContainerID: value}
		case responseStopped:
			resp = types.StoppedResponse{ContainerID: value}
		case responseError:
			resp = types.ErrorResponse{Message: value}
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: command response has no response set", ErrMalformed)
	}
	return resp, nil
}
