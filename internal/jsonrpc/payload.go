package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/imtaco/room-relay/internal/errors"
	"github.com/imtaco/room-relay/internal/utils"
)

type messageType int

const (
	typeUnknown messageType = iota
	typeRequst
	typeResponse
	typeNotification

	jsonRPCVersion = "2.0"
)

type Request struct {
	ID     *ID              `json:"id"`
	Method string           `json:"method"`
	Params *json.RawMessage `json:"params,omitempty"`
}

type message struct {
	JSONRPC string `json:"jsonrpc,omitempty"`
	ID      *ID    `json:"id,omitempty"`
	// request fields
	Method *string          `json:"method,omitempty"`
	Params *json.RawMessage `json:"params,omitempty"`
	// response fields
	Result *json.RawMessage `json:"result,omitempty"`
	Error  *Error           `json:"error,omitempty"`

	msgType messageType `json:"-"`
}

// validate classifies m. A method with a result or error, or a response
// without an id, is unknown.
func (m *message) validate() {
	hasReply := m.Result != nil || m.Error != nil
	switch {
	case m.Method != nil && hasReply:
		m.msgType = typeUnknown
	case m.Method != nil && m.ID.IsSet():
		m.msgType = typeRequst
	case m.Method != nil:
		m.msgType = typeNotification
	case hasReply && m.ID.IsSet():
		m.msgType = typeResponse
	default:
		m.msgType = typeUnknown
	}
}

func newNotificationMessage(method string, params any) (*message, error) {
	bs, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(ErrCodeParseError, err, "failed to marshal params")
	}
	raw := json.RawMessage(bs)
	return &message{
		JSONRPC: jsonRPCVersion,
		Method:  &method,
		Params:  &raw,
		msgType: typeNotification,
	}, nil
}

func newResponseMessage(id *ID, result any, respErr *Error) (*message, error) {
	var resultRaw *json.RawMessage
	if respErr == nil {
		bs, err := json.Marshal(result)
		if err != nil {
			return nil, errors.Wrap(ErrCodeParseError, err, "failed to marshal result")
		}
		resultRaw = utils.Ptr(json.RawMessage(bs))
	}
	return &message{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Result:  resultRaw,
		Error:   respErr,
		msgType: typeResponse,
	}, nil
}

// ID is a JSON-RPC request id, a string or an unsigned integer. Zero is a
// valid id; only an absent or null id makes a notification.
type ID struct {
	Num      uint64
	Str      string
	isString bool
	set      bool
}

func NewStringID(id string) *ID {
	return &ID{Str: id, isString: true, set: true}
}

func NewIntID(id uint64) *ID {
	return &ID{Num: id, set: true}
}

func (id *ID) IsSet() bool {
	return id != nil && id.set
}

func (id *ID) String() string {
	if id.isString {
		return strconv.Quote(id.Str)
	}
	return strconv.FormatUint(id.Num, 10)
}

func (id *ID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return json.Marshal(id.Str)
	}
	return json.Marshal(id.Num)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ID{}
		return nil
	}
	var vStr string
	if err := json.Unmarshal(data, &vStr); err == nil {
		*id = ID{Str: vStr, isString: true, set: true}
		return nil
	}
	var vInt uint64
	if err := json.Unmarshal(data, &vInt); err != nil {
		return err
	}
	*id = ID{Num: vInt, set: true}
	return nil
}

// Error represents a JSON-RPC response error.
type Error struct {
	Code    int64            `json:"code"`
	Message string           `json:"message"`
	Data    *json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error: code %v, message: %s", e.Code, e.Message)
}

// http://www.jsonrpc.org/specification#error_object.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)
