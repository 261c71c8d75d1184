// Package krpc implements the bencoded KRPC request/response protocol used
// by the Mainline DHT: message encode/decode (this file) and the
// transaction-id pool that correlates outbound queries with inbound
// responses (transaction.go).
package krpc

import (
	"fmt"

	bencode "github.com/IncSW/go-bencode"
)

// Type is the KRPC message kind carried under the "y" key.
type Type string

const (
	TypeQuery    Type = "q"
	TypeResponse Type = "r"
	TypeError    Type = "e"
)

// Query is a KRPC query method name carried under the "q" key.
type Query string

const (
	Ping         Query = "ping"
	FindNode     Query = "find_node"
	GetPeers     Query = "get_peers"
	AnnouncePeer Query = "announce_peer"
)

// Error codes as defined by BEP-5.
const (
	ErrGeneric       = 201
	ErrServer        = 202
	ErrProtocol      = 203
	ErrMethodUnknown = 204
)

// Message is a decoded KRPC frame. Only the fields relevant to Type are
// populated; Args holds query arguments, R holds response values, and
// ErrorCode/ErrorMsg hold the error pair.
type Message struct {
	TID       string
	Type      Type
	Query     Query
	Args      map[string]interface{}
	R         map[string]interface{}
	ErrorCode int64
	ErrorMsg  string
}

// Decode parses a bencoded KRPC frame. Any decode failure, or a missing "y"
// or "t", is reported as an error — the caller (the dispatcher) is
// responsible for dropping the datagram and penalising the sender; Decode
// itself never guesses at a partial message.
func Decode(raw []byte) (*Message, error) {
	decoded, err := bencode.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("krpc: bencode decode failed: %w", err)
	}
	dict, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("krpc: top-level frame was not a dictionary")
	}

	tidRaw, ok := dict["t"]
	if !ok {
		return nil, fmt.Errorf("krpc: missing transaction id (t)")
	}
	tid, err := coerceString(tidRaw)
	if err != nil {
		return nil, fmt.Errorf("krpc: transaction id: %w", err)
	}

	yRaw, ok := dict["y"]
	if !ok {
		return nil, fmt.Errorf("krpc: missing message type (y)")
	}
	y, err := coerceString(yRaw)
	if err != nil {
		return nil, fmt.Errorf("krpc: message type: %w", err)
	}

	msg := &Message{TID: tid, Type: Type(y)}

	switch msg.Type {
	case TypeQuery:
		qRaw, ok := dict["q"]
		if !ok {
			return nil, fmt.Errorf("krpc: query frame missing q")
		}
		q, err := coerceString(qRaw)
		if err != nil {
			return nil, fmt.Errorf("krpc: query kind: %w", err)
		}
		msg.Query = Query(q)

		argsRaw, ok := dict["a"]
		if !ok {
			return nil, fmt.Errorf("krpc: query frame missing a")
		}
		args, ok := argsRaw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("krpc: query args were not a dictionary")
		}
		msg.Args = args

	case TypeResponse:
		rRaw, ok := dict["r"]
		if !ok {
			return nil, fmt.Errorf("krpc: response frame missing r")
		}
		r, ok := rRaw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("krpc: response r was not a dictionary")
		}
		msg.R = r

	case TypeError:
		eRaw, ok := dict["e"]
		if !ok {
			return nil, fmt.Errorf("krpc: error frame missing e")
		}
		pair, ok := eRaw.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("krpc: error e was not a [code, message] pair")
		}
		code, ok := pair[0].(int64)
		if !ok {
			return nil, fmt.Errorf("krpc: error code was not an integer")
		}
		text, err := coerceString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("krpc: error message: %w", err)
		}
		msg.ErrorCode = code
		msg.ErrorMsg = text

	default:
		return nil, fmt.Errorf("krpc: unknown message type %q", y)
	}

	return msg, nil
}

// coerceString accepts either a []byte or string bencode value, since "t"
// and similar fields arrive as raw byte strings on the wire.
func coerceString(v interface{}) (string, error) {
	switch t := v.(type) {
	case []byte:
		return string(t), nil
	case string:
		return t, nil
	default:
		return "", fmt.Errorf("expected a byte string, got %T", v)
	}
}

// EncodeQuery builds and bencodes a query frame: {t, y:"q", q, a}.
func EncodeQuery(tid string, query Query, args map[string]interface{}) ([]byte, error) {
	frame := map[string]interface{}{
		"t": []byte(tid),
		"y": []byte(TypeQuery),
		"q": []byte(query),
		"a": args,
	}
	return marshal(frame)
}

// EncodeResponse builds and bencodes a response frame: {t, y:"r", r}.
func EncodeResponse(tid string, r map[string]interface{}) ([]byte, error) {
	frame := map[string]interface{}{
		"t": []byte(tid),
		"y": []byte(TypeResponse),
		"r": r,
	}
	return marshal(frame)
}

// EncodeError builds and bencodes an error frame: {t, y:"e", e:[code, msg]}.
func EncodeError(tid string, code int, msg string) ([]byte, error) {
	frame := map[string]interface{}{
		"t": []byte(tid),
		"y": []byte(TypeError),
		"e": []interface{}{int64(code), []byte(msg)},
	}
	return marshal(frame)
}

func marshal(v interface{}) ([]byte, error) {
	out, err := bencode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("krpc: bencode encode failed: %w", err)
	}
	return out, nil
}

// GetBytes extracts a raw byte-string argument (ids, target, info_hash,
// token are all carried this way).
func GetBytes(m map[string]interface{}, key string) ([]byte, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case []byte:
		return t, true
	case string:
		return []byte(t), true
	default:
		return nil, false
	}
}

// GetInt extracts an integer argument.
func GetInt(m map[string]interface{}, key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// GetList extracts a list argument (used for "values").
func GetList(m map[string]interface{}, key string) ([]interface{}, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	list, ok := v.([]interface{})
	return list, ok
}
