// Package wire — формат кадров между rtclient и rthub. Каждый кадр — одно
// бинарное WebSocket-сообщение с protobuf-сериализованным
// google.protobuf.Struct, так что значения дерева (объекты, строки, числа,
// bool, null) передаются без своей схемы.
//
// Клиент -> сервер: get, set, subscribe, unsubscribe (Seq обязателен).
// Сервер -> клиент: result (ответ на Seq), event (изменение по подписке Sub).
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type Op string

const (
	OpGet         Op = "get"
	OpSet         Op = "set"
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
	OpResult      Op = "result"
	OpEvent       Op = "event"
)

type Frame struct {
	Op    Op
	Seq   uint32
	Sub   uint32
	Path  string
	Value any
	Error string
}

var ErrBadFrame = errors.New("wire: bad frame")

// Encode сериализует кадр. Value должен быть значением дерева
// (см. store.Normalize).
func Encode(f Frame) ([]byte, error) {
	m := map[string]any{
		"op":    string(f.Op),
		"value": f.Value,
	}
	if f.Seq != 0 {
		m["seq"] = float64(f.Seq)
	}
	if f.Sub != 0 {
		m["sub"] = float64(f.Sub)
	}
	if f.Path != "" {
		m["path"] = f.Path
	}
	if f.Error != "" {
		m["error"] = f.Error
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", f.Op, err)
	}
	return proto.Marshal(s)
}

func Decode(data []byte) (Frame, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	m := s.AsMap()

	op, _ := m["op"].(string)
	if op == "" {
		return Frame{}, fmt.Errorf("%w: missing op", ErrBadFrame)
	}
	f := Frame{Op: Op(op), Value: m["value"]}
	f.Path, _ = m["path"].(string)
	f.Error, _ = m["error"].(string)
	if v, ok := m["seq"].(float64); ok {
		f.Seq = uint32(v)
	}
	if v, ok := m["sub"].(float64); ok {
		f.Sub = uint32(v)
	}
	return f, nil
}
