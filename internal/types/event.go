package types

import (
	"encoding/binary"
	"fmt"
)

// EventSize は input_event 構造体のバイト数（64bit Linux）
const EventSize = 24

// Event は入力イベントを表す構造体
type Event struct {
	Sec   int64  // イベント発生時刻（秒）
	Usec  int64  // イベント発生時刻（マイクロ秒）
	Type  uint16 // イベントタイプ
	Code  uint16 // イベントコード
	Value int32  // イベント値
}

// DecodeEvent はリトルエンディアンの input_event をデコードする
func DecodeEvent(buf []byte) (Event, error) {
	var e Event
	if len(buf) < EventSize {
		return e, fmt.Errorf("short input event: %d bytes", len(buf))
	}

	e.Sec = int64(binary.LittleEndian.Uint64(buf[0:8]))
	e.Usec = int64(binary.LittleEndian.Uint64(buf[8:16]))
	e.Type = binary.LittleEndian.Uint16(buf[16:18])
	e.Code = binary.LittleEndian.Uint16(buf[18:20])
	e.Value = int32(binary.LittleEndian.Uint32(buf[20:24]))
	return e, nil
}

// DecodeEvents はバッファに含まれるすべての完全なイベントをデコードする
func DecodeEvents(buf []byte) []Event {
	events := make([]Event, 0, len(buf)/EventSize)
	for len(buf) >= EventSize {
		e, _ := DecodeEvent(buf[:EventSize])
		events = append(events, e)
		buf = buf[EventSize:]
	}
	return events
}
