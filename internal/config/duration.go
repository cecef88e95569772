package config

import (
	"fmt"
	"strconv"
	"time"
)

// Duration は "250ms" のような文字列で読み書きする時間間隔
// TOML と JSON の両方で同じ表記になる
type Duration time.Duration

// Std は time.Duration として返す
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText は time.ParseDuration の表記を受け付ける
// 単位のない整数はナノ秒として扱う
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("invalid duration %q", s)
}
