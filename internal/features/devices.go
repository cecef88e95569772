package features

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// 入力デバイスの一覧を探すディレクトリ
const inputByIDDir = "/dev/input/by-id"

type Device struct {
	Name string     `json:"name"`
	Path string     `json:"path"`
	Type DeviceType `json:"type"`
}

// デバイスタイプを表す列挙型
type DeviceType int

const (
	DeviceTypeKeyboard DeviceType = iota
	DeviceTypeMouse
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeKeyboard:
		return "keyboard"
	case DeviceTypeMouse:
		return "mouse"
	default:
		return "unknown"
	}
}

// ScanDevices は現在接続されている入力デバイスのリストを返します
func ScanDevices() ([]Device, error) {
	return scanDevicesIn(inputByIDDir)
}

func scanDevicesIn(dir string) ([]Device, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var devices []Device
	for _, entry := range entries {
		// eventが含まれない場合はスキップ
		if !strings.Contains(entry.Name(), "event") {
			continue
		}
		fullPath := filepath.Join(dir, entry.Name())
		realPath, err := os.Readlink(fullPath)
		if err != nil {
			continue
		}

		// 絶対パスを構築
		absPath := realPath
		if !filepath.IsAbs(realPath) {
			absPath = filepath.Join(filepath.Dir(dir), filepath.Base(realPath))
		}

		switch {
		case strings.Contains(entry.Name(), "mouse"):
			devices = append(devices, Device{Name: entry.Name(), Path: absPath, Type: DeviceTypeMouse})
		case strings.Contains(entry.Name(), "kbd"):
			devices = append(devices, Device{Name: entry.Name(), Path: absPath, Type: DeviceTypeKeyboard})
		}
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// FindMouse は優先デバイス名に一致するマウス、なければ最初のマウスを返す
func FindMouse(devices []Device, preferred string) (Device, bool) {
	var first *Device
	for i := range devices {
		device := &devices[i]
		if device.Type != DeviceTypeMouse {
			continue
		}
		if preferred != "" && device.Name == preferred {
			return *device, true
		}
		if first == nil {
			first = device
		}
	}
	if first == nil {
		return Device{}, false
	}
	return *first, true
}
