package features

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/char5742/scroll-offset-reader/internal/consts"
	"github.com/char5742/scroll-offset-reader/internal/types"
	"github.com/char5742/scroll-offset-reader/internal/utils"
	"golang.org/x/sys/unix"
)

// 一度の読み込みで受け取るイベントの最大数
const readBatchSize = 64

// マウス入力を扱うインターフェース
type Mouse interface {
	// 入力イベントを読み込む。timeout の間にイベントがなければ空のスライスを返す
	ReadEvents(timeout time.Duration) ([]types.Event, error)
	// マウス操作を専有する
	Grab() error
	// マウス操作の専有を解除する
	Release() error
	Close() error
}

type virtualMouse struct {
	file    *os.File
	fd      int
	buf     []byte
	grabbed bool
}

// 指定されたパスでマウスを作成する
func CreateMouse(path string) (Mouse, error) {
	f, err := os.OpenFile(path, syscall.O_RDONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("failed to open device file: %w", err)
	}
	return &virtualMouse{
		file: f,
		fd:   int(f.Fd()),
		buf:  make([]byte, types.EventSize*readBatchSize),
	}, nil
}

func (m *virtualMouse) ReadEvents(timeout time.Duration) ([]types.Event, error) {
	fds := []unix.PollFd{{Fd: int32(m.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to poll device: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return nil, fmt.Errorf("device is no longer available (revents=%#x)", fds[0].Revents)
	}

	k, err := unix.Read(m.fd, m.buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read device: %w", err)
	}
	return types.DecodeEvents(m.buf[:k]), nil
}

func (m *virtualMouse) Grab() error {
	if m.grabbed {
		return nil
	}
	if err := utils.IOCtl(m.file, consts.EVIOCGRAB, 1); err != nil {
		return fmt.Errorf("failed to grab device: %w", err)
	}
	m.grabbed = true
	return nil
}

func (m *virtualMouse) Release() error {
	if !m.grabbed {
		return nil
	}
	if err := utils.IOCtl(m.file, consts.EVIOCGRAB, 0); err != nil {
		return fmt.Errorf("failed to release device: %w", err)
	}
	m.grabbed = false
	return nil
}

func (m *virtualMouse) Close() error {
	_ = m.Release()
	return m.file.Close()
}
