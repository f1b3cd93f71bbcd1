package system

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockExecutor is a testify based Executor double. Tests register expected
// commands with On("Run", ...) and canned output.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Run(ctx context.Context, cmd *Command) ([]byte, error) {
	args := m.Called(ctx, cmd)
	var out []byte
	if v := args.Get(0); v != nil {
		out = v.([]byte)
	}
	return out, args.Error(1)
}

// MockSyscalls records mount/umount calls and always succeeds unless an
// error is injected.
type MockSyscalls struct {
	MountErr   error
	UnmountErr error

	Mounts   []MountCall
	Unmounts []string
}

// MountCall captures the arguments of one Mount invocation.
type MountCall struct {
	Source string
	Target string
	Fstype string
	Flags  uintptr
	Data   string
}

func (m *MockSyscalls) Mount(source, target, fstype string, flags uintptr, data string) error {
	if m.MountErr != nil {
		return m.MountErr
	}
	m.Mounts = append(m.Mounts, MountCall{source, target, fstype, flags, data})
	return nil
}

func (m *MockSyscalls) Unmount(target string, flags int) error {
	if m.UnmountErr != nil {
		return m.UnmountErr
	}
	m.Unmounts = append(m.Unmounts, target)
	return nil
}
