package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/qvm-dev/qvm/internal/disk"
	"github.com/qvm-dev/qvm/internal/qemu"
	"github.com/qvm-dev/qvm/internal/vmconfig"
	"github.com/qvm-dev/qvm/pkg/api"
)

// Error kinds. Every error returned by Manager matches exactly one of these
// with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
	ErrVMRunning      = errors.New("vm is running")
	ErrValidation     = errors.New("invalid configuration")
	ErrParse          = vmconfig.ErrParse
	ErrSchema         = vmconfig.ErrSchema
	ErrIO             = errors.New("i/o failure")

	ErrBinaryNotFound   = qemu.ErrBinaryNotFound
	ErrFirmwareNotFound = qemu.ErrFirmwareNotFound
)

// Error is a failed operation on one VM.
type Error struct {
	Op string
	VM string
	// Kind is one of the Err* values above.
	Kind error
	// Resource and Path name the offending file, if any.
	Resource string
	Path     string
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q: ", e.Op, e.VM)
	if e.Resource != "" || e.Path != "" {
		fmt.Fprintf(&b, "%s: ", strings.TrimSpace(e.Resource+" "+e.Path))
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(e.Kind.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op, vm string, kind error) *Error {
	return &Error{Op: op, VM: vm, Kind: kind}
}

// wrap classifies err from a lower layer.
func wrap(op, vm string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Op: op, VM: vm, Kind: kindOf(err), Err: err}
}

func kindOf(err error) error {
	var ve *api.ValidationError
	switch {
	case errors.Is(err, vmconfig.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, vmconfig.ErrParse):
		return ErrParse
	case errors.Is(err, vmconfig.ErrSchema):
		return ErrSchema
	case errors.As(err, &ve):
		return ErrValidation
	case errors.Is(err, qemu.ErrBinaryNotFound), errors.Is(err, disk.ErrToolNotFound):
		return ErrBinaryNotFound
	case errors.Is(err, qemu.ErrFirmwareNotFound):
		return ErrFirmwareNotFound
	}
	return ErrIO
}
