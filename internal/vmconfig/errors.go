package vmconfig

import "errors"

var (
	// ErrNotFound means the VM directory has no vm.json.
	ErrNotFound = errors.New("configuration not found")
	// ErrParse means vm.json is not valid JSON.
	ErrParse = errors.New("malformed configuration")
	// ErrSchema means vm.json is JSON but does not match a supported layout.
	ErrSchema = errors.New("unsupported configuration schema")
)
