package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrProvider      = errors.New("provider error")
	ErrBufferTimeout = errors.New("initial buffer timeout")
)

func wrapProvider(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}
