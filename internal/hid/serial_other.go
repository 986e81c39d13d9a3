//go:build !linux

package hid

import (
	"errors"
	"os"
)

func openSerial(path string, baud int) (*os.File, error) {
	return nil, errors.New("serial bridge is only supported on linux")
}
