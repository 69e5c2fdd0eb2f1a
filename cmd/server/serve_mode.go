package main

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidServeMode = errors.New("invalid serve mode")

// ServeMode selects which HTTP surfaces one process registers.
type ServeMode string

const (
	ServeModeAll     ServeMode = "all"
	ServeModeChat    ServeMode = "chat"
	ServeModePublish ServeMode = "publish"
	ServeModeSites   ServeMode = "sites"
)

func ParseServeMode(rawInput string) (ServeMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawInput))
	if normalized == "" {
		return ServeModeAll, nil
	}

	mode := ServeMode(normalized)
	switch mode {
	case ServeModeAll, ServeModeChat, ServeModePublish, ServeModeSites:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidServeMode, rawInput)
	}
}

func (mode ServeMode) ServesChat() bool {
	return mode == ServeModeAll || mode == ServeModeChat
}

func (mode ServeMode) ServesPublish() bool {
	return mode == ServeModeAll || mode == ServeModePublish
}

func (mode ServeMode) ServesSites() bool {
	return mode == ServeModeAll || mode == ServeModeSites
}
