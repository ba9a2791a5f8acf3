//go:build !(windows && amd64)

package vdpservice

import (
	"log/slog"

	"github.com/zhubert/eagleray-sideband/vdp"
)

// Service is unavailable on this platform.
type Service struct{}

var _ vdp.Binding = (*Service)(nil)

// Open always fails on this platform.
func Open(path string, log *slog.Logger) (*Service, error) {
	return nil, ErrUnsupported
}

func (s *Service) Init(pluginName string) (vdp.Query, vdp.ChannelHandle, error) {
	return nil, 0, ErrUnsupported
}
