//go:build headless

package device

import (
	"context"
	"errors"
)

var errHeadless = errors.New("built headless (no audio device support)")

// Oto is unavailable in headless builds; use Clock.
type Oto struct{}

func NewOto(Callback, int, int) (*Oto, error) {
	return nil, errHeadless
}

func (o *Oto) Name() string { return "oto" }

func (o *Oto) Run(context.Context) error {
	return errHeadless
}
