package mocks

import (
	"testing"

	"go.uber.org/mock/gomock"
)

// NewMockTransportForTest creates a MockTransport whose controller is finished on cleanup.
func NewMockTransportForTest(t *testing.T) (*MockTransport, *gomock.Controller) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockTransport(ctrl), ctrl
}
