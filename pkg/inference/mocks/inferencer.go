package mocks

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/mock"

	"taleweaver/pkg/inference"
)

// MockInferencer is a mock type for the inference.Inferencer type
type MockInferencer struct {
	mock.Mock
	name string
}

// Name returns the name given to NewMockInferencer. It is not recorded.
func (_m *MockInferencer) Name() string {
	return _m.name
}

// Infer provides a mock function with given fields: ctx, params, system, user
func (_m *MockInferencer) Infer(ctx context.Context, params *openai.ChatCompletionNewParams, system string, user string) (string, error) {
	ret := _m.Called(ctx, params, system, user)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, *openai.ChatCompletionNewParams, string, string) string); ok {
		r0 = rf(ctx, params, system, user)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(string)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, *openai.ChatCompletionNewParams, string, string) error); ok {
		r1 = rf(ctx, params, system, user)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Verify accepts any non-empty result. It is not recorded.
func (_m *MockInferencer) Verify(ctx context.Context, result string) (bool, error) {
	if result == "" {
		return false, inference.ErrEmpty
	}
	return true, nil
}

// NewMockInferencer creates a new instance of MockInferencer. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockInferencer(t interface {
	mock.TestingT
	Cleanup(func())
}, name string) *MockInferencer {
	m := &MockInferencer{name: name}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ inference.Inferencer = (*MockInferencer)(nil)
