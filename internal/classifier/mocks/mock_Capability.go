// Package mocks provides test doubles for classifier capabilities.
package mocks

import (
	"context"

	model "github.com/sells-group/envmon/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockCapability is a mock type for the Capability interface.
type MockCapability struct {
	mock.Mock
}

// FeatureNames provides a mock function with no fields
func (_m *MockCapability) FeatureNames() []string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for FeatureNames")
	}

	var r0 []string
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]string)
	}
	return r0
}

// Classes provides a mock function with no fields
func (_m *MockCapability) Classes() []string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Classes")
	}

	var r0 []string
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]string)
	}
	return r0
}

// Predict provides a mock function with given fields: ctx, v
func (_m *MockCapability) Predict(ctx context.Context, v model.FeatureVector) (int, error) {
	ret := _m.Called(ctx, v)

	if len(ret) == 0 {
		panic("no return value specified for Predict")
	}

	var r0 int
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.FeatureVector) (int, error)); ok {
		return rf(ctx, v)
	}
	r0 = ret.Get(0).(int)
	r1 = ret.Error(1)

	return r0, r1
}

// PredictProbabilities provides a mock function with given fields: ctx, v
func (_m *MockCapability) PredictProbabilities(ctx context.Context, v model.FeatureVector) ([]float64, error) {
	ret := _m.Called(ctx, v)

	if len(ret) == 0 {
		panic("no return value specified for PredictProbabilities")
	}

	var r0 []float64
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.FeatureVector) ([]float64, error)); ok {
		return rf(ctx, v)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]float64)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// ExplainLocal provides a mock function with given fields: ctx, v
func (_m *MockCapability) ExplainLocal(ctx context.Context, v model.FeatureVector) (model.RawAttribution, error) {
	ret := _m.Called(ctx, v)

	if len(ret) == 0 {
		panic("no return value specified for ExplainLocal")
	}

	var r0 model.RawAttribution
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.FeatureVector) (model.RawAttribution, error)); ok {
		return rf(ctx, v)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(model.RawAttribution)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockCapability creates a new instance of MockCapability. It also
// registers a cleanup function to assert the mocks expectations.
func NewMockCapability(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockCapability {
	mock := &MockCapability{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
