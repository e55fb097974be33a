// Package mocks provides test doubles for the ebmclient client.
package mocks

import (
	"context"

	resilience "github.com/sells-group/envmon/internal/resilience"
	ebmclient "github.com/sells-group/envmon/pkg/ebmclient"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Metadata provides a mock function with given fields: ctx
func (_m *MockClient) Metadata(ctx context.Context) (*ebmclient.Metadata, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Metadata")
	}

	var r0 *ebmclient.Metadata
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*ebmclient.Metadata)
	}
	return r0, ret.Error(1)
}

// Predict provides a mock function with given fields: ctx, features
func (_m *MockClient) Predict(ctx context.Context, features []float64) (*ebmclient.PredictResponse, error) {
	ret := _m.Called(ctx, features)

	if len(ret) == 0 {
		panic("no return value specified for Predict")
	}

	var r0 *ebmclient.PredictResponse
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*ebmclient.PredictResponse)
	}
	return r0, ret.Error(1)
}

// ExplainLocal provides a mock function with given fields: ctx, features
func (_m *MockClient) ExplainLocal(ctx context.Context, features []float64) (*ebmclient.ExplainResponse, error) {
	ret := _m.Called(ctx, features)

	if len(ret) == 0 {
		panic("no return value specified for ExplainLocal")
	}

	var r0 *ebmclient.ExplainResponse
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*ebmclient.ExplainResponse)
	}
	return r0, ret.Error(1)
}

// BreakerState provides a mock function with no fields
func (_m *MockClient) BreakerState() resilience.State {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for BreakerState")
	}
	return ret.Get(0).(resilience.State)
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
