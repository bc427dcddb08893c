package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/key-custody/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockTokenStore implements interfaces.TokenStore for testing
type MockTokenStore struct {
	mock.Mock
	name string
}

func (m *MockTokenStore) Fetch(ctx context.Context, name string) (interfaces.CustodyToken, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(interfaces.CustodyToken), args.Error(1)
}

func (m *MockTokenStore) Store(ctx context.Context, name string, token interfaces.CustodyToken) error {
	args := m.Called(ctx, name, token)
	return args.Error(0)
}

func (m *MockTokenStore) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockTokenStore) Name() string {
	return m.name
}

func (m *MockTokenStore) LocationURI() string {
	return "mock:" + m.name
}

func TestMultiTokenStore_Available(t *testing.T) {
	tests := []struct {
		name     string
		backends []bool
		expected bool
	}{
		{
			name:     "all backends available",
			backends: []bool{true, true, true},
			expected: true,
		},
		{
			name:     "some backends available",
			backends: []bool{false, true, false},
			expected: true,
		},
		{
			name:     "no backends available",
			backends: []bool{false, false, false},
			expected: false,
		},
		{
			name:     "no backends",
			backends: []bool{},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var backends []interfaces.TokenStore
			for i, available := range tt.backends {
				mockStore := &MockTokenStore{name: fmt.Sprintf("mock-A%x", i)}
				mockStore.On("Available", mock.Anything).Return(available).Maybe()
				backends = append(backends, mockStore)
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			multi := NewMultiTokenStore(backends, logger)

			assert.Equal(t, tt.expected, multi.Available(context.Background()))

			for _, backend := range backends {
				backend.(*MockTokenStore).AssertExpectations(t)
			}
		})
	}
}

func TestMultiTokenStore_Fetch(t *testing.T) {
	testToken := interfaces.CustodyToken("3yZe7d")
	testErr := errors.New("test error")

	tests := []struct {
		name          string
		setupMocks    func() []interfaces.TokenStore
		expectedToken interfaces.CustodyToken
		expectedError error
	}{
		{
			name: "first backend successful",
			setupMocks: func() []interfaces.TokenStore {
				mock1 := &MockTokenStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything, interfaces.DefaultTokenName).Return(testToken, nil)

				// Not consulted once the first backend answers.
				mock2 := &MockTokenStore{name: "mock-B"}

				return []interfaces.TokenStore{mock1, mock2}
			},
			expectedToken: testToken,
		},
		{
			name: "first backend fails, second succeeds",
			setupMocks: func() []interfaces.TokenStore {
				mock1 := &MockTokenStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything, interfaces.DefaultTokenName).Return(interfaces.CustodyToken(""), testErr)

				mock2 := &MockTokenStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything, interfaces.DefaultTokenName).Return(testToken, nil)

				return []interfaces.TokenStore{mock1, mock2}
			},
			expectedToken: testToken,
		},
		{
			name: "all backends fail",
			setupMocks: func() []interfaces.TokenStore {
				mock1 := &MockTokenStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything, interfaces.DefaultTokenName).Return(interfaces.CustodyToken(""), testErr)

				mock2 := &MockTokenStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything, interfaces.DefaultTokenName).Return(interfaces.CustodyToken(""), interfaces.ErrTokenNotFound)

				return []interfaces.TokenStore{mock1, mock2}
			},
			expectedError: testErr,
		},
		{
			name: "token missing everywhere",
			setupMocks: func() []interfaces.TokenStore {
				mock1 := &MockTokenStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Fetch", mock.Anything, interfaces.DefaultTokenName).Return(interfaces.CustodyToken(""), interfaces.ErrTokenNotFound)

				mock2 := &MockTokenStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything, interfaces.DefaultTokenName).Return(interfaces.CustodyToken(""), interfaces.ErrTokenNotFound)

				return []interfaces.TokenStore{mock1, mock2}
			},
			expectedError: interfaces.ErrTokenNotFound,
		},
		{
			name: "unavailable backends are skipped",
			setupMocks: func() []interfaces.TokenStore {
				mock1 := &MockTokenStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockTokenStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Fetch", mock.Anything, interfaces.DefaultTokenName).Return(testToken, nil)

				return []interfaces.TokenStore{mock1, mock2}
			},
			expectedToken: testToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends := tt.setupMocks()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			multi := NewMultiTokenStore(backends, logger)

			token, err := multi.Fetch(context.Background(), interfaces.DefaultTokenName)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedToken, token)

			for _, backend := range backends {
				backend.(*MockTokenStore).AssertExpectations(t)
			}
		})
	}
}

func TestMultiTokenStore_Store(t *testing.T) {
	testToken := interfaces.CustodyToken("3yZe7d")
	testErr := errors.New("test error")

	tests := []struct {
		name          string
		setupMocks    func() []interfaces.TokenStore
		expectedError bool
	}{
		{
			name: "all backends successful",
			setupMocks: func() []interfaces.TokenStore {
				mock1 := &MockTokenStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Store", mock.Anything, interfaces.DefaultTokenName, testToken).Return(nil)

				mock2 := &MockTokenStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Store", mock.Anything, interfaces.DefaultTokenName, testToken).Return(nil)

				return []interfaces.TokenStore{mock1, mock2}
			},
		},
		{
			name: "some backends fail",
			setupMocks: func() []interfaces.TokenStore {
				mock1 := &MockTokenStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Store", mock.Anything, interfaces.DefaultTokenName, testToken).Return(nil)

				mock2 := &MockTokenStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Store", mock.Anything, interfaces.DefaultTokenName, testToken).Return(testErr)

				return []interfaces.TokenStore{mock1, mock2}
			},
		},
		{
			name: "all backends fail",
			setupMocks: func() []interfaces.TokenStore {
				mock1 := &MockTokenStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("Store", mock.Anything, interfaces.DefaultTokenName, testToken).Return(testErr)

				mock2 := &MockTokenStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Store", mock.Anything, interfaces.DefaultTokenName, testToken).Return(testErr)

				return []interfaces.TokenStore{mock1, mock2}
			},
			expectedError: true,
		},
		{
			name: "nothing available",
			setupMocks: func() []interfaces.TokenStore {
				mock1 := &MockTokenStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				return []interfaces.TokenStore{mock1}
			},
			expectedError: true,
		},
		{
			name: "unavailable backends are skipped",
			setupMocks: func() []interfaces.TokenStore {
				mock1 := &MockTokenStore{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockTokenStore{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("Store", mock.Anything, interfaces.DefaultTokenName, testToken).Return(nil)

				return []interfaces.TokenStore{mock1, mock2}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends := tt.setupMocks()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			multi := NewMultiTokenStore(backends, logger)

			err := multi.Store(context.Background(), interfaces.DefaultTokenName, testToken)

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			for _, backend := range backends {
				backend.(*MockTokenStore).AssertExpectations(t)
			}
		})
	}
}

func TestMultiTokenStore_LocationURI(t *testing.T) {
	multi := NewMultiTokenStore([]interfaces.TokenStore{
		&MockTokenStore{name: "a"},
		&MockTokenStore{name: "b"},
	}, nil)

	assert.Equal(t, "multi:[mock:a,mock:b]", multi.LocationURI())
	assert.Equal(t, "multi-storage", multi.Name())
}
