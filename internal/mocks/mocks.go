// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) LLM() config.LLMRouterConfig {
	args := m.Called()
	return args.Get(0).(config.LLMRouterConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Agent() config.AgentConfig {
	args := m.Called()
	return args.Get(0).(config.AgentConfig)
}

func (m *MockConfig) Extractor() config.ExtractorConfig {
	args := m.Called()
	return args.Get(0).(config.ExtractorConfig)
}

func (m *MockConfig) Store() config.StoreConfig {
	args := m.Called()
	return args.Get(0).(config.StoreConfig)
}

func (m *MockConfig) Engine() config.EngineConfig {
	args := m.Called()
	return args.Get(0).(config.EngineConfig)
}

func (m *MockConfig) Metrics() config.MetricsConfig {
	args := m.Called()
	return args.Get(0).(config.MetricsConfig)
}

func (m *MockConfig) Sites() config.SitesConfig {
	args := m.Called()
	return args.Get(0).(config.SitesConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetAgentManualLogin(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetEngineConcurrency(n int) {
	m.Called(n)
}

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

var _ schemas.LLMClient = (*MockLLMClient)(nil)

// Generate mocks the LLM generation call.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Close mocks releasing the client.
func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Browser Driver Mock --

// MockBrowserDriver mocks schemas.BrowserDriver. Snapshot calls are frequent
// enough that tests usually stub them with .Maybe().
type MockBrowserDriver struct {
	mock.Mock
	mu sync.Mutex
}

var _ schemas.BrowserDriver = (*MockBrowserDriver)(nil)

func NewMockBrowserDriver() *MockBrowserDriver { return &MockBrowserDriver{} }

func (m *MockBrowserDriver) ID() string { return m.Called().String(0) }

func (m *MockBrowserDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockBrowserDriver) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockBrowserDriver) Input(ctx context.Context, selector, text string, submit bool) error {
	return m.Called(ctx, selector, text, submit).Error(0)
}

func (m *MockBrowserDriver) Scroll(ctx context.Context, amount int) error {
	return m.Called(ctx, amount).Error(0)
}

func (m *MockBrowserDriver) Wait(ctx context.Context, cond schemas.WaitCondition, timeout time.Duration) error {
	return m.Called(ctx, cond, timeout).Error(0)
}

func (m *MockBrowserDriver) Count(ctx context.Context, selector string) (int, error) {
	args := m.Called(ctx, selector)
	return args.Int(0), args.Error(1)
}

func (m *MockBrowserDriver) Extract(ctx context.Context, selector string) ([]schemas.RawFragment, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.RawFragment), args.Error(1)
}

func (m *MockBrowserDriver) Snapshot(ctx context.Context) (schemas.PageState, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.PageState), args.Error(1)
}

func (m *MockBrowserDriver) GetCookies(ctx context.Context) (*schemas.CredentialBundle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.CredentialBundle), args.Error(1)
}

func (m *MockBrowserDriver) SetCookies(ctx context.Context, bundle *schemas.CredentialBundle) error {
	return m.Called(ctx, bundle).Error(0)
}

func (m *MockBrowserDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Called().Error(0)
}

// -- Credential Store Mock --

// MockStore mocks store.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load(ctx context.Context, siteID string) (*schemas.CredentialBundle, error) {
	args := m.Called(ctx, siteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.CredentialBundle), args.Error(1)
}

func (m *MockStore) Save(ctx context.Context, siteID string, bundle *schemas.CredentialBundle) error {
	return m.Called(ctx, siteID, bundle).Error(0)
}

func (m *MockStore) Delete(ctx context.Context, siteID string) error {
	return m.Called(ctx, siteID).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}
