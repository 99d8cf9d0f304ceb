package transportfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
	"github.com/jrsteele09/go-sso-client/transport"
)

var _ transport.Transport = (*FakeTransport)(nil)

// FakeTransport answers with canned results and records every call.
type FakeTransport struct {
	lock sync.Mutex

	Discovery      *oauth2.DiscoveryMetadata
	DiscoveryErr   error
	ExchangeResp   *oauth2.TokenResponse
	ExchangeErr    error
	RefreshResp    *oauth2.TokenResponse
	RefreshErr     error
	LaunchErr      error
	BeforeRefresh  func()
	DiscoveryCalls int
	ExchangeCalls  []*oauthmodel.TokenRequest
	RefreshCalls   []*oauthmodel.TokenRequest
	Launched       []*oauthmodel.AuthorizationRequest
	ResumeTargets  []string
}

func NewFakeTransport(discovery *oauth2.DiscoveryMetadata) *FakeTransport {
	return &FakeTransport{Discovery: discovery}
}

func (f *FakeTransport) FetchDiscovery(_ context.Context, _ string) (*oauth2.DiscoveryMetadata, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.DiscoveryCalls++
	if f.DiscoveryErr != nil {
		return nil, f.DiscoveryErr
	}
	return f.Discovery, nil
}

func (f *FakeTransport) ExchangeCode(_ context.Context, req *oauthmodel.TokenRequest, _ oauthmodel.ClientAuth) (*oauth2.TokenResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.ExchangeCalls = append(f.ExchangeCalls, req)
	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	return f.ExchangeResp, nil
}

// RefreshToken runs BeforeRefresh outside the lock so tests can block or mutate state mid-flight.
func (f *FakeTransport) RefreshToken(_ context.Context, req *oauthmodel.TokenRequest, _ oauthmodel.ClientAuth) (*oauth2.TokenResponse, error) {
	f.lock.Lock()
	before := f.BeforeRefresh
	f.RefreshCalls = append(f.RefreshCalls, req)
	f.lock.Unlock()
	if before != nil {
		before()
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	return f.RefreshResp, nil
}

func (f *FakeTransport) LaunchAuthorization(_ context.Context, req *oauthmodel.AuthorizationRequest, resumeTarget string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Launched = append(f.Launched, req)
	f.ResumeTargets = append(f.ResumeTargets, resumeTarget)
	return f.LaunchErr
}

func (f *FakeTransport) RefreshCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.RefreshCalls)
}

// Set runs fn under the lock so canned results can be swapped while calls are in flight.
func (f *FakeTransport) Set(fn func(f *FakeTransport)) {
	f.lock.Lock()
	defer f.lock.Unlock()
	fn(f)
}
