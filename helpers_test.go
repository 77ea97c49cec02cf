// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var testConfigurationID = ConfigurationID{
	GUID:          "guid-1",
	EnvironmentID: "dev",
	CollectionID:  "web",
}

// fakePushChannel is a scriptable PushChannel: tests feed frames and
// errors through channels, the reader blocks like a real socket would.
type fakePushChannel struct {
	msgs   chan PushMessage
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakePushChannel() *fakePushChannel {
	return &fakePushChannel{
		msgs:   make(chan PushMessage, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakePushChannel) ReadMessage() (PushMessage, error) {
	select {
	case msg := <-f.msgs:
		return msg, nil
	case err := <-f.errs:
		return PushMessage{}, err
	case <-f.closed:
		return PushMessage{}, errors.New("use of closed connection")
	}
}

func (f *fakePushChannel) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakePushChannel) sendText(s string) {
	f.msgs <- PushMessage{Kind: MessageText, Data: []byte(s)}
}

func (f *fakePushChannel) fail(err error) {
	f.errs <- err
}

// fakeServerClient is a scriptable ServerClient. Every behavior can be
// changed mid-test; counters let tests observe the worker's traffic.
type fakeServerClient struct {
	mu sync.Mutex

	config    []byte
	configErr error
	openErr   error
	pushErr   error

	fetches  int
	opens    int
	channels []*fakePushChannel
	batches  [][]byte
}

func newFakeServerClient() *fakeServerClient {
	return &fakeServerClient{config: []byte(testConfigDocument)}
}

func (f *fakeServerClient) GetConfiguration(context.Context, ConfigurationID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.configErr != nil {
		return nil, f.configErr
	}
	return f.config, nil
}

func (f *fakeServerClient) OpenPushChannel(context.Context, ConfigurationID) (PushChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	ch := newFakePushChannel()
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeServerClient) PushMetering(_ context.Context, _ ConfigurationID, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.batches = append(f.batches, payload)
	return nil
}

func (f *fakeServerClient) setConfig(raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config = raw
}

func (f *fakeServerClient) setConfigErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configErr = err
}

func (f *fakeServerClient) setPushErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushErr = err
}

func (f *fakeServerClient) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeServerClient) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeServerClient) channelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

func (f *fakeServerClient) channelAt(i int) *fakePushChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[i]
}

func (f *fakeServerClient) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeServerClient) batchAt(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[i]
}

func serverClosed() error {
	return fmt.Errorf("%w: close 1000 (normal)", ErrPushChannelClosed)
}
