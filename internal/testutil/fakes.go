package testutil

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"sync"

	"planmarket/internal/domain/event"
	"planmarket/internal/domain/model"
	"planmarket/internal/domain/payment"

	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
	Name model.PaymentProvider
}

func NewMockGateway(p model.PaymentProvider) *MockGateway {
	return &MockGateway{Name: p}
}

func (m *MockGateway) Provider() model.PaymentProvider { return m.Name }

func (m *MockGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(payment.Session)
	return s, args.Error(1)
}

func (m *MockGateway) RetrieveStatus(ctx context.Context, ref string) (payment.StatusResult, error) {
	args := m.Called(ctx, ref)
	s, _ := args.Get(0).(payment.StatusResult)
	return s, args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, req payment.RefundRequest) (payment.RefundResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(payment.RefundResult)
	return r, args.Error(1)
}

func (m *MockGateway) ExpireSession(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *MockGateway) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (payment.Event, error) {
	args := m.Called(ctx, payload, header)
	e, _ := args.Get(0).(payment.Event)
	return e, args.Error(1)
}

// MockWallet adds the capture step of two-phase wallets.
type MockWallet struct {
	MockGateway
}

func NewMockWallet() *MockWallet {
	return &MockWallet{MockGateway: MockGateway{Name: model.PaymentProviderPayPal}}
}

func (m *MockWallet) Capture(ctx context.Context, ref string) (payment.StatusResult, error) {
	args := m.Called(ctx, ref)
	s, _ := args.Get(0).(payment.StatusResult)
	return s, args.Error(1)
}

// RecordingNotifier keeps every notification it receives.
type RecordingNotifier struct {
	mu   sync.Mutex
	Sent []event.Notification
	Err  error
}

func (n *RecordingNotifier) Notify(_ context.Context, e event.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, e)
	return n.Err
}

func (n *RecordingNotifier) Types() []event.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]event.NotificationType, 0, len(n.Sent))
	for _, e := range n.Sent {
		out = append(out, e.Type)
	}
	return out
}

// MemFileStore is a map backed blob store.
type MemFileStore struct {
	mu    sync.Mutex
	Blobs map[string][]byte
}

func NewMemFileStore() *MemFileStore {
	return &MemFileStore{Blobs: map[string][]byte{}}
}

func (s *MemFileStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Blobs[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *MemFileStore) Put(_ context.Context, key string, r io.Reader) (int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Blobs[key] = b
	return int64(len(b)), nil
}
