package upstream_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"garden-relay/internal/signer"
	"garden-relay/internal/signer/signertest"
	"garden-relay/internal/types"
	"garden-relay/internal/upstream"
)

type fakePlatform struct {
	mu         sync.Mutex
	assertions []string
	issued     int
	server     *httptest.Server
}

func newFakePlatform(t *testing.T, identity *signer.SigningIdentity) *fakePlatform {
	p := &fakePlatform{}
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		if !assert.NoError(t, r.ParseForm()) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "urn:ietf:params:oauth:client-assertion-type:jwt-bearer", r.PostForm.Get("client_assertion_type"))

		claims := &signer.Claims{}
		_, err := jwt.ParseWithClaims(r.PostForm.Get("client_assertion"), claims, func(*jwt.Token) (any, error) {
			return &identity.PrivateKey.PublicKey, nil
		})
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		p.mu.Lock()
		p.assertions = append(p.assertions, claims.ID)
		p.issued++
		token := fmt.Sprintf("access-%d", p.issued)
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":60}`, token)
	})

	mux.HandleFunc("/v1/meetings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Regexp(t, `^Bearer access-\d+$`, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"meeting-1","name":"garden"}`))
	})

	mux.HandleFunc("/v1/meetings/meeting-42/participants", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Regexp(t, `^Bearer access-\d+$`, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"participant-7","meetingId":"meeting-42"}`))
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func newIdentity(t *testing.T) (*signer.SigningIdentity, *signer.Signer) {
	t.Helper()
	keyPath, _ := signertest.WriteKey(t)
	identity, err := signer.LoadIdentity("client-1", keyPath, "https://vpaas.example.com")
	require.NoError(t, err)
	s, err := signer.New(identity)
	require.NoError(t, err)
	return identity, s
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveUpstream(operation string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.calls = append(o.calls, operation+":"+outcome)
}

func TestClient_CreateMeeting_FreshTokenPerCall(t *testing.T) {
	identity, s := newIdentity(t)
	platform := newFakePlatform(t, identity)
	observer := &recordingObserver{}

	client := upstream.NewClient(upstream.Options{APIAddress: platform.server.URL, Observer: observer}, s, zap.NewNop())

	first, err := client.CreateMeeting(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"meeting-1","name":"garden"}`, string(first))

	_, err = client.CreateMeeting(context.Background())
	require.NoError(t, err)

	require.Len(t, platform.assertions, 2)
	assert.NotEqual(t, platform.assertions[0], platform.assertions[1])
	assert.Equal(t, []string{"create_meeting:ok", "create_meeting:ok"}, observer.calls)
}

func TestClient_ListOrCreateParticipant(t *testing.T) {
	identity, s := newIdentity(t)
	platform := newFakePlatform(t, identity)

	client := upstream.NewClient(upstream.Options{APIAddress: platform.server.URL + "/"}, s, zap.NewNop())

	participant, err := client.ListOrCreateParticipant(context.Background(), "meeting-42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"participant-7","meetingId":"meeting-42"}`, string(participant))

	_, err = client.ListOrCreateParticipant(context.Background(), " ")
	var validationErr *types.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestClient_NonSuccessStatus(t *testing.T) {
	_, s := newIdentity(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("platform is down for maintenance"))
	}))
	defer server.Close()

	client := upstream.NewClient(upstream.Options{APIAddress: server.URL}, s, zap.NewNop())

	_, err := client.CreateMeeting(context.Background())
	var upstreamErr *types.UpstreamError
	require.True(t, errors.As(err, &upstreamErr), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, upstreamErr.StatusCode)
	assert.Equal(t, upstream.OperationToken, upstreamErr.Operation)
	assert.Contains(t, upstreamErr.Error(), "platform is down")
}

func TestClient_NetworkFailure(t *testing.T) {
	_, s := newIdentity(t)
	server := httptest.NewServer(http.NotFoundHandler())
	address := server.URL
	server.Close()

	client := upstream.NewClient(upstream.Options{APIAddress: address, Timeout: time.Second}, s, zap.NewNop())

	_, err := client.ListOrCreateParticipant(context.Background(), "meeting-42")
	var upstreamErr *types.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Zero(t, upstreamErr.StatusCode)
	assert.Error(t, upstreamErr.Err)
}

type failingIssuer struct{}

func (failingIssuer) IssueToken() (*signer.AccessToken, error) {
	return nil, errors.New("key vanished")
}

func TestClient_SigningFailure(t *testing.T) {
	client := upstream.NewClient(upstream.Options{APIAddress: "http://127.0.0.1:1"}, failingIssuer{}, zap.NewNop())

	_, err := client.CreateMeeting(context.Background())
	var upstreamErr *types.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Contains(t, err.Error(), "key vanished")
}
