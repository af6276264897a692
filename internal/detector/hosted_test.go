package detector

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"garden-relay/internal/types"
)

const testAPIKey = "sk-test-secret-4f9a"

// jpegFixture - минимальный JPEG (SOI ... EOI), закодированный в base64
const jpegFixture = "/9j/4AAQSkZJRgABAQEASABIAAD/2wBDAP//////////////////////////////////////////////////////////////////////////////////////wAALCAABAAEBAREA/8QAFAABAAAAAAAAAAAAAAAAAAAAA//EABQQAQAAAAAAAAAAAAAAAAAAAAD/2gAIAQEAAD8AN//Z"

func TestHostedDetector_ForwardsStrippedPayload(t *testing.T) {
	var gotBody, gotKey, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/weeds-model/1", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotKey = r.URL.Query().Get("api_key")
		gotContentType = r.Header.Get("Content-Type")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"predictions":[{"x":10,"y":12,"width":4,"height":5,"class":"weed","confidence":0.91}],"image":{"width":1,"height":1}}`))
	}))
	defer server.Close()

	d := NewHostedDetector(HostedOptions{Endpoint: server.URL + "/weeds-model/1", APIKey: testAPIKey}, zap.NewNop())

	frame, err := ParseFrame("data:image/jpeg;base64," + jpegFixture)
	require.NoError(t, err)

	result, err := d.Detect(context.Background(), frame)
	require.NoError(t, err)

	assert.Equal(t, jpegFixture, gotBody)
	assert.NotContains(t, gotBody, "data:image/jpeg;base64,")
	assert.Equal(t, testAPIKey, gotKey)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, "application/json", result.ContentType)
	assert.JSONEq(t, `{"predictions":[{"x":10,"y":12,"width":4,"height":5,"class":"weed","confidence":0.91}],"image":{"width":1,"height":1}}`, string(result.Body))
}

func TestHostedDetector_UpstreamErrorDoesNotLeakKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"api_key ` + r.URL.Query().Get("api_key") + ` is not valid"}`))
	}))
	defer server.Close()

	observer := &countingObserver{}
	d := NewHostedDetector(HostedOptions{Endpoint: server.URL, APIKey: testAPIKey, Observer: observer}, zap.NewNop())

	_, err := d.Detect(context.Background(), types.FramePayload{Base64Data: jpegFixture})

	var fwdErr *types.ForwarderError
	require.True(t, errors.As(err, &fwdErr))
	assert.Equal(t, http.StatusForbidden, fwdErr.StatusCode)
	assert.Contains(t, err.Error(), "[REDACTED]")
	assert.NotContains(t, err.Error(), testAPIKey)
	assert.Equal(t, 1, observer.failures())
}

func TestHostedDetector_NetworkErrorDoesNotLeakKey(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	d := NewHostedDetector(HostedOptions{Endpoint: endpoint, APIKey: testAPIKey, Timeout: time.Second}, zap.NewNop())

	_, err := d.Detect(context.Background(), types.FramePayload{Base64Data: jpegFixture})

	var fwdErr *types.ForwarderError
	require.True(t, errors.As(err, &fwdErr))
	assert.Zero(t, fwdErr.StatusCode)
	assert.NotContains(t, err.Error(), testAPIKey)
}

func TestHostedDetector_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	d := NewHostedDetector(HostedOptions{Endpoint: server.URL, APIKey: testAPIKey, Timeout: 100 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	_, err := d.Detect(context.Background(), types.FramePayload{Base64Data: jpegFixture})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NotContains(t, err.Error(), testAPIKey)
}
