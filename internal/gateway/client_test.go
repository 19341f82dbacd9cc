package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformerrors "feelink-client-go/internal/platform/errors"
	platformtesting "feelink-client-go/internal/platform/testing"
)

// jpegHeader is enough of a JPEG for signature sniffing.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{
		BaseURL: server.URL,
		AppName: "FeelinkApp_screenshot",
		Logger:  platformtesting.SetupTestLogger(t),
	})
	require.NoError(t, err)
	return client, server
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url", Logger: platformtesting.SetupTestLogger(t)})
	require.Error(t, err)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindInvalidRequest))
}

func TestSubmitAnalysisSendsMultipartFields(t *testing.T) {
	var gotQuestion, gotFilename string
	var gotImage []byte

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/continue_test", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		gotQuestion = r.FormValue("user_question")
		file, header, err := r.FormFile("image_file")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename
		gotImage, err = io.ReadAll(file)
		require.NoError(t, err)

		w.Write([]byte(`{"answer":"a red button"}`))
	}))

	answer, err := client.SubmitAnalysis(context.Background(), jpegHeader, "what is this?")
	require.NoError(t, err)
	assert.Equal(t, "a red button", answer)
	assert.Equal(t, "what is this?", gotQuestion)
	assert.Equal(t, "screenshot.jpg", gotFilename)
	assert.Equal(t, jpegHeader, gotImage)
}

func TestSubmitAnalysisFallsBackToDefaultQuestion(t *testing.T) {
	var gotQuestion string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotQuestion = r.FormValue("user_question")
		w.Write([]byte(`{"answer":"ok"}`))
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{
		BaseURL:         server.URL,
		DefaultQuestion: "이 이미지에 대해 자세히 설명해줘",
		Logger:          platformtesting.SetupTestLogger(t),
	})
	require.NoError(t, err)

	_, err = client.SubmitAnalysis(context.Background(), jpegHeader, "")
	require.NoError(t, err)
	assert.Equal(t, "이 이미지에 대해 자세히 설명해줘", gotQuestion)
}

func TestSubmitAnalysisRejectsNonImagePayload(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not reach the backend")
	}))

	_, err := client.SubmitAnalysis(context.Background(), []byte("plain text"), "q")
	require.Error(t, err)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindInvalidRequest))
}

func TestContinueChatDecodesResponse(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/continue_test", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "tell me more", r.FormValue("user_question"))
		assert.Equal(t, "conv-12345", r.FormValue("conversation_id"))

		w.Write([]byte(`{"answer":"sure","conversation_id":"conv-12345","analysis_id":"an-1"}`))
	}))

	resp, err := client.ContinueChat(context.Background(), "tell me more", "conv-12345")
	require.NoError(t, err)
	assert.Equal(t, "sure", resp.Message)
	assert.Equal(t, "conv-12345", resp.ConversationID)
	assert.Equal(t, "an-1", resp.AnalysisID)
	assert.Nil(t, resp.Timestamp)
}

func TestSendChatTurnIncludesAppNameAndOptionalImage(t *testing.T) {
	var gotForm map[string]string
	var hadImage bool

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/test", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		gotForm = map[string]string{
			"user_question": r.FormValue("user_question"),
			"analysis_id":   r.FormValue("analysis_id"),
			"app_name":      r.FormValue("app_name"),
		}
		_, _, err := r.FormFile("image_file")
		hadImage = err == nil

		w.Write([]byte(`{"answer":"ok","conversation_id":""}`))
	}))

	_, err := client.SendChatTurn(context.Background(), "next question", "an-42", nil)
	require.NoError(t, err)
	assert.False(t, hadImage)
	assert.Equal(t, "next question", gotForm["user_question"])
	assert.Equal(t, "an-42", gotForm["analysis_id"])
	assert.Equal(t, "FeelinkApp_screenshot", gotForm["app_name"])

	_, err = client.SendChatTurn(context.Background(), "with image", "an-42", jpegHeader)
	require.NoError(t, err)
	assert.True(t, hadImage)
}

func TestFetchAnalysisDecodesResult(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/feelink/analysis/an-7", r.URL.Path)
		w.Write([]byte(`{
			"id": "an-7",
			"timestamp": "2025-06-01T10:00:00Z",
			"summary": "a login screen",
			"objects": [{"name":"button","confidence":0.9}],
			"confidence": 0.95,
			"app_name": "FeelinkApp_screenshot"
		}`))
	}))

	result, err := client.FetchAnalysis(context.Background(), "an-7")
	require.NoError(t, err)
	assert.Equal(t, "an-7", result.ID)
	assert.Equal(t, "a login screen", result.Summary)
	require.Len(t, result.Objects, 1)
	assert.Equal(t, "button", result.Objects[0].Name)
	assert.Nil(t, result.Objects[0].Position)
	assert.Empty(t, result.ScreenshotURL)
}

func TestServerErrorMapsToServerKind(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.FetchAnalysis(context.Background(), "an-7")
	require.Error(t, err)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindServer))
}

func TestMalformedBodyMapsToDecodeKind(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))

	_, err := client.ContinueChat(context.Background(), "hi", "conv-12345")
	require.Error(t, err)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindDecode))
}

func TestRegisterDeviceSendsForm(t *testing.T) {
	var gotForm map[string]string

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/register_device", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"installation_id": r.FormValue("installation_id"),
			"platform":        r.FormValue("platform"),
			"device_token":    r.FormValue("device_token"),
			"tags":            r.FormValue("tags"),
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))

	err := client.RegisterDevice(context.Background(), Registration{
		InstallationID: "install-1",
		Platform:       "apns",
		DeviceToken:    "tok",
		Tags:           []string{"ios", "feelink_user"},
	})
	require.NoError(t, err)
	assert.Equal(t, "install-1", gotForm["installation_id"])
	assert.Equal(t, "apns", gotForm["platform"])
	assert.Equal(t, "tok", gotForm["device_token"])
	assert.Equal(t, "ios,feelink_user", gotForm["tags"])
}
