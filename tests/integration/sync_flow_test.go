package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/harmonichat/hcsync/internal/api"
	"github.com/harmonichat/hcsync/internal/auth"
	"github.com/harmonichat/hcsync/internal/cache"
	"github.com/harmonichat/hcsync/internal/engine"
	"github.com/harmonichat/hcsync/internal/loader"
	"github.com/harmonichat/hcsync/internal/server"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionUserID        = "user-abc"
	sessionFamilyID      = "fam-1"
	wallPostID           = "p1"
	jsonContentType      = "application/json"
)

type recordingSubscriber struct {
	topics []string
}

func (r *recordingSubscriber) Subscribe(topic string) error {
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingSubscriber) UnsubscribeAll() { r.topics = nil }

// newFakeBackend serves the subset of the HarmoniChat REST surface the sync
// flow touches: the wall fetch pair, the like probe and mutation, and the
// chat history.
func newFakeBackend(testContext *testing.T) *httptest.Server {
	testContext.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/publications/user/"+sessionUserID, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", jsonContentType)
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/publications/family/"+sessionFamilyID, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", jsonContentType)
		w.Write([]byte(`[{
			"id": "p1",
			"content": "primer dia de playa",
			"filesURL": "[null]",
			"rawDate": "2026-08-30T10:00:00",
			"likes": 2,
			"comments": 0,
			"user": {"id": "user-xyz", "firstName": "Ana", "lastName": "Lopez"}
		}]`))
	})
	mux.HandleFunc("/likes/by-user", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/likes/like", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", jsonContentType)
		w.Write([]byte(`{"id":"like-9","postId":"p1","userId":"user-abc"}`))
	})
	mux.HandleFunc("/chat/messages", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", jsonContentType)
		w.Write([]byte(`[{
			"id": "m1",
			"content": "hola familia",
			"type": "TEXT",
			"date": "2026-08-30T09:00:00",
			"user": {"id": "user-xyz", "firstName": "Ana", "lastName": "Lopez"}
		}]`))
	})

	backendServer := httptest.NewServer(mux)
	testContext.Cleanup(backendServer.Close)
	return backendServer
}

func TestSessionAndSyncFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	backendServer := newFakeBackend(testContext)

	sessionToken := mustMintSessionToken(testContext, sessionSigningSecret, time.Now())
	parser := auth.NewSessionParser(auth.SessionParserConfig{
		SigningSecret: []byte(sessionSigningSecret),
	})
	identity, err := parser.Identity(sessionToken)
	if err != nil {
		testContext.Fatalf("failed to resolve identity: %v", err)
	}
	if identity.UserID != sessionUserID || identity.FamilyID != sessionFamilyID {
		testContext.Fatalf("unexpected identity: %+v", identity)
	}

	backendClient, err := api.NewClient(api.ClientConfig{
		BaseURL:   backendServer.URL,
		AuthToken: sessionToken,
		Location:  time.UTC,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build backend client: %v", err)
	}

	db, err := cache.OpenSQLite(filepath.Join(testContext.TempDir(), "sync.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open cache: %v", err)
	}
	store, err := cache.NewStore(cache.StoreConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build cache store: %v", err)
	}

	feedLoader, err := loader.NewLoader(loader.LoaderConfig{Backend: backendClient, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build loader: %v", err)
	}

	dispatcher := server.NewChangeDispatcher()
	syncEngine, err := engine.New(engine.Config{
		Backend:    backendClient,
		Loader:     feedLoader,
		Subscriber: &recordingSubscriber{},
		Cache:      store,
		Identity:   identity,
		Location:   time.UTC,
		Logger:     zap.NewNop(),
		Notify:     dispatcher.Publish,
	})
	if err != nil {
		testContext.Fatalf("failed to build engine: %v", err)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	engineDone := make(chan error, 1)
	go func() { engineDone <- syncEngine.Run(runCtx) }()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Engine:     syncEngine,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	localServer := httptest.NewServer(handler)
	defer localServer.Close()

	posts := awaitWall(testContext, localServer.URL)
	if len(posts) != 1 || posts[0].ID != wallPostID {
		testContext.Fatalf("expected the backend post on the wall, got %#v", posts)
	}
	if posts[0].Liked || posts[0].LikeCount != 2 {
		testContext.Fatalf("expected an unliked post with count 2, got %#v", posts[0])
	}
	if posts[0].FilesURL != "" {
		testContext.Fatalf("placeholder file url survived normalization: %q", posts[0].FilesURL)
	}

	likeReq, _ := http.NewRequest(http.MethodPost, localServer.URL+"/wall/"+wallPostID+"/like", nil)
	likeResp, err := http.DefaultClient.Do(likeReq)
	if err != nil {
		testContext.Fatalf("like request failed: %v", err)
	}
	likeResp.Body.Close()
	if likeResp.StatusCode != http.StatusNoContent {
		testContext.Fatalf("unexpected like status: %d", likeResp.StatusCode)
	}

	posts = fetchWall(testContext, localServer.URL)
	if len(posts) != 1 || !posts[0].Liked || posts[0].LikeCount != 3 {
		testContext.Fatalf("expected a confirmed like with count 3, got %#v", posts)
	}
	if posts[0].LikePending {
		testContext.Fatalf("like should be confirmed, not pending")
	}

	messages := awaitChat(testContext, localServer.URL)
	if len(messages) != 1 || messages[0].ID != "m1" {
		testContext.Fatalf("expected the chat history message, got %#v", messages)
	}

	// Stopping the engine flushes the reconciled state, a fresh store over the
	// same database must serve the wall offline.
	cancelRun()
	select {
	case <-engineDone:
	case <-time.After(5 * time.Second):
		testContext.Fatalf("engine did not stop")
	}

	cachedPosts, err := store.LoadPosts(sessionFamilyID)
	if err != nil {
		testContext.Fatalf("failed to read cache: %v", err)
	}
	if len(cachedPosts) != 1 || cachedPosts[0].ID != wallPostID {
		testContext.Fatalf("expected the post in the offline cache, got %#v", cachedPosts)
	}
}

type wallView struct {
	ID          string `json:"id"`
	FilesURL    string `json:"filesURL"`
	LikeCount   int64  `json:"likes"`
	Liked       bool   `json:"liked"`
	LikePending bool   `json:"likePending"`
}

func fetchWall(testContext *testing.T, baseURL string) []wallView {
	testContext.Helper()
	resp, err := http.Get(baseURL + "/wall")
	if err != nil {
		testContext.Fatalf("wall request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected wall status: %d", resp.StatusCode)
	}
	var payload struct {
		Posts []wallView `json:"posts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		testContext.Fatalf("failed to decode wall response: %v", err)
	}
	return payload.Posts
}

// awaitWall polls until the initial load lands. The engine loads in its run
// loop, so the first request can race the fetch.
func awaitWall(testContext *testing.T, baseURL string) []wallView {
	testContext.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		posts := fetchWall(testContext, baseURL)
		if len(posts) > 0 {
			return posts
		}
		if time.Now().After(deadline) {
			testContext.Fatalf("wall never loaded")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

type chatView struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// awaitChat polls until the chat history merge lands; the wall can load a
// beat before the transcript does.
func awaitChat(testContext *testing.T, baseURL string) []chatView {
	testContext.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(baseURL + "/chat")
		if err != nil {
			testContext.Fatalf("chat request failed: %v", err)
		}
		var payload struct {
			Messages []chatView `json:"messages"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if decodeErr != nil {
			testContext.Fatalf("failed to decode chat response: %v", decodeErr)
		}
		if len(payload.Messages) > 0 {
			return payload.Messages
		}
		if time.Now().After(deadline) {
			testContext.Fatalf("chat never loaded")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func mustMintSessionToken(testContext *testing.T, signingSecret string, now time.Time) string {
	testContext.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.SessionClaims{
		UserID:   sessionUserID,
		FamilyID: sessionFamilyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionUserID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(signingSecret))
	if err != nil {
		testContext.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
