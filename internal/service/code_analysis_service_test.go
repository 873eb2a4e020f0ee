package service

import (
	"codehub_backend/internal/config"
	"codehub_backend/internal/model"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/testutil"
	"codehub_backend/internal/util"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubProvider struct {
	reply   string
	err     error
	calls   int
	system  string
	history []AIChatMessage
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(_ context.Context, system, prompt string) (string, error) {
	p.calls++
	return p.reply, p.err
}

func (p *stubProvider) Chat(_ context.Context, system string, history []AIChatMessage) (string, error) {
	p.calls++
	p.system = system
	p.history = append([]AIChatMessage(nil), history...)
	return p.reply, p.err
}

func newAnalysisService(t *testing.T, provider LLMProvider) (*CodeAnalysisService, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	projects := NewProjectService(repository.NewProjectRepository(db), repository.NewUserRepository(db), nil, nil, db)
	return NewCodeAnalysisService(repository.NewCodeAnalysisRepository(db), projects, provider, time.Second), db
}

func TestAnalyzeCodeParsesJSON(t *testing.T) {
	provider := &stubProvider{reply: "```json\n{\"summary\":\"ok\",\"findings\":[{\"type\":\"bug\",\"severity\":\"high\"}],\"recommendations\":[\"add tests\"],\"severity_score\":7}\n```"}
	svc, db := newAnalysisService(t, provider)
	user := testutil.CreateUser(t, db, "lena")

	a, err := svc.AnalyzeCode(context.Background(), user.ID, AnalyzeCodeRequest{Language: "go", Code: "func main() {}"})
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisCompleted, a.Status)
	assert.Equal(t, "ok", a.Summary)
	assert.Equal(t, "general", a.AnalysisType)
	assert.Equal(t, "stub", a.Provider)
	require.NotNil(t, a.OverallScore)
	assert.Equal(t, 7, *a.OverallScore)
	assert.JSONEq(t, `["add tests"]`, string(a.Recommendations))

	stored, err := svc.GetAnalysis(context.Background(), user.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisCompleted, stored.Status)
}

func TestAnalyzeCodeFallsBackOnPlainText(t *testing.T) {
	svc, db := newAnalysisService(t, &stubProvider{reply: "Looks fine to me."})
	user := testutil.CreateUser(t, db, "mia")

	a, err := svc.AnalyzeCode(context.Background(), user.ID, AnalyzeCodeRequest{Language: "python", Code: "print(1)"})
	require.NoError(t, err)

	var findings []map[string]string
	require.NoError(t, json.Unmarshal(a.Findings, &findings))
	require.Len(t, findings, 1)
	assert.Equal(t, "general", findings[0]["type"])
	assert.Equal(t, "Looks fine to me.", findings[0]["description"])
	assert.Equal(t, fallbackSeverityScore, *a.OverallScore)
}

func TestAnalyzeCodeProviderFailure(t *testing.T) {
	svc, db := newAnalysisService(t, &stubProvider{err: errors.New("upstream 503")})
	user := testutil.CreateUser(t, db, "nick")

	_, err := svc.AnalyzeCode(context.Background(), user.ID, AnalyzeCodeRequest{Language: "go", Code: "x"})
	assert.ErrorIs(t, err, util.ErrExternalService)

	var stored model.CodeAnalysis
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, model.AnalysisFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "upstream 503")
}

func TestAnalyzeCodeValidationAndAccess(t *testing.T) {
	provider := &stubProvider{reply: "{}"}
	svc, db := newAnalysisService(t, provider)
	owner := testutil.CreateUser(t, db, "omar")
	stranger := testutil.CreateUser(t, db, "pam")
	project, err := svc.Projects.CreateProject(context.Background(), owner.ID, CreateProjectInput{Title: "secret"})
	require.NoError(t, err)

	_, err = svc.AnalyzeCode(context.Background(), owner.ID, AnalyzeCodeRequest{Language: "go", Code: "   "})
	assert.True(t, util.IsValidationError(err))

	_, err = svc.AnalyzeCode(context.Background(), stranger.ID, AnalyzeCodeRequest{ProjectID: &project.ID, Language: "go", Code: "x"})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
	assert.Equal(t, 0, provider.calls)

	a, err := svc.AnalyzeCode(context.Background(), owner.ID, AnalyzeCodeRequest{ProjectID: &project.ID, Language: "go", Code: "x"})
	require.NoError(t, err)
	_, err = svc.GetAnalysis(context.Background(), stranger.ID, a.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestAnalyzeCodeLengthCountsCharacters(t *testing.T) {
	provider := &stubProvider{reply: "{}"}
	svc, db := newAnalysisService(t, provider)
	owner := testutil.CreateUser(t, db, "quinn")

	// 多字节字符按字符计数：上限内的中文代码的字节数已超过上限
	code := strings.Repeat("变", maxCodeLength)
	require.Greater(t, len(code), maxCodeLength)
	_, err := svc.AnalyzeCode(context.Background(), owner.ID, AnalyzeCodeRequest{Language: "go", Code: code})
	require.NoError(t, err)

	_, err = svc.AnalyzeCode(context.Background(), owner.ID, AnalyzeCodeRequest{Language: "go", Code: code + "量"})
	assert.True(t, util.IsValidationError(err))
	assert.Equal(t, 1, provider.calls)
}

func TestFailStaleAnalyses(t *testing.T) {
	svc, db := newAnalysisService(t, nil)
	user := testutil.CreateUser(t, db, "rita")

	stale := &model.CodeAnalysis{UserID: user.ID, Code: "x", Status: model.AnalysisInProgress}
	require.NoError(t, db.Create(stale).Error)
	require.NoError(t, db.Model(stale).UpdateColumn("created_at", time.Now().Add(-time.Hour)).Error)
	fresh := &model.CodeAnalysis{UserID: user.ID, Code: "y", Status: model.AnalysisInProgress}
	require.NoError(t, db.Create(fresh).Error)

	n, err := svc.FailStaleAnalyses(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, total, err := svc.ListAnalyses(context.Background(), user.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	statuses := map[string]model.AnalysisStatus{}
	for _, a := range list {
		statuses[a.ID] = a.Status
	}
	assert.Equal(t, model.AnalysisFailed, statuses[stale.ID])
	assert.Equal(t, model.AnalysisInProgress, statuses[fresh.ID])
}

func TestOpenAIProviderComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	p, err := NewLLMProvider(context.Background(), config.AIConfig{Provider: "openai", BaseURL: srv.URL + "/v1/", APIKey: "key", Model: "m"})
	require.NoError(t, err)
	out, err := p.Complete(context.Background(), "be brief", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestOpenAIProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.AIConfig{BaseURL: srv.URL, TimeoutSeconds: 1})
	_, err := p.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = NewLLMProvider(context.Background(), config.AIConfig{Provider: "gemini"})
	assert.Error(t, err)
}
