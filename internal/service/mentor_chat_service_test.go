package service

import (
	"codehub_backend/internal/config"
	"codehub_backend/internal/model"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/testutil"
	"codehub_backend/internal/util"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newChatService(t *testing.T, provider LLMProvider, limit int) (*MentorChatService, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	projects := NewProjectService(repository.NewProjectRepository(db), repository.NewUserRepository(db), nil, nil, db)
	cfg := config.AIConfig{TimeoutSeconds: 1, DailyMessageLimit: limit}
	return NewMentorChatService(repository.NewChatRepository(db), projects, provider, cfg), db
}

func TestSendMessageCarriesHistory(t *testing.T) {
	provider := &stubProvider{reply: "try a buffered channel"}
	svc, db := newChatService(t, provider, 10)
	user := testutil.CreateUser(t, db, "ada")
	ctx := context.Background()

	first, err := svc.SendMessage(ctx, user.ID, SendMessageInput{
		Message:     "why does my goroutine block?",
		CodeSnippet: "ch := make(chan int)\nch <- 1",
		Language:    "go",
	})
	require.NoError(t, err)
	assert.Equal(t, "general", first.Session.SessionType)
	assert.Equal(t, "why does my goroutine block?", first.Session.Title)
	assert.Equal(t, model.ChatSessionActive, first.Session.Status)
	assert.Equal(t, "try a buffered channel", first.Reply.Content)
	assert.Equal(t, 9, first.RemainingToday)
	assert.Equal(t, mentorSystemPrompt, provider.system)
	require.Len(t, provider.history, 1)
	assert.Contains(t, provider.history[0].Content, "```go\nch := make(chan int)")

	second, err := svc.SendMessage(ctx, user.ID, SendMessageInput{SessionID: first.Session.ID, Message: "and with select?"})
	require.NoError(t, err)
	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, 4, second.Session.TotalMessages)
	assert.Equal(t, 8, second.RemainingToday)

	require.Len(t, provider.history, 3)
	roles := []string{provider.history[0].Role, provider.history[1].Role, provider.history[2].Role}
	assert.Equal(t, []string{model.ChatRoleUser, model.ChatRoleAssistant, model.ChatRoleUser}, roles)
	assert.Equal(t, "and with select?", provider.history[2].Content)

	stored, err := svc.GetSession(ctx, user.ID, first.Session.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 4)
	assert.Equal(t, 4, stored.TotalMessages)
}

func TestSendMessageHistoryWindow(t *testing.T) {
	provider := &stubProvider{reply: "ok"}
	svc, db := newChatService(t, provider, 0)
	svc.History = 3
	user := testutil.CreateUser(t, db, "bea")

	reply, err := svc.SendMessage(context.Background(), user.ID, SendMessageInput{Message: "one"})
	require.NoError(t, err)
	assert.Equal(t, -1, reply.RemainingToday)
	for _, msg := range []string{"two", "three"} {
		_, err := svc.SendMessage(context.Background(), user.ID, SendMessageInput{SessionID: reply.Session.ID, Message: msg})
		require.NoError(t, err)
	}

	// 只携带最近 3 条
	require.Len(t, provider.history, 3)
	assert.Equal(t, "two", provider.history[0].Content)
	assert.Equal(t, "three", provider.history[2].Content)
}

func TestSendMessageDailyLimit(t *testing.T) {
	provider := &stubProvider{reply: "ok"}
	svc, db := newChatService(t, provider, 2)
	user := testutil.CreateUser(t, db, "cal")
	other := testutil.CreateUser(t, db, "dee")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.SendMessage(ctx, user.ID, SendMessageInput{Message: "hi"})
		require.NoError(t, err)
	}
	_, err := svc.SendMessage(ctx, user.ID, SendMessageInput{Message: "one more"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrRateLimited))
	assert.Equal(t, http.StatusTooManyRequests, util.StatusFor(err))
	assert.Equal(t, 2, provider.calls)

	var sessions int64
	require.NoError(t, db.Model(&model.ChatSession{}).Where("user_id = ?", user.ID).Count(&sessions).Error)
	assert.Equal(t, int64(2), sessions)

	// 额度按用户计算
	_, err = svc.SendMessage(ctx, other.ID, SendMessageInput{Message: "hi"})
	assert.NoError(t, err)

	// 次日重新计数
	svc.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	_, err = svc.SendMessage(ctx, user.ID, SendMessageInput{Message: "new day"})
	assert.NoError(t, err)

	svc.SetDailyLimit(0)
	svc.now = time.Now
	_, err = svc.SendMessage(ctx, user.ID, SendMessageInput{Message: "unlimited"})
	assert.NoError(t, err)
}

func TestSendMessageFailureMarksSession(t *testing.T) {
	provider := &stubProvider{err: errors.New("upstream 503")}
	svc, db := newChatService(t, provider, 1)
	user := testutil.CreateUser(t, db, "eve")
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, user.ID, SendMessageInput{Message: "explain interfaces"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrExternalService))

	var session model.ChatSession
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&session).Error)
	assert.Equal(t, model.ChatSessionFailed, session.Status)
	assert.Equal(t, "upstream 503", session.LastError)
	assert.Equal(t, 1, session.TotalMessages)

	// 失败的调用不占用额度，重试成功后会话恢复
	provider.err = nil
	provider.reply = "an interface is a method set"
	reply, err := svc.SendMessage(ctx, user.ID, SendMessageInput{SessionID: session.ID, Message: "explain interfaces"})
	require.NoError(t, err)
	assert.Equal(t, model.ChatSessionActive, reply.Session.Status)
	assert.Empty(t, reply.Session.LastError)
	assert.Equal(t, 0, reply.RemainingToday)

	require.NoError(t, db.First(&session, "id = ?", session.ID).Error)
	assert.Equal(t, model.ChatSessionActive, session.Status)
	assert.Equal(t, 3, session.TotalMessages)
}

func TestSendMessageWithoutProvider(t *testing.T) {
	svc, db := newChatService(t, nil, 5)
	user := testutil.CreateUser(t, db, "fay")

	_, err := svc.SendMessage(context.Background(), user.ID, SendMessageInput{Message: "hello"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, util.StatusFor(err))

	var session model.ChatSession
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&session).Error)
	assert.Equal(t, model.ChatSessionFailed, session.Status)

	svc.SetProvider(&stubProvider{reply: "hi"})
	_, err = svc.SendMessage(context.Background(), user.ID, SendMessageInput{SessionID: session.ID, Message: "hello again"})
	assert.NoError(t, err)
}

func TestSendMessageValidation(t *testing.T) {
	provider := &stubProvider{reply: "ok"}
	svc, db := newChatService(t, provider, 5)
	user := testutil.CreateUser(t, db, "gus")
	ctx := context.Background()

	cases := []SendMessageInput{
		{Message: "   "},
		{Message: strings.Repeat("变", maxChatMessageLength+1)},
		{Message: "hi", SessionType: "gossip"},
	}
	for _, in := range cases {
		_, err := svc.SendMessage(ctx, user.ID, in)
		assert.True(t, util.IsValidationError(err), "input %+v", in.SessionType)
	}
	assert.Equal(t, 0, provider.calls)
}

func TestChatSessionOwnershipAndCompletion(t *testing.T) {
	provider := &stubProvider{reply: "ok"}
	svc, db := newChatService(t, provider, 10)
	owner := testutil.CreateUser(t, db, "hal")
	other := testutil.CreateUser(t, db, "ivy")
	ctx := context.Background()

	reply, err := svc.SendMessage(ctx, owner.ID, SendMessageInput{Message: "review my handler", SessionType: "code_review"})
	require.NoError(t, err)
	id := reply.Session.ID

	_, err = svc.SendMessage(ctx, other.ID, SendMessageInput{SessionID: id, Message: "hijack"})
	assert.True(t, errors.Is(err, util.ErrNotFound))
	_, err = svc.GetSession(ctx, other.ID, id)
	assert.True(t, errors.Is(err, util.ErrNotFound))
	_, err = svc.CompleteSession(ctx, other.ID, id)
	assert.True(t, errors.Is(err, util.ErrNotFound))

	done, err := svc.CompleteSession(ctx, owner.ID, id)
	require.NoError(t, err)
	assert.Equal(t, model.ChatSessionCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	again, err := svc.CompleteSession(ctx, owner.ID, id)
	require.NoError(t, err)
	assert.Equal(t, done.CompletedAt.Unix(), again.CompletedAt.Unix())

	_, err = svc.SendMessage(ctx, owner.ID, SendMessageInput{SessionID: id, Message: "one more thing"})
	assert.True(t, util.IsValidationError(err))
	assert.Equal(t, 1, provider.calls)

	list, err := svc.ListSessions(ctx, owner.ID, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "code_review", list[0].SessionType)

	list, err = svc.ListSessions(ctx, other.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestProjectChatRequiresMembership(t *testing.T) {
	provider := &stubProvider{reply: "ok"}
	svc, db := newChatService(t, provider, 10)
	owner := testutil.CreateUser(t, db, "jay")
	stranger := testutil.CreateUser(t, db, "kit")
	ctx := context.Background()

	project, err := svc.Projects.CreateProject(ctx, owner.ID, CreateProjectInput{Title: "Tracer"})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, stranger.ID, SendMessageInput{ProjectID: &project.ID, Message: "hi"})
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))

	_, err = svc.SendMessage(ctx, owner.ID, SendMessageInput{ProjectID: &project.ID, Message: "plan the exporter", SessionType: "architecture"})
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, owner.ID, SendMessageInput{Message: "unrelated"})
	require.NoError(t, err)

	list, err := svc.ListSessions(ctx, owner.ID, &project.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].ProjectID)
	assert.Equal(t, project.ID, *list[0].ProjectID)
}

func TestSessionTitleTruncates(t *testing.T) {
	assert.Equal(t, "a b", sessionTitle("  a\n b "))
	long := sessionTitle(strings.Repeat("问题", 30))
	assert.Equal(t, maxSessionTitle+3, len([]rune(long)))
}
