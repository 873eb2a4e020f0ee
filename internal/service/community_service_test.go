package service

import (
	"codehub_backend/internal/model"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/testutil"
	"codehub_backend/internal/util"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newCommunityService(db *gorm.DB, notifier Notifier) *CommunityService {
	return NewCommunityService(repository.NewCommunityRepository(db), repository.NewUserRepository(db), notifier, db)
}

func (n *recordingNotifier) last() NotifyRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.requests[len(n.requests)-1]
}

func TestCreatePostAndList(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newCommunityService(db, nil)
	author := testutil.CreateUser(t, db, "noa")
	ctx := context.Background()

	_, err := svc.CreatePost(ctx, author.ID, PostInput{Title: " ", Content: "x"})
	assert.True(t, util.IsValidationError(err))
	_, err = svc.CreatePost(ctx, author.ID, PostInput{Title: "t", Content: "x", ContentType: "meme"})
	assert.True(t, util.IsValidationError(err))

	first, err := svc.CreatePost(ctx, author.ID, PostInput{Title: "First", Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, model.PostText, first.ContentType)
	assert.Equal(t, model.PostPublished, first.Status)
	require.NotNil(t, first.PublishedAt)

	second, err := svc.CreatePost(ctx, author.ID, PostInput{Title: "Second", Content: "code", ContentType: model.PostCode, CodeSnippet: "fmt.Println()", CodeLanguage: "go"})
	require.NoError(t, err)
	pinned, err := svc.CreatePost(ctx, author.ID, PostInput{Title: "Rules", Content: "be nice"})
	require.NoError(t, err)
	require.NoError(t, db.Model(pinned).Update("is_pinned", true).Error)

	draft := &model.Post{AuthorID: author.ID, Title: "Draft", Content: "wip", ContentType: model.PostText, Status: model.PostDraft}
	require.NoError(t, db.Create(draft).Error)

	list, total, err := svc.ListPosts(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 3)
	assert.Equal(t, pinned.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, first.ID, list[2].ID)

	list, total, err = svc.ListPosts(ctx, string(model.PostCode), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, second.ID, list[0].ID)

	_, err = svc.GetPost(ctx, draft.ID)
	assert.True(t, errors.Is(err, util.ErrNotFound))

	viewed, err := svc.GetPost(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, viewed.ViewsCount)
	viewed, err = svc.GetPost(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, viewed.ViewsCount)
}

func TestTogglePostLikeNotifiesAuthor(t *testing.T) {
	db := testutil.NewDB(t)
	notifier := &recordingNotifier{}
	svc := newCommunityService(db, notifier)
	author := testutil.CreateUser(t, db, "ola")
	fan := testutil.CreateUser(t, db, "pim")
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, author.ID, PostInput{Title: "Generics", Content: "thoughts"})
	require.NoError(t, err)

	res, err := svc.TogglePostLike(ctx, fan.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, 1, res.LikesCount)
	require.Equal(t, 1, notifier.count())
	req := notifier.last()
	assert.Equal(t, author.ID, req.RecipientID)
	assert.Equal(t, model.NotificationPostLike, req.Type)
	require.NotNil(t, req.SenderID)
	assert.Equal(t, fan.ID, *req.SenderID)
	assert.Equal(t, "pim liked your post", req.Message)

	res, err = svc.TogglePostLike(ctx, fan.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, res.Liked)
	assert.Equal(t, 0, res.LikesCount)
	assert.Equal(t, 1, notifier.count())

	// 作者给自己点赞不通知
	res, err = svc.TogglePostLike(ctx, author.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, 1, notifier.count())

	var likes int64
	require.NoError(t, db.Model(&model.PostLike{}).Where("post_id = ?", post.ID).Count(&likes).Error)
	assert.Equal(t, int64(1), likes)

	_, err = svc.TogglePostLike(ctx, fan.ID, 9999)
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestConcurrentPostLikesKeepCountConsistent(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newCommunityService(db, nil)
	author := testutil.CreateUser(t, db, "quin")
	post, err := svc.CreatePost(context.Background(), author.ID, PostInput{Title: "Race", Content: "?"})
	require.NoError(t, err)

	users := make([]*model.User, 6)
	for i := range users {
		users[i] = testutil.CreateUser(t, db, "liker")
	}
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := svc.TogglePostLike(context.Background(), id, post.ID)
			assert.NoError(t, err)
		}(u.ID)
	}
	wg.Wait()

	var stored model.Post
	require.NoError(t, db.First(&stored, post.ID).Error)
	assert.Equal(t, len(users), stored.LikesCount)
}

func TestCreateCommentNotifications(t *testing.T) {
	db := testutil.NewDB(t)
	notifier := &recordingNotifier{}
	svc := newCommunityService(db, notifier)
	author := testutil.CreateUser(t, db, "rae")
	alice := testutil.CreateUser(t, db, "sol")
	bob := testutil.CreateUser(t, db, "tam")
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, author.ID, PostInput{Title: "Errors", Content: "wrap or not"})
	require.NoError(t, err)

	_, err = svc.CreateComment(ctx, alice.ID, post.ID, CommentInput{Content: "  "})
	assert.True(t, util.IsValidationError(err))

	top, err := svc.CreateComment(ctx, alice.ID, post.ID, CommentInput{Content: "wrap with %w"})
	require.NoError(t, err)
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, model.NotificationComment, notifier.last().Type)
	assert.Equal(t, author.ID, notifier.last().RecipientID)

	// 回复通知被回复者与帖子作者各一次
	_, err = svc.CreateComment(ctx, bob.ID, post.ID, CommentInput{Content: "agreed", ParentID: &top.ID})
	require.NoError(t, err)
	require.Equal(t, 3, notifier.count())
	notifier.mu.Lock()
	reply, comment := notifier.requests[1], notifier.requests[2]
	notifier.mu.Unlock()
	assert.Equal(t, model.NotificationCommentReply, reply.Type)
	assert.Equal(t, alice.ID, reply.RecipientID)
	assert.Equal(t, model.NotificationComment, comment.Type)
	assert.Equal(t, author.ID, comment.RecipientID)

	// 作者回复自己帖子下的评论：只通知评论者
	_, err = svc.CreateComment(ctx, author.ID, post.ID, CommentInput{Content: "thanks", ParentID: &top.ID})
	require.NoError(t, err)
	require.Equal(t, 4, notifier.count())
	assert.Equal(t, model.NotificationCommentReply, notifier.last().Type)
	assert.Equal(t, alice.ID, notifier.last().RecipientID)

	var stored model.Post
	require.NoError(t, db.First(&stored, post.ID).Error)
	assert.Equal(t, 3, stored.CommentsCount)
	var parent model.Comment
	require.NoError(t, db.First(&parent, top.ID).Error)
	assert.Equal(t, 2, parent.RepliesCount)
}

func TestCreateCommentRejectsForeignParent(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newCommunityService(db, nil)
	author := testutil.CreateUser(t, db, "uma")
	ctx := context.Background()

	a, err := svc.CreatePost(ctx, author.ID, PostInput{Title: "A", Content: "a"})
	require.NoError(t, err)
	b, err := svc.CreatePost(ctx, author.ID, PostInput{Title: "B", Content: "b"})
	require.NoError(t, err)
	onA, err := svc.CreateComment(ctx, author.ID, a.ID, CommentInput{Content: "on a"})
	require.NoError(t, err)

	_, err = svc.CreateComment(ctx, author.ID, b.ID, CommentInput{Content: "misplaced", ParentID: &onA.ID})
	assert.True(t, util.IsValidationError(err))

	missing := uint(9999)
	_, err = svc.CreateComment(ctx, author.ID, a.ID, CommentInput{Content: "x", ParentID: &missing})
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestListCommentsGroupsReplies(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newCommunityService(db, nil)
	author := testutil.CreateUser(t, db, "vic")
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, author.ID, PostInput{Title: "Threads", Content: "t"})
	require.NoError(t, err)
	older, err := svc.CreateComment(ctx, author.ID, post.ID, CommentInput{Content: "older"})
	require.NoError(t, err)
	newer, err := svc.CreateComment(ctx, author.ID, post.ID, CommentInput{Content: "newer"})
	require.NoError(t, err)
	for _, text := range []string{"r1", "r2"} {
		_, err := svc.CreateComment(ctx, author.ID, post.ID, CommentInput{Content: text, ParentID: &older.ID})
		require.NoError(t, err)
	}
	hidden, err := svc.CreateComment(ctx, author.ID, post.ID, CommentInput{Content: "hidden"})
	require.NoError(t, err)
	require.NoError(t, db.Model(hidden).Update("is_active", false).Error)

	threads, err := svc.ListComments(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, newer.ID, threads[0].ID)
	assert.Empty(t, threads[0].Replies)
	assert.Equal(t, older.ID, threads[1].ID)
	require.Len(t, threads[1].Replies, 2)
	assert.Equal(t, "r1", threads[1].Replies[0].Content)
	assert.Equal(t, "r2", threads[1].Replies[1].Content)
}

func TestToggleCommentLike(t *testing.T) {
	db := testutil.NewDB(t)
	notifier := &recordingNotifier{}
	svc := newCommunityService(db, notifier)
	author := testutil.CreateUser(t, db, "wyn")
	commenter := testutil.CreateUser(t, db, "xia")
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, author.ID, PostInput{Title: "Q", Content: "?"})
	require.NoError(t, err)
	comment, err := svc.CreateComment(ctx, commenter.ID, post.ID, CommentInput{Content: "A"})
	require.NoError(t, err)
	before := notifier.count()

	res, err := svc.ToggleCommentLike(ctx, author.ID, comment.ID)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, 1, res.LikesCount)
	require.Equal(t, before+1, notifier.count())
	assert.Equal(t, model.NotificationCommentLike, notifier.last().Type)
	assert.Equal(t, commenter.ID, notifier.last().RecipientID)
	assert.Equal(t, comment.ID, notifier.last().Metadata["comment_id"])

	res, err = svc.ToggleCommentLike(ctx, author.ID, comment.ID)
	require.NoError(t, err)
	assert.False(t, res.Liked)
	assert.Equal(t, 0, res.LikesCount)

	// 计数不会出现负数
	require.NoError(t, svc.Repo.AdjustCommentCounter(comment.ID, "likes_count", -1))
	count, err := svc.Repo.CommentCounter(comment.ID, "likes_count")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, db.Model(comment).Update("is_active", false).Error)
	_, err = svc.ToggleCommentLike(ctx, author.ID, comment.ID)
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestCommunityNotificationsReachInbox(t *testing.T) {
	db := testutil.NewDB(t)
	notifications := NewNotificationService(repository.NewNotificationRepository(db), nil, nil)
	svc := newCommunityService(db, notifications)
	author := testutil.CreateUser(t, db, "yan")
	fan := testutil.CreateUser(t, db, "zed")
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, author.ID, PostInput{Title: "Inbox", Content: "i"})
	require.NoError(t, err)
	_, err = svc.TogglePostLike(ctx, fan.ID, post.ID)
	require.NoError(t, err)
	_, err = svc.CreateComment(ctx, fan.ID, post.ID, CommentInput{Content: "nice"})
	require.NoError(t, err)

	count, err := notifications.UnreadCount(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
