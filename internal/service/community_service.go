package service

import (
	"codehub_backend/internal/model"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/util"
	"codehub_backend/pkg/logger"
	"codehub_backend/pkg/monitoring"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PostInput struct {
	Title        string                `json:"title" binding:"required"`
	Content      string                `json:"content" binding:"required"`
	ContentType  model.PostContentType `json:"contentType"`
	CodeSnippet  string                `json:"codeSnippet"`
	CodeLanguage string                `json:"codeLanguage"`
}

type CommentInput struct {
	Content  string `json:"content" binding:"required"`
	ParentID *uint  `json:"parentId"`
}

// LikeResult 点赞切换后的状态
type LikeResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likesCount"`
}

// CommentThread 顶层评论及其回复
type CommentThread struct {
	model.Comment
	Replies []model.Comment `json:"replies"`
}

type CommunityService struct {
	Repo     *repository.CommunityRepository
	UserRepo *repository.UserRepository
	Notifier Notifier
	DB       *gorm.DB
}

func NewCommunityService(repo *repository.CommunityRepository, userRepo *repository.UserRepository, notifier Notifier, db *gorm.DB) *CommunityService {
	return &CommunityService{Repo: repo, UserRepo: userRepo, Notifier: notifier, DB: db}
}

func (s *CommunityService) repo(ctx context.Context) *repository.CommunityRepository {
	return s.Repo.WithTx(s.DB.WithContext(ctx))
}

func (s *CommunityService) findPost(ctx context.Context, id uint) (*model.Post, error) {
	post, err := s.repo(ctx).FindPublishedPost(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("post %d", id)
		}
		return nil, err
	}
	return post, nil
}

func (s *CommunityService) findComment(ctx context.Context, id uint) (*model.Comment, error) {
	comment, err := s.repo(ctx).FindActiveComment(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("comment %d", id)
		}
		return nil, err
	}
	return comment, nil
}

func (s *CommunityService) CreatePost(ctx context.Context, authorID uint, in PostInput) (*model.Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, util.NewValidationError("title", "title is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, util.NewValidationError("content", "content is required")
	}
	if in.ContentType == "" {
		in.ContentType = model.PostText
	}
	if !in.ContentType.Valid() {
		return nil, util.NewValidationError("contentType", "unsupported content type %q", in.ContentType)
	}

	now := time.Now()
	post := &model.Post{
		AuthorID:     authorID,
		Title:        in.Title,
		Content:      in.Content,
		ContentType:  in.ContentType,
		CodeSnippet:  in.CodeSnippet,
		CodeLanguage: in.CodeLanguage,
		Status:       model.PostPublished,
		PublishedAt:  &now,
	}
	if err := s.repo(ctx).CreatePost(post); err != nil {
		return nil, err
	}
	monitoring.CommunityActionCounter.WithLabelValues("post").Inc()
	logger.Log.Info("Post published", zap.Uint("postId", post.ID), zap.Uint("authorId", authorID))
	return post, nil
}

func (s *CommunityService) ListPosts(ctx context.Context, contentType string, page, limit int) ([]model.Post, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > util.MaxLimit {
		limit = util.DefaultLimit
	}
	return s.repo(ctx).ListPosts(contentType, limit, (page-1)*limit)
}

// GetPost 每次读取计一次浏览
func (s *CommunityService) GetPost(ctx context.Context, id uint) (*model.Post, error) {
	post, err := s.findPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo(ctx).AdjustPostCounter(id, "views_count", 1); err != nil {
		return nil, err
	}
	post.ViewsCount++
	return post, nil
}

// TogglePostLike 已赞则取消；首次点赞通知作者，自己点赞不通知
func (s *CommunityService) TogglePostLike(ctx context.Context, userID, postID uint) (*LikeResult, error) {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	var result LikeResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.Repo.WithTx(tx)
		removed, err := repo.DeletePostLike(postID, userID)
		if err != nil {
			return err
		}
		delta := -1
		if removed == 0 {
			if err := repo.CreatePostLike(&model.PostLike{PostID: postID, UserID: userID}); err != nil {
				return err
			}
			delta = 1
			result.Liked = true
		}
		if err := repo.AdjustPostCounter(postID, "likes_count", delta); err != nil {
			return err
		}
		result.LikesCount, err = repo.PostCounter(postID, "likes_count")
		return err
	})
	if err != nil {
		// 并发重复点赞：另一请求已经生效
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			count, cerr := s.repo(ctx).PostCounter(postID, "likes_count")
			if cerr != nil {
				return nil, cerr
			}
			return &LikeResult{Liked: true, LikesCount: count}, nil
		}
		return nil, err
	}

	if result.Liked {
		monitoring.CommunityActionCounter.WithLabelValues("post_like").Inc()
		s.notify(ctx, userID, post.AuthorID, NotifyRequest{
			Type:     model.NotificationPostLike,
			Title:    "New Like",
			Message:  fmt.Sprintf("%s liked your post", s.userName(ctx, userID)),
			Link:     fmt.Sprintf("/posts/%d", postID),
			Metadata: map[string]interface{}{"post_id": postID},
		})
	}
	return &result, nil
}

// CreateComment 回复只能挂在同一帖子的有效评论下；回复通知被回复者，评论通知帖子作者，同一人只通知一次
func (s *CommunityService) CreateComment(ctx context.Context, authorID, postID uint, in CommentInput) (*model.Comment, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return nil, util.NewValidationError("content", "content is required")
	}
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	var parent *model.Comment
	if in.ParentID != nil {
		parent, err = s.findComment(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.PostID != postID {
			return nil, util.NewValidationError("parentId", "comment %d does not belong to post %d", parent.ID, postID)
		}
	}

	comment := &model.Comment{
		PostID:   postID,
		AuthorID: authorID,
		ParentID: in.ParentID,
		Content:  in.Content,
		IsActive: true,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.Repo.WithTx(tx)
		if err := repo.CreateComment(comment); err != nil {
			return err
		}
		if err := repo.AdjustPostCounter(postID, "comments_count", 1); err != nil {
			return err
		}
		if parent != nil {
			return repo.AdjustCommentCounter(parent.ID, "replies_count", 1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	monitoring.CommunityActionCounter.WithLabelValues("comment").Inc()

	name := s.userName(ctx, authorID)
	link := fmt.Sprintf("/posts/%d#comment-%d", postID, comment.ID)
	meta := map[string]interface{}{"post_id": postID, "comment_id": comment.ID}
	if parent != nil {
		s.notify(ctx, authorID, parent.AuthorID, NotifyRequest{
			Type:     model.NotificationCommentReply,
			Title:    "New Reply",
			Message:  fmt.Sprintf("%s replied to your comment", name),
			Link:     link,
			Metadata: meta,
		})
	}
	if parent == nil || parent.AuthorID != post.AuthorID {
		s.notify(ctx, authorID, post.AuthorID, NotifyRequest{
			Type:     model.NotificationComment,
			Title:    "New Comment",
			Message:  fmt.Sprintf("%s commented on your post", name),
			Link:     link,
			Metadata: meta,
		})
	}
	return comment, nil
}

// ListComments 顶层评论按时间倒序，回复按时间正序
func (s *CommunityService) ListComments(ctx context.Context, postID uint) ([]CommentThread, error) {
	if _, err := s.findPost(ctx, postID); err != nil {
		return nil, err
	}
	all, err := s.repo(ctx).ListComments(postID)
	if err != nil {
		return nil, err
	}

	index := make(map[uint]int)
	threads := make([]CommentThread, 0)
	for _, c := range all {
		if c.ParentID == nil {
			index[c.ID] = len(threads)
			threads = append(threads, CommentThread{Comment: c, Replies: []model.Comment{}})
		}
	}
	for _, c := range all {
		if c.ParentID == nil {
			continue
		}
		// 父评论失效时回复随之隐藏
		if i, ok := index[*c.ParentID]; ok {
			threads[i].Replies = append(threads[i].Replies, c)
		}
	}
	for i, j := 0, len(threads)-1; i < j; i, j = i+1, j-1 {
		threads[i], threads[j] = threads[j], threads[i]
	}
	return threads, nil
}

func (s *CommunityService) ToggleCommentLike(ctx context.Context, userID, commentID uint) (*LikeResult, error) {
	comment, err := s.findComment(ctx, commentID)
	if err != nil {
		return nil, err
	}

	var result LikeResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.Repo.WithTx(tx)
		removed, err := repo.DeleteCommentLike(commentID, userID)
		if err != nil {
			return err
		}
		delta := -1
		if removed == 0 {
			if err := repo.CreateCommentLike(&model.CommentLike{CommentID: commentID, UserID: userID}); err != nil {
				return err
			}
			delta = 1
			result.Liked = true
		}
		if err := repo.AdjustCommentCounter(commentID, "likes_count", delta); err != nil {
			return err
		}
		result.LikesCount, err = repo.CommentCounter(commentID, "likes_count")
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			count, cerr := s.repo(ctx).CommentCounter(commentID, "likes_count")
			if cerr != nil {
				return nil, cerr
			}
			return &LikeResult{Liked: true, LikesCount: count}, nil
		}
		return nil, err
	}

	if result.Liked {
		monitoring.CommunityActionCounter.WithLabelValues("comment_like").Inc()
		s.notify(ctx, userID, comment.AuthorID, NotifyRequest{
			Type:     model.NotificationCommentLike,
			Title:    "New Like",
			Message:  fmt.Sprintf("%s liked your comment", s.userName(ctx, userID)),
			Link:     fmt.Sprintf("/posts/%d#comment-%d", comment.PostID, commentID),
			Metadata: map[string]interface{}{"post_id": comment.PostID, "comment_id": commentID},
		})
	}
	return &result, nil
}

func (s *CommunityService) userName(ctx context.Context, userID uint) string {
	if u, err := s.UserRepo.WithTx(s.DB.WithContext(ctx)).FindByID(userID); err == nil {
		return u.Name
	}
	return "Someone"
}

// notify 通知失败不影响主流程
func (s *CommunityService) notify(ctx context.Context, actorID, recipientID uint, req NotifyRequest) {
	if s.Notifier == nil || actorID == recipientID {
		return
	}
	req.RecipientID = recipientID
	req.SenderID = &actorID
	if _, err := s.Notifier.Notify(ctx, req); err != nil {
		logger.Log.Warn("Community notification failed",
			zap.Uint("recipientId", recipientID),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
	}
}
