package repository

import (
	"codehub_backend/internal/model"

	"gorm.io/gorm"
)

type CommunityRepository struct {
	DB *gorm.DB
}

func NewCommunityRepository(db *gorm.DB) *CommunityRepository {
	return &CommunityRepository{DB: db}
}

func (r *CommunityRepository) WithTx(tx *gorm.DB) *CommunityRepository {
	return &CommunityRepository{DB: tx}
}

func (r *CommunityRepository) CreatePost(p *model.Post) error {
	return r.DB.Create(p).Error
}

// FindPublishedPost 草稿和归档帖子按不存在处理
func (r *CommunityRepository) FindPublishedPost(id uint) (*model.Post, error) {
	var p model.Post
	err := r.DB.Where("status = ?", model.PostPublished).First(&p, id).Error
	return &p, err
}

// ListPosts 置顶优先，其余按发布时间倒序
func (r *CommunityRepository) ListPosts(contentType string, limit, offset int) ([]model.Post, int64, error) {
	var (
		list  []model.Post
		total int64
	)
	q := r.DB.Model(&model.Post{}).Where("status = ?", model.PostPublished)
	if contentType != "" {
		q = q.Where("content_type = ?", contentType)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("is_pinned DESC").Order("published_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

// AdjustPostCounter 计数不会减到负数
func (r *CommunityRepository) AdjustPostCounter(id uint, column string, delta int) error {
	return adjustCounter(r.DB.Model(&model.Post{}).Where("id = ?", id), column, delta)
}

func (r *CommunityRepository) AdjustCommentCounter(id uint, column string, delta int) error {
	return adjustCounter(r.DB.Model(&model.Comment{}).Where("id = ?", id), column, delta)
}

func adjustCounter(q *gorm.DB, column string, delta int) error {
	if delta < 0 {
		q = q.Where(column+" >= ?", -delta)
	}
	return q.UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
}

func (r *CommunityRepository) PostCounter(id uint, column string) (int, error) {
	return pluckCounter(r.DB.Model(&model.Post{}).Where("id = ?", id), column)
}

func (r *CommunityRepository) CommentCounter(id uint, column string) (int, error) {
	return pluckCounter(r.DB.Model(&model.Comment{}).Where("id = ?", id), column)
}

func pluckCounter(q *gorm.DB, column string) (int, error) {
	var values []int
	if err := q.Pluck(column, &values).Error; err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return values[0], nil
}

func (r *CommunityRepository) CreatePostLike(l *model.PostLike) error {
	return r.DB.Create(l).Error
}

func (r *CommunityRepository) DeletePostLike(postID, userID uint) (int64, error) {
	res := r.DB.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&model.PostLike{})
	return res.RowsAffected, res.Error
}

func (r *CommunityRepository) CreateComment(c *model.Comment) error {
	return r.DB.Create(c).Error
}

func (r *CommunityRepository) FindActiveComment(id uint) (*model.Comment, error) {
	var c model.Comment
	err := r.DB.Where("is_active = ?", true).First(&c, id).Error
	return &c, err
}

// ListComments 帖子下全部有效评论，按时间正序
func (r *CommunityRepository) ListComments(postID uint) ([]model.Comment, error) {
	var list []model.Comment
	err := r.DB.Where("post_id = ? AND is_active = ?", postID, true).
		Order("created_at ASC").Order("id ASC").Find(&list).Error
	return list, err
}

func (r *CommunityRepository) CreateCommentLike(l *model.CommentLike) error {
	return r.DB.Create(l).Error
}

func (r *CommunityRepository) DeleteCommentLike(commentID, userID uint) (int64, error) {
	res := r.DB.Where("comment_id = ? AND user_id = ?", commentID, userID).Delete(&model.CommentLike{})
	return res.RowsAffected, res.Error
}
