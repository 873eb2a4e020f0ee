package model

import "time"

type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPublished PostStatus = "published"
	PostArchived  PostStatus = "archived"
)

type PostContentType string

const (
	PostText       PostContentType = "text"
	PostCode       PostContentType = "code"
	PostQuestion   PostContentType = "question"
	PostTutorial   PostContentType = "tutorial"
	PostDiscussion PostContentType = "discussion"
)

func (t PostContentType) Valid() bool {
	switch t {
	case PostText, PostCode, PostQuestion, PostTutorial, PostDiscussion:
		return true
	}
	return false
}

// Post 计数字段只通过 gorm.Expr 原子增减
// swagger:model Post
type Post struct {
	BaseModel
	AuthorID      uint            `gorm:"not null;index" json:"authorId"`
	Title         string          `gorm:"size:200;not null" json:"title"`
	Content       string          `gorm:"type:text;not null" json:"content"`
	ContentType   PostContentType `gorm:"size:20;not null;default:text" json:"contentType"`
	CodeSnippet   string          `gorm:"type:text" json:"codeSnippet,omitempty"`
	CodeLanguage  string          `gorm:"size:30" json:"codeLanguage,omitempty"`
	Status        PostStatus      `gorm:"size:20;not null;default:published;index" json:"status"`
	IsPinned      bool            `gorm:"default:false" json:"isPinned"`
	LikesCount    int             `gorm:"not null;default:0" json:"likesCount"`
	CommentsCount int             `gorm:"not null;default:0" json:"commentsCount"`
	ViewsCount    int             `gorm:"not null;default:0" json:"viewsCount"`
	PublishedAt   *time.Time      `gorm:"index" json:"publishedAt,omitempty"`
}

func (Post) TableName() string {
	return "community_posts"
}

// Comment ParentID 为空时是顶层评论
// swagger:model Comment
type Comment struct {
	BaseModel
	PostID       uint   `gorm:"not null;index" json:"postId"`
	AuthorID     uint   `gorm:"not null;index" json:"authorId"`
	ParentID     *uint  `gorm:"index" json:"parentId,omitempty"`
	Content      string `gorm:"type:text;not null" json:"content"`
	LikesCount   int    `gorm:"not null;default:0" json:"likesCount"`
	RepliesCount int    `gorm:"not null;default:0" json:"repliesCount"`
	IsActive     bool   `gorm:"not null;default:true" json:"isActive"`
}

func (Comment) TableName() string {
	return "community_comments"
}

type PostLike struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_post_like" json:"postId"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_post_like" json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (PostLike) TableName() string {
	return "community_post_likes"
}

type CommentLike struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CommentID uint      `gorm:"not null;uniqueIndex:idx_comment_like" json:"commentId"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_comment_like" json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (CommentLike) TableName() string {
	return "community_comment_likes"
}
